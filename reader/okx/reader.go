package okx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"pressureflow/config"
	"pressureflow/internal/channel"
	"pressureflow/internal/metrics"
	"pressureflow/internal/symbols"
	"pressureflow/logger"
	"pressureflow/models"
	"pressureflow/reader"
)

const userAgent = "pressureflow/1.0"

// maxBookDepth is the largest sz accepted by /market/books.
const maxBookDepth = 400

// Reader polls /market/books and/or streams the books5 channel from OKX.
type Reader struct {
	config     *config.Config
	venue      config.VenueConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	channels   *channel.Channels
	supervisor *reader.Supervisor
	ctx        context.Context
	wg         *sync.WaitGroup
	mu         sync.RWMutex
	running    bool
	log        *logger.Log
	symbols    []string
}

func NewReader(cfg *config.Config, ch *channel.Channels, syms []string, log *logger.Log) *Reader {
	if log == nil {
		log = logger.GetLogger()
	}
	venue := cfg.Venues.OKX

	httpClient := reader.NewHTTPClient(venue.ConnectionPool, cfg.Reader.Timeout)
	httpClient.Transport = userAgentTransport{agent: userAgent, base: httpClient.Transport}

	instIDs := make([]string, 0, len(syms))
	for _, s := range syms {
		instIDs = append(instIDs, symbols.ForVenue(models.VenueOKX, s))
	}

	r := &Reader{
		config:     cfg,
		venue:      venue,
		httpClient: httpClient,
		limiter:    reader.NewLimiter(cfg.Reader.RateLimit),
		channels:   ch,
		supervisor: reader.NewSupervisor(cfg.Reader.ReconnectBackoff, log),
		wg:         &sync.WaitGroup{},
		log:        log,
		symbols:    instIDs,
	}

	log.WithComponent("okx_reader").WithFields(logger.Fields{
		"mode":    venue.Mode,
		"timeout": cfg.Reader.Timeout,
	}).Info("okx reader initialized")

	return r
}

func (r *Reader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("okx reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	log := r.log.WithComponent("okx_reader").WithFields(logger.Fields{"operation": "start"})
	if !r.venue.Enabled {
		log.Warn("okx venue is disabled")
		return fmt.Errorf("okx venue is disabled")
	}

	log.WithFields(logger.Fields{
		"symbols":  r.symbols,
		"interval": r.config.Reader.IntervalMs,
	}).Info("starting okx reader")

	if r.venue.UsesREST() {
		for _, instID := range r.symbols {
			r.wg.Add(1)
			go r.fetchOrderbookWorker(instID)
		}
	}
	if r.venue.UsesWebsocket() && len(r.symbols) > 0 {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.supervisor.Run(ctx, "okx_ws", func(ctx context.Context) error {
				return r.stream(ctx, r.symbols)
			})
		}()
	}

	log.Info("okx reader started successfully")
	return nil
}

func (r *Reader) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("okx_reader").Info("stopping okx reader")
	r.wg.Wait()
	r.log.WithComponent("okx_reader").Info("okx reader stopped")
}

func (r *Reader) fetchOrderbookWorker(instID string) {
	defer r.wg.Done()

	log := r.log.WithComponent("okx_reader").WithFields(logger.Fields{
		"symbol": instID,
		"worker": "orderbook_fetcher",
	})
	log.Info("starting orderbook worker")

	reader.PollAligned(r.ctx, reader.PollInterval(r.config.Reader.IntervalMs), log, func() {
		if err := r.fetchOrderbook(instID); err != nil && r.ctx.Err() == nil {
			metrics.IncSnapshotError(string(models.VenueOKX), "fetch")
			metrics.ReportLimitFromMessage(r.log, string(models.VenueOKX), instID, err.Error())
			log.WithError(err).Warn("failed to fetch orderbook")
		}
	})
}

func (r *Reader) booksURL(instID string) string {
	depth := r.config.Reader.DepthLimit
	if depth <= 0 || depth > maxBookDepth {
		depth = maxBookDepth
	}
	q := url.Values{}
	q.Set("instId", instID)
	q.Set("sz", strconv.Itoa(depth))
	return strings.TrimRight(r.venue.RestURL, "/") + "/market/books?" + q.Encode()
}

func (r *Reader) fetchOrderbook(instID string) error {
	log := r.log.WithComponent("okx_reader").WithFields(logger.Fields{
		"symbol":    instID,
		"operation": "fetch_orderbook",
	})

	if r.limiter != nil {
		if err := r.limiter.Wait(r.ctx); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(r.ctx, http.MethodGet, r.booksURL(instID), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	start := time.Now()
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request books: %w", err)
	}
	defer resp.Body.Close()
	logger.LogPerformanceEntry(log, "okx_reader", "api_request", time.Since(start), logger.Fields{
		"symbol": instID,
		"status": resp.StatusCode,
	})

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read books: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("books returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	msg := models.RawSnapshotMessage{
		Venue:      models.VenueOKX,
		Symbol:     instID,
		Source:     models.SourceREST,
		ReceivedAt: time.Now().UTC(),
		Data:       body,
	}
	reader.Emit(r.ctx, r.channels, log, msg, "okx_api", 1)
	return nil
}
