package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bybit "github.com/bybit-exchange/bybit.go.api"
	"golang.org/x/time/rate"

	"pressureflow/config"
	"pressureflow/internal/channel"
	"pressureflow/internal/metrics"
	"pressureflow/internal/symbols"
	"pressureflow/logger"
	"pressureflow/models"
	"pressureflow/reader"
)

// maxSpotDepth is the largest limit the spot orderbook endpoint accepts.
const maxSpotDepth = 200

// Reader polls the v5 spot order book and/or streams orderbook.50 from Bybit.
type Reader struct {
	config     *config.Config
	venue      config.VenueConfig
	client     *bybit.Client
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
	venue := cfg.Venues.Bybit

	base := venue.RestURL
	if parsed, err := reader.BaseURL(venue.RestURL); err == nil {
		base = parsed
	}
	client := bybit.NewBybitHttpClient("", "", bybit.WithBaseURL(base))
	client.HTTPClient = reader.NewHTTPClient(venue.ConnectionPool, cfg.Reader.Timeout)

	venueSyms := make([]string, 0, len(syms))
	for _, s := range syms {
		venueSyms = append(venueSyms, symbols.ForVenue(models.VenueBybit, s))
	}

	r := &Reader{
		config:     cfg,
		venue:      venue,
		client:     client,
		limiter:    reader.NewLimiter(cfg.Reader.RateLimit),
		channels:   ch,
		supervisor: reader.NewSupervisor(cfg.Reader.ReconnectBackoff, log),
		wg:         &sync.WaitGroup{},
		log:        log,
		symbols:    venueSyms,
	}

	log.WithComponent("bybit_reader").WithFields(logger.Fields{
		"mode":    venue.Mode,
		"timeout": cfg.Reader.Timeout,
	}).Info("bybit reader initialized")

	return r
}

func (r *Reader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("bybit reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	log := r.log.WithComponent("bybit_reader").WithFields(logger.Fields{"operation": "start"})
	if !r.venue.Enabled {
		log.Warn("bybit venue is disabled")
		return fmt.Errorf("bybit venue is disabled")
	}

	log.WithFields(logger.Fields{
		"symbols":  r.symbols,
		"interval": r.config.Reader.IntervalMs,
	}).Info("starting bybit reader")

	if r.venue.UsesREST() {
		for _, sym := range r.symbols {
			r.wg.Add(1)
			go r.fetchOrderbookWorker(sym)
		}
	}
	if r.venue.UsesWebsocket() && len(r.symbols) > 0 {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.supervisor.Run(ctx, "bybit_ws", func(ctx context.Context) error {
				return r.stream(ctx, r.symbols)
			})
		}()
	}

	log.Info("bybit reader started successfully")
	return nil
}

func (r *Reader) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("bybit_reader").Info("stopping bybit reader")
	r.wg.Wait()
	r.log.WithComponent("bybit_reader").Info("bybit reader stopped")
}

func (r *Reader) fetchOrderbookWorker(symbol string) {
	defer r.wg.Done()

	log := r.log.WithComponent("bybit_reader").WithFields(logger.Fields{
		"symbol": symbol,
		"worker": "orderbook_fetcher",
	})
	log.Info("starting orderbook worker")

	reader.PollAligned(r.ctx, reader.PollInterval(r.config.Reader.IntervalMs), log, func() {
		if err := r.fetchOrderbook(symbol); err != nil && r.ctx.Err() == nil {
			metrics.IncSnapshotError(string(models.VenueBybit), "fetch")
			metrics.ReportLimitFromMessage(r.log, string(models.VenueBybit), symbol, err.Error())
			log.WithError(err).Warn("failed to fetch orderbook")
		}
	})
}

func (r *Reader) depth() int {
	d := r.config.Reader.DepthLimit
	if d <= 0 || d > maxSpotDepth {
		return maxSpotDepth
	}
	return d
}

func (r *Reader) fetchOrderbook(symbol string) error {
	log := r.log.WithComponent("bybit_reader").WithFields(logger.Fields{
		"symbol":    symbol,
		"operation": "fetch_orderbook",
	})

	if r.limiter != nil {
		if err := r.limiter.Wait(r.ctx); err != nil {
			return err
		}
	}

	params := map[string]interface{}{
		"category": "spot",
		"symbol":   symbol,
		"limit":    r.depth(),
	}

	start := time.Now()
	resp, err := r.client.NewUtaBybitServiceWithParams(params).GetOrderBookInfo(r.ctx)
	if err != nil {
		return fmt.Errorf("get orderbook: %w", err)
	}
	logger.LogPerformanceEntry(log, "bybit_reader", "api_request", time.Since(start), logger.Fields{"symbol": symbol})

	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal orderbook: %w", err)
	}

	msg := models.RawSnapshotMessage{
		Venue:      models.VenueBybit,
		Symbol:     symbol,
		Source:     models.SourceREST,
		ReceivedAt: time.Now().UTC(),
		Data:       payload,
	}
	reader.Emit(r.ctx, r.channels, log, msg, "bybit_api", 1)
	return nil
}
