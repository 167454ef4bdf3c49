package binance

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	binance "github.com/adshao/go-binance/v2"

	"pressureflow/config"
	"pressureflow/internal/channel"
	"pressureflow/internal/metrics"
	"pressureflow/internal/symbols"
	"pressureflow/logger"
	"pressureflow/models"
	"pressureflow/reader"
)

// partialDepthLevels is the depth of the partial book stream (5, 10 or 20).
const partialDepthLevels = 20

// Reader polls spot depth snapshots and/or streams partial depth from Binance.
type Reader struct {
	config     *config.Config
	venue      config.VenueConfig
	client     *binance.Client
	channels   *channel.Channels
	supervisor *reader.Supervisor
	ctx        context.Context
	wg         *sync.WaitGroup
	mu         sync.RWMutex
	running    bool
	log        *logger.Log
	symbols    []string
}

// ConfigureStreams points the go-binance websocket helpers at url. The
// endpoint is a package global of go-binance, so it is process-wide: call it
// once from main before any reader starts. An empty url keeps the default.
func ConfigureStreams(url string) {
	if url != "" {
		binance.BaseWsMainURL = url
	}
}

func NewReader(cfg *config.Config, ch *channel.Channels, syms []string, log *logger.Log) *Reader {
	if log == nil {
		log = logger.GetLogger()
	}
	venue := cfg.Venues.Binance

	client := binance.NewClient("", "")
	client.HTTPClient = reader.NewHTTPClient(venue.ConnectionPool, cfg.Reader.Timeout)
	if base, err := reader.BaseURL(venue.RestURL); err == nil {
		client.BaseURL = base
	}
	r := &Reader{
		config:     cfg,
		venue:      venue,
		client:     client,
		channels:   ch,
		supervisor: reader.NewSupervisor(cfg.Reader.ReconnectBackoff, log),
		wg:         &sync.WaitGroup{},
		log:        log,
		symbols:    syms,
	}

	log.WithComponent("binance_reader").WithFields(logger.Fields{
		"mode":               venue.Mode,
		"max_idle_conns":     venue.ConnectionPool.MaxIdleConns,
		"max_conns_per_host": venue.ConnectionPool.MaxConnsPerHost,
		"timeout":            cfg.Reader.Timeout,
	}).Info("binance reader initialized")

	return r
}

func (r *Reader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("binance reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	log := r.log.WithComponent("binance_reader").WithFields(logger.Fields{"operation": "start"})
	if !r.venue.Enabled {
		log.Warn("binance venue is disabled")
		return fmt.Errorf("binance venue is disabled")
	}

	log.WithFields(logger.Fields{
		"symbols":  r.symbols,
		"interval": r.config.Reader.IntervalMs,
	}).Info("starting binance reader")

	for _, sym := range r.symbols {
		sym := symbols.ForVenue(models.VenueBinance, sym)
		if r.venue.UsesREST() {
			r.wg.Add(1)
			go r.fetchOrderbookWorker(sym)
		}
		if r.venue.UsesWebsocket() {
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				r.supervisor.Run(ctx, "binance_ws_"+sym, func(ctx context.Context) error {
					return r.stream(ctx, sym)
				})
			}()
		}
	}

	log.Info("binance reader started successfully")
	return nil
}

func (r *Reader) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("binance_reader").Info("stopping binance reader")
	r.wg.Wait()
	r.log.WithComponent("binance_reader").Info("binance reader stopped")
}

func (r *Reader) fetchOrderbookWorker(symbol string) {
	defer r.wg.Done()

	log := r.log.WithComponent("binance_reader").WithFields(logger.Fields{
		"symbol": symbol,
		"worker": "orderbook_fetcher",
	})
	log.Info("starting orderbook worker")

	reader.PollAligned(r.ctx, reader.PollInterval(r.config.Reader.IntervalMs), log, func() {
		r.fetchOrderbook(symbol)
	})
}

func (r *Reader) fetchOrderbook(symbol string) {
	log := r.log.WithComponent("binance_reader").WithFields(logger.Fields{
		"symbol":    symbol,
		"operation": "fetch_orderbook",
	})

	start := time.Now()
	resp, err := r.client.NewDepthService().Symbol(symbol).Limit(r.config.Reader.DepthLimit).Do(r.ctx)
	if err != nil {
		if r.ctx.Err() != nil {
			return
		}
		metrics.IncSnapshotError(string(models.VenueBinance), "fetch")
		metrics.ReportLimitFromMessage(r.log, string(models.VenueBinance), symbol, err.Error())
		log.WithError(err).Warn("failed to fetch orderbook")
		return
	}
	logger.LogPerformanceEntry(log, "binance_reader", "api_request", time.Since(start), logger.Fields{
		"symbol": symbol,
	})

	payload := models.BinanceDepthPayload{
		LastUpdateID: resp.LastUpdateID,
		Symbol:       symbol,
		Bids:         make([][]string, 0, len(resp.Bids)),
		Asks:         make([][]string, 0, len(resp.Asks)),
	}
	for _, b := range resp.Bids {
		payload.Bids = append(payload.Bids, []string{b.Price, b.Quantity})
	}
	for _, a := range resp.Asks {
		payload.Asks = append(payload.Asks, []string{a.Price, a.Quantity})
	}
	r.send(log, symbol, models.SourceREST, "binance_api", payload)
}

// stream serves the partial depth stream for one symbol until ctx is done or
// the connection ends.
func (r *Reader) stream(ctx context.Context, symbol string) error {
	log := r.log.WithComponent("binance_reader").WithFields(logger.Fields{
		"symbol": symbol,
		"worker": "depth_stream",
	})

	handler := func(event *binance.WsPartialDepthEvent) {
		payload := models.BinanceDepthPayload{
			LastUpdateID: event.LastUpdateID,
			Symbol:       symbol,
			Bids:         make([][]string, 0, len(event.Bids)),
			Asks:         make([][]string, 0, len(event.Asks)),
		}
		for _, b := range event.Bids {
			payload.Bids = append(payload.Bids, []string{b.Price, b.Quantity})
		}
		for _, a := range event.Asks {
			payload.Asks = append(payload.Asks, []string{a.Price, a.Quantity})
		}
		r.send(log, symbol, models.SourceWebsocket, "binance_ws", payload)
	}

	errHandler := func(err error) {
		if err == nil {
			return
		}
		metrics.ReportLimitFromMessage(r.log, string(models.VenueBinance), symbol, err.Error())
		log.WithError(err).Warn("websocket error")
	}

	doneC, stopC, err := binance.WsPartialDepthServe(symbol, strconv.Itoa(partialDepthLevels), handler, errHandler)
	if err != nil {
		return fmt.Errorf("subscribe partial depth %s: %w", symbol, err)
	}
	log.Info("subscribed to partial depth stream")

	select {
	case <-ctx.Done():
		close(stopC)
		<-doneC
		return ctx.Err()
	case <-doneC:
		return fmt.Errorf("partial depth stream for %s closed", symbol)
	}
}

func (r *Reader) send(log *logger.Entry, symbol string, source models.Source, upstream string, payload models.BinanceDepthPayload) {
	data, err := models.Encode(payload)
	if err != nil {
		log.WithError(err).Warn("failed to marshal orderbook")
		return
	}
	msg := models.RawSnapshotMessage{
		Venue:      models.VenueBinance,
		Symbol:     symbol,
		Source:     source,
		ReceivedAt: time.Now().UTC(),
		Data:       data,
	}
	reader.Emit(r.ctx, r.channels, log, msg, upstream, len(payload.Bids)+len(payload.Asks))
}
