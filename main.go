package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"pressureflow/analyzer"
	"pressureflow/config"
	"pressureflow/internal/channel"
	"pressureflow/internal/dashboard"
	"pressureflow/internal/metrics"
	"pressureflow/internal/throttle"
	"pressureflow/internal/window"
	"pressureflow/logger"
	"pressureflow/models"
	"pressureflow/processor"
	"pressureflow/reader/binance"
	"pressureflow/reader/bybit"
	"pressureflow/reader/mock"
	"pressureflow/reader/okx"
	"pressureflow/writer"
)

type venueReader interface {
	Start(ctx context.Context) error
	Stop()
}

type namedReader struct {
	name   string
	reader venueReader
}

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolveConfigPath(*configPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	env := config.AppEnvironment()
	log.WithFields(logger.Fields{
		"service":     cfg.Pressureflow.Name,
		"version":     cfg.Pressureflow.Version,
		"environment": env,
	}).Info("starting pressureflow")

	if config.IsProductionLike(env) && cfg.Venues.Mock.Enabled {
		log.WithEnv("APP_ENV").Warn("mock venue enabled outside development; synthetic books will be mixed into the window")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Sinks outlive ctx so the final scheduler flush can still publish.
	sinkCtx, cancelSinks := context.WithCancel(context.Background())
	defer cancelSinks()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}
	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(ctx, cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace, cfg.Metrics.CloudWatch.Dashboard)
	}

	metrics.Init()

	var wg sync.WaitGroup

	if cfg.Metrics.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metrics.Serve(ctx, cfg.Metrics.Address); err != nil {
				log.WithError(err).Warn("metrics server stopped")
			}
		}()
	}

	channels := channel.NewChannels(cfg.Channels.RawBuffer)
	defer channels.Close()

	go channels.StartMetricsReporting(ctx, 30*time.Second)

	snapshots := window.New(cfg.Analyzer.WindowCapacity)
	sched := throttle.NewScheduler(cfg.Dashboard.BroadcastInterval)

	fanout := writer.NewFanout(log, buildSinks(ctx, cfg, log)...)

	var engine *analyzer.Engine
	var hub *dashboard.Hub

	publish := func(report models.ZoneReport) {
		sched.Schedule("zones", func() {
			if fanout.Len() > 0 {
				if err := fanout.Publish(sinkCtx, report); err != nil {
					log.WithComponent("main").WithError(err).Warn("zone report not delivered to every sink")
				}
			}
			if hub != nil {
				hub.Broadcast(report)
			}
		})
	}

	engine = analyzer.NewEngine(cfg.Analyzer, snapshots, nil, publish, log)

	server, err := dashboard.NewServer(cfg.Dashboard, log, dashboard.Sources{
		Zones:     engine,
		Snapshots: snapshots,
		Channels:  channels,
		Venues:    venueRegistry(cfg),
	})
	if err != nil {
		log.WithError(err).Error("failed to create dashboard")
		os.Exit(1)
	}
	hub = server.Hub()

	norm := processor.NewProcessor(cfg, channels.Raw, processor.NewRegistry(), snapshots, engine.Trigger)

	binance.ConfigureStreams(cfg.Venues.Binance.WebsocketURL)
	readers := buildReaders(cfg, channels, log)
	if len(readers) == 0 {
		log.Warn("no venue enabled; only the API will be served")
	}

	sched.Start(ctx)

	if err := engine.Start(ctx); err != nil {
		log.WithError(err).Error("analysis engine failed to start")
		os.Exit(1)
	}

	if err := norm.Start(ctx); err != nil {
		log.WithError(err).Error("processor failed to start")
		os.Exit(1)
	}

	if server != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Run(ctx, cfg.Pressureflow.Name); err != nil {
				log.WithError(err).Warn("dashboard stopped")
			}
		}()
	}

	var g errgroup.Group
	for _, r := range readers {
		r := r
		g.Go(func() error {
			if err := r.reader.Start(ctx); err != nil {
				log.WithComponent("main").WithFields(logger.Fields{"venue": r.name}).WithError(err).Warn("reader failed to start")
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.WithError(err).Warn("not every reader started")
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)

		var stops errgroup.Group
		for _, r := range readers {
			r := r
			stops.Go(func() error {
				log.WithFields(logger.Fields{"venue": r.name}).Info("stopping reader")
				r.reader.Stop()
				return nil
			})
		}
		_ = stops.Wait()

		log.Info("stopping processor")
		norm.Stop()

		log.Info("stopping analysis engine")
		engine.Stop()

		log.Info("flushing scheduler")
		sched.Stop()

		log.Info("closing sinks")
		if err := fanout.Close(); err != nil {
			log.WithError(err).Warn("failed to close sinks")
		}
		cancelSinks()

		wg.Wait()
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("pressureflow stopped")
}

func buildSinks(ctx context.Context, cfg *config.Config, log *logger.Log) []writer.Sink {
	var sinks []writer.Sink

	if cfg.Redis.Enabled {
		s, err := writer.NewRedisZoneSink(ctx, cfg.Redis)
		if err != nil {
			log.WithError(err).Warn("redis sink disabled")
		} else {
			sinks = append(sinks, s)
		}
	}

	if cfg.Kafka.Enabled {
		s, err := writer.NewKafkaZoneSink(cfg.Kafka)
		if err != nil {
			log.WithError(err).Warn("kafka sink disabled")
		} else {
			sinks = append(sinks, s)
		}
	}

	if len(sinks) == 0 {
		log.WithComponent("main").Info("no zone sinks configured; reports stay in memory")
	}
	return sinks
}

func buildReaders(cfg *config.Config, ch *channel.Channels, log *logger.Log) []namedReader {
	var readers []namedReader
	if cfg.Venues.Binance.Enabled {
		readers = append(readers, namedReader{string(models.VenueBinance), binance.NewReader(cfg, ch, cfg.Venues.Binance.Symbols, log)})
	}
	if cfg.Venues.OKX.Enabled {
		readers = append(readers, namedReader{string(models.VenueOKX), okx.NewReader(cfg, ch, cfg.Venues.OKX.Symbols, log)})
	}
	if cfg.Venues.Bybit.Enabled {
		readers = append(readers, namedReader{string(models.VenueBybit), bybit.NewReader(cfg, ch, cfg.Venues.Bybit.Symbols, log)})
	}
	if cfg.Venues.Mock.Enabled {
		readers = append(readers, namedReader{string(models.VenueMock), mock.NewReader(cfg, ch, log)})
	}
	return readers
}

// venueRegistry overlays the configured endpoints and enabled flags on the
// built-in venue list.
func venueRegistry(cfg *config.Config) []models.VenueInfo {
	venues := models.DefaultVenues()
	for i := range venues {
		var vc *config.VenueConfig
		switch venues[i].ID {
		case models.VenueBinance:
			vc = &cfg.Venues.Binance
		case models.VenueOKX:
			vc = &cfg.Venues.OKX
		case models.VenueBybit:
			vc = &cfg.Venues.Bybit
		case models.VenueMock:
			venues[i].Enabled = cfg.Venues.Mock.Enabled
			continue
		default:
			continue
		}
		venues[i].Enabled = vc.Enabled
		if vc.RestURL != "" {
			venues[i].RestURL = vc.RestURL
		}
		if vc.WebsocketURL != "" {
			venues[i].WebsocketURL = vc.WebsocketURL
		}
	}
	return venues
}
