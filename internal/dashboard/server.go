package dashboard

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"pressureflow/analyzer"
	"pressureflow/config"
	"pressureflow/internal/channel"
	"pressureflow/internal/metrics"
	"pressureflow/internal/throttle"
	"pressureflow/logger"
	"pressureflow/models"
)

// ZoneSource exposes the analysis engine's latest result.
type ZoneSource interface {
	Latest() (models.ZoneReport, bool)
	Stats() analyzer.EngineStats
}

// SnapshotSource exposes the snapshot window.
type SnapshotSource interface {
	Latest() (models.OrderBookSnapshot, bool)
	Downsample(maxSize int) []models.OrderBookSnapshot
	Len() int
	Capacity() int
}

// ChannelSource exposes raw channel statistics.
type ChannelSource interface {
	GetStats() channel.ChannelStats
}

// Sources are the read-only views the API serves. Nil sources produce
// empty responses.
type Sources struct {
	Zones     ZoneSource
	Snapshots SnapshotSource
	Channels  ChannelSource
	Venues    []models.VenueInfo
}

// Server hosts the HTTP API and the zone websocket hub.
type Server struct {
	cfg         config.DashboardConfig
	log         *logger.Log
	src         Sources
	hub         *Hub
	metricStore *metricStore
	logStore    *logStore
	unsubscribe func()
	httpServer  *http.Server
	startedAt   time.Time
}

// NewServer constructs the dashboard when it is enabled. When the dashboard
// is disabled the returned server is nil.
func NewServer(cfg config.DashboardConfig, log *logger.Log, src Sources) (*Server, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if log == nil {
		log = logger.GetLogger()
	}

	cfg.Address = normalizeAddress(cfg.Address)
	if cfg.MetricsHistory <= 0 {
		cfg.MetricsHistory = 200
	}
	if cfg.LogHistory <= 0 {
		cfg.LogHistory = 200
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}

	metricStore := newMetricStore(cfg.MetricsHistory)
	unsubscribe := metrics.Subscribe(metricStore.handle)

	logStore := newLogStore(cfg.LogHistory)
	log.AddHook(logStore)

	return &Server{
		cfg:         cfg,
		log:         log,
		src:         src,
		hub:         NewHub(log),
		metricStore: metricStore,
		logStore:    logStore,
		unsubscribe: unsubscribe,
		startedAt:   time.Now().UTC(),
	}, nil
}

// Hub returns the websocket hub, or nil for a disabled dashboard.
func (s *Server) Hub() *Hub {
	if s == nil {
		return nil
	}
	return s.hub
}

// Run starts the HTTP server and blocks until ctx is cancelled or the server
// fails.
func (s *Server) Run(ctx context.Context, appName string) error {
	if s == nil {
		return nil
	}

	defer s.cleanup()

	router, err := s.buildRouter(appName)
	if err != nil {
		return err
	}

	hubCtx, cancelHub := context.WithCancel(ctx)
	defer cancelHub()
	go s.hub.Run(hubCtx)

	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.log.WithComponent("dashboard").WithFields(logger.Fields{"address": s.cfg.Address}).Info("dashboard listening")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) cleanup() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.logStore != nil {
		s.logStore.close()
	}
}

// Address reports the address the server listens on.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

func (s *Server) buildRouter(appName string) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":         "ok",
			"app":            appName,
			"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		})
	})

	api := router.Group("/api")
	api.GET("/zones", s.handleZones)
	api.GET("/snapshots/latest", s.handleLatestSnapshot)
	api.GET("/snapshots", s.handleSnapshots)
	api.GET("/venues", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"venues": s.src.Venues})
	})
	api.GET("/engine", s.handleEngine)
	api.GET("/metrics", s.handleMetrics)
	api.GET("/logs", s.handleLogs)

	router.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWS(c.Writer, c.Request)
	})

	return router, nil
}

func (s *Server) handleZones(c *gin.Context) {
	if s.src.Zones == nil {
		c.Status(http.StatusNoContent)
		return
	}
	report, ok := s.src.Zones.Latest()
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleLatestSnapshot(c *gin.Context) {
	if s.src.Snapshots == nil {
		c.Status(http.StatusNoContent)
		return
	}
	snap, ok := s.src.Snapshots.Latest()
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"snapshot": snap,
		"stats":    models.ComputeStats(snap),
	})
}

func (s *Server) handleSnapshots(c *gin.Context) {
	limit := s.cfg.HistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	var snaps []models.OrderBookSnapshot
	total := 0
	if s.src.Snapshots != nil {
		snaps = s.src.Snapshots.Downsample(limit)
		total = s.src.Snapshots.Len()
	}
	if snaps == nil {
		snaps = []models.OrderBookSnapshot{}
	}

	c.JSON(http.StatusOK, gin.H{
		"snapshots": snaps,
		"count":     len(snaps),
		"total":     total,
		"lod":       throttle.LODLevel(total),
	})
}

func (s *Server) handleEngine(c *gin.Context) {
	out := gin.H{}
	if s.src.Zones != nil {
		out["engine"] = s.src.Zones.Stats()
	}
	if s.src.Snapshots != nil {
		out["window"] = gin.H{
			"size":     s.src.Snapshots.Len(),
			"capacity": s.src.Snapshots.Capacity(),
		}
	}
	if s.src.Channels != nil {
		out["channels"] = s.src.Channels.GetStats()
	}
	out["clients"] = s.hub.Clients()
	out["report"] = logger.Counters()
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleMetrics(c *gin.Context) {
	snapshot := s.metricStore.snapshot()
	payload := make([]gin.H, 0, len(snapshot))
	for _, m := range snapshot {
		payload = append(payload, gin.H{
			"timestamp": m.At.Format(time.RFC3339Nano),
			"kind":      m.Kind,
			"component": m.Component,
			"name":      m.Name,
			"value":     m.Value,
			"venue":     m.Venue,
			"symbol":    m.Symbol,
			"fields":    m.Fields,
		})
	}
	c.JSON(http.StatusOK, gin.H{"metrics": payload})
}

func (s *Server) handleLogs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"logs": s.logStore.snapshot()})
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if host := parsed.Host; host != "" {
				addr = host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") {
		if len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
			return "0.0.0.0" + addr
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil {
		return net.JoinHostPort(addr, "8080")
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}

	return addr
}
