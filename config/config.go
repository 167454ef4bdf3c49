package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Pressureflow PressureflowConfig `yaml:"pressureflow"`
	Analyzer     AnalyzerConfig     `yaml:"analyzer"`
	Channels     ChannelsConfig     `yaml:"channels"`
	Reader       ReaderConfig       `yaml:"reader"`
	Processor    ProcessorConfig    `yaml:"processor"`
	Venues       VenuesConfig       `yaml:"venues"`
	Redis        RedisConfig        `yaml:"redis"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	Dashboard    DashboardConfig    `yaml:"dashboard"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Logging      LoggingConfig      `yaml:"logging"`
}

type PressureflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// AnalyzerConfig carries the zone detection parameters. IntensityBoost and
// AvgVolumeMultiplier are the heuristic factors of the intensity formula.
type AnalyzerConfig struct {
	VolumeThreshold       float64       `yaml:"volume_threshold"`
	PriceClusterThreshold float64       `yaml:"price_cluster_threshold"`
	WindowCapacity        int           `yaml:"window_capacity"`
	AnalysisWindow        int           `yaml:"analysis_window"`
	MinSnapshots          int           `yaml:"min_snapshots"`
	TopK                  int           `yaml:"top_k"`
	IntensityBoost        float64       `yaml:"intensity_boost"`
	AvgVolumeMultiplier   float64       `yaml:"avg_volume_multiplier"`
	AnalysisInterval      time.Duration `yaml:"analysis_interval"`
	Symbol                string        `yaml:"symbol"`
}

type ChannelsConfig struct {
	RawBuffer int `yaml:"raw_buffer"`
}

type ReaderConfig struct {
	Timeout          time.Duration   `yaml:"timeout"`
	IntervalMs       int             `yaml:"interval_ms"`
	DepthLimit       int             `yaml:"depth_limit"`
	ReconnectBackoff time.Duration   `yaml:"reconnect_backoff"`
	RateLimit        RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type ProcessorConfig struct {
	MaxWorkers int `yaml:"max_workers"`
}

type VenuesConfig struct {
	Binance VenueConfig `yaml:"binance"`
	OKX     VenueConfig `yaml:"okx"`
	Bybit   VenueConfig `yaml:"bybit"`
	Mock    MockConfig  `yaml:"mock"`
}

// Reader modes. ModeBoth runs the REST poller and the websocket stream side by side.
const (
	ModeREST      = "rest"
	ModeWebsocket = "websocket"
	ModeBoth      = "both"
)

type VenueConfig struct {
	Enabled        bool                 `yaml:"enabled"`
	Mode           string               `yaml:"mode"`
	RestURL        string               `yaml:"rest_url"`
	WebsocketURL   string               `yaml:"websocket_url"`
	Symbols        []string             `yaml:"symbols"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
}

// UsesREST reports whether the venue should run a REST poller.
func (v VenueConfig) UsesREST() bool {
	return v.Mode == ModeREST || v.Mode == ModeBoth
}

// UsesWebsocket reports whether the venue should run a websocket stream.
func (v VenueConfig) UsesWebsocket() bool {
	return v.Mode == ModeWebsocket || v.Mode == ModeBoth
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
	LocalIP         string        `yaml:"local_ip"`
}

type MockConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Symbol       string        `yaml:"symbol"`
	BasePrice    float64       `yaml:"base_price"`
	Interval     time.Duration `yaml:"interval"`
	InitialBurst int           `yaml:"initial_burst"`
	Levels       int           `yaml:"levels"`
	Seed         int64         `yaml:"seed"`
}

type RedisConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	PoolSize  int           `yaml:"pool_size"`
	KeyPrefix string        `yaml:"key_prefix"`
	Channel   string        `yaml:"channel"`
	TTL       time.Duration `yaml:"ttl"`
}

type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DashboardConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Address           string        `yaml:"address"`
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
	MetricsHistory    int           `yaml:"metrics_history"`
	LogHistory        int           `yaml:"log_history"`
	HistoryLimit      int           `yaml:"history_limit"`
}

type MetricsConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Address    string           `yaml:"address"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// Default returns the configuration used for any field the YAML file leaves out.
func Default() Config {
	return Config{
		Pressureflow: PressureflowConfig{Name: "pressureflow", Version: "dev"},
		Analyzer: AnalyzerConfig{
			VolumeThreshold:       50,
			PriceClusterThreshold: 0.001,
			WindowCapacity:        150,
			AnalysisWindow:        20,
			MinSnapshots:          3,
			TopK:                  15,
			IntensityBoost:        2,
			AvgVolumeMultiplier:   10,
			AnalysisInterval:      3 * time.Second,
			Symbol:                "BTCUSDT",
		},
		Channels: ChannelsConfig{RawBuffer: 1000},
		Reader: ReaderConfig{
			Timeout:          10 * time.Second,
			IntervalMs:       3000,
			DepthLimit:       100,
			ReconnectBackoff: 5 * time.Second,
			RateLimit:        RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5},
		},
		Processor: ProcessorConfig{MaxWorkers: 1},
		Venues: VenuesConfig{
			Binance: VenueConfig{
				Mode:         ModeREST,
				RestURL:      "https://api.binance.com/api/v3",
				WebsocketURL: "wss://stream.binance.com:9443/ws",
				Symbols:      []string{"BTCUSDT"},
			},
			OKX: VenueConfig{
				Mode:         ModeREST,
				RestURL:      "https://www.okx.com/api/v5",
				WebsocketURL: "wss://ws.okx.com:8443/ws/v5/public",
				Symbols:      []string{"BTCUSDT"},
			},
			Bybit: VenueConfig{
				Mode:         ModeREST,
				RestURL:      "https://api.bybit.com/v5",
				WebsocketURL: "wss://stream.bybit.com/v5/public/spot",
				Symbols:      []string{"BTCUSDT"},
			},
			Mock: MockConfig{
				Symbol:       "BTCUSDT",
				BasePrice:    45000,
				Interval:     2 * time.Second,
				InitialBurst: 10,
				Levels:       20,
			},
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "pressureflow:zones:",
			Channel:   "pressureflow:zones",
			TTL:       time.Minute,
		},
		Kafka: KafkaConfig{
			Topic:        "pressure-zones",
			WriteTimeout: 10 * time.Second,
		},
		Dashboard: DashboardConfig{
			Address:           "0.0.0.0:8080",
			BroadcastInterval: 250 * time.Millisecond,
			MetricsHistory:    200,
			LogHistory:        200,
			HistoryLimit:      50,
		},
		Metrics: MetricsConfig{
			Address:    "0.0.0.0:2112",
			CloudWatch: CloudWatchConfig{Namespace: "Pressureflow", Dashboard: "Pressureflow"},
		},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := applyEnvOverrides(&config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyEnvOverrides(config *Config) error {
	if v := strings.TrimSpace(os.Getenv("PRESSUREFLOW_VOLUME_THRESHOLD")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("PRESSUREFLOW_VOLUME_THRESHOLD: %w", err)
		}
		config.Analyzer.VolumeThreshold = f
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		config.Redis.Addr = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		config.Redis.Password = strings.TrimSpace(v)
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		var brokers []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		config.Kafka.Brokers = brokers
	}
	if v := os.Getenv("DASHBOARD_ADDRESS"); v != "" {
		config.Dashboard.Address = strings.TrimSpace(v)
	}
	return nil
}

func validateConfig(cfg *Config) error {
	if cfg.Pressureflow.Name == "" {
		return fmt.Errorf("pressureflow.name is required")
	}
	if cfg.Pressureflow.Version == "" {
		return fmt.Errorf("pressureflow.version is required")
	}

	a := cfg.Analyzer
	if a.VolumeThreshold < 0 {
		return fmt.Errorf("analyzer.volume_threshold must not be negative")
	}
	if a.PriceClusterThreshold < 0 {
		return fmt.Errorf("analyzer.price_cluster_threshold must not be negative")
	}
	if a.WindowCapacity <= 0 {
		return fmt.Errorf("analyzer.window_capacity must be greater than 0")
	}
	if a.AnalysisWindow <= 0 {
		return fmt.Errorf("analyzer.analysis_window must be greater than 0")
	}
	if a.AnalysisWindow > a.WindowCapacity {
		return fmt.Errorf("analyzer.analysis_window must not exceed analyzer.window_capacity")
	}
	if a.MinSnapshots < 0 {
		return fmt.Errorf("analyzer.min_snapshots must not be negative")
	}
	if a.TopK <= 0 {
		return fmt.Errorf("analyzer.top_k must be greater than 0")
	}
	if a.IntensityBoost <= 0 {
		return fmt.Errorf("analyzer.intensity_boost must be greater than 0")
	}
	if a.AvgVolumeMultiplier <= 0 {
		return fmt.Errorf("analyzer.avg_volume_multiplier must be greater than 0")
	}
	if a.AnalysisInterval <= 0 {
		return fmt.Errorf("analyzer.analysis_interval must be greater than 0")
	}

	if cfg.Channels.RawBuffer <= 0 {
		return fmt.Errorf("channels.raw_buffer must be greater than 0")
	}
	if cfg.Processor.MaxWorkers <= 0 {
		return fmt.Errorf("processor.max_workers must be greater than 0")
	}
	if cfg.Reader.IntervalMs <= 0 {
		return fmt.Errorf("reader.interval_ms must be greater than 0")
	}
	if cfg.Reader.ReconnectBackoff <= 0 {
		return fmt.Errorf("reader.reconnect_backoff must be greater than 0")
	}

	venues := map[string]VenueConfig{
		"binance": cfg.Venues.Binance,
		"okx":     cfg.Venues.OKX,
		"bybit":   cfg.Venues.Bybit,
	}
	for name, v := range venues {
		if !v.Enabled {
			continue
		}
		switch v.Mode {
		case ModeREST, ModeWebsocket, ModeBoth:
		default:
			return fmt.Errorf("venues.%s.mode '%s' is invalid", name, v.Mode)
		}
		if len(v.Symbols) == 0 {
			return fmt.Errorf("venues.%s.symbols is required when the venue is enabled", name)
		}
	}
	if cfg.Venues.Mock.Enabled && cfg.Venues.Mock.BasePrice <= 0 {
		return fmt.Errorf("venues.mock.base_price must be greater than 0")
	}

	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if cfg.Kafka.Enabled {
		if len(cfg.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required when kafka is enabled")
		}
		if cfg.Kafka.Topic == "" {
			return fmt.Errorf("kafka.topic is required when kafka is enabled")
		}
	}

	return nil
}
