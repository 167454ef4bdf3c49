package writer

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	appconfig "pressureflow/config"
	"pressureflow/logger"
	"pressureflow/models"
)

// RedisZoneSink stores the latest report per symbol and announces it on a
// pub/sub channel.
//
// Key schema:
//
//	{prefix}{symbol} - JSON ZoneReport, expires after TTL
type RedisZoneSink struct {
	rdb       *redis.Client
	keyPrefix string
	channel   string
	ttl       time.Duration
	log       *logger.Log
}

// NewRedisZoneSink connects and pings Redis.
func NewRedisZoneSink(ctx context.Context, cfg appconfig.RedisConfig) (*RedisZoneSink, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	s := &RedisZoneSink{
		rdb:       rdb,
		keyPrefix: cfg.KeyPrefix,
		channel:   cfg.Channel,
		ttl:       cfg.TTL,
		log:       logger.GetLogger(),
	}
	s.log.WithComponent("redis_writer").WithFields(logger.Fields{
		"addr":    cfg.Addr,
		"db":      cfg.DB,
		"channel": cfg.Channel,
	}).Info("redis zone sink connected")
	return s, nil
}

func (s *RedisZoneSink) Name() string { return "redis" }

func (s *RedisZoneSink) key(symbol string) string {
	return s.keyPrefix + symbol
}

// Publish SETs the report and PUBLISHes it in one transaction.
func (s *RedisZoneSink) Publish(ctx context.Context, report models.ZoneReport) error {
	data, err := encodeReport(report)
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.key(report.Symbol), data, s.ttl)
	if s.channel != "" {
		pipe.Publish(ctx, s.channel, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: publish zones: %w", err)
	}

	s.log.WithComponent("redis_writer").WithFields(logger.Fields{
		"key":   s.key(report.Symbol),
		"zones": len(report.Zones),
	}).Debug("zone report stored")
	return nil
}

func (s *RedisZoneSink) Close() error {
	return s.rdb.Close()
}
