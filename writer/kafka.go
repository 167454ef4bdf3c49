package writer

import (
	"context"
	"fmt"
	"time"

	kafka "github.com/segmentio/kafka-go"

	appconfig "pressureflow/config"
	"pressureflow/logger"
	"pressureflow/models"
)

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaZoneSink writes every report to a topic, keyed by symbol.
type KafkaZoneSink struct {
	writer       messageWriter
	topic        string
	writeTimeout time.Duration
	log          *logger.Log
}

func NewKafkaZoneSink(cfg appconfig.KafkaConfig) (*KafkaZoneSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: cfg.WriteTimeout,
	}
	s := newKafkaZoneSink(w, cfg.Topic, cfg.WriteTimeout)
	s.log.WithComponent("kafka_writer").WithFields(logger.Fields{
		"brokers": cfg.Brokers,
		"topic":   cfg.Topic,
	}).Info("kafka zone sink initialized")
	return s, nil
}

func newKafkaZoneSink(w messageWriter, topic string, writeTimeout time.Duration) *KafkaZoneSink {
	return &KafkaZoneSink{
		writer:       w,
		topic:        topic,
		writeTimeout: writeTimeout,
		log:          logger.GetLogger(),
	}
}

func (s *KafkaZoneSink) Name() string { return "kafka" }

func (s *KafkaZoneSink) Publish(ctx context.Context, report models.ZoneReport) error {
	data, err := encodeReport(report)
	if err != nil {
		return err
	}
	if s.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.writeTimeout)
		defer cancel()
	}

	msg := kafka.Message{
		Key:   []byte(report.Symbol),
		Value: data,
		Time:  report.GeneratedAt,
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write zones: %w", err)
	}

	s.log.WithComponent("kafka_writer").WithFields(logger.Fields{
		"pass_id": report.PassID,
		"zones":   len(report.Zones),
	}).Debug("zone report written to kafka")
	return nil
}

func (s *KafkaZoneSink) Close() error {
	return s.writer.Close()
}
