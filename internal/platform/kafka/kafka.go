// Package kafka owns the franz-go producer used to ship audit events off-box.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"authority/internal/platform/config"
	audit "authority/pkg/platform/audit"
)

// Producer is the subset of *kgo.Client the sink depends on.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// NewClient builds a franz-go client for the configured brokers, or nil when
// no brokers are set.
func NewClient(cfg config.KafkaConfig) (*kgo.Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.AuditTopic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

// EnsureTopics creates the given topics with broker defaults. Topics that
// already exist are not an error.
func EnsureTopics(ctx context.Context, client *kgo.Client, topics ...string) error {
	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopics(ctx, -1, -1, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, topic := range resp.Sorted() {
		if topic.Err != nil && !errors.Is(topic.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", topic.Topic, topic.Err)
		}
	}
	return nil
}

// AuditSink publishes audit events as JSON records keyed by user id, so all
// events for one user land on one partition in order.
type AuditSink struct {
	producer Producer
	topic    string
	logger   *slog.Logger
}

func NewAuditSink(producer Producer, topic string, logger *slog.Logger) *AuditSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditSink{producer: producer, topic: topic, logger: logger}
}

func (s *AuditSink) Append(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "category", Value: []byte(event.Category)},
		},
	}
	if !event.UserID.IsNil() {
		record.Key = []byte(event.UserID.String())
	}

	if err := s.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish audit event",
			"type", string(event.Type),
			"topic", s.topic,
			"error", err,
		)
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}
