// Package publisher fans appended ledger entries out to Kafka so downstream
// compliance tooling gets the trail without querying the primary store.
//
// The fan-out is a secondary write with best-effort semantics: the chain in
// the primary store is the source of truth, and a publish failure is logged
// and counted but never fails the append that triggered it.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/Mawilis/legal-doc-system-sub010/internal/ledger"
)

// Kafka publishes ledger entries to a topic, keyed by tenant so one tenant's
// trail stays ordered within a partition.
type Kafka struct {
	client  *kgo.Client
	topic   string
	logger  *slog.Logger
	metrics *ledger.Metrics
}

// Option configures the Kafka publisher.
type Option func(*Kafka)

// WithMetrics sets the metrics collector used for publish failures.
func WithMetrics(m *ledger.Metrics) Option {
	return func(k *Kafka) { k.metrics = m }
}

// NewKafka connects a producer and makes sure the topic exists. Producer-side
// retries handle transient broker trouble; anything that survives them is
// reported through the logger and metrics.
func NewKafka(ctx context.Context, brokers []string, topic string, logger *slog.Logger, opts ...Option) (*Kafka, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.RecordRetries(5),
		kgo.RecordDeliveryTimeout(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("publisher: connect kafka: %w", err)
	}

	if err := ensureTopic(ctx, client, topic); err != nil {
		client.Close()
		return nil, err
	}

	k := &Kafka{client: client, topic: topic, logger: logger}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

// Publish sends the entry asynchronously. Failures are terminal for the
// record only, never for the append.
func (k *Kafka) Publish(ctx context.Context, entry *ledger.Entry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		k.reportError(ctx, entry, err)
		return
	}
	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(entry.TenantID.String()),
		Value: payload,
	}
	k.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			k.reportError(context.Background(), entry, err)
		}
	})
}

// Close flushes outstanding records and releases the client.
func (k *Kafka) Close(ctx context.Context) error {
	if err := k.client.Flush(ctx); err != nil {
		return fmt.Errorf("publisher: flush: %w", err)
	}
	k.client.Close()
	return nil
}

func (k *Kafka) reportError(ctx context.Context, entry *ledger.Entry, err error) {
	if k.metrics != nil {
		k.metrics.IncPublishErrors()
	}
	k.logger.ErrorContext(ctx, "ledger entry publish failed",
		"tenant_id", entry.TenantID,
		"sequence_index", entry.SequenceIndex,
		"error", err,
	)
}

func ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	adm := kadm.NewClient(client)
	topics, err := adm.ListTopics(ctx)
	if err != nil {
		return fmt.Errorf("publisher: list topics: %w", err)
	}
	if topics.Has(topic) {
		return nil
	}
	if _, err := adm.CreateTopic(ctx, 3, 1, nil, topic); err != nil {
		return fmt.Errorf("publisher: create topic %q: %w", topic, err)
	}
	return nil
}
