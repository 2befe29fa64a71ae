// Package kafka connects the aggregator to Kafka: snapshots are produced to a
// topic for downstream consumers and change signals are consumed from another.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/ride-hazard-service/internal/config"
	"github.com/couchcryptid/ride-hazard-service/internal/domain"
	"github.com/couchcryptid/ride-hazard-service/internal/observability"
)

// Writer produces alert snapshots to the snapshot topic.
type Writer struct {
	writer  *kafkago.Writer
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewWriter creates a Kafka producer for the configured snapshot topic.
func NewWriter(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSnapshotTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger, metrics: metrics}
}

// Publish serializes and writes one snapshot.
func (w *Writer) Publish(ctx context.Context, snap domain.Snapshot) error {
	msg, err := serializeToMessage(snap)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write snapshot %s: %w", snap.ID, err)
	}
	w.metrics.SnapshotsProduced.Inc()
	return nil
}

// Run publishes every snapshot received on snapshots until ctx is cancelled
// or the channel is closed. Publish failures are logged; the next snapshot
// supersedes the lost one.
func (w *Writer) Run(ctx context.Context, snapshots <-chan domain.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			if err := w.Publish(ctx, snap); err != nil {
				if ctx.Err() != nil {
					return
				}
				w.logger.Error("publish snapshot failed", "snapshot", snap.ID, "error", err)
				continue
			}
			w.logger.Debug("snapshot published", "snapshot", snap.ID, "total", snap.Total)
		}
	}
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a Snapshot into a Kafka message keyed by the
// snapshot ID.
func serializeToMessage(snap domain.Snapshot) (kafkago.Message, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize snapshot: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(snap.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "total", Value: []byte(strconv.Itoa(snap.Total))},
			{Key: "updated_at", Value: []byte(snap.UpdatedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
