package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/ride-hazard-service/internal/config"
)

// Reader consumes change signals. It implements aggregator.SignalSource.
//
// The offset of a signal is committed on the following Next call, after the
// caller has acted on it.
type Reader struct {
	reader *kafkago.Reader
	logger *slog.Logger

	mu      sync.Mutex
	pending *kafkago.Message
}

// NewReader creates a consumer-group reader on the signal topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       cfg.KafkaSignalTopic,
		GroupID:     cfg.KafkaGroupID,
		StartOffset: kafkago.LastOffset,
		MinBytes:    1,
		MaxBytes:    1 << 20,
	})
	return &Reader{reader: r, logger: logger}
}

// Next blocks until a signal arrives and returns its reason: the message
// value, falling back to the key.
func (r *Reader) Next(ctx context.Context) (string, error) {
	if err := r.commitPending(ctx); err != nil {
		return "", err
	}

	msg, err := r.reader.FetchMessage(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch signal: %w", err)
	}

	r.mu.Lock()
	r.pending = &msg
	r.mu.Unlock()

	r.logger.Debug("change signal received",
		"partition", msg.Partition,
		"offset", msg.Offset,
	)
	return signalReason(msg), nil
}

func (r *Reader) commitPending(ctx context.Context) error {
	r.mu.Lock()
	msg := r.pending
	r.mu.Unlock()
	if msg == nil {
		return nil
	}
	if err := r.reader.CommitMessages(ctx, *msg); err != nil {
		return fmt.Errorf("commit signal offset %d: %w", msg.Offset, err)
	}
	r.mu.Lock()
	if r.pending == msg {
		r.pending = nil
	}
	r.mu.Unlock()
	return nil
}

// Close commits the last handled signal and closes the consumer.
func (r *Reader) Close() error {
	if err := r.commitPending(context.Background()); err != nil {
		r.logger.Warn("commit on close failed", "error", err)
	}
	return r.reader.Close()
}

func signalReason(msg kafkago.Message) string {
	if len(msg.Value) > 0 && len(msg.Value) <= 128 {
		return string(msg.Value)
	}
	if len(msg.Key) > 0 {
		return string(msg.Key)
	}
	return "kafka"
}
