// Package stream mirrors pipeline events to Kafka for external consumers.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ToolGate/ToolGate/internal/config"
	"github.com/ToolGate/ToolGate/internal/pipeline"
)

const produceTimeout = 5 * time.Second

// Mirror publishes pipeline events to a Kafka topic, keyed by correlation
// id so all events of one turn land on the same partition. Publishing is
// fire-and-forget: failures are logged, never propagated.
type Mirror struct {
	writer *kafka.Writer
}

// NewMirror creates a mirror from stream config. Returns nil when the
// mirror is disabled or has no brokers.
func NewMirror(cfg config.StreamConfig) *Mirror {
	if !cfg.Enabled || cfg.Brokers == "" {
		return nil
	}
	return &Mirror{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(strings.Split(cfg.Brokers, ",")...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
		},
	}
}

// Publish mirrors one event.
func (m *Mirror) Publish(ctx context.Context, ev pipeline.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("Event encode failed", "type", ev.Type, "error", err)
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, produceTimeout)
	defer cancel()
	if err := m.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(ev.CorrelationID),
		Value: payload,
		Time:  ev.Ts,
	}); err != nil {
		slog.Warn("Event mirror write failed", "type", ev.Type, "error", err)
	}
}

// Close flushes and closes the underlying writer.
func (m *Mirror) Close() error {
	return m.writer.Close()
}
