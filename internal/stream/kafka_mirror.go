package stream

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/tradevault/marketpulse/internal/config"
	"github.com/tradevault/marketpulse/pkg/models"
)

// ErrClosed is returned when subscribing after Close.
var ErrClosed = errors.New("stream: redistributor closed")

// KafkaMirror copies every published tick to a Kafka topic as an audit and
// replay sink. It is strictly best-effort: a failing broker never affects
// the Redis fan-out path.
type KafkaMirror struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewKafkaMirror creates a mirror, or nil when no brokers are configured.
func NewKafkaMirror(cfg config.KafkaConfig, logger *zap.Logger) *KafkaMirror {
	if len(cfg.Brokers) == 0 {
		return nil
	}
	topic := cfg.Topic
	if topic == "" {
		topic = "market.ticks"
	}
	return &KafkaMirror{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
			Async:    true,
		},
		logger: logger,
	}
}

// Publish mirrors one message, keyed by symbol so per-symbol ordering is
// preserved within a partition.
func (m *KafkaMirror) Publish(ctx context.Context, msg models.StreamMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := m.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Symbol),
		Value: data,
	}); err != nil {
		m.logger.Debug("kafka mirror publish failed", zap.String("symbol", msg.Symbol), zap.Error(err))
	}
}

// Close flushes and closes the writer.
func (m *KafkaMirror) Close() error {
	return m.writer.Close()
}
