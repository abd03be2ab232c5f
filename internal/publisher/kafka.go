package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"telemetry_relay/internal/models"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of kafka.Writer used by the publisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka streams device status events to a topic, keyed by user so that
// one user's events stay ordered within a partition.
type Kafka struct {
	writer messageWriter
}

func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (k *Kafka) PublishStatus(ctx context.Context, e models.DeviceEvent) error {
	v, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}
	at := e.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.Itoa(e.UserID)),
		Value: v,
		Time:  at,
	})
	if err != nil {
		return fmt.Errorf("write status event: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

// Nop discards status events. Used when no brokers are configured.
type Nop struct{}

func (Nop) PublishStatus(context.Context, models.DeviceEvent) error { return nil }
func (Nop) Close() error                                            { return nil }
