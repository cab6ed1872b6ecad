package engine

import (
	"context"
	"time"

	kafka "github.com/segmentio/kafka-go"
)

// KafkaBroker backs a Broker with a Kafka topic, for deployments that run
// the engine as more than one process sharing a single prompt queue /
// voting pool (spec.md §4.3: "a shared broker for distributed
// deployments"). Pop uses a single-partition topic so FIFO ordering holds;
// RemoveSpecific is a documented no-op — Kafka has no random-access delete,
// which spec.md §4.3 explicitly allows ("best-effort ... duplicates are
// defended at dequeue time").
type KafkaBroker struct {
	brokers []string
	topic   string
	writer  *kafka.Writer
	reader  *kafka.Reader
}

func NewKafkaBroker(brokers []string, topic, groupID string) *KafkaBroker {
	return &KafkaBroker{
		brokers: brokers,
		topic:   topic,
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 1 << 16,
		}),
	}
}

func (b *KafkaBroker) Push(ctx context.Context, item string) error {
	return b.writer.WriteMessages(ctx, kafka.Message{Value: []byte(item)})
}

// Pop reads with a short bound so a caller polling an empty queue gets
// ok=false instead of blocking indefinitely.
func (b *KafkaBroker) Pop(ctx context.Context) (string, bool, error) {
	readCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	msg, err := b.reader.ReadMessage(readCtx)
	if err != nil {
		if readCtx.Err() != nil {
			return "", false, nil
		}
		return "", false, err
	}
	return string(msg.Value), true, nil
}

func (b *KafkaBroker) RemoveSpecific(ctx context.Context, item string) error {
	return nil
}

// Len opens a direct connection to report the high/low watermark gap for
// partition 0 — an estimate, since consumer lag (not topic size) is what
// actually matters once multiple partitions are in play, but sufficient
// for the single-partition topology this broker assumes.
func (b *KafkaBroker) Len(ctx context.Context) (int, error) {
	if len(b.brokers) == 0 {
		return 0, nil
	}
	conn, err := kafka.DialLeader(ctx, "tcp", b.brokers[0], b.topic, 0)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	first, last, err := conn.ReadOffsets()
	if err != nil {
		return 0, err
	}
	return int(last - first), nil
}

func (b *KafkaBroker) Close() error {
	_ = b.writer.Close()
	return b.reader.Close()
}
