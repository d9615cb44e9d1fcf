package kafkax

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// Message is one event to publish. The topic name equals the event type.
type Message struct {
	Key   string
	Value []byte
	Meta  EventMeta
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string) *Producer {
	return &Producer{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}}
}

// Publish writes msgs synchronously; ctx carries the trace to propagate.
func (p *Producer) Publish(ctx context.Context, msgs ...Message) error {
	out := make([]kafka.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, kafka.Message{
			Topic:   m.Meta.EventType,
			Key:     []byte(m.Key),
			Value:   m.Value,
			Headers: InjectTraceHeaders(ctx, m.Meta.Headers()),
		})
	}
	return p.writer.WriteMessages(ctx, out...)
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
