package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Producer struct {
	w messageWriter
}

func NewProducer(brokers []string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			WriteTimeout:           10 * time.Second,
			AllowAutoTopicCreation: true,
		},
	}
}

func newProducerWithWriter(w messageWriter) *Producer {
	return &Producer{w: w}
}

// Publish пишет одно сообщение. Ключом служит трек-номер, чтобы события
// одного отправления попадали в одну партицию и сохраняли порядок.
func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte) error {
	if err := p.w.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
	}); err != nil {
		return errors.Wrap(err, "kafka publish")
	}
	return nil
}

func (p *Producer) PublishJSON(ctx context.Context, topic, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal message")
	}
	return p.Publish(ctx, topic, []byte(key), b)
}

func (p *Producer) Close() error {
	if c, ok := p.w.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
