package kafka

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer читает топик в consumer group и коммитит offset только после
// успешного handler'а: доставка at-least-once.
type Consumer struct {
	r     messageReader
	topic string

	fetched   atomic.Int64
	committed atomic.Int64
	lastOffs  atomic.Int64
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
		StartOffset:       kafka.FirstOffset,
		MaxWait:           time.Second,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
	}
	c := newConsumerWithReader(kafka.NewReader(cfg))
	c.topic = topic
	return c
}

func newConsumerWithReader(r messageReader) *Consumer {
	c := &Consumer{r: r}
	c.lastOffs.Store(-1)
	return c
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

type ConsumerStats struct {
	Topic           string `json:"topic,omitempty"`
	Fetched         int64  `json:"fetched"`
	Committed       int64  `json:"committed"`
	LastCommittedAt int64  `json:"lastCommittedOffset"`
}

func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Topic:           c.topic,
		Fetched:         c.fetched.Load(),
		Committed:       c.committed.Load(),
		LastCommittedAt: c.lastOffs.Load(),
	}
}

// Consume блокируется до отмены ctx (тогда возвращает nil) или до первой ошибки.
// Ошибка handler'а возвращается как есть, сообщение не коммитится.
func (c *Consumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "fetch message")
		}
		c.fetched.Add(1)

		if err := handler(msg.Key, msg.Value); err != nil {
			slog.Warn("kafka handler failed, offset not committed",
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err.Error())
			return err
		}
		if err := c.r.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrapf(err, "commit offset %d", msg.Offset)
		}
		c.committed.Add(1)
		c.lastOffs.Store(msg.Offset)
	}
}
