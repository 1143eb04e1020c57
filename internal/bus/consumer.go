package bus

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/hansol-dev/marketpay/internal/observability"
)

// ErrDuplicateEvent is returned by handlers when the effect of a message was
// already applied. The loop acknowledges such messages as processed: with
// at-least-once delivery the desired state already holds.
var ErrDuplicateEvent = errors.New("duplicate event delivery")

// Message is the handler-facing view of a bus record.
type Message struct {
	Topic string
	Key   string
	Value []byte
}

// Handler processes one message. A nil return acknowledges the message;
// ErrDuplicateEvent acknowledges it as an already-applied duplicate; any
// other error leaves it unacknowledged for redelivery.
type Handler func(ctx context.Context, msg Message) error

// ConsumerLoop drives a kafka reader against a single handler.
type ConsumerLoop struct {
	reader  *kafka.Reader
	handler Handler
	topic   string
}

func NewConsumerLoop(brokers []string, groupID, topic string, handler Handler) *ConsumerLoop {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        groupID,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // explicit commits only
		StartOffset:    kafka.FirstOffset,
		MaxWait:        500 * time.Millisecond,
	})
	return &ConsumerLoop{reader: reader, handler: handler, topic: topic}
}

// Run blocks until the context is canceled.
func (c *ConsumerLoop) Run(ctx context.Context) {
	zap.L().Info("consumer loop starting", zap.String("topic", c.topic))
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				zap.L().Info("consumer loop stopped", zap.String("topic", c.topic))
				return
			}
			zap.L().Error("fetch message failed", zap.String("topic", c.topic), zap.Error(err))
			continue
		}

		handlerErr := c.handler(ctx, Message{Topic: msg.Topic, Key: string(msg.Key), Value: msg.Value})
		switch {
		case handlerErr == nil:
			observability.IncrementConsumerMessage(c.topic, "ok")
		case errors.Is(handlerErr, ErrDuplicateEvent):
			observability.IncrementConsumerMessage(c.topic, "duplicate")
			zap.L().Info("duplicate delivery discarded",
				zap.String("topic", c.topic),
				zap.String("key", string(msg.Key)),
			)
		default:
			// Leave the offset uncommitted so the broker redelivers.
			observability.IncrementConsumerMessage(c.topic, "error")
			zap.L().Error("message handling failed, leaving unacknowledged",
				zap.String("topic", c.topic),
				zap.String("key", string(msg.Key)),
				zap.Error(handlerErr),
			)
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			zap.L().Error("commit failed", zap.String("topic", c.topic), zap.Error(err))
		}
	}
}

func (c *ConsumerLoop) Close() error {
	return c.reader.Close()
}
