package bus

import (
	"context"
	"fmt"

	"reminder_engine/internal/domain/reminder"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher publishes events on a Redis pub/sub channel.
type RedisPublisher struct {
	client redisPublisher
	logger logrus.FieldLogger
}

func NewRedisPublisher(client redis.UniversalClient, logger logrus.FieldLogger) *RedisPublisher {
	return &RedisPublisher{client: client, logger: logger}
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, event reminder.Event) error {
	data, err := encode(event)
	if err != nil {
		return err
	}
	receivers, err := p.client.Publish(ctx, topic, data).Result()
	if err != nil {
		return fmt.Errorf("redis publish to %s: %w", topic, err)
	}
	if receivers == 0 {
		p.logger.WithFields(logrus.Fields{
			"channel":    topic,
			"message_id": MessageID(event),
		}).Warn("Reminder batch published with no subscribers on channel")
	}
	return nil
}
