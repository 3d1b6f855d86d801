package app

import (
	"context"
	"fmt"
	"time"

	"reminder_engine/internal/domain/reminder"

	"github.com/sirupsen/logrus"
)

// Publisher puts reminder batch events onto the message bus.
// Delivery durability is the bus's concern; the engine publishes once and moves on.
type Publisher interface {
	Publish(ctx context.Context, topic string, event reminder.Event) error
}

// Emitter publishes at most one batch event per sweep.
type Emitter struct {
	publisher Publisher
	topic     string
	logger    logrus.FieldLogger
}

func NewEmitter(publisher Publisher, topic string, logger logrus.FieldLogger) *Emitter {
	return &Emitter{publisher: publisher, topic: topic, logger: logger}
}

// Emit publishes the batch for tick. With no recipients it does nothing and reports false.
func (e *Emitter) Emit(ctx context.Context, tick time.Time, recipients []reminder.Recipient, subject, body string) (bool, error) {
	if len(recipients) == 0 {
		return false, nil
	}
	batch := reminder.Batch{
		TickTimestampUTC: tick.UTC(),
		Recipients:       recipients,
		Subject:          subject,
		Body:             body,
	}
	if err := e.publisher.Publish(ctx, e.topic, batch.Event()); err != nil {
		return false, fmt.Errorf("%w: topic %s: %w", reminder.ErrPublish, e.topic, err)
	}
	e.logger.WithFields(logrus.Fields{
		"tick":       batch.TickTimestampUTC.Format(time.RFC3339),
		"topic":      e.topic,
		"recipients": len(recipients),
	}).Info("Reminder batch published")
	return true, nil
}
