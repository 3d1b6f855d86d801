package bus

import (
	"context"

	"reminder_engine/internal/domain/reminder"

	"github.com/sirupsen/logrus"
)

// LogPublisher writes events to the log instead of a bus. Used for dry runs and local setups.
type LogPublisher struct {
	logger logrus.FieldLogger
}

func NewLogPublisher(logger logrus.FieldLogger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, topic string, event reminder.Event) error {
	p.logger.WithFields(logrus.Fields{
		"topic":      topic,
		"message_id": MessageID(event),
		"tick":       event.TickTimestampUTC,
		"recipients": event.Recipients,
		"subject":    event.Subject,
	}).Info("Reminder batch (not sent)")
	return nil
}
