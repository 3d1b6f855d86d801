// Package bus publishes reminder batch events to the message bus backends.
package bus

import (
	"encoding/json"
	"fmt"

	"reminder_engine/internal/domain/reminder"

	"github.com/google/uuid"
)

// MessageID is stable for a tick, so a batch re-published for the same tick (by a retry or a
// second replica) carries the same id and can be dropped by the consumer or by JetStream.
func MessageID(event reminder.Event) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("reminder-batch:"+event.TickTimestampUTC)).String()
}

func encode(event reminder.Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode reminder event: %w", err)
	}
	return data, nil
}
