package reminder

import "time"

// Recipient is a deduplicated batch member.
type Recipient struct {
	SubscriberID string
	Contact      string
}

// Batch is produced and discarded within a single sweep.
type Batch struct {
	TickTimestampUTC time.Time
	Recipients       []Recipient
	Subject          string
	Body             string
}

// Event is the wire form of a batch published to the message bus.
type Event struct {
	TickTimestampUTC string   `json:"tick_timestamp_utc"`
	Recipients       []string `json:"recipients"`
	Subject          string   `json:"subject"`
	HTMLContent      string   `json:"html_content"`
}

// Event converts the batch into its bus representation.
func (b Batch) Event() Event {
	contacts := make([]string, 0, len(b.Recipients))
	for _, r := range b.Recipients {
		contacts = append(contacts, r.Contact)
	}
	return Event{
		TickTimestampUTC: b.TickTimestampUTC.UTC().Format(time.RFC3339),
		Recipients:       contacts,
		Subject:          b.Subject,
		HTMLContent:      b.Body,
	}
}
