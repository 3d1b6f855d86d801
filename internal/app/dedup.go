package app

import "reminder_engine/internal/domain/reminder"

// Match is a schedule that fired in the current tick window.
type Match struct {
	SubscriberID string
	Contact      string
	Kind         reminder.Kind
}

// Merge folds the per-kind match sets into one recipient list keyed by subscriber identity.
// A subscriber matched by several kinds (or several schedules) appears once; the first
// occurrence wins, so the output order follows the order of the input sets.
func Merge(sets ...[]Match) []reminder.Recipient {
	seen := make(map[string]struct{})
	var recipients []reminder.Recipient
	for _, set := range sets {
		for _, m := range set {
			if _, dup := seen[m.SubscriberID]; dup {
				continue
			}
			seen[m.SubscriberID] = struct{}{}
			recipients = append(recipients, reminder.Recipient{SubscriberID: m.SubscriberID, Contact: m.Contact})
		}
	}
	return recipients
}
