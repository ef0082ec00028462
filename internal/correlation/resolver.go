// Package correlation finds the counterpart of a ticket in the other system.
//
// The only key shared by both systems is the tag embedded in service-desk subjects, so every lookup is a
// linear scan over the candidate list. There is no cache; lookup cost grows with the number of open requests.
package correlation

import (
	"github.com/spec-kit/helpdesk-relay/internal/domain"
	"github.com/spec-kit/helpdesk-relay/internal/mapping"
)

// FindCounterpart returns the first candidate whose subject tag equals ticketNumber.
func FindCounterpart(ticketNumber string, candidates []domain.RequestRecord) (domain.RequestRecord, bool) {
	if ticketNumber == "" {
		return domain.RequestRecord{}, false
	}
	for _, c := range candidates {
		if c.Subject == "" {
			continue
		}
		if tag, ok := mapping.ParseTag(c.Subject); ok && tag == ticketNumber {
			return c, true
		}
	}
	return domain.RequestRecord{}, false
}

// LatestNotification returns the notification with the greatest sent time. Ties keep the earliest in the list.
func LatestNotification(notifications []domain.NotificationRecord) (domain.NotificationRecord, bool) {
	if len(notifications) == 0 {
		return domain.NotificationRecord{}, false
	}
	latest := notifications[0]
	for _, n := range notifications[1:] {
		if n.SentTime > latest.SentTime {
			latest = n
		}
	}
	return latest, true
}
