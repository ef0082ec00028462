package events

import (
	"time"

	"github.com/spec-kit/helpdesk-relay/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventRelayForwarded EventType = "relay_forwarded"
	EventRelayFailed    EventType = "relay_failed"
	EventRelayPartial   EventType = "relay_partial"
	EventRelaySkipped   EventType = "relay_skipped"
)

// RelayTypes lists every relay outcome event.
func RelayTypes() []EventType {
	return []EventType{EventRelayForwarded, EventRelayFailed, EventRelayPartial, EventRelaySkipped}
}

// TypeFor maps a delivery outcome to its event type.
func TypeFor(outcome domain.DeliveryOutcome) EventType {
	switch outcome {
	case domain.OutcomeForwarded:
		return EventRelayForwarded
	case domain.OutcomePartial:
		return EventRelayPartial
	case domain.OutcomeSkipped:
		return EventRelaySkipped
	default:
		return EventRelayFailed
	}
}

// Event represents a relay outcome emitted by the relay service.
type Event struct {
	ID           string       `json:"id"`
	Type         EventType    `json:"type"`
	TicketNumber string       `json:"ticket_number,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
	Payload      RelayPayload `json:"payload"`
}

// RelayPayload describes one relayed webhook.
type RelayPayload struct {
	Route        domain.Route  `json:"route"`
	RequestID    string        `json:"request_id,omitempty"`
	ErrorCode    string        `json:"error_code,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// Delivery converts the event into its audit row.
func (e Event) Delivery() domain.Delivery {
	return domain.Delivery{
		ID:           e.ID,
		Route:        e.Payload.Route,
		TicketNumber: e.TicketNumber,
		RequestID:    e.Payload.RequestID,
		Outcome:      outcomeFor(e.Type),
		ErrorCode:    e.Payload.ErrorCode,
		ErrorMessage: e.Payload.ErrorMessage,
		Duration:     e.Payload.Duration,
		CreatedAt:    e.Timestamp,
	}
}

func outcomeFor(t EventType) domain.DeliveryOutcome {
	switch t {
	case EventRelayForwarded:
		return domain.OutcomeForwarded
	case EventRelayPartial:
		return domain.OutcomePartial
	case EventRelaySkipped:
		return domain.OutcomeSkipped
	default:
		return domain.OutcomeFailed
	}
}
