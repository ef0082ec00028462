package domain

import "time"

// Route names a relay transition.
type Route string

const (
	RouteOpenForward     Route = "open-ticket-forward"
	RouteOpenBackward    Route = "open-ticket-backward"
	RouteCommentForward  Route = "comment-forward"
	RouteCommentBackward Route = "comment-backward"
	RouteCloseForward    Route = "close-forward"
	RouteCloseBackward   Route = "close-backward"
	RouteAccountReassign Route = "account-reassign"
)

// DeliveryOutcome is the terminal state of a relayed webhook. Skipped deliveries were accepted
// without touching either system.
type DeliveryOutcome string

const (
	OutcomeForwarded DeliveryOutcome = "forwarded"
	OutcomeFailed    DeliveryOutcome = "failed"
	OutcomePartial   DeliveryOutcome = "partial"
	OutcomeSkipped   DeliveryOutcome = "skipped"
)

// Delivery is one audit row per relayed webhook.
type Delivery struct {
	ID           string
	Route        Route
	TicketNumber string
	RequestID    string
	Outcome      DeliveryOutcome
	ErrorCode    string
	ErrorMessage string
	Duration     time.Duration
	CreatedAt    time.Time
}
