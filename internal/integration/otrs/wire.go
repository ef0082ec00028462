package otrs

import "github.com/spec-kit/helpdesk-relay/internal/domain"

type credentials struct {
	UserLogin string `json:"UserLogin"`
	Password  string `json:"Password"`
}

type ticketCreateBody struct {
	credentials
	Ticket  ticketFields `json:"Ticket"`
	Article article      `json:"Article"`
}

type ticketUpdateBody struct {
	credentials
	TicketNumber string       `json:"TicketNumber"`
	Ticket       *ticketState `json:"Ticket,omitempty"`
	Article      article      `json:"Article"`
}

type ticketFields struct {
	Title        string `json:"Title"`
	Queue        string `json:"Queue"`
	State        string `json:"State"`
	Priority     string `json:"Priority"`
	Type         string `json:"Type,omitempty"`
	CustomerUser string `json:"CustomerUser"`
}

type ticketState struct {
	State       string              `json:"State,omitempty"`
	PendingTime *domain.PendingTime `json:"PendingTime,omitempty"`
}

type article struct {
	Subject              string `json:"Subject"`
	Body                 string `json:"Body"`
	From                 string `json:"From,omitempty"`
	ContentType          string `json:"ContentType"`
	MimeType             string `json:"MimeType"`
	Charset              string `json:"Charset"`
	CommunicationChannel string `json:"CommunicationChannel,omitempty"`
	IsVisibleForCustomer int    `json:"IsVisibleForCustomer"`
}
