package dto

import (
	"bytes"
	"encoding/json"
	"strings"
)

// FlexString accepts a JSON string or number. Webhook templates send ids either way.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// TicketFields is the Ticket object of on-premise notifications.
type TicketFields struct {
	TicketNumber FlexString `json:"TicketNumber" validate:"required"`
	Title        string     `json:"Title"`
	Priority     string     `json:"Priority"`
	State        string     `json:"State"`
	Owner        string     `json:"Owner"`
	CustomerUser string     `json:"CustomerUser"`
}

// ArticleFields is the Article object of on-premise notifications.
type ArticleFields struct {
	Subject string `json:"Subject"`
	From    string `json:"From"`
	Body    string `json:"Body"`
}

// TicketWebhook is sent by the on-premise side when a ticket is created or gets an article.
type TicketWebhook struct {
	Ticket  TicketFields  `json:"Ticket"`
	Article ArticleFields `json:"Article"`
}

// RequestRef carries the service-desk request id in Article.Subject.
type RequestRef struct {
	Subject              FlexString `json:"Subject" validate:"required"`
	IsVisibleForCustomer *int       `json:"IsVisibleForCustomer"`
	MimeType             string     `json:"MimeType"`
	Charset              string     `json:"Charset"`
}

// NotificationWebhook is sent by the service desk when a notification is added.
type NotificationWebhook struct {
	TicketNumber string     `json:"TicketNumber" validate:"required"`
	Article      RequestRef `json:"Article"`
}

// PendingTime mirrors the on-premise pending time object.
type PendingTime struct {
	Diff FlexString `json:"Diff"`
}

// ResolutionTicket carries optional ticket overrides of a resolution webhook.
type ResolutionTicket struct {
	PendingTime *PendingTime `json:"PendingTime"`
}

// ResolutionWebhook is sent by the service desk when a request is resolved.
type ResolutionWebhook struct {
	TicketNumber string           `json:"TicketNumber" validate:"required"`
	Article      RequestRef       `json:"Article"`
	Ticket       ResolutionTicket `json:"Ticket"`
	UserLogin    string           `json:"UserLogin"`
	Password     string           `json:"Password"`
}

// ClosedTicketWebhook is sent by the on-premise side when a ticket is closed. The number may sit at
// the top level or inside Ticket.
type ClosedTicketWebhook struct {
	TicketNumber FlexString `json:"TicketNumber"`
	Ticket       *struct {
		TicketNumber FlexString `json:"TicketNumber"`
	} `json:"Ticket"`
}

// Number returns whichever ticket number was sent.
func (w ClosedTicketWebhook) Number() string {
	if w.TicketNumber != "" {
		return w.TicketNumber.String()
	}
	if w.Ticket != nil {
		return w.Ticket.TicketNumber.String()
	}
	return ""
}

// TicketCreateWebhook is the TicketCreate-shaped payload the service desk sends for a new request.
type TicketCreateWebhook struct {
	Ticket struct {
		Title string `json:"Title" validate:"required"`
	} `json:"Ticket"`
	Article struct {
		Subject FlexString `json:"Subject" validate:"required"`
	} `json:"Article"`
}

// NamedRef is an {id, name} reference in service-desk payloads.
type NamedRef struct {
	ID    FlexString `json:"id"`
	Name  string     `json:"name"`
	Email string     `json:"email_id"`
}

// ServiceRequestWebhook is the native service-desk request payload.
type ServiceRequestWebhook struct {
	Request struct {
		ID          FlexString `json:"id" validate:"required"`
		Subject     string     `json:"subject" validate:"required"`
		Description string     `json:"description"`
		Requester   NamedRef   `json:"requester"`
		Priority    NamedRef   `json:"priority"`
		Status      NamedRef   `json:"status"`
	} `json:"request"`
}

// AccountReassignWebhook asks for a request to be moved to the configured account.
type AccountReassignWebhook struct {
	Request struct {
		MSPID FlexString `json:"MSPID" validate:"required"`
	} `json:"request"`
}
