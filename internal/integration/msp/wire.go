package msp

import "github.com/spec-kit/helpdesk-relay/internal/domain"

// envelope wraps every write: {"request": {...}} or {"notification": {...}}.
type envelope struct {
	Request      *requestBody      `json:"request,omitempty"`
	Notification *notificationBody `json:"notification,omitempty"`
}

type requestBody struct {
	Subject     string           `json:"subject,omitempty"`
	Description string           `json:"description,omitempty"`
	Requester   *domain.NamedRef `json:"requester,omitempty"`
	Mode        *domain.NamedRef `json:"mode,omitempty"`
	Priority    *domain.NamedRef `json:"priority,omitempty"`
	Category    *domain.NamedRef `json:"category,omitempty"`
	Site        *domain.NamedRef `json:"site,omitempty"`
	Account     *domain.NamedRef `json:"account,omitempty"`
	Status      *domain.NamedRef `json:"status,omitempty"`
	ClosureInfo *closureInfo     `json:"closure_info,omitempty"`
}

type closureInfo struct {
	RequesterAckResolution bool             `json:"requester_ack_resolution"`
	RequesterAckComments   string           `json:"requester_ack_comments,omitempty"`
	ClosureComments        string           `json:"closure_comments,omitempty"`
	ClosureCode            *domain.NamedRef `json:"closure_code,omitempty"`
}

type notificationBody struct {
	Subject     string      `json:"subject"`
	Description string      `json:"description"`
	To          []recipient `json:"to"`
	Type        string      `json:"type"`
}

type recipient struct {
	EmailID string `json:"email_id"`
}
