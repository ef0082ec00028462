package domain

// NamedRef is the {id, name} pair used throughout the service-desk API.
type NamedRef struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Color string `json:"color,omitempty"`
	Email string `json:"email_id,omitempty"`
}

// RequestRecord is a service-desk request. Subject embeds the on-premise tag.
type RequestRecord struct {
	ID          string
	Subject     string
	Description string
	RequesterID string
	PriorityID  string
	CategoryID  string
	SiteID      string
	AccountID   string
	StatusName  string
}

// RequestCreatePayload is the body of a service-desk request creation.
type RequestCreatePayload struct {
	Subject     string
	Description string
	Requester   NamedRef
	Mode        NamedRef
	Priority    NamedRef
	Category    NamedRef
	Site        NamedRef
	Account     NamedRef
	Status      NamedRef
}

// RequestUpdate carries the mutable request fields the relay touches. Empty fields are left alone.
type RequestUpdate struct {
	Subject        string
	Account        *NamedRef
	RequesterName  string
	RequesterEmail string
}

// NotificationRecord is a reply or comment on a service-desk request.
type NotificationRecord struct {
	ID             string
	Subject        string
	Description    string
	SentTime       int64
	RecipientEmail string
}

// NotificationPayload is a reply posted to a service-desk request.
type NotificationPayload struct {
	Subject     string
	Description string
	To          []string
	Type        string
}

// ResolutionRecord is the closure text of a service-desk request.
type ResolutionRecord struct {
	Content     string
	SubmittedOn string
}

// ClosurePayload closes a service-desk request.
type ClosurePayload struct {
	RequesterAckResolution bool
	RequesterAckComments   string
	ClosureComments        string
	ClosureCode            string
}
