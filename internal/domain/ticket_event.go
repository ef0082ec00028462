package domain

// TicketEvent is the ticket side of an on-premise notification (ticket created, article added, ticket closed).
type TicketEvent struct {
	TicketNumber  string
	Title         string
	Priority      string
	State         string
	Owner         string
	CustomerUser  string
	CustomerEmail string
	Subject       string
	BodyText      string
}

// TicketArticle is an article appended to an on-premise ticket.
type TicketArticle struct {
	Subject              string
	Body                 string
	From                 string
	MimeType             string
	Charset              string
	CommunicationChannel string
	IsVisibleForCustomer int
}

// TicketCreate is a new on-premise ticket with its first article.
type TicketCreate struct {
	Title        string
	Queue        string
	State        string
	Priority     string
	Type         string
	CustomerUser string
	Article      TicketArticle
}

// PendingTime mirrors the GenericInterface pending time structure.
type PendingTime struct {
	Diff string `json:"Diff,omitempty"`
}

// TicketUpdate is an article (and optional state change) posted to an existing on-premise ticket.
type TicketUpdate struct {
	TicketNumber string
	State        string
	PendingTime  *PendingTime
	Article      TicketArticle
	UserLogin    string
	Password     string
}

// TicketCreated is the on-premise answer to a TicketCreate call.
type TicketCreated struct {
	TicketID     string
	TicketNumber string
	ArticleID    string
}
