// Package mapping converts ticket fields between the on-premise ticketing system and the service desk.
package mapping

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spec-kit/helpdesk-relay/internal/config"
	"github.com/spec-kit/helpdesk-relay/internal/domain"
	"github.com/spec-kit/helpdesk-relay/internal/sanitize"
	"github.com/spec-kit/helpdesk-relay/pkg/util/errorutil"
)

// FallbackPolicy decides what happens to absent inbound fields.
type FallbackPolicy string

const (
	// PolicyPlaceholder substitutes fixed fallback text.
	PolicyPlaceholder FallbackPolicy = "placeholder"
	// PolicyReject fails the delivery with a validation error.
	PolicyReject FallbackPolicy = "reject"
)

// Fallback texts used under PolicyPlaceholder.
const (
	FallbackTitle        = "Sem título"
	FallbackSubject      = "Sem assunto"
	FallbackOwner        = "Desconhecido"
	FallbackPriority     = "Sem prioridade"
	FallbackState        = "Sem estado"
	FallbackCustomerUser = "Desconhecido"
	FallbackEmail        = "email@desconhecido.com"
	FallbackBody         = "Sem corpo"
	FallbackUpdate       = "Atualização de chamado"
	ClosingSubject       = "Encerramento do chamado"
	ClosingBody          = "Chamado encerrado pelo MSP."
)

const (
	detailsHeader = "### Informações do Ticket Original (OTRS)"
	detailsSep    = "\n\n---\n" + detailsHeader + "\n"

	labelTicket   = "Ticket OTRS"
	labelCustomer = "Solicitante (CustomerUser)"
	labelEmail    = "Email do Solicitante"
	labelPriority = "Prioridade OTRS"
	labelState    = "Estado OTRS"
	labelOwner    = "Proprietário OTRS"
)

var detailLine = regexp.MustCompile(`(?m)^\* \*\*(.+?):\*\* (.*)$`)

// Options configures a Mapper.
type Options struct {
	Defaults config.MappingConfig
	OTRS     config.OTRSConfig
	Policy   FallbackPolicy
	// Body cleans bodies travelling to the service desk. Defaults to sanitize.HTML().
	Body *sanitize.Pipeline
	// Message cleans replies travelling to the on-premise side. Defaults to sanitize.Message().
	Message *sanitize.Pipeline
}

// Mapper is a pure field translator; it performs no I/O.
type Mapper struct {
	defaults config.MappingConfig
	otrs     config.OTRSConfig
	policy   FallbackPolicy
	body     *sanitize.Pipeline
	message  *sanitize.Pipeline
	closing  *sanitize.Pipeline
}

// NewMapper builds a Mapper.
func NewMapper(opts Options) *Mapper {
	if opts.Policy == "" {
		opts.Policy = PolicyPlaceholder
	}
	if opts.Body == nil {
		opts.Body = sanitize.HTML()
	}
	if opts.Message == nil {
		opts.Message = sanitize.Message()
	}
	return &Mapper{
		defaults: opts.Defaults,
		otrs:     opts.OTRS,
		policy:   opts.Policy,
		body:     opts.Body,
		message:  opts.Message,
		closing:  opts.Body.WithPlaceholder(ClosingBody),
	}
}

// Policy returns the active fallback policy.
func (m *Mapper) Policy() FallbackPolicy {
	return m.policy
}

// RequireTicketNumber validates a ticket number that will be embedded in a tag.
func RequireTicketNumber(field, n string) (string, error) {
	n = strings.TrimSpace(n)
	if n == "" {
		return "", errorutil.NewValidationError(field, "ticket number is required")
	}
	if !ValidTicketNumber(n) {
		return "", errorutil.NewValidationError(field, "ticket number must be numeric")
	}
	return n, nil
}

// ToRequestCreate maps an on-premise ticket into a service-desk request.
func (m *Mapper) ToRequestCreate(ev domain.TicketEvent) (domain.RequestCreatePayload, error) {
	number, err := RequireTicketNumber("Ticket.TicketNumber", ev.TicketNumber)
	if err != nil {
		return domain.RequestCreatePayload{}, err
	}
	ev.TicketNumber = number

	ev, err = m.fill(ev)
	if err != nil {
		return domain.RequestCreatePayload{}, err
	}

	d := m.defaults
	return domain.RequestCreatePayload{
		Subject:     Subject(number, ev.Title),
		Description: m.describe(ev),
		Requester:   domain.NamedRef{ID: d.RequesterID, Name: d.RequesterName},
		Mode:        domain.NamedRef{ID: d.ModeID, Name: d.ModeName},
		Priority:    domain.NamedRef{ID: d.PriorityID, Name: d.PriorityName, Color: d.PriorityColor},
		Category:    domain.NamedRef{ID: d.CategoryID, Name: d.CategoryName},
		Site:        domain.NamedRef{ID: d.SiteID, Name: d.SiteName},
		Account:     domain.NamedRef{ID: d.AccountID, Name: d.AccountName},
		Status:      domain.NamedRef{Name: d.StatusName},
	}, nil
}

// ToTicketEvent maps a service-desk request back into ticket fields. Values found in the
// details block written by ToRequestCreate win over the request's own references.
func (m *Mapper) ToTicketEvent(p domain.RequestCreatePayload) domain.TicketEvent {
	number, _ := ParseTag(p.Subject)
	ev := domain.TicketEvent{
		TicketNumber:  number,
		Title:         TitleFromSubject(p.Subject),
		Priority:      p.Priority.Name,
		State:         p.Status.Name,
		CustomerUser:  p.Requester.Name,
		CustomerEmail: p.Requester.Email,
		Subject:       p.Subject,
	}

	body, details, found := strings.Cut(p.Description, detailsSep)
	ev.BodyText = strings.TrimSpace(body)
	if !found {
		return ev
	}
	for _, match := range detailLine.FindAllStringSubmatch(details, -1) {
		value := strings.TrimSpace(match[2])
		switch match[1] {
		case labelTicket:
			if ev.TicketNumber == "" {
				ev.TicketNumber = value
			}
		case labelCustomer:
			ev.CustomerUser = value
		case labelEmail:
			ev.CustomerEmail = value
		case labelPriority:
			ev.Priority = value
		case labelState:
			ev.State = value
		case labelOwner:
			ev.Owner = value
		}
	}
	return ev
}

// ToReply maps an on-premise article into a reply on the service-desk request requestID.
func (m *Mapper) ToReply(requestID string, ev domain.TicketEvent) (domain.NotificationPayload, error) {
	title := strings.TrimSpace(ev.Title)
	email := strings.TrimSpace(ev.CustomerEmail)
	body := strings.TrimSpace(ev.BodyText)
	if m.policy == PolicyReject {
		if err := requireAll(
			field{"Ticket.Title", title},
			field{"Article.From", email},
			field{"Article.Body", body},
		); err != nil {
			return domain.NotificationPayload{}, err
		}
	}
	title = orDefault(title, FallbackTitle)
	email = orDefault(email, FallbackEmail)

	return domain.NotificationPayload{
		Subject:     fmt.Sprintf("Re: [Request ID : %s] : %s", requestID, title),
		Description: m.body.Clean(body),
		To:          []string{email},
		Type:        "reply",
	}, nil
}

// ToTicketCreate maps a service-desk request into a new on-premise ticket. The article subject carries
// the service-desk request id, the convention the on-premise side uses to reply.
func (m *Mapper) ToTicketCreate(requestID string, ev domain.TicketEvent) (domain.TicketCreate, error) {
	title := strings.TrimSpace(ev.Title)
	if m.policy == PolicyReject {
		if err := requireAll(field{"request.subject", title}, field{"request.description", strings.TrimSpace(ev.BodyText)}); err != nil {
			return domain.TicketCreate{}, err
		}
	}
	o := m.otrs
	customer := orDefault(strings.TrimSpace(ev.CustomerEmail), o.DefaultCustomerUser)
	return domain.TicketCreate{
		Title:        orDefault(title, FallbackTitle),
		Queue:        o.DefaultQueue,
		State:        o.DefaultState,
		Priority:     o.DefaultPriority,
		Type:         o.DefaultType,
		CustomerUser: customer,
		Article: domain.TicketArticle{
			Subject:              requestID,
			Body:                 m.body.Clean(ev.BodyText),
			From:                 o.ArticleFrom,
			MimeType:             "text/plain",
			Charset:              "utf-8",
			CommunicationChannel: "Internal",
			IsVisibleForCustomer: 1,
		},
	}, nil
}

// ToArticleUpdate maps a service-desk notification into an article on ticket ticketNumber.
func (m *Mapper) ToArticleUpdate(ticketNumber string, n domain.NotificationRecord) domain.TicketUpdate {
	return domain.TicketUpdate{
		TicketNumber: ticketNumber,
		Article: domain.TicketArticle{
			Subject:              orDefault(strings.TrimSpace(n.Subject), FallbackUpdate),
			Body:                 m.message.Clean(n.Description),
			From:                 m.otrs.ArticleFrom,
			MimeType:             "text/plain",
			Charset:              "utf-8",
			CommunicationChannel: "Internal",
			IsVisibleForCustomer: 1,
		},
	}
}

// ClosingOverrides are optional values the service-desk webhook may send along with a resolution.
type ClosingOverrides struct {
	UserLogin            string
	Password             string
	PendingDiff          string
	MimeType             string
	Charset              string
	IsVisibleForCustomer *int
}

// ToClosingUpdate maps a service-desk resolution into the closing article and state of ticketNumber.
func (m *Mapper) ToClosingUpdate(ticketNumber string, r domain.ResolutionRecord, o ClosingOverrides) domain.TicketUpdate {
	visible := 1
	if o.IsVisibleForCustomer != nil {
		visible = *o.IsVisibleForCustomer
	}
	return domain.TicketUpdate{
		TicketNumber: ticketNumber,
		State:        m.otrs.ClosedState,
		PendingTime:  &domain.PendingTime{Diff: orDefault(o.PendingDiff, m.otrs.PendingDiff)},
		UserLogin:    o.UserLogin,
		Password:     o.Password,
		Article: domain.TicketArticle{
			Subject:              ClosingSubject,
			Body:                 m.closing.Clean(r.Content),
			From:                 m.otrs.ArticleFrom,
			MimeType:             orDefault(o.MimeType, "text/plain"),
			Charset:              orDefault(o.Charset, "utf-8"),
			CommunicationChannel: "Internal",
			IsVisibleForCustomer: visible,
		},
	}
}

// ToClosure builds the service-desk close action for a ticket closed on the on-premise side.
func (m *Mapper) ToClosure() domain.ClosurePayload {
	return domain.ClosurePayload{
		RequesterAckResolution: true,
		RequesterAckComments:   "Fechamento via integração OTRS",
		ClosureComments:        "Chamado encerrado pelo OTRS",
		ClosureCode:            "success",
	}
}

// ToAccountReassign builds the update moving a request to the configured account and requester.
func (m *Mapper) ToAccountReassign() domain.RequestUpdate {
	d := m.defaults
	return domain.RequestUpdate{
		Account:        &domain.NamedRef{ID: d.ReassignAcctID, Name: d.ReassignAccount},
		RequesterName:  d.ReassignName,
		RequesterEmail: d.ReassignEmail,
	}
}

func (m *Mapper) fill(ev domain.TicketEvent) (domain.TicketEvent, error) {
	ev.Title = strings.TrimSpace(ev.Title)
	ev.CustomerEmail = strings.TrimSpace(ev.CustomerEmail)
	if m.policy == PolicyReject {
		if err := requireAll(
			field{"Ticket.Title", ev.Title},
			field{"Article.Body", strings.TrimSpace(ev.BodyText)},
			field{"Article.From", ev.CustomerEmail},
		); err != nil {
			return ev, err
		}
	}
	ev.Title = orDefault(ev.Title, FallbackTitle)
	ev.Subject = orDefault(ev.Subject, FallbackSubject)
	ev.Owner = orDefault(ev.Owner, FallbackOwner)
	ev.Priority = orDefault(ev.Priority, FallbackPriority)
	ev.State = orDefault(ev.State, FallbackState)
	ev.CustomerUser = orDefault(ev.CustomerUser, FallbackCustomerUser)
	ev.CustomerEmail = orDefault(ev.CustomerEmail, FallbackEmail)
	ev.BodyText = orDefault(strings.TrimSpace(ev.BodyText), FallbackBody)
	return ev, nil
}

func (m *Mapper) describe(ev domain.TicketEvent) string {
	var b strings.Builder
	b.WriteString(m.body.Clean(ev.BodyText))
	b.WriteString(detailsSep)
	for _, kv := range [][2]string{
		{labelTicket, ev.TicketNumber},
		{labelCustomer, ev.CustomerUser},
		{labelEmail, ev.CustomerEmail},
		{labelPriority, ev.Priority},
		{labelState, ev.State},
		{labelOwner, ev.Owner},
	} {
		fmt.Fprintf(&b, "* **%s:** %s\n", kv[0], oneLine(kv[1]))
	}
	return b.String()
}

type field struct {
	name  string
	value string
}

func requireAll(fields ...field) error {
	for _, f := range fields {
		if f.value == "" {
			return errorutil.NewValidationError(f.name, f.name+" is required")
		}
	}
	return nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
