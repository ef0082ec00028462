package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-relay/internal/correlation"
	"github.com/spec-kit/helpdesk-relay/internal/domain"
	"github.com/spec-kit/helpdesk-relay/internal/events"
	"github.com/spec-kit/helpdesk-relay/internal/mapping"
	"github.com/spec-kit/helpdesk-relay/internal/observability"
	"github.com/spec-kit/helpdesk-relay/internal/persistence"
	"github.com/spec-kit/helpdesk-relay/pkg/util/errorutil"
)

// RequestDirectory is the service-desk API surface that always goes over REST.
type RequestDirectory interface {
	ListRequests(ctx context.Context) ([]domain.RequestRecord, error)
	UpdateRequest(ctx context.Context, id string, u domain.RequestUpdate) error
	ListNotifications(ctx context.Context, id string) ([]domain.NotificationRecord, error)
	GetResolution(ctx context.Context, id string) (domain.ResolutionRecord, bool, error)
	CloseRequest(ctx context.Context, id string, p domain.ClosurePayload) error
}

// ForwardTransport carries new requests and replies to the service desk, over REST or email.
type ForwardTransport interface {
	CreateRequest(ctx context.Context, p domain.RequestCreatePayload) (domain.RequestRecord, error)
	AddNotification(ctx context.Context, id string, n domain.NotificationPayload) error
}

// TicketGateway is the on-premise ticket API.
type TicketGateway interface {
	CreateTicket(ctx context.Context, t domain.TicketCreate) (domain.TicketCreated, error)
	CreateTicketRaw(ctx context.Context, payload map[string]any) (domain.TicketCreated, error)
	UpdateTicket(ctx context.Context, u domain.TicketUpdate) error
}

// TicketLocker serializes deliveries per ticket.
type TicketLocker interface {
	Acquire(ctx context.Context, key string) (persistence.Release, error)
}

// RelayDependencies bundles RelayService collaborators. Locker, Dispatcher and Metrics are optional.
type RelayDependencies struct {
	Mapper     *mapping.Mapper
	Directory  RequestDirectory
	Forward    ForwardTransport
	Tickets    TicketGateway
	Locker     TicketLocker
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// RelayService moves ticket events between the two systems.
type RelayService struct {
	mapper     *mapping.Mapper
	directory  RequestDirectory
	forward    ForwardTransport
	tickets    TicketGateway
	locker     TicketLocker
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewRelayService wires a RelayService.
func NewRelayService(deps RelayDependencies) *RelayService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &RelayService{
		mapper:     deps.Mapper,
		directory:  deps.Directory,
		forward:    deps.Forward,
		tickets:    deps.Tickets,
		locker:     deps.Locker,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		now:        time.Now,
	}
}

// RelayResult summarizes one relayed webhook.
type RelayResult struct {
	DeliveryID   string                 `json:"delivery_id"`
	Route        domain.Route           `json:"route"`
	Outcome      domain.DeliveryOutcome `json:"outcome"`
	TicketNumber string                 `json:"ticket_number,omitempty"`
	RequestID    string                 `json:"request_id,omitempty"`

	started time.Time
}

// OpenBackwardInput is a request created in the service desk. Exactly one of Ticket and Request is set.
type OpenBackwardInput struct {
	RequestID string
	// Title is the ticket title used to rename the request. Only read with Ticket.
	Title string
	// Ticket is an already TicketCreate-shaped payload forwarded as is.
	Ticket map[string]any
	// Request is the native service-desk request, mapped field by field.
	Request *domain.RequestCreatePayload
}

// TicketRef points at a ticket pair from the service-desk side.
type TicketRef struct {
	// TicketNumber is "[OTRS <n>] ..." or a bare number.
	TicketNumber string
	RequestID    string
}

// CloseForwardInput is a resolved service-desk request.
type CloseForwardInput struct {
	TicketRef
	Overrides mapping.ClosingOverrides
}

// OpenForward creates a service-desk request for a new on-premise ticket.
func (s *RelayService) OpenForward(ctx context.Context, ev domain.TicketEvent) (RelayResult, error) {
	res := s.begin(domain.RouteOpenForward)
	number, err := mapping.RequireTicketNumber("Ticket.TicketNumber", ev.TicketNumber)
	if err != nil {
		return s.finish(ctx, res, err)
	}
	res.TicketNumber = number
	ev.TicketNumber = number

	return s.locked(ctx, res, number, func(ctx context.Context, res *RelayResult) error {
		payload, err := s.mapper.ToRequestCreate(ev)
		if err != nil {
			return err
		}
		created, err := s.forward.CreateRequest(ctx, payload)
		if err != nil {
			return err
		}
		res.RequestID = created.ID
		return nil
	})
}

// OpenBackward creates an on-premise ticket for a new service-desk request, then tags the request
// subject with the new ticket number. A failed rename leaves the ticket in place and is reported as partial.
func (s *RelayService) OpenBackward(ctx context.Context, in OpenBackwardInput) (RelayResult, error) {
	res := s.begin(domain.RouteOpenBackward)
	requestID := strings.TrimSpace(in.RequestID)
	if requestID == "" {
		return s.finish(ctx, res, errorutil.NewValidationError("Article.Subject", "service-desk request id is required"))
	}
	if in.Ticket == nil && in.Request == nil {
		return s.finish(ctx, res, errorutil.NewValidationError("Ticket", "ticket payload is required"))
	}
	res.RequestID = requestID

	if number, ok := s.linkedTicket(in); ok {
		res.TicketNumber = number
		res.Outcome = domain.OutcomeSkipped
		return s.finish(ctx, res, nil)
	}

	return s.locked(ctx, res, requestKey(requestID), func(ctx context.Context, res *RelayResult) error {
		var (
			created domain.TicketCreated
			title   string
			err     error
		)
		if in.Ticket != nil {
			title = in.Title
			created, err = s.tickets.CreateTicketRaw(ctx, in.Ticket)
		} else {
			var ticket domain.TicketCreate
			ticket, err = s.mapper.ToTicketCreate(requestID, s.mapper.ToTicketEvent(*in.Request))
			if err != nil {
				return err
			}
			title = ticket.Title
			created, err = s.tickets.CreateTicket(ctx, ticket)
		}
		if err != nil {
			return err
		}
		res.TicketNumber = created.TicketNumber

		rename := domain.RequestUpdate{Subject: mapping.RenamedSubject(created.TicketNumber, title)}
		if err := s.directory.UpdateRequest(ctx, requestID, rename); err != nil {
			res.Outcome = domain.OutcomePartial
			err = errorutil.WithDetail(err, "ticket_number", created.TicketNumber)
			return errorutil.WithDetail(err, "outcome", string(domain.OutcomePartial))
		}
		return nil
	})
}

// linkedTicket reports the on-premise ticket a request already points at. Requests opened by
// OpenForward carry the tag, and replaying them here would create a second ticket.
func (s *RelayService) linkedTicket(in OpenBackwardInput) (string, bool) {
	if in.Ticket != nil {
		return mapping.ParseTag(in.Title)
	}
	if n := s.mapper.ToTicketEvent(*in.Request).TicketNumber; n != "" {
		return n, true
	}
	return "", false
}

// CommentForward posts an on-premise article as a reply on the tagged service-desk request.
func (s *RelayService) CommentForward(ctx context.Context, ev domain.TicketEvent) (RelayResult, error) {
	res := s.begin(domain.RouteCommentForward)
	number, err := mapping.RequireTicketNumber("Ticket.TicketNumber", ev.TicketNumber)
	if err != nil {
		return s.finish(ctx, res, err)
	}
	res.TicketNumber = number

	return s.locked(ctx, res, number, func(ctx context.Context, res *RelayResult) error {
		record, err := s.findRequest(ctx, number)
		if err != nil {
			return err
		}
		res.RequestID = record.ID
		reply, err := s.mapper.ToReply(record.ID, ev)
		if err != nil {
			return err
		}
		return s.forward.AddNotification(ctx, record.ID, reply)
	})
}

// CommentBackward copies the latest service-desk notification onto the on-premise ticket.
func (s *RelayService) CommentBackward(ctx context.Context, ref TicketRef) (RelayResult, error) {
	res := s.begin(domain.RouteCommentBackward)
	number, requestID, err := resolveRef(ref)
	if err != nil {
		return s.finish(ctx, res, err)
	}
	res.TicketNumber, res.RequestID = number, requestID

	return s.locked(ctx, res, number, func(ctx context.Context, _ *RelayResult) error {
		notes, err := s.directory.ListNotifications(ctx, requestID)
		if err != nil {
			return err
		}
		latest, ok := correlation.LatestNotification(notes)
		if !ok {
			return errorutil.NewCorrelationError("no notification found on service-desk request",
				map[string]any{"request_id": requestID})
		}
		return s.tickets.UpdateTicket(ctx, s.mapper.ToArticleUpdate(number, latest))
	})
}

// CloseForward writes the service-desk resolution as the closing article of the on-premise ticket.
func (s *RelayService) CloseForward(ctx context.Context, in CloseForwardInput) (RelayResult, error) {
	res := s.begin(domain.RouteCloseForward)
	number, requestID, err := resolveRef(in.TicketRef)
	if err != nil {
		return s.finish(ctx, res, err)
	}
	res.TicketNumber, res.RequestID = number, requestID

	return s.locked(ctx, res, number, func(ctx context.Context, _ *RelayResult) error {
		resolution, found, err := s.directory.GetResolution(ctx, requestID)
		if err != nil {
			return err
		}
		if !found {
			return errorutil.NewCorrelationError("no resolution found on service-desk request",
				map[string]any{"request_id": requestID})
		}
		return s.tickets.UpdateTicket(ctx, s.mapper.ToClosingUpdate(number, resolution, in.Overrides))
	})
}

// CloseBackward closes the tagged service-desk request of a closed on-premise ticket.
func (s *RelayService) CloseBackward(ctx context.Context, ticketNumber string) (RelayResult, error) {
	res := s.begin(domain.RouteCloseBackward)
	number, err := ticketNumberFrom("TicketNumber", ticketNumber)
	if err != nil {
		return s.finish(ctx, res, err)
	}
	res.TicketNumber = number

	return s.locked(ctx, res, number, func(ctx context.Context, res *RelayResult) error {
		record, err := s.findRequest(ctx, number)
		if err != nil {
			return err
		}
		res.RequestID = record.ID
		return s.directory.CloseRequest(ctx, record.ID, s.mapper.ToClosure())
	})
}

// AccountReassign moves a service-desk request to the configured account and requester.
func (s *RelayService) AccountReassign(ctx context.Context, requestID string) (RelayResult, error) {
	res := s.begin(domain.RouteAccountReassign)
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return s.finish(ctx, res, errorutil.NewValidationError("request.MSPID", "service-desk request id is required"))
	}
	res.RequestID = requestID

	return s.locked(ctx, res, requestKey(requestID), func(ctx context.Context, _ *RelayResult) error {
		return s.directory.UpdateRequest(ctx, requestID, s.mapper.ToAccountReassign())
	})
}

func (s *RelayService) findRequest(ctx context.Context, number string) (domain.RequestRecord, error) {
	candidates, err := s.directory.ListRequests(ctx)
	if err != nil {
		return domain.RequestRecord{}, err
	}
	record, ok := correlation.FindCounterpart(number, candidates)
	if !ok {
		return domain.RequestRecord{}, errorutil.NewCorrelationError(
			fmt.Sprintf("no service-desk request tagged %s", mapping.Tag(number)),
			map[string]any{"ticket_number": number, "scanned": len(candidates)},
		)
	}
	return record, nil
}

func (s *RelayService) begin(route domain.Route) RelayResult {
	return RelayResult{DeliveryID: uuid.NewString(), Route: route, started: s.now()}
}

func (s *RelayService) locked(ctx context.Context, res RelayResult, key string, fn func(context.Context, *RelayResult) error) (RelayResult, error) {
	if s.locker == nil {
		return s.finish(ctx, res, fn(ctx, &res))
	}
	release, err := s.locker.Acquire(ctx, key)
	if err != nil {
		return s.finish(ctx, res, err)
	}
	defer release(context.WithoutCancel(ctx))
	return s.finish(ctx, res, fn(ctx, &res))
}

// finish settles the outcome, then reports it to metrics, logs and the event bus.
func (s *RelayService) finish(ctx context.Context, res RelayResult, err error) (RelayResult, error) {
	switch {
	case err == nil && res.Outcome != domain.OutcomeSkipped:
		res.Outcome = domain.OutcomeForwarded
	case err != nil && res.Outcome != domain.OutcomePartial:
		res.Outcome = domain.OutcomeFailed
	}
	elapsed := s.now().Sub(res.started)
	s.metrics.RecordRelay(string(res.Route), string(res.Outcome), elapsed)

	fields := []zap.Field{
		zap.String("route", string(res.Route)),
		zap.String("delivery_id", res.DeliveryID),
		zap.String("request_id", observability.RequestIDFromContext(ctx)),
		zap.String("ticket_number", res.TicketNumber),
		zap.String("msp_request_id", res.RequestID),
		zap.String("outcome", string(res.Outcome)),
		zap.Duration("duration", elapsed),
	}
	payload := events.RelayPayload{Route: res.Route, RequestID: res.RequestID, Duration: elapsed}
	if err != nil {
		de := errorutil.ToDomainError(err)
		payload.ErrorCode = de.Code
		payload.ErrorMessage = de.Error()
		fields = append(fields, zap.String("error_code", de.Code), zap.Error(err))
		if de.HTTPStatus >= 500 {
			s.logger.Error("relay failed", fields...)
		} else {
			s.logger.Warn("relay rejected", fields...)
		}
	} else if res.Outcome == domain.OutcomeSkipped {
		s.logger.Info("relay skipped, request already linked", fields...)
	} else {
		s.logger.Info("relay forwarded", fields...)
	}

	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(context.WithoutCancel(ctx), events.Event{
			ID:           res.DeliveryID,
			Type:         events.TypeFor(res.Outcome),
			TicketNumber: res.TicketNumber,
			Timestamp:    res.started.UTC(),
			Payload:      payload,
		})
	}
	return res, err
}

func resolveRef(ref TicketRef) (string, string, error) {
	number, err := ticketNumberFrom("TicketNumber", ref.TicketNumber)
	if err != nil {
		return "", "", err
	}
	requestID := strings.TrimSpace(ref.RequestID)
	if requestID == "" {
		return "", "", errorutil.NewValidationError("Article.Subject", "service-desk request id is required")
	}
	return number, requestID, nil
}

// ticketNumberFrom accepts a tagged subject or a bare ticket number.
func ticketNumberFrom(field, raw string) (string, error) {
	if n, ok := mapping.ParseTag(raw); ok {
		return n, nil
	}
	return mapping.RequireTicketNumber(field, raw)
}

func requestKey(id string) string {
	return "request:" + id
}
