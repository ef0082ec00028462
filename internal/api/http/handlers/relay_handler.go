package handlers

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/tidwall/gjson"

	"github.com/spec-kit/helpdesk-relay/internal/api/dto"
	"github.com/spec-kit/helpdesk-relay/internal/domain"
	"github.com/spec-kit/helpdesk-relay/internal/mapping"
	"github.com/spec-kit/helpdesk-relay/internal/service"
	apperrors "github.com/spec-kit/helpdesk-relay/pkg/util/errorutil"
)

// RelayHandler exposes one webhook endpoint per relay route.
type RelayHandler struct {
	relay *service.RelayService
}

// NewRelayHandler constructs handler.
func NewRelayHandler(relay *service.RelayService) *RelayHandler {
	return &RelayHandler{relay: relay}
}

// OpenTicketForward POST /webhooks/otrs/ticket-created.
func (h *RelayHandler) OpenTicketForward(c *fiber.Ctx) error {
	var req dto.TicketWebhook
	if err := dto.Decode(c.Body(), &req); err != nil {
		return err
	}
	res, err := h.relay.OpenForward(c.UserContext(), ticketEvent(req))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": res})
}

// OpenTicketBackward POST /webhooks/msp/request-created. Accepts a TicketCreate-shaped payload, forwarded
// as is, or a native {"request": {...}} payload. Requests already linked to a ticket answer 200 without
// creating anything.
func (h *RelayHandler) OpenTicketBackward(c *fiber.Ctx) error {
	body := c.Body()
	if !gjson.ValidBytes(body) {
		return apperrors.NewValidationError("", "request body is not valid JSON")
	}

	var in service.OpenBackwardInput
	switch {
	case gjson.GetBytes(body, "Ticket").IsObject():
		var req dto.TicketCreateWebhook
		if err := dto.Decode(body, &req); err != nil {
			return err
		}
		var passthrough map[string]any
		if err := json.Unmarshal(body, &passthrough); err != nil {
			return apperrors.NewValidationError("", "request body is not a JSON object")
		}
		in = service.OpenBackwardInput{
			RequestID: req.Article.Subject.String(),
			Title:     strings.TrimSpace(req.Ticket.Title),
			Ticket:    passthrough,
		}
	case gjson.GetBytes(body, "request").IsObject():
		var req dto.ServiceRequestWebhook
		if err := dto.Decode(body, &req); err != nil {
			return err
		}
		r := req.Request
		in = service.OpenBackwardInput{
			RequestID: r.ID.String(),
			Request: &domain.RequestCreatePayload{
				Subject:     r.Subject,
				Description: r.Description,
				Requester:   domain.NamedRef{ID: r.Requester.ID.String(), Name: r.Requester.Name, Email: r.Requester.Email},
				Priority:    domain.NamedRef{ID: r.Priority.ID.String(), Name: r.Priority.Name},
				Status:      domain.NamedRef{Name: r.Status.Name},
			},
		}
	default:
		return apperrors.NewValidationError("Ticket", "expected a Ticket or request object")
	}

	res, err := h.relay.OpenBackward(c.UserContext(), in)
	if err != nil {
		return err
	}
	if res.Outcome == domain.OutcomeSkipped {
		return c.JSON(fiber.Map{"data": res})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": res})
}

// CommentForward POST /webhooks/otrs/article-added.
func (h *RelayHandler) CommentForward(c *fiber.Ctx) error {
	var req dto.TicketWebhook
	if err := dto.Decode(c.Body(), &req); err != nil {
		return err
	}
	res, err := h.relay.CommentForward(c.UserContext(), ticketEvent(req))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": res})
}

// CommentBackward POST /webhooks/msp/notification-added.
func (h *RelayHandler) CommentBackward(c *fiber.Ctx) error {
	var req dto.NotificationWebhook
	if err := dto.Decode(c.Body(), &req); err != nil {
		return err
	}
	res, err := h.relay.CommentBackward(c.UserContext(), service.TicketRef{
		TicketNumber: req.TicketNumber,
		RequestID:    req.Article.Subject.String(),
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": res})
}

// CloseForward POST /webhooks/msp/request-resolved.
func (h *RelayHandler) CloseForward(c *fiber.Ctx) error {
	var req dto.ResolutionWebhook
	if err := dto.Decode(c.Body(), &req); err != nil {
		return err
	}
	overrides := mapping.ClosingOverrides{
		UserLogin:            req.UserLogin,
		Password:             req.Password,
		MimeType:             req.Article.MimeType,
		Charset:              req.Article.Charset,
		IsVisibleForCustomer: req.Article.IsVisibleForCustomer,
	}
	if req.Ticket.PendingTime != nil {
		overrides.PendingDiff = req.Ticket.PendingTime.Diff.String()
	}
	res, err := h.relay.CloseForward(c.UserContext(), service.CloseForwardInput{
		TicketRef: service.TicketRef{TicketNumber: req.TicketNumber, RequestID: req.Article.Subject.String()},
		Overrides: overrides,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": res})
}

// CloseBackward POST /webhooks/otrs/ticket-closed.
func (h *RelayHandler) CloseBackward(c *fiber.Ctx) error {
	var req dto.ClosedTicketWebhook
	if err := dto.Decode(c.Body(), &req); err != nil {
		return err
	}
	if req.Number() == "" {
		return apperrors.NewValidationError("TicketNumber", "TicketNumber is required")
	}
	res, err := h.relay.CloseBackward(c.UserContext(), req.Number())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": res})
}

// AccountReassign POST /webhooks/msp/account-reassign.
func (h *RelayHandler) AccountReassign(c *fiber.Ctx) error {
	var req dto.AccountReassignWebhook
	if err := dto.Decode(c.Body(), &req); err != nil {
		return err
	}
	res, err := h.relay.AccountReassign(c.UserContext(), req.Request.MSPID.String())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": res})
}

func ticketEvent(req dto.TicketWebhook) domain.TicketEvent {
	return domain.TicketEvent{
		TicketNumber:  req.Ticket.TicketNumber.String(),
		Title:         req.Ticket.Title,
		Priority:      req.Ticket.Priority,
		State:         req.Ticket.State,
		Owner:         req.Ticket.Owner,
		CustomerUser:  req.Ticket.CustomerUser,
		CustomerEmail: mapping.ExtractEmail(req.Article.From),
		Subject:       req.Article.Subject,
		BodyText:      req.Article.Body,
	}
}
