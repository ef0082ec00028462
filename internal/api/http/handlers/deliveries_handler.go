package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-relay/internal/service"
)

// DeliveriesHandler serves the delivery log.
type DeliveriesHandler struct {
	audit *service.AuditService
}

// NewDeliveriesHandler constructs handler.
func NewDeliveriesHandler(audit *service.AuditService) *DeliveriesHandler {
	return &DeliveriesHandler{audit: audit}
}

// ListByTicket GET /deliveries/:ticketNumber.
func (h *DeliveriesHandler) ListByTicket(c *fiber.Ctx) error {
	deliveries, err := h.audit.ListDeliveries(c.UserContext(), c.Params("ticketNumber"), c.QueryInt("limit", 50))
	if err != nil {
		return err
	}
	items := make([]fiber.Map, 0, len(deliveries))
	for _, d := range deliveries {
		items = append(items, fiber.Map{
			"id":            d.ID,
			"route":         d.Route,
			"ticket_number": d.TicketNumber,
			"request_id":    d.RequestID,
			"outcome":       d.Outcome,
			"error_code":    d.ErrorCode,
			"error_message": d.ErrorMessage,
			"duration_ms":   d.Duration.Milliseconds(),
			"created_at":    d.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}
