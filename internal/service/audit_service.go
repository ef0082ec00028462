package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-relay/internal/domain"
	"github.com/spec-kit/helpdesk-relay/internal/events"
	"github.com/spec-kit/helpdesk-relay/internal/repository"
	"github.com/spec-kit/helpdesk-relay/pkg/util/errorutil"
)

// AuditService records relay outcomes. Without a repository it only logs.
type AuditService struct {
	repo   repository.DeliveryRepository
	logger *zap.Logger
}

// NewAuditService creates the service. repo may be nil.
func NewAuditService(repo repository.DeliveryRepository, logger *zap.Logger) *AuditService {
	return &AuditService{repo: repo, logger: logger}
}

// Enabled reports whether outcomes are persisted.
func (a *AuditService) Enabled() bool {
	return a != nil && a.repo != nil
}

// Record logs the event and appends its delivery row.
func (a *AuditService) Record(ctx context.Context, event events.Event) error {
	delivery := event.Delivery()
	fields := []zap.Field{
		zap.String("delivery_id", delivery.ID),
		zap.String("route", string(delivery.Route)),
		zap.String("ticket_number", delivery.TicketNumber),
		zap.String("request_id", delivery.RequestID),
		zap.String("outcome", string(delivery.Outcome)),
	}
	if delivery.Outcome == domain.OutcomePartial {
		a.logger.Warn("partial relay recorded", append(fields, zap.String("error_code", delivery.ErrorCode))...)
	} else {
		a.logger.Debug("relay recorded", fields...)
	}

	if !a.Enabled() {
		return nil
	}
	return a.repo.Create(ctx, &delivery)
}

// ListDeliveries returns the most recent audit rows for a ticket.
func (a *AuditService) ListDeliveries(ctx context.Context, ticketNumber string, limit int) ([]domain.Delivery, error) {
	if !a.Enabled() {
		return nil, errorutil.NewUnavailable("delivery log is not configured")
	}
	deliveries, err := a.repo.ListByTicket(ctx, ticketNumber, limit)
	if err != nil {
		return nil, errorutil.NewInternalError(err)
	}
	return deliveries, nil
}
