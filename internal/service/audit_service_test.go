package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-relay/internal/domain"
	"github.com/spec-kit/helpdesk-relay/internal/events"
	"github.com/spec-kit/helpdesk-relay/internal/service"
	"github.com/spec-kit/helpdesk-relay/pkg/util/errorutil"
)

type mockDeliveryRepo struct {
	mock.Mock
}

func (m *mockDeliveryRepo) Create(ctx context.Context, d *domain.Delivery) error {
	return m.Called(ctx, d).Error(0)
}

func (m *mockDeliveryRepo) ListByTicket(ctx context.Context, ticketNumber string, limit int) ([]domain.Delivery, error) {
	args := m.Called(ctx, ticketNumber, limit)
	deliveries, _ := args.Get(0).([]domain.Delivery)
	return deliveries, args.Error(1)
}

func partialEvent() events.Event {
	return events.Event{
		ID:           "d-1",
		Type:         events.EventRelayPartial,
		TicketNumber: "555",
		Timestamp:    time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
		Payload: events.RelayPayload{
			Route:     domain.RouteOpenBackward,
			RequestID: "77",
			ErrorCode: errorutil.CodeUpstream,
		},
	}
}

func TestAuditRecordPersists(t *testing.T) {
	repo := &mockDeliveryRepo{}
	repo.On("Create", mock.Anything, mock.MatchedBy(func(d *domain.Delivery) bool {
		return d.ID == "d-1" && d.Outcome == domain.OutcomePartial && d.TicketNumber == "555" && d.RequestID == "77"
	})).Return(nil).Once()

	audit := service.NewAuditService(repo, zap.NewNop())
	require.True(t, audit.Enabled())
	require.NoError(t, audit.Record(context.Background(), partialEvent()))
	repo.AssertExpectations(t)
}

func TestAuditRecordPropagatesRepoError(t *testing.T) {
	repo := &mockDeliveryRepo{}
	repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down"))

	err := service.NewAuditService(repo, zap.NewNop()).Record(context.Background(), partialEvent())
	assert.EqualError(t, err, "db down")
}

func TestAuditDisabled(t *testing.T) {
	audit := service.NewAuditService(nil, zap.NewNop())
	assert.False(t, audit.Enabled())
	assert.NoError(t, audit.Record(context.Background(), partialEvent()))

	_, err := audit.ListDeliveries(context.Background(), "555", 10)
	assert.True(t, errorutil.HasCode(err, errorutil.CodeUnavailable))
}

func TestAuditListDeliveries(t *testing.T) {
	repo := &mockDeliveryRepo{}
	repo.On("ListByTicket", mock.Anything, "555", 10).
		Return([]domain.Delivery{{ID: "d-1", Outcome: domain.OutcomeForwarded}}, nil)

	got, err := service.NewAuditService(repo, zap.NewNop()).ListDeliveries(context.Background(), "555", 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
