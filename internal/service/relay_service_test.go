package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-relay/internal/config"
	"github.com/spec-kit/helpdesk-relay/internal/domain"
	"github.com/spec-kit/helpdesk-relay/internal/events"
	"github.com/spec-kit/helpdesk-relay/internal/mapping"
	"github.com/spec-kit/helpdesk-relay/internal/observability"
	"github.com/spec-kit/helpdesk-relay/internal/persistence"
	"github.com/spec-kit/helpdesk-relay/internal/service"
	"github.com/spec-kit/helpdesk-relay/pkg/util/errorutil"
)

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) ListRequests(ctx context.Context) ([]domain.RequestRecord, error) {
	args := m.Called(ctx)
	records, _ := args.Get(0).([]domain.RequestRecord)
	return records, args.Error(1)
}

func (m *mockDirectory) UpdateRequest(ctx context.Context, id string, u domain.RequestUpdate) error {
	return m.Called(ctx, id, u).Error(0)
}

func (m *mockDirectory) ListNotifications(ctx context.Context, id string) ([]domain.NotificationRecord, error) {
	args := m.Called(ctx, id)
	notes, _ := args.Get(0).([]domain.NotificationRecord)
	return notes, args.Error(1)
}

func (m *mockDirectory) GetResolution(ctx context.Context, id string) (domain.ResolutionRecord, bool, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.ResolutionRecord), args.Bool(1), args.Error(2)
}

func (m *mockDirectory) CloseRequest(ctx context.Context, id string, p domain.ClosurePayload) error {
	return m.Called(ctx, id, p).Error(0)
}

type mockForward struct {
	mock.Mock
}

func (m *mockForward) CreateRequest(ctx context.Context, p domain.RequestCreatePayload) (domain.RequestRecord, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(domain.RequestRecord), args.Error(1)
}

func (m *mockForward) AddNotification(ctx context.Context, id string, n domain.NotificationPayload) error {
	return m.Called(ctx, id, n).Error(0)
}

type mockTickets struct {
	mock.Mock
}

func (m *mockTickets) CreateTicket(ctx context.Context, t domain.TicketCreate) (domain.TicketCreated, error) {
	args := m.Called(ctx, t)
	return args.Get(0).(domain.TicketCreated), args.Error(1)
}

func (m *mockTickets) CreateTicketRaw(ctx context.Context, payload map[string]any) (domain.TicketCreated, error) {
	args := m.Called(ctx, payload)
	return args.Get(0).(domain.TicketCreated), args.Error(1)
}

func (m *mockTickets) UpdateTicket(ctx context.Context, u domain.TicketUpdate) error {
	return m.Called(ctx, u).Error(0)
}

type recordingLocker struct {
	keys     []string
	released int
	err      error
}

func (l *recordingLocker) Acquire(_ context.Context, key string) (persistence.Release, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.keys = append(l.keys, key)
	return func(context.Context) { l.released++ }, nil
}

type fixture struct {
	svc       *service.RelayService
	directory *mockDirectory
	forward   *mockForward
	tickets   *mockTickets
	locker    *recordingLocker
	events    []events.Event
}

func newFixture(t *testing.T, policy mapping.FallbackPolicy) *fixture {
	t.Helper()
	f := &fixture{
		directory: &mockDirectory{},
		forward:   &mockForward{},
		tickets:   &mockTickets{},
		locker:    &recordingLocker{},
	}
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	for _, et := range events.RelayTypes() {
		dispatcher.Subscribe(et, func(_ context.Context, e events.Event) error {
			f.events = append(f.events, e)
			return nil
		})
	}
	mapper := mapping.NewMapper(mapping.Options{
		Defaults: config.MappingConfig{
			RequesterID:     "20703",
			RequesterName:   "Integração OTRS",
			StatusName:      "Aberto",
			ReassignAccount: "AENA",
			ReassignAcctID:  "1",
			ReassignName:    "Kaio",
			ReassignEmail:   "kaio@example.com",
		},
		OTRS: config.OTRSConfig{
			ArticleFrom:         "relay@example.com",
			ClosedState:         "Resolvido",
			PendingDiff:         "259200",
			DefaultQueue:        "Raw",
			DefaultState:        "new",
			DefaultPriority:     "3 normal",
			DefaultCustomerUser: "msp.integracao",
		},
		Policy: policy,
	})
	f.svc = service.NewRelayService(service.RelayDependencies{
		Mapper:     mapper,
		Directory:  f.directory,
		Forward:    f.forward,
		Tickets:    f.tickets,
		Locker:     f.locker,
		Dispatcher: dispatcher,
		Metrics:    observability.NewMetrics(),
		Logger:     zap.NewNop(),
	})
	return f
}

func (f *fixture) assertMocks(t *testing.T) {
	t.Helper()
	f.directory.AssertExpectations(t)
	f.forward.AssertExpectations(t)
	f.tickets.AssertExpectations(t)
}

func candidates() []domain.RequestRecord {
	return []domain.RequestRecord{
		{ID: "5", Subject: "[OTRS 100] x"},
		{ID: "6", Subject: "[OTRS 200] y"},
	}
}

func TestOpenForward(t *testing.T) {
	f := newFixture(t, mapping.PolicyPlaceholder)
	f.forward.On("CreateRequest", mock.Anything, mock.MatchedBy(func(p domain.RequestCreatePayload) bool {
		return strings.Contains(p.Subject, "100") &&
			strings.HasPrefix(p.Description, "Help") &&
			p.Requester.ID == "20703"
	})).Return(domain.RequestRecord{ID: "77", Subject: "[OTRS 100] Printer down"}, nil).Once()

	res, err := f.svc.OpenForward(context.Background(), domain.TicketEvent{
		TicketNumber: "100",
		Title:        "Printer down",
		BodyText:     "<br>Help<br>",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeForwarded, res.Outcome)
	assert.Equal(t, "77", res.RequestID)
	assert.Equal(t, "100", res.TicketNumber)
	assert.NotEmpty(t, res.DeliveryID)
	assert.Equal(t, []string{"100"}, f.locker.keys)
	assert.Equal(t, 1, f.locker.released)

	require.Len(t, f.events, 1)
	assert.Equal(t, events.EventRelayForwarded, f.events[0].Type)
	assert.Equal(t, res.DeliveryID, f.events[0].ID)
	f.assertMocks(t)
}

func TestOpenForwardRequiresTicketNumber(t *testing.T) {
	f := newFixture(t, mapping.PolicyPlaceholder)

	res, err := f.svc.OpenForward(context.Background(), domain.TicketEvent{Title: "x"})
	require.Error(t, err)
	de := errorutil.ToDomainError(err)
	assert.Equal(t, errorutil.CodeValidation, de.Code)
	assert.Equal(t, "Ticket.TicketNumber", de.Details["field"])
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.Empty(t, f.locker.keys)
	require.Len(t, f.events, 1)
	assert.Equal(t, events.EventRelayFailed, f.events[0].Type)
	assert.Equal(t, errorutil.CodeValidation, f.events[0].Payload.ErrorCode)
	f.forward.AssertNotCalled(t, "CreateRequest", mock.Anything, mock.Anything)
}

func TestOpenForwardRejectPolicy(t *testing.T) {
	f := newFixture(t, mapping.PolicyReject)

	_, err := f.svc.OpenForward(context.Background(), domain.TicketEvent{TicketNumber: "100", Title: "x"})
	assert.True(t, errorutil.HasCode(err, errorutil.CodeValidation))
	f.forward.AssertNotCalled(t, "CreateRequest", mock.Anything, mock.Anything)
}

func TestOpenForwardUpstreamFailure(t *testing.T) {
	f := newFixture(t, mapping.PolicyPlaceholder)
	upstream := errorutil.NewUpstreamError("msp", "create request", 502, "bad gateway", errors.New("status 502"))
	f.forward.On("CreateRequest", mock.Anything, mock.Anything).Return(domain.RequestRecord{}, upstream)

	res, err := f.svc.OpenForward(context.Background(), domain.TicketEvent{TicketNumber: "100", Title: "x"})
	assert.Same(t, upstream, err)
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.Equal(t, 1, f.locker.released)
}

func TestOpenBackwardPassthrough(t *testing.T) {
	f := newFixture(t, mapping.PolicyPlaceholder)
	payload := map[string]any{
		"Ticket":  map[string]any{"Title": "Printer"},
		"Article": map[string]any{"Subject": "88"},
	}
	f.tickets.On("CreateTicketRaw", mock.Anything, payload).
		Return(domain.TicketCreated{TicketNumber: "555"}, nil).Once()
	f.directory.On("UpdateRequest", mock.Anything, "88",
		domain.RequestUpdate{Subject: "[OTRS 555] Novo chamado: Printer"}).Return(nil).Once()

	res, err := f.svc.OpenBackward(context.Background(), service.OpenBackwardInput{
		RequestID: "88",
		Title:     "Printer",
		Ticket:    payload,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeForwarded, res.Outcome)
	assert.Equal(t, "555", res.TicketNumber)
	assert.Equal(t, []string{"request:88"}, f.locker.keys)
	f.assertMocks(t)
}

func TestOpenBackwardNative(t *testing.T) {
	f := newFixture(t, mapping.PolicyPlaceholder)
	f.tickets.On("CreateTicket", mock.Anything, mock.MatchedBy(func(tc domain.TicketCreate) bool {
		return tc.Title == "VPN fora" && tc.Article.Subject == "88" && tc.Queue == "Raw" &&
			tc.CustomerUser == "ana@example.com"
	})).Return(domain.TicketCreated{TicketNumber: "556"}, nil).Once()
	f.directory.On("UpdateRequest", mock.Anything, "88",
		domain.RequestUpdate{Subject: "[OTRS 556] Novo chamado: VPN fora"}).Return(nil).Once()

	_, err := f.svc.OpenBackward(context.Background(), service.OpenBackwardInput{
		RequestID: "88",
		Request: &domain.RequestCreatePayload{
			Subject:     "VPN fora",
			Description: "<div>sem acesso</div>",
			Requester:   domain.NamedRef{Name: "Ana", Email: "ana@example.com"},
		},
	})
	require.NoError(t, err)
	f.assertMocks(t)
}

func TestOpenBackwardRenameFailureIsPartial(t *testing.T) {
	f := newFixture(t, mapping.PolicyPlaceholder)
	f.tickets.On("CreateTicketRaw", mock.Anything, mock.Anything).
		Return(domain.TicketCreated{TicketNumber: "557"}, nil)
	f.directory.On("UpdateRequest", mock.Anything, "88", mock.Anything).
		Return(errorutil.NewUpstreamError("msp", "update request", 500, "", errors.New("status 500")))

	res, err := f.svc.OpenBackward(context.Background(), service.OpenBackwardInput{
		RequestID: "88",
		Title:     "Printer",
		Ticket:    map[string]any{"Ticket": map[string]any{"Title": "Printer"}},
	})
	require.Error(t, err)
	assert.Equal(t, domain.OutcomePartial, res.Outcome)
	assert.Equal(t, "557", res.TicketNumber)

	de := errorutil.ToDomainError(err)
	assert.Equal(t, errorutil.CodeUpstream, de.Code)
	assert.Equal(t, "557", de.Details["ticket_number"])
	assert.Equal(t, "partial", de.Details["outcome"])

	require.Len(t, f.events, 1)
	assert.Equal(t, events.EventRelayPartial, f.events[0].Type)
	f.tickets.AssertNumberOfCalls(t, "CreateTicketRaw", 1)
}

func TestOpenBackwardValidation(t *testing.T) {
	f := newFixture(t, mapping.PolicyPlaceholder)

	_, err := f.svc.OpenBackward(context.Background(), service.OpenBackwardInput{Ticket: map[string]any{}})
	assert.True(t, errorutil.HasCode(err, errorutil.CodeValidation))

	_, err = f.svc.OpenBackward(context.Background(), service.OpenBackwardInput{RequestID: "1"})
	assert.True(t, errorutil.HasCode(err, errorutil.CodeValidation))
}

func TestOpenBackwardSkipsTaggedRequest(t *testing.T) {
	f := newFixture(t, mapping.PolicyPlaceholder)

	res, err := f.svc.OpenBackward(context.Background(), service.OpenBackwardInput{
		RequestID: "88",
		Request:   &domain.RequestCreatePayload{Subject: "[OTRS 100] Printer down"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSkipped, res.Outcome)
	assert.Equal(t, "100", res.TicketNumber)
	assert.Equal(t, "88", res.RequestID)
	assert.Empty(t, f.locker.keys)
	f.tickets.AssertNotCalled(t, "CreateTicket", mock.Anything, mock.Anything)
	f.directory.AssertNotCalled(t, "UpdateRequest", mock.Anything, mock.Anything, mock.Anything)

	require.Len(t, f.events, 1)
	assert.Equal(t, events.EventRelaySkipped, f.events[0].Type)
	assert.Equal(t, domain.OutcomeSkipped, f.events[0].Delivery().Outcome)
}

func TestOpenBackwardSkipsTaggedPassthroughTitle(t *testing.T) {
	f := newFixture(t, mapping.PolicyPlaceholder)

	res, err := f.svc.OpenBackward(context.Background(), service.OpenBackwardInput{
		RequestID: "88",
		Title:     "[OTRS: 100] Novo chamado: Printer",
		Ticket:    map[string]any{"Ticket": map[string]any{"Title": "[OTRS: 100] Novo chamado: Printer"}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSkipped, res.Outcome)
	assert.Equal(t, "100", res.TicketNumber)
	f.tickets.AssertNotCalled(t, "CreateTicketRaw", mock.Anything, mock.Anything)
}

func TestLockReleasedWhenRoutePanics(t *testing.T) {
	f := newFixture(t, mapping.PolicyPlaceholder)
	f.directory.On("UpdateRequest", mock.Anything, "88", mock.Anything).
		Run(func(mock.Arguments) { panic("boom") })

	assert.Panics(t, func() {
		_, _ = f.svc.AccountReassign(context.Background(), "88")
	})
	assert.Equal(t, []string{"request:88"}, f.locker.keys)
	assert.Equal(t, 1, f.locker.released)
}

func TestCommentForward(t *testing.T) {
	f := newFixture(t, mapping.PolicyPlaceholder)
	f.directory.On("ListRequests", mock.Anything).Return(candidates(), nil).Once()
	f.forward.On("AddNotification", mock.Anything, "5", domain.NotificationPayload{
		Subject:     "Re: [Request ID : 5] : Printer down",
		Description: "Still broken",
		To:          []string{"jdoe@example.com"},
		Type:        "reply",
	}).Return(nil).Once()

	res, err := f.svc.CommentForward(context.Background(), domain.TicketEvent{
		TicketNumber:  "100",
		Title:         "Printer down",
		CustomerEmail: "jdoe@example.com",
		BodyText:      "<p>Still broken</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, "5", res.RequestID)
	f.assertMocks(t)
}

func TestCommentForwardCorrelationMiss(t *testing.T) {
	f := newFixture(t, mapping.PolicyPlaceholder)
	f.directory.On("ListRequests", mock.Anything).Return(candidates(), nil)

	res, err := f.svc.CommentForward(context.Background(), domain.TicketEvent{TicketNumber: "300"})
	require.Error(t, err)
	de := errorutil.ToDomainError(err)
	assert.Equal(t, errorutil.CodeCorrelation, de.Code)
	assert.Equal(t, 404, de.HTTPStatus)
	assert.Equal(t, 2, de.Details["scanned"])
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	f.forward.AssertNotCalled(t, "AddNotification", mock.Anything, mock.Anything, mock.Anything)
}

func TestCommentBackwardUsesLatestNotification(t *testing.T) {
	f := newFixture(t, mapping.PolicyPlaceholder)
	f.directory.On("ListNotifications", mock.Anything, "77").Return([]domain.NotificationRecord{
		{ID: "n1", Subject: "old", Description: "first", SentTime: 1000},
		{ID: "n2", Subject: "Re: newest", Description: "<div>second</div>", SentTime: 3000},
		{ID: "n3", Subject: "middle", Description: "third", SentTime: 2000},
	}, nil).Once()
	f.tickets.On("UpdateTicket", mock.Anything, mock.MatchedBy(func(u domain.TicketUpdate) bool {
		return u.TicketNumber == "2025090910000143" &&
			u.Article.Subject == "Re: newest" &&
			u.Article.Body == "second" &&
			u.State == ""
	})).Return(nil).Once()

	res, err := f.svc.CommentBackward(context.Background(), service.TicketRef{
		TicketNumber: "[OTRS 2025090910000143] Printer",
		RequestID:    "77",
	})
	require.NoError(t, err)
	assert.Equal(t, "2025090910000143", res.TicketNumber)
	assert.Equal(t, []string{"2025090910000143"}, f.locker.keys)
	f.assertMocks(t)
}

func TestCommentBackwardFailures(t *testing.T) {
	t.Run("no notifications", func(t *testing.T) {
		f := newFixture(t, mapping.PolicyPlaceholder)
		f.directory.On("ListNotifications", mock.Anything, "77").Return(nil, nil)
		_, err := f.svc.CommentBackward(context.Background(), service.TicketRef{TicketNumber: "[OTRS 1]", RequestID: "77"})
		assert.True(t, errorutil.HasCode(err, errorutil.CodeCorrelation))
	})
	t.Run("untagged garbage", func(t *testing.T) {
		f := newFixture(t, mapping.PolicyPlaceholder)
		_, err := f.svc.CommentBackward(context.Background(), service.TicketRef{TicketNumber: "Printer", RequestID: "77"})
		assert.True(t, errorutil.HasCode(err, errorutil.CodeValidation))
	})
	t.Run("missing request id", func(t *testing.T) {
		f := newFixture(t, mapping.PolicyPlaceholder)
		_, err := f.svc.CommentBackward(context.Background(), service.TicketRef{TicketNumber: "12"})
		de := errorutil.ToDomainError(err)
		assert.Equal(t, "Article.Subject", de.Details["field"])
	})
}

func TestCloseForward(t *testing.T) {
	f := newFixture(t, mapping.PolicyPlaceholder)
	visible := 0
	f.directory.On("GetResolution", mock.Anything, "77").
		Return(domain.ResolutionRecord{Content: "Trocado&nbsp;o toner"}, true, nil).Once()
	f.tickets.On("UpdateTicket", mock.Anything, mock.MatchedBy(func(u domain.TicketUpdate) bool {
		return u.TicketNumber == "123" &&
			u.State == "Resolvido" &&
			u.PendingTime != nil && u.PendingTime.Diff == "259200" &&
			u.Article.Subject == mapping.ClosingSubject &&
			u.Article.Body == "Trocado o toner" &&
			u.Article.IsVisibleForCustomer == 0 &&
			u.UserLogin == "agent"
	})).Return(nil).Once()

	_, err := f.svc.CloseForward(context.Background(), service.CloseForwardInput{
		TicketRef: service.TicketRef{TicketNumber: "[OTRS 123] Printer", RequestID: "77"},
		Overrides: mapping.ClosingOverrides{UserLogin: "agent", IsVisibleForCustomer: &visible},
	})
	require.NoError(t, err)
	f.assertMocks(t)
}

func TestCloseForwardWithoutResolution(t *testing.T) {
	f := newFixture(t, mapping.PolicyPlaceholder)
	f.directory.On("GetResolution", mock.Anything, "77").Return(domain.ResolutionRecord{}, false, nil)

	_, err := f.svc.CloseForward(context.Background(), service.CloseForwardInput{
		TicketRef: service.TicketRef{TicketNumber: "123", RequestID: "77"},
	})
	assert.True(t, errorutil.HasCode(err, errorutil.CodeCorrelation))
	f.tickets.AssertNotCalled(t, "UpdateTicket", mock.Anything, mock.Anything)
}

func TestCloseBackward(t *testing.T) {
	f := newFixture(t, mapping.PolicyPlaceholder)
	f.directory.On("ListRequests", mock.Anything).Return(candidates(), nil).Once()
	f.directory.On("CloseRequest", mock.Anything, "6", mock.MatchedBy(func(p domain.ClosurePayload) bool {
		return p.RequesterAckResolution && p.ClosureCode == "success"
	})).Return(nil).Once()

	res, err := f.svc.CloseBackward(context.Background(), "200")
	require.NoError(t, err)
	assert.Equal(t, "6", res.RequestID)
	f.assertMocks(t)
}

func TestAccountReassign(t *testing.T) {
	f := newFixture(t, mapping.PolicyPlaceholder)
	f.directory.On("UpdateRequest", mock.Anything, "91", domain.RequestUpdate{
		Account:        &domain.NamedRef{ID: "1", Name: "AENA"},
		RequesterName:  "Kaio",
		RequesterEmail: "kaio@example.com",
	}).Return(nil).Once()

	res, err := f.svc.AccountReassign(context.Background(), " 91 ")
	require.NoError(t, err)
	assert.Equal(t, "91", res.RequestID)
	assert.Equal(t, []string{"request:91"}, f.locker.keys)
	f.assertMocks(t)

	_, err = f.svc.AccountReassign(context.Background(), "")
	assert.True(t, errorutil.HasCode(err, errorutil.CodeValidation))
}

func TestLockFailureStopsRelay(t *testing.T) {
	f := newFixture(t, mapping.PolicyPlaceholder)
	f.locker.err = errorutil.NewInternalError(persistence.ErrTicketBusy)

	res, err := f.svc.CloseBackward(context.Background(), "200")
	assert.ErrorIs(t, err, persistence.ErrTicketBusy)
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	f.directory.AssertNotCalled(t, "ListRequests", mock.Anything)
}
