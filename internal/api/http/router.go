package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/helpdesk-relay/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-relay/internal/auth"
	"github.com/spec-kit/helpdesk-relay/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health          *handlers.HealthHandler
	Relay           *handlers.RelayHandler
	Deliveries      *handlers.DeliveriesHandler
	TokenMiddleware *auth.TokenMiddleware
	Metrics         *observability.Metrics
}

// RegisterRoutes wires HTTP routes. Every relay route also answers on the path older senders were
// configured with.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	guard := cfg.TokenMiddleware.Handle

	routes := []struct {
		path    string
		legacy  string
		handler fiber.Handler
	}{
		{"/webhooks/otrs/ticket-created", "/abrir-chamado-msp", cfg.Relay.OpenTicketForward},
		{"/webhooks/msp/request-created", "/abrir-chamado-OTRS", cfg.Relay.OpenTicketBackward},
		{"/webhooks/otrs/article-added", "/atualizar-chamado-msp", cfg.Relay.CommentForward},
		{"/webhooks/msp/notification-added", "/atualizar-chamado-otrs", cfg.Relay.CommentBackward},
		{"/webhooks/msp/request-resolved", "/fechar-chamado-otrs", cfg.Relay.CloseForward},
		{"/webhooks/otrs/ticket-closed", "/fechar-chamado-msp", cfg.Relay.CloseBackward},
		{"/webhooks/msp/account-reassign", "/alterar-conta", cfg.Relay.AccountReassign},
	}
	for _, r := range routes {
		app.Post(r.path, guard, r.handler)
		app.Post(r.legacy, guard, r.handler)
	}

	if cfg.Deliveries != nil {
		app.Get("/deliveries/:ticketNumber", guard, cfg.Deliveries.ListByTicket)
	}
}
