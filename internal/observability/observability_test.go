package observability

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/helpdesk-relay/internal/config"
)

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics()

	m.RecordRelay("open-ticket-forward", "forwarded", time.Second)
	m.RecordRelay("open-ticket-forward", "forwarded", time.Second)
	m.RecordRelay("open-ticket-forward", "failed", time.Second)
	m.ObserveUpstream("msp", "GET", 200, 10*time.Millisecond)
	m.RecordError("/x", "POST", "UPSTREAM_FAILED")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.relays.WithLabelValues("open-ticket-forward", "forwarded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.relays.WithLabelValues("open-ticket-forward", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.upstream.WithLabelValues("msp", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("/x", "POST", "UPSTREAM_FAILED")))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "helpdesk_relay_relay_delivery_duration_seconds")
	assert.Contains(t, names, "helpdesk_relay_upstream_call_duration_seconds")
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("/", "GET", 200, time.Millisecond)
		m.RecordError("/", "GET", "X")
		m.RecordRelay("r", "forwarded", time.Millisecond)
		m.ObserveUpstream("otrs", "POST", 500, time.Millisecond)
	})
}

func TestRequestIDContext(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(context.Background()))

	ctx := WithRequestID(context.Background(), "abc")
	assert.Equal(t, "abc", RequestIDFromContext(ctx))
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger(config.LoggerConfig{Level: "chatty"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.InfoLevel))
	assert.False(t, logger.Core().Enabled(zap.DebugLevel))

	logger, err = NewLogger(config.LoggerConfig{Level: "DEBUG"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))
}

func TestRequestLoggerLevelsByStatus(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	m := NewMetrics()
	app := fiber.New()
	app.Use(RequestLogger(zap.New(core), m))
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/bad", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusBadRequest) })
	app.Get("/boom", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusBadGateway) })

	for _, path := range []string{"/ok", "/bad", "/boom"} {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, path, nil), -1)
		require.NoError(t, err)
		resp.Body.Close()
	}

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, zap.ErrorLevel, entries[2].Level)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/bad", "GET", "400")))
}
