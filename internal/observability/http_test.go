package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, handler fiber.Handler) string {
	t.Helper()
	app := fiber.New()
	app.Get("/metrics", handler)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetricsHandlerExposesAPICollectors(t *testing.T) {
	handler := MetricsHandler()
	PushDeliveries().WithLabelValues("ok").Inc()

	body := scrape(t, handler)
	require.Contains(t, body, "push_deliveries_total")
	require.Contains(t, body, "chat_sessions_active")
}

func TestMetricsHandlerForUsesGivenRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	sweeps := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_sweeps_total", Help: "Sweeps run."})
	registry.MustRegister(sweeps)
	sweeps.Add(2)

	body := scrape(t, MetricsHandlerFor(registry))
	require.Contains(t, body, "test_sweeps_total 2")
	require.NotContains(t, body, "push_deliveries_total")
}
