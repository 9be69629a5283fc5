package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newPipelineApp(buf *bytes.Buffer) *fiber.App {
	logger := zerolog.New(buf)
	app := fiber.New()
	Register(app, Config{Logger: &logger, AllowOrigins: "https://campus.example.com"})
	app.Get("/api/ping", func(c *fiber.Ctx) error {
		return c.SendString(CorrelationIDFromContext(c.UserContext()))
	})
	app.Get("/api/panic", func(c *fiber.Ctx) error {
		panic("boom")
	})
	return app
}

func TestRegisterPropagatesCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	app := newPipelineApp(&buf)

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("X-Correlation-ID", "corr-123")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "corr-123", resp.Header.Get("X-Correlation-ID"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "corr-123", string(body))
	require.Contains(t, buf.String(), `"correlation_id":"corr-123"`)
	require.Contains(t, buf.String(), `"route":"/api/ping"`)
}

func TestRegisterGeneratesCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	resp, err := newPipelineApp(&buf).Test(httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	require.NoError(t, err)
	require.Len(t, resp.Header.Get("X-Correlation-ID"), 36)
}

func TestRegisterRecoversPanics(t *testing.T) {
	var buf bytes.Buffer
	resp, err := newPipelineApp(&buf).Test(httptest.NewRequest(http.MethodGet, "/api/panic", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestRegisterAppliesCORSOrigins(t *testing.T) {
	var buf bytes.Buffer
	req := httptest.NewRequest(http.MethodOptions, "/api/ping", nil)
	req.Header.Set("Origin", "https://campus.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	resp, err := newPipelineApp(&buf).Test(req)
	require.NoError(t, err)
	require.Equal(t, "https://campus.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRegisterFallsBackToRequestID(t *testing.T) {
	var buf bytes.Buffer
	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set(HeaderRequestID, "req-42")

	resp, err := newPipelineApp(&buf).Test(req)
	require.NoError(t, err)
	require.Equal(t, "req-42", resp.Header.Get(HeaderCorrelationID))
}

func TestRegisterReplacesUnusableCorrelationIDs(t *testing.T) {
	for name, incoming := range map[string]string{
		"too long": strings.Repeat("a", maxCorrelationLength+1),
		"spaces":   "two words",
	} {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
			req.Header.Set(HeaderCorrelationID, incoming)

			resp, err := newPipelineApp(&buf).Test(req)
			require.NoError(t, err)
			got := resp.Header.Get(HeaderCorrelationID)
			require.NotEqual(t, incoming, got)
			require.Len(t, got, 36)
		})
	}
}

func TestContextWithCorrelation(t *testing.T) {
	require.Empty(t, CorrelationIDFromContext(nil))

	ctx := ContextWithCorrelation(nil, "  corr-9 ")
	require.Equal(t, "corr-9", CorrelationIDFromContext(ctx))

	unchanged := ContextWithCorrelation(ctx, " ")
	require.Equal(t, "corr-9", CorrelationIDFromContext(unchanged))
}
