package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-connect-api/internal/handler"
	"github.com/noah-isme/campus-connect-api/internal/service"
)

type mockPushService struct {
	service.PushService
	registered   map[string]string
	unregistered []string
	cleared      []string
	err          error
}

func (m *mockPushService) Register(_ context.Context, userID, token string) error {
	if m.err != nil {
		return m.err
	}
	if m.registered == nil {
		m.registered = map[string]string{}
	}
	m.registered[userID] = token
	return nil
}

func (m *mockPushService) Unregister(_ context.Context, userID string) error {
	m.unregistered = append(m.unregistered, userID)
	return m.err
}

func (m *mockPushService) ClearBadge(_ context.Context, userID string) error {
	m.cleared = append(m.cleared, userID)
	return m.err
}

func newPushApp(svc service.PushService) *fiber.App {
	app := fiber.New()
	handler.NewPushHandler(svc, validator.New(), testLogger()).Register(app.Group("/push", asUser()))
	return app
}

func TestPushHandlerRegistersToken(t *testing.T) {
	svc := &mockPushService{}
	req := httptest.NewRequest(http.MethodPut, "/push/token", strings.NewReader(`{"token":"ExponentPushToken[abc]"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", "alice")

	resp, err := newPushApp(svc).Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "ExponentPushToken[abc]", svc.registered["alice"])
}

func TestPushHandlerRejectsInvalidTokens(t *testing.T) {
	cases := map[string]struct {
		body string
		err  error
	}{
		"missing token":  {body: `{}`},
		"malformed body": {body: `{"token":`},
		"service reject": {body: `{"token":"not-a-token"}`, err: service.ErrInvalidPushToken},
	}

	for name, tc := range cases {
		req := httptest.NewRequest(http.MethodPut, "/push/token", strings.NewReader(tc.body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-User", "alice")

		resp, err := newPushApp(&mockPushService{err: tc.err}).Test(req)
		require.NoError(t, err, name)
		require.Equal(t, fiber.StatusBadRequest, resp.StatusCode, name)
		body := decodeAPI(t, resp)
		require.NotNil(t, body.Error, name)
		require.Equal(t, "validation", body.Error.Kind, name)
	}
}

func TestPushHandlerUnregisterAndClearBadge(t *testing.T) {
	svc := &mockPushService{}
	app := newPushApp(svc)

	req := httptest.NewRequest(http.MethodDelete, "/push/token", nil)
	req.Header.Set("X-Test-User", "alice")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	req = httptest.NewRequest(http.MethodPost, "/push/badge/clear", nil)
	req.Header.Set("X-Test-User", "alice")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.Equal(t, []string{"alice"}, svc.unregistered)
	require.Equal(t, []string{"alice"}, svc.cleared)
}
