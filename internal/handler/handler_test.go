package handler_test

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-connect-api/internal/middleware"
)

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Message string          `json:"message"`
	Error   *struct {
		Kind      string `json:"kind"`
		Retryable bool   `json:"retryable"`
	} `json:"error"`
	Details map[string]interface{} `json:"details"`
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// asUser stands in for JWTProtected by trusting the X-Test-User and X-Test-Role headers.
func asUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if id := c.Get("X-Test-User"); id != "" {
			c.Locals(middleware.LocalUserID, id)
		} else if id := c.Query("as"); id != "" {
			c.Locals(middleware.LocalUserID, id)
		}
		if role := c.Get("X-Test-Role"); role != "" {
			c.Locals(middleware.LocalUserRole, role)
		}
		return c.Next()
	}
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, json.Unmarshal(data, target))
}

func decodeAPI(t *testing.T, resp *http.Response) apiResponse {
	t.Helper()
	var body apiResponse
	decodeResponse(t, resp, &body)
	return body
}
