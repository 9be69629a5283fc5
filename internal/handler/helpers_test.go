package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-connect-api/internal/apperror"
	"github.com/noah-isme/campus-connect-api/internal/service"
	"github.com/noah-isme/campus-connect-api/internal/utils"
)

func TestRespondErrorMapsKinds(t *testing.T) {
	type profile struct {
		Username string `validate:"required"`
	}
	validationErr := validator.New().Struct(profile{})

	cases := []struct {
		name      string
		err       error
		status    int
		kind      apperror.Kind
		retryable bool
		message   string
	}{
		{"validation", validationErr, fiber.StatusBadRequest, apperror.KindValidation, false, "validation failed"},
		{"not found", service.ErrPostNotFound, fiber.StatusNotFound, apperror.KindNotFound, false, "post not found"},
		{"forbidden", service.ErrChatBlocked, fiber.StatusForbidden, apperror.KindForbidden, false, service.ErrChatBlocked.Error()},
		{"conflict", fmt.Errorf("send: %w", service.ErrSendInFlight), fiber.StatusConflict, apperror.KindConflict, false, "send: a message is already being sent"},
		{"timeout", service.ErrChatTimeout, fiber.StatusGatewayTimeout, apperror.KindTimeout, true, service.ErrChatTimeout.Error()},
		{"unclassified", errors.New("pq: connection reset"), fiber.StatusInternalServerError, apperror.KindUnknown, false, "internal server error"},
	}

	for _, tc := range cases {
		app := fiber.New()
		app.Get("/", func(c *fiber.Ctx) error {
			return respondError(c, zerolog.Nop(), tc.err)
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(t, err, tc.name)
		require.Equal(t, tc.status, resp.StatusCode, tc.name)

		var body utils.APIResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body), tc.name)
		require.False(t, body.Success, tc.name)
		require.Equal(t, tc.message, body.Message, tc.name)
		require.NotNil(t, body.Error, tc.name)
		require.Equal(t, string(tc.kind), body.Error.Kind, tc.name)
		require.Equal(t, tc.retryable, body.Error.Retryable, tc.name)
	}
}

func TestRespondErrorIncludesFieldDetails(t *testing.T) {
	type profile struct {
		Username string `validate:"required"`
	}
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return respondError(c, zerolog.Nop(), validator.New().Struct(profile{}))
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	var body struct {
		Details map[string]string `json:"details"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, map[string]string{"Username": "required"}, body.Details)
}

func TestParseUintValue(t *testing.T) {
	value, err := parseUintValue(" 12 ")
	require.NoError(t, err)
	require.Equal(t, uint(12), value)

	for _, raw := range []string{"", "0", "-1", "abc"} {
		_, err := parseUintValue(raw)
		require.Error(t, err, raw)
	}
}
