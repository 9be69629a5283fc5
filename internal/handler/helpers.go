package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/campus-connect-api/internal/apperror"
	"github.com/noah-isme/campus-connect-api/internal/middleware"
	"github.com/noah-isme/campus-connect-api/internal/utils"
)

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func parseUintParam(c *fiber.Ctx, key string) (uint, error) {
	value, err := parseUintValue(c.Params(key))
	if err != nil {
		return 0, apperror.New(apperror.KindValidation, "invalid "+key)
	}
	return value, nil
}

func parseUintValue(raw string) (uint, error) {
	parsed, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	if parsed == 0 {
		return 0, strconv.ErrRange
	}
	return uint(parsed), nil
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

func validationDetails(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	details := make(map[string]string, len(validationErrors))
	for _, fieldErr := range validationErrors {
		details[fieldErr.Field()] = fieldErr.Tag()
	}
	return details
}

func statusForKind(kind apperror.Kind) int {
	switch kind {
	case apperror.KindValidation:
		return fiber.StatusBadRequest
	case apperror.KindAuth:
		return fiber.StatusUnauthorized
	case apperror.KindForbidden:
		return fiber.StatusForbidden
	case apperror.KindNotFound:
		return fiber.StatusNotFound
	case apperror.KindConflict:
		return fiber.StatusConflict
	case apperror.KindDecryption:
		return fiber.StatusUnprocessableEntity
	case apperror.KindTimeout:
		return fiber.StatusGatewayTimeout
	case apperror.KindNetwork:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError classifies err and writes it with the matching status and retry hint.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	kind := apperror.Classify(err)
	status := statusForKind(kind)

	message := err.Error()
	var details interface{}
	if isValidationError(err) {
		message = "validation failed"
		details = validationDetails(err)
	}
	if status >= fiber.StatusInternalServerError && kind != apperror.KindTimeout && kind != apperror.KindNetwork {
		requestLogger(logger, c).Error().Err(err).Str("kind", string(kind)).Msg("request failed")
		message = "internal server error"
	}

	return utils.SendClassifiedError(c, status, string(kind), apperror.Retryable(kind), message, details)
}

func bodyError(c *fiber.Ctx) error {
	return utils.SendClassifiedError(c, fiber.StatusBadRequest, string(apperror.KindValidation), false, "invalid request body", nil)
}
