package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/campus-connect-api/internal/dto"
	"github.com/noah-isme/campus-connect-api/internal/middleware"
	"github.com/noah-isme/campus-connect-api/internal/service"
	"github.com/noah-isme/campus-connect-api/internal/utils"
)

// PushHandler manages the caller's device push registration.
type PushHandler struct {
	service   service.PushService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewPushHandler constructs a push handler.
func NewPushHandler(service service.PushService, validator *validator.Validate, logger zerolog.Logger) *PushHandler {
	return &PushHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "push_handler").Logger(),
	}
}

// Register binds push routes.
func (h *PushHandler) Register(router fiber.Router) {
	router.Put("/token", h.register)
	router.Delete("/token", h.unregister)
	router.Post("/badge/clear", h.clearBadge)
}

func (h *PushHandler) register(c *fiber.Ctx) error {
	var req dto.PushTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return bodyError(c)
	}
	if err := h.validator.Struct(req); err != nil {
		return respondError(c, h.logger, err)
	}
	if err := h.service.Register(requestContext(c), middleware.UserID(c), req.Token); err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "push token registered", nil)
}

func (h *PushHandler) unregister(c *fiber.Ctx) error {
	if err := h.service.Unregister(requestContext(c), middleware.UserID(c)); err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "push token removed", nil)
}

func (h *PushHandler) clearBadge(c *fiber.Ctx) error {
	if err := h.service.ClearBadge(requestContext(c), middleware.UserID(c)); err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "badge cleared", nil)
}
