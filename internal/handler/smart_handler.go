package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/campus-connect-api/internal/middleware"
	"github.com/noah-isme/campus-connect-api/internal/service"
	"github.com/noah-isme/campus-connect-api/internal/utils"
)

// SmartServiceHandler forwards raw action bodies to the smart service.
type SmartServiceHandler struct {
	service service.SmartService
	logger  zerolog.Logger
}

// NewSmartServiceHandler constructs the handler.
func NewSmartServiceHandler(service service.SmartService, logger zerolog.Logger) *SmartServiceHandler {
	return &SmartServiceHandler{
		service: service,
		logger:  logger.With().Str("component", "smart_service_handler").Logger(),
	}
}

// Register binds POST / on the provided group.
func (h *SmartServiceHandler) Register(router fiber.Router) {
	router.Post("/", h.execute)
}

func (h *SmartServiceHandler) execute(c *fiber.Ctx) error {
	// Body is reused by fasthttp once the handler returns.
	body := append([]byte(nil), c.Body()...)
	resp, err := h.service.Execute(requestContext(c), middleware.UserID(c), middleware.UserRole(c), body)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, resp.Action, resp)
}
