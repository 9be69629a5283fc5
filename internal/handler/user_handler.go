package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/campus-connect-api/internal/apperror"
	"github.com/noah-isme/campus-connect-api/internal/dto"
	"github.com/noah-isme/campus-connect-api/internal/middleware"
	"github.com/noah-isme/campus-connect-api/internal/service"
	"github.com/noah-isme/campus-connect-api/internal/utils"
)

// UserHandler serves the signed-in user's session, profile and social controls.
type UserHandler struct {
	sessions service.SessionService
	avatars  service.AvatarService
	presence service.PresenceService
	streaks  service.StreakService
	blocks   service.BlockService
	logger   zerolog.Logger
}

// NewUserHandler constructs a user handler.
func NewUserHandler(
	sessions service.SessionService,
	avatars service.AvatarService,
	presence service.PresenceService,
	streaks service.StreakService,
	blocks service.BlockService,
	logger zerolog.Logger,
) *UserHandler {
	return &UserHandler{
		sessions: sessions,
		avatars:  avatars,
		presence: presence,
		streaks:  streaks,
		blocks:   blocks,
		logger:   logger.With().Str("component", "user_handler").Logger(),
	}
}

// RegisterSession binds GET /session.
func (h *UserHandler) RegisterSession(router fiber.Router) {
	router.Get("/", h.session)
}

// Register binds the /users routes.
func (h *UserHandler) Register(router fiber.Router) {
	router.Patch("/me", h.updateProfile)
	router.Post("/me/avatar", h.uploadAvatar)
	router.Post("/me/presence", h.heartbeat)
	router.Delete("/me/presence", h.offline)
	router.Get("/me/streak", h.streak)
	router.Get("/:id/presence", h.status)
	router.Post("/:id/block", h.block)
	router.Delete("/:id/block", h.unblock)
}

func (h *UserHandler) session(c *fiber.Ctx) error {
	resp, err := h.sessions.Current(requestContext(c), middleware.UserID(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "session", resp)
}

func (h *UserHandler) updateProfile(c *fiber.Ctx) error {
	var req dto.ProfileUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return bodyError(c)
	}
	user, err := h.sessions.UpdateProfile(requestContext(c), middleware.UserID(c), req)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "profile updated", user)
}

func (h *UserHandler) uploadAvatar(c *fiber.Ctx) error {
	file, err := c.FormFile("avatar")
	if err != nil {
		return utils.SendClassifiedError(c, fiber.StatusBadRequest, string(apperror.KindValidation), false, "avatar file is required", nil)
	}

	resp, err := h.avatars.Upload(requestContext(c), middleware.UserID(c), file)
	if err != nil {
		if errors.Is(err, service.ErrUploadTooLarge) {
			return utils.SendClassifiedError(c, fiber.StatusRequestEntityTooLarge, string(apperror.KindValidation), false, err.Error(), nil)
		}
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "avatar uploaded", resp)
}

func (h *UserHandler) heartbeat(c *fiber.Ctx) error {
	resp, err := h.presence.Heartbeat(requestContext(c), middleware.UserID(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "presence updated", resp)
}

func (h *UserHandler) offline(c *fiber.Ctx) error {
	if err := h.presence.Offline(requestContext(c), middleware.UserID(c)); err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "presence cleared", nil)
}

func (h *UserHandler) status(c *fiber.Ctx) error {
	resp, err := h.presence.Status(requestContext(c), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "presence", resp)
}

func (h *UserHandler) streak(c *fiber.Ctx) error {
	resp, err := h.streaks.Get(requestContext(c), middleware.UserID(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "streak", resp)
}

func (h *UserHandler) block(c *fiber.Ctx) error {
	resp, err := h.blocks.Block(requestContext(c), middleware.UserID(c), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "user blocked", resp)
}

func (h *UserHandler) unblock(c *fiber.Ctx) error {
	resp, err := h.blocks.Unblock(requestContext(c), middleware.UserID(c), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "user unblocked", resp)
}
