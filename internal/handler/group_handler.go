package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/campus-connect-api/internal/middleware"
	"github.com/noah-isme/campus-connect-api/internal/service"
	"github.com/noah-isme/campus-connect-api/internal/utils"
)

// GroupHandler exposes the group catalog and membership changes.
type GroupHandler struct {
	service service.MembershipService
	logger  zerolog.Logger
}

// NewGroupHandler constructs a group handler.
func NewGroupHandler(service service.MembershipService, logger zerolog.Logger) *GroupHandler {
	return &GroupHandler{
		service: service,
		logger:  logger.With().Str("component", "group_handler").Logger(),
	}
}

// Register binds group routes.
func (h *GroupHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Post("/:id/join", h.join)
	router.Post("/:id/leave", h.leave)
}

// RegisterAdmin binds the administrative membership routes. The group must enforce the admin role.
func (h *GroupHandler) RegisterAdmin(router fiber.Router) {
	router.Post("/reconcile", h.reconcile)
}

func (h *GroupHandler) list(c *fiber.Ctx) error {
	groups, err := h.service.Groups(requestContext(c), middleware.UserID(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "groups", groups)
}

func (h *GroupHandler) join(c *fiber.Ctx) error {
	resp, err := h.service.Join(requestContext(c), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "joined group", resp)
}

func (h *GroupHandler) leave(c *fiber.Ctx) error {
	resp, err := h.service.Leave(requestContext(c), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "left group", resp)
}

func (h *GroupHandler) reconcile(c *fiber.Ctx) error {
	report, err := h.service.Reconcile(requestContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	requestLogger(h.logger, c).Info().Int("users", report.Users).Int("groups", report.Groups).Msg("memberships reconciled")
	return utils.SendSuccess(c, "memberships reconciled", report)
}
