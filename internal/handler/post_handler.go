package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/campus-connect-api/internal/dto"
	"github.com/noah-isme/campus-connect-api/internal/middleware"
	"github.com/noah-isme/campus-connect-api/internal/service"
	"github.com/noah-isme/campus-connect-api/internal/utils"
)

// PostSocketEvent is a server frame on the post watch socket.
type PostSocketEvent struct {
	Type     string            `json:"type"`
	Snapshot *dto.PostSnapshot `json:"snapshot,omitempty"`
	Error    *dto.ErrorBody    `json:"error,omitempty"`
}

// PostHandler serves the feed, comments and engagement toggles.
type PostHandler struct {
	service service.FeedService
	logger  zerolog.Logger
}

// NewPostHandler constructs a post handler.
func NewPostHandler(service service.FeedService, logger zerolog.Logger) *PostHandler {
	return &PostHandler{
		service: service,
		logger:  logger.With().Str("component", "post_handler").Logger(),
	}
}

// Register binds the /posts routes.
func (h *PostHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Post("/", h.create)
	router.Get("/:id", h.get)
	router.Patch("/:id", h.update)
	router.Delete("/:id", h.delete)
	router.Get("/:id/comments", h.comments)
	router.Post("/:id/comments", h.addComment)
	router.Put("/:id/like", h.like)
	router.Delete("/:id/like", h.unlike)
	router.Put("/:id/save", h.save)
	router.Delete("/:id/save", h.unsave)

	router.Use("/:id/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/:id/ws", websocket.New(h.handleWatch))
}

// RegisterComments binds the /comments routes.
func (h *PostHandler) RegisterComments(router fiber.Router) {
	router.Delete("/:id", h.deleteComment)
}

func (h *PostHandler) list(c *fiber.Ctx) error {
	var query dto.PostListQuery
	if err := c.QueryParser(&query); err != nil {
		return bodyError(c)
	}
	posts, err := h.service.List(requestContext(c), middleware.UserID(c), query)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.OK(c, posts, "posts", fiber.Map{"limit": query.Limit, "offset": query.Offset, "count": len(posts)})
}

func (h *PostHandler) create(c *fiber.Ctx) error {
	var req dto.PostCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return bodyError(c)
	}
	post, err := h.service.Create(requestContext(c), middleware.UserID(c), req)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "post created", post)
}

func (h *PostHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return respondError(c, h.logger, err)
	}
	post, err := h.service.Get(requestContext(c), middleware.UserID(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "post", post)
}

func (h *PostHandler) update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return respondError(c, h.logger, err)
	}
	var req dto.PostUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return bodyError(c)
	}
	post, err := h.service.Update(requestContext(c), middleware.UserID(c), id, req)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "post updated", post)
}

func (h *PostHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return respondError(c, h.logger, err)
	}
	if err := h.service.Delete(requestContext(c), middleware.UserID(c), id); err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "post deleted", nil)
}

func (h *PostHandler) comments(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return respondError(c, h.logger, err)
	}
	comments, err := h.service.Comments(requestContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "comments", comments)
}

func (h *PostHandler) addComment(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return respondError(c, h.logger, err)
	}
	var req dto.CommentCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return bodyError(c)
	}
	comment, err := h.service.AddComment(requestContext(c), middleware.UserID(c), id, req)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "comment added", comment)
}

func (h *PostHandler) deleteComment(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return respondError(c, h.logger, err)
	}
	if err := h.service.DeleteComment(requestContext(c), middleware.UserID(c), id); err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "comment deleted", nil)
}

type engagementFunc func(ctx context.Context, userID string, postID uint) (dto.EngagementResponse, error)

func (h *PostHandler) toggle(c *fiber.Ctx, fn engagementFunc, message string) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return respondError(c, h.logger, err)
	}
	resp, err := fn(requestContext(c), middleware.UserID(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, message, resp)
}

func (h *PostHandler) like(c *fiber.Ctx) error   { return h.toggle(c, h.service.Like, "post liked") }
func (h *PostHandler) unlike(c *fiber.Ctx) error { return h.toggle(c, h.service.Unlike, "post unliked") }
func (h *PostHandler) save(c *fiber.Ctx) error   { return h.toggle(c, h.service.Save, "post saved") }
func (h *PostHandler) unsave(c *fiber.Ctx) error { return h.toggle(c, h.service.Unsave, "post unsaved") }

// handleWatch streams post snapshots until the client disconnects.
func (h *PostHandler) handleWatch(conn *websocket.Conn) {
	userID, _ := conn.Locals(middleware.LocalUserID).(string)
	id, err := parseUintValue(conn.Params("id"))
	if err != nil || userID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid post watch request"))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed, err := h.service.Watch(ctx, userID, id)
	if err != nil {
		_ = conn.WriteJSON(PostSocketEvent{Type: "error", Error: errorBody(err)})
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
		return
	}
	snapshots, err := feed.Start(ctx)
	if err != nil {
		_ = conn.WriteJSON(PostSocketEvent{Type: "error", Error: errorBody(err)})
		return
	}
	defer feed.Stop()

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for snapshot := range snapshots {
		event := PostSocketEvent{Type: "snapshot"}
		if snapshot.Err != nil {
			event = PostSocketEvent{Type: "error", Error: errorBody(snapshot.Err)}
		} else {
			value := snapshot.Value
			event.Snapshot = &value
		}
		if err := conn.WriteJSON(event); err != nil {
			h.logger.Debug().Err(err).Uint("post_id", id).Msg("post watch write failed")
			return
		}
	}
}
