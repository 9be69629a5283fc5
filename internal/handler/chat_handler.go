package handler

import (
	"context"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/campus-connect-api/internal/apperror"
	"github.com/noah-isme/campus-connect-api/internal/dto"
	"github.com/noah-isme/campus-connect-api/internal/middleware"
	"github.com/noah-isme/campus-connect-api/internal/service"
	"github.com/noah-isme/campus-connect-api/internal/utils"
)

const chatSocketBuffer = 16

// Chat socket event types.
const (
	ChatEventState        = "state"
	ChatEventMessages     = "messages"
	ChatEventTyping       = "typing"
	ChatEventSent         = "sent"
	ChatEventDisappearing = "disappearing"
	ChatEventError        = "error"
)

// ChatHandler wires chat endpoints including the websocket upgrade.
type ChatHandler struct {
	chats     service.ChatService
	sync      service.ChatSyncService
	composers service.ComposerService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewChatHandler creates a chat handler instance.
func NewChatHandler(chats service.ChatService, syncer service.ChatSyncService, composers service.ComposerService, validator *validator.Validate, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		chats:     chats,
		sync:      syncer,
		composers: composers,
		validator: validator,
		logger:    logger.With().Str("component", "chat_handler").Logger(),
	}
}

// Register binds chat routes under the provided router group.
func (h *ChatHandler) Register(router fiber.Router) {
	router.Get("/", h.inbox)
	router.Get("/unread", h.unread)
	router.Post("/direct/:userID/messages", h.sendDirect)
	router.Post("/groups/:groupID/messages", h.sendGroup)
	router.Post("/:id/read", h.markRead)
	router.Patch("/:id/messages/:messageID", h.editMessage)
	router.Delete("/:id/messages/:messageID", h.deleteMessage)
	router.Put("/:id/disappearing", h.setDisappearing)

	router.Use("/:id/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			// The request context does not outlive the upgrade.
			c.Locals("request_ctx", middleware.ContextWithCorrelation(context.Background(), middleware.GetCorrelationID(c)))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/:id/ws", websocket.New(h.handleConnection))
}

func (h *ChatHandler) inbox(c *fiber.Ctx) error {
	summaries, err := h.chats.Inbox(requestContext(c), middleware.UserID(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "chats", summaries)
}

func (h *ChatHandler) unread(c *fiber.Ctx) error {
	counts, err := h.chats.UnreadCounts(requestContext(c), middleware.UserID(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "unread counts", counts)
}

func (h *ChatHandler) sendDirect(c *fiber.Ctx) error {
	ctx := requestContext(c)
	composer, err := h.composers.OpenDirect(ctx, middleware.UserID(c), c.Params("userID"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return h.send(c, ctx, composer)
}

func (h *ChatHandler) sendGroup(c *fiber.Ctx) error {
	ctx := requestContext(c)
	composer, err := h.composers.OpenGroup(ctx, middleware.UserID(c), c.Params("groupID"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return h.send(c, ctx, composer)
}

func (h *ChatHandler) send(c *fiber.Ctx, ctx context.Context, composer *service.Composer) error {
	defer composer.Close(ctx)

	var req dto.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return bodyError(c)
	}
	if err := h.validator.Struct(req); err != nil {
		return respondError(c, h.logger, err)
	}

	message, err := composer.Send(ctx, service.SendRequest{Text: req.Text, ReplyToID: req.ReplyToID})
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", message)
}

func (h *ChatHandler) markRead(c *fiber.Ctx) error {
	marked, err := h.chats.MarkRead(requestContext(c), c.Params("id"), middleware.UserID(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "chat marked as read", fiber.Map{"marked": marked})
}

func (h *ChatHandler) editMessage(c *fiber.Ctx) error {
	var req dto.EditMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return bodyError(c)
	}
	message, err := h.chats.EditMessage(requestContext(c), c.Params("id"), c.Params("messageID"), middleware.UserID(c), req)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "message updated", message)
}

func (h *ChatHandler) deleteMessage(c *fiber.Ctx) error {
	if err := h.chats.DeleteMessage(requestContext(c), c.Params("id"), c.Params("messageID"), middleware.UserID(c)); err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "message deleted", nil)
}

func (h *ChatHandler) setDisappearing(c *fiber.Ctx) error {
	var req dto.DisappearingRequest
	if err := c.BodyParser(&req); err != nil {
		return bodyError(c)
	}

	ctx := requestContext(c)
	composer, err := h.composers.Open(ctx, c.Params("id"), middleware.UserID(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	defer composer.Close(ctx)

	chat, err := composer.SetDisappearing(ctx, req.Enabled, req.Acknowledged)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "disappearing messages updated", chat)
}

// handleConnection multiplexes one chat session and one composer over a socket.
// Server frames are ChatSocketEvent; client frames are ChatSocketCommand.
func (h *ChatHandler) handleConnection(conn *websocket.Conn) {
	userID, _ := conn.Locals(middleware.LocalUserID).(string)
	chatID := strings.TrimSpace(conn.Params("id"))
	if userID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "user id missing"))
		return
	}

	baseCtx, _ := conn.Locals("request_ctx").(context.Context)
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	logger := h.logger.With().Str("user_id", userID).Str("chat_id", chatID).Logger()

	session, err := h.sync.Open(ctx, chatID, userID)
	if err != nil {
		h.rejectConnection(conn, err)
		return
	}
	defer session.Close()

	composer, err := h.composers.Open(ctx, chatID, userID)
	if err != nil {
		h.rejectConnection(conn, err)
		return
	}
	defer composer.Close(context.Background())

	typingFeed, err := h.sync.WatchTyping(ctx, chatID, userID)
	if err != nil {
		h.rejectConnection(conn, err)
		return
	}
	typing, err := typingFeed.Start(ctx)
	if err != nil {
		h.rejectConnection(conn, err)
		return
	}
	defer typingFeed.Stop()

	logger.Info().Msg("chat websocket connected")
	defer logger.Info().Msg("chat websocket disconnected")

	out := make(chan dto.ChatSocketEvent, chatSocketBuffer)
	emit := func(event dto.ChatSocketEvent) {
		select {
		case out <- event:
		case <-ctx.Done():
		}
	}

	var writers sync.WaitGroup
	writers.Add(1)
	go func() {
		defer writers.Done()
		for event := range out {
			if err := conn.WriteJSON(event); err != nil {
				logger.Debug().Err(err).Msg("chat websocket write failed")
				cancel()
				for range out {
				}
				return
			}
		}
	}()

	var pump sync.WaitGroup
	pump.Add(1)
	go func() {
		defer pump.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-session.Updates():
				if !ok {
					return
				}
				emit(chatUpdateEvent(update))
			case snapshot, ok := <-typing:
				if !ok {
					typing = nil
					continue
				}
				if snapshot.Err != nil {
					logger.Debug().Err(snapshot.Err).Msg("typing reload failed")
					continue
				}
				emit(dto.ChatSocketEvent{Type: ChatEventTyping, TypingIDs: withoutUser(snapshot.Value, userID)})
			}
		}
	}()

	for {
		var cmd dto.ChatSocketCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			break
		}
		if event, ok := h.handleCommand(ctx, session, composer, cmd); ok {
			emit(event)
		}
	}

	cancel()
	pump.Wait()
	close(out)
	writers.Wait()
}

func (h *ChatHandler) handleCommand(ctx context.Context, session *service.ChatSession, composer *service.Composer, cmd dto.ChatSocketCommand) (dto.ChatSocketEvent, bool) {
	if err := h.validator.Struct(cmd); err != nil {
		return errorEvent(err), true
	}

	switch cmd.Action {
	case "retry":
		if err := session.Retry(); err != nil {
			return errorEvent(err), true
		}
	case "send":
		message, err := composer.Send(ctx, service.SendRequest{Text: cmd.Text, ReplyToID: cmd.ReplyToID})
		if err != nil {
			return errorEvent(err), true
		}
		return dto.ChatSocketEvent{Type: ChatEventSent, Message: &message}, true
	case "typing":
		if err := composer.Input(ctx, cmd.Text); err != nil {
			return errorEvent(err), true
		}
	case "disappearing":
		chat, err := composer.SetDisappearing(ctx, cmd.Enabled, cmd.Acknowledged)
		if err != nil {
			return errorEvent(err), true
		}
		state := "off"
		if chat.Disappearing {
			state = "on"
		}
		return dto.ChatSocketEvent{Type: ChatEventDisappearing, State: state}, true
	}
	return dto.ChatSocketEvent{}, false
}

func (h *ChatHandler) rejectConnection(conn *websocket.Conn, err error) {
	_ = conn.WriteJSON(errorEvent(err))
	code := websocket.CloseInternalServerErr
	switch apperror.Classify(err) {
	case apperror.KindForbidden, apperror.KindValidation, apperror.KindNotFound, apperror.KindAuth:
		code = websocket.ClosePolicyViolation
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, err.Error()))
}

func chatUpdateEvent(update service.ChatUpdate) dto.ChatSocketEvent {
	event := dto.ChatSocketEvent{Type: ChatEventState, State: string(update.State)}
	if update.State == service.ChatStateReady && update.Err == nil {
		event.Type = ChatEventMessages
		event.Messages = update.Messages
	}
	if update.Err != nil {
		event.Error = errorBody(update.Err)
	}
	return event
}

func errorEvent(err error) dto.ChatSocketEvent {
	return dto.ChatSocketEvent{Type: ChatEventError, Error: errorBody(err)}
}

func errorBody(err error) *dto.ErrorBody {
	kind := apperror.Classify(err)
	return &dto.ErrorBody{Kind: string(kind), Message: err.Error(), Retryable: apperror.Retryable(kind)}
}

func withoutUser(ids []string, userID string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != userID {
			out = append(out, id)
		}
	}
	return out
}
