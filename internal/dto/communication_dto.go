package dto

import (
	"time"

	"github.com/noah-isme/campus-connect-api/internal/models"
)

// SendMessageRequest is the composer payload for a new chat message.
type SendMessageRequest struct {
	Text      string `json:"text" validate:"required,min=1,max=4000"`
	ReplyToID string `json:"reply_to_id" validate:"omitempty,max=64"`
}

// EditMessageRequest replaces the text of an existing message.
type EditMessageRequest struct {
	Text string `json:"text" validate:"required,min=1,max=4000"`
}

// DisappearingRequest toggles disappearing messages for a chat. Acknowledged
// carries the user's opt-in confirmation.
type DisappearingRequest struct {
	Enabled      bool `json:"enabled"`
	Acknowledged bool `json:"acknowledged"`
}

// ReplyView is the decrypted snapshot of a replied-to message.
type ReplyView struct {
	ID       string `json:"id"`
	SenderID string `json:"sender_id"`
	Text     string `json:"text"`
}

// ChatMessageView is a chat message with its text decrypted for the viewer.
type ChatMessageView struct {
	ID        string          `json:"id"`
	ChatID    string          `json:"chat_id"`
	SenderID  string          `json:"sender_id"`
	Text      string          `json:"text"`
	Decrypted bool            `json:"decrypted"`
	ReplyTo   *ReplyView      `json:"reply_to,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	ReadBy    map[string]bool `json:"read_by"`
	UnreadBy  []string        `json:"unread_by"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	EditedAt  *time.Time      `json:"edited_at,omitempty"`
}

// ChatSummary is an inbox row.
type ChatSummary struct {
	ID                  string     `json:"id"`
	Kind                string     `json:"kind"`
	Participants        []string   `json:"participants"`
	LastMessage         string     `json:"last_message,omitempty"`
	LastMessageSenderID string     `json:"last_message_sender_id,omitempty"`
	LastMessageAt       *time.Time `json:"last_message_at,omitempty"`
	Disappearing        bool       `json:"disappearing"`
	TypingUserIDs       []string   `json:"typing_user_ids"`
	Unread              int64      `json:"unread"`
}

// ChatSocketCommand is a client frame on the chat WebSocket.
type ChatSocketCommand struct {
	Action       string `json:"action" validate:"required,oneof=retry send typing disappearing"`
	Text         string `json:"text"`
	ReplyToID    string `json:"reply_to_id"`
	Enabled      bool   `json:"enabled"`
	Acknowledged bool   `json:"acknowledged"`
}

// ChatSocketEvent is a server frame on the chat WebSocket.
type ChatSocketEvent struct {
	Type      string            `json:"type"`
	State     string            `json:"state,omitempty"`
	Messages  []ChatMessageView `json:"messages,omitempty"`
	Message   *ChatMessageView  `json:"message,omitempty"`
	TypingIDs []string          `json:"typing_user_ids,omitempty"`
	Error     *ErrorBody        `json:"error,omitempty"`
}

// ErrorBody describes a classified failure.
type ErrorBody struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// NotificationCreateRequest describes the payload to create a notification.
type NotificationCreateRequest struct {
	UserID  string            `json:"user_id" validate:"required,max=64"`
	Type    string            `json:"type" validate:"required,max=64"`
	Message string            `json:"message" validate:"required,min=1,max=2000"`
	Data    map[string]string `json:"data,omitempty"`
}

// NotificationResponse represents notification data returned to clients.
type NotificationResponse struct {
	ID        uint      `json:"id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NotificationListResponse pairs a page of notifications with the unread total.
type NotificationListResponse struct {
	Items  []NotificationResponse `json:"items"`
	Unread int64                  `json:"unread"`
}

// NewNotificationResponse converts a notification model to DTO.
func NewNotificationResponse(model models.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        model.ID,
		UserID:    model.UserID,
		Type:      model.Type,
		Message:   model.Message,
		Read:      model.Read,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}

// NewNotificationResponseSlice converts a slice to DTOs.
func NewNotificationResponseSlice(items []models.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewNotificationResponse(item))
	}
	return out
}
