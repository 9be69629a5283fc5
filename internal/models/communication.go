package models

import (
	"sort"
	"strings"
	"time"
)

// Chat kinds.
const (
	ChatKindDirect = "direct"
	ChatKindGroup  = "group"
)

const groupChatPrefix = "group_"

// Chat is the real-time document describing a conversation.
type Chat struct {
	ID                  string     `json:"id"`
	Kind                string     `json:"kind"`
	Participants        []string   `json:"participants"`
	LastMessage         string     `json:"lastMessage,omitempty"`
	LastMessageSenderID string     `json:"lastMessageSenderId,omitempty"`
	LastMessageAt       *time.Time `json:"lastMessageAt,omitempty"`
	Disappearing        bool       `json:"disappearing"`
	TypingUserIDs       []string   `json:"typingUserIds,omitempty"`
}

// ReplyRef is the snapshot of the message being replied to.
type ReplyRef struct {
	ID         string `json:"id"`
	SenderID   string `json:"senderId"`
	Ciphertext string `json:"ciphertext"`
}

// ChatMessage is a single encrypted message document in a chat's message collection.
type ChatMessage struct {
	ID         string          `json:"id"`
	ChatID     string          `json:"chatId"`
	SenderID   string          `json:"senderId"`
	Ciphertext string          `json:"ciphertext"`
	ReplyTo    *ReplyRef       `json:"replyTo,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	ReadBy     map[string]bool `json:"readBy"`
	UnreadBy   []string        `json:"unreadBy"`
	ExpiresAt  *time.Time      `json:"expiresAt,omitempty"`
	EditedAt   *time.Time      `json:"editedAt,omitempty"`
}

// Expired reports whether a disappearing message passed its expiry at the given instant.
func (m ChatMessage) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !now.Before(*m.ExpiresAt)
}

// SortMessages orders messages by timestamp, oldest first, breaking ties by id.
func SortMessages(messages []ChatMessage) {
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].Timestamp.Equal(messages[j].Timestamp) {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
}

// DirectChatID returns the deterministic chat id shared by two users.
func DirectChatID(a, b string) string {
	pair := []string{strings.TrimSpace(a), strings.TrimSpace(b)}
	sort.Strings(pair)
	return pair[0] + "_" + pair[1]
}

// ParseDirectChatID splits a direct chat id into its two participants.
func ParseDirectChatID(chatID string) (string, string, bool) {
	if strings.HasPrefix(chatID, groupChatPrefix) {
		return "", "", false
	}
	a, b, ok := strings.Cut(chatID, "_")
	if !ok || a == "" || b == "" || strings.Contains(b, "_") {
		return "", "", false
	}
	return a, b, true
}

// GroupChatID returns the chat id backing a group room.
func GroupChatID(groupID string) string {
	return groupChatPrefix + groupID
}

// GroupIDFromChatID extracts the group id from a group chat id.
func GroupIDFromChatID(chatID string) (string, bool) {
	if !strings.HasPrefix(chatID, groupChatPrefix) {
		return "", false
	}
	groupID := strings.TrimPrefix(chatID, groupChatPrefix)
	return groupID, groupID != ""
}

// Notification represents an in-app notification targeted to a specific user.
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"size:64;index" json:"user_id"`
	Type      string    `gorm:"size:64" json:"type"`
	Message   string    `gorm:"type:text" json:"message"`
	Read      bool      `gorm:"not null;default:false" json:"read"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
