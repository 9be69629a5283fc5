package models

import (
	"slices"
	"time"

	"gorm.io/datatypes"
)

// User is the canonical profile record owned by the relational store.
type User struct {
	ID             string                      `gorm:"primaryKey;size:64" json:"id"`
	DisplayName    string                      `gorm:"size:120" json:"display_name"`
	Username       string                      `gorm:"size:64;index" json:"username"`
	Bio            string                      `gorm:"type:text" json:"bio"`
	ProfileImage   string                      `gorm:"size:512" json:"profile_image"`
	College        string                      `gorm:"size:255" json:"college"`
	Branch         string                      `gorm:"size:255" json:"branch"`
	PassoutYear    int                         `json:"passout_year"`
	Interests      datatypes.JSONSlice[string] `json:"interests"`
	Groups         datatypes.JSONSlice[string] `json:"groups"`
	BlockedUserIDs datatypes.JSONSlice[string] `gorm:"column:blocked_user_ids" json:"blocked_user_ids"`
	PushToken      *string                     `gorm:"size:255" json:"-"`
	IsOnline       bool                        `gorm:"not null;default:false" json:"is_online"`
	LastSeenAt     *time.Time                  `json:"last_seen_at"`
	CreatedAt      time.Time                   `json:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`
}

// HasBlocked reports whether the user blocked the given user id.
func (u User) HasBlocked(userID string) bool {
	return slices.Contains(u.BlockedUserIDs, userID)
}

// InGroup reports whether the user's membership list contains the group.
func (u User) InGroup(groupID string) bool {
	return slices.Contains(u.Groups, groupID)
}

// ProfileComplete reports whether onboarding captured the mandatory profile fields.
func (u User) ProfileComplete() bool {
	return u.Username != "" && u.College != "" && len(u.Interests) > 0
}
