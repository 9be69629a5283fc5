package dto

import (
	"time"

	"github.com/noah-isme/campus-connect-api/internal/models"
)

// UserResponse is the single outward shape of a user record.
type UserResponse struct {
	ID             string     `json:"id"`
	DisplayName    string     `json:"display_name"`
	Username       string     `json:"username"`
	Bio            string     `json:"bio"`
	ProfileImage   string     `json:"profile_image"`
	College        string     `json:"college"`
	Branch         string     `json:"branch"`
	PassoutYear    int        `json:"passout_year,omitempty"`
	Interests      []string   `json:"interests"`
	Groups         []string   `json:"groups"`
	BlockedUserIDs []string   `json:"blocked_user_ids"`
	PushEnabled    bool       `json:"push_enabled"`
	IsOnline       bool       `json:"is_online"`
	LastSeenAt     *time.Time `json:"last_seen_at,omitempty"`
}

// NewUserResponse converts a user model to DTO.
func NewUserResponse(user models.User) UserResponse {
	return UserResponse{
		ID:             user.ID,
		DisplayName:    user.DisplayName,
		Username:       user.Username,
		Bio:            user.Bio,
		ProfileImage:   user.ProfileImage,
		College:        user.College,
		Branch:         user.Branch,
		PassoutYear:    user.PassoutYear,
		Interests:      nonNil(user.Interests),
		Groups:         nonNil(user.Groups),
		BlockedUserIDs: nonNil(user.BlockedUserIDs),
		PushEnabled:    user.PushToken != nil && *user.PushToken != "",
		IsOnline:       user.IsOnline,
		LastSeenAt:     user.LastSeenAt,
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// SessionResponse reports the signed-in user and onboarding progress.
type SessionResponse struct {
	User            UserResponse `json:"user"`
	HasUsername     bool         `json:"has_username"`
	HasCollege      bool         `json:"has_college"`
	HasInterests    bool         `json:"has_interests"`
	ProfileComplete bool         `json:"profile_complete"`
}

// ProfileUpdateRequest edits profile fields; nil fields are left untouched.
type ProfileUpdateRequest struct {
	DisplayName *string  `json:"display_name" validate:"omitempty,min=1,max=120"`
	Username    *string  `json:"username" validate:"omitempty,min=3,max=32,alphanum"`
	Bio         *string  `json:"bio" validate:"omitempty,max=500"`
	College     *string  `json:"college" validate:"omitempty,min=2,max=255"`
	Branch      *string  `json:"branch" validate:"omitempty,max=255"`
	PassoutYear *int     `json:"passout_year" validate:"omitempty,min=1950,max=2100"`
	Interests   []string `json:"interests" validate:"omitempty,max=20,dive,min=1,max=40"`
}

// AvatarResponse is returned after a profile image upload.
type AvatarResponse struct {
	URL       string `json:"url"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
}

// PresenceResponse reports whether a user is currently online.
type PresenceResponse struct {
	UserID     string     `json:"user_id"`
	Online     bool       `json:"online"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

// StreakResponse reports a user's activity streak.
type StreakResponse struct {
	UserID        string     `json:"user_id"`
	CurrentStreak int        `json:"current_streak"`
	LongestStreak int        `json:"longest_streak"`
	LastActiveOn  *time.Time `json:"last_active_on,omitempty"`
}

// BlockListResponse is the caller's blocked user ids after a change.
type BlockListResponse struct {
	BlockedUserIDs []string `json:"blocked_user_ids"`
}

// GroupResponse is a catalog group annotated for the caller.
type GroupResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Image  string `json:"image"`
	Joined bool   `json:"joined"`
}

// MembershipResponse is the caller's group list after a join or leave.
type MembershipResponse struct {
	Groups []string `json:"groups"`
}

// ReconcileReport summarises a membership mirror rebuild.
type ReconcileReport struct {
	Users  int `json:"users"`
	Groups int `json:"groups"`
}

// PushTokenRequest registers a device push token.
type PushTokenRequest struct {
	Token string `json:"token" validate:"required,max=255"`
}

// SmartServiceResponse is the result of an action-discriminated request.
type SmartServiceResponse struct {
	Action string      `json:"action"`
	Result interface{} `json:"result,omitempty"`
}

// DeepLinkResponse describes a resolved in-app link.
type DeepLinkResponse struct {
	Kind   string            `json:"kind"`
	PostID uint              `json:"post_id,omitempty"`
	Params map[string]string `json:"params,omitempty"`
}
