package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-connect-api/internal/dto"
	"github.com/noah-isme/campus-connect-api/internal/models"
)

func strPtr(value string) *string { return &value }

func TestSessionCurrentTracksOnboarding(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := NewSessionService(env.users, env.validate, testLogger())

	session, err := svc.Current(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "alice", session.User.ID)
	require.False(t, session.ProfileComplete)

	updated, err := svc.UpdateProfile(ctx, "alice", dto.ProfileUpdateRequest{
		Username:  strPtr("AliceW"),
		College:   strPtr("IIT Bombay"),
		Bio:       strPtr("<script>x</script>hello"),
		Interests: []string{"Go", "go", " music "},
	})
	require.NoError(t, err)
	require.Equal(t, "alicew", updated.Username)
	require.Equal(t, "hello", updated.Bio)
	require.Equal(t, []string{"Go", "music"}, updated.Interests)

	session, err = svc.Current(ctx, "alice")
	require.NoError(t, err)
	require.True(t, session.HasUsername)
	require.True(t, session.HasCollege)
	require.True(t, session.HasInterests)
	require.True(t, session.ProfileComplete)
}

func TestSessionUpdateProfileRejectsTakenUsername(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, models.User{ID: "bob", Username: "builder"})
	svc := NewSessionService(env.users, env.validate, testLogger())

	_, err := svc.UpdateProfile(ctx, "alice", dto.ProfileUpdateRequest{Username: strPtr("Builder")})
	require.ErrorIs(t, err, ErrUsernameTaken)

	_, err = svc.UpdateProfile(ctx, "bob", dto.ProfileUpdateRequest{Username: strPtr("builder")})
	require.NoError(t, err)

	_, err = svc.UpdateProfile(ctx, "alice", dto.ProfileUpdateRequest{Username: strPtr("x")})
	require.Error(t, err)
}

func TestSessionSetProfileImage(t *testing.T) {
	env := newTestEnv(t)
	svc := NewSessionService(env.users, env.validate, testLogger())

	user, err := svc.SetProfileImage(context.Background(), "alice", "https://cdn.example.com/alice.png")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/alice.png", user.ProfileImage)
}
