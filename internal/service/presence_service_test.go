package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-connect-api/internal/models"
)

func TestPresenceHeartbeatExpires(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, models.User{ID: "alice"})
	svc := NewPresenceService(env.presence, env.users, 30*time.Second, testLogger())

	beat, err := svc.Heartbeat(ctx, "alice")
	require.NoError(t, err)
	require.True(t, beat.Online)

	status, err := svc.Status(ctx, "alice")
	require.NoError(t, err)
	require.True(t, status.Online)
	require.NotNil(t, status.LastSeenAt)

	env.mr.FastForward(31 * time.Second)
	status, err = svc.Status(ctx, "alice")
	require.NoError(t, err)
	require.False(t, status.Online)
}

func TestPresenceOffline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := NewPresenceService(env.presence, env.users, time.Minute, testLogger())

	_, err := svc.Heartbeat(ctx, "ghost")
	require.NoError(t, err)
	require.NoError(t, svc.Offline(ctx, "ghost"))

	status, err := svc.Status(ctx, "ghost")
	require.NoError(t, err)
	require.False(t, status.Online)
	require.Nil(t, status.LastSeenAt)
}
