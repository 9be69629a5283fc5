package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-connect-api/internal/models"
	"github.com/noah-isme/campus-connect-api/internal/repository"
)

// failingMirror fails selected mirror writes.
type failingMirror struct {
	repository.MembershipMirror
	failAdd    bool
	failRemove bool
}

var errMirrorDown = errors.New("mirror unavailable")

func (m *failingMirror) Add(ctx context.Context, groupID, userID string) error {
	if m.failAdd {
		return errMirrorDown
	}
	return m.MembershipMirror.Add(ctx, groupID, userID)
}

func (m *failingMirror) Remove(ctx context.Context, groupID, userID string) error {
	if m.failRemove {
		return errMirrorDown
	}
	return m.MembershipMirror.Remove(ctx, groupID, userID)
}

func TestMembershipJoinAndLeaveUpdateBothStores(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, models.User{ID: "alice"})
	svc := NewMembershipService(env.users, env.mirror, env.catalog, testLogger())

	joined, err := svc.Join(ctx, "alice", "coding")
	require.NoError(t, err)
	require.Equal(t, []string{"coding"}, joined.Groups)

	again, err := svc.Join(ctx, "alice", "coding")
	require.NoError(t, err)
	require.Equal(t, []string{"coding"}, again.Groups)

	members, err := env.mirror.Members(ctx, "coding")
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, members)

	groups, err := svc.Groups(ctx, "alice")
	require.NoError(t, err)
	require.NotEmpty(t, groups)
	for _, group := range groups {
		require.Equal(t, group.ID == "coding", group.Joined, group.ID)
	}

	left, err := svc.Leave(ctx, "alice", "coding")
	require.NoError(t, err)
	require.Empty(t, left.Groups)

	members, err = env.mirror.Members(ctx, "coding")
	require.NoError(t, err)
	require.Empty(t, members)

	_, err = svc.Leave(ctx, "alice", "coding")
	require.ErrorIs(t, err, ErrNotMember)
}

func TestMembershipRejectsUnknownGroupAndUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := NewMembershipService(env.users, env.mirror, env.catalog, testLogger())

	_, err := svc.Join(ctx, "alice", "underwater-basket-weaving")
	require.ErrorIs(t, err, ErrUnknownGroup)

	_, err = svc.Join(ctx, "ghost", "coding")
	require.ErrorIs(t, err, ErrUserNotFound)

	_, err = svc.Leave(ctx, "ghost", "coding")
	require.ErrorIs(t, err, ErrNotMember)
}

func TestMembershipLeaveSucceedsWhenMirrorFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, models.User{ID: "alice"})
	mirror := &failingMirror{MembershipMirror: env.mirror}
	svc := NewMembershipService(env.users, mirror, env.catalog, testLogger())

	_, err := svc.Join(ctx, "alice", "sports")
	require.NoError(t, err)

	mirror.failRemove = true
	left, err := svc.Leave(ctx, "alice", "sports")
	require.NoError(t, err)
	require.Empty(t, left.Groups)

	user, err := env.users.Get(ctx, "alice")
	require.NoError(t, err)
	require.False(t, user.InGroup("sports"))

	stale, err := env.mirror.Members(ctx, "sports")
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, stale)

	report, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Users)
	require.Equal(t, len(env.catalog.All()), report.Groups)

	members, err := env.mirror.Members(ctx, "sports")
	require.NoError(t, err)
	require.Empty(t, members)
	userGroups, err := env.mirror.GroupsForUser(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, userGroups)
}

func TestMembershipJoinSucceedsWhenMirrorFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, models.User{ID: "alice"})
	env.createUser(t, models.User{ID: "bob"})
	mirror := &failingMirror{MembershipMirror: env.mirror, failAdd: true}
	svc := NewMembershipService(env.users, mirror, env.catalog, testLogger())

	joined, err := svc.Join(ctx, "alice", "memes")
	require.NoError(t, err)
	require.Equal(t, []string{"memes"}, joined.Groups)

	members, err := env.mirror.Members(ctx, "memes")
	require.NoError(t, err)
	require.Empty(t, members)

	_, err = svc.Reconcile(ctx)
	require.NoError(t, err)
	members, err = env.mirror.Members(ctx, "memes")
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, members)
}
