package repository

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// MembershipMirror is the real-time copy of group membership. The relational user row stays authoritative.
type MembershipMirror interface {
	Add(ctx context.Context, groupID, userID string) error
	Remove(ctx context.Context, groupID, userID string) error
	Members(ctx context.Context, groupID string) ([]string, error)
	GroupsForUser(ctx context.Context, userID string) ([]string, error)
	ReplaceGroup(ctx context.Context, groupID string, members []string) error
	ReplaceUser(ctx context.Context, userID string, groups []string) error
}

type redisMembershipMirror struct {
	client *redis.Client
}

// NewMembershipMirror constructs the Redis-backed membership mirror.
func NewMembershipMirror(client *redis.Client) MembershipMirror {
	return &redisMembershipMirror{client: client}
}

func groupMembersKey(groupID string) string { return "groups:" + groupID + ":members" }
func userGroupsKey(userID string) string    { return "users:" + userID + ":groups" }

func (m *redisMembershipMirror) Add(ctx context.Context, groupID, userID string) error {
	_, err := m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, groupMembersKey(groupID), userID)
		pipe.SAdd(ctx, userGroupsKey(userID), groupID)
		return nil
	})
	return err
}

func (m *redisMembershipMirror) Remove(ctx context.Context, groupID, userID string) error {
	_, err := m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, groupMembersKey(groupID), userID)
		pipe.SRem(ctx, userGroupsKey(userID), groupID)
		return nil
	})
	return err
}

func (m *redisMembershipMirror) Members(ctx context.Context, groupID string) ([]string, error) {
	return m.client.SMembers(ctx, groupMembersKey(groupID)).Result()
}

func (m *redisMembershipMirror) GroupsForUser(ctx context.Context, userID string) ([]string, error) {
	return m.client.SMembers(ctx, userGroupsKey(userID)).Result()
}

func (m *redisMembershipMirror) ReplaceGroup(ctx context.Context, groupID string, members []string) error {
	return replaceSet(ctx, m.client, groupMembersKey(groupID), members)
}

func (m *redisMembershipMirror) ReplaceUser(ctx context.Context, userID string, groups []string) error {
	return replaceSet(ctx, m.client, userGroupsKey(userID), groups)
}

func replaceSet(ctx context.Context, client *redis.Client, key string, values []string) error {
	_, err := client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			members := make([]interface{}, 0, len(values))
			for _, value := range values {
				members = append(members, value)
			}
			pipe.SAdd(ctx, key, members...)
		}
		return nil
	})
	return err
}
