package service

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/campus-connect-api/internal/cipher"
	"github.com/noah-isme/campus-connect-api/internal/dto"
	"github.com/noah-isme/campus-connect-api/internal/models"
	"github.com/noah-isme/campus-connect-api/internal/realtime"
	"github.com/noah-isme/campus-connect-api/internal/repository"
	"github.com/noah-isme/campus-connect-api/pkg/expo"
)

func testLogger() zerolog.Logger {
	return zerolog.New(&bytes.Buffer{})
}

func testCipher(t *testing.T) *cipher.MessageCipher {
	t.Helper()
	c, err := cipher.NewWithKey(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	return c
}

// testEnv wires real repositories over in-memory SQLite and miniredis.
type testEnv struct {
	db       *gorm.DB
	mr       *miniredis.Miniredis
	redis    *redis.Client
	bus      *realtime.MemoryBus
	users    repository.UserRepository
	posts    repository.PostRepository
	streaks  repository.StreakRepository
	notes    repository.NotificationRepository
	chats    repository.ChatStore
	mirror   repository.MembershipMirror
	presence repository.PresenceStore
	catalog  *models.GroupCatalog
	cipher   *cipher.MessageCipher
	validate *validator.Validate
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:svc_"+name+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.RelationalModels()...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	bus := realtime.NewMemoryBus()
	t.Cleanup(bus.Close)

	return &testEnv{
		db:       db,
		mr:       mr,
		redis:    client,
		bus:      bus,
		users:    repository.NewUserRepository(db),
		posts:    repository.NewPostRepository(db),
		streaks:  repository.NewStreakRepository(db),
		notes:    repository.NewNotificationRepository(db),
		chats:    repository.NewChatStore(client),
		mirror:   repository.NewMembershipMirror(client),
		presence: repository.NewPresenceStore(client),
		catalog:  models.DefaultGroupCatalog(),
		cipher:   testCipher(t),
		validate: validator.New(),
	}
}

func (e *testEnv) createUser(t *testing.T, user models.User) models.User {
	t.Helper()
	require.NoError(t, e.db.Create(&user).Error)
	return user
}

// pushRecorder captures Notify calls.
type pushRecorder struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (p *pushRecorder) Notify(_ context.Context, userID, _, body string, _ map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, userID+":"+body)
	return p.err
}

func (p *pushRecorder) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// streakRecorder captures Record calls.
type streakRecorder struct {
	mu    sync.Mutex
	users []string
}

func (s *streakRecorder) Record(_ context.Context, userID string) (dto.StreakResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, userID)
	return dto.StreakResponse{UserID: userID, CurrentStreak: 1}, nil
}

// senderStub records expo batches.
type senderStub struct {
	mu       sync.Mutex
	messages []expo.Message
	err      error
}

func (s *senderStub) Send(_ context.Context, messages []expo.Message) ([]expo.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, messages...)
	if s.err != nil {
		return nil, s.err
	}
	tickets := make([]expo.Ticket, len(messages))
	for i := range tickets {
		tickets[i].Status = "ok"
	}
	return tickets, nil
}
