package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/campus-connect-api/internal/observability"
	"github.com/noah-isme/campus-connect-api/internal/repository"
	"github.com/noah-isme/campus-connect-api/pkg/expo"
)

// PushSender hands messages to the push provider.
type PushSender interface {
	Send(ctx context.Context, messages []expo.Message) ([]expo.Ticket, error)
}

// PushService registers device tokens, maintains the badge count and sends single-attempt pushes.
type PushService interface {
	Register(ctx context.Context, userID, token string) error
	Unregister(ctx context.Context, userID string) error
	ClearBadge(ctx context.Context, userID string) error
	Notify(ctx context.Context, userID, title, body string, data map[string]string) error
}

type pushService struct {
	users    repository.UserRepository
	presence repository.PresenceStore
	sender   PushSender
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// NewPushService constructs the push service. A nil sender disables delivery.
func NewPushService(users repository.UserRepository, presence repository.PresenceStore, sender PushSender, logger zerolog.Logger) PushService {
	return &pushService{
		users:    users,
		presence: presence,
		sender:   sender,
		logger:   logger.With().Str("component", "push_service").Logger(),
		tracer:   otel.Tracer("github.com/noah-isme/campus-connect-api/internal/service/push"),
	}
}

// Register stores the device token on the user's row, creating the row on first use.
func (s *pushService) Register(ctx context.Context, userID, token string) error {
	token = strings.TrimSpace(token)
	if !expo.IsValidToken(token) {
		return ErrInvalidPushToken
	}

	ctx, span := s.tracer.Start(ctx, "push.register", trace.WithAttributes(attribute.String("push.user_id", userID)))
	defer span.End()

	if _, err := s.users.Ensure(ctx, userID); err != nil {
		span.RecordError(err)
		return err
	}
	if err := s.users.SetPushToken(ctx, userID, &token); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Unregister forgets the device token, for logout.
func (s *pushService) Unregister(ctx context.Context, userID string) error {
	err := s.users.SetPushToken(ctx, userID, nil)
	if isMissingUser(err) {
		return nil
	}
	return err
}

func (s *pushService) ClearBadge(ctx context.Context, userID string) error {
	return s.presence.ClearBadge(ctx, userID)
}

// Notify bumps the user's badge and makes one delivery attempt. Users without a token are skipped.
func (s *pushService) Notify(ctx context.Context, userID, title, body string, data map[string]string) error {
	ctx, span := s.tracer.Start(ctx, "push.notify", trace.WithAttributes(attribute.String("push.user_id", userID)))
	defer span.End()

	user, err := s.users.Get(ctx, userID)
	if err != nil {
		if isMissingUser(err) {
			return nil
		}
		return err
	}
	if user.PushToken == nil || *user.PushToken == "" {
		pushDelivered("skipped")
		return nil
	}

	badge, err := s.presence.IncrementBadge(ctx, userID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to increment badge")
	}

	if s.sender == nil {
		pushDelivered("disabled")
		return nil
	}

	message := expo.Message{
		To:    *user.PushToken,
		Title: title,
		Body:  body,
		Data:  data,
		Sound: "default",
	}
	if badge > 0 {
		message.Badge = &badge
	}

	if _, err := s.sender.Send(ctx, []expo.Message{message}); err != nil {
		pushDelivered("error")
		span.RecordError(err)
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("push delivery failed")
		return err
	}
	pushDelivered("ok")
	return nil
}

func pushDelivered(result string) {
	observability.PushDeliveries().WithLabelValues(result).Inc()
}
