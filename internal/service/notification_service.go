package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/campus-connect-api/internal/dto"
	"github.com/noah-isme/campus-connect-api/internal/models"
	"github.com/noah-isme/campus-connect-api/internal/observability"
	"github.com/noah-isme/campus-connect-api/internal/realtime"
	"github.com/noah-isme/campus-connect-api/internal/repository"
)

const notificationBufferSize = 16

// NotificationService stores in-app notifications and streams them to connected clients.
type NotificationService interface {
	Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
	List(ctx context.Context, userID string, limit, offset int) (dto.NotificationListResponse, error)
	MarkRead(ctx context.Context, id uint, userID string) (dto.NotificationResponse, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Subscribe(ctx context.Context, userID string) (<-chan dto.NotificationResponse, func(), error)
}

type notificationService struct {
	repo      repository.NotificationRepository
	bus       realtime.Bus
	push      PushNotifier
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
	sanitizer *bluemonday.Policy
}

// NotificationTopic is the bus topic carrying a user's notifications.
func NotificationTopic(userID string) string {
	return realtime.Topic("notifications", userID)
}

// NewNotificationService constructs a notification service. push may be nil.
func NewNotificationService(repo repository.NotificationRepository, bus realtime.Bus, push PushNotifier, validate *validator.Validate, logger zerolog.Logger) NotificationService {
	return &notificationService{
		repo:      repo,
		bus:       bus,
		push:      push,
		validator: validate,
		logger:    logger.With().Str("component", "notification_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/campus-connect-api/internal/service/notification"),
		sanitizer: bluemonday.StrictPolicy(),
	}
}

func (s *notificationService) Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.NotificationResponse{}, err
	}

	cleanMessage := strings.TrimSpace(s.sanitizer.Sanitize(payload.Message))
	if cleanMessage == "" {
		return dto.NotificationResponse{}, errors.New("notification message empty after sanitization")
	}

	attrs := []attribute.KeyValue{
		attribute.String("notification.user_id", payload.UserID),
		attribute.String("notification.type", payload.Type),
	}

	spanCtx, span := s.tracer.Start(ctx, "notifications.publish", trace.WithAttributes(attrs...))
	defer span.End()

	model := models.Notification{
		UserID:  payload.UserID,
		Type:    payload.Type,
		Message: cleanMessage,
	}

	if err := s.repo.Create(spanCtx, &model); err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}

	response := dto.NewNotificationResponse(model)
	if err := s.broadcast(spanCtx, response); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish notification to bus")
	}

	if s.push != nil {
		if err := s.push.Notify(spanCtx, payload.UserID, "Campus Connect", cleanMessage, payload.Data); err != nil {
			s.logger.Debug().Err(err).Str("user_id", payload.UserID).Msg("notification push skipped")
		}
	}

	observability.NotificationsPublishedTotal().WithLabelValues(response.Type).Inc()

	return response, nil
}

func (s *notificationService) List(ctx context.Context, userID string, limit, offset int) (dto.NotificationListResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return dto.NotificationListResponse{}, errors.New("user id is required")
	}

	notifications, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return dto.NotificationListResponse{}, err
	}
	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return dto.NotificationListResponse{}, err
	}

	return dto.NotificationListResponse{
		Items:  dto.NewNotificationResponseSlice(notifications),
		Unread: unread,
	}, nil
}

func (s *notificationService) MarkRead(ctx context.Context, id uint, userID string) (dto.NotificationResponse, error) {
	attrs := []attribute.KeyValue{
		attribute.String("notification.user_id", userID),
	}
	spanCtx, span := s.tracer.Start(ctx, "notifications.mark_read", trace.WithAttributes(attrs...))
	defer span.End()

	notification, err := s.repo.MarkRead(spanCtx, id, userID)
	if err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}

	return dto.NewNotificationResponse(notification), nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID)
}

// Subscribe streams the user's notifications until ctx ends or the cleanup func runs.
func (s *notificationService) Subscribe(ctx context.Context, userID string) (<-chan dto.NotificationResponse, func(), error) {
	events, unsubscribe, err := s.bus.Subscribe(ctx, NotificationTopic(userID))
	if err != nil {
		return nil, nil, err
	}

	channel := make(chan dto.NotificationResponse, notificationBufferSize)
	observability.SSEClientsActive().Inc()

	go func() {
		defer close(channel)
		for payload := range events {
			var notification dto.NotificationResponse
			if err := json.Unmarshal(payload, &notification); err != nil {
				s.logger.Warn().Err(err).Msg("invalid notification event payload")
				continue
			}
			if notification.Type == "" {
				notification.Type = "generic"
			}
			select {
			case channel <- notification:
			default:
			}
		}
	}()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			unsubscribe()
			observability.SSEClientsActive().Dec()
		})
	}

	return channel, cleanup, nil
}

func (s *notificationService) broadcast(ctx context.Context, notification dto.NotificationResponse) error {
	if s.bus == nil {
		return nil
	}
	payload, err := json.Marshal(notification)
	if err != nil {
		return err
	}
	return s.bus.Publish(ctx, NotificationTopic(notification.UserID), payload)
}
