package service

import (
	"context"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/campus-connect-api/internal/dto"
	"github.com/noah-isme/campus-connect-api/internal/models"
	"github.com/noah-isme/campus-connect-api/internal/realtime"
	"github.com/noah-isme/campus-connect-api/internal/repository"
)

// BlockService maintains the caller's block list. Blocks are checked in both directions on send.
type BlockService interface {
	Block(ctx context.Context, userID, targetID string) (dto.BlockListResponse, error)
	Unblock(ctx context.Context, userID, targetID string) (dto.BlockListResponse, error)
}

type blockService struct {
	users  repository.UserRepository
	bus    realtime.Bus
	logger zerolog.Logger
	tracer trace.Tracer
}

// NewBlockService constructs the block list service.
func NewBlockService(users repository.UserRepository, bus realtime.Bus, logger zerolog.Logger) BlockService {
	return &blockService{
		users:  users,
		bus:    bus,
		logger: logger.With().Str("component", "block_service").Logger(),
		tracer: otel.Tracer("github.com/noah-isme/campus-connect-api/internal/service/block"),
	}
}

func (s *blockService) Block(ctx context.Context, userID, targetID string) (dto.BlockListResponse, error) {
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return dto.BlockListResponse{}, ErrUserNotFound
	}
	if targetID == userID {
		return dto.BlockListResponse{}, ErrCannotBlockSelf
	}
	return s.update(ctx, "block.add", userID, targetID, func(current []string) ([]string, error) {
		if slices.Contains(current, targetID) {
			return current, nil
		}
		return append(current, targetID), nil
	})
}

func (s *blockService) Unblock(ctx context.Context, userID, targetID string) (dto.BlockListResponse, error) {
	targetID = strings.TrimSpace(targetID)
	return s.update(ctx, "block.remove", userID, targetID, func(current []string) ([]string, error) {
		return removeString(current, targetID), nil
	})
}

func (s *blockService) update(ctx context.Context, name, userID, targetID string, mutate repository.ListMutator) (dto.BlockListResponse, error) {
	ctx, span := s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("block.user_id", userID),
		attribute.String("block.target_id", targetID),
	))
	defer span.End()

	blocked, err := s.users.UpdateBlocked(ctx, userID, mutate)
	if err != nil {
		span.RecordError(err)
		if isMissingUser(err) {
			return dto.BlockListResponse{}, ErrUserNotFound
		}
		return dto.BlockListResponse{}, err
	}

	chatID := models.DirectChatID(userID, targetID)
	publishChatEvent(ctx, s.bus, s.logger, ChatTopic(chatID), chatEvent{
		Type:   chatEventChatUpdated,
		ChatID: chatID,
		UserID: userID,
	})
	return dto.BlockListResponse{BlockedUserIDs: blocked}, nil
}
