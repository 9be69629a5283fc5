package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/campus-connect-api/internal/dto"
	"github.com/noah-isme/campus-connect-api/internal/observability"
)

// ImageStorage stores an image under a stable key and returns its public URL.
type ImageStorage interface {
	Upload(ctx context.Context, key string, reader io.Reader) (string, error)
}

// ProfileImageSetter persists the uploaded image URL on the user's profile.
type ProfileImageSetter interface {
	SetProfileImage(ctx context.Context, userID, url string) (dto.UserResponse, error)
}

// AvatarService validates and stores profile images.
type AvatarService interface {
	Upload(ctx context.Context, userID string, file *multipart.FileHeader) (dto.AvatarResponse, error)
}

var allowedAvatarTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
	"image/gif":  {},
	"image/heic": {},
}

type avatarService struct {
	storage  ImageStorage
	profiles ProfileImageSetter
	logger   zerolog.Logger
	maxSize  int64
	tracer   trace.Tracer
}

// NewAvatarService constructs the avatar service.
func NewAvatarService(storage ImageStorage, profiles ProfileImageSetter, maxSizeMB int, logger zerolog.Logger) AvatarService {
	if maxSizeMB <= 0 {
		maxSizeMB = 5
	}
	return &avatarService{
		storage:  storage,
		profiles: profiles,
		logger:   logger.With().Str("component", "avatar_service").Logger(),
		maxSize:  int64(maxSizeMB) * 1024 * 1024,
		tracer:   otel.Tracer("github.com/noah-isme/campus-connect-api/internal/service/avatar"),
	}
}

func (s *avatarService) Upload(ctx context.Context, userID string, file *multipart.FileHeader) (dto.AvatarResponse, error) {
	ctx, span := s.tracer.Start(ctx, "avatar.upload")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("upload.max_bytes", s.maxSize),
		attribute.String("upload.user_id", userID),
	)

	start := time.Now()
	defer func() {
		observability.UploadLatency().Observe(time.Since(start).Seconds())
	}()

	if file == nil {
		err := errors.New("file is required")
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return dto.AvatarResponse{}, err
	}
	span.SetAttributes(attribute.Int64("upload.request_size", file.Size))

	if file.Size > s.maxSize {
		observability.UploadRejected().WithLabelValues("size").Inc()
		span.RecordError(ErrUploadTooLarge)
		span.SetStatus(codes.Error, "payload too large")
		return dto.AvatarResponse{}, ErrUploadTooLarge
	}

	handle, err := file.Open()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "open failed")
		return dto.AvatarResponse{}, err
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxSize+1)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return dto.AvatarResponse{}, err
	}
	if int64(buf.Len()) > s.maxSize {
		observability.UploadRejected().WithLabelValues("size").Inc()
		span.RecordError(ErrUploadTooLarge)
		span.SetStatus(codes.Error, "payload too large")
		return dto.AvatarResponse{}, ErrUploadTooLarge
	}

	detected := strings.ToLower(mimetype.Detect(buf.Bytes()).String())
	if idx := strings.Index(detected, ";"); idx >= 0 {
		detected = strings.TrimSpace(detected[:idx])
	}
	span.SetAttributes(attribute.String("upload.detected_mime", detected))
	if _, ok := allowedAvatarTypes[detected]; !ok {
		observability.UploadRejected().WithLabelValues("type").Inc()
		span.RecordError(ErrUploadTypeNotAllowed)
		span.SetStatus(codes.Error, "type not allowed")
		return dto.AvatarResponse{}, ErrUploadTypeNotAllowed
	}

	url, err := s.storage.Upload(ctx, userID, bytes.NewReader(buf.Bytes()))
	if err != nil {
		observability.UploadRejected().WithLabelValues("storage").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage failed")
		return dto.AvatarResponse{}, err
	}

	if _, err := s.profiles.SetProfileImage(ctx, userID, url); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failed")
		return dto.AvatarResponse{}, err
	}

	span.SetStatus(codes.Ok, "stored")
	s.logger.Debug().Str("user_id", userID).Str("mime", detected).Msg("avatar stored")

	return dto.AvatarResponse{
		URL:       url,
		MimeType:  detected,
		SizeBytes: int64(buf.Len()),
	}, nil
}
