// Package apperror classifies errors from every layer into the small taxonomy the API reports.
package apperror

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Kind is the coarse category of a failure.
type Kind string

const (
	KindNetwork    Kind = "network"
	KindTimeout    Kind = "timeout"
	KindAuth       Kind = "auth"
	KindServer     Kind = "server"
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindDecryption Kind = "decryption"
	KindNotFound   Kind = "not_found"
	KindForbidden  Kind = "forbidden"
	KindUnknown    Kind = "unknown"
)

// Error attaches a kind to an underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error with a message.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies an existing error.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// Classify returns the kind of err, inspecting well-known library errors when it is not already classified.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindNetwork
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return KindNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || IsUniqueViolation(err) {
		return KindConflict
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return KindValidation
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}

	return KindUnknown
}

// IsUniqueViolation recognises duplicate-key failures from drivers that do not translate errors.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

// Retryable reports whether the caller may usefully retry the operation.
func Retryable(kind Kind) bool {
	switch kind {
	case KindNetwork, KindTimeout, KindServer:
		return true
	default:
		return false
	}
}

// Silent reports whether the kind should stay out of user-facing alerts.
func Silent(kind Kind) bool {
	return kind == KindAuth
}
