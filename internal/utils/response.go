package utils

import "github.com/gofiber/fiber/v2"

// APIResponse describes the common structure for API responses.
type APIResponse struct {
	Success bool         `json:"success"`
	Data    interface{}  `json:"data,omitempty"`
	Meta    interface{}  `json:"meta,omitempty"`
	Message string       `json:"message"`
	Error   *ErrorDetail `json:"error,omitempty"`
	Details interface{}  `json:"details,omitempty"`
}

// ErrorDetail classifies a failure so clients can decide whether to offer a retry.
type ErrorDetail struct {
	Kind      string `json:"kind"`
	Retryable bool   `json:"retryable"`
}

// SendSuccess sends a successful JSON response with a message.
func SendSuccess(c *fiber.Ctx, message string, data interface{}) error {
	if message == "" {
		message = "success"
	}

	return SendSuccessWithStatus(c, fiber.StatusOK, message, data)
}

// SendSuccessWithStatus sends a success payload using the provided HTTP status code.
func SendSuccessWithStatus(c *fiber.Ctx, status int, message string, data interface{}) error {
	if message == "" {
		message = "success"
	}
	if status == 0 {
		status = fiber.StatusOK
	}

	return c.Status(status).JSON(APIResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// OK sends a 200 payload with optional pagination or summary metadata.
func OK(c *fiber.Ctx, data interface{}, message string, meta interface{}) error {
	if message == "" {
		message = "success"
	}
	return c.Status(fiber.StatusOK).JSON(APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
		Message: message,
	})
}

// SendClassifiedError sends an error payload carrying its kind and retry hint.
func SendClassifiedError(c *fiber.Ctx, status int, kind string, retryable bool, message string, details interface{}) error {
	if message == "" {
		message = "error"
	}

	return c.Status(status).JSON(APIResponse{
		Success: false,
		Message: message,
		Error:   &ErrorDetail{Kind: kind, Retryable: retryable},
		Details: details,
	})
}
