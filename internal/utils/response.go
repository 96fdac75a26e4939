package utils

import (
	apperrors "kudi/internal/errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Respond sends a JSON response with the specified status code.
func Respond(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(data)
}

// Success sends a successful JSON response.
func Success(c *fiber.Ctx, data interface{}) error {
	return Respond(c, fiber.StatusOK, data)
}

// Created sends a 201 JSON response.
func Created(c *fiber.Ctx, data interface{}) error {
	return Respond(c, fiber.StatusCreated, data)
}

// Accepted sends a 202 JSON response for work that settles asynchronously.
func Accepted(c *fiber.Ctx, data interface{}) error {
	return Respond(c, fiber.StatusAccepted, data)
}

// BadRequest sends a JSON validation error with status 400.
func BadRequest(c *fiber.Ctx, message string) error {
	return Error(c, nil, apperrors.ErrValidation.WithMessage("%s", message))
}

// Unauthorized sends a JSON error response with status 401.
func Unauthorized(c *fiber.Ctx, message string) error {
	return Error(c, nil, apperrors.ErrUnauthorized.WithMessage("%s", message))
}

// Forbidden sends a JSON error response with status 403.
func Forbidden(c *fiber.Ctx, message string) error {
	return Respond(c, fiber.StatusForbidden, ErrorBody{Error: message, Code: "FORBIDDEN"})
}

// Error maps err onto the response. Client errors carry their message and
// details; anything else is logged and answered with a generic body.
func Error(c *fiber.Ctx, logger *zap.Logger, err error) error {
	status := apperrors.HTTPStatus(err)
	de, ok := apperrors.As(err)
	if ok && de.ClientError() {
		return Respond(c, status, ErrorBody{Error: de.Message, Code: de.Code, Details: de.Details})
	}

	if logger != nil {
		fields := []zap.Field{
			zap.Error(err),
			zap.Int("status", status),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
		}
		if ok && de.Details != nil {
			fields = append(fields, zap.Any("details", de.Details))
		}
		logger.Error("request failed", fields...)
	}

	body := ErrorBody{Error: "internal server error", Code: "INTERNAL_ERROR"}
	if ok {
		// 5xx show the message of their class, never the specific one.
		if msg := apperrors.DefaultMessage(de.Code); msg != "" {
			body = ErrorBody{Error: msg, Code: de.Code}
		}
	}
	return Respond(c, status, body)
}
