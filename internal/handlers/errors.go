package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/storefront/internal/apperr"
)

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorHandler renders application errors as
// {"success":false,"error":{"code","message","details"}}.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		body := errorBody{Code: apperr.KindInternal.String(), Message: "internal server error"}

		var fiberErr *fiber.Error
		if appErr, ok := apperr.As(err); ok {
			status = appErr.StatusCode()
			body.Code = appErr.Kind.String()
			body.Details = appErr.Details
			if appErr.Kind == apperr.KindUpstream {
				body.Details = make(map[string]any, len(appErr.Details)+1)
				for k, v := range appErr.Details {
					body.Details[k] = v
				}
				body.Details["retryable"] = appErr.Retryable
			}
			if appErr.Kind != apperr.KindInternal {
				body.Message = appErr.Message
			}
		} else if errors.As(err, &fiberErr) {
			status = fiberErr.Code
			body.Code = codeForStatus(fiberErr.Code)
			body.Message = fiberErr.Message
		}

		if status >= fiber.StatusInternalServerError {
			logger.Error("request failed",
				"method", c.Method(), "path", c.Path(), "status", status, "error", err)
		}

		return c.Status(status).JSON(fiber.Map{"success": false, "error": body})
	}
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusUnauthorized:
		return apperr.KindUnauthorized.String()
	case fiber.StatusForbidden:
		return apperr.KindForbidden.String()
	case fiber.StatusNotFound:
		return apperr.KindNotFound.String()
	case fiber.StatusConflict:
		return apperr.KindConflict.String()
	case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
		return apperr.KindValidation.String()
	}
	if status >= fiber.StatusInternalServerError {
		return apperr.KindInternal.String()
	}
	return "Error"
}

// paramUUID parses a UUID path parameter.
func paramUUID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	return parseUUIDField(c.Params(name), name)
}

func parseUUIDField(value, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid "+field, field)
	}
	return id, nil
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperr.Validation("invalid request body")
	}
	return nil
}
