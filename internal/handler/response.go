package handler

import (
	"errors"

	"trash2action-backend/internal/middleware"
	"trash2action-backend/internal/model"
	"trash2action-backend/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

const serverErrorMessage = "Server error"

// ok writes a success envelope merged with body.
func ok(c *fiber.Ctx, status int, body fiber.Map) error {
	if body == nil {
		body = fiber.Map{}
	}
	body["success"] = true
	return c.Status(status).JSON(body)
}

// fail writes an error envelope.
func fail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"success": false, "message": message})
}

func caller(c *fiber.Ctx) (model.Caller, error) {
	who, found := middleware.CallerFrom(c)
	if !found {
		return model.Caller{}, fail(c, fiber.StatusUnauthorized, "authentication required")
	}
	return who, nil
}

func chatError(c *fiber.Ctx, log zerolog.Logger, err error) error {
	switch {
	case errors.Is(err, service.ErrEmptyBody):
		return fail(c, fiber.StatusBadRequest, "Message text is required")
	case errors.Is(err, service.ErrBodyTooLong):
		return fail(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidParticipant):
		return fail(c, fiber.StatusBadRequest, "invalid conversation participant")
	case errors.Is(err, service.ErrNotParticipant):
		return fail(c, fiber.StatusForbidden, "not a participant of this conversation")
	case errors.Is(err, service.ErrConversationNotFound):
		return fail(c, fiber.StatusNotFound, "Conversation not found")
	default:
		log.Error().Err(err).Str("path", c.Path()).Msg("chat request failed")
		return fail(c, fiber.StatusInternalServerError, serverErrorMessage)
	}
}

func notificationError(c *fiber.Ctx, log zerolog.Logger, err error) error {
	switch {
	case errors.Is(err, service.ErrUnknownNotificationType):
		return fail(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidNotification):
		return fail(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotNotificationRecipient):
		return fail(c, fiber.StatusForbidden, "not the recipient of this notification")
	case errors.Is(err, service.ErrNotificationNotFound):
		return fail(c, fiber.StatusNotFound, "Notification not found")
	default:
		log.Error().Err(err).Str("path", c.Path()).Msg("notification request failed")
		return fail(c, fiber.StatusInternalServerError, serverErrorMessage)
	}
}
