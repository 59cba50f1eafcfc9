package handler

import (
	"strings"

	"trash2action-backend/internal/model"
	"trash2action-backend/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// ServerHandler serves endpoints called by other backend subsystems, such as
// the report and newsfeed services raising notifications.
type ServerHandler struct {
	notifications *service.NotificationService
	log           zerolog.Logger
}

func NewServerHandler(log zerolog.Logger, notifications *service.NotificationService) *ServerHandler {
	return &ServerHandler{notifications: notifications, log: log}
}

// CreateNotification stores and pushes a notification for one recipient, or
// for every admin responder when audience is "admins".
func (h *ServerHandler) CreateNotification(c *fiber.Ctx) error {
	var req model.CreateNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body")
	}

	in := service.NewNotification{
		Recipient:   model.Recipient{ID: strings.TrimSpace(req.RecipientID), Role: req.RecipientRole},
		Type:        req.Type,
		Title:       req.Title,
		Message:     req.Message,
		RelatedID:   req.RelatedID,
		RelatedType: req.RelatedType,
	}

	switch req.Audience {
	case "":
		n, err := h.notifications.Create(c.Context(), in)
		if err != nil {
			return notificationError(c, h.log, err)
		}
		return ok(c, fiber.StatusCreated, fiber.Map{"notification": n})

	case model.AudienceAdmins:
		created, err := h.notifications.NotifyAdmins(c.Context(), in)
		if err != nil {
			return notificationError(c, h.log, err)
		}
		return ok(c, fiber.StatusCreated, fiber.Map{
			"notifications": created,
			"count":         len(created),
		})

	default:
		return fail(c, fiber.StatusBadRequest, "unknown audience "+req.Audience)
	}
}
