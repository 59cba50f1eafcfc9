package handler

import (
	"trash2action-backend/internal/model"
	"trash2action-backend/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

type NotificationHandler struct {
	notifications *service.NotificationService
	log           zerolog.Logger
}

func NewNotificationHandler(log zerolog.Logger, notifications *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, log: log}
}

// inbox resolves the optional userId/userType pair against the caller. Callers
// may only address their own inbox.
func inbox(who model.Caller, userID string, userType model.Role) (model.Recipient, bool) {
	r := who.Recipient()
	if userID != "" && userID != r.ID {
		return r, false
	}
	if userType != "" && userType != r.Role {
		return r, false
	}
	return r, true
}

func (h *NotificationHandler) List(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}

	r, allowed := inbox(who, c.Query("userId"), model.Role(c.Query("userType")))
	if !allowed {
		return fail(c, fiber.StatusForbidden, "cannot read another user's notifications")
	}

	items, unread, err := h.notifications.List(c.Context(), r)
	if err != nil {
		return notificationError(c, h.log, err)
	}
	return ok(c, fiber.StatusOK, fiber.Map{
		"notifications": items,
		"unreadCount":   unread,
	})
}

func (h *NotificationHandler) MarkAllRead(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}

	var req model.MarkAllReadRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fail(c, fiber.StatusBadRequest, "invalid request body")
		}
	}

	r, allowed := inbox(who, req.UserID, req.UserType)
	if !allowed {
		return fail(c, fiber.StatusForbidden, "cannot modify another user's notifications")
	}

	n, err := h.notifications.MarkAllRead(c.Context(), r)
	if err != nil {
		return notificationError(c, h.log, err)
	}
	return ok(c, fiber.StatusOK, fiber.Map{
		"message": "All notifications marked as read",
		"updated": n,
	})
}

func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}

	n, err := h.notifications.Authorize(c.Context(), c.Params("id"), who.Recipient())
	if err != nil {
		return notificationError(c, h.log, err)
	}
	if err := h.notifications.MarkRead(c.Context(), n.ID); err != nil {
		return notificationError(c, h.log, err)
	}
	return ok(c, fiber.StatusOK, fiber.Map{"message": "Notification marked as read"})
}

func (h *NotificationHandler) Delete(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}

	n, err := h.notifications.Authorize(c.Context(), c.Params("id"), who.Recipient())
	if err != nil {
		return notificationError(c, h.log, err)
	}
	if err := h.notifications.Delete(c.Context(), n.ID); err != nil {
		return notificationError(c, h.log, err)
	}
	return ok(c, fiber.StatusOK, fiber.Map{"message": "Notification deleted"})
}
