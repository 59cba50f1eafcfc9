package handler

import (
	"strings"

	"trash2action-backend/internal/model"
	"trash2action-backend/internal/service"

	"github.com/gofiber/fiber/v2"
)

type AdminHandler struct {
	gateway *service.Gateway
}

func NewAdminHandler(gateway *service.Gateway) *AdminHandler {
	return &AdminHandler{gateway: gateway}
}

func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	return ok(c, fiber.StatusOK, fiber.Map{
		"connections":  h.gateway.OnlineCount(),
		"online_users": h.gateway.OnlineUsers(),
		"users":        h.gateway.OnlineUserIDs(),
	})
}

// Announce broadcasts server:announce to every open connection.
func (h *AdminHandler) Announce(c *fiber.Ctx) error {
	var req model.WSAnnounce
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return fail(c, fiber.StatusBadRequest, "message is required")
	}

	ev, err := model.NewEvent(model.EventAnnounce, req)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, serverErrorMessage)
	}
	delivered := h.gateway.Broadcast(ev)

	return ok(c, fiber.StatusOK, fiber.Map{"delivered": delivered})
}
