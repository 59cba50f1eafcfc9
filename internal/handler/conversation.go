package handler

import (
	"trash2action-backend/internal/model"
	"trash2action-backend/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

type ConversationHandler struct {
	chat *service.ChatService
	log  zerolog.Logger
}

func NewConversationHandler(log zerolog.Logger, chat *service.ChatService) *ConversationHandler {
	return &ConversationHandler{chat: chat, log: log}
}

// List returns the caller's conversations, newest activity first.
func (h *ConversationHandler) List(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}

	summaries, err := h.chat.ListConversationsFor(c.Context(), who.ID)
	if err != nil {
		return chatError(c, h.log, err)
	}
	return ok(c, fiber.StatusOK, fiber.Map{"conversations": summaries})
}

// Messages returns the full history of the conversation named by :conversation.
func (h *ConversationHandler) Messages(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}

	conv, err := h.chat.Resolve(c.Context(), who.ID, c.Params("conversation"))
	if err != nil {
		return chatError(c, h.log, err)
	}

	msgs, err := h.chat.ListMessages(c.Context(), conv.ID)
	if err != nil {
		return chatError(c, h.log, err)
	}
	return ok(c, fiber.StatusOK, fiber.Map{
		"conversationId": conv.ID,
		"messages":       h.chat.Views(c.Context(), who.ID, msgs),
	})
}

// Send stores a message from the caller and pushes it to the peer.
func (h *ConversationHandler) Send(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}

	var req model.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body")
	}

	conv, err := h.chat.Resolve(c.Context(), who.ID, c.Params("conversation"))
	if err != nil {
		return chatError(c, h.log, err)
	}

	msg, err := h.chat.Send(c.Context(), conv.ID, who.ID, req.Text)
	if err != nil {
		return chatError(c, h.log, err)
	}

	views := h.chat.Views(c.Context(), who.ID, []model.Message{*msg})
	return ok(c, fiber.StatusOK, fiber.Map{"message": views[0]})
}

// MarkRead marks every message addressed to the caller as read.
func (h *ConversationHandler) MarkRead(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}

	conv, err := h.chat.Resolve(c.Context(), who.ID, c.Params("conversation"))
	if err != nil {
		return chatError(c, h.log, err)
	}

	n, err := h.chat.MarkRead(c.Context(), conv.ID, who.ID)
	if err != nil {
		return chatError(c, h.log, err)
	}
	return ok(c, fiber.StatusOK, fiber.Map{
		"message": "Messages marked as read",
		"updated": n,
	})
}
