package handler

import (
	"time"

	"trash2action-backend/internal/middleware"
	"trash2action-backend/internal/model"
	"trash2action-backend/internal/service"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

type WSHandler struct {
	gateway     *service.Gateway
	tokens      middleware.TokenValidator
	readTimeout time.Duration
	log         zerolog.Logger
}

func NewWSHandler(log zerolog.Logger, gateway *service.Gateway, tokens middleware.TokenValidator, readTimeout time.Duration) *WSHandler {
	return &WSHandler{
		gateway:     gateway,
		tokens:      tokens,
		readTimeout: readTimeout,
		log:         log.With().Str("component", "ws").Logger(),
	}
}

// Upgrade authenticates the ?token= query parameter before the handshake.
func (h *WSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	token := c.Query("token")
	if token == "" {
		return fail(c, fiber.StatusUnauthorized, "token required")
	}

	who, err := h.tokens.Validate(token)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, "invalid token")
	}

	middleware.SetCaller(c, who)
	return websocket.New(h.handleConnection)(c)
}

func (h *WSHandler) handleConnection(c *websocket.Conn) {
	who, found := c.Locals(middleware.CallerKey).(model.Caller)
	if !found {
		_ = c.Close()
		return
	}

	client := h.gateway.NewClient(who)
	if err := h.gateway.Register(client); err != nil {
		_ = c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		_ = c.Close()
		return
	}

	// The conn is released back to the pool once this handler returns, so
	// the writer must be done with it first.
	writerDone := make(chan struct{})
	defer func() {
		h.gateway.Unregister(client)
		<-writerDone
	}()

	// Writer goroutine owns all writes to the socket.
	go func() {
		defer close(writerDone)
		defer c.Close()
		for msg := range client.Send {
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Debug().Err(err).Str("conn", client.ID).Msg("write failed")
				return
			}
		}
		_ = c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}()

	_ = c.SetReadDeadline(time.Now().Add(h.readTimeout))
	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug().Err(err).Str("conn", client.ID).Msg("read failed")
			}
			return
		}

		_ = c.SetReadDeadline(time.Now().Add(h.readTimeout))
		h.gateway.HandleEvent(client, msg)
	}
}
