package service

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"trash2action-backend/internal/metrics"
	"trash2action-backend/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var ErrGatewayClosed = errors.New("gateway is shut down")

// WSClient is one live connection. The gateway writes frames to Send; the
// transport drains it until it is closed.
type WSClient struct {
	ID     string
	Caller model.Caller
	Send   chan []byte

	limiter *rate.Limiter

	mu     sync.Mutex
	userID string
}

// JoinedAs returns the room the client joined, or "" while still connecting.
func (c *WSClient) JoinedAs() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

type GatewayOptions struct {
	SendBuffer int
	EventRate  float64
	EventBurst int
	TypingTTL  time.Duration
}

// Gateway routes real-time events to user rooms. Delivery is best effort and
// at most once: offline rooms and full send buffers drop the event.
type Gateway struct {
	registry *Registry
	typing   *TypingTracker
	metrics  *metrics.Metrics
	log      zerolog.Logger
	opts     GatewayOptions

	mu      sync.RWMutex
	clients map[string]*WSClient
	closed  bool
}

func NewGateway(log zerolog.Logger, registry *Registry, m *metrics.Metrics, opts GatewayOptions) *Gateway {
	g := &Gateway{
		registry: registry,
		metrics:  m,
		log:      log.With().Str("component", "gateway").Logger(),
		opts:     opts,
		clients:  make(map[string]*WSClient),
	}
	g.typing = NewTypingTracker(opts.TypingTTL, g.expireTyping)
	return g
}

// NewClient allocates a connection in the connecting state.
func (g *Gateway) NewClient(caller model.Caller) *WSClient {
	return &WSClient{
		ID:      uuid.NewString(),
		Caller:  caller,
		Send:    make(chan []byte, g.opts.SendBuffer),
		limiter: rate.NewLimiter(rate.Limit(g.opts.EventRate), g.opts.EventBurst),
	}
}

func (g *Gateway) Register(c *WSClient) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return ErrGatewayClosed
	}
	g.clients[c.ID] = c
	g.metrics.Connections.Set(float64(len(g.clients)))
	g.log.Debug().Str("conn", c.ID).Str("caller", c.Caller.ID).Int("total", len(g.clients)).Msg("connected")
	return nil
}

// Unregister removes the connection and closes its send buffer. When it was
// the user's last connection, typing indicators the user left behind are
// cleared on the receivers' side.
func (g *Gateway) Unregister(c *WSClient) {
	g.mu.Lock()
	if _, ok := g.clients[c.ID]; !ok {
		g.mu.Unlock()
		return
	}
	delete(g.clients, c.ID)
	close(c.Send)
	g.metrics.Connections.Set(float64(len(g.clients)))
	total := len(g.clients)
	g.mu.Unlock()

	userID, last := g.registry.Leave(c.ID)
	g.updateOnline()
	g.log.Debug().Str("conn", c.ID).Str("user", userID).Int("total", total).Msg("disconnected")

	if userID == "" || !last {
		return
	}
	for _, receiverID := range g.typing.ClearSender(userID) {
		g.PushToUser(receiverID, event(model.EventUserStopTyping, model.TypingEvent{UserID: userID}))
	}
}

// HandleEvent processes one raw frame received from c.
func (g *Gateway) HandleEvent(c *WSClient, raw []byte) {
	if !c.limiter.Allow() {
		g.metrics.InboundEvents.WithLabelValues("unknown", "rate_limited").Inc()
		g.reply(c, event(model.EventError, model.ErrorEvent{Message: "too many events"}))
		return
	}

	in, err := model.DecodeInbound(raw)
	if err != nil {
		g.metrics.InboundEvents.WithLabelValues("unknown", "invalid").Inc()
		g.reply(c, event(model.EventError, model.ErrorEvent{Message: err.Error()}))
		return
	}

	if err := g.dispatch(c, in); err != nil {
		g.metrics.InboundEvents.WithLabelValues(in.Type, "rejected").Inc()
		g.reply(c, event(model.EventError, model.ErrorEvent{Message: err.Error()}))
		return
	}
	g.metrics.InboundEvents.WithLabelValues(in.Type, "ok").Inc()
}

var (
	errJoinForeignRoom = errors.New("cannot join another user's room")
	errAlreadyJoined   = errors.New("connection already joined a room")
	errNotJoined       = errors.New("join a room first")
	errSenderMismatch  = errors.New("senderId does not match the joined user")
)

func (g *Gateway) dispatch(c *WSClient, in *model.InboundEvent) error {
	switch in.Type {
	case model.EventPing:
		g.reply(c, event(model.EventPong, nil))
		return nil

	case model.EventJoin:
		if in.Join.UserID != c.Caller.ID {
			return errJoinForeignRoom
		}
		c.mu.Lock()
		if c.userID != "" && c.userID != in.Join.UserID {
			c.mu.Unlock()
			return errAlreadyJoined
		}
		c.userID = in.Join.UserID
		c.mu.Unlock()

		// Registry entries are only removed for registered clients, so a
		// connection dropped by Unregister or Shutdown must not join.
		g.mu.RLock()
		_, live := g.clients[c.ID]
		if live {
			g.registry.Join(c.ID, in.Join.UserID)
		}
		g.mu.RUnlock()
		if !live {
			return ErrGatewayClosed
		}
		g.updateOnline()
		g.reply(c, event(model.EventJoined, model.JoinedEvent{UserID: in.Join.UserID}))
		return nil
	}

	joined := c.JoinedAs()
	if joined == "" {
		return errNotJoined
	}

	switch in.Type {
	case model.EventTyping:
		if in.Typing.SenderID != joined {
			return errSenderMismatch
		}
		g.typing.Start(joined, in.Typing.ReceiverID)
		g.PushToUser(in.Typing.ReceiverID, event(model.EventUserTyping, model.TypingEvent{UserID: joined}))

	case model.EventStopTyping:
		if in.Typing.SenderID != joined {
			return errSenderMismatch
		}
		g.typing.Stop(joined, in.Typing.ReceiverID)
		g.PushToUser(in.Typing.ReceiverID, event(model.EventUserStopTyping, model.TypingEvent{UserID: joined}))
	}
	return nil
}

func (g *Gateway) expireTyping(senderID, receiverID string) {
	g.log.Debug().Str("sender", senderID).Str("receiver", receiverID).Msg("typing indicator expired")
	g.PushToUser(receiverID, event(model.EventUserStopTyping, model.TypingEvent{UserID: senderID}))
}

// PushToUser delivers ev to every connection in userID's room.
func (g *Gateway) PushToUser(userID string, ev *model.WSEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		g.log.Error().Err(err).Str("event", ev.Type).Msg("marshal event")
		return
	}

	members := g.registry.RoomMembers(userID)
	if len(members) == 0 {
		g.metrics.EventsDropped.WithLabelValues(ev.Type, "offline").Inc()
		return
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, connID := range members {
		if c, ok := g.clients[connID]; ok {
			g.trySend(c, ev.Type, data)
		}
	}
}

// Broadcast delivers ev to every open connection, joined or not.
func (g *Gateway) Broadcast(ev *model.WSEvent) int {
	data, err := json.Marshal(ev)
	if err != nil {
		return 0
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, c := range g.clients {
		g.trySend(c, ev.Type, data)
	}
	return len(g.clients)
}

func (g *Gateway) reply(c *WSClient, ev *model.WSEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.clients[c.ID]; ok {
		g.trySend(c, ev.Type, data)
	}
}

// trySend must be called with g.mu held so Send cannot be closed concurrently.
func (g *Gateway) trySend(c *WSClient, eventType string, data []byte) {
	select {
	case c.Send <- data:
		g.metrics.EventsPushed.WithLabelValues(eventType).Inc()
	default:
		g.metrics.EventsDropped.WithLabelValues(eventType, "buffer_full").Inc()
		g.log.Debug().Str("conn", c.ID).Str("event", eventType).Msg("send buffer full, event dropped")
	}
}

func (g *Gateway) updateOnline() {
	users, _ := g.registry.Counts()
	g.metrics.OnlineUsers.Set(float64(users))
}

// IsOnline reports whether userID has a joined connection.
func (g *Gateway) IsOnline(userID string) bool {
	return g.registry.IsOnline(userID)
}

// OnlineCount returns the number of open connections.
func (g *Gateway) OnlineCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// OnlineUsers returns the number of users with at least one joined connection.
func (g *Gateway) OnlineUsers() int {
	users, _ := g.registry.Counts()
	return users
}

// OnlineUserIDs returns the sorted ids of users with a joined connection.
func (g *Gateway) OnlineUserIDs() []string {
	return g.registry.OnlineUsers()
}

// Shutdown closes every connection's send buffer and rejects new ones.
func (g *Gateway) Shutdown() {
	g.typing.StopAll()

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return
	}
	g.closed = true
	for id, c := range g.clients {
		close(c.Send)
		delete(g.clients, id)
		g.registry.Leave(id)
	}
	g.metrics.Connections.Set(0)
	g.metrics.OnlineUsers.Set(0)
}

// event builds a frame from a payload that always marshals.
func event(eventType string, payload any) *model.WSEvent {
	ev, err := model.NewEvent(eventType, payload)
	if err != nil {
		return &model.WSEvent{Type: eventType}
	}
	return ev
}
