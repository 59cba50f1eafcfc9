package service

import (
	"encoding/json"
	"testing"
	"time"

	"trash2action-backend/internal/metrics"
	"trash2action-backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, opts GatewayOptions) *Gateway {
	t.Helper()
	if opts.SendBuffer == 0 {
		opts.SendBuffer = 16
	}
	if opts.EventRate == 0 {
		opts.EventRate = 1000
	}
	if opts.EventBurst == 0 {
		opts.EventBurst = 1000
	}
	if opts.TypingTTL == 0 {
		opts.TypingTTL = time.Minute
	}
	g := NewGateway(testLog, NewRegistry(), metrics.Nop(), opts)
	t.Cleanup(g.Shutdown)
	return g
}

func connect(t *testing.T, g *Gateway, userID string) *WSClient {
	t.Helper()
	c := g.NewClient(model.Caller{ID: userID, Role: model.RoleUser})
	require.NoError(t, g.Register(c))
	return c
}

func join(t *testing.T, g *Gateway, c *WSClient) {
	t.Helper()
	send(g, c, model.EventJoin, model.JoinPayload{UserID: c.Caller.ID})
	ev := recv(t, c)
	require.Equal(t, model.EventJoined, ev.Type)
}

func send(g *Gateway, c *WSClient, eventType string, payload any) {
	frame := map[string]any{"type": eventType}
	if payload != nil {
		frame["data"] = payload
	}
	raw, _ := json.Marshal(frame)
	g.HandleEvent(c, raw)
}

func recv(t *testing.T, c *WSClient) *model.WSEvent {
	t.Helper()
	select {
	case raw, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		var ev model.WSEvent
		require.NoError(t, json.Unmarshal(raw, &ev))
		return &ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return nil
	}
}

func assertSilent(t *testing.T, c *WSClient) {
	t.Helper()
	select {
	case raw := <-c.Send:
		t.Fatalf("unexpected event %s", raw)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestGateway_JoinAcknowledged(t *testing.T) {
	g := newTestGateway(t, GatewayOptions{})
	c := connect(t, g, alice)

	join(t, g, c)

	assert.Equal(t, alice, c.JoinedAs())
	assert.True(t, g.IsOnline(alice))
	assert.Equal(t, 1, g.OnlineUsers())
	assert.Equal(t, []string{alice}, g.OnlineUserIDs())
}

func TestGateway_JoinAfterShutdownLeavesNoPresence(t *testing.T) {
	g := newTestGateway(t, GatewayOptions{})
	c := connect(t, g, bob)

	g.Shutdown()
	send(g, c, model.EventJoin, model.JoinPayload{UserID: bob})
	g.Unregister(c)

	assert.False(t, g.IsOnline(bob))
	assert.Empty(t, g.OnlineUserIDs())
}

func TestGateway_JoinAfterUnregisterLeavesNoPresence(t *testing.T) {
	g := newTestGateway(t, GatewayOptions{})
	c := connect(t, g, bob)

	g.Unregister(c)
	send(g, c, model.EventJoin, model.JoinPayload{UserID: bob})

	assert.False(t, g.IsOnline(bob))
}

func TestGateway_JoinAcceptsBareString(t *testing.T) {
	g := newTestGateway(t, GatewayOptions{})
	c := connect(t, g, alice)

	g.HandleEvent(c, []byte(`{"type":"join","data":"`+alice+`"}`))

	assert.Equal(t, model.EventJoined, recv(t, c).Type)
	assert.True(t, g.IsOnline(alice))
}

func TestGateway_JoinRules(t *testing.T) {
	g := newTestGateway(t, GatewayOptions{})
	c := connect(t, g, alice)

	send(g, c, model.EventJoin, model.JoinPayload{UserID: bob})
	ev := recv(t, c)
	assert.Equal(t, model.EventError, ev.Type)
	assert.False(t, g.IsOnline(bob))

	join(t, g, c)
	// Joining the same room again is harmless.
	join(t, g, c)
	assert.Equal(t, 1, g.OnlineUsers())
}

func TestGateway_EventsBeforeJoinRejected(t *testing.T) {
	g := newTestGateway(t, GatewayOptions{})
	c := connect(t, g, alice)
	peer := connect(t, g, bob)
	join(t, g, peer)

	send(g, c, model.EventTyping, model.TypingPayload{SenderID: alice, ReceiverID: bob})

	ev := recv(t, c)
	assert.Equal(t, model.EventError, ev.Type)
	assert.Equal(t, errNotJoined.Error(), decode[model.ErrorEvent](t, ev).Message)
	assertSilent(t, peer)
}

func TestGateway_PingBeforeJoin(t *testing.T) {
	g := newTestGateway(t, GatewayOptions{})
	c := connect(t, g, alice)

	send(g, c, model.EventPing, nil)
	assert.Equal(t, model.EventPong, recv(t, c).Type)
}

func TestGateway_MalformedAndUnknownEvents(t *testing.T) {
	g := newTestGateway(t, GatewayOptions{})
	c := connect(t, g, alice)

	for _, raw := range []string{
		`not json`,
		`{"type":"dance"}`,
		`{"type":"typing","data":{"senderId":"x"}}`,
		`{"type":"join","data":{}}`,
	} {
		g.HandleEvent(c, []byte(raw))
		assert.Equal(t, model.EventError, recv(t, c).Type, raw)
	}
}

func TestGateway_TypingDelivered(t *testing.T) {
	g := newTestGateway(t, GatewayOptions{})
	a := connect(t, g, alice)
	b := connect(t, g, bob)
	join(t, g, a)
	join(t, g, b)

	send(g, a, model.EventTyping, model.TypingPayload{SenderID: alice, ReceiverID: bob})
	ev := recv(t, b)
	assert.Equal(t, model.EventUserTyping, ev.Type)
	assert.Equal(t, alice, decode[model.TypingEvent](t, ev).UserID)

	send(g, a, model.EventStopTyping, model.TypingPayload{SenderID: alice, ReceiverID: bob})
	ev = recv(t, b)
	assert.Equal(t, model.EventUserStopTyping, ev.Type)
	assertSilent(t, a)
}

func TestGateway_SpoofedSenderRejected(t *testing.T) {
	g := newTestGateway(t, GatewayOptions{})
	a := connect(t, g, alice)
	b := connect(t, g, bob)
	join(t, g, a)
	join(t, g, b)

	send(g, a, model.EventTyping, model.TypingPayload{SenderID: carol, ReceiverID: bob})

	ev := recv(t, a)
	assert.Equal(t, model.EventError, ev.Type)
	assert.Equal(t, errSenderMismatch.Error(), decode[model.ErrorEvent](t, ev).Message)
	assertSilent(t, b)
}

func TestGateway_TypingExpires(t *testing.T) {
	g := newTestGateway(t, GatewayOptions{TypingTTL: 30 * time.Millisecond})
	a := connect(t, g, alice)
	b := connect(t, g, bob)
	join(t, g, a)
	join(t, g, b)

	send(g, a, model.EventTyping, model.TypingPayload{SenderID: alice, ReceiverID: bob})
	assert.Equal(t, model.EventUserTyping, recv(t, b).Type)

	ev := recv(t, b)
	assert.Equal(t, model.EventUserStopTyping, ev.Type)
	assert.Equal(t, alice, decode[model.TypingEvent](t, ev).UserID)
}

func TestGateway_LastDisconnectClearsTyping(t *testing.T) {
	g := newTestGateway(t, GatewayOptions{})
	a1 := connect(t, g, alice)
	a2 := connect(t, g, alice)
	b := connect(t, g, bob)
	join(t, g, a1)
	join(t, g, a2)
	join(t, g, b)

	send(g, a1, model.EventTyping, model.TypingPayload{SenderID: alice, ReceiverID: bob})
	assert.Equal(t, model.EventUserTyping, recv(t, b).Type)

	g.Unregister(a1)
	assertSilent(t, b)
	assert.True(t, g.IsOnline(alice))

	g.Unregister(a2)
	ev := recv(t, b)
	assert.Equal(t, model.EventUserStopTyping, ev.Type)
	assert.False(t, g.IsOnline(alice))
}

func TestGateway_PushReachesEveryConnectionInRoom(t *testing.T) {
	g := newTestGateway(t, GatewayOptions{})
	a1 := connect(t, g, alice)
	a2 := connect(t, g, alice)
	b := connect(t, g, bob)
	join(t, g, a1)
	join(t, g, a2)
	join(t, g, b)

	g.PushToUser(alice, event(model.EventNewMessage, model.NewMessageEvent{Text: "hi"}))

	assert.Equal(t, model.EventNewMessage, recv(t, a1).Type)
	assert.Equal(t, model.EventNewMessage, recv(t, a2).Type)
	assertSilent(t, b)
}

func TestGateway_PushToOfflineUserIsDropped(t *testing.T) {
	g := newTestGateway(t, GatewayOptions{})
	assert.NotPanics(t, func() {
		g.PushToUser(carol, event(model.EventNewMessage, model.NewMessageEvent{Text: "hi"}))
	})
}

func TestGateway_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	g := newTestGateway(t, GatewayOptions{SendBuffer: 2})
	a := connect(t, g, alice)
	join(t, g, a)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			g.PushToUser(alice, event(model.EventNewNotification, model.NewNotificationEvent{Title: "t"}))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("push blocked on a full buffer")
	}
	assert.Len(t, a.Send, 2)
}

func TestGateway_RateLimited(t *testing.T) {
	g := newTestGateway(t, GatewayOptions{EventRate: 0.001, EventBurst: 1})
	c := connect(t, g, alice)

	send(g, c, model.EventPing, nil)
	assert.Equal(t, model.EventPong, recv(t, c).Type)

	send(g, c, model.EventPing, nil)
	assert.Equal(t, model.EventError, recv(t, c).Type)
}

func TestGateway_Broadcast(t *testing.T) {
	g := newTestGateway(t, GatewayOptions{})
	a := connect(t, g, alice)
	b := connect(t, g, bob)
	join(t, g, a)

	delivered := g.Broadcast(event(model.EventAnnounce, model.WSAnnounce{Message: "maintenance"}))

	assert.Equal(t, 2, delivered)
	assert.Equal(t, model.EventAnnounce, recv(t, a).Type)
	assert.Equal(t, model.EventAnnounce, recv(t, b).Type)
}

func TestGateway_UnregisterTwiceIsSafe(t *testing.T) {
	g := newTestGateway(t, GatewayOptions{})
	c := connect(t, g, alice)
	join(t, g, c)

	g.Unregister(c)
	assert.NotPanics(t, func() { g.Unregister(c) })

	_, open := <-c.Send
	assert.False(t, open)
	assert.Equal(t, 0, g.OnlineCount())
}

func TestGateway_ShutdownRejectsNewClients(t *testing.T) {
	g := newTestGateway(t, GatewayOptions{})
	c := connect(t, g, alice)

	g.Shutdown()

	_, open := <-c.Send
	assert.False(t, open)
	assert.ErrorIs(t, g.Register(g.NewClient(model.Caller{ID: bob})), ErrGatewayClosed)
	assert.NotPanics(t, func() { g.Unregister(c) })
}
