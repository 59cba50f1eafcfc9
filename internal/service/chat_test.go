package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"trash2action-backend/internal/metrics"
	"trash2action-backend/internal/model"
	"trash2action-backend/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatFixture struct {
	svc      *ChatService
	store    *memory.ConversationStore
	pusher   *recordingPusher
	presence fakePresence
}

func newChatFixture(t *testing.T, maxLen int) *chatFixture {
	t.Helper()
	f := &chatFixture{
		store:    memory.NewConversationStore(),
		pusher:   &recordingPusher{},
		presence: fakePresence{},
	}
	f.svc = NewChatService(testLog, f.store, testDirectory(), f.presence, f.pusher, metrics.Nop(), maxLen)
	return f
}

func (f *chatFixture) open(t *testing.T, a, b string) *model.Conversation {
	t.Helper()
	conv, err := f.svc.GetOrCreateConversation(context.Background(), a, b)
	require.NoError(t, err)
	return conv
}

func TestChat_GetOrCreateIsSymmetricAndIdempotent(t *testing.T) {
	f := newChatFixture(t, 1000)

	first := f.open(t, alice, bob)
	second := f.open(t, bob, alice)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, model.ConversationKey(alice, bob), first.ID)
	assert.Equal(t, int64(0), second.MessageCount)
}

func TestChat_GetOrCreateRejectsInvalidPairs(t *testing.T) {
	f := newChatFixture(t, 1000)
	ctx := context.Background()

	tests := []struct {
		name string
		a, b string
	}{
		{"self", alice, alice},
		{"empty", alice, ""},
		{"unknown peer", alice, "ghost"},
		{"unknown initiator", "ghost", alice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.GetOrCreateConversation(ctx, tt.a, tt.b)
			assert.ErrorIs(t, err, ErrInvalidParticipant)
		})
	}
}

func TestChat_SendUpdatesUnreadAndPushesToPeer(t *testing.T) {
	f := newChatFixture(t, 1000)
	ctx := context.Background()
	conv := f.open(t, alice, bob)

	msg, err := f.svc.Send(ctx, conv.ID, alice, "  Hello there  ")
	require.NoError(t, err)

	assert.Equal(t, "Hello there", msg.Text)
	assert.Equal(t, bob, msg.ReceiverID)
	assert.Equal(t, int64(1), msg.Seq)

	bobList, err := f.svc.ListConversationsFor(ctx, bob)
	require.NoError(t, err)
	require.Len(t, bobList, 1)
	assert.Equal(t, 1, bobList[0].Unread)
	assert.Equal(t, alice, bobList[0].PeerID)
	assert.Equal(t, "Alice", bobList[0].Name)
	assert.Equal(t, "Hello there", bobList[0].LastMessage)

	aliceList, err := f.svc.ListConversationsFor(ctx, alice)
	require.NoError(t, err)
	require.Len(t, aliceList, 1)
	assert.Equal(t, 0, aliceList[0].Unread)

	events := f.pusher.All()
	require.Len(t, events, 1)
	assert.Equal(t, bob, events[0].UserID)
	assert.Equal(t, model.EventNewMessage, events[0].Event.Type)
	payload := decode[model.NewMessageEvent](t, events[0].Event)
	assert.Equal(t, "them", payload.Sender)
	assert.Equal(t, "Alice", payload.SenderName)
	assert.Equal(t, msg.ID, payload.ID)
}

func TestChat_SendValidatesBody(t *testing.T) {
	f := newChatFixture(t, 5)
	ctx := context.Background()
	conv := f.open(t, alice, bob)

	_, err := f.svc.Send(ctx, conv.ID, alice, "   ")
	assert.ErrorIs(t, err, ErrEmptyBody)

	_, err = f.svc.Send(ctx, conv.ID, alice, "abcdef")
	assert.ErrorIs(t, err, ErrBodyTooLong)

	// Length is counted in characters.
	_, err = f.svc.Send(ctx, conv.ID, alice, "ñañañ")
	assert.NoError(t, err)

	msgs, err := f.svc.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	assert.Len(t, f.pusher.All(), 1)
}

func TestChat_NonParticipantCannotSend(t *testing.T) {
	f := newChatFixture(t, 1000)
	conv := f.open(t, alice, bob)

	_, err := f.svc.Send(context.Background(), conv.ID, carol, "let me in")
	assert.ErrorIs(t, err, ErrNotParticipant)
	assert.Empty(t, f.pusher.All())
}

func TestChat_SendToUnknownConversation(t *testing.T) {
	f := newChatFixture(t, 1000)

	_, err := f.svc.Send(context.Background(), model.ConversationKey(alice, bob), alice, "hi")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestChat_HistoryIsOrderedWithNonDecreasingTimestamps(t *testing.T) {
	f := newChatFixture(t, 1000)
	ctx := context.Background()
	conv := f.open(t, alice, bob)

	// A clock that jumps backwards must not reorder timestamps.
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	times := []time.Time{base, base.Add(-time.Minute), base.Add(time.Minute)}
	var i int
	f.store.SetClock(func() time.Time {
		ts := times[i%len(times)]
		i++
		return ts
	})

	for _, text := range []string{"one", "two", "three"} {
		_, err := f.svc.Send(ctx, conv.ID, alice, text)
		require.NoError(t, err)
	}

	msgs, err := f.svc.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i, want := range []string{"one", "two", "three"} {
		assert.Equal(t, want, msgs[i].Text)
		assert.Equal(t, int64(i+1), msgs[i].Seq)
		if i > 0 {
			assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt))
		}
	}
}

func TestChat_MarkReadIsIdempotent(t *testing.T) {
	f := newChatFixture(t, 1000)
	ctx := context.Background()
	conv := f.open(t, alice, bob)

	for _, text := range []string{"a", "b", "c"} {
		_, err := f.svc.Send(ctx, conv.ID, alice, text)
		require.NoError(t, err)
	}
	_, err := f.svc.Send(ctx, conv.ID, bob, "reply")
	require.NoError(t, err)

	n, err := f.svc.MarkRead(ctx, conv.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = f.svc.MarkRead(ctx, conv.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	list, err := f.svc.ListConversationsFor(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, 0, list[0].Unread)

	// Bob's own message stays unread for Alice.
	list, err = f.svc.ListConversationsFor(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, list[0].Unread)

	_, err = f.svc.MarkRead(ctx, conv.ID, carol)
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestChat_ListConversationsNewestFirstWithPresence(t *testing.T) {
	f := newChatFixture(t, 1000)
	ctx := context.Background()
	f.store.SetClock(steppingClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC), time.Minute))
	f.presence[carol] = true

	withBob := f.open(t, alice, bob)
	withCarol := f.open(t, alice, carol)
	f.open(t, alice, admin) // empty, never listed

	_, err := f.svc.Send(ctx, withCarol.ID, carol, "older")
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, withBob.ID, bob, "newer")
	require.NoError(t, err)

	list, err := f.svc.ListConversationsFor(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, withBob.ID, list[0].ID)
	assert.False(t, list[0].Online)
	assert.Equal(t, withCarol.ID, list[1].ID)
	assert.True(t, list[1].Online)
	assert.True(t, list[0].LastMessageAt.After(list[1].LastMessageAt))
	assert.NotEmpty(t, list[0].Timestamp)
}

func TestChat_Resolve(t *testing.T) {
	f := newChatFixture(t, 1000)
	ctx := context.Background()
	key := model.ConversationKey(alice, bob)

	byPeer, err := f.svc.Resolve(ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, key, byPeer.ID)

	byKey, err := f.svc.Resolve(ctx, bob, key)
	require.NoError(t, err)
	assert.Equal(t, key, byKey.ID)

	_, err = f.svc.Resolve(ctx, carol, key)
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = f.svc.Resolve(ctx, alice, alice)
	assert.ErrorIs(t, err, ErrInvalidParticipant)

	// A key naming the caller opens the conversation lazily.
	fresh, err := f.svc.Resolve(ctx, alice, model.ConversationKey(alice, carol))
	require.NoError(t, err)
	assert.Equal(t, model.ConversationKey(alice, carol), fresh.ID)
}

func TestChat_ConcurrentSendsKeepCountersExact(t *testing.T) {
	f := newChatFixture(t, 1000)
	ctx := context.Background()
	conv := f.open(t, alice, bob)

	const senders = 40
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from := alice
			if i%2 == 1 {
				from = bob
			}
			_, err := f.svc.Send(ctx, conv.ID, from, strings.Repeat("x", i+1))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	msgs, err := f.svc.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, senders)
	for i, m := range msgs {
		assert.Equal(t, int64(i+1), m.Seq)
	}

	stored, err := f.store.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, senders/2, stored.UnreadFor(alice))
	assert.Equal(t, senders/2, stored.UnreadFor(bob))
	assert.Len(t, f.pusher.All(), senders)
}

func TestChat_ViewsAreRelativeToViewer(t *testing.T) {
	f := newChatFixture(t, 1000)
	ctx := context.Background()
	conv := f.open(t, alice, bob)

	_, err := f.svc.Send(ctx, conv.ID, alice, "from alice")
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, conv.ID, bob, "from bob")
	require.NoError(t, err)

	msgs, err := f.svc.ListMessages(ctx, conv.ID)
	require.NoError(t, err)

	views := f.svc.Views(ctx, alice, msgs)
	require.Len(t, views, 2)
	assert.Equal(t, "me", views[0].Sender)
	assert.Equal(t, "them", views[1].Sender)
	assert.Equal(t, "Bob", views[1].SenderName)
	assert.Equal(t, "Alice", views[1].ReceiverName)
	assert.Len(t, views[0].Time, len("15:04"))
}
