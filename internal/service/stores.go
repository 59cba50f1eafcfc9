package service

import (
	"context"
	"time"

	"trash2action-backend/internal/model"
)

// Directory resolves identities owned by the auth subsystem.
type Directory interface {
	// Lookup returns model.ErrNotFound for unknown ids.
	Lookup(ctx context.Context, id string) (*model.Identity, error)
	LookupMany(ctx context.Context, ids []string) (map[string]*model.Identity, error)
	ListAdmins(ctx context.Context) ([]model.Identity, error)
}

// ConversationStore persists conversations and their messages.
// Every method is atomic on its own; Append and MarkRead must serialize with
// other writes to the same conversation.
type ConversationStore interface {
	// GetOrCreate returns the conversation between a and b, creating it empty
	// on first use. Participants are not validated here.
	GetOrCreate(ctx context.Context, a, b string) (*model.Conversation, error)
	Get(ctx context.Context, id string) (*model.Conversation, error)
	// Append stores a message from senderID and increments the other
	// participant's unread counter in the same write.
	Append(ctx context.Context, conversationID, senderID, text string) (*model.Message, error)
	ListMessages(ctx context.Context, conversationID string, cursor model.MessageCursor) ([]model.Message, error)
	// MarkRead returns the number of messages flipped to read.
	MarkRead(ctx context.Context, conversationID, readerID string) (int64, error)
	// ListFor returns conversations of userID holding at least one message,
	// newest activity first.
	ListFor(ctx context.Context, userID string) ([]model.Conversation, error)
}

// NotificationStore persists notifications together with a per-recipient
// unread counter that never goes below zero.
type NotificationStore interface {
	Create(ctx context.Context, n *model.Notification) (*model.Notification, error)
	Get(ctx context.Context, id string) (*model.Notification, error)
	ListFor(ctx context.Context, r model.Recipient, limit int) ([]model.Notification, int, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context, r model.Recipient) (int64, error)
	Delete(ctx context.Context, id string) error
	DeleteReadOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Pusher delivers real-time events to a user's room. Implementations must not
// block and must swallow delivery failures.
type Pusher interface {
	PushToUser(userID string, ev *model.WSEvent)
}

// Presence answers whether a user currently has a live connection.
type Presence interface {
	IsOnline(userID string) bool
}

// NotificationSink receives every created notification after it is stored,
// e.g. to mirror staff alerts to an external channel.
type NotificationSink interface {
	Deliver(ctx context.Context, n model.Notification)
}
