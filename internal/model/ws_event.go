package model

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// WSEvent is the frame exchanged over the real-time channel.
type WSEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Client → server events.
const (
	EventJoin       = "join"
	EventTyping     = "typing"
	EventStopTyping = "stop_typing"
	EventPing       = "ping"
)

// Server → client events.
const (
	EventJoined          = "joined"
	EventNewMessage      = "new_message"
	EventNewNotification = "new_notification"
	EventUserTyping      = "user_typing"
	EventUserStopTyping  = "user_stop_typing"
	EventPong            = "pong"
	EventError           = "error"
	EventAnnounce        = "server:announce"
)

var (
	ErrMalformedEvent = errors.New("malformed event payload")
	ErrUnknownEvent   = errors.New("unknown event type")
)

// JoinPayload binds a connection to the room of UserID.
type JoinPayload struct {
	UserID string `json:"userId"`
}

// TypingPayload is carried by typing and stop_typing.
type TypingPayload struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

// InboundEvent is a decoded client event. Exactly one payload field is set,
// matching Type.
type InboundEvent struct {
	Type   string
	Join   *JoinPayload
	Typing *TypingPayload
}

// DecodeInbound parses and validates a raw client frame.
func DecodeInbound(raw []byte) (*InboundEvent, error) {
	var ev WSEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, ErrMalformedEvent
	}

	switch ev.Type {
	case EventPing:
		return &InboundEvent{Type: ev.Type}, nil

	case EventJoin:
		var p JoinPayload
		// join accepts either {"userId": "..."} or a bare string id.
		var bare string
		if err := json.Unmarshal(ev.Data, &bare); err == nil {
			p.UserID = bare
		} else if err := json.Unmarshal(ev.Data, &p); err != nil {
			return nil, ErrMalformedEvent
		}
		p.UserID = strings.TrimSpace(p.UserID)
		if p.UserID == "" {
			return nil, ErrMalformedEvent
		}
		return &InboundEvent{Type: ev.Type, Join: &p}, nil

	case EventTyping, EventStopTyping:
		var p TypingPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return nil, ErrMalformedEvent
		}
		p.SenderID = strings.TrimSpace(p.SenderID)
		p.ReceiverID = strings.TrimSpace(p.ReceiverID)
		if p.SenderID == "" || p.ReceiverID == "" || p.SenderID == p.ReceiverID {
			return nil, ErrMalformedEvent
		}
		return &InboundEvent{Type: ev.Type, Typing: &p}, nil
	}

	return nil, ErrUnknownEvent
}

// NewMessageEvent is pushed to the receiver's room after a message is stored.
type NewMessageEvent struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	SenderName     string    `json:"senderName,omitempty"`
	ReceiverID     string    `json:"receiverId"`
	Text           string    `json:"text"`
	Sender         string    `json:"sender"`
	CreatedAt      time.Time `json:"createdAt"`
}

// NewNotificationEvent is pushed to the recipient's room after a notification is stored.
type NewNotificationEvent struct {
	ID          string           `json:"id"`
	Type        NotificationType `json:"type"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	RelatedID   string           `json:"relatedId,omitempty"`
	RelatedType RelatedType      `json:"relatedType,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}

// TypingEvent is pushed for user_typing and user_stop_typing.
type TypingEvent struct {
	UserID string `json:"userId"`
}

// JoinedEvent acknowledges a join.
type JoinedEvent struct {
	UserID string `json:"userId"`
}

// ErrorEvent reports a rejected client event.
type ErrorEvent struct {
	Message string `json:"message"`
}

// WSAnnounce is an admin broadcast.
type WSAnnounce struct {
	Message string `json:"message"`
}

// NewEvent builds a frame from a typed payload.
func NewEvent(eventType string, payload any) (*WSEvent, error) {
	ev := &WSEvent{Type: eventType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		ev.Data = data
	}
	return ev, nil
}
