package model

import (
	"sort"
	"strings"
	"time"
)

// conversationKeySep joins the two participant ids of a conversation key.
const conversationKeySep = "_"

// Conversation is the single two-party thread between a pair of identities.
// ParticipantA always holds the lexically smaller id.
type Conversation struct {
	ID            string     `json:"id"`
	ParticipantA  string     `json:"participantA"`
	ParticipantB  string     `json:"participantB"`
	UnreadA       int        `json:"-"`
	UnreadB       int        `json:"-"`
	MessageCount  int64      `json:"messageCount"`
	LastMessage   string     `json:"lastMessage,omitempty"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// HasParticipant reports whether id is one of the two parties.
func (c *Conversation) HasParticipant(id string) bool {
	return id != "" && (c.ParticipantA == id || c.ParticipantB == id)
}

// Peer returns the other participant relative to id.
func (c *Conversation) Peer(id string) string {
	if c.ParticipantA == id {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// UnreadFor returns the unread counter of participant id.
func (c *Conversation) UnreadFor(id string) int {
	switch id {
	case c.ParticipantA:
		return c.UnreadA
	case c.ParticipantB:
		return c.UnreadB
	}
	return 0
}

// ConversationKey returns the deterministic id of the conversation between a and b.
// The pair is unordered: ConversationKey(a, b) == ConversationKey(b, a).
func ConversationKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0] + conversationKeySep + pair[1]
}

// SplitConversationKey returns the two participants encoded in key.
func SplitConversationKey(key string) (string, string, bool) {
	a, b, ok := strings.Cut(key, conversationKeySep)
	if !ok || a == "" || b == "" || strings.Contains(b, conversationKeySep) {
		return "", "", false
	}
	if a > b {
		return "", "", false
	}
	return a, b, true
}

// Message is one entry of a conversation. Messages are immutable apart from Read.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Seq            int64     `json:"seq"`
	SenderID       string    `json:"senderId"`
	ReceiverID     string    `json:"receiverId"`
	Text           string    `json:"text"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"createdAt"`
}

// MessageCursor bounds a history read. The zero value means the full history.
type MessageCursor struct {
	AfterSeq int64
	Limit    int
}

// MessageView is a message as presented to one participant.
type MessageView struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Text           string    `json:"text"`
	Sender         string    `json:"sender"` // "me" or "them"
	SenderID       string    `json:"senderId"`
	SenderName     string    `json:"senderName"`
	ReceiverID     string    `json:"receiverId"`
	ReceiverName   string    `json:"receiverName"`
	Read           bool      `json:"read"`
	Time           string    `json:"time"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ConversationSummary is one row of a user's conversation list.
type ConversationSummary struct {
	ID            string    `json:"id"`
	PeerID        string    `json:"peerId"`
	Name          string    `json:"name"`
	Email         string    `json:"email,omitempty"`
	Avatar        string    `json:"avatar,omitempty"`
	LastMessage   string    `json:"lastMessage"`
	Timestamp     string    `json:"timestamp"`
	Unread        int       `json:"unread"`
	Online        bool      `json:"online"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}

// SendMessageRequest is the body of POST /messages/:conversation.
type SendMessageRequest struct {
	Text string `json:"text"`
}
