package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"trash2action-backend/internal/metrics"
	"trash2action-backend/internal/model"

	"github.com/rs/zerolog"
)

// clockFormat matches the HH:MM label clients show next to each message.
const clockFormat = "15:04"

// ChatService implements two-party messaging on top of a ConversationStore and
// pushes new messages to the receiver's room after each successful write.
type ChatService struct {
	store     ConversationStore
	directory Directory
	presence  Presence
	pusher    Pusher
	metrics   *metrics.Metrics
	log       zerolog.Logger
	maxLen    int
}

func NewChatService(
	log zerolog.Logger,
	store ConversationStore,
	directory Directory,
	presence Presence,
	pusher Pusher,
	m *metrics.Metrics,
	maxMessageLength int,
) *ChatService {
	return &ChatService{
		store:     store,
		directory: directory,
		presence:  presence,
		pusher:    pusher,
		metrics:   m,
		log:       log.With().Str("component", "chat").Logger(),
		maxLen:    maxMessageLength,
	}
}

// GetOrCreateConversation returns the conversation between a and b, creating
// it on first use. Both ids must resolve to known identities.
func (s *ChatService) GetOrCreateConversation(ctx context.Context, a, b string) (*model.Conversation, error) {
	if a == "" || b == "" || a == b {
		return nil, ErrInvalidParticipant
	}
	for _, id := range []string{a, b} {
		if _, err := s.directory.Lookup(ctx, id); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return nil, ErrInvalidParticipant
			}
			return nil, fmt.Errorf("lookup participant %s: %w", id, err)
		}
	}

	conv, err := s.store.GetOrCreate(ctx, a, b)
	if err != nil {
		return nil, fmt.Errorf("get or create conversation: %w", err)
	}
	return conv, nil
}

// Resolve maps a route parameter to a conversation the caller takes part in.
// ref is either a conversation key or the id of the peer; a peer id opens
// (and lazily creates) the conversation with that peer.
func (s *ChatService) Resolve(ctx context.Context, callerID, ref string) (*model.Conversation, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, ErrInvalidParticipant
	}

	if a, b, ok := model.SplitConversationKey(ref); ok {
		if callerID != a && callerID != b {
			return nil, ErrNotParticipant
		}
		conv, err := s.store.Get(ctx, ref)
		if errors.Is(err, model.ErrNotFound) {
			// The key names the caller; treat it like opening the peer.
			return s.GetOrCreateConversation(ctx, a, b)
		}
		if err != nil {
			return nil, fmt.Errorf("get conversation: %w", err)
		}
		return conv, nil
	}

	return s.GetOrCreateConversation(ctx, callerID, ref)
}

// Send appends text from senderID and pushes new_message to the peer.
func (s *ChatService) Send(ctx context.Context, conversationID, senderID, text string) (*model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyBody
	}
	if utf8.RuneCountInString(text) > s.maxLen {
		return nil, fmt.Errorf("%w: limit is %d characters", ErrBodyTooLong, s.maxLen)
	}

	msg, err := s.store.Append(ctx, conversationID, senderID, text)
	if err != nil {
		return nil, s.storeError("append message", err)
	}
	s.metrics.StoreMutations.WithLabelValues("append_message").Inc()

	senderName := ""
	if sender, err := s.directory.Lookup(ctx, senderID); err == nil {
		senderName = sender.DisplayName
	}

	s.pusher.PushToUser(msg.ReceiverID, event(model.EventNewMessage, model.NewMessageEvent{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		SenderName:     senderName,
		ReceiverID:     msg.ReceiverID,
		Text:           msg.Text,
		Sender:         "them",
		CreatedAt:      msg.CreatedAt,
	}))

	s.log.Debug().
		Str("conversation", msg.ConversationID).
		Str("sender", msg.SenderID).
		Int64("seq", msg.Seq).
		Msg("message stored")

	return msg, nil
}

// ListMessages returns the full history of a conversation, oldest first.
func (s *ChatService) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	msgs, err := s.store.ListMessages(ctx, conversationID, model.MessageCursor{})
	if err != nil {
		return nil, s.storeError("list messages", err)
	}
	return msgs, nil
}

// MarkRead flips every message addressed to readerID to read and resets the
// reader's unread counter. Calling it again changes nothing.
func (s *ChatService) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	n, err := s.store.MarkRead(ctx, conversationID, readerID)
	if err != nil {
		return 0, s.storeError("mark read", err)
	}
	if n > 0 {
		s.metrics.StoreMutations.WithLabelValues("mark_messages_read").Inc()
	}
	return n, nil
}

// ListConversationsFor returns userID's conversation list, newest activity first.
func (s *ChatService) ListConversationsFor(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	convs, err := s.store.ListFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	peerIDs := make([]string, 0, len(convs))
	for i := range convs {
		peerIDs = append(peerIDs, convs[i].Peer(userID))
	}
	peers, err := s.directory.LookupMany(ctx, peerIDs)
	if err != nil {
		return nil, fmt.Errorf("lookup peers: %w", err)
	}

	out := make([]model.ConversationSummary, 0, len(convs))
	for i := range convs {
		c := &convs[i]
		peerID := c.Peer(userID)
		summary := model.ConversationSummary{
			ID:          c.ID,
			PeerID:      peerID,
			LastMessage: c.LastMessage,
			Unread:      c.UnreadFor(userID),
			Online:      s.presence.IsOnline(peerID),
		}
		if c.LastMessageAt != nil {
			summary.LastMessageAt = *c.LastMessageAt
			summary.Timestamp = c.LastMessageAt.Local().Format(clockFormat)
		}
		if peer, ok := peers[peerID]; ok {
			summary.Name = peer.DisplayName
			summary.Email = peer.Email
			summary.Avatar = peer.Avatar
		}
		out = append(out, summary)
	}
	return out, nil
}

// Views renders msgs for viewerID with participant names resolved.
func (s *ChatService) Views(ctx context.Context, viewerID string, msgs []model.Message) []model.MessageView {
	ids := make([]string, 0, 2)
	seen := make(map[string]bool, 2)
	for _, m := range msgs {
		for _, id := range []string{m.SenderID, m.ReceiverID} {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	names := make(map[string]string, len(ids))
	if len(ids) > 0 {
		idents, err := s.directory.LookupMany(ctx, ids)
		if err != nil {
			s.log.Warn().Err(err).Msg("resolve message participants")
		}
		for id, ident := range idents {
			names[id] = ident.DisplayName
		}
	}

	out := make([]model.MessageView, 0, len(msgs))
	for _, m := range msgs {
		sender := "them"
		if m.SenderID == viewerID {
			sender = "me"
		}
		out = append(out, model.MessageView{
			ID:             m.ID,
			ConversationID: m.ConversationID,
			Text:           m.Text,
			Sender:         sender,
			SenderID:       m.SenderID,
			SenderName:     names[m.SenderID],
			ReceiverID:     m.ReceiverID,
			ReceiverName:   names[m.ReceiverID],
			Read:           m.Read,
			Time:           m.CreatedAt.Local().Format(clockFormat),
			CreatedAt:      m.CreatedAt,
		})
	}
	return out
}

func (s *ChatService) storeError(op string, err error) error {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return ErrConversationNotFound
	case errors.Is(err, model.ErrNotParticipant):
		return ErrNotParticipant
	}
	return fmt.Errorf("%s: %w", op, err)
}
