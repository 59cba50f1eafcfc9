// Package memory provides process-local implementations of the stores for
// development without Postgres (STORE=memory) and for tests.
package memory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"trash2action-backend/internal/model"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Directory is an in-memory identity directory.
type Directory struct {
	mu         sync.RWMutex
	identities map[string]model.Identity
}

func NewDirectory(identities ...model.Identity) *Directory {
	d := &Directory{identities: make(map[string]model.Identity)}
	for _, ident := range identities {
		d.Put(ident)
	}
	return d
}

// seedFile is the YAML layout read by LoadDirectory.
type seedFile struct {
	Identities []model.Identity `yaml:"identities"`
}

// LoadDirectory reads identities from a YAML seed file.
func LoadDirectory(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	for i, ident := range seed.Identities {
		if ident.ID == "" || !ident.Role.IsValid() {
			return nil, fmt.Errorf("seed identity %d: id and role (user|responder) are required", i)
		}
	}
	return NewDirectory(seed.Identities...), nil
}

func (d *Directory) Put(ident model.Identity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ident.CreatedAt.IsZero() {
		ident.CreatedAt = time.Now()
	}
	d.identities[ident.ID] = ident
}

// All returns every identity sorted by id.
func (d *Directory) All() []model.Identity {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.Identity, 0, len(d.identities))
	for _, ident := range d.identities {
		out = append(out, ident)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *Directory) Lookup(_ context.Context, id string) (*model.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ident, ok := d.identities[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &ident, nil
}

func (d *Directory) LookupMany(_ context.Context, ids []string) (map[string]*model.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]*model.Identity, len(ids))
	for _, id := range ids {
		if ident, ok := d.identities[id]; ok {
			out[id] = &ident
		}
	}
	return out, nil
}

func (d *Directory) ListAdmins(_ context.Context) ([]model.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []model.Identity
	for _, ident := range d.identities {
		if ident.IsAdmin() {
			out = append(out, ident)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ConversationStore keeps conversations and messages in memory. A single
// mutex serializes writes, which preserves append order per conversation.
type ConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]*model.Conversation
	messages      map[string][]model.Message
	now           func() time.Time
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		conversations: make(map[string]*model.Conversation),
		messages:      make(map[string][]model.Message),
		now:           time.Now,
	}
}

func (s *ConversationStore) GetOrCreate(_ context.Context, a, b string) (*model.Conversation, error) {
	key := model.ConversationKey(a, b)

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.conversations[key]; ok {
		cp := *c
		return &cp, nil
	}

	low, high, _ := model.SplitConversationKey(key)
	c := &model.Conversation{
		ID:           key,
		ParticipantA: low,
		ParticipantB: high,
		CreatedAt:    s.now(),
	}
	s.conversations[key] = c
	cp := *c
	return &cp, nil
}

func (s *ConversationStore) Get(_ context.Context, id string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *ConversationStore) Append(_ context.Context, conversationID, senderID, text string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return nil, model.ErrNotFound
	}
	if !c.HasParticipant(senderID) {
		return nil, model.ErrNotParticipant
	}

	now := s.now()
	if c.LastMessageAt != nil && now.Before(*c.LastMessageAt) {
		now = *c.LastMessageAt
	}

	c.MessageCount++
	receiverID := c.Peer(senderID)
	if receiverID == c.ParticipantA {
		c.UnreadA++
	} else {
		c.UnreadB++
	}
	c.LastMessage = text
	c.LastMessageAt = &now

	msg := model.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Seq:            c.MessageCount,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Text:           text,
		CreatedAt:      now,
	}
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	return &msg, nil
}

func (s *ConversationStore) ListMessages(_ context.Context, conversationID string, cursor model.MessageCursor) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return nil, model.ErrNotFound
	}

	out := make([]model.Message, 0, len(s.messages[conversationID]))
	for _, m := range s.messages[conversationID] {
		if m.Seq <= cursor.AfterSeq {
			continue
		}
		out = append(out, m)
		if cursor.Limit > 0 && len(out) == cursor.Limit {
			break
		}
	}
	return out, nil
}

func (s *ConversationStore) MarkRead(_ context.Context, conversationID, readerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return 0, model.ErrNotFound
	}
	if !c.HasParticipant(readerID) {
		return 0, model.ErrNotParticipant
	}

	var flipped int64
	msgs := s.messages[conversationID]
	for i := range msgs {
		if msgs[i].SenderID != readerID && !msgs[i].Read {
			msgs[i].Read = true
			flipped++
		}
	}
	if readerID == c.ParticipantA {
		c.UnreadA = 0
	} else {
		c.UnreadB = 0
	}
	return flipped, nil
}

func (s *ConversationStore) ListFor(_ context.Context, userID string) ([]model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Conversation
	for _, c := range s.conversations {
		if c.MessageCount > 0 && c.HasParticipant(userID) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := *out[i].LastMessageAt, *out[j].LastMessageAt
		if ti.Equal(tj) {
			return out[i].ID < out[j].ID
		}
		return ti.After(tj)
	})
	return out, nil
}

// NotificationStore keeps notifications and unread counters in memory.
type NotificationStore struct {
	mu            sync.RWMutex
	notifications map[string]*model.Notification
	unread        map[model.Recipient]int
	now           func() time.Time
}

func NewNotificationStore() *NotificationStore {
	return &NotificationStore{
		notifications: make(map[string]*model.Notification),
		unread:        make(map[model.Recipient]int),
		now:           time.Now,
	}
}

func (s *NotificationStore) Create(_ context.Context, n *model.Notification) (*model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *n
	stored.ID = uuid.NewString()
	stored.Read = false
	stored.CreatedAt = s.now()
	s.notifications[stored.ID] = &stored
	s.unread[stored.Recipient()]++

	out := stored
	return &out, nil
}

func (s *NotificationStore) Get(_ context.Context, id string) (*model.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notifications[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	out := *n
	return &out, nil
}

func (s *NotificationStore) ListFor(_ context.Context, r model.Recipient, limit int) ([]model.Notification, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Notification
	for _, n := range s.notifications {
		if n.Recipient() == r {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, s.unread[r], nil
}

func (s *NotificationStore) MarkRead(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return model.ErrNotFound
	}
	if !n.Read {
		n.Read = true
		s.decrementLocked(n.Recipient())
	}
	return nil
}

func (s *NotificationStore) MarkAllRead(_ context.Context, r model.Recipient) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var flipped int64
	for _, n := range s.notifications {
		if n.Recipient() == r && !n.Read {
			n.Read = true
			flipped++
		}
	}
	delete(s.unread, r)
	return flipped, nil
}

func (s *NotificationStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return model.ErrNotFound
	}
	delete(s.notifications, id)
	if !n.Read {
		s.decrementLocked(n.Recipient())
	}
	return nil
}

func (s *NotificationStore) DeleteReadOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, n := range s.notifications {
		if n.Read && n.CreatedAt.Before(cutoff) {
			delete(s.notifications, id)
			removed++
		}
	}
	return removed, nil
}

func (s *NotificationStore) decrementLocked(r model.Recipient) {
	if s.unread[r] <= 1 {
		delete(s.unread, r)
		return
	}
	s.unread[r]--
}

// SetClock replaces the time source used for new messages.
func (s *ConversationStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetClock replaces the time source used for new notifications.
func (s *NotificationStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
