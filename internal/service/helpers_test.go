package service

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"trash2action-backend/internal/model"
	"trash2action-backend/internal/repository/memory"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	alice = "user-alice"
	bob   = "user-bob"
	carol = "user-carol"
	admin = "resp-admin"
)

var testLog = zerolog.New(io.Discard)

func testDirectory() *memory.Directory {
	return memory.NewDirectory(
		model.Identity{ID: alice, DisplayName: "Alice", Role: model.RoleUser, Email: "alice@example.com"},
		model.Identity{ID: bob, DisplayName: "Bob", Role: model.RoleUser},
		model.Identity{ID: carol, DisplayName: "Carol", Role: model.RoleUser},
		model.Identity{ID: admin, DisplayName: "City Office", Role: model.RoleResponder, AccountType: model.AccountAdmin, Approved: true},
		model.Identity{ID: "resp-pending", DisplayName: "Pending", Role: model.RoleResponder, AccountType: model.AccountAdmin},
		model.Identity{ID: "resp-barangay", DisplayName: "Barangay", Role: model.RoleResponder, AccountType: model.AccountBarangay, Approved: true},
	)
}

// pushed is one event handed to recordingPusher.
type pushed struct {
	UserID string
	Event  *model.WSEvent
}

type recordingPusher struct {
	mu     sync.Mutex
	events []pushed
}

func (p *recordingPusher) PushToUser(userID string, ev *model.WSEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, pushed{UserID: userID, Event: ev})
}

func (p *recordingPusher) All() []pushed {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pushed(nil), p.events...)
}

type fakePresence map[string]bool

func (f fakePresence) IsOnline(userID string) bool { return f[userID] }

type recordingSink struct {
	mu        sync.Mutex
	delivered []model.Notification
}

func (s *recordingSink) Deliver(_ context.Context, n model.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, n)
}

func (s *recordingSink) All() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Notification(nil), s.delivered...)
}

// steppingClock returns a clock that advances by step on every call.
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(step)
		return now
	}
}

func decode[T any](t *testing.T, ev *model.WSEvent) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(ev.Data, &out))
	return out
}
