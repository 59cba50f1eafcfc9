package service

import (
	"sync"
	"time"
)

type typingKey struct {
	sender   string
	receiver string
}

// TypingTracker holds the active typing indicators and expires each one after
// ttl without a refresh. onExpire runs on its own goroutine.
type TypingTracker struct {
	ttl      time.Duration
	onExpire func(senderID, receiverID string)

	mu     sync.Mutex
	timers map[typingKey]*time.Timer
}

func NewTypingTracker(ttl time.Duration, onExpire func(senderID, receiverID string)) *TypingTracker {
	return &TypingTracker{
		ttl:      ttl,
		onExpire: onExpire,
		timers:   make(map[typingKey]*time.Timer),
	}
}

// Start marks senderID as typing to receiverID, or refreshes the deadline.
func (t *TypingTracker) Start(senderID, receiverID string) {
	key := typingKey{sender: senderID, receiver: receiverID}

	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.timers[key]; ok {
		timer.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(t.ttl, func() {
		t.mu.Lock()
		// A newer Start may have replaced this timer.
		if t.timers[key] != timer {
			t.mu.Unlock()
			return
		}
		delete(t.timers, key)
		t.mu.Unlock()

		t.onExpire(senderID, receiverID)
	})
	t.timers[key] = timer
}

// Stop clears the indicator and reports whether it was active.
func (t *TypingTracker) Stop(senderID, receiverID string) bool {
	key := typingKey{sender: senderID, receiver: receiverID}

	t.mu.Lock()
	defer t.mu.Unlock()

	timer, ok := t.timers[key]
	if !ok {
		return false
	}
	timer.Stop()
	delete(t.timers, key)
	return true
}

// ClearSender drops every indicator of senderID and returns the receivers
// that were being typed to.
func (t *TypingTracker) ClearSender(senderID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var receivers []string
	for key, timer := range t.timers {
		if key.sender != senderID {
			continue
		}
		timer.Stop()
		delete(t.timers, key)
		receivers = append(receivers, key.receiver)
	}
	return receivers
}

// StopAll cancels every pending expiry without firing callbacks.
func (t *TypingTracker) StopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, timer := range t.timers {
		timer.Stop()
		delete(t.timers, key)
	}
}
