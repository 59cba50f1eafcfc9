package model

import "errors"

// Store-level errors shared by every persistence backend.
var (
	ErrNotFound       = errors.New("not found")
	ErrNotParticipant = errors.New("not a conversation participant")
)
