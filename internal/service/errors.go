package service

import "errors"

var (
	ErrInvalidParticipant       = errors.New("invalid participant")
	ErrEmptyBody                = errors.New("message text is required")
	ErrBodyTooLong              = errors.New("message text is too long")
	ErrConversationNotFound     = errors.New("conversation not found")
	ErrNotParticipant           = errors.New("not a participant of this conversation")
	ErrUnknownNotificationType  = errors.New("unknown notification type")
	ErrInvalidNotification      = errors.New("invalid notification")
	ErrNotificationNotFound     = errors.New("notification not found")
	ErrNotNotificationRecipient = errors.New("notification belongs to another recipient")
)
