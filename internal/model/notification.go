package model

import "time"

// NotificationType is the closed set of alert kinds.
type NotificationType string

const (
	NotificationAdminRequest NotificationType = "admin_request"
	NotificationPost         NotificationType = "post"
	NotificationReport       NotificationType = "report"
	NotificationComment      NotificationType = "comment"
	NotificationLike         NotificationType = "like"
	NotificationSystem       NotificationType = "system"
)

// IsValid reports whether t belongs to the closed set.
func (t NotificationType) IsValid() bool {
	switch t {
	case NotificationAdminRequest, NotificationPost, NotificationReport,
		NotificationComment, NotificationLike, NotificationSystem:
		return true
	}
	return false
}

// RelatedType names the kind of entity a notification points at.
type RelatedType string

const (
	RelatedReport    RelatedType = "report"
	RelatedPost      RelatedType = "post"
	RelatedUser      RelatedType = "user"
	RelatedResponder RelatedType = "responder"
)

func (t RelatedType) IsValid() bool {
	switch t {
	case RelatedReport, RelatedPost, RelatedUser, RelatedResponder:
		return true
	}
	return false
}

// Recipient addresses a notification inbox.
type Recipient struct {
	ID   string `json:"userId"`
	Role Role   `json:"userType"`
}

// Notification is a persisted alert for one recipient.
type Notification struct {
	ID            string           `json:"id"`
	RecipientID   string           `json:"recipientId"`
	RecipientRole Role             `json:"recipientType"`
	Type          NotificationType `json:"type"`
	Title         string           `json:"title"`
	Message       string           `json:"message"`
	RelatedID     string           `json:"relatedId,omitempty"`
	RelatedType   RelatedType      `json:"relatedType,omitempty"`
	Read          bool             `json:"read"`
	CreatedAt     time.Time        `json:"timestamp"`
}

// Recipient returns the inbox n belongs to.
func (n *Notification) Recipient() Recipient {
	return Recipient{ID: n.RecipientID, Role: n.RecipientRole}
}

// NotificationView adds the humanized age shown by clients.
type NotificationView struct {
	Notification
	Time string `json:"time"`
}

// CreateNotificationRequest is sent by other subsystems to raise an alert.
// Audience "admins" fans the alert out to every approved admin responder
// instead of a single recipient.
type CreateNotificationRequest struct {
	Audience      string           `json:"audience,omitempty"`
	RecipientID   string           `json:"recipientId,omitempty"`
	RecipientRole Role             `json:"recipientRole,omitempty"`
	Type          NotificationType `json:"type"`
	Title         string           `json:"title"`
	Message       string           `json:"message"`
	RelatedID     string           `json:"relatedId,omitempty"`
	RelatedType   RelatedType      `json:"relatedType,omitempty"`
}

// MarkAllReadRequest is the optional body of PUT /notifications/mark-all-read.
type MarkAllReadRequest struct {
	UserID   string `json:"userId"`
	UserType Role   `json:"userType"`
}

const AudienceAdmins = "admins"
