package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"trash2action-backend/internal/metrics"
	"trash2action-backend/internal/model"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// NotificationService persists alerts and pushes new_notification to the
// recipient's room once the write has succeeded.
type NotificationService struct {
	store     NotificationStore
	directory Directory
	pusher    Pusher
	sinks     []NotificationSink
	metrics   *metrics.Metrics
	log       zerolog.Logger
	listLimit int
	now       func() time.Time
}

func NewNotificationService(
	log zerolog.Logger,
	store NotificationStore,
	directory Directory,
	pusher Pusher,
	m *metrics.Metrics,
	listLimit int,
	sinks ...NotificationSink,
) *NotificationService {
	return &NotificationService{
		store:     store,
		directory: directory,
		pusher:    pusher,
		sinks:     sinks,
		metrics:   m,
		log:       log.With().Str("component", "notifications").Logger(),
		listLimit: listLimit,
		now:       time.Now,
	}
}

// NewNotification describes an alert to raise.
type NewNotification struct {
	Recipient   model.Recipient
	Type        model.NotificationType
	Title       string
	Message     string
	RelatedID   string
	RelatedType model.RelatedType
}

func (in *NewNotification) validate() error {
	if !in.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownNotificationType, in.Type)
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Message = strings.TrimSpace(in.Message)
	switch {
	case in.Recipient.ID == "":
		return fmt.Errorf("%w: recipient is required", ErrInvalidNotification)
	case !in.Recipient.Role.IsValid():
		return fmt.Errorf("%w: recipient role must be user or responder", ErrInvalidNotification)
	case in.Title == "" || in.Message == "":
		return fmt.Errorf("%w: title and message are required", ErrInvalidNotification)
	case in.RelatedType != "" && !in.RelatedType.IsValid():
		return fmt.Errorf("%w: unknown related type %q", ErrInvalidNotification, in.RelatedType)
	}
	return nil
}

// Create stores one notification and pushes it to the recipient.
func (s *NotificationService) Create(ctx context.Context, in NewNotification) (*model.Notification, error) {
	n, err := s.create(ctx, in)
	if err != nil {
		return nil, err
	}
	s.deliver(ctx, *n)
	return n, nil
}

func (s *NotificationService) create(ctx context.Context, in NewNotification) (*model.Notification, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	n, err := s.store.Create(ctx, &model.Notification{
		RecipientID:   in.Recipient.ID,
		RecipientRole: in.Recipient.Role,
		Type:          in.Type,
		Title:         in.Title,
		Message:       in.Message,
		RelatedID:     in.RelatedID,
		RelatedType:   in.RelatedType,
	})
	if err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	s.metrics.StoreMutations.WithLabelValues("create_notification").Inc()

	s.pusher.PushToUser(n.RecipientID, event(model.EventNewNotification, model.NewNotificationEvent{
		ID:          n.ID,
		Type:        n.Type,
		Title:       n.Title,
		Message:     n.Message,
		RelatedID:   n.RelatedID,
		RelatedType: n.RelatedType,
		Timestamp:   n.CreatedAt,
	}))
	return n, nil
}

func (s *NotificationService) deliver(ctx context.Context, n model.Notification) {
	for _, sink := range s.sinks {
		sink.Deliver(ctx, n)
	}
}

// NotifyAdmins raises the same alert for every approved admin responder.
// Failures for individual admins are logged and skipped. Sinks see the alert
// once, not once per admin.
func (s *NotificationService) NotifyAdmins(ctx context.Context, in NewNotification) ([]model.Notification, error) {
	probe := in
	probe.Recipient = model.Recipient{ID: model.AudienceAdmins, Role: model.RoleResponder}
	if err := probe.validate(); err != nil {
		return nil, err
	}

	admins, err := s.directory.ListAdmins(ctx)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}

	created := make([]model.Notification, 0, len(admins))
	for _, admin := range admins {
		one := in
		one.Recipient = model.Recipient{ID: admin.ID, Role: model.RoleResponder}
		n, err := s.create(ctx, one)
		if err != nil {
			if errors.Is(err, ErrInvalidNotification) {
				return created, err
			}
			s.log.Error().Err(err).Str("admin", admin.ID).Msg("notify admin")
			continue
		}
		created = append(created, *n)
	}
	if len(created) > 0 {
		s.deliver(ctx, created[0])
	}
	return created, nil
}

// List returns the newest notifications of r and the recipient's unread count.
func (s *NotificationService) List(ctx context.Context, r model.Recipient) ([]model.NotificationView, int, error) {
	items, unread, err := s.store.ListFor(ctx, r, s.listLimit)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}

	now := s.now()
	views := make([]model.NotificationView, 0, len(items))
	for _, n := range items {
		views = append(views, model.NotificationView{
			Notification: n,
			Time:         humanize.RelTime(n.CreatedAt, now, "ago", "from now"),
		})
	}
	return views, unread, nil
}

// Authorize loads notification id and checks it belongs to caller.
func (s *NotificationService) Authorize(ctx context.Context, id string, caller model.Recipient) (*model.Notification, error) {
	n, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	if n.Recipient() != caller {
		return nil, ErrNotNotificationRecipient
	}
	return n, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, id string) error {
	if err := s.store.MarkRead(ctx, id); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return ErrNotificationNotFound
		}
		return fmt.Errorf("mark notification read: %w", err)
	}
	s.metrics.StoreMutations.WithLabelValues("mark_notification_read").Inc()
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, r model.Recipient) (int64, error) {
	n, err := s.store.MarkAllRead(ctx, r)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	s.metrics.StoreMutations.WithLabelValues("mark_all_notifications_read").Inc()
	return n, nil
}

func (s *NotificationService) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return ErrNotificationNotFound
		}
		return fmt.Errorf("delete notification: %w", err)
	}
	s.metrics.StoreMutations.WithLabelValues("delete_notification").Inc()
	return nil
}

// PruneRead removes read notifications created before cutoff.
func (s *NotificationService) PruneRead(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := s.store.DeleteReadOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune notifications: %w", err)
	}
	return n, nil
}
