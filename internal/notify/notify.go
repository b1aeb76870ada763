// Package notify stores user notifications and mirrors them to Firebase
// Cloud Messaging when the user has registered a device.
package notify

//go:generate mockgen -source=notify.go -destination=pusher_mock.go -package=notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"firebase.google.com/go/v4/messaging"

	"github.com/CristhianDaza/finControl/internal/errs"
	"github.com/CristhianDaza/finControl/internal/model"
	"github.com/CristhianDaza/finControl/internal/session"
	"github.com/CristhianDaza/finControl/internal/store"
)

// Pusher sends one FCM message. *messaging.Client implements it.
type Pusher interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// Service implements session.Notifier and the notification inbox.
type Service struct {
	sess    *session.Session
	pusher  Pusher
	baseURL string
}

// Option configures a Service.
type Option func(*Service)

// WithPusher enables push delivery.
func WithPusher(p Pusher) Option {
	return func(s *Service) { s.pusher = p }
}

// WithBaseURL prefixes the links attached to web pushes.
func WithBaseURL(u string) Option {
	return func(s *Service) { s.baseURL = strings.TrimRight(u, "/") }
}

// New returns a Service. It reads and writes through sess.Store but never
// calls sess.Notify, so it is safe to install as sess.Notifier.
func New(sess *session.Session, opts ...Option) *Service {
	s := &Service{sess: sess}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var actionPaths = map[model.NotificationKind]string{
	model.NotifyReadOnly:        "/profile",
	model.NotifyInviteRedeemed:  "/profile",
	model.NotifyPartialCatchUp:  "/recurring",
	model.NotifyRecurringPosted: "/recurring",
	model.NotifyBudgetThreshold: "/budgets",
	model.NotifyGoalCompleted:   "/goals",
}

// Notify stores n and pushes it. Push failures are logged, not returned.
func (s *Service) Notify(ctx context.Context, n *model.Notification) error {
	if n.OwnerID == "" {
		return errs.Newf(errs.InvalidArgument, "notification has no owner")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.sess.Now()
	}
	if err := s.sess.Store.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	s.push(ctx, n)
	return nil
}

func (s *Service) push(ctx context.Context, n *model.Notification) {
	if s.pusher == nil {
		return
	}
	p, err := s.sess.Store.GetProfile(ctx, n.OwnerID)
	if err != nil || p.PushToken == "" {
		return
	}
	if n.Kind == model.NotifyBudgetThreshold && !p.BudgetAlerts {
		return
	}

	message := &messaging.Message{
		Token: p.PushToken,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Message,
		},
		Data: map[string]string{
			"kind":           string(n.Kind),
			"notificationId": n.ID,
			"referenceId":    n.ReferenceID,
		},
	}
	if path, ok := actionPaths[n.Kind]; ok {
		message.Webpush = &messaging.WebpushConfig{
			FCMOptions: &messaging.WebpushFCMOptions{Link: s.baseURL + path},
		}
	}
	if _, err := s.pusher.Send(ctx, message); err != nil {
		log.Printf("[Push] Failed to send push to user %s: %v", n.OwnerID, err)
	}
}

// List returns the signed-in user's notifications, newest first.
func (s *Service) List(ctx context.Context, unreadOnly bool, pageSize int32, pageToken string) ([]*model.Notification, string, error) {
	uid, err := s.sess.UserID(ctx)
	if err != nil {
		return nil, "", err
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	return s.sess.Store.ListNotifications(ctx, uid, unreadOnly, pageSize, pageToken)
}

// UnreadCount counts the signed-in user's unread notifications.
func (s *Service) UnreadCount(ctx context.Context) (int, error) {
	unread, err := s.unread(ctx)
	return len(unread), err
}

func (s *Service) unread(ctx context.Context) ([]*model.Notification, error) {
	uid, err := s.sess.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var (
		all   []*model.Notification
		token string
	)
	for {
		page, next, err := s.sess.Store.ListNotifications(ctx, uid, true, 500, token)
		if err != nil {
			return nil, fmt.Errorf("failed to list notifications: %w", err)
		}
		all = append(all, page...)
		if next == "" {
			return all, nil
		}
		token = next
	}
}

// MarkRead marks one notification read.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	uid, err := s.sess.UserID(ctx)
	if err != nil {
		return err
	}
	if id == "" {
		return errs.Newf(errs.InvalidArgument, "notification id is required")
	}
	err = s.sess.Store.MarkNotificationRead(ctx, uid, id)
	if errors.Is(err, store.ErrNotFound) {
		return errs.Newf(errs.NotFound, "notification %s not found", id)
	}
	return err
}

// MarkAllRead marks every unread notification read and returns how many
// changed.
func (s *Service) MarkAllRead(ctx context.Context) (int, error) {
	unread, err := s.unread(ctx)
	if err != nil {
		return 0, err
	}
	for _, n := range unread {
		if err := s.sess.Store.MarkNotificationRead(ctx, n.OwnerID, n.ID); err != nil {
			return 0, fmt.Errorf("failed to mark notification %s read: %w", n.ID, err)
		}
	}
	return len(unread), nil
}
