// Package session carries the collaborators every engine needs: the store,
// the current-user accessor, the write gate, a notifier and a clock.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/CristhianDaza/finControl/internal/calendar"
	"github.com/CristhianDaza/finControl/internal/errs"
	"github.com/CristhianDaza/finControl/internal/model"
	"github.com/CristhianDaza/finControl/internal/store"
)

// ErrReadOnly is returned by mutating operations when the user's access has
// lapsed. Nothing was written. Transports report it as a successful no-op.
var ErrReadOnly = errors.New("session: account is read-only")

//go:generate mockgen -source=session.go -destination=session_mock.go -package=session

// WriteGate decides whether a user may mutate data.
type WriteGate interface {
	// CheckWrite returns nil when userID may write and ErrReadOnly when not.
	CheckWrite(ctx context.Context, userID string) error
}

// Notifier delivers user-facing notifications. Failures are logged by the
// caller and never fail the operation that produced them.
type Notifier interface {
	Notify(ctx context.Context, n *model.Notification) error
}

type userKey struct{}

// WithUser returns a context acting on behalf of userID.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFromContext returns the user set by WithUser.
func UserFromContext(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(userKey{}).(string)
	return uid, ok && uid != ""
}

// Session is passed to every engine constructor.
type Session struct {
	Store       store.Store
	Gate        WriteGate
	Notifier    Notifier
	Clock       func() time.Time
	CurrentUser func(ctx context.Context) (string, bool)
}

// New builds a session with an open gate, a no-op notifier and the wall clock.
// Callers override the fields they care about.
func New(st store.Store) *Session {
	return &Session{
		Store:       st,
		Gate:        openGate{},
		Notifier:    discardNotifier{},
		Clock:       time.Now,
		CurrentUser: UserFromContext,
	}
}

// Now returns the session clock's current time.
func (s *Session) Now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock()
}

// Today returns the current calendar date as YYYY-MM-DD.
func (s *Session) Today() string {
	return calendar.Today(s.Now())
}

// UserID returns the acting user or errs.Unauthorized.
func (s *Session) UserID(ctx context.Context) (string, error) {
	accessor := s.CurrentUser
	if accessor == nil {
		accessor = UserFromContext
	}
	uid, ok := accessor(ctx)
	if !ok {
		return "", errs.Newf(errs.Unauthorized, "no signed-in user")
	}
	return uid, nil
}

// Writer resolves the acting user and checks the write gate. Every mutating
// engine entry point calls it before touching the store.
func (s *Session) Writer(ctx context.Context) (string, error) {
	uid, err := s.UserID(ctx)
	if err != nil {
		return "", err
	}
	if s.Gate != nil {
		if err := s.Gate.CheckWrite(ctx, uid); err != nil {
			return "", err
		}
	}
	return uid, nil
}

// Notify sends n through the configured notifier.
func (s *Session) Notify(ctx context.Context, n *model.Notification) error {
	if s.Notifier == nil {
		return nil
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.Now()
	}
	return s.Notifier.Notify(ctx, n)
}

type openGate struct{}

func (openGate) CheckWrite(context.Context, string) error { return nil }

type discardNotifier struct{}

func (discardNotifier) Notify(context.Context, *model.Notification) error { return nil }
