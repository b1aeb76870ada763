// Package access gates writes behind invite-code plans and handles code
// redemption with brute-force protection.
package access

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/CristhianDaza/finControl/internal/errs"
	"github.com/CristhianDaza/finControl/internal/model"
	"github.com/CristhianDaza/finControl/internal/session"
	"github.com/CristhianDaza/finControl/internal/store"
)

const (
	// MaxRedeemAttempts is the number of consecutive failures that triggers
	// a lockout.
	MaxRedeemAttempts = 5
	// LockoutDuration is how long redemption stays blocked after
	// MaxRedeemAttempts failures.
	LockoutDuration = 24 * time.Hour
	// readOnlyNoticeHours limits access.readOnly notifications to one a day.
	readOnlyNoticeHours = 24
)

// CanWrite reports whether a profile may mutate data at now. Users without a
// profile have never redeemed a code and are read-only. A nil isActive or
// planExpiresAt does not restrict.
func CanWrite(p *model.Profile, now time.Time) bool {
	if p == nil {
		return false
	}
	if p.IsActive != nil && !*p.IsActive {
		return false
	}
	if p.PlanExpiresAt != nil && !now.Before(*p.PlanExpiresAt) {
		return false
	}
	return true
}

// Option configures a Service.
type Option func(*Service)

// WithClaims publishes plan changes as auth custom claims.
func WithClaims(c ClaimsSetter) Option {
	return func(s *Service) { s.claims = c }
}

// WithRandom replaces crypto/rand as the code entropy source.
func WithRandom(r io.Reader) Option {
	return func(s *Service) { s.random = r }
}

// Service owns invite codes, redemption and the write gate.
type Service struct {
	sess   *session.Session
	claims ClaimsSetter
	random io.Reader
}

// NewService creates a Service. Install it as the session's gate with
// sess.Gate = svc.
func NewService(sess *session.Session, opts ...Option) *Service {
	s := &Service{sess: sess, random: rand.Reader}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ session.WriteGate = (*Service)(nil)

// CheckWrite implements session.WriteGate. A gated user gets at most one
// access.readOnly notification a day.
func (s *Service) CheckWrite(ctx context.Context, uid string) error {
	p, err := s.profile(ctx, uid)
	if err != nil {
		return err
	}
	if CanWrite(p, s.sess.Now()) {
		return nil
	}
	s.noticeReadOnly(ctx, uid)
	return session.ErrReadOnly
}

func (s *Service) noticeReadOnly(ctx context.Context, uid string) {
	seen, err := s.sess.Store.HasNotification(ctx, uid, model.NotifyReadOnly, "", "", "", readOnlyNoticeHours)
	if err != nil {
		log.Printf("[Access] Failed to check read-only notice for %s: %v", uid, err)
		return
	}
	if seen {
		return
	}
	err = s.sess.Notify(ctx, &model.Notification{
		OwnerID: uid,
		Kind:    model.NotifyReadOnly,
		Title:   "Read-only mode",
		Message: "Your access has expired. Redeem an invite code to keep editing your finances.",
	})
	if err != nil {
		log.Printf("[Access] Failed to send read-only notice to %s: %v", uid, err)
	}
}

// profile returns the user's profile, or nil when none exists.
func (s *Service) profile(ctx context.Context, uid string) (*model.Profile, error) {
	p, err := s.sess.Store.GetProfile(ctx, uid)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile %s: %w", uid, err)
	}
	return p, nil
}

// requireAdmin resolves the caller and checks the admin role on their
// profile.
func (s *Service) requireAdmin(ctx context.Context) (string, error) {
	uid, err := s.sess.UserID(ctx)
	if err != nil {
		return "", err
	}
	p, err := s.profile(ctx, uid)
	if err != nil {
		return "", err
	}
	if p == nil || p.Role != model.RoleAdmin {
		return "", errs.Newf(errs.Forbidden, "admin role required")
	}
	return uid, nil
}

// Summary describes a user's current access state.
type Summary struct {
	UserID        string     `json:"userId"`
	CanWrite      bool       `json:"canWrite"`
	Role          string     `json:"role,omitempty"`
	Plan          model.Plan `json:"plan,omitempty"`
	PlanExpiresAt *time.Time `json:"planExpiresAt,omitempty"`
	Active        bool       `json:"active"`
	AttemptsLeft  int        `json:"attemptsLeft"`
	BlockedUntil  *time.Time `json:"blockedUntil,omitempty"`
}

// Access summarises the signed-in user's access.
func (s *Service) Access(ctx context.Context) (*Summary, error) {
	uid, err := s.sess.UserID(ctx)
	if err != nil {
		return nil, err
	}
	return s.summary(ctx, uid)
}

// UserAccess summarises another user's access. Admin only.
func (s *Service) UserAccess(ctx context.Context, uid string) (*Summary, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.summary(ctx, uid)
}

func (s *Service) summary(ctx context.Context, uid string) (*Summary, error) {
	p, err := s.profile(ctx, uid)
	if err != nil {
		return nil, err
	}
	now := s.sess.Now()
	sum := &Summary{UserID: uid, CanWrite: CanWrite(p, now), AttemptsLeft: MaxRedeemAttempts}
	if p == nil {
		return sum, nil
	}
	sum.Role = p.Role
	sum.Plan = p.Plan
	sum.PlanExpiresAt = p.PlanExpiresAt
	sum.Active = p.IsActive == nil || *p.IsActive
	sum.AttemptsLeft = MaxRedeemAttempts - p.CodeRedeemAttempts
	if p.CodeRedeemBlockedUntil != nil && now.Before(*p.CodeRedeemBlockedUntil) {
		sum.BlockedUntil = p.CodeRedeemBlockedUntil
		sum.AttemptsLeft = 0
	}
	return sum, nil
}

// SetUserActive sets or clears the isActive flag on a user's profile. Admin
// only. A deactivated user is read-only whatever their plan says.
func (s *Service) SetUserActive(ctx context.Context, uid string, active bool) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}
	return s.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.GetProfile(uid)
		if errors.Is(err, store.ErrNotFound) {
			p = &model.Profile{}
		} else if err != nil {
			return err
		}
		p.ID = uid
		p.IsActive = &active
		p.UpdatedAt = s.sess.Now()
		return tx.SetProfile(p)
	})
}
