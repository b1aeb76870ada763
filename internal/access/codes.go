package access

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/CristhianDaza/finControl/internal/errs"
	"github.com/CristhianDaza/finControl/internal/model"
	"github.com/CristhianDaza/finControl/internal/store"
)

const (
	// Alphabet leaves out I, O, 0 and 1.
	Alphabet   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	CodeLength = 8
	// GracePeriod caps how long any code stays redeemable after creation.
	GracePeriod = 7 * 24 * time.Hour

	maxCodeAttempts = 5
)

var errCodeCollision = errors.New("invite code already exists")

// generateCode draws CodeLength symbols from r. The alphabet has 32 symbols,
// so b%32 is uniform over a random byte.
func generateCode(r io.Reader) (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("failed to read randomness: %w", err)
	}
	for i, b := range buf {
		buf[i] = Alphabet[int(b)%len(Alphabet)]
	}
	return string(buf), nil
}

// NormalizeCode upper-cases and trims a user-typed code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// PlanMonths is the calendar-month length of each plan.
func PlanMonths(p model.Plan) (int, bool) {
	switch p {
	case model.PlanMonthly:
		return 1, true
	case model.PlanSemiannual:
		return 6, true
	case model.PlanAnnual:
		return 12, true
	}
	return 0, false
}

// shelfLife is how long an unredeemed code nominally lasts. GracePeriod
// still caps redemption.
func shelfLife(p model.Plan) time.Duration {
	switch p {
	case model.PlanAnnual:
		return 365 * 24 * time.Hour
	case model.PlanSemiannual:
		return 182 * 24 * time.Hour
	default:
		return 30 * 24 * time.Hour
	}
}

// Usable reports whether c can be redeemed at now.
func Usable(c *model.InviteCode, now time.Time) bool {
	return c != nil && c.Status == model.InviteUnused && now.Before(deadline(c))
}

func deadline(c *model.InviteCode) time.Time {
	if c.GraceExpiresAt.Before(c.ExpiresAt) {
		return c.GraceExpiresAt
	}
	return c.ExpiresAt
}

// CreateCode issues a new invite code for plan. Admin only.
func (s *Service) CreateCode(ctx context.Context, plan model.Plan) (*model.InviteCode, error) {
	uid, err := s.requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := PlanMonths(plan); !ok {
		return nil, errs.Newf(errs.InvalidArgument, "unknown plan %q", plan)
	}

	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := generateCode(s.random)
		if err != nil {
			return nil, err
		}
		now := s.sess.Now()
		c := &model.InviteCode{
			Code:           code,
			Status:         model.InviteUnused,
			Plan:           plan,
			CreatedBy:      uid,
			ExpiresAt:      now.Add(shelfLife(plan)),
			GraceExpiresAt: now.Add(GracePeriod),
		}
		err = s.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			_, err := tx.GetInviteCode(code)
			if err == nil {
				return errCodeCollision
			}
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
			return tx.SetInviteCode(c)
		})
		if errors.Is(err, errCodeCollision) {
			log.Printf("[Access] Invite code collision on attempt %d", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create invite code: %w", err)
		}
		log.Printf("[Access] Admin %s created %s invite code", uid, plan)
		return c, nil
	}
	return nil, fmt.Errorf("failed to create invite code after %d attempts", maxCodeAttempts)
}

// InvalidateCode marks an unused code expired. Admin only.
func (s *Service) InvalidateCode(ctx context.Context, code string) (*model.InviteCode, error) {
	uid, err := s.requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	code = NormalizeCode(code)
	var updated *model.InviteCode
	err = s.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		updated = nil
		c, err := tx.GetInviteCode(code)
		if errors.Is(err, store.ErrNotFound) {
			return errs.Newf(errs.NotFound, "invite code %s not found", code)
		}
		if err != nil {
			return err
		}
		if c.Status == model.InviteUsed {
			return errs.Newf(errs.InvalidArgument, "invite code %s was already used", code)
		}
		c.Status = model.InviteExpired
		if err := tx.SetInviteCode(c); err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[Access] Admin %s invalidated invite code %s", uid, code)
	return updated, nil
}

// ListCodes lists invite codes, newest first. Admin only.
func (s *Service) ListCodes(ctx context.Context, filter store.InviteCodeFilter) ([]*model.InviteCode, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	return s.sess.Store.ListInviteCodes(ctx, filter)
}

// CodeCheck is what Validate reveals about a usable code.
type CodeCheck struct {
	Plan  model.Plan `json:"plan"`
	Valid bool       `json:"valid"`
}

// Validate checks a code without redeeming it. Rejections count toward the
// same lockout as Redeem, and a blocked caller learns nothing about the code.
func (s *Service) Validate(ctx context.Context, code string) (*CodeCheck, error) {
	uid, err := s.sess.UserID(ctx)
	if err != nil {
		return nil, err
	}
	code = NormalizeCode(code)

	var (
		check    *CodeCheck
		rejected *RedeemError
	)
	err = s.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		check = nil
		_, c, rej, err := checkCode(tx, uid, code, s.sess.Now())
		if err != nil || rej != nil {
			rejected = rej
			return err
		}
		check = &CodeCheck{Plan: c.Plan, Valid: true}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to validate invite code: %w", err)
	}
	if rejected != nil {
		log.Printf("[Access] User %s failed to validate code: %s", uid, rejected.Reason)
		return nil, rejected
	}
	return check, nil
}
