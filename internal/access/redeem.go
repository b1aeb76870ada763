package access

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/CristhianDaza/finControl/internal/calendar"
	"github.com/CristhianDaza/finControl/internal/model"
	"github.com/CristhianDaza/finControl/internal/store"
)

// Reason explains a rejected redemption.
type Reason string

const (
	ReasonNotFound Reason = "not_found"
	ReasonUsed     Reason = "used"
	ReasonExpired  Reason = "expired"
	ReasonBlocked  Reason = "blocked"
)

// RedeemError is returned for every rejected redemption. AttemptsLeft counts
// down to the lockout; BlockedUntil is set while locked out.
type RedeemError struct {
	Reason       Reason     `json:"reason"`
	AttemptsLeft int        `json:"attemptsLeft"`
	BlockedUntil *time.Time `json:"blockedUntil,omitempty"`
}

func (e *RedeemError) Error() string {
	if e.BlockedUntil != nil {
		return fmt.Sprintf("invite code rejected (%s), blocked until %s", e.Reason, e.BlockedUntil.Format(time.RFC3339))
	}
	return fmt.Sprintf("invite code rejected (%s), %d attempts left", e.Reason, e.AttemptsLeft)
}

// IsRedeemError unwraps err into a *RedeemError.
func IsRedeemError(err error) (*RedeemError, bool) {
	var re *RedeemError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// Redemption is the outcome of a successful Redeem.
type Redemption struct {
	Code          string     `json:"code"`
	Plan          model.Plan `json:"plan"`
	PlanExpiresAt time.Time  `json:"planExpiresAt"`
}

func rejectReason(c *model.InviteCode, now time.Time) Reason {
	switch {
	case c == nil:
		return ReasonNotFound
	case c.Status == model.InviteExpired:
		return ReasonExpired
	case c.Status != model.InviteUnused:
		return ReasonUsed
	case !now.Before(deadline(c)):
		return ReasonExpired
	}
	return ""
}

// extendPlan anchors on the later of now and the current expiry so unexpired
// time carries over.
func extendPlan(current *time.Time, now time.Time, plan model.Plan) time.Time {
	anchor := now
	if current != nil && current.After(now) {
		anchor = *current
	}
	months, _ := PlanMonths(plan)
	return calendar.AddMonths(anchor, months)
}

// checkCode loads the caller's profile and the code inside tx. A blocked
// caller is rejected before the code is read. Any other rejection counts an
// attempt and, at MaxRedeemAttempts, starts the lockout; the profile is
// written in that case.
func checkCode(tx store.Tx, uid, code string, now time.Time) (*model.Profile, *model.InviteCode, *RedeemError, error) {
	p, err := tx.GetProfile(uid)
	if errors.Is(err, store.ErrNotFound) {
		p = &model.Profile{}
	} else if err != nil {
		return nil, nil, nil, err
	}
	p.ID = uid

	if p.CodeRedeemBlockedUntil != nil && now.Before(*p.CodeRedeemBlockedUntil) {
		blocked := *p.CodeRedeemBlockedUntil
		return p, nil, &RedeemError{Reason: ReasonBlocked, BlockedUntil: &blocked}, nil
	}

	var c *model.InviteCode
	if code != "" {
		c, err = tx.GetInviteCode(code)
		if errors.Is(err, store.ErrNotFound) {
			c = nil
		} else if err != nil {
			return nil, nil, nil, err
		}
	}

	reason := rejectReason(c, now)
	if reason == "" {
		return p, c, nil, nil
	}
	p.CodeRedeemAttempts++
	rejected := &RedeemError{Reason: reason, AttemptsLeft: MaxRedeemAttempts - p.CodeRedeemAttempts}
	if p.CodeRedeemAttempts >= MaxRedeemAttempts {
		until := now.Add(LockoutDuration)
		p.CodeRedeemBlockedUntil = &until
		p.CodeRedeemAttempts = 0
		rejected.AttemptsLeft = 0
		rejected.BlockedUntil = &until
	}
	p.UpdatedAt = now
	return p, c, rejected, tx.SetProfile(p)
}

// Redeem spends a code for the signed-in user. Read-only users may redeem.
// The code, the attempt counter and the plan expiry change in one
// transaction, so a failed attempt is counted even though the redemption is
// rejected.
func (s *Service) Redeem(ctx context.Context, code string) (*Redemption, error) {
	uid, err := s.sess.UserID(ctx)
	if err != nil {
		return nil, err
	}
	code = NormalizeCode(code)

	var (
		result   *Redemption
		rejected *RedeemError
	)
	err = s.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		result, rejected = nil, nil
		now := s.sess.Now()

		p, c, rej, err := checkCode(tx, uid, code, now)
		if err != nil || rej != nil {
			rejected = rej
			return err
		}

		expires := extendPlan(p.PlanExpiresAt, now, c.Plan)
		usedAt := now
		c.Status = model.InviteUsed
		c.UsedBy = uid
		c.UsedAt = &usedAt

		p.Plan = c.Plan
		p.PlanExpiresAt = &expires
		p.CodeRedeemAttempts = 0
		p.CodeRedeemBlockedUntil = nil
		p.UpdatedAt = now

		if err := tx.SetInviteCode(c); err != nil {
			return err
		}
		if err := tx.SetProfile(p); err != nil {
			return err
		}
		result = &Redemption{Code: code, Plan: c.Plan, PlanExpiresAt: expires}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to redeem invite code: %w", err)
	}
	if rejected != nil {
		log.Printf("[Access] User %s failed to redeem code: %s", uid, rejected.Reason)
		return nil, rejected
	}

	log.Printf("[Access] User %s redeemed a %s code, plan expires %s", uid, result.Plan, result.PlanExpiresAt.Format(time.RFC3339))
	if s.claims != nil {
		if err := s.claims.SetPlanClaims(ctx, uid, result.Plan, result.PlanExpiresAt); err != nil {
			log.Printf("[Access] Failed to update claims for %s: %v", uid, err)
		}
	}
	err = s.sess.Notify(ctx, &model.Notification{
		OwnerID:     uid,
		Kind:        model.NotifyInviteRedeemed,
		Title:       "Plan activated",
		Message:     fmt.Sprintf("Your %s plan is active until %s.", result.Plan, calendar.Format(result.PlanExpiresAt)),
		ReferenceID: code,
	})
	if err != nil {
		log.Printf("[Access] Failed to notify %s of redemption: %v", uid, err)
	}
	return result, nil
}
