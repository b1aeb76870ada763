package notify

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/CristhianDaza/finControl/internal/errs"
	"github.com/CristhianDaza/finControl/internal/model"
	"github.com/CristhianDaza/finControl/internal/store"
)

// RegisterPushToken stores the device token for the signed-in user. The
// first registration also turns budget alerts on.
func (s *Service) RegisterPushToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errs.Newf(errs.InvalidArgument, "fcm token is required")
	}
	uid, err := s.updateProfile(ctx, func(p *model.Profile) {
		if p.PushToken == "" {
			p.BudgetAlerts = true
		}
		p.PushToken = token
	})
	if err != nil {
		return err
	}
	log.Printf("[Push] Registered FCM token for user %s", uid)
	return nil
}

// UnregisterPushToken forgets the signed-in user's device token.
func (s *Service) UnregisterPushToken(ctx context.Context) error {
	uid, err := s.updateProfile(ctx, func(p *model.Profile) {
		p.PushToken = ""
	})
	if err != nil {
		return err
	}
	log.Printf("[Push] Unregistered FCM token for user %s", uid)
	return nil
}

// SetBudgetAlerts toggles push delivery of budget threshold alerts. The
// alerts are still stored either way.
func (s *Service) SetBudgetAlerts(ctx context.Context, enabled bool) error {
	_, err := s.updateProfile(ctx, func(p *model.Profile) {
		p.BudgetAlerts = enabled
	})
	return err
}

// updateProfile edits only the notification fields of a profile, so it is
// allowed for read-only users. It never creates a profile: a missing one
// would otherwise read as an unrestricted account.
func (s *Service) updateProfile(ctx context.Context, edit func(p *model.Profile)) (string, error) {
	uid, err := s.sess.UserID(ctx)
	if err != nil {
		return "", err
	}
	err = s.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.GetProfile(uid)
		if errors.Is(err, store.ErrNotFound) {
			return errs.Newf(errs.NotFound, "profile %s not found", uid)
		}
		if err != nil {
			return err
		}
		edit(p)
		p.UpdatedAt = s.sess.Now()
		return tx.SetProfile(p)
	})
	return uid, err
}
