package auth

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/CristhianDaza/finControl/internal/model"
)

const (
	claimPlan          = "plan"
	claimPlanExpiresAt = "plan_expires_at"
	claimRole          = "role"
)

// PlanClaims is the plan state mirrored into the ID token. The profile
// document stays authoritative; clients use the claims to render read-only
// state.
type PlanClaims struct {
	Plan      model.Plan
	ExpiresAt time.Time
	Role      string
}

// Expired reports whether the mirrored plan ended before now. A token with
// no plan claims is not expired.
func (p PlanClaims) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}

// SetPlanClaims sets custom claims on a Firebase user after an invite
// redemption.
func (f *FirebaseAuth) SetPlanClaims(ctx context.Context, uid string, plan model.Plan, expiresAt time.Time) error {
	claims := map[string]interface{}{
		claimPlan:          string(plan),
		claimPlanExpiresAt: expiresAt.Unix(),
	}

	// Custom claims are replaced wholesale, so carry the role over.
	user, err := f.client.GetUser(ctx, uid)
	if err != nil {
		return fmt.Errorf("get user %s: %w", uid, err)
	}
	if role, ok := user.CustomClaims[claimRole].(string); ok && role != "" {
		claims[claimRole] = role
	}

	if err := f.client.SetCustomUserClaims(ctx, uid, claims); err != nil {
		return fmt.Errorf("set custom claims for user %s: %w", uid, err)
	}

	log.Printf("[Auth] Updated custom claims for user %s: plan=%s expires=%s", uid, plan, expiresAt.UTC().Format(time.RFC3339))
	return nil
}

// PlanClaimsFromToken extracts plan info from Firebase token custom claims.
func PlanClaimsFromToken(claims map[string]interface{}) PlanClaims {
	var info PlanClaims

	if plan, ok := claims[claimPlan].(string); ok {
		info.Plan = model.Plan(plan)
	}
	// Decoded JWT numbers arrive as float64.
	switch v := claims[claimPlanExpiresAt].(type) {
	case float64:
		info.ExpiresAt = time.Unix(int64(v), 0).UTC()
	case int64:
		info.ExpiresAt = time.Unix(v, 0).UTC()
	}
	if role, ok := claims[claimRole].(string); ok {
		info.Role = role
	}

	return info
}
