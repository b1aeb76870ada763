package access

//go:generate mockgen -source=claims.go -destination=claims_mock.go -package=access

import (
	"context"
	"time"

	"github.com/CristhianDaza/finControl/internal/model"
)

// ClaimsSetter mirrors a user's plan into their auth token so clients can
// render read-only state without a round trip. *auth.FirebaseAuth implements
// it.
type ClaimsSetter interface {
	SetPlanClaims(ctx context.Context, uid string, plan model.Plan, expiresAt time.Time) error
}
