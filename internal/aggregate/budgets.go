// Package aggregate sums transactions against budget and goal scopes. Only
// the budget and goal documents themselves are written here; balances are
// never touched.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/CristhianDaza/finControl/internal/calendar"
	"github.com/CristhianDaza/finControl/internal/errs"
	"github.com/CristhianDaza/finControl/internal/model"
	"github.com/CristhianDaza/finControl/internal/money"
	"github.com/CristhianDaza/finControl/internal/session"
	"github.com/CristhianDaza/finControl/internal/store"
)

const (
	// DefaultCurrency is used when a budget or goal names none.
	DefaultCurrency = "COP"
	// DefaultAlertThresholdPct applies when a budget is created without one.
	DefaultAlertThresholdPct = 80
)

// Aggregator owns budgets and goals for the signed-in user.
type Aggregator struct {
	sess *session.Session
}

// New returns an Aggregator bound to sess.
func New(sess *session.Session) *Aggregator {
	return &Aggregator{sess: sess}
}

// BudgetInput is the payload for CreateBudget. CurrencyRates maps a foreign
// currency to how many budget-currency units one unit of it is worth.
type BudgetInput struct {
	Name              string
	TargetAmount      decimal.Decimal
	Currency          string
	PeriodType        string
	PeriodFrom        string
	PeriodTo          string
	Categories        []string
	ExcludeAccounts   []string
	AlertThresholdPct float64
	Carryover         bool
	CarryoverBalance  decimal.Decimal
	CurrencyRates     map[string]decimal.Decimal
	Inactive          bool
}

// BudgetPatch lists the budget fields UpdateBudget may change.
type BudgetPatch struct {
	Name              *string
	TargetAmount      *decimal.Decimal
	Currency          *string
	PeriodType        *string
	PeriodFrom        *string
	PeriodTo          *string
	Categories        *[]string
	ExcludeAccounts   *[]string
	AlertThresholdPct *float64
	Carryover         *bool
	CarryoverBalance  *decimal.Decimal
	CurrencyRates     map[string]decimal.Decimal
	Active            *bool
}

func normalizeRates(in map[string]decimal.Decimal) (map[string]float64, error) {
	out := make(map[string]float64, len(in))
	for code, rate := range in {
		c, err := money.NormalizeCurrency(code, "")
		if err != nil || c == "" {
			return nil, errs.Newf(errs.InvalidCurrency, "unknown rate currency %q", code)
		}
		if !rate.IsPositive() {
			return nil, errs.Newf(errs.InvalidRate, "rate for %s must be positive", c)
		}
		out[c] = rate.InexactFloat64()
	}
	return out, nil
}

func checkBudget(b *model.Budget) error {
	if strings.TrimSpace(b.Name) == "" {
		return errs.New(errs.NameRequired)
	}
	if b.TargetAmountCents <= 0 {
		return errs.Newf(errs.InvalidAmount, "target must be positive")
	}
	if b.AlertThresholdPct < 0 {
		return errs.Newf(errs.InvalidArgument, "alert threshold cannot be negative")
	}
	switch b.PeriodType {
	case model.PeriodMonthly:
		b.PeriodFrom, b.PeriodTo = "", ""
	case model.PeriodCustom:
		if !calendar.Valid(b.PeriodFrom) || !calendar.Valid(b.PeriodTo) {
			return errs.Newf(errs.InvalidDate, "custom budgets need periodFrom and periodTo")
		}
		if b.PeriodFrom > b.PeriodTo {
			return errs.Newf(errs.InvalidDate, "periodFrom %s is after periodTo %s", b.PeriodFrom, b.PeriodTo)
		}
	default:
		return errs.Newf(errs.InvalidArgument, "unknown period type %q", b.PeriodType)
	}
	return nil
}

// CreateBudget stores a new budget.
func (a *Aggregator) CreateBudget(ctx context.Context, in BudgetInput) (*model.Budget, error) {
	uid, err := a.sess.Writer(ctx)
	if err != nil {
		return nil, err
	}
	currency, err := money.NormalizeCurrency(in.Currency, DefaultCurrency)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidCurrency, err, "invalid currency")
	}
	rates, err := normalizeRates(in.CurrencyRates)
	if err != nil {
		return nil, err
	}
	now := a.sess.Now()
	b := &model.Budget{
		ID:                    uuid.New().String(),
		OwnerID:               uid,
		Name:                  strings.TrimSpace(in.Name),
		TargetAmountCents:     money.ToCents(in.TargetAmount),
		Currency:              currency,
		PeriodType:            in.PeriodType,
		PeriodFrom:            in.PeriodFrom,
		PeriodTo:              in.PeriodTo,
		Categories:            nonNil(in.Categories),
		ExcludeAccounts:       nonNil(in.ExcludeAccounts),
		AlertThresholdPct:     in.AlertThresholdPct,
		Carryover:             in.Carryover,
		CarryoverBalanceCents: money.ToCents(in.CarryoverBalance),
		CurrencyRates:         rates,
		Active:                !in.Inactive,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if b.PeriodType == "" {
		b.PeriodType = model.PeriodMonthly
	}
	if b.AlertThresholdPct == 0 {
		b.AlertThresholdPct = DefaultAlertThresholdPct
	}
	if err := checkBudget(b); err != nil {
		return nil, err
	}
	err = a.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.SetBudget(b)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create budget: %w", err)
	}
	log.Printf("[Aggregate] Created budget %s for user %s", b.ID, uid)
	return b, nil
}

// UpdateBudget applies patch to a budget. A non-nil CurrencyRates replaces
// the whole map.
func (a *Aggregator) UpdateBudget(ctx context.Context, id string, patch BudgetPatch) (*model.Budget, error) {
	uid, err := a.sess.Writer(ctx)
	if err != nil {
		return nil, err
	}
	var currency string
	if patch.Currency != nil {
		if currency, err = money.NormalizeCurrency(*patch.Currency, DefaultCurrency); err != nil {
			return nil, errs.Wrap(errs.InvalidCurrency, err, "invalid currency")
		}
	}
	var rates map[string]float64
	if patch.CurrencyRates != nil {
		if rates, err = normalizeRates(patch.CurrencyRates); err != nil {
			return nil, err
		}
	}

	var updated *model.Budget
	err = a.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		updated = nil
		b, err := getBudget(tx, uid, id)
		if err != nil {
			return err
		}
		if patch.Name != nil {
			b.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.TargetAmount != nil {
			b.TargetAmountCents = money.ToCents(*patch.TargetAmount)
		}
		if patch.Currency != nil {
			b.Currency = currency
		}
		if patch.PeriodType != nil {
			b.PeriodType = *patch.PeriodType
		}
		if patch.PeriodFrom != nil {
			b.PeriodFrom = *patch.PeriodFrom
		}
		if patch.PeriodTo != nil {
			b.PeriodTo = *patch.PeriodTo
		}
		if patch.Categories != nil {
			b.Categories = nonNil(*patch.Categories)
		}
		if patch.ExcludeAccounts != nil {
			b.ExcludeAccounts = nonNil(*patch.ExcludeAccounts)
		}
		if patch.AlertThresholdPct != nil {
			b.AlertThresholdPct = *patch.AlertThresholdPct
		}
		if patch.Carryover != nil {
			b.Carryover = *patch.Carryover
		}
		if patch.CarryoverBalance != nil {
			b.CarryoverBalanceCents = money.ToCents(*patch.CarryoverBalance)
		}
		if rates != nil {
			b.CurrencyRates = rates
		}
		if patch.Active != nil {
			b.Active = *patch.Active
		}
		if err := checkBudget(b); err != nil {
			return err
		}
		b.UpdatedAt = a.sess.Now()
		if err := tx.SetBudget(b); err != nil {
			return err
		}
		updated = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteBudget removes a budget.
func (a *Aggregator) DeleteBudget(ctx context.Context, id string) error {
	uid, err := a.sess.Writer(ctx)
	if err != nil {
		return err
	}
	return a.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := getBudget(tx, uid, id); err != nil {
			return err
		}
		return tx.DeleteBudget(uid, id)
	})
}

// GetBudget returns one of the signed-in user's budgets.
func (a *Aggregator) GetBudget(ctx context.Context, id string) (*model.Budget, error) {
	uid, err := a.sess.UserID(ctx)
	if err != nil {
		return nil, err
	}
	b, err := a.sess.Store.GetBudget(ctx, uid, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.Newf(errs.BudgetNotFound, "budget %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get budget: %w", err)
	}
	return b, nil
}

// ListBudgets lists the signed-in user's budgets.
func (a *Aggregator) ListBudgets(ctx context.Context, includeInactive bool) ([]*model.Budget, error) {
	uid, err := a.sess.UserID(ctx)
	if err != nil {
		return nil, err
	}
	return a.sess.Store.ListBudgets(ctx, uid, includeInactive)
}

func getBudget(tx store.Tx, uid, id string) (*model.Budget, error) {
	b, err := tx.GetBudget(uid, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.Newf(errs.BudgetNotFound, "budget %s not found", id)
	}
	return b, err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
