package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/CristhianDaza/finControl/internal/calendar"
	"github.com/CristhianDaza/finControl/internal/errs"
	"github.com/CristhianDaza/finControl/internal/model"
	"github.com/CristhianDaza/finControl/internal/money"
	"github.com/CristhianDaza/finControl/internal/store"
)

// thresholdWindowHours bounds the alert dedup lookup. Period keys make each
// alert unique, so the window only has to outlive the longest period.
const thresholdWindowHours = 24 * 400

// Period is the date range a budget is measured over. Key identifies it for
// carryover bookkeeping and alert dedup.
type Period struct {
	From string `json:"from"`
	To   string `json:"to"`
	Key  string `json:"periodKey"`
}

// PeriodFor resolves the period of b for the given month. Monthly budgets use
// the calendar month; custom budgets ignore the month and are keyed by their
// own range.
func PeriodFor(b *model.Budget, year int, month time.Month) Period {
	if b.PeriodType == model.PeriodCustom {
		return Period{From: b.PeriodFrom, To: b.PeriodTo, Key: calendar.RangeKey(b.PeriodFrom, b.PeriodTo)}
	}
	from, to := calendar.MonthRange(year, month)
	return Period{From: from, To: to, Key: calendar.MonthKey(year, month)}
}

// Progress is a budget measured over one period. All amounts are in the
// budget currency.
type Progress struct {
	BudgetID             string  `json:"budgetId"`
	Period               Period  `json:"period"`
	SpentCents           int64   `json:"spentCents"`
	EffectiveTargetCents int64   `json:"effectiveTargetCents"`
	RemainingCents       int64   `json:"remainingCents"`
	Pct                  float64 `json:"pct"`
	MissingRates         bool    `json:"missingRates"`
}

// IsRefund reports whether an income transaction gives money back against
// spending: flagged explicitly, or with a note that says so.
func IsRefund(t *model.Transaction) bool {
	if t.IsRefund {
		return true
	}
	note := strings.ToLower(t.Note)
	return strings.Contains(note, "reembolso") || strings.Contains(note, "refund")
}

// convert returns cents in the budget currency. A foreign amount without a
// rate is counted as is and reported as missing.
func convert(b *model.Budget, cents int64, currency string) (int64, bool) {
	if currency == "" || currency == b.Currency {
		return cents, false
	}
	rate, ok := b.CurrencyRates[currency]
	if !ok || rate <= 0 {
		return cents, true
	}
	return money.ConvertCents(cents, decimal.NewFromFloat(rate)), false
}

// Compute measures b against txs, which must already be limited to p.
func Compute(b *model.Budget, p Period, txs []*model.Transaction) Progress {
	out := Progress{BudgetID: b.ID, Period: p}
	if b.Carryover {
		out.EffectiveTargetCents = b.TargetAmountCents + b.CarryoverBalanceCents
	} else {
		out.EffectiveTargetCents = b.TargetAmountCents
	}
	if p.From == "" || p.To == "" {
		out.RemainingCents = out.EffectiveTargetCents
		return out
	}

	excluded := make(map[string]bool, len(b.ExcludeAccounts))
	for _, id := range b.ExcludeAccounts {
		excluded[id] = true
	}
	var scope map[string]bool
	if len(b.Categories) > 0 {
		scope = make(map[string]bool, len(b.Categories))
		for _, id := range b.Categories {
			scope[id] = true
		}
	}

	for _, t := range txs {
		if t.Date < p.From || t.Date > p.To {
			continue
		}
		if excluded[t.AccountID] {
			continue
		}
		// Uncategorized transactions stay in scope.
		if scope != nil && t.CategoryID != "" && !scope[t.CategoryID] {
			continue
		}
		var sign int64
		switch t.Type {
		case model.TypeExpense, model.TypeDebtPayment:
			sign = 1
		case model.TypeIncome:
			if !IsRefund(t) {
				continue
			}
			sign = -1
		default:
			continue
		}
		v, missing := convert(b, t.AmountCents, t.Currency)
		out.MissingRates = out.MissingRates || missing
		out.SpentCents += sign * v
	}

	if out.EffectiveTargetCents > 0 {
		out.Pct = float64(out.SpentCents) / float64(out.EffectiveTargetCents) * 100
	}
	out.RemainingCents = out.EffectiveTargetCents - out.SpentCents
	return out
}

func periodFilter(p Period) store.TransactionFilter {
	return store.TransactionFilter{DateFrom: p.From, DateTo: p.To}
}

// BudgetProgress measures one budget for the given month. A zero year means
// the current month. Crossing the alert threshold sends a notification once
// per budget, threshold and period.
func (a *Aggregator) BudgetProgress(ctx context.Context, id string, year int, month time.Month) (*Progress, error) {
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
	year, month = a.resolveMonth(year, month)
	p, err := a.measure(ctx, uid, b, year, month)
	if err != nil {
		return nil, err
	}
	a.checkThreshold(ctx, b, p)
	return p, nil
}

// MonthProgress measures every active budget for the given month.
func (a *Aggregator) MonthProgress(ctx context.Context, year int, month time.Month) ([]*Progress, error) {
	uid, err := a.sess.UserID(ctx)
	if err != nil {
		return nil, err
	}
	budgets, err := a.sess.Store.ListBudgets(ctx, uid, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list budgets: %w", err)
	}
	year, month = a.resolveMonth(year, month)
	out := make([]*Progress, 0, len(budgets))
	for _, b := range budgets {
		p, err := a.measure(ctx, uid, b, year, month)
		if err != nil {
			return nil, err
		}
		a.checkThreshold(ctx, b, p)
		out = append(out, p)
	}
	return out, nil
}

func (a *Aggregator) resolveMonth(year int, month time.Month) (int, time.Month) {
	if year == 0 || month < time.January || month > time.December {
		now := a.sess.Now().UTC()
		return now.Year(), now.Month()
	}
	return year, month
}

func (a *Aggregator) measure(ctx context.Context, uid string, b *model.Budget, year int, month time.Month) (*Progress, error) {
	period := PeriodFor(b, year, month)
	var txs []*model.Transaction
	if period.From != "" && period.To != "" {
		var err error
		txs, _, err = a.sess.Store.ListTransactions(ctx, uid, periodFilter(period))
		if err != nil {
			return nil, fmt.Errorf("failed to list transactions: %w", err)
		}
	}
	p := Compute(b, period, txs)
	return &p, nil
}

// ClosePeriod folds the period's leftover (target minus spent, possibly
// negative) into the carryover balance. Closing the same period twice is a
// no-op, and so is closing a budget without carryover.
func (a *Aggregator) ClosePeriod(ctx context.Context, id string, year int, month time.Month) (*model.Budget, error) {
	uid, err := a.sess.Writer(ctx)
	if err != nil {
		return nil, err
	}
	if year == 0 || month < time.January || month > time.December {
		return nil, errs.Newf(errs.InvalidDate, "invalid period %d-%02d", year, int(month))
	}

	var (
		closed  *model.Budget
		changed bool
	)
	err = a.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		closed, changed = nil, false
		b, err := getBudget(tx, uid, id)
		if err != nil {
			return err
		}
		period := PeriodFor(b, year, month)
		if !b.Carryover || b.LastClosedPeriodKey == period.Key {
			closed = b
			return nil
		}
		var txs []*model.Transaction
		if period.From != "" && period.To != "" {
			if txs, err = tx.ListTransactions(uid, periodFilter(period)); err != nil {
				return err
			}
		}
		p := Compute(b, period, txs)
		b.CarryoverBalanceCents += b.TargetAmountCents - p.SpentCents
		b.LastClosedPeriodKey = period.Key
		b.UpdatedAt = a.sess.Now()
		if err := tx.SetBudget(b); err != nil {
			return err
		}
		closed, changed = b, true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		log.Printf("[Aggregate] Closed budget %s period %s, carryover now %s", id, closed.LastClosedPeriodKey, money.Format(closed.CarryoverBalanceCents, closed.Currency))
	}
	return closed, nil
}

func (a *Aggregator) checkThreshold(ctx context.Context, b *model.Budget, p *Progress) {
	if !b.Active || b.AlertThresholdPct <= 0 || p.EffectiveTargetCents <= 0 {
		return
	}
	if p.Pct < b.AlertThresholdPct {
		return
	}
	threshold := fmt.Sprintf("%.0f", b.AlertThresholdPct)
	dedup := p.Period.Key + "/" + threshold
	exists, err := a.sess.Store.HasNotification(ctx, b.OwnerID, model.NotifyBudgetThreshold, b.ID, "dedup", dedup, thresholdWindowHours)
	if err != nil {
		log.Printf("[Aggregate] Failed to check for existing budget notification: %v", err)
		return
	}
	if exists {
		return
	}

	message := fmt.Sprintf("You've spent %.0f%% of your %s budget.", p.Pct, b.Name)
	if p.Pct >= 100 {
		message = fmt.Sprintf("You've exceeded your %s budget!", b.Name)
	}
	err = a.sess.Notify(ctx, &model.Notification{
		OwnerID:     b.OwnerID,
		Kind:        model.NotifyBudgetThreshold,
		Title:       fmt.Sprintf("Budget Alert: %s", b.Name),
		Message:     message,
		ReferenceID: b.ID,
		Metadata: map[string]string{
			"threshold": threshold,
			"periodKey": p.Period.Key,
			"dedup":     dedup,
		},
	})
	if err != nil {
		log.Printf("[Aggregate] Failed to create budget threshold notification: %v", err)
	}
}
