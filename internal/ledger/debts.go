package ledger

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/CristhianDaza/finControl/internal/calendar"
	"github.com/CristhianDaza/finControl/internal/errs"
	"github.com/CristhianDaza/finControl/internal/model"
	"github.com/CristhianDaza/finControl/internal/money"
	"github.com/CristhianDaza/finControl/internal/store"
)

// DebtInput is the payload for CreateDebt.
type DebtInput struct {
	Name     string
	Amount   decimal.Decimal
	DueDate  string
	Currency string
}

// DebtPatch lists the debt fields that can change after creation. Amounts
// only move through debt payments.
type DebtPatch struct {
	Name    *string
	DueDate *string
}

// CreateDebt records a debt. A zero amount is created already paid.
func (e *Engine) CreateDebt(ctx context.Context, in DebtInput) (*model.Debt, error) {
	uid, err := e.sess.Writer(ctx)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, errs.New(errs.NameRequired)
	}
	amount := money.ToCents(in.Amount)
	if amount < 0 {
		return nil, errs.Newf(errs.InvalidAmount, "debt amount cannot be negative")
	}
	if in.DueDate != "" && !calendar.Valid(in.DueDate) {
		return nil, errs.Newf(errs.InvalidDate, "due date %q must be YYYY-MM-DD", in.DueDate)
	}
	currency, err := money.NormalizeCurrency(in.Currency, model.DefaultCurrency)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidCurrency, err, "invalid currency")
	}

	d := &model.Debt{
		ID:                   uuid.New().String(),
		OwnerID:              uid,
		Name:                 name,
		OriginalAmountCents:  amount,
		RemainingAmountCents: amount,
		Status:               debtStatus(amount),
		DueDate:              in.DueDate,
		Currency:             currency,
		UpdatedAt:            e.sess.Now(),
	}
	err = e.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.SetDebt(d)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// UpdateDebt changes a debt's name or due date.
func (e *Engine) UpdateDebt(ctx context.Context, id string, patch DebtPatch) (*model.Debt, error) {
	uid, err := e.sess.Writer(ctx)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, errs.New(errs.NameRequired)
	}
	if patch.DueDate != nil && *patch.DueDate != "" && !calendar.Valid(*patch.DueDate) {
		return nil, errs.Newf(errs.InvalidDate, "due date %q must be YYYY-MM-DD", *patch.DueDate)
	}

	var updated *model.Debt
	err = e.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		updated = nil
		w := newWorkingSet(tx, uid)
		d, err := w.debt(id)
		if err != nil {
			return err
		}
		if patch.Name != nil {
			d.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.DueDate != nil {
			d.DueDate = *patch.DueDate
		}
		d.UpdatedAt = e.sess.Now()
		if err := tx.SetDebt(d); err != nil {
			return err
		}
		updated = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteDebt removes a debt that has no payments.
func (e *Engine) DeleteDebt(ctx context.Context, id string) error {
	uid, err := e.sess.Writer(ctx)
	if err != nil {
		return err
	}
	return e.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		w := newWorkingSet(tx, uid)
		if _, err := w.debt(id); err != nil {
			return err
		}
		payments, err := tx.ListTransactions(uid, store.TransactionFilter{DebtID: id, Limit: 1})
		if err != nil {
			return err
		}
		if len(payments) > 0 {
			return errs.Newf(errs.DebtHasPayments, "debt %s has payments", id)
		}
		return tx.DeleteDebt(uid, id)
	})
}

// GetDebt returns one of the current user's debts.
func (e *Engine) GetDebt(ctx context.Context, id string) (*model.Debt, error) {
	uid, err := e.sess.UserID(ctx)
	if err != nil {
		return nil, err
	}
	d, err := e.sess.Store.GetDebt(ctx, uid, id)
	if err != nil {
		return nil, notFoundAs(err, errs.DebtNotFound, "debt %s not found", id)
	}
	return d, nil
}

// ListDebts lists the current user's debts, newest first.
func (e *Engine) ListDebts(ctx context.Context) ([]*model.Debt, error) {
	uid, err := e.sess.UserID(ctx)
	if err != nil {
		return nil, err
	}
	return e.sess.Store.ListDebts(ctx, uid)
}
