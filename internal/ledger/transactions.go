package ledger

import (
	"context"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/CristhianDaza/finControl/internal/calendar"
	"github.com/CristhianDaza/finControl/internal/errs"
	"github.com/CristhianDaza/finControl/internal/model"
	"github.com/CristhianDaza/finControl/internal/money"
	"github.com/CristhianDaza/finControl/internal/store"
)

// TransactionInput is the payload for Create.
type TransactionInput struct {
	Type       model.TransactionType
	Amount     decimal.Decimal
	AccountID  string
	DebtID     string
	Currency   string
	Date       string
	Note       string
	CategoryID string
	GoalID     string
	IsRefund   bool
	Recurring  *model.RecurringMeta
}

// TransactionPatch lists the fields Update may change. Nil means unchanged.
// Owner and transfer fields are deliberately absent.
type TransactionPatch struct {
	Type       *model.TransactionType
	Amount     *decimal.Decimal
	AccountID  *string
	DebtID     *string
	Currency   *string
	Date       *string
	Note       *string
	CategoryID *string
	GoalID     *string
	IsRefund   *bool
}

// Validate checks a payload without touching the store. The scheduler uses it
// to skip template occurrences that could never post.
func Validate(in TransactionInput) error {
	if !in.Type.IsSimple() {
		return errs.Newf(errs.InvalidType, "type %q cannot be posted directly", in.Type)
	}
	if money.ToCents(in.Amount) <= 0 {
		return errs.Newf(errs.InvalidAmount, "amount must be positive")
	}
	if strings.TrimSpace(in.AccountID) == "" {
		return errs.New(errs.AccountRequired)
	}
	if in.Type == model.TypeDebtPayment && strings.TrimSpace(in.DebtID) == "" {
		return errs.New(errs.DebtRequired)
	}
	if in.Date != "" && !calendar.Valid(in.Date) {
		return errs.Newf(errs.InvalidDate, "date %q must be YYYY-MM-DD", in.Date)
	}
	if in.Currency != "" {
		if _, err := money.NormalizeCurrency(in.Currency, ""); err != nil {
			return errs.Wrap(errs.InvalidCurrency, err, "invalid currency")
		}
	}
	return nil
}

// Create posts a simple transaction and applies its effect to the account
// and, for debt payments, to the debt.
func (e *Engine) Create(ctx context.Context, in TransactionInput) (*model.Transaction, error) {
	uid, err := e.sess.Writer(ctx)
	if err != nil {
		return nil, err
	}
	if err := Validate(in); err != nil {
		return nil, err
	}
	if in.Type != model.TypeDebtPayment {
		in.DebtID = ""
	}
	if in.Date == "" {
		in.Date = e.sess.Today()
	}
	currency, _ := money.NormalizeCurrency(in.Currency, "")

	id := uuid.New().String()
	amount := money.ToCents(in.Amount)

	var created *model.Transaction
	err = e.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		created = nil
		now := e.sess.Now()
		w := newWorkingSet(tx, uid)

		acc, err := w.account(in.AccountID)
		if err != nil {
			return err
		}
		t := &model.Transaction{
			ID:          id,
			OwnerID:     uid,
			Type:        in.Type,
			AmountCents: amount,
			Currency:    firstNonEmpty(currency, acc.Currency, model.DefaultCurrency),
			AccountID:   in.AccountID,
			DebtID:      in.DebtID,
			CategoryID:  in.CategoryID,
			GoalID:      in.GoalID,
			Date:        in.Date,
			Note:        in.Note,
			IsRefund:    in.IsRefund,
			Recurring:   in.Recurring,
			UpdatedAt:   now,
		}
		if err := w.post(t, 1); err != nil {
			return err
		}
		if err := w.checkApplied(); err != nil {
			return err
		}
		if err := w.flush(now); err != nil {
			return err
		}
		if err := tx.SetTransaction(t); err != nil {
			return err
		}
		created = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (p TransactionPatch) validate() error {
	if p.Type != nil && !p.Type.IsSimple() {
		return errs.Newf(errs.InvalidType, "type %q cannot be set by update", *p.Type)
	}
	if p.Amount != nil && money.ToCents(*p.Amount) <= 0 {
		return errs.Newf(errs.InvalidAmount, "amount must be positive")
	}
	if p.Date != nil && !calendar.Valid(*p.Date) {
		return errs.Newf(errs.InvalidDate, "date %q must be YYYY-MM-DD", *p.Date)
	}
	if p.Currency != nil && *p.Currency != "" {
		if _, err := money.NormalizeCurrency(*p.Currency, ""); err != nil {
			return errs.Wrap(errs.InvalidCurrency, err, "invalid currency")
		}
	}
	return nil
}

// apply returns a copy of t with the patch applied.
func (p TransactionPatch) apply(t model.Transaction) model.Transaction {
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Amount != nil {
		t.AmountCents = money.ToCents(*p.Amount)
	}
	if p.AccountID != nil {
		t.AccountID = *p.AccountID
	}
	if p.DebtID != nil {
		t.DebtID = *p.DebtID
	}
	if p.Currency != nil {
		t.Currency, _ = money.NormalizeCurrency(*p.Currency, "")
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.Note != nil {
		t.Note = *p.Note
	}
	if p.CategoryID != nil {
		t.CategoryID = *p.CategoryID
	}
	if p.GoalID != nil {
		t.GoalID = *p.GoalID
	}
	if p.IsRefund != nil {
		t.IsRefund = *p.IsRefund
	}
	if t.Type != model.TypeDebtPayment {
		t.DebtID = ""
	}
	return t
}

// Update reverts the stored effect of a transaction and applies the patched
// one in a single atomic step.
func (e *Engine) Update(ctx context.Context, id string, patch TransactionPatch) (*model.Transaction, error) {
	uid, err := e.sess.Writer(ctx)
	if err != nil {
		return nil, err
	}
	if err := patch.validate(); err != nil {
		return nil, err
	}

	var updated *model.Transaction
	err = e.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		updated = nil
		now := e.sess.Now()

		prev, err := getTransaction(tx, uid, id)
		if err != nil {
			return err
		}
		if prev.Type.IsTransfer() {
			return errs.Newf(errs.InvalidType, "transaction %s is a transfer leg", id)
		}

		next := patch.apply(*prev)
		if strings.TrimSpace(next.AccountID) == "" {
			return errs.New(errs.AccountRequired)
		}
		if next.Type == model.TypeDebtPayment && next.DebtID == "" {
			return errs.New(errs.DebtRequired)
		}

		w := newWorkingSet(tx, uid)
		if err := w.post(prev, -1); err != nil {
			return err
		}
		if err := w.checkBalances(); err != nil {
			return err
		}
		acc, err := w.account(next.AccountID)
		if err != nil {
			return err
		}
		if patch.Currency == nil && next.AccountID != prev.AccountID {
			next.Currency = firstNonEmpty(acc.Currency, next.Currency)
		}
		if err := w.post(&next, 1); err != nil {
			return err
		}
		if err := w.checkApplied(); err != nil {
			return err
		}
		if err := w.flush(now); err != nil {
			return err
		}
		next.UpdatedAt = now
		if err := tx.SetTransaction(&next); err != nil {
			return err
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete reverts a transaction's effect and removes it.
func (e *Engine) Delete(ctx context.Context, id string) error {
	uid, err := e.sess.Writer(ctx)
	if err != nil {
		return err
	}
	return e.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		t, err := getTransaction(tx, uid, id)
		if err != nil {
			return err
		}
		if t.Type.IsTransfer() {
			return errs.Newf(errs.InvalidType, "transaction %s is a transfer leg", id)
		}
		w := newWorkingSet(tx, uid)
		if err := w.post(t, -1); err != nil {
			return err
		}
		if err := w.checkBalances(); err != nil {
			log.Printf("[Ledger] Refusing to delete %s for user %s: reverted balance negative", id, uid)
			return err
		}
		if err := w.flush(e.sess.Now()); err != nil {
			return err
		}
		return tx.DeleteTransaction(uid, id)
	})
}

// Get returns one of the current user's transactions.
func (e *Engine) Get(ctx context.Context, id string) (*model.Transaction, error) {
	uid, err := e.sess.UserID(ctx)
	if err != nil {
		return nil, err
	}
	t, err := e.sess.Store.GetTransaction(ctx, uid, id)
	if err != nil {
		return nil, notFoundAs(err, errs.TxNotFound, "transaction %s not found", id)
	}
	return t, nil
}

// ListTransactions lists the current user's transactions, newest first.
func (e *Engine) ListTransactions(ctx context.Context, filter store.TransactionFilter) ([]*model.Transaction, string, error) {
	uid, err := e.sess.UserID(ctx)
	if err != nil {
		return nil, "", err
	}
	if filter.DateFrom != "" && !calendar.Valid(filter.DateFrom) {
		return nil, "", errs.Newf(errs.InvalidDate, "dateFrom %q must be YYYY-MM-DD", filter.DateFrom)
	}
	if filter.DateTo != "" && !calendar.Valid(filter.DateTo) {
		return nil, "", errs.Newf(errs.InvalidDate, "dateTo %q must be YYYY-MM-DD", filter.DateTo)
	}
	return e.sess.Store.ListTransactions(ctx, uid, filter)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
