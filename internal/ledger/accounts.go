package ledger

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/CristhianDaza/finControl/internal/currency"
	"github.com/CristhianDaza/finControl/internal/errs"
	"github.com/CristhianDaza/finControl/internal/model"
	"github.com/CristhianDaza/finControl/internal/money"
	"github.com/CristhianDaza/finControl/internal/store"
)

// AccountInput is the payload for CreateAccount.
type AccountInput struct {
	Name           string
	OpeningBalance decimal.Decimal
	Currency       string
}

// CreateAccount creates an account whose balance starts at the opening
// balance. The opening balance is kept for Reconcile.
func (e *Engine) CreateAccount(ctx context.Context, in AccountInput) (*model.Account, error) {
	uid, err := e.sess.Writer(ctx)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, errs.New(errs.NameRequired)
	}
	opening := money.ToCents(in.OpeningBalance)
	if opening < 0 {
		return nil, errs.Newf(errs.InvalidAmount, "opening balance cannot be negative")
	}
	code, err := money.NormalizeCurrency(in.Currency, "")
	if err != nil {
		return nil, errs.Wrap(errs.InvalidCurrency, err, "invalid currency")
	}

	a := &model.Account{
		ID:                  uuid.New().String(),
		OwnerID:             uid,
		Name:                name,
		BalanceCents:        opening,
		OpeningBalanceCents: opening,
		Currency:            code,
		UpdatedAt:           e.sess.Now(),
	}
	err = e.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		a.Currency = code
		if a.Currency == "" {
			// Unspecified currency follows the user's default.
			list, err := tx.ListCurrencies(uid)
			if err != nil {
				return err
			}
			a.Currency = currency.DefaultIn(list)
		}
		return tx.SetAccount(a)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// RenameAccount changes an account's display name.
func (e *Engine) RenameAccount(ctx context.Context, id, name string) (*model.Account, error) {
	uid, err := e.sess.Writer(ctx)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errs.New(errs.NameRequired)
	}
	var renamed *model.Account
	err = e.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		renamed = nil
		w := newWorkingSet(tx, uid)
		a, err := w.account(id)
		if err != nil {
			return err
		}
		a.Name = name
		a.UpdatedAt = e.sess.Now()
		if err := tx.SetAccount(a); err != nil {
			return err
		}
		renamed = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return renamed, nil
}

// DeleteAccount removes an account that no transaction references.
func (e *Engine) DeleteAccount(ctx context.Context, id string) error {
	uid, err := e.sess.Writer(ctx)
	if err != nil {
		return err
	}
	return e.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		w := newWorkingSet(tx, uid)
		if _, err := w.account(id); err != nil {
			return err
		}
		refs, err := tx.ListTransactions(uid, store.TransactionFilter{AccountID: id, Limit: 1})
		if err != nil {
			return err
		}
		if len(refs) > 0 {
			return errs.Newf(errs.AccountInUse, "account %s has transactions", id)
		}
		return tx.DeleteAccount(uid, id)
	})
}

// GetAccount returns one of the current user's accounts.
func (e *Engine) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	uid, err := e.sess.UserID(ctx)
	if err != nil {
		return nil, err
	}
	a, err := e.sess.Store.GetAccount(ctx, uid, id)
	if err != nil {
		return nil, notFoundAs(err, errs.AccountNotFound, "account %s not found", id)
	}
	return a, nil
}

// ListAccounts lists the current user's accounts by name.
func (e *Engine) ListAccounts(ctx context.Context) ([]*model.Account, error) {
	uid, err := e.sess.UserID(ctx)
	if err != nil {
		return nil, err
	}
	return e.sess.Store.ListAccounts(ctx, uid)
}
