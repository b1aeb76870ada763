// Package ledger keeps account balances, debt remaining amounts and
// transaction documents consistent. Every mutation runs inside one store
// transaction and computes in integer minor units.
package ledger

import (
	"errors"
	"time"

	"github.com/CristhianDaza/finControl/internal/errs"
	"github.com/CristhianDaza/finControl/internal/model"
	"github.com/CristhianDaza/finControl/internal/session"
	"github.com/CristhianDaza/finControl/internal/store"
)

// Engine is the ledger engine.
type Engine struct {
	sess *session.Session
}

// NewEngine creates a ledger engine bound to sess.
func NewEngine(sess *session.Session) *Engine {
	return &Engine{sess: sess}
}

// SignedCents returns the effect of t on its own account: positive for
// income and transfer-in, negative for everything else.
func SignedCents(t *model.Transaction) int64 {
	switch t.Type {
	case model.TypeIncome, model.TypeTransferIn:
		return t.AmountCents
	default:
		return -t.AmountCents
	}
}

// workingSet caches every account and debt a transaction body touches so
// each document is read once, however many effects are applied to it.
// Effects are applied in memory and written by flush after all reads.
type workingSet struct {
	tx  store.Tx
	uid string

	accounts  map[string]*model.Account
	debts     map[string]*model.Debt
	accOrder  []string
	debtOrder []string
	dirtyAcc  map[string]bool
	dirtyDebt map[string]bool
}

func newWorkingSet(tx store.Tx, uid string) *workingSet {
	return &workingSet{
		tx:        tx,
		uid:       uid,
		accounts:  make(map[string]*model.Account),
		debts:     make(map[string]*model.Debt),
		dirtyAcc:  make(map[string]bool),
		dirtyDebt: make(map[string]bool),
	}
}

func (w *workingSet) account(id string) (*model.Account, error) {
	if a, ok := w.accounts[id]; ok {
		return a, nil
	}
	a, err := w.tx.GetAccount(w.uid, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.Newf(errs.AccountNotFound, "account %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	if a.OwnerID != "" && a.OwnerID != w.uid {
		return nil, errs.Newf(errs.Unauthorized, "account %s belongs to another user", id)
	}
	a.ID = id
	w.accounts[id] = a
	w.accOrder = append(w.accOrder, id)
	return a, nil
}

func (w *workingSet) debt(id string) (*model.Debt, error) {
	if d, ok := w.debts[id]; ok {
		return d, nil
	}
	d, err := w.tx.GetDebt(w.uid, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.Newf(errs.DebtNotFound, "debt %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	if d.OwnerID != "" && d.OwnerID != w.uid {
		return nil, errs.Newf(errs.Unauthorized, "debt %s belongs to another user", id)
	}
	d.ID = id
	w.debts[id] = d
	w.debtOrder = append(w.debtOrder, id)
	return d, nil
}

// post applies t (sign +1) or reverts it (sign -1).
func (w *workingSet) post(t *model.Transaction, sign int64) error {
	a, err := w.account(t.AccountID)
	if err != nil {
		return err
	}
	a.BalanceCents += SignedCents(t) * sign
	w.dirtyAcc[t.AccountID] = true

	if t.Type == model.TypeDebtPayment && t.DebtID != "" {
		d, err := w.debt(t.DebtID)
		if err != nil {
			return err
		}
		d.RemainingAmountCents -= t.AmountCents * sign
		w.dirtyDebt[t.DebtID] = true
	}
	return nil
}

// checkBalances rejects any touched account that went negative.
func (w *workingSet) checkBalances() error {
	for _, id := range w.accOrder {
		if a := w.accounts[id]; a.BalanceCents < 0 {
			return errs.Newf(errs.BalanceNegative, "account %s would have balance %d", id, a.BalanceCents)
		}
	}
	return nil
}

// checkApplied runs after new effects: balances and debt remainders must
// both stay non-negative.
func (w *workingSet) checkApplied() error {
	if err := w.checkBalances(); err != nil {
		return err
	}
	for _, id := range w.debtOrder {
		if d := w.debts[id]; d.RemainingAmountCents < 0 {
			return errs.Newf(errs.DebtRemainingNegative, "debt %s would have remaining %d", id, d.RemainingAmountCents)
		}
	}
	return nil
}

// flush writes every changed document. Must be called after the last read.
func (w *workingSet) flush(now time.Time) error {
	for _, id := range w.accOrder {
		if !w.dirtyAcc[id] {
			continue
		}
		a := w.accounts[id]
		a.UpdatedAt = now
		if err := w.tx.SetAccount(a); err != nil {
			return err
		}
	}
	for _, id := range w.debtOrder {
		if !w.dirtyDebt[id] {
			continue
		}
		d := w.debts[id]
		d.Status = debtStatus(d.RemainingAmountCents)
		d.UpdatedAt = now
		if err := w.tx.SetDebt(d); err != nil {
			return err
		}
	}
	return nil
}

func debtStatus(remaining int64) model.DebtStatus {
	if remaining == 0 {
		return model.DebtPaid
	}
	return model.DebtActive
}

// getTransaction reads a transaction and enforces ownership.
func getTransaction(tx store.Tx, uid, id string) (*model.Transaction, error) {
	t, err := tx.GetTransaction(uid, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.Newf(errs.TxNotFound, "transaction %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	if t.OwnerID != uid {
		return nil, errs.Newf(errs.Unauthorized, "transaction %s belongs to another user", id)
	}
	return t, nil
}

func notFoundAs(err error, code errs.Code, format string, args ...any) error {
	if errors.Is(err, store.ErrNotFound) {
		return errs.Newf(code, format, args...)
	}
	return err
}
