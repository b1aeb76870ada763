package ledger

import (
	"context"
	"log"

	"github.com/CristhianDaza/finControl/internal/store"
)

// Reconciliation compares an account's stored balance with the balance its
// transactions imply.
type Reconciliation struct {
	AccountID     string `json:"accountId"`
	OpeningCents  int64  `json:"openingCents"`
	StoredCents   int64  `json:"storedCents"`
	ComputedCents int64  `json:"computedCents"`
	DriftCents    int64  `json:"driftCents"`
	Transactions  int    `json:"transactions"`
}

// Balanced reports whether stored and computed balances agree.
func (r Reconciliation) Balanced() bool {
	return r.DriftCents == 0
}

// Reconcile recomputes opening balance plus the signed sum of every
// transaction on the account. It reads inside a transaction so the account
// and its transactions come from one snapshot, and writes nothing.
func (e *Engine) Reconcile(ctx context.Context, accountID string) (*Reconciliation, error) {
	uid, err := e.sess.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var rec *Reconciliation
	err = e.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		rec = nil
		w := newWorkingSet(tx, uid)
		a, err := w.account(accountID)
		if err != nil {
			return err
		}
		txs, err := tx.ListTransactions(uid, store.TransactionFilter{AccountID: accountID})
		if err != nil {
			return err
		}
		computed := a.OpeningBalanceCents
		for _, t := range txs {
			computed += SignedCents(t)
		}
		rec = &Reconciliation{
			AccountID:     accountID,
			OpeningCents:  a.OpeningBalanceCents,
			StoredCents:   a.BalanceCents,
			ComputedCents: computed,
			DriftCents:    a.BalanceCents - computed,
			Transactions:  len(txs),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !rec.Balanced() {
		log.Printf("[Ledger] Account %s for user %s drifted by %d cents", accountID, uid, rec.DriftCents)
	}
	return rec, nil
}
