package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/CristhianDaza/finControl/internal/errs"
	"github.com/CristhianDaza/finControl/internal/model"
	"github.com/CristhianDaza/finControl/internal/session"
	"github.com/CristhianDaza/finControl/internal/store"
)

var testNow = time.Date(2026, time.October, 17, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Engine, *store.MemoryStore, context.Context) {
	t.Helper()
	clock := func() time.Time { return testNow }
	st := store.NewMemoryStore(store.WithClock(clock))
	sess := session.New(st)
	sess.Clock = clock
	return NewEngine(sess), st, session.WithUser(context.Background(), "user-1")
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func strPtr(s string) *string { return &s }

func mustAccount(t *testing.T, e *Engine, ctx context.Context, name, opening, currency string) *model.Account {
	t.Helper()
	a, err := e.CreateAccount(ctx, AccountInput{Name: name, OpeningBalance: dec(opening), Currency: currency})
	require.NoError(t, err)
	return a
}

func balance(t *testing.T, st *store.MemoryStore, id string) int64 {
	t.Helper()
	a, err := st.GetAccount(context.Background(), "user-1", id)
	require.NoError(t, err)
	return a.BalanceCents
}

func TestCreate_AppliesSignedDelta(t *testing.T) {
	e, st, ctx := newTestEngine(t)
	acc := mustAccount(t, e, ctx, "Wallet", "100.00", "COP")

	tx, err := e.Create(ctx, TransactionInput{Type: model.TypeIncome, Amount: dec("25.50"), AccountID: acc.ID, Date: "2026-10-01"})
	require.NoError(t, err)
	assert.Equal(t, int64(2550), tx.AmountCents)
	assert.Equal(t, "COP", tx.Currency)
	assert.Equal(t, int64(12550), balance(t, st, acc.ID))

	_, err = e.Create(ctx, TransactionInput{Type: model.TypeExpense, Amount: dec("0.50"), AccountID: acc.ID, Date: "2026-10-02"})
	require.NoError(t, err)
	assert.Equal(t, int64(12500), balance(t, st, acc.ID))
}

func TestCreate_Validation(t *testing.T) {
	e, _, ctx := newTestEngine(t)
	acc := mustAccount(t, e, ctx, "Wallet", "10", "")

	tests := []struct {
		name string
		in   TransactionInput
		code errs.Code
	}{
		{"zero amount", TransactionInput{Type: model.TypeExpense, Amount: dec("0"), AccountID: acc.ID}, errs.InvalidAmount},
		{"rounds to zero", TransactionInput{Type: model.TypeExpense, Amount: dec("0.004"), AccountID: acc.ID}, errs.InvalidAmount},
		{"transfer type", TransactionInput{Type: model.TypeTransferIn, Amount: dec("1"), AccountID: acc.ID}, errs.InvalidType},
		{"missing account", TransactionInput{Type: model.TypeExpense, Amount: dec("1")}, errs.AccountRequired},
		{"debt payment without debt", TransactionInput{Type: model.TypeDebtPayment, Amount: dec("1"), AccountID: acc.ID}, errs.DebtRequired},
		{"bad date", TransactionInput{Type: model.TypeExpense, Amount: dec("1"), AccountID: acc.ID, Date: "17/10/2026"}, errs.InvalidDate},
		{"unknown account", TransactionInput{Type: model.TypeExpense, Amount: dec("1"), AccountID: "nope"}, errs.AccountNotFound},
		{"unknown debt", TransactionInput{Type: model.TypeDebtPayment, Amount: dec("1"), AccountID: acc.ID, DebtID: "nope"}, errs.DebtNotFound},
		{"overdraft", TransactionInput{Type: model.TypeExpense, Amount: dec("10.01"), AccountID: acc.ID}, errs.BalanceNegative},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Create(ctx, tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.code, errs.CodeOf(err), err.Error())
		})
	}
}

func TestCreate_ClearsDebtOnNonDebtTypes(t *testing.T) {
	e, _, ctx := newTestEngine(t)
	acc := mustAccount(t, e, ctx, "Wallet", "10", "")

	tx, err := e.Create(ctx, TransactionInput{Type: model.TypeIncome, Amount: dec("1"), AccountID: acc.ID, DebtID: "ignored"})
	require.NoError(t, err)
	assert.Empty(t, tx.DebtID)
	assert.Equal(t, "2026-10-17", tx.Date)
}

func TestCreateDelete_RoundTrip(t *testing.T) {
	e, st, ctx := newTestEngine(t)
	acc := mustAccount(t, e, ctx, "Bank", "80.10", "")
	debt, err := e.CreateDebt(ctx, DebtInput{Name: "Card", Amount: dec("30.05")})
	require.NoError(t, err)

	tx, err := e.Create(ctx, TransactionInput{Type: model.TypeDebtPayment, Amount: dec("12.34"), AccountID: acc.ID, DebtID: debt.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(8010-1234), balance(t, st, acc.ID))

	require.NoError(t, e.Delete(ctx, tx.ID))
	assert.Equal(t, int64(8010), balance(t, st, acc.ID))
	d, err := st.GetDebt(ctx, "user-1", debt.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3005), d.RemainingAmountCents)
	assert.Equal(t, model.DebtActive, d.Status)

	_, err = st.GetTransaction(ctx, "user-1", tx.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDebtPayoff(t *testing.T) {
	e, st, ctx := newTestEngine(t)
	acc := mustAccount(t, e, ctx, "Bank", "500", "")
	debt, err := e.CreateDebt(ctx, DebtInput{Name: "Loan", Amount: dec("50.00")})
	require.NoError(t, err)

	_, err = e.Create(ctx, TransactionInput{Type: model.TypeDebtPayment, Amount: dec("50.00"), AccountID: acc.ID, DebtID: debt.ID})
	require.NoError(t, err)

	d, err := st.GetDebt(ctx, "user-1", debt.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), d.RemainingAmountCents)
	assert.Equal(t, model.DebtPaid, d.Status)

	_, err = e.Create(ctx, TransactionInput{Type: model.TypeDebtPayment, Amount: dec("0.01"), AccountID: acc.ID, DebtID: debt.ID})
	assert.True(t, errs.Has(err, errs.DebtRemainingNegative))
	assert.Equal(t, int64(45000), balance(t, st, acc.ID), "rejected payment must not touch the account")
}

func TestUpdate_SameAccountSingleRead(t *testing.T) {
	e, st, ctx := newTestEngine(t)
	acc := mustAccount(t, e, ctx, "Wallet", "10.00", "")

	tx, err := e.Create(ctx, TransactionInput{Type: model.TypeExpense, Amount: dec("10.00"), AccountID: acc.ID})
	require.NoError(t, err)
	require.Equal(t, int64(0), balance(t, st, acc.ID))

	// Reverting 10 then applying 8 on the same account must net +2, which
	// only works if both effects see one read of the account.
	updated, err := e.Update(ctx, tx.ID, TransactionPatch{Amount: decPtr("8.00")})
	require.NoError(t, err)
	assert.Equal(t, int64(800), updated.AmountCents)
	assert.Equal(t, int64(200), balance(t, st, acc.ID))
}

func TestUpdate_MovesBetweenAccountsAndTypes(t *testing.T) {
	e, st, ctx := newTestEngine(t)
	a := mustAccount(t, e, ctx, "A", "100", "")
	b := mustAccount(t, e, ctx, "B", "100", "USD")
	debt, err := e.CreateDebt(ctx, DebtInput{Name: "Loan", Amount: dec("40")})
	require.NoError(t, err)

	tx, err := e.Create(ctx, TransactionInput{Type: model.TypeDebtPayment, Amount: dec("40"), AccountID: a.ID, DebtID: debt.ID})
	require.NoError(t, err)

	typ := model.TypeIncome
	updated, err := e.Update(ctx, tx.ID, TransactionPatch{Type: &typ, AccountID: &b.ID})
	require.NoError(t, err)
	assert.Empty(t, updated.DebtID)
	assert.Equal(t, "USD", updated.Currency)
	assert.Equal(t, "user-1", updated.OwnerID)

	assert.Equal(t, int64(10000), balance(t, st, a.ID))
	assert.Equal(t, int64(14000), balance(t, st, b.ID))
	d, err := st.GetDebt(ctx, "user-1", debt.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), d.RemainingAmountCents)
	assert.Equal(t, model.DebtActive, d.Status)
}

func TestUpdate_RejectsRevertThatGoesNegative(t *testing.T) {
	e, st, ctx := newTestEngine(t)
	a := mustAccount(t, e, ctx, "A", "0", "")

	income, err := e.Create(ctx, TransactionInput{Type: model.TypeIncome, Amount: dec("20"), AccountID: a.ID})
	require.NoError(t, err)
	_, err = e.Create(ctx, TransactionInput{Type: model.TypeExpense, Amount: dec("15"), AccountID: a.ID})
	require.NoError(t, err)

	_, err = e.Update(ctx, income.ID, TransactionPatch{Amount: decPtr("10")})
	assert.True(t, errs.Has(err, errs.BalanceNegative))
	assert.Equal(t, int64(500), balance(t, st, a.ID))
}

func TestUpdate_RejectsTransferLegs(t *testing.T) {
	e, _, ctx := newTestEngine(t)
	a := mustAccount(t, e, ctx, "A", "10", "")
	b := mustAccount(t, e, ctx, "B", "0", "")
	tr, err := e.CreateTransfer(ctx, TransferInput{FromAccountID: a.ID, ToAccountID: b.ID, AmountFrom: dec("5")})
	require.NoError(t, err)

	_, err = e.Update(ctx, tr.Out.ID, TransactionPatch{Note: strPtr("x")})
	assert.True(t, errs.Has(err, errs.InvalidType))
	assert.True(t, errs.Has(e.Delete(ctx, tr.In.ID), errs.InvalidType))
}

func TestDelete_NotFound(t *testing.T) {
	e, _, ctx := newTestEngine(t)
	assert.True(t, errs.Has(e.Delete(ctx, "missing"), errs.TxNotFound))
}

func TestNonNegativityAndConservation(t *testing.T) {
	e, st, ctx := newTestEngine(t)
	a := mustAccount(t, e, ctx, "A", "50", "")
	b := mustAccount(t, e, ctx, "B", "0", "")

	var created []*model.Transaction
	for i, amt := range []string{"30", "70", "12.5", "0.99"} {
		typ := model.TypeExpense
		if i%2 == 1 {
			typ = model.TypeIncome
		}
		tx, err := e.Create(ctx, TransactionInput{Type: typ, Amount: dec(amt), AccountID: a.ID})
		if err == nil {
			created = append(created, tx)
		}
		assert.GreaterOrEqual(t, balance(t, st, a.ID), int64(0))
	}
	_, err := e.Create(ctx, TransactionInput{Type: model.TypeExpense, Amount: dec("1000"), AccountID: a.ID})
	assert.Error(t, err)

	_, err = e.CreateTransfer(ctx, TransferInput{FromAccountID: a.ID, ToAccountID: b.ID, AmountFrom: dec("20")})
	require.NoError(t, err)
	require.NoError(t, e.Delete(ctx, created[0].ID))

	for _, id := range []string{a.ID, b.ID} {
		rec, err := e.Reconcile(ctx, id)
		require.NoError(t, err)
		assert.True(t, rec.Balanced(), "account %s drift %d", id, rec.DriftCents)
		assert.GreaterOrEqual(t, rec.StoredCents, int64(0))
	}
}

func TestReconcile_ReportsDrift(t *testing.T) {
	e, st, ctx := newTestEngine(t)
	a := mustAccount(t, e, ctx, "A", "10", "")
	_, err := e.Create(ctx, TransactionInput{Type: model.TypeIncome, Amount: dec("5"), AccountID: a.ID})
	require.NoError(t, err)

	require.NoError(t, st.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		acc, err := tx.GetAccount("user-1", a.ID)
		if err != nil {
			return err
		}
		acc.BalanceCents += 7
		return tx.SetAccount(acc)
	}))

	rec, err := e.Reconcile(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, rec.Balanced())
	assert.Equal(t, int64(7), rec.DriftCents)
	assert.Equal(t, int64(1500), rec.ComputedCents)
	assert.Equal(t, 1, rec.Transactions)
}

func TestReadOnlyGateBlocksWrites(t *testing.T) {
	e, st, ctx := newTestEngine(t)
	a := mustAccount(t, e, ctx, "A", "10", "")

	ctrl := gomock.NewController(t)
	gate := session.NewMockWriteGate(ctrl)
	gate.EXPECT().CheckWrite(gomock.Any(), "user-1").Return(session.ErrReadOnly).Times(2)
	e.sess.Gate = gate

	_, err := e.Create(ctx, TransactionInput{Type: model.TypeExpense, Amount: dec("1"), AccountID: a.ID})
	assert.ErrorIs(t, err, session.ErrReadOnly)
	_, err = e.CreateAccount(ctx, AccountInput{Name: "B"})
	assert.ErrorIs(t, err, session.ErrReadOnly)

	assert.Equal(t, int64(1000), balance(t, st, a.ID))
}

func TestUnauthenticated(t *testing.T) {
	e, _, _ := newTestEngine(t)
	_, err := e.ListAccounts(context.Background())
	assert.True(t, errs.Has(err, errs.Unauthorized))
}

func withOtherUser(ctx context.Context) context.Context {
	return session.WithUser(ctx, "user-2")
}
