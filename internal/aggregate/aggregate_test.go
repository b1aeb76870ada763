package aggregate

import (
	"context"
	"strconv"
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

type fixture struct {
	agg   *Aggregator
	sess  *session.Session
	store *store.MemoryStore
	ctx   context.Context
	seq   int
}

type storeNotifier struct{ st store.Store }

func (n storeNotifier) Notify(ctx context.Context, note *model.Notification) error {
	return n.st.CreateNotification(ctx, note)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := func() time.Time { return testNow }
	st := store.NewMemoryStore(store.WithClock(clock))
	sess := session.New(st)
	sess.Clock = clock
	sess.Notifier = storeNotifier{st}
	return &fixture{
		agg:   New(sess),
		sess:  sess,
		store: st,
		ctx:   session.WithUser(context.Background(), "user-1"),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// seed writes transactions directly, bypassing balance checks.
func (f *fixture) seed(t *testing.T, txs ...*model.Transaction) {
	t.Helper()
	require.NoError(t, f.store.RunTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		for _, tr := range txs {
			if tr.ID == "" {
				f.seq++
				tr.ID = "tx-" + strconv.Itoa(f.seq)
			}
			if tr.OwnerID == "" {
				tr.OwnerID = "user-1"
			}
			if err := tx.SetTransaction(tr); err != nil {
				return err
			}
		}
		return nil
	}))
}

func (f *fixture) notifications(t *testing.T, kind model.NotificationKind) []*model.Notification {
	t.Helper()
	all, _, err := f.store.ListNotifications(context.Background(), "user-1", false, 0, "")
	require.NoError(t, err)
	var out []*model.Notification
	for _, n := range all {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func expense(amount int64, date string) *model.Transaction {
	return &model.Transaction{Type: model.TypeExpense, AmountCents: amount, Currency: "COP", AccountID: "acc-1", Date: date}
}

func TestCompute(t *testing.T) {
	b := &model.Budget{
		ID:                "b1",
		TargetAmountCents: 100000,
		Currency:          "COP",
		PeriodType:        model.PeriodMonthly,
		Categories:        []string{"food"},
		ExcludeAccounts:   []string{"acc-x"},
		CurrencyRates:     map[string]float64{"USD": 4000},
	}
	p := PeriodFor(b, 2026, time.October)
	assert.Equal(t, Period{From: "2026-10-01", To: "2026-10-31", Key: "2026-10"}, p)

	txs := []*model.Transaction{
		{Type: model.TypeExpense, AmountCents: 20000, Currency: "COP", AccountID: "acc-1", CategoryID: "food", Date: "2026-10-02"},
		{Type: model.TypeDebtPayment, AmountCents: 5000, Currency: "COP", AccountID: "acc-1", Date: "2026-10-03"},
		{Type: model.TypeExpense, AmountCents: 1000, Currency: "COP", AccountID: "acc-1", CategoryID: "travel", Date: "2026-10-04"},
		{Type: model.TypeExpense, AmountCents: 3000, Currency: "COP", AccountID: "acc-x", CategoryID: "food", Date: "2026-10-05"},
		{Type: model.TypeIncome, AmountCents: 1500, Currency: "COP", AccountID: "acc-1", CategoryID: "food", Note: "Reembolso tienda", Date: "2026-10-06"},
		{Type: model.TypeIncome, AmountCents: 50000, Currency: "COP", AccountID: "acc-1", Date: "2026-10-07"},
		{Type: model.TypeExpense, AmountCents: 5, Currency: "USD", AccountID: "acc-1", CategoryID: "food", Date: "2026-10-08"},
		{Type: model.TypeExpense, AmountCents: 100, Currency: "EUR", AccountID: "acc-1", CategoryID: "food", Date: "2026-10-09"},
		{Type: model.TypeTransferOut, AmountCents: 7000, Currency: "COP", AccountID: "acc-1", Date: "2026-10-10"},
		{Type: model.TypeExpense, AmountCents: 9000, Currency: "COP", AccountID: "acc-1", Date: "2026-09-30"},
	}

	got := Compute(b, p, txs)
	assert.Equal(t, int64(20000+5000-1500+20000+100), got.SpentCents)
	assert.True(t, got.MissingRates)
	assert.Equal(t, int64(100000), got.EffectiveTargetCents)
	assert.Equal(t, int64(100000-43600), got.RemainingCents)
	assert.InDelta(t, 43.6, got.Pct, 1e-9)

	b.Carryover = true
	b.CarryoverBalanceCents = 10000
	got = Compute(b, p, txs)
	assert.Equal(t, int64(110000), got.EffectiveTargetCents)
	assert.Equal(t, int64(110000-43600), got.RemainingCents)

	b.CarryoverBalanceCents = -10000
	got = Compute(b, p, txs)
	assert.Equal(t, int64(90000), got.EffectiveTargetCents)
}

func TestCompute_CustomPeriodWithoutRange(t *testing.T) {
	b := &model.Budget{TargetAmountCents: 5000, PeriodType: model.PeriodCustom}
	got := Compute(b, PeriodFor(b, 2026, time.October), []*model.Transaction{expense(100, "2026-10-01")})
	assert.Zero(t, got.SpentCents)
	assert.Zero(t, got.Pct)
	assert.Equal(t, int64(5000), got.RemainingCents)
}

func TestIsRefund(t *testing.T) {
	assert.True(t, IsRefund(&model.Transaction{IsRefund: true}))
	assert.True(t, IsRefund(&model.Transaction{Note: "Store REFUND"}))
	assert.True(t, IsRefund(&model.Transaction{Note: "reembolso"}))
	assert.False(t, IsRefund(&model.Transaction{Note: "salary"}))
}

func TestCreateBudget_Defaults(t *testing.T) {
	f := newFixture(t)
	b, err := f.agg.CreateBudget(f.ctx, BudgetInput{
		Name:          " Food ",
		TargetAmount:  dec("500"),
		CurrencyRates: map[string]decimal.Decimal{"usd": dec("4000")},
	})
	require.NoError(t, err)
	assert.Equal(t, "Food", b.Name)
	assert.Equal(t, "COP", b.Currency)
	assert.Equal(t, model.PeriodMonthly, b.PeriodType)
	assert.Equal(t, float64(DefaultAlertThresholdPct), b.AlertThresholdPct)
	assert.Equal(t, map[string]float64{"USD": 4000}, b.CurrencyRates)
	assert.True(t, b.Active)
	assert.Equal(t, "user-1", b.OwnerID)

	got, err := f.agg.GetBudget(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), got.TargetAmountCents)
}

func TestCreateBudget_Validation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		in   BudgetInput
		code errs.Code
	}{
		{"no name", BudgetInput{TargetAmount: dec("1")}, errs.NameRequired},
		{"zero target", BudgetInput{Name: "x", TargetAmount: dec("0")}, errs.InvalidAmount},
		{"bad currency", BudgetInput{Name: "x", TargetAmount: dec("1"), Currency: "ZZZ"}, errs.InvalidCurrency},
		{"bad period type", BudgetInput{Name: "x", TargetAmount: dec("1"), PeriodType: "weekly"}, errs.InvalidArgument},
		{"custom without range", BudgetInput{Name: "x", TargetAmount: dec("1"), PeriodType: model.PeriodCustom}, errs.InvalidDate},
		{"custom reversed", BudgetInput{Name: "x", TargetAmount: dec("1"), PeriodType: model.PeriodCustom, PeriodFrom: "2026-10-31", PeriodTo: "2026-10-01"}, errs.InvalidDate},
		{"negative rate", BudgetInput{Name: "x", TargetAmount: dec("1"), CurrencyRates: map[string]decimal.Decimal{"USD": dec("-1")}}, errs.InvalidRate},
		{"negative threshold", BudgetInput{Name: "x", TargetAmount: dec("1"), AlertThresholdPct: -5}, errs.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.agg.CreateBudget(f.ctx, tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.code, errs.CodeOf(err))
		})
	}
}

func TestBudgetCRUD(t *testing.T) {
	f := newFixture(t)
	b, err := f.agg.CreateBudget(f.ctx, BudgetInput{Name: "Food", TargetAmount: dec("100")})
	require.NoError(t, err)

	inactive := false
	name := "Groceries"
	updated, err := f.agg.UpdateBudget(f.ctx, b.ID, BudgetPatch{Name: &name, Active: &inactive})
	require.NoError(t, err)
	assert.Equal(t, "Groceries", updated.Name)

	active, err := f.agg.ListBudgets(f.ctx, false)
	require.NoError(t, err)
	assert.Empty(t, active)
	all, err := f.agg.ListBudgets(f.ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, f.agg.DeleteBudget(f.ctx, b.ID))
	_, err = f.agg.GetBudget(f.ctx, b.ID)
	assert.True(t, errs.Has(err, errs.BudgetNotFound))
	err = f.agg.DeleteBudget(f.ctx, b.ID)
	assert.True(t, errs.Has(err, errs.BudgetNotFound))
	_, err = f.agg.UpdateBudget(f.ctx, b.ID, BudgetPatch{Name: &name})
	assert.True(t, errs.Has(err, errs.BudgetNotFound))
}

func TestBudgetProgress_ThresholdNotifiesOncePerPeriod(t *testing.T) {
	f := newFixture(t)
	b, err := f.agg.CreateBudget(f.ctx, BudgetInput{Name: "Food", TargetAmount: dec("100")})
	require.NoError(t, err)
	f.seed(t, expense(8500, "2026-10-05"), expense(9900, "2026-09-05"))

	p, err := f.agg.BudgetProgress(f.ctx, b.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "2026-10", p.Period.Key)
	assert.Equal(t, int64(8500), p.SpentCents)
	assert.Equal(t, int64(1500), p.RemainingCents)

	_, err = f.agg.BudgetProgress(f.ctx, b.ID, 2026, time.October)
	require.NoError(t, err)
	notes := f.notifications(t, model.NotifyBudgetThreshold)
	require.Len(t, notes, 1)
	assert.Equal(t, b.ID, notes[0].ReferenceID)
	assert.Equal(t, "80", notes[0].Metadata["threshold"])
	assert.Equal(t, "2026-10", notes[0].Metadata["periodKey"])

	// A different period alerts separately.
	p, err = f.agg.BudgetProgress(f.ctx, b.ID, 2026, time.September)
	require.NoError(t, err)
	assert.Equal(t, int64(9900), p.SpentCents)
	assert.Len(t, f.notifications(t, model.NotifyBudgetThreshold), 2)

	// Below threshold stays quiet.
	_, err = f.agg.BudgetProgress(f.ctx, b.ID, 2026, time.August)
	require.NoError(t, err)
	assert.Len(t, f.notifications(t, model.NotifyBudgetThreshold), 2)
}

func TestBudgetProgress_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.agg.BudgetProgress(f.ctx, "missing", 0, 0)
	assert.True(t, errs.Has(err, errs.BudgetNotFound))
}

func TestMonthProgress(t *testing.T) {
	f := newFixture(t)
	_, err := f.agg.CreateBudget(f.ctx, BudgetInput{Name: "A", TargetAmount: dec("100")})
	require.NoError(t, err)
	_, err = f.agg.CreateBudget(f.ctx, BudgetInput{Name: "B", TargetAmount: dec("100"), Inactive: true})
	require.NoError(t, err)
	f.seed(t, expense(1000, "2026-10-05"))

	list, err := f.agg.MonthProgress(f.ctx, 2026, time.October)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(1000), list[0].SpentCents)
}

func TestClosePeriod(t *testing.T) {
	f := newFixture(t)
	b, err := f.agg.CreateBudget(f.ctx, BudgetInput{Name: "Food", TargetAmount: dec("100"), Carryover: true})
	require.NoError(t, err)
	f.seed(t, expense(8500, "2026-10-05"))

	closed, err := f.agg.ClosePeriod(f.ctx, b.ID, 2026, time.October)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), closed.CarryoverBalanceCents)
	assert.Equal(t, "2026-10", closed.LastClosedPeriodKey)

	closed, err = f.agg.ClosePeriod(f.ctx, b.ID, 2026, time.October)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), closed.CarryoverBalanceCents)

	closed, err = f.agg.ClosePeriod(f.ctx, b.ID, 2026, time.November)
	require.NoError(t, err)
	assert.Equal(t, int64(11500), closed.CarryoverBalanceCents)

	p, err := f.agg.BudgetProgress(f.ctx, b.ID, 2026, time.December)
	require.NoError(t, err)
	assert.Equal(t, int64(21500), p.EffectiveTargetCents)

	_, err = f.agg.ClosePeriod(f.ctx, b.ID, 0, 0)
	assert.True(t, errs.Has(err, errs.InvalidDate))
	_, err = f.agg.ClosePeriod(f.ctx, "missing", 2026, time.October)
	assert.True(t, errs.Has(err, errs.BudgetNotFound))
}

func TestClosePeriod_CustomRangeClosesOnce(t *testing.T) {
	f := newFixture(t)
	b, err := f.agg.CreateBudget(f.ctx, BudgetInput{
		Name: "Trip", TargetAmount: dec("100"), Carryover: true,
		PeriodType: model.PeriodCustom, PeriodFrom: "2026-09-15", PeriodTo: "2026-10-14",
	})
	require.NoError(t, err)
	f.seed(t, expense(4000, "2026-09-20"), expense(9999, "2026-10-20"))

	closed, err := f.agg.ClosePeriod(f.ctx, b.ID, 2026, time.September)
	require.NoError(t, err)
	assert.Equal(t, "2026-09-15..2026-10-14", closed.LastClosedPeriodKey)
	assert.Equal(t, int64(6000), closed.CarryoverBalanceCents)

	// Another month names the same range.
	closed, err = f.agg.ClosePeriod(f.ctx, b.ID, 2026, time.October)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), closed.CarryoverBalanceCents)

	p, err := f.agg.BudgetProgress(f.ctx, b.ID, 2026, time.November)
	require.NoError(t, err)
	assert.Equal(t, "2026-09-15..2026-10-14", p.Period.Key)
	assert.Equal(t, int64(4000), p.SpentCents)
}

func TestClosePeriod_WithoutCarryoverIsNoop(t *testing.T) {
	f := newFixture(t)
	b, err := f.agg.CreateBudget(f.ctx, BudgetInput{Name: "Food", TargetAmount: dec("100")})
	require.NoError(t, err)

	closed, err := f.agg.ClosePeriod(f.ctx, b.ID, 2026, time.October)
	require.NoError(t, err)
	assert.Zero(t, closed.CarryoverBalanceCents)
	assert.Empty(t, closed.LastClosedPeriodKey)
}

func TestWritesAreGated(t *testing.T) {
	f := newFixture(t)
	ctrl := gomock.NewController(t)
	gate := session.NewMockWriteGate(ctrl)
	gate.EXPECT().CheckWrite(gomock.Any(), "user-1").Return(session.ErrReadOnly).Times(3)
	f.sess.Gate = gate

	_, err := f.agg.CreateBudget(f.ctx, BudgetInput{Name: "Food", TargetAmount: dec("100")})
	assert.ErrorIs(t, err, session.ErrReadOnly)
	_, err = f.agg.ClosePeriod(f.ctx, "b1", 2026, time.October)
	assert.ErrorIs(t, err, session.ErrReadOnly)
	_, err = f.agg.CreateGoal(f.ctx, GoalInput{Name: "Trip", TargetAmount: dec("10")})
	assert.ErrorIs(t, err, session.ErrReadOnly)

	budgets, err := f.agg.ListBudgets(f.ctx, true)
	require.NoError(t, err)
	assert.Empty(t, budgets)
}

func TestUnauthenticated(t *testing.T) {
	f := newFixture(t)
	_, err := f.agg.ListGoals(context.Background())
	assert.True(t, errs.Has(err, errs.Unauthorized))
}
