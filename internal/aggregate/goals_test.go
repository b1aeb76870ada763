package aggregate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CristhianDaza/finControl/internal/errs"
	"github.com/CristhianDaza/finControl/internal/model"
	"github.com/CristhianDaza/finControl/internal/store"
)

func TestGoalStatusOf(t *testing.T) {
	g := &model.Goal{ID: "g1", TargetAmountCents: 10000}
	txs := []*model.Transaction{
		{GoalID: "g1", AmountCents: 2500},
		{GoalID: "g2", AmountCents: 9999},
	}
	st := GoalStatusOf(g, txs)
	assert.Equal(t, int64(2500), st.CurrentCents)
	assert.InDelta(t, 25.0, st.Pct, 1e-9)
	assert.False(t, st.Completed)

	st = GoalStatusOf(g, append(txs, &model.Transaction{GoalID: "g1", AmountCents: 9000}))
	assert.Equal(t, 100.0, st.Pct)
	assert.True(t, st.Completed)

	zero := GoalStatusOf(&model.Goal{ID: "g1"}, txs)
	assert.Zero(t, zero.Pct)
	assert.False(t, zero.Completed)
}

func TestCreateGoal(t *testing.T) {
	f := newFixture(t)
	g, err := f.agg.CreateGoal(f.ctx, GoalInput{Name: "Trip", TargetAmount: dec("100"), DueDate: "2027-01-01"})
	require.NoError(t, err)
	assert.Equal(t, "COP", g.Currency)
	assert.Equal(t, int64(10000), g.TargetAmountCents)

	_, err = f.agg.CreateGoal(f.ctx, GoalInput{Name: "Trip", TargetAmount: dec("1"), AccountID: "missing"})
	assert.True(t, errs.Has(err, errs.AccountNotFound))
	_, err = f.agg.CreateGoal(f.ctx, GoalInput{TargetAmount: dec("1")})
	assert.True(t, errs.Has(err, errs.NameRequired))
	_, err = f.agg.CreateGoal(f.ctx, GoalInput{Name: "Trip", TargetAmount: dec("-1")})
	assert.True(t, errs.Has(err, errs.InvalidAmount))
	_, err = f.agg.CreateGoal(f.ctx, GoalInput{Name: "Trip", DueDate: "next year"})
	assert.True(t, errs.Has(err, errs.InvalidDate))

	require.NoError(t, f.store.RunTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.SetAccount(&model.Account{ID: "acc-1", OwnerID: "user-1", Name: "Savings", Currency: "COP"})
	}))
	g, err = f.agg.CreateGoal(f.ctx, GoalInput{Name: "House", TargetAmount: dec("1"), AccountID: "acc-1"})
	require.NoError(t, err)
	assert.Equal(t, "acc-1", g.AccountID)
}

func TestGoalLifecycle(t *testing.T) {
	f := newFixture(t)
	g, err := f.agg.CreateGoal(f.ctx, GoalInput{Name: "Trip", TargetAmount: dec("100")})
	require.NoError(t, err)

	g, err = f.agg.PauseGoal(f.ctx, g.ID)
	require.NoError(t, err)
	assert.True(t, g.Paused)
	g, err = f.agg.ResumeGoal(f.ctx, g.ID)
	require.NoError(t, err)
	assert.False(t, g.Paused)

	note := "Japan"
	g, err = f.agg.UpdateGoal(f.ctx, g.ID, GoalPatch{Note: &note})
	require.NoError(t, err)
	assert.Equal(t, "Japan", g.Note)

	list, err := f.agg.ListGoals(f.ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, f.agg.DeleteGoal(f.ctx, g.ID))
	_, err = f.agg.GetGoal(f.ctx, g.ID)
	assert.True(t, errs.Has(err, errs.GoalNotFound))
	_, err = f.agg.PauseGoal(f.ctx, g.ID)
	assert.True(t, errs.Has(err, errs.GoalNotFound))
}

func TestGoalProgress_NotifiesOnceWhenCompleted(t *testing.T) {
	f := newFixture(t)
	g, err := f.agg.CreateGoal(f.ctx, GoalInput{Name: "Trip", TargetAmount: dec("100")})
	require.NoError(t, err)

	f.seed(t, &model.Transaction{Type: model.TypeExpense, AmountCents: 6000, AccountID: "acc-1", GoalID: g.ID, Date: "2026-10-01"})
	st, err := f.agg.GoalProgress(f.ctx, g.ID)
	require.NoError(t, err)
	assert.InDelta(t, 60.0, st.Pct, 1e-9)
	assert.False(t, st.Completed)
	assert.Empty(t, f.notifications(t, model.NotifyGoalCompleted))

	f.seed(t, &model.Transaction{Type: model.TypeExpense, AmountCents: 5000, AccountID: "acc-1", GoalID: g.ID, Date: "2026-10-02"})
	st, err = f.agg.GoalProgress(f.ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(11000), st.CurrentCents)
	assert.Equal(t, 100.0, st.Pct)
	assert.True(t, st.Completed)

	_, err = f.agg.GoalProgress(f.ctx, g.ID)
	require.NoError(t, err)
	notes := f.notifications(t, model.NotifyGoalCompleted)
	require.Len(t, notes, 1)
	assert.Equal(t, g.ID, notes[0].ReferenceID)
}
