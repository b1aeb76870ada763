package store

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CristhianDaza/finControl/internal/model"
)

var fixedNow = time.Date(2026, time.October, 17, 9, 0, 0, 0, time.UTC)

func newTestStore(opts ...MemoryOption) *MemoryStore {
	return NewMemoryStore(append([]MemoryOption{WithClock(func() time.Time { return fixedNow })}, opts...)...)
}

func seedAccount(t *testing.T, s *MemoryStore, a *model.Account) {
	t.Helper()
	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.SetAccount(a)
	})
	require.NoError(t, err)
}

func TestMemoryStore_ServerTimestamp(t *testing.T) {
	s := newTestStore()
	seedAccount(t, s, &model.Account{ID: "a1", OwnerID: "u1", Name: "Cash"})

	got, err := s.GetAccount(context.Background(), "u1", "a1")
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(fixedNow))
	assert.Equal(t, "a1", got.ID)
}

func TestMemoryStore_NotFound(t *testing.T) {
	s := newTestStore()
	_, err := s.GetAccount(context.Background(), "u1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.RunTransaction(context.Background(), func(ctx context.Context, tx Tx) error {
		_, err := tx.GetDebt("u1", "missing")
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ReadAfterWrite(t *testing.T) {
	s := newTestStore()
	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx Tx) error {
		if err := tx.SetAccount(&model.Account{ID: "a1", OwnerID: "u1"}); err != nil {
			return err
		}
		_, err := tx.GetAccount("u1", "a1")
		return err
	})
	assert.ErrorIs(t, err, ErrReadAfterWrite)

	_, err = s.GetAccount(context.Background(), "u1", "a1")
	assert.ErrorIs(t, err, ErrNotFound, "failed body must not commit")
}

func TestMemoryStore_ConflictRetriesBody(t *testing.T) {
	var interfered atomic.Bool
	var s *MemoryStore
	s = newTestStore(WithBeforeCommit(func() {
		if interfered.CompareAndSwap(false, true) {
			require.NoError(t, s.put(userDoc("u1", colAccounts, "a1"), &model.Account{ID: "a1", OwnerID: "u1", BalanceCents: 500}))
		}
	}))
	require.NoError(t, s.put(userDoc("u1", colAccounts, "a1"), &model.Account{ID: "a1", OwnerID: "u1", BalanceCents: 100}))

	attempts := 0
	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx Tx) error {
		attempts++
		a, err := tx.GetAccount("u1", "a1")
		if err != nil {
			return err
		}
		a.BalanceCents += 10
		return tx.SetAccount(a)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	got, err := s.GetAccount(context.Background(), "u1", "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(510), got.BalanceCents, "second attempt must see the competing write")
}

func TestMemoryStore_ConflictOnMissingDocCreate(t *testing.T) {
	var interfered atomic.Bool
	var s *MemoryStore
	s = newTestStore(WithBeforeCommit(func() {
		if interfered.CompareAndSwap(false, true) {
			require.NoError(t, s.put(userDoc("u1", colRuns, "t1__2026-10-01"), &model.RecurringRun{ID: "t1__2026-10-01", OwnerID: "u1"}))
		}
	}))

	created := false
	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx Tx) error {
		created = false
		_, err := tx.GetRun("u1", "t1__2026-10-01")
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		created = true
		return tx.SetRun(&model.RecurringRun{ID: "t1__2026-10-01", OwnerID: "u1", Status: model.RunPending})
	})
	require.NoError(t, err)
	assert.False(t, created, "retry must observe the lock created concurrently")
}

func TestMemoryStore_QueryConflict(t *testing.T) {
	var interfered atomic.Bool
	var s *MemoryStore
	s = newTestStore(WithBeforeCommit(func() {
		if interfered.CompareAndSwap(false, true) {
			require.NoError(t, s.put(userDoc("u1", colTransactions, "tx1"), &model.Transaction{ID: "tx1", OwnerID: "u1", AccountID: "a1"}))
		}
	}))

	var seen int
	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx Tx) error {
		txs, err := tx.ListTransactions("u1", TransactionFilter{AccountID: "a1", Limit: 1})
		if err != nil {
			return err
		}
		seen = len(txs)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, seen)
}

func TestMemoryStore_ExhaustsRetries(t *testing.T) {
	var s *MemoryStore
	var n int64
	s = newTestStore(WithMaxAttempts(2), WithBeforeCommit(func() {
		n++
		require.NoError(t, s.put(userDoc("u1", colAccounts, "a1"), &model.Account{ID: "a1", OwnerID: "u1", BalanceCents: n}))
	}))

	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx Tx) error {
		a, err := tx.GetAccount("u1", "a1")
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if a == nil {
			a = &model.Account{ID: "a1", OwnerID: "u1"}
		}
		return tx.SetAccount(a)
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestMemoryStore_ListTransactions(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	docs := []*model.Transaction{
		{ID: "t1", OwnerID: "u1", AccountID: "a1", Type: model.TypeExpense, Date: "2026-10-01"},
		{ID: "t2", OwnerID: "u1", AccountID: "a1", Type: model.TypeIncome, Date: "2026-10-05"},
		{ID: "t3", OwnerID: "u1", AccountID: "a2", Type: model.TypeExpense, Date: "2026-10-03"},
		{ID: "t4", OwnerID: "u1", AccountID: "a1", Type: model.TypeExpense, Date: "2026-09-30"},
		{ID: "t5", OwnerID: "u2", AccountID: "a1", Type: model.TypeExpense, Date: "2026-10-02"},
	}
	require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		for _, d := range docs {
			if err := tx.SetTransaction(d); err != nil {
				return err
			}
		}
		return nil
	}))

	got, next, err := s.ListTransactions(ctx, "u1", TransactionFilter{AccountID: "a1", DateFrom: "2026-10-01"})
	require.NoError(t, err)
	assert.Empty(t, next)
	require.Len(t, got, 2)
	assert.Equal(t, "t2", got[0].ID)
	assert.Equal(t, "t1", got[1].ID)

	page1, next, err := s.ListTransactions(ctx, "u1", TransactionFilter{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.NotEmpty(t, next)
	assert.Equal(t, []string{"t2", "t3"}, []string{page1[0].ID, page1[1].ID})

	page2, next, err := s.ListTransactions(ctx, "u1", TransactionFilter{PageSize: 2, PageToken: next})
	require.NoError(t, err)
	assert.Empty(t, next)
	assert.Equal(t, []string{"t1", "t4"}, []string{page2[0].ID, page2[1].ID})
}

func TestMemoryStore_DueTemplates(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		for _, tpl := range []*model.RecurringTemplate{
			{ID: "late", OwnerID: "u1", NextRunAt: "2026-10-17"},
			{ID: "early", OwnerID: "u1", NextRunAt: "2026-09-01"},
			{ID: "paused", OwnerID: "u1", NextRunAt: "2026-01-01", Paused: true},
			{ID: "future", OwnerID: "u1", NextRunAt: "2026-10-18"},
			{ID: "other", OwnerID: "u2", NextRunAt: "2026-08-01"},
		} {
			if err := tx.SetTemplate(tpl); err != nil {
				return err
			}
		}
		return nil
	}))

	due, err := s.ListDueTemplates(ctx, "u1", "2026-10-17")
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "early", due[0].ID)
	assert.Equal(t, "late", due[1].ID)

	all, err := s.ListDueTemplatesAllUsers(ctx, "2026-10-17")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "other", all[0].ID)
}

func TestMemoryStore_Notifications(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	n := &model.Notification{
		OwnerID:     "u1",
		Kind:        model.NotifyBudgetThreshold,
		ReferenceID: "b1",
		Metadata:    map[string]string{"period": "2026-10"},
	}
	require.NoError(t, s.CreateNotification(ctx, n))
	require.NotEmpty(t, n.ID)

	has, err := s.HasNotification(ctx, "u1", model.NotifyBudgetThreshold, "b1", "period", "2026-10", 24)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = s.HasNotification(ctx, "u1", model.NotifyBudgetThreshold, "b1", "period", "2026-11", 24)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, s.MarkNotificationRead(ctx, "u1", n.ID))
	unread, _, err := s.ListNotifications(ctx, "u1", true, 10, "")
	require.NoError(t, err)
	assert.Empty(t, unread)

	assert.ErrorIs(t, s.MarkNotificationRead(ctx, "u1", "nope"), ErrNotFound)
}

func TestNormalizePageSize(t *testing.T) {
	for in, want := range map[int32]int32{
		-1:   100,
		0:    100,
		50:   50,
		1000: 1000,
		2000: 1000,
	} {
		assert.Equal(t, want, NormalizePageSize(in), "page size %d", in)
	}
}

func TestPageToken(t *testing.T) {
	tok := EncodePageToken("doc-1")
	id, err := DecodePageToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", id)

	_, err = DecodePageToken("%%%")
	assert.Error(t, err)
}
