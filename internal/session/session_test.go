package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/CristhianDaza/finControl/internal/errs"
	"github.com/CristhianDaza/finControl/internal/model"
	"github.com/CristhianDaza/finControl/internal/store"
)

func TestSession_UserID(t *testing.T) {
	s := New(store.NewMemoryStore())

	_, err := s.UserID(context.Background())
	assert.True(t, errs.Has(err, errs.Unauthorized))

	uid, err := s.UserID(WithUser(context.Background(), "u1"))
	require.NoError(t, err)
	assert.Equal(t, "u1", uid)
}

func TestSession_WriterChecksGate(t *testing.T) {
	ctrl := gomock.NewController(t)
	gate := NewMockWriteGate(ctrl)

	s := New(store.NewMemoryStore())
	s.Gate = gate

	ctx := WithUser(context.Background(), "u1")
	gate.EXPECT().CheckWrite(gomock.Any(), "u1").Return(ErrReadOnly)

	_, err := s.Writer(ctx)
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestSession_NotifyStampsTime(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := NewMockNotifier(ctrl)
	now := time.Date(2026, time.October, 17, 0, 0, 0, 0, time.UTC)

	s := New(store.NewMemoryStore())
	s.Notifier = notifier
	s.Clock = func() time.Time { return now }

	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, n *model.Notification) error {
		assert.True(t, n.CreatedAt.Equal(now))
		return nil
	})

	require.NoError(t, s.Notify(context.Background(), &model.Notification{OwnerID: "u1"}))
	assert.Equal(t, "2026-10-17", s.Today())
}
