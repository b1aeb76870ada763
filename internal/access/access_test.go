package access

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

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
	svc   *Service
	sess  *session.Session
	store *store.MemoryStore
	now   time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{now: testNow}
	clock := func() time.Time { return f.now }
	f.store = store.NewMemoryStore(store.WithClock(clock))
	f.sess = session.New(f.store)
	f.sess.Clock = clock
	f.sess.Notifier = storeNotifier{f.store}
	f.svc = NewService(f.sess, opts...)
	f.sess.Gate = f.svc
	return f
}

// storeNotifier persists notifications so tests can read them back.
type storeNotifier struct{ st store.Store }

func (n storeNotifier) Notify(ctx context.Context, note *model.Notification) error {
	return n.st.CreateNotification(ctx, note)
}

func userCtx(uid string) context.Context {
	return session.WithUser(context.Background(), uid)
}

func (f *fixture) putProfile(t *testing.T, p *model.Profile) {
	t.Helper()
	require.NoError(t, f.store.RunTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.SetProfile(p)
	}))
}

func (f *fixture) putCode(t *testing.T, c *model.InviteCode) {
	t.Helper()
	require.NoError(t, f.store.RunTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.SetInviteCode(c)
	}))
}

func (f *fixture) freshCode(t *testing.T, code string, plan model.Plan) {
	t.Helper()
	f.putCode(t, &model.InviteCode{
		Code:           code,
		Status:         model.InviteUnused,
		Plan:           plan,
		CreatedBy:      "admin",
		ExpiresAt:      f.now.Add(30 * 24 * time.Hour),
		GraceExpiresAt: f.now.Add(GracePeriod),
	})
}

func (f *fixture) profile(t *testing.T, uid string) *model.Profile {
	t.Helper()
	p, err := f.store.GetProfile(context.Background(), uid)
	require.NoError(t, err)
	return p
}

func ptrTime(t time.Time) *time.Time { return &t }
func ptrBool(b bool) *bool           { return &b }

func TestCanWrite(t *testing.T) {
	tests := []struct {
		name string
		p    *model.Profile
		want bool
	}{
		{"no profile", nil, false},
		{"no plan fields", &model.Profile{}, true},
		{"inactive", &model.Profile{IsActive: ptrBool(false), PlanExpiresAt: ptrTime(testNow.Add(time.Hour))}, false},
		{"explicitly active", &model.Profile{IsActive: ptrBool(true)}, true},
		{"plan running", &model.Profile{PlanExpiresAt: ptrTime(testNow.Add(time.Second))}, true},
		{"plan expires now", &model.Profile{PlanExpiresAt: ptrTime(testNow)}, false},
		{"plan expired", &model.Profile{PlanExpiresAt: ptrTime(testNow.Add(-time.Hour))}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanWrite(tt.p, testNow))
		})
	}
}

func TestCheckWrite_NotifiesOncePerDay(t *testing.T) {
	f := newFixture(t)
	f.putProfile(t, &model.Profile{ID: "u1", PlanExpiresAt: ptrTime(testNow.Add(-time.Hour))})

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, f.svc.CheckWrite(userCtx("u1"), "u1"), session.ErrReadOnly)
	}
	list, _, err := f.store.ListNotifications(context.Background(), "u1", false, 10, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.NotifyReadOnly, list[0].Kind)

	f.now = f.now.Add(25 * time.Hour)
	assert.ErrorIs(t, f.svc.CheckWrite(userCtx("u1"), "u1"), session.ErrReadOnly)
	list, _, err = f.store.ListNotifications(context.Background(), "u1", false, 10, "")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestRedeem_ExtendsFromLaterOfNowAndExpiry(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	claims := NewMockClaimsSetter(ctrl)
	f := newFixture(t, WithClaims(claims))

	// Still has until Jan 31; a monthly code lands on Feb 28.
	f.putProfile(t, &model.Profile{ID: "u1", CodeRedeemAttempts: 3, PlanExpiresAt: ptrTime(time.Date(2027, 1, 31, 0, 0, 0, 0, time.UTC))})
	f.freshCode(t, "ABCD2345", model.PlanMonthly)

	want := time.Date(2027, 2, 28, 0, 0, 0, 0, time.UTC)
	claims.EXPECT().SetPlanClaims(gomock.Any(), "u1", model.PlanMonthly, want).Return(nil)

	res, err := f.svc.Redeem(userCtx("u1"), " abcd2345 ")
	require.NoError(t, err)
	assert.Equal(t, want, res.PlanExpiresAt)

	p := f.profile(t, "u1")
	assert.Equal(t, model.PlanMonthly, p.Plan)
	assert.Zero(t, p.CodeRedeemAttempts)
	require.NotNil(t, p.PlanExpiresAt)
	assert.True(t, want.Equal(*p.PlanExpiresAt))

	c, err := f.store.GetInviteCode(context.Background(), "ABCD2345")
	require.NoError(t, err)
	assert.Equal(t, model.InviteUsed, c.Status)
	assert.Equal(t, "u1", c.UsedBy)
}

func TestRedeem_ExpiredPlanAnchorsOnNow(t *testing.T) {
	f := newFixture(t)
	f.putProfile(t, &model.Profile{ID: "u1", PlanExpiresAt: ptrTime(testNow.AddDate(-1, 0, 0))})
	f.freshCode(t, "ANNUAL22", model.PlanAnnual)

	res, err := f.svc.Redeem(userCtx("u1"), "ANNUAL22")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2027, 10, 17, 12, 0, 0, 0, time.UTC), res.PlanExpiresAt)
	assert.NoError(t, f.svc.CheckWrite(userCtx("u1"), "u1"))
}

func TestRedeem_Rejections(t *testing.T) {
	f := newFixture(t)
	f.putCode(t, &model.InviteCode{Code: "USEDCODE", Status: model.InviteUsed, Plan: model.PlanMonthly,
		ExpiresAt: testNow.Add(time.Hour), GraceExpiresAt: testNow.Add(time.Hour)})
	f.putCode(t, &model.InviteCode{Code: "GRACEOUT", Status: model.InviteUnused, Plan: model.PlanAnnual,
		ExpiresAt: testNow.Add(300 * 24 * time.Hour), GraceExpiresAt: testNow})
	f.putCode(t, &model.InviteCode{Code: "REVOKED2", Status: model.InviteExpired, Plan: model.PlanMonthly,
		ExpiresAt: testNow.Add(time.Hour), GraceExpiresAt: testNow.Add(time.Hour)})

	tests := []struct {
		code string
		want Reason
		left int
	}{
		{"NOPE2345", ReasonNotFound, 4},
		{"USEDCODE", ReasonUsed, 3},
		{"GRACEOUT", ReasonExpired, 2},
		{"REVOKED2", ReasonExpired, 1},
	}
	for _, tt := range tests {
		_, err := f.svc.Redeem(userCtx("u1"), tt.code)
		re, ok := IsRedeemError(err)
		require.True(t, ok, "%s: %v", tt.code, err)
		assert.Equal(t, tt.want, re.Reason, tt.code)
		assert.Equal(t, tt.left, re.AttemptsLeft, tt.code)
	}
	assert.Equal(t, 4, f.profile(t, "u1").CodeRedeemAttempts)
}

func TestRedeem_LockoutAfterFiveFailures(t *testing.T) {
	f := newFixture(t)
	f.freshCode(t, "GOODCODE", model.PlanMonthly)
	ctx := userCtx("u1")

	var last *RedeemError
	for i := 0; i < MaxRedeemAttempts; i++ {
		_, err := f.svc.Redeem(ctx, "WRONG222")
		re, ok := IsRedeemError(err)
		require.True(t, ok)
		last = re
	}
	require.NotNil(t, last.BlockedUntil)
	assert.Equal(t, testNow.Add(LockoutDuration), *last.BlockedUntil)
	assert.Zero(t, last.AttemptsLeft)

	p := f.profile(t, "u1")
	assert.Zero(t, p.CodeRedeemAttempts, "counter resets on lockout")

	// A valid code is refused while locked and the attempt is not counted.
	_, err := f.svc.Redeem(ctx, "GOODCODE")
	re, ok := IsRedeemError(err)
	require.True(t, ok)
	assert.Equal(t, ReasonBlocked, re.Reason)
	assert.Zero(t, f.profile(t, "u1").CodeRedeemAttempts)

	sum, err := f.svc.Access(ctx)
	require.NoError(t, err)
	assert.NotNil(t, sum.BlockedUntil)
	assert.Zero(t, sum.AttemptsLeft)

	f.now = f.now.Add(LockoutDuration)
	f.freshCode(t, "GOODCOD2", model.PlanMonthly)
	_, err = f.svc.Redeem(ctx, "GOODCOD2")
	require.NoError(t, err)
	p = f.profile(t, "u1")
	assert.Nil(t, p.CodeRedeemBlockedUntil)
}

func TestValidate_SharesRedeemLockout(t *testing.T) {
	f := newFixture(t)
	f.freshCode(t, "GOODCODE", model.PlanAnnual)
	ctx := userCtx("u1")

	got, err := f.svc.Validate(ctx, "GOODCODE")
	require.NoError(t, err)
	assert.Equal(t, &CodeCheck{Plan: model.PlanAnnual, Valid: true}, got)
	assert.Zero(t, f.profile(t, "u1").CodeRedeemAttempts, "a usable code costs nothing")

	for i := 1; i < MaxRedeemAttempts; i++ {
		_, err := f.svc.Validate(ctx, "GUESS222")
		re, ok := IsRedeemError(err)
		require.True(t, ok)
		assert.Equal(t, ReasonNotFound, re.Reason)
		assert.Equal(t, MaxRedeemAttempts-i, re.AttemptsLeft)
	}
	// Validate and Redeem draw on the same counter.
	_, err = f.svc.Redeem(ctx, "GUESS333")
	re, ok := IsRedeemError(err)
	require.True(t, ok)
	require.NotNil(t, re.BlockedUntil)

	_, err = f.svc.Validate(ctx, "GOODCODE")
	re, ok = IsRedeemError(err)
	require.True(t, ok)
	assert.Equal(t, ReasonBlocked, re.Reason)

	f.now = f.now.Add(LockoutDuration)
	got, err = f.svc.Validate(ctx, "GOODCODE")
	require.NoError(t, err)
	assert.True(t, got.Valid)
}

func TestRedeem_RaceHasOneWinner(t *testing.T) {
	f := newFixture(t)
	f.freshCode(t, "RACE2345", model.PlanSemiannual)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, uid := range []string{"u1", "u2"} {
		wg.Add(1)
		go func(i int, uid string) {
			defer wg.Done()
			_, results[i] = f.svc.Redeem(userCtx(uid), "RACE2345")
		}(i, uid)
	}
	wg.Wait()

	wins, used := 0, 0
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		re, ok := IsRedeemError(err)
		require.True(t, ok, "unexpected error: %v", err)
		if re.Reason == ReasonUsed {
			used++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, used)
}

func TestAdminOperations(t *testing.T) {
	// Feed a fixed byte stream: the first code collides with an existing one.
	entropy := bytes.Repeat([]byte{0}, CodeLength)
	entropy = append(entropy, []byte{1, 2, 3, 4, 5, 6, 7, 8}...)
	f := newFixture(t, WithRandom(bytes.NewReader(entropy)))
	f.putProfile(t, &model.Profile{ID: "boss", Role: model.RoleAdmin})
	f.freshCode(t, "AAAAAAAA", model.PlanMonthly)
	admin := userCtx("boss")

	_, err := f.svc.CreateCode(userCtx("u1"), model.PlanMonthly)
	assert.True(t, errs.Has(err, errs.Forbidden))
	_, err = f.svc.CreateCode(admin, "weekly")
	assert.True(t, errs.Has(err, errs.InvalidArgument))

	c, err := f.svc.CreateCode(admin, model.PlanAnnual)
	require.NoError(t, err)
	assert.Equal(t, "BCDEFGHJ", c.Code)
	assert.Equal(t, model.InviteUnused, c.Status)
	assert.Equal(t, "boss", c.CreatedBy)
	assert.Equal(t, testNow.Add(GracePeriod), c.GraceExpiresAt)
	assert.Equal(t, testNow.Add(365*24*time.Hour), c.ExpiresAt)

	got, err := f.svc.Validate(userCtx("u1"), "bcdefghj")
	require.NoError(t, err)
	assert.True(t, got.Valid)
	assert.Equal(t, model.PlanAnnual, got.Plan)

	_, err = f.svc.InvalidateCode(admin, "BCDEFGHJ")
	require.NoError(t, err)
	_, err = f.svc.Validate(userCtx("u1"), "BCDEFGHJ")
	re, ok := IsRedeemError(err)
	require.True(t, ok)
	assert.Equal(t, ReasonExpired, re.Reason)

	_, err = f.svc.InvalidateCode(admin, "MISSING2")
	assert.True(t, errs.Has(err, errs.NotFound))

	codes, err := f.svc.ListCodes(admin, store.InviteCodeFilter{Status: model.InviteExpired})
	require.NoError(t, err)
	require.Len(t, codes, 1)
	assert.Equal(t, "BCDEFGHJ", codes[0].Code)

	require.NoError(t, f.svc.SetUserActive(admin, "u9", false))
	sum, err := f.svc.UserAccess(admin, "u9")
	require.NoError(t, err)
	assert.False(t, sum.Active)
	assert.False(t, sum.CanWrite)
}

func TestGenerateCode(t *testing.T) {
	code, err := generateCode(bytes.NewReader([]byte{0, 31, 32, 63, 255, 8, 9, 10}))
	require.NoError(t, err)
	assert.Equal(t, "A9A99JKL", code)

	_, err = generateCode(bytes.NewReader([]byte{1, 2}))
	assert.Error(t, err)
}
