package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/require"

	"github.com/CristhianDaza/finControl/internal/auth"
	"github.com/CristhianDaza/finControl/internal/model"
	"github.com/CristhianDaza/finControl/internal/search"
	"github.com/CristhianDaza/finControl/internal/session"
	"github.com/CristhianDaza/finControl/internal/store"
)

var testNow = time.Date(2026, time.October, 17, 12, 0, 0, 0, time.UTC)

const testSchedulerToken = "scheduler-secret"

type testServer struct {
	url   string
	store *store.MemoryStore
	deps  Deps
}

// newTestServer serves a FinanceService over HTTP. Requests act as the
// user named in X-Debug-Impersonate-User.
func newTestServer(t *testing.T, indexer search.Indexer) *testServer {
	t.Helper()
	clock := func() time.Time { return testNow }
	st := store.NewMemoryStore(store.WithClock(clock))
	sess := session.New(st)
	sess.Clock = clock

	deps := Wire(sess, WireOptions{})
	deps.Search = search.NewService(sess, search.NewStoreSearcher(st), indexer)
	deps.SchedulerToken = testSchedulerToken

	path, handler := NewFinanceService(deps).Handler(
		connect.WithInterceptors(auth.DebugAuthInterceptor(true)),
	)
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testServer{url: srv.URL, store: st, deps: deps}
}

// grantPlan gives uid an unexpired plan so its writes pass the gate.
func (ts *testServer) grantPlan(t *testing.T, uid string) {
	t.Helper()
	expires := testNow.AddDate(0, 1, 0)
	require.NoError(t, ts.store.RunTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.SetProfile(&model.Profile{ID: uid, Plan: model.PlanMonthly, PlanExpiresAt: &expires})
	}))
}

// call invokes method as uid. An empty uid sends no identity.
func call[Req, Res any](t *testing.T, ts *testServer, method, uid string, msg *Req) (*connect.Response[Res], error) {
	t.Helper()
	client := connect.NewClient[Req, Res](http.DefaultClient, ts.url+"/"+ServiceName+"/"+method, connect.WithCodec(Codec()))
	req := connect.NewRequest(msg)
	if uid != "" {
		req.Header().Set("X-Debug-Impersonate-User", uid)
	}
	return client.CallUnary(context.Background(), req)
}

// testContextWithUser creates a context with authenticated user claims for testing
func testContextWithUser(userID string) context.Context {
	return auth.WithUserClaims(context.Background(), &auth.UserClaims{
		UID:   userID,
		Email: userID + "@test.local",
	})
}
