package auth

import (
	"context"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CristhianDaza/finControl/internal/session"
)

func TestExtractTokenFromHeader(t *testing.T) {
	for header, want := range map[string]string{
		"Bearer abc":        "abc",
		"bearer abc":        "abc",
		"BEARER abc":        "abc",
		"Bearer with space": "with space",
	} {
		got, err := ExtractTokenFromHeader(header)
		require.NoError(t, err, header)
		assert.Equal(t, want, got, header)
	}

	for _, header := range []string{"", "abc", "Basic abc", "Bearer"} {
		got, err := ExtractTokenFromHeader(header)
		assert.Error(t, err, header)
		assert.Empty(t, got)
	}
}

// seenUser runs interceptor over an empty request and reports the session
// user the next handler saw.
func seenUser(t *testing.T, interceptor connect.UnaryInterceptorFunc, impersonateAs string) (string, bool) {
	t.Helper()
	var uid string
	var ok bool
	next := func(ctx context.Context, _ connect.AnyRequest) (connect.AnyResponse, error) {
		uid, ok = session.UserFromContext(ctx)
		return nil, nil
	}
	req := connect.NewRequest(&struct{}{})
	if impersonateAs != "" {
		req.Header().Set("X-Debug-Impersonate-User", impersonateAs)
	}
	_, err := interceptor(next)(context.Background(), req)
	require.NoError(t, err)
	return uid, ok
}

func TestLocalDevInterceptor(t *testing.T) {
	uid, ok := seenUser(t, LocalDevInterceptor(), "")
	require.True(t, ok)
	assert.Equal(t, LocalDevUserID, uid)

	uid, _ = seenUser(t, LocalDevInterceptor(), "alice")
	assert.Equal(t, "alice", uid)
}

func TestDebugAuthInterceptor(t *testing.T) {
	_, ok := seenUser(t, DebugAuthInterceptor(false), "alice")
	assert.False(t, ok, "impersonation must be ignored unless auth is skipped")

	uid, ok := seenUser(t, DebugAuthInterceptor(true), "alice")
	require.True(t, ok)
	assert.Equal(t, "alice", uid)

	_, ok = seenUser(t, DebugAuthInterceptor(true), "")
	assert.False(t, ok)
}

func TestUserClaimsContext(t *testing.T) {
	_, ok := GetUserClaims(context.Background())
	assert.False(t, ok)
	_, ok = GetUserID(context.Background())
	assert.False(t, ok)

	ctx := WithUserClaims(context.Background(), &UserClaims{
		UID:  "user-1",
		Plan: PlanClaims{Plan: "annual"},
	})
	claims, ok := GetUserClaims(ctx)
	require.True(t, ok)
	assert.Equal(t, "annual", string(claims.Plan.Plan))

	uid, _ := GetUserID(ctx)
	assert.Equal(t, "user-1", uid)
	sessUID, _ := session.UserFromContext(ctx)
	assert.Equal(t, "user-1", sessUID)
}

func TestRequireClaims(t *testing.T) {
	_, err := RequireClaims(session.WithUser(context.Background(), "user-1"))
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err), "a bare session user carries no claims")

	claims, err := RequireClaims(WithUserClaims(context.Background(), &UserClaims{UID: "user-1"}))
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UID)
}

func TestIsPublicEndpoint(t *testing.T) {
	assert.True(t, isPublicEndpoint("/health"))
	assert.True(t, isPublicEndpoint(ProcessAllRecurringProcedure))
	assert.False(t, isPublicEndpoint("/fincontrol.v1.FinanceService/ProcessDueRecurring"))
	assert.False(t, isPublicEndpoint(""))
}
