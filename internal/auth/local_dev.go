package auth

import (
	"context"

	"connectrpc.com/connect"
)

// LocalDevUserID is the user every request acts as under LocalDevInterceptor.
const LocalDevUserID = "local-dev-user"

// LocalDevInterceptor provides a mock user context for local development.
// An X-Debug-Impersonate-User header still wins.
func LocalDevInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if isPublicEndpoint(req.Spec().Procedure) {
				return next(ctx, req)
			}
			ctx = localDevUser(ctx)
			return next(impersonate(ctx, req.Header()), req)
		}
	}
}

func localDevUser(ctx context.Context) context.Context {
	return withUserClaims(ctx, &UserClaims{
		UID:         LocalDevUserID,
		Email:       "dev@localhost",
		DisplayName: "Local Dev User",
		Verified:    true,
	})
}
