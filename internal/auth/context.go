// ABOUTME: Request context helpers carrying the verified user ID into handlers
// ABOUTME: Set by HTTPAuthMiddleware; handlers behind it read with MustUserID

package auth

import "context"

type userIDKey struct{}

// WithUserID returns a copy of ctx carrying the authenticated user.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFrom returns the authenticated user, if any.
func UserIDFrom(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userIDKey{}).(int64)
	return userID, ok && userID > 0
}

// MustUserID is UserIDFrom for handlers mounted behind HTTPAuthMiddleware.
// It panics when the middleware did not run.
func MustUserID(ctx context.Context) int64 {
	userID, ok := UserIDFrom(ctx)
	if !ok {
		panic("auth: no user ID in context")
	}
	return userID
}
