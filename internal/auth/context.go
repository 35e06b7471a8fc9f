package auth

import "context"

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// adminContextKey is the context key marking an admin-authenticated request.
const adminContextKey contextKey = "admin"

// ContextWithAdmin marks the context as admin-authenticated, recording the
// key prefix for log correlation.
func ContextWithAdmin(ctx context.Context, keyPrefix string) context.Context {
	return context.WithValue(ctx, adminContextKey, keyPrefix)
}

// AdminFromContext returns the admin key prefix and whether the request was
// admin-authenticated.
func AdminFromContext(ctx context.Context) (string, bool) {
	prefix, ok := ctx.Value(adminContextKey).(string)
	return prefix, ok
}
