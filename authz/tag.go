package authz

import "context"

type contextKey int

const skipGlobalAuthKey contextKey = iota

// SkipGlobalAuthHandling tags a request context so that a 401 response to it
// is returned to the caller without clearing credentials or firing
// invalidation hooks. The login call uses it: a 401 there means bad
// credentials, not an expired session.
func SkipGlobalAuthHandling(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipGlobalAuthKey, true)
}

// SkipsGlobalAuthHandling reports whether ctx carries the SkipGlobalAuthHandling tag.
func SkipsGlobalAuthHandling(ctx context.Context) bool {
	skip, _ := ctx.Value(skipGlobalAuthKey).(bool)
	return skip
}
