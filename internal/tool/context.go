package tool

import "context"

type forcedKey struct{}

// WithForced marks ctx as carrying an invocation the agent policy issued on
// the model's behalf.
func WithForced(ctx context.Context) context.Context {
	return context.WithValue(ctx, forcedKey{}, true)
}

// IsForced reports whether ctx was marked by WithForced.
func IsForced(ctx context.Context) bool {
	v, _ := ctx.Value(forcedKey{}).(bool)
	return v
}
