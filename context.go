package mxauth

import "context"

type attemptIDContextKey struct{}

// WithAttemptID attaches an attempt identifier to ctx. Restore operations use
// it to locate a persisted registration attempt when the caller does not pass
// the identifier explicitly.
func WithAttemptID(ctx context.Context, attemptID string) context.Context {
	return context.WithValue(ctx, attemptIDContextKey{}, attemptID)
}

func attemptIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	attemptID, _ := ctx.Value(attemptIDContextKey{}).(string)
	return attemptID
}
