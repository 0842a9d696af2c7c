package reqctx

import "context"

type ctxKey string

const (
	keyRID       ctxKey = "rid"
	keySessionID ctxKey = "session_id"
)

// WithRID stores the request correlation id used in logs.
func WithRID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, keyRID, rid)
}

// RID returns correlation id if present.
func RID(ctx context.Context) string {
	v, _ := ctx.Value(keyRID).(string)
	return v
}

// WithSessionID stores the enhancement session id for logs.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keySessionID, id)
}

// SessionID returns session id if present.
func SessionID(ctx context.Context) string {
	v, _ := ctx.Value(keySessionID).(string)
	return v
}
