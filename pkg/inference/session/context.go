package session

import "context"

type sessionMetaContextKey string

const (
	conversationIDContextKey sessionMetaContextKey = "conversation_id"
	runIDContextKey          sessionMetaContextKey = "run_id"
)

// WithSessionMeta stores conversation and run identifiers in context so
// downstream middleware and capabilities can correlate work for a single run.
func WithSessionMeta(ctx context.Context, conversationID, runID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if conversationID != "" {
		ctx = context.WithValue(ctx, conversationIDContextKey, conversationID)
	}
	if runID != "" {
		ctx = context.WithValue(ctx, runIDContextKey, runID)
	}
	return ctx
}

// ConversationIDFromContext returns the identifier attached with
// WithSessionMeta, or "" when unavailable.
func ConversationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(conversationIDContextKey).(string)
	return id
}

// RunIDFromContext returns the run identifier attached with
// WithSessionMeta, or "" when unavailable.
func RunIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(runIDContextKey).(string)
	return id
}
