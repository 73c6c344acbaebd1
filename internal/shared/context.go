package shared

import "context"

type actorContextKey struct{}

// ContextWithActor stores the authenticated staff id in context.
func ContextWithActor(ctx context.Context, staffID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, staffID)
}

// ActorFromContext extracts the authenticated staff id from context.
func ActorFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(actorContextKey{}).(int64)
	return id, ok
}
