// Package ctxutil carries request-scoped values through context.Context.
// It has no internal dependencies so that adapters and services can share it.
package ctxutil

import "context"

type actorKey struct{}

// WithActorID returns a copy of ctx recording actorID as the author of the
// writes made with it. An empty actorID leaves ctx unchanged.
func WithActorID(ctx context.Context, actorID string) context.Context {
	if actorID == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ActorFromContext returns the actor recorded in ctx, or "".
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}

// ActorOr returns the actor recorded in ctx, or fallback when there is none.
func ActorOr(ctx context.Context, fallback string) string {
	if actor := ActorFromContext(ctx); actor != "" {
		return actor
	}
	return fallback
}
