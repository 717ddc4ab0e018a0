package core

import "context"

type ctxKey string

const (
	CtxKeyActorID   ctxKey = ctxKey("actorId")
	CtxKeyActorTeam ctxKey = ctxKey("actorTeam")
)

// Actor is the already-authenticated identity a request acts as.
// It is established upstream; the engine never authenticates anyone itself.
type Actor struct {
	ID   string
	Team string
}

func WithActor(ctx context.Context, a Actor) context.Context {
	ctx = context.WithValue(ctx, CtxKeyActorID, a.ID)
	return context.WithValue(ctx, CtxKeyActorTeam, a.Team)
}

func ActorFromContext(ctx context.Context) Actor {
	a := Actor{}
	if v, ok := ctx.Value(CtxKeyActorID).(string); ok {
		a.ID = v
	}
	if v, ok := ctx.Value(CtxKeyActorTeam).(string); ok {
		a.Team = v
	}
	return a
}
