package controllers

import (
	"net/http"

	"github.com/driftflow/driftflow/pkg/driftflow/core"
)

// Supported headers: X-Actor-Id: <id>, X-Actor-Team: <team>
const (
	HeaderActorID   = "X-Actor-Id"
	HeaderActorTeam = "X-Actor-Team"
)

// ActorController resolves the already-authenticated identity a request acts
// as. Authentication itself happens upstream (gateway, reverse proxy); the
// engine only needs to know who is calling so runs, definitions and approval
// decisions carry an actor.
type ActorController struct{}

func (ac *ActorController) RequireActor(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID := r.Header.Get(HeaderActorID)
		if actorID == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := core.WithActor(r.Context(), core.Actor{
			ID:   actorID,
			Team: r.Header.Get(HeaderActorTeam),
		})
		next(w, r.WithContext(ctx))
	}
}
