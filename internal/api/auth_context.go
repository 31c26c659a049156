package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/townsquareapp/townsquare-server/internal/domain"
)

// ctxKey is the type for context keys to avoid collisions.
type ctxKey string

const (
	actorKey     ctxKey = "actor"
	clientIPKey  ctxKey = "clientIP"
	requestIDKey ctxKey = "requestID"
)

// TokenVerifier resolves a bearer token to the actor it was issued to.
type TokenVerifier interface {
	VerifyAccessToken(token string) (domain.Actor, error)
}

// ActorFrom returns the actor stored by authMiddleware. Requests without a
// valid token get the anonymous actor.
func ActorFrom(ctx context.Context) domain.Actor {
	actor, _ := ctx.Value(actorKey).(domain.Actor)
	return actor
}

func withActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// authMiddleware validates Bearer tokens and stores the actor in context.
// A missing or invalid token continues anonymously; operations that need an
// account reject the anonymous actor themselves.
func authMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				next.ServeHTTP(w, r)
				return
			}

			actor, err := verifier.VerifyAccessToken(token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(withActor(r.Context(), actor)))
		})
	}
}
