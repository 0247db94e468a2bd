package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// CookieName is the cookie the page surface reads a token from.
const CookieName = "token"

type contextKey struct{ name string }

var actorCtxKey = &contextKey{"actor"}

// Middleware resolves the actor from an "Authorization: Bearer" header or the
// token cookie. Requests without a valid token continue anonymously; handlers
// decide whether an actor is required.
func Middleware(tokens *Tokens, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := tokenFromRequest(r)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			actor, err := tokens.Validate(raw)
			if err != nil {
				logger.Debug("ignoring invalid token", "path", r.URL.Path, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// WithActor returns a context carrying actor.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorCtxKey, actor)
}

// ActorFromContext returns the authenticated actor, or "" for anonymous
// requests.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorCtxKey).(string)
	return actor
}

func tokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}
