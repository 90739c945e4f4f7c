package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/tallybook/tallybook/internal/platform/httpx"
	"github.com/tallybook/tallybook/internal/shared"
)

// Middleware resolves the session user into an Actor and gates routes
// by role.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// ResolveActor looks up the logged-in user, if any, and attaches an
// Actor to the request context. Requests without a session pass through
// untouched.
func (m Middleware) ResolveActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil {
			next.ServeHTTP(w, r)
			return
		}
		raw := strings.TrimSpace(sess.User())
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			m.Logger.Error("parse session user id", slog.String("value", raw))
			next.ServeHTTP(w, r)
			return
		}
		user, err := m.Service.Lookup(r.Context(), userID)
		if err != nil {
			if !errors.Is(err, shared.ErrNotFound) {
				m.Logger.Error("resolve actor", slog.Any("error", err))
			}
			next.ServeHTTP(w, r)
			return
		}
		if !user.IsActive {
			next.ServeHTTP(w, r)
			return
		}
		actor := shared.Actor{
			ID:         user.ID,
			Username:   user.Username,
			Role:       user.Role,
			SourceAddr: r.RemoteAddr,
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}

// RequireUser rejects requests that carry no authenticated actor.
func (m Middleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := shared.ActorFromContext(r.Context()); !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects requests from non-admin actors.
func (m Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := shared.ActorFromContext(r.Context())
		if !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
			return
		}
		if !actor.IsAdmin() {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
