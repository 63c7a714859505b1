package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/livetrivia/internal/ratelimit"
	"github.com/playperu/livetrivia/internal/store"
	"github.com/playperu/livetrivia/internal/trivia"
)

type ctxKey int

const (
	ctxKeyHost ctxKey = iota
	ctxKeyEvent
)

const hostCookieName = "host_session"

// hostAuthMiddleware resolves the host_session cookie to a user.
func hostAuthMiddleware(logger *slog.Logger, s *store.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, err := hostFromRequest(r, s)
			if err != nil {
				writeError(w, r, logger, err)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyHost, u)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func hostFromRequest(r *http.Request, s *store.Store) (store.User, error) {
	cookie, err := r.Cookie(hostCookieName)
	if err != nil || cookie.Value == "" {
		return store.User{}, trivia.ErrUnauthorized()
	}
	u, err := s.UserBySession(r.Context(), cookie.Value)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, trivia.ErrUnauthorized()
	}
	return u, err
}

// eventHostMiddleware loads {eventID} and lets through its host or any admin.
func eventHostMiddleware(logger *slog.Logger, s *store.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ev, err := s.EventByID(r.Context(), chi.URLParam(r, "eventID"))
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, r, logger, trivia.ErrNotFound("event not found"))
				return
			}
			if err != nil {
				writeError(w, r, logger, err)
				return
			}
			u := hostFrom(r)
			if u.Role != store.RoleAdmin && ev.HostUserID != u.ID {
				writeError(w, r, logger, trivia.ErrForbidden("not the host of this event"))
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyEvent, ev)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// throttleStreams limits how fast one address can open streams. Open
// streams themselves are never throttled.
func throttleStreams(logger *slog.Logger, l *ratelimit.IPLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(clientIP(r)) {
				writeError(w, r, logger, trivia.ErrRateLimited(1))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hostFrom(r *http.Request) store.User {
	return r.Context().Value(ctxKeyHost).(store.User)
}

func eventFrom(r *http.Request) trivia.Event {
	return r.Context().Value(ctxKeyEvent).(trivia.Event)
}

// clientIP is the caller address after middleware.RealIP, without a port.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
