package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/playperu/livetrivia/internal/store"
	"github.com/playperu/livetrivia/internal/teamsession"
	"github.com/playperu/livetrivia/internal/trivia"
)

// HostLoginRequest is the request body for POST /api/host/login.
type HostLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HostMeResponse describes the signed-in host.
type HostMeResponse struct {
	ID    string     `json:"id"`
	Email string     `json:"email"`
	Role  store.Role `json:"role"`
}

func handleHostLogin(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req HostLoginRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		req.Email = strings.TrimSpace(strings.ToLower(req.Email))

		key := deps.LoginGuard.Key(clientIP(r), req.Email)
		if d := deps.LoginGuard.Allow(r.Context(), key); !d.Allowed {
			deps.LoginGuard.Hit(r.Context(), key)
			writeError(w, r, deps.Logger, trivia.ErrRateLimited(d.RetryAfterSeconds))
			return
		}
		reject := func(err error) {
			deps.LoginGuard.Hit(r.Context(), key)
			writeError(w, r, deps.Logger, err)
		}

		if req.Email == "" || req.Password == "" {
			reject(trivia.ErrValidation("email and password are required"))
			return
		}

		u, err := deps.Store.UserByEmail(r.Context(), req.Email)
		if errors.Is(err, store.ErrNotFound) {
			reject(trivia.ErrUnauthorized())
			return
		}
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
			reject(trivia.ErrUnauthorized())
			return
		}

		sessionID, err := teamsession.NewToken()
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		if err := deps.Store.CreateHostSession(r.Context(), sessionID, u.ID); err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		deps.LoginGuard.Reset(r.Context(), key)

		http.SetCookie(w, &http.Cookie{
			Name:     hostCookieName,
			Value:    sessionID,
			Path:     "/",
			MaxAge:   int(store.HostSessionTTL / time.Second),
			HttpOnly: true,
			Secure:   deps.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
		writeData(w, http.StatusOK, HostMeResponse{ID: u.ID, Email: u.Email, Role: u.Role})
	}
}

func handleHostLogout(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(hostCookieName)
		if err == nil && cookie.Value != "" {
			if err := deps.Store.DeleteHostSession(r.Context(), cookie.Value); err != nil {
				deps.Logger.WarnContext(r.Context(), "deleting host session", "error", err)
			}
		}

		http.SetCookie(w, &http.Cookie{
			Name:     hostCookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   deps.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
		writeData(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func handleHostMe(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := hostFromRequest(r, deps.Store)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeData(w, http.StatusOK, HostMeResponse{ID: u.ID, Email: u.Email, Role: u.Role})
	}
}
