package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/livetrivia/internal/ratelimit"
	"github.com/playperu/livetrivia/internal/trivia"
)

type JoinRequest struct {
	TeamCode string `json:"team_code"`
	TeamName string `json:"team_name,omitempty"`
}

type JoinResponse struct {
	TeamID       string `json:"team_id"`
	TeamName     string `json:"team_name"`
	SessionToken string `json:"session_token"`
}

type RenameRequest struct {
	TeamID       string `json:"team_id"`
	SessionToken string `json:"session_token"`
	Name         string `json:"name"`
}

type TeamResponse struct {
	TeamID   string `json:"team_id"`
	TeamName string `json:"team_name"`
}

// guarded runs fn under a rate limit guard keyed by caller address and event
// code. Any domain rejection from fn is recorded as a hit.
func guarded(w http.ResponseWriter, r *http.Request, deps Deps, g *ratelimit.Guard, fn func() error) {
	key := g.Key(clientIP(r), trivia.NormalizeCode(chi.URLParam(r, "code")))
	if d := g.Allow(r.Context(), key); !d.Allowed {
		g.Hit(r.Context(), key)
		writeError(w, r, deps.Logger, trivia.ErrRateLimited(d.RetryAfterSeconds))
		return
	}
	if err := fn(); err != nil {
		var te *trivia.Error
		if errors.As(err, &te) {
			g.Hit(r.Context(), key)
		}
		writeError(w, r, deps.Logger, err)
	}
}

func handleJoin(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		guarded(w, r, deps, deps.JoinGuard, func() error {
			var req JoinRequest
			if err := readJSON(r, &req); err != nil {
				return err
			}
			if req.TeamCode == "" {
				return trivia.ErrValidation("team_code is required").
					WithDetails(map[string]any{"fields": []string{"team_code"}})
			}
			res, err := deps.Sessions.Join(r.Context(), chi.URLParam(r, "code"), req.TeamCode, req.TeamName)
			if err != nil {
				return err
			}
			deps.Notifier.Notify(res.Team.EventID)
			writeData(w, http.StatusOK, JoinResponse{
				TeamID:       res.Team.ID,
				TeamName:     res.Team.Name,
				SessionToken: res.Token,
			})
			return nil
		})
	}
}

func handleRename(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		guarded(w, r, deps, deps.RenameGuard, func() error {
			var req RenameRequest
			if err := readJSON(r, &req); err != nil {
				return err
			}
			if req.TeamID == "" || req.SessionToken == "" {
				return trivia.ErrValidation("team_id and session_token are required").
					WithDetails(map[string]any{"fields": []string{"team_id", "session_token"}})
			}
			team, err := deps.Sessions.Rename(r.Context(), chi.URLParam(r, "code"), req.TeamID, req.SessionToken, req.Name)
			if err != nil {
				return err
			}
			deps.Notifier.Notify(team.EventID)
			writeData(w, http.StatusOK, TeamResponse{TeamID: team.ID, TeamName: team.Name})
			return nil
		})
	}
}
