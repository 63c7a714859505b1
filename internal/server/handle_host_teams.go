package server

import (
	"net/http"

	"github.com/playperu/livetrivia/internal/trivia"
)

// HostTeam includes the join code, which participants never see for other
// teams.
type HostTeam struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Code        string `json:"code"`
	Placeholder bool   `json:"placeholder"`
	Joined      bool   `json:"joined"`
}

type SeedPlaceholdersRequest struct {
	Count int `json:"count"`
}

func hostTeams(teams []trivia.Team) []HostTeam {
	out := make([]HostTeam, 0, len(teams))
	for _, t := range teams {
		out = append(out, HostTeam{
			ID:          t.ID,
			Name:        t.Name,
			Code:        t.Code,
			Placeholder: t.Placeholder,
			Joined:      t.SessionToken != "",
		})
	}
	return out
}

func handleListTeams(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		teams, err := deps.Store.Teams(r.Context(), eventFrom(r).ID)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeData(w, http.StatusOK, hostTeams(teams))
	}
}

func handleSeedPlaceholders(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SeedPlaceholdersRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		ev := eventFrom(r)
		teams, err := deps.Sessions.SeedPlaceholders(r.Context(), ev.ID, req.Count)
		if len(teams) > 0 {
			deps.Notifier.Notify(ev.ID)
		}
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		deps.Logger.InfoContext(r.Context(), "placeholders seeded", "event_id", ev.ID, "count", len(teams))
		writeData(w, http.StatusCreated, hostTeams(teams))
	}
}
