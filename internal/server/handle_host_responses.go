package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/livetrivia/internal/trivia"
)

// HostResponse is a submission as the scoring host sees it.
type HostResponse struct {
	AnswerResponse
	TeamName  string     `json:"team_name"`
	Shared    bool       `json:"shared"`
	IsCorrect *bool      `json:"is_correct"`
	MarkedAt  *time.Time `json:"marked_at,omitempty"`
	MarkedBy  string     `json:"marked_by,omitempty"`
}

type ClearResponsesResponse struct {
	Cleared int64 `json:"cleared"`
}

type MarkRequest struct {
	IsCorrect *bool `json:"is_correct"`
}

func hostResponse(r trivia.Response, teamName string) HostResponse {
	return HostResponse{
		AnswerResponse: answerResponse(r),
		TeamName:       teamName,
		Shared:         r.Shared,
		IsCorrect:      r.IsCorrect,
		MarkedAt:       r.MarkedAt,
		MarkedBy:       r.MarkedBy,
	}
}

func handleListResponses(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ev := eventFrom(r)
		rs, err := deps.Live.CurrentResponses(r.Context(), ev.ID)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		teams, err := deps.Store.Teams(r.Context(), ev.ID)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		names := make(map[string]string, len(teams))
		for _, t := range teams {
			names[t.ID] = t.Name
		}
		out := make([]HostResponse, 0, len(rs))
		for _, resp := range rs {
			out = append(out, hostResponse(resp, names[resp.TeamID]))
		}
		writeData(w, http.StatusOK, out)
	}
}

func handleClearResponses(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := deps.Live.ClearResponses(r.Context(), eventFrom(r).ID)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeData(w, http.StatusOK, ClearResponsesResponse{Cleared: n})
	}
}

func handleMarkResponse(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MarkRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		ev := eventFrom(r)
		resp, err := deps.Live.Mark(r.Context(), ev.ID, chi.URLParam(r, "responseID"), req.IsCorrect, hostFrom(r).ID)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		team, err := deps.Store.TeamByID(r.Context(), ev.ID, resp.TeamID)
		if err != nil {
			deps.Logger.WarnContext(r.Context(), "team lookup failed", "team_id", resp.TeamID, "error", err)
		}
		writeData(w, http.StatusOK, hostResponse(resp, team.Name))
	}
}
