package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/livetrivia/internal/readmodel"
	"github.com/playperu/livetrivia/internal/submission"
	"github.com/playperu/livetrivia/internal/trivia"
)

// AnswerResponse is a stored submission as its team sees it. Scoring fields
// are not exposed to participants.
type AnswerResponse struct {
	ID          string              `json:"id"`
	RoundID     string              `json:"round_id"`
	ItemID      string              `json:"item_id"`
	TeamID      string              `json:"team_id"`
	ChoiceIndex *int                `json:"choice_index,omitempty"`
	ChoiceText  string              `json:"choice_text,omitempty"`
	Parts       []trivia.AnswerPart `json:"parts,omitempty"`
	SubmittedAt time.Time           `json:"submitted_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

func answerResponse(r trivia.Response) AnswerResponse {
	return AnswerResponse{
		ID:          r.ID,
		RoundID:     r.RoundID,
		ItemID:      r.ItemID,
		TeamID:      r.TeamID,
		ChoiceIndex: r.ChoiceIndex,
		ChoiceText:  r.ChoiceText,
		Parts:       r.Parts,
		SubmittedAt: r.SubmittedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// Submission handlers pass an undecodable body on as an empty request, so it
// fails validation inside the service and counts against the caller.

func handleSubmitChoice(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submission.ChoiceRequest
		if err := readJSON(r, &req); err != nil {
			req = submission.ChoiceRequest{}
		}
		resp, err := deps.Submissions.SubmitChoice(r.Context(), chi.URLParam(r, "code"), clientIP(r), req)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeData(w, http.StatusOK, answerResponse(resp))
	}
}

func handleSubmitLabeled(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submission.LabeledRequest
		if err := readJSON(r, &req); err != nil {
			req = submission.LabeledRequest{}
		}
		resp, err := deps.Submissions.SubmitLabeled(r.Context(), chi.URLParam(r, "code"), clientIP(r), req)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeData(w, http.StatusOK, answerResponse(resp))
	}
}

func handleStopAudio(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submission.AudioStopRequest
		if err := readJSON(r, &req); err != nil {
			req = submission.AudioStopRequest{}
		}
		ls, err := deps.Submissions.StopAudio(r.Context(), chi.URLParam(r, "code"), clientIP(r), req)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeData(w, http.StatusOK, readmodel.NewLiveInfo(ls))
	}
}
