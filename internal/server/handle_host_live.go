package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/livetrivia/internal/readmodel"
	"github.com/playperu/livetrivia/internal/trivia"
)

type AdvanceRequest struct {
	RoundID string `json:"round_id"`
	Ordinal int    `json:"ordinal"`
}

type StartTimerRequest struct {
	DurationSeconds *int `json:"duration_seconds"`
}

type ResetItemResponse struct {
	Live             *readmodel.LiveInfo `json:"live"`
	ClearedResponses int64               `json:"cleared_responses"`
}

type RoundStatusRequest struct {
	Status trivia.RoundStatus `json:"status"`
}

// HostEventResponse is the host's view of an event: ids and full answers.
type HostEventResponse struct {
	ID           string             `json:"id"`
	PublicCode   string             `json:"public_code"`
	Title        string             `json:"title"`
	Status       trivia.EventStatus `json:"status"`
	StartsAt     *time.Time         `json:"starts_at"`
	LocationName string             `json:"location_name"`
	Rounds       []HostRound        `json:"rounds"`
}

type HostRound struct {
	readmodel.RoundInfo
	Items []HostItem `json:"items"`
}

type HostItem struct {
	ID             string              `json:"id"`
	Ordinal        int                 `json:"ordinal"`
	Type           trivia.ItemType     `json:"type"`
	Prompt         string              `json:"prompt"`
	Choices        []string            `json:"choices,omitempty"`
	Answer         string              `json:"answer,omitempty"`
	AnswerA        string              `json:"answer_a,omitempty"`
	AnswerB        string              `json:"answer_b,omitempty"`
	AnswerParts    []trivia.AnswerPart `json:"answer_parts,omitempty"`
	FunFact        string              `json:"fun_fact,omitempty"`
	MediaType      string              `json:"media_type,omitempty"`
	MediaKey       string              `json:"media_key,omitempty"`
	AudioAnswerKey string              `json:"audio_answer_key,omitempty"`
}

func handleHostEvent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ev := eventFrom(r)
		rounds, err := deps.Store.Rounds(r.Context(), ev.ID)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		resp := HostEventResponse{
			ID:           ev.ID,
			PublicCode:   ev.PublicCode,
			Title:        ev.Title,
			Status:       ev.Status,
			StartsAt:     ev.StartsAt,
			LocationName: ev.LocationName,
			Rounds:       make([]HostRound, 0, len(rounds)),
		}
		for _, rd := range rounds {
			items, err := deps.Store.RoundItems(r.Context(), rd.ID)
			if err != nil {
				writeError(w, r, deps.Logger, err)
				return
			}
			hr := HostRound{RoundInfo: readmodel.NewRoundInfo(rd), Items: make([]HostItem, 0, len(items))}
			for _, it := range items {
				hr.Items = append(hr.Items, HostItem{
					ID:             it.ID,
					Ordinal:        it.Ordinal,
					Type:           it.Type,
					Prompt:         it.Prompt,
					Choices:        it.Choices,
					Answer:         it.Answer,
					AnswerA:        it.AnswerA,
					AnswerB:        it.AnswerB,
					AnswerParts:    it.AnswerParts,
					FunFact:        it.FunFact,
					MediaType:      it.MediaType,
					MediaKey:       it.MediaKey,
					AudioAnswerKey: it.AudioAnswerKey,
				})
			}
			resp.Rounds = append(resp.Rounds, hr)
		}
		writeData(w, http.StatusOK, resp)
	}
}

func handleGetLive(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ls, err := deps.Live.Get(r.Context(), eventFrom(r).ID)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		var info *readmodel.LiveInfo
		if ls != nil {
			info = readmodel.NewLiveInfo(*ls)
		}
		writeData(w, http.StatusOK, info)
	}
}

// handlePutLive applies a partial update. Omitted fields are left alone and
// an explicit null clears a nullable field.
func handlePutLive(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p trivia.LivePatch
		if err := readJSON(r, &p); err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		if p.Empty() {
			writeError(w, r, deps.Logger, trivia.ErrValidation("no live state fields given"))
			return
		}
		ls, err := deps.Live.Update(r.Context(), eventFrom(r).ID, p)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeData(w, http.StatusOK, readmodel.NewLiveInfo(ls))
	}
}

func handleAdvance(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AdvanceRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		if req.RoundID == "" || req.Ordinal <= 0 {
			writeError(w, r, deps.Logger, trivia.ErrValidation("round_id and a positive ordinal are required").
				WithDetails(map[string]any{"fields": []string{"round_id", "ordinal"}}))
			return
		}
		ls, err := deps.Live.Advance(r.Context(), eventFrom(r).ID, req.RoundID, req.Ordinal)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeData(w, http.StatusOK, readmodel.NewLiveInfo(ls))
	}
}

func handleStartTimer(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StartTimerRequest
		if r.ContentLength != 0 {
			if err := readJSON(r, &req); err != nil {
				writeError(w, r, deps.Logger, err)
				return
			}
		}
		ls, err := deps.Live.StartTimer(r.Context(), eventFrom(r).ID, req.DurationSeconds)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeData(w, http.StatusOK, readmodel.NewLiveInfo(ls))
	}
}

func handleResetItem(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ls, cleared, err := deps.Live.ResetItem(r.Context(), eventFrom(r).ID)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeData(w, http.StatusOK, ResetItemResponse{Live: readmodel.NewLiveInfo(ls), ClearedResponses: cleared})
	}
}

func handleRoundStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RoundStatusRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		rd, err := deps.Live.SetRoundStatus(r.Context(), eventFrom(r).ID, chi.URLParam(r, "roundID"), req.Status)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeData(w, http.StatusOK, readmodel.NewRoundInfo(rd))
	}
}
