package server

import (
	"encoding/json"
	"net/http"
	"time"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/playperu/livetrivia/internal/handler/health"
	"github.com/playperu/livetrivia/internal/readmodel"
	"github.com/playperu/livetrivia/internal/submission"
)

// operation documents one route. Success bodies are listed unwrapped; every
// response travels inside the {ok, data} or {ok, error} envelope.
type operation struct {
	method, path string
	summary      string
	description  string
	params       any
	req          any
	resp         any
	status       int
	errors       []int
	contentType  string
}

type eventCodeParams struct {
	Code string `path:"code" description:"Public event code."`
}

type snapshotParams struct {
	Code string         `path:"code" description:"Public event code."`
	View readmodel.View `query:"view" enum:"play,leaderboard" description:"Defaults to play."`
}

type hostEventParams struct {
	EventID string `path:"eventID"`
}

type roundParams struct {
	EventID string `path:"eventID"`
	RoundID string `path:"roundID"`
}

type responseParams struct {
	EventID    string `path:"eventID"`
	ResponseID string `path:"responseID"`
}

// liveUpdateBody documents the fields accepted by a live state update.
type liveUpdateBody struct {
	ActiveRoundID          *string    `json:"active_round_id,omitempty"`
	CurrentItemOrdinal     *int       `json:"current_item_ordinal,omitempty"`
	RevealAnswer           *bool      `json:"reveal_answer,omitempty"`
	RevealFunFact          *bool      `json:"reveal_fun_fact,omitempty"`
	WaitingMessage         *string    `json:"waiting_message,omitempty"`
	WaitingShowLeaderboard *bool      `json:"waiting_show_leaderboard,omitempty"`
	WaitingShowNextRound   *bool      `json:"waiting_show_next_round,omitempty"`
	TimerStartedAt         *time.Time `json:"timer_started_at,omitempty"`
	TimerDurationSeconds   *int       `json:"timer_duration_seconds,omitempty"`
	AudioPlaying           *bool      `json:"audio_playing,omitempty"`
}

var publicErrors = []int{http.StatusBadRequest, http.StatusNotFound, http.StatusTooManyRequests}

var hostErrors = []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound}

func operations() []operation {
	return []operation{
		{
			method: http.MethodGet, path: "/healthz",
			summary:     "Health check",
			description: "Reports each backend dependency as ok, error or disabled.",
			resp:        map[string]health.Result{},
			errors:      []int{http.StatusServiceUnavailable},
		},
		{
			method: http.MethodGet, path: "/api/events/{code}",
			params:      snapshotParams{},
			summary:     "Event snapshot",
			description: "Public payload for an event. The view query parameter selects play or leaderboard.",
			resp:        readmodel.Payload{},
			errors:      publicErrors,
		},
		{
			method: http.MethodGet, path: "/api/events/{code}/stream",
			params:      snapshotParams{},
			summary:     "Event stream",
			description: "Server-sent update events carrying the payload whenever it changes, with ping comments in between.",
			contentType: "text/event-stream",
			errors:      publicErrors,
		},
		{
			method: http.MethodGet, path: "/api/events/{code}/stream/ws",
			params:      snapshotParams{},
			summary:     "Event stream over WebSocket",
			description: "Same notifications as the SSE stream, one JSON text frame per message.",
			status:      http.StatusSwitchingProtocols,
			contentType: "text/plain",
			errors:      publicErrors,
		},
		{
			method: http.MethodPost, path: "/api/events/{code}/join",
			params:      eventCodeParams{},
			summary:     "Join a team",
			description: "Claims or re-enters a team by its four-digit code. Rotates the team's session token.",
			req:         JoinRequest{},
			resp:        JoinResponse{},
			errors:      append([]int{http.StatusConflict}, publicErrors...),
		},
		{
			method: http.MethodPost, path: "/api/events/{code}/team/rename",
			params:  eventCodeParams{},
			summary: "Rename team",
			req:     RenameRequest{},
			resp:    TeamResponse{},
			errors:  append([]int{http.StatusUnauthorized, http.StatusConflict}, publicErrors...),
		},
		{
			method: http.MethodPost, path: "/api/events/{code}/answers/choice",
			params:      eventCodeParams{},
			summary:     "Submit a choice",
			description: "Records or replaces the team's multiple-choice answer for the current item.",
			req:         submission.ChoiceRequest{},
			resp:        AnswerResponse{},
			errors:      append([]int{http.StatusUnauthorized, http.StatusConflict}, publicErrors...),
		},
		{
			method: http.MethodPost, path: "/api/events/{code}/audio/stop",
			params:      eventCodeParams{},
			summary:     "Stop the audio",
			description: "The first team to stop the clip becomes the only team allowed to answer it.",
			req:         submission.AudioStopRequest{},
			resp:        readmodel.LiveInfo{},
			errors:      append([]int{http.StatusUnauthorized, http.StatusForbidden, http.StatusConflict}, publicErrors...),
		},
		{
			method: http.MethodPost, path: "/api/events/{code}/answers/labeled",
			params:      eventCodeParams{},
			summary:     "Submit a labeled answer",
			description: "Answers every label of the current shared item. Only the team that stopped the audio may submit.",
			req:         submission.LabeledRequest{},
			resp:        AnswerResponse{},
			errors:      append([]int{http.StatusUnauthorized, http.StatusForbidden, http.StatusConflict}, publicErrors...),
		},
		{
			method: http.MethodPost, path: "/api/host/login",
			summary:     "Host login",
			description: "Authenticates with email and password. Sets the host_session cookie.",
			req:         HostLoginRequest{},
			resp:        HostMeResponse{},
			errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusTooManyRequests},
		},
		{
			method: http.MethodPost, path: "/api/host/logout",
			summary: "Host logout",
			resp:    map[string]string{},
		},
		{
			method: http.MethodGet, path: "/api/host/me",
			summary: "Current host",
			resp:    HostMeResponse{},
			errors:  []int{http.StatusUnauthorized},
		},
		{
			method: http.MethodGet, path: "/api/host/events/{eventID}",
			params:      hostEventParams{},
			summary:     "Event for hosting",
			description: "Rounds and items with their answers.",
			resp:        HostEventResponse{},
			errors:      hostErrors,
		},
		{
			method: http.MethodGet, path: "/api/host/events/{eventID}/live",
			params:  hostEventParams{},
			summary: "Live state",
			resp:    readmodel.LiveInfo{},
			errors:  hostErrors,
		},
		{
			method: http.MethodPut, path: "/api/host/events/{eventID}/live",
			params:      hostEventParams{},
			summary:     "Update live state",
			description: "Partial update. Omitted fields keep their value and null clears a nullable field.",
			req:         liveUpdateBody{},
			resp:        readmodel.LiveInfo{},
			errors:      hostErrors,
		},
		{
			method: http.MethodPost, path: "/api/host/events/{eventID}/live/advance",
			params:      hostEventParams{},
			summary:     "Move to an item",
			description: "Sets the active round and item and returns the item to idle.",
			req:         AdvanceRequest{},
			resp:        readmodel.LiveInfo{},
			errors:      hostErrors,
		},
		{
			method: http.MethodPost, path: "/api/host/events/{eventID}/live/timer",
			params:      hostEventParams{},
			summary:     "Start the timer",
			description: "Starts the answer timer for the current item. Defaults to the round's timer.",
			req:         StartTimerRequest{},
			resp:        readmodel.LiveInfo{},
			errors:      hostErrors,
		},
		{
			method: http.MethodPost, path: "/api/host/events/{eventID}/live/reset-item",
			params:      hostEventParams{},
			summary:     "Reset the current item",
			description: "Clears reveals, timer, audio and the audio stop, and soft-deletes the item's responses.",
			resp:        ResetItemResponse{},
			errors:      hostErrors,
		},
		{
			method: http.MethodPost, path: "/api/host/events/{eventID}/rounds/{roundID}/status",
			params:  roundParams{},
			summary: "Set round status",
			req:     RoundStatusRequest{},
			resp:    readmodel.RoundInfo{},
			errors:  hostErrors,
		},
		{
			method: http.MethodGet, path: "/api/host/events/{eventID}/responses",
			params:  hostEventParams{},
			summary: "Responses to the current item",
			resp:    []HostResponse{},
			errors:  hostErrors,
		},
		{
			method: http.MethodPost, path: "/api/host/events/{eventID}/responses/clear",
			params:  hostEventParams{},
			summary: "Clear responses to the current item",
			resp:    ClearResponsesResponse{},
			errors:  hostErrors,
		},
		{
			method: http.MethodPut, path: "/api/host/events/{eventID}/responses/{responseID}/mark",
			params:      responseParams{},
			summary:     "Mark a response",
			description: "Sets is_correct. Null clears the mark.",
			req:         MarkRequest{},
			resp:        HostResponse{},
			errors:      hostErrors,
		},
		{
			method: http.MethodGet, path: "/api/host/events/{eventID}/teams",
			params:  hostEventParams{},
			summary: "List teams",
			resp:    []HostTeam{},
			errors:  hostErrors,
		},
		{
			method: http.MethodPost, path: "/api/host/events/{eventID}/teams/placeholders",
			params:  hostEventParams{},
			summary: "Add placeholder teams",
			req:     SeedPlaceholdersRequest{},
			resp:    []HostTeam{},
			status:  http.StatusCreated,
			errors:  hostErrors,
		},
	}
}

func newOpenAPISpec() (*openapi3.Spec, error) {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Live Trivia API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Backend API for live pub trivia events.")

	for _, op := range operations() {
		oc, err := r.NewOperationContext(op.method, op.path)
		if err != nil {
			return nil, err
		}
		oc.SetSummary(op.summary)
		if op.description != "" {
			oc.SetDescription(op.description)
		}
		if op.params != nil {
			oc.AddReqStructure(op.params)
		}
		if op.req != nil {
			oc.AddReqStructure(op.req)
		}
		status := op.status
		if status == 0 {
			status = http.StatusOK
		}
		if op.contentType != "" {
			oc.AddRespStructure(nil, openapi.WithHTTPStatus(status), openapi.WithContentType(op.contentType))
		} else {
			oc.AddRespStructure(op.resp, openapi.WithHTTPStatus(status))
		}
		for _, code := range op.errors {
			oc.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(code))
		}
		if err := r.AddOperation(oc); err != nil {
			return nil, err
		}
	}
	return r.Spec, nil
}

func handleOpenAPI() http.HandlerFunc {
	spec, err := newOpenAPISpec()
	if err != nil {
		panic("building openapi spec: " + err.Error())
	}
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
