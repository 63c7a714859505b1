package server

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/playperu/livetrivia/internal/readmodel"
	"github.com/playperu/livetrivia/internal/store"
	"github.com/playperu/livetrivia/internal/submission"
	"github.com/playperu/livetrivia/internal/trivia"
)

func TestHostLoginMeLogout(t *testing.T) {
	s := newTestServer(t)
	cookie := s.login(t)
	assert.True(t, cookie.HttpOnly)

	rec := s.do(t, http.MethodGet, "/api/host/me", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var me HostMeResponse
	decodeEnvelope(t, rec, &me)
	assert.Equal(t, s.Host.ID, me.ID)
	assert.Equal(t, "host@livetrivia.local", me.Email)
	assert.Equal(t, store.RoleHost, me.Role)

	rec = s.do(t, http.MethodPost, "/api/host/logout", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/host/me", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHostSessionExpiresServerSide(t *testing.T) {
	s := newTestServer(t)
	cookie := s.login(t)

	s.Clock.Advance(store.HostSessionTTL)
	rec := s.do(t, http.MethodGet, "/api/host/me", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "the cookie is still sent but the session has expired")
}

func TestHostLoginRejected(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		body   HostLoginRequest
		status int
		code   trivia.Code
	}{
		{"wrong password", HostLoginRequest{Email: "host@livetrivia.local", Password: "nope"}, http.StatusUnauthorized, trivia.CodeUnauthorized},
		{"unknown email", HostLoginRequest{Email: "who@livetrivia.local", Password: "quizmaster"}, http.StatusUnauthorized, trivia.CodeUnauthorized},
		{"missing password", HostLoginRequest{Email: "host@livetrivia.local"}, http.StatusBadRequest, trivia.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/host/login", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeEnvelope(t, rec, nil).Error.Code)
			assert.Empty(t, rec.Result().Cookies())
		})
	}
}

func TestHostRoutesRequireEventHost(t *testing.T) {
	s := newTestServer(t)
	owner := s.login(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("other"), bcrypt.MinCost)
	require.NoError(t, err)
	other, err := s.Store.CreateUser(t.Context(), "other@livetrivia.local", string(hash), store.RoleHost)
	require.NoError(t, err)
	require.NoError(t, s.Store.CreateHostSession(t.Context(), "other-session", other.ID))
	otherCookie := &http.Cookie{Name: hostCookieName, Value: "other-session"}

	admin, err := s.Store.CreateUser(t.Context(), "admin@livetrivia.local", string(hash), store.RoleAdmin)
	require.NoError(t, err)
	require.NoError(t, s.Store.CreateHostSession(t.Context(), "admin-session", admin.ID))
	adminCookie := &http.Cookie{Name: hostCookieName, Value: "admin-session"}

	path := "/api/host/events/" + s.Event.ID + "/live"
	tests := []struct {
		name    string
		path    string
		cookies []*http.Cookie
		status  int
	}{
		{"no session", path, nil, http.StatusUnauthorized},
		{"unknown session", path, []*http.Cookie{{Name: hostCookieName, Value: "bogus"}}, http.StatusUnauthorized},
		{"another host", path, []*http.Cookie{otherCookie}, http.StatusForbidden},
		{"admin", path, []*http.Cookie{adminCookie}, http.StatusOK},
		{"owner", path, []*http.Cookie{owner}, http.StatusOK},
		{"unknown event", "/api/host/events/nope/live", []*http.Cookie{owner}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, tt.path, nil, tt.cookies...)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestHostEventIncludesAnswers(t *testing.T) {
	s := newTestServer(t)
	cookie := s.login(t)

	rec := s.do(t, http.MethodGet, "/api/host/events/"+s.Event.ID, nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var ev HostEventResponse
	decodeEnvelope(t, rec, &ev)
	assert.Equal(t, s.Event.ID, ev.ID)
	require.Len(t, ev.Rounds, 3)
	assert.Equal(t, "Mars", ev.Rounds[0].Items[0].Answer)
	assert.Equal(t, "Picture Round", ev.Rounds[2].Label)
	assert.Equal(t, s.AudioItems[0].AnswerParts, ev.Rounds[1].Items[0].AnswerParts)
}

func TestHostLiveControl(t *testing.T) {
	s := newTestServer(t)
	cookie := s.login(t)
	base := "/api/host/events/" + s.Event.ID

	rec := s.do(t, http.MethodGet, base+"/live", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"data":null}`, rec.Body.String())

	rec = s.do(t, http.MethodPost, base+"/live/timer", nil, cookie)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, trivia.CodeNotLive, decodeEnvelope(t, rec, nil).Error.Code)

	rec = s.do(t, http.MethodPost, base+"/live/advance", AdvanceRequest{RoundID: s.ChoiceRound.ID, Ordinal: 2}, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var live readmodel.LiveInfo
	decodeEnvelope(t, rec, &live)
	require.NotNil(t, live.ActiveRoundID)
	assert.Equal(t, s.ChoiceRound.ID, *live.ActiveRoundID)
	require.NotNil(t, live.CurrentItemOrdinal)
	assert.Equal(t, 2, *live.CurrentItemOrdinal)
	assert.Nil(t, live.TimerStartedAt)

	rec = s.do(t, http.MethodPost, base+"/live/timer", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	live = readmodel.LiveInfo{}
	decodeEnvelope(t, rec, &live)
	require.NotNil(t, live.TimerStartedAt)
	assert.True(t, live.TimerStartedAt.Equal(s.Clock.Now()))
	require.NotNil(t, live.TimerDurationSeconds)
	assert.Equal(t, 30, *live.TimerDurationSeconds)

	rec = s.do(t, http.MethodPost, base+"/live/timer", StartTimerRequest{DurationSeconds: new(int)}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, base+"/live", `{"reveal_answer": true, "waiting_message": "Back in 5"}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	live = readmodel.LiveInfo{}
	decodeEnvelope(t, rec, &live)
	assert.True(t, live.RevealAnswer)
	require.NotNil(t, live.WaitingMessage)
	assert.Equal(t, "Back in 5", *live.WaitingMessage)
	assert.NotNil(t, live.TimerStartedAt, "fields left out of the update keep their value")

	rec = s.do(t, http.MethodPut, base+"/live", `{"waiting_message": null}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	live = readmodel.LiveInfo{}
	decodeEnvelope(t, rec, &live)
	assert.Nil(t, live.WaitingMessage)
	assert.True(t, live.RevealAnswer)

	rec = s.do(t, http.MethodPut, base+"/live", `{}`, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, trivia.CodeValidation, decodeEnvelope(t, rec, nil).Error.Code)

	rec = s.do(t, http.MethodPost, base+"/live/advance", AdvanceRequest{RoundID: s.ChoiceRound.ID}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHostScoringFlow(t *testing.T) {
	s := newTestServer(t)
	cookie := s.login(t)
	base := "/api/host/events/" + s.Event.ID
	s.GoLive(t, s.ChoiceRound, 1)

	team := s.join(t, "0193")
	choice := 2
	rec := s.do(t, http.MethodPost, "/api/events/4821/answers/choice", submission.ChoiceRequest{
		TeamID: team.TeamID, SessionToken: team.SessionToken, ItemID: s.ChoiceItems[0].ID, ChoiceIndex: &choice,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, base+"/responses", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var responses []HostResponse
	decodeEnvelope(t, rec, &responses)
	require.Len(t, responses, 1)
	assert.Equal(t, "Alpha", responses[0].TeamName)
	assert.Nil(t, responses[0].IsCorrect)

	rec = s.do(t, http.MethodPut, base+"/responses/"+responses[0].ID+"/mark", `{"is_correct": true}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var marked HostResponse
	decodeEnvelope(t, rec, &marked)
	require.NotNil(t, marked.IsCorrect)
	assert.True(t, *marked.IsCorrect)
	assert.Equal(t, s.Host.ID, marked.MarkedBy)
	assert.Equal(t, "Alpha", marked.TeamName)

	rec = s.do(t, http.MethodPut, base+"/responses/nope/mark", `{"is_correct": false}`, cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, base+"/live/reset-item", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var reset ResetItemResponse
	decodeEnvelope(t, rec, &reset)
	assert.Equal(t, int64(1), reset.ClearedResponses)
	require.NotNil(t, reset.Live)
	assert.Nil(t, reset.Live.TimerStartedAt)

	rec = s.do(t, http.MethodGet, base+"/responses", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	responses = nil
	decodeEnvelope(t, rec, &responses)
	assert.Empty(t, responses)
}

func TestHostRoundStatus(t *testing.T) {
	s := newTestServer(t)
	cookie := s.login(t)
	path := "/api/host/events/" + s.Event.ID + "/rounds/" + s.AudioRound.ID + "/status"

	rec := s.do(t, http.MethodPost, path, RoundStatusRequest{Status: trivia.RoundLive}, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var round readmodel.RoundInfo
	decodeEnvelope(t, rec, &round)
	assert.Equal(t, trivia.RoundLive, round.Status)
	assert.True(t, round.ParticipantAudioStop)

	rec = s.do(t, http.MethodPost, path, RoundStatusRequest{Status: "paused"}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/host/events/"+s.Event.ID+"/rounds/nope/status", RoundStatusRequest{Status: trivia.RoundLocked}, cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHostTeams(t *testing.T) {
	s := newTestServer(t)
	cookie := s.login(t)
	base := "/api/host/events/" + s.Event.ID

	rec := s.do(t, http.MethodGet, base+"/teams", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var teams []HostTeam
	decodeEnvelope(t, rec, &teams)
	require.Len(t, teams, 2)

	rec = s.do(t, http.MethodPost, base+"/teams/placeholders", SeedPlaceholdersRequest{Count: 2}, cookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var added []HostTeam
	decodeEnvelope(t, rec, &added)
	require.Len(t, added, 2)
	assert.Equal(t, "Team 03", added[0].Name)
	assert.Equal(t, "Team 04", added[1].Name)
	for _, team := range added {
		assert.True(t, team.Placeholder)
		assert.False(t, team.Joined)
		assert.Len(t, team.Code, 4)
	}

	rec = s.do(t, http.MethodPost, base+"/teams/placeholders", SeedPlaceholdersRequest{Count: 0}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
