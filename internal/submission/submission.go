// Package submission accepts team answers against an event's live state.
//
// Every submission runs the same ordered precondition chain and stops at the
// first failure. Every rejection counts against the caller's rate limit key,
// so scripted retries against any branch accumulate.
package submission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/playperu/livetrivia/internal/metrics"
	"github.com/playperu/livetrivia/internal/ratelimit"
	"github.com/playperu/livetrivia/internal/store"
	"github.com/playperu/livetrivia/internal/teamsession"
	"github.com/playperu/livetrivia/internal/trivia"
)

const DefaultGrace = trivia.DefaultGrace

// Notifier is told when a submission changed the live state.
type Notifier interface {
	Notify(eventID string)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string) {}

type ChoiceRequest struct {
	TeamID       string `json:"team_id"`
	SessionToken string `json:"session_token"`
	ItemID       string `json:"item_id"`
	ChoiceIndex  *int   `json:"choice_index"`
}

type AudioStopRequest struct {
	TeamID       string `json:"team_id"`
	SessionToken string `json:"session_token"`
	ItemID       string `json:"item_id"`
}

type LabeledRequest struct {
	TeamID       string              `json:"team_id"`
	SessionToken string              `json:"session_token"`
	ItemID       string              `json:"item_id"`
	Parts        []trivia.AnswerPart `json:"parts"`
}

type Config struct {
	// Grace is the allowance past the timer deadline. Zero closes
	// submissions exactly at the deadline; negative means DefaultGrace.
	Grace    time.Duration
	Clock    clockwork.Clock
	Notifier Notifier
	Metrics  metrics.Recorder
}

type Service struct {
	store    *store.Store
	sessions *teamsession.Manager
	answers  *ratelimit.Guard
	audio    *ratelimit.Guard
	clock    clockwork.Clock
	grace    time.Duration
	notifier Notifier
	metrics  metrics.Recorder
}

// New builds a Service. answers limits choice and labeled submissions, audio
// limits audio stop claims.
func New(s *store.Store, sessions *teamsession.Manager, answers, audio *ratelimit.Guard, cfg Config) *Service {
	if cfg.Grace < 0 {
		cfg.Grace = DefaultGrace
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = nopNotifier{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop{}
	}
	return &Service{
		store:    s,
		sessions: sessions,
		answers:  answers,
		audio:    audio,
		clock:    cfg.Clock,
		grace:    cfg.Grace,
		notifier: cfg.Notifier,
		metrics:  cfg.Metrics,
	}
}

// attempt carries one submission through the precondition chain.
type attempt struct {
	kind  string
	guard *ratelimit.Guard
	key   string

	event trivia.Event
	live  trivia.LiveState
	round trivia.Round
	team  trivia.Team
	item  trivia.Item
}

func (s *Service) begin(ctx context.Context, kind string, guard *ratelimit.Guard, eventCode, caller string) (*attempt, error) {
	a := &attempt{kind: kind, guard: guard, key: guard.Key(trivia.NormalizeCode(eventCode), caller)}
	if d := guard.Allow(ctx, a.key); !d.Allowed {
		return a, trivia.ErrRateLimited(d.RetryAfterSeconds)
	}
	return a, nil
}

// finish records the outcome. Domain rejections count against the caller;
// infrastructure failures do not.
func (s *Service) finish(ctx context.Context, a *attempt, err error) error {
	if err == nil {
		s.metrics.Submission(a.kind, "accepted")
		return nil
	}
	var te *trivia.Error
	if errors.As(err, &te) {
		a.guard.Hit(ctx, a.key)
		s.metrics.Submission(a.kind, string(te.Code))
		return err
	}
	s.metrics.Submission(a.kind, "error")
	return err
}

func requireFields(fields ...[2]string) error {
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f[1]) == "" {
			missing = append(missing, f[0])
		}
	}
	if len(missing) > 0 {
		return trivia.ErrValidation("missing required fields").
			WithDetails(map[string]any{"fields": missing})
	}
	return nil
}

// loadLive resolves the event and its live round, checking that the event is
// open and the active round is live.
func (s *Service) loadLive(ctx context.Context, a *attempt, eventCode string) error {
	ev, err := s.store.EventByCode(ctx, eventCode)
	if errors.Is(err, store.ErrNotFound) {
		return trivia.ErrNotFound("event not found")
	}
	if err != nil {
		return fmt.Errorf("loading event: %w", err)
	}
	if ev.Status.Closed() {
		return trivia.ErrEventClosed()
	}
	a.event = ev

	ls, err := s.store.LiveState(ctx, ev.ID)
	if errors.Is(err, store.ErrNotFound) {
		return trivia.ErrNotLive()
	}
	if err != nil {
		return fmt.Errorf("loading live state: %w", err)
	}
	if ls.ActiveRoundID == nil {
		return trivia.ErrNotLive()
	}
	a.live = ls

	round, err := s.store.Round(ctx, ev.ID, *ls.ActiveRoundID)
	if errors.Is(err, store.ErrNotFound) {
		return trivia.ErrNotLive()
	}
	if err != nil {
		return fmt.Errorf("loading round: %w", err)
	}
	if round.Status != trivia.RoundLive {
		return trivia.ErrNotLive()
	}
	a.round = round
	return nil
}

// loadTeamAndItem checks the session, then that itemID is the item on screen.
func (s *Service) loadTeamAndItem(ctx context.Context, a *attempt, teamID, token, itemID string) error {
	team, err := s.sessions.Validate(ctx, a.event.ID, teamID, token)
	if err != nil {
		return err
	}
	a.team = team

	item, err := s.store.ItemAt(ctx, a.round.ID, *a.live.CurrentItemOrdinal)
	if errors.Is(err, store.ErrNotFound) {
		return trivia.ErrNotCurrent()
	}
	if err != nil {
		return fmt.Errorf("loading current item: %w", err)
	}
	if item.ID != itemID {
		return trivia.ErrNotCurrent()
	}
	a.item = item
	return nil
}

// SubmitChoice records a team's multiple-choice answer for the current item.
// Resubmitting while the timer is open overwrites the earlier choice.
func (s *Service) SubmitChoice(ctx context.Context, eventCode, caller string, req ChoiceRequest) (trivia.Response, error) {
	a, err := s.begin(ctx, "choice", s.answers, eventCode, caller)
	var r trivia.Response
	if err == nil {
		r, err = s.submitChoice(ctx, a, eventCode, req)
	}
	if err := s.finish(ctx, a, err); err != nil {
		return trivia.Response{}, err
	}
	return r, nil
}

func (s *Service) submitChoice(ctx context.Context, a *attempt, eventCode string, req ChoiceRequest) (trivia.Response, error) {
	if err := requireFields(
		[2]string{"team_id", req.TeamID},
		[2]string{"session_token", req.SessionToken},
		[2]string{"item_id", req.ItemID},
	); err != nil {
		return trivia.Response{}, err
	}
	if req.ChoiceIndex == nil {
		return trivia.Response{}, trivia.ErrValidation("choice_index is required").
			WithDetails(map[string]any{"fields": []string{"choice_index"}})
	}
	if err := s.loadLive(ctx, a, eventCode); err != nil {
		return trivia.Response{}, err
	}
	if a.live.CurrentItemOrdinal == nil {
		return trivia.Response{}, trivia.ErrNotLive()
	}
	if !a.live.TimerStarted() {
		return trivia.Response{}, trivia.ErrTimerNotStarted()
	}
	if err := s.loadTeamAndItem(ctx, a, req.TeamID, req.SessionToken, req.ItemID); err != nil {
		return trivia.Response{}, err
	}

	if a.item.Type != trivia.ItemMultipleChoice || len(a.item.Choices) == 0 {
		return trivia.Response{}, trivia.ErrInvalidType("the current item does not take a choice")
	}
	if !a.live.TimerOpen(s.clock.Now(), s.grace) {
		return trivia.Response{}, trivia.ErrTimerExpired()
	}
	idx := *req.ChoiceIndex
	if idx < 0 || idx >= len(a.item.Choices) {
		return trivia.Response{}, trivia.ErrInvalidChoice()
	}

	r, err := s.store.UpsertChoice(ctx, a.event.ID, a.round.ID, a.item.ID, a.team.ID, idx, a.item.Choices[idx])
	if err != nil {
		return trivia.Response{}, fmt.Errorf("saving choice: %w", err)
	}
	return r, nil
}

// sharedRound checks the game flag and the addressed item shared by audio
// stop and labeled submissions.
func (s *Service) sharedRound(a *attempt) error {
	if !a.round.Game.ParticipantAudioStop {
		return trivia.ErrInvalidType("this round does not allow participant audio stop")
	}
	if a.live.CurrentItemOrdinal == nil {
		return trivia.ErrNotLive()
	}
	return nil
}

// StopAudio claims the shared audio for the calling team. The first team
// wins; calling again as the winner is a no-op.
func (s *Service) StopAudio(ctx context.Context, eventCode, caller string, req AudioStopRequest) (trivia.LiveState, error) {
	a, err := s.begin(ctx, "audio_stop", s.audio, eventCode, caller)
	var ls trivia.LiveState
	if err == nil {
		ls, err = s.stopAudio(ctx, a, eventCode, req)
	}
	if err := s.finish(ctx, a, err); err != nil {
		return trivia.LiveState{}, err
	}
	return ls, nil
}

func (s *Service) stopAudio(ctx context.Context, a *attempt, eventCode string, req AudioStopRequest) (trivia.LiveState, error) {
	if err := requireFields(
		[2]string{"team_id", req.TeamID},
		[2]string{"session_token", req.SessionToken},
		[2]string{"item_id", req.ItemID},
	); err != nil {
		return trivia.LiveState{}, err
	}
	if err := s.loadLive(ctx, a, eventCode); err != nil {
		return trivia.LiveState{}, err
	}
	if err := s.sharedRound(a); err != nil {
		return trivia.LiveState{}, err
	}
	if err := s.loadTeamAndItem(ctx, a, req.TeamID, req.SessionToken, req.ItemID); err != nil {
		return trivia.LiveState{}, err
	}

	if owner := a.live.AudioStoppedByTeamID; owner != nil {
		if *owner == a.team.ID {
			return a.live, nil
		}
		return trivia.LiveState{}, trivia.ErrForbidden("another team already stopped the audio")
	}
	if !a.live.AudioPlaying {
		return trivia.LiveState{}, trivia.ErrAudioNotPlaying()
	}

	won, err := s.store.ClaimAudioStop(ctx, a.event.ID, a.round.ID, *a.live.CurrentItemOrdinal, a.team.ID, a.team.Name)
	if err != nil {
		return trivia.LiveState{}, fmt.Errorf("claiming audio stop: %w", err)
	}
	ls, err := s.store.LiveState(ctx, a.event.ID)
	if err != nil {
		return trivia.LiveState{}, fmt.Errorf("reloading live state: %w", err)
	}
	if !won {
		// Lost the race, or the host moved on between the read and the claim.
		if ls.AudioStoppedByTeamID != nil && *ls.AudioStoppedByTeamID == a.team.ID {
			return ls, nil
		}
		if ls.AudioStoppedByTeamID != nil {
			return trivia.LiveState{}, trivia.ErrForbidden("another team already stopped the audio")
		}
		return trivia.LiveState{}, trivia.ErrAudioNotPlaying()
	}
	s.notifier.Notify(a.event.ID)
	return ls, nil
}

// SubmitLabeled records the stop owner's labeled answer for the current
// shared item. Only the team that stopped the audio may answer.
func (s *Service) SubmitLabeled(ctx context.Context, eventCode, caller string, req LabeledRequest) (trivia.Response, error) {
	a, err := s.begin(ctx, "labeled", s.answers, eventCode, caller)
	var r trivia.Response
	if err == nil {
		r, err = s.submitLabeled(ctx, a, eventCode, req)
	}
	if err := s.finish(ctx, a, err); err != nil {
		return trivia.Response{}, err
	}
	return r, nil
}

func (s *Service) submitLabeled(ctx context.Context, a *attempt, eventCode string, req LabeledRequest) (trivia.Response, error) {
	if err := requireFields(
		[2]string{"team_id", req.TeamID},
		[2]string{"session_token", req.SessionToken},
		[2]string{"item_id", req.ItemID},
	); err != nil {
		return trivia.Response{}, err
	}
	if len(req.Parts) == 0 {
		return trivia.Response{}, trivia.ErrValidation("parts is required").
			WithDetails(map[string]any{"fields": []string{"parts"}})
	}
	if err := s.loadLive(ctx, a, eventCode); err != nil {
		return trivia.Response{}, err
	}
	if err := s.sharedRound(a); err != nil {
		return trivia.Response{}, err
	}
	if err := s.loadTeamAndItem(ctx, a, req.TeamID, req.SessionToken, req.ItemID); err != nil {
		return trivia.Response{}, err
	}

	owner := a.live.AudioStoppedByTeamID
	switch {
	case owner == nil && a.live.AudioPlaying:
		return trivia.Response{}, trivia.ErrAudioStillPlaying()
	case owner == nil:
		return trivia.Response{}, trivia.ErrForbidden("stop the audio before answering")
	case *owner != a.team.ID:
		return trivia.Response{}, trivia.ErrForbidden("another team is answering this item")
	}
	if a.live.TimerExpired(s.clock.Now(), s.grace) {
		return trivia.Response{}, trivia.ErrTimerExpired()
	}

	parts, err := matchLabels(a.item.ExpectedLabels(), req.Parts)
	if err != nil {
		return trivia.Response{}, err
	}

	r, err := s.store.UpsertSharedParts(ctx, a.event.ID, a.round.ID, a.item.ID, a.team.ID, parts)
	if errors.Is(err, store.ErrConflict) {
		return trivia.Response{}, trivia.ErrForbidden("another team is answering this item")
	}
	if err != nil {
		return trivia.Response{}, fmt.Errorf("saving answer: %w", err)
	}
	return r, nil
}

// matchLabels pairs the submitted parts with the expected labels, ignoring
// case and surrounding space. The result follows the expected order and
// spelling. A label with a blank answer counts as missing.
func matchLabels(expected []string, submitted []trivia.AnswerPart) ([]trivia.AnswerPart, error) {
	answers := make(map[string]string, len(submitted))
	for _, p := range submitted {
		key := strings.ToLower(strings.TrimSpace(p.Label))
		if ans := strings.TrimSpace(p.Answer); ans != "" {
			answers[key] = ans
		}
	}

	parts := make([]trivia.AnswerPart, 0, len(expected))
	var missing []string
	for _, label := range expected {
		ans, ok := answers[strings.ToLower(label)]
		if !ok {
			missing = append(missing, label)
			continue
		}
		parts = append(parts, trivia.AnswerPart{Label: label, Answer: ans})
	}
	if len(missing) > 0 {
		return nil, trivia.ErrValidation("missing answers for: "+strings.Join(missing, ", ")).
			WithDetails(map[string]any{"missing_labels": missing})
	}
	return parts, nil
}
