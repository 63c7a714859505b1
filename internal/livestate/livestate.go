// Package livestate owns the host-driven transitions of an event's live
// state. Each transition is a single store write; validation happens before
// it against the event's rounds and items.
//
// Live state assumes one host drives an event at a time. Two hosts racing
// the same event can interleave; that is accepted, not defended against.
package livestate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/playperu/livetrivia/internal/store"
	"github.com/playperu/livetrivia/internal/trivia"
)

// Notifier is told about every committed change so open streams can refresh
// without waiting for their next tick.
type Notifier interface {
	Notify(eventID string)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string) {}

type Service struct {
	store    *store.Store
	clock    clockwork.Clock
	notifier Notifier
}

func New(s *store.Store, clock clockwork.Clock, n Notifier) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if n == nil {
		n = nopNotifier{}
	}
	return &Service{store: s, clock: clock, notifier: n}
}

// Get returns the event's live state, or nil when it has never gone live.
func (s *Service) Get(ctx context.Context, eventID string) (*trivia.LiveState, error) {
	ls, err := s.store.LiveState(ctx, eventID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading live state: %w", err)
	}
	return &ls, nil
}

// Update applies a host's partial update. A new active round must belong to
// the event; a given ordinal must address an item of the resulting round.
// Moving to another item starts it clean: reveals, timer, audio and the stop
// owner reset unless the patch sets them, in the same write.
func (s *Service) Update(ctx context.Context, eventID string, p trivia.LivePatch) (trivia.LiveState, error) {
	// The stop owner is only ever written by the audio stop claim and resets.
	p.AudioStoppedByTeamID = trivia.Field[*string]{}
	p.AudioStoppedByTeamName = trivia.Field[*string]{}
	p.AudioStoppedAt = trivia.Field[*time.Time]{}

	cur, err := s.Get(ctx, eventID)
	if err != nil {
		return trivia.LiveState{}, err
	}

	if p.TimerDurationSeconds.Set && p.TimerDurationSeconds.Value != nil && *p.TimerDurationSeconds.Value <= 0 {
		return trivia.LiveState{}, trivia.ErrValidation("timer_duration_seconds must be positive").
			WithDetails(map[string]any{"field": "timer_duration_seconds"})
	}

	if p.CurrentItemOrdinal.Set && p.CurrentItemOrdinal.Value != nil {
		roundID, err := s.targetRound(ctx, eventID, cur, p)
		if err != nil {
			return trivia.LiveState{}, err
		}
		if roundID == "" {
			return trivia.LiveState{}, trivia.ErrValidation("current_item_ordinal requires an active round").
				WithDetails(map[string]any{"field": "current_item_ordinal"})
		}
		if err := s.checkOrdinal(ctx, roundID, *p.CurrentItemOrdinal.Value); err != nil {
			return trivia.LiveState{}, err
		}
	} else if p.ActiveRoundID.Set && p.ActiveRoundID.Value != nil {
		if _, err := s.round(ctx, eventID, *p.ActiveRoundID.Value); err != nil {
			return trivia.LiveState{}, err
		}
	}

	if p.Moves(cur) {
		p.ClearUnsetItemState()
	}

	ls, err := s.store.UpsertLiveState(ctx, eventID, p)
	if err != nil {
		return trivia.LiveState{}, fmt.Errorf("updating live state: %w", err)
	}
	s.notifier.Notify(eventID)
	return ls, nil
}

// targetRound is the round an ordinal in p refers to: the one p sets, or the
// currently active one.
func (s *Service) targetRound(ctx context.Context, eventID string, cur *trivia.LiveState, p trivia.LivePatch) (string, error) {
	if p.ActiveRoundID.Set {
		if p.ActiveRoundID.Value == nil {
			return "", nil
		}
		r, err := s.round(ctx, eventID, *p.ActiveRoundID.Value)
		if err != nil {
			return "", err
		}
		return r.ID, nil
	}
	if cur == nil || cur.ActiveRoundID == nil {
		return "", nil
	}
	return *cur.ActiveRoundID, nil
}

func (s *Service) round(ctx context.Context, eventID, roundID string) (trivia.Round, error) {
	r, err := s.store.Round(ctx, eventID, roundID)
	if errors.Is(err, store.ErrNotFound) {
		return r, trivia.ErrNotFound("round not found")
	}
	if err != nil {
		return r, fmt.Errorf("loading round: %w", err)
	}
	return r, nil
}

func (s *Service) checkOrdinal(ctx context.Context, roundID string, ordinal int) error {
	_, err := s.store.ItemAt(ctx, roundID, ordinal)
	if errors.Is(err, store.ErrNotFound) {
		return trivia.ErrValidation("no item at that ordinal in the round").
			WithDetails(map[string]any{"field": "current_item_ordinal", "ordinal": ordinal})
	}
	if err != nil {
		return fmt.Errorf("loading item: %w", err)
	}
	return nil
}

// Advance moves to (roundID, ordinal) and returns the item to a clean state
// in the same write, so reveals never carry over.
func (s *Service) Advance(ctx context.Context, eventID, roundID string, ordinal int) (trivia.LiveState, error) {
	if _, err := s.round(ctx, eventID, roundID); err != nil {
		return trivia.LiveState{}, err
	}
	if err := s.checkOrdinal(ctx, roundID, ordinal); err != nil {
		return trivia.LiveState{}, err
	}

	var p trivia.LivePatch
	p.ClearItemState()
	p.ActiveRoundID = trivia.Some(&roundID)
	p.CurrentItemOrdinal = trivia.Some(&ordinal)
	ls, err := s.store.UpsertLiveState(ctx, eventID, p)
	if err != nil {
		return trivia.LiveState{}, fmt.Errorf("advancing: %w", err)
	}
	s.notifier.Notify(eventID)
	return ls, nil
}

// StartTimer anchors the timer at the server's clock. Without an explicit
// duration the active round's timer applies.
func (s *Service) StartTimer(ctx context.Context, eventID string, duration *int) (trivia.LiveState, error) {
	cur, err := s.Get(ctx, eventID)
	if err != nil {
		return trivia.LiveState{}, err
	}
	if cur == nil || cur.ActiveRoundID == nil || cur.CurrentItemOrdinal == nil {
		return trivia.LiveState{}, trivia.ErrNotLive()
	}

	secs := 0
	if duration != nil {
		secs = *duration
	} else {
		r, err := s.round(ctx, eventID, *cur.ActiveRoundID)
		if err != nil {
			return trivia.LiveState{}, err
		}
		secs = r.TimerSeconds
	}
	if secs <= 0 {
		return trivia.LiveState{}, trivia.ErrValidation("duration_seconds must be positive").
			WithDetails(map[string]any{"field": "duration_seconds"})
	}

	now := s.clock.Now().UTC()
	ls, err := s.store.UpsertLiveState(ctx, eventID, trivia.LivePatch{
		TimerStartedAt:       trivia.Some(&now),
		TimerDurationSeconds: trivia.Some(&secs),
	})
	if err != nil {
		return trivia.LiveState{}, fmt.Errorf("starting timer: %w", err)
	}
	s.notifier.Notify(eventID)
	return ls, nil
}

// currentItem resolves the item addressed by live state.
func (s *Service) currentItem(ctx context.Context, eventID string) (trivia.LiveState, trivia.Item, error) {
	cur, err := s.Get(ctx, eventID)
	if err != nil {
		return trivia.LiveState{}, trivia.Item{}, err
	}
	if cur == nil || cur.ActiveRoundID == nil || cur.CurrentItemOrdinal == nil {
		return trivia.LiveState{}, trivia.Item{}, trivia.ErrNotLive()
	}
	it, err := s.store.ItemAt(ctx, *cur.ActiveRoundID, *cur.CurrentItemOrdinal)
	if errors.Is(err, store.ErrNotFound) {
		return *cur, it, trivia.ErrNotFound("current item not found")
	}
	if err != nil {
		return *cur, it, fmt.Errorf("loading current item: %w", err)
	}
	return *cur, it, nil
}

// ResetItem returns the current item to idle: reveals, timer, audio and the
// audio stop owner are cleared and the item's responses are soft-deleted.
func (s *Service) ResetItem(ctx context.Context, eventID string) (trivia.LiveState, int64, error) {
	cur, it, err := s.currentItem(ctx, eventID)
	if err != nil {
		return trivia.LiveState{}, 0, err
	}
	ls, cleared, err := s.store.ResetItem(ctx, eventID, *cur.ActiveRoundID, it.ID)
	if err != nil {
		return trivia.LiveState{}, 0, fmt.Errorf("resetting item: %w", err)
	}
	s.notifier.Notify(eventID)
	return ls, cleared, nil
}

// ClearResponses soft-deletes the current item's responses and leaves live
// state alone.
func (s *Service) ClearResponses(ctx context.Context, eventID string) (int64, error) {
	cur, it, err := s.currentItem(ctx, eventID)
	if err != nil {
		return 0, err
	}
	n, err := s.store.ClearItemResponses(ctx, *cur.ActiveRoundID, it.ID)
	if err != nil {
		return 0, fmt.Errorf("clearing responses: %w", err)
	}
	s.notifier.Notify(eventID)
	return n, nil
}

// SetRoundStatus moves a round through its lifecycle. Only a live round
// accepts submissions.
func (s *Service) SetRoundStatus(ctx context.Context, eventID, roundID string, status trivia.RoundStatus) (trivia.Round, error) {
	switch status {
	case trivia.RoundPlanned, trivia.RoundLive, trivia.RoundLocked, trivia.RoundCompleted, trivia.RoundCanceled:
	default:
		return trivia.Round{}, trivia.ErrValidation("unknown round status").
			WithDetails(map[string]any{"field": "status", "value": string(status)})
	}
	err := s.store.SetRoundStatus(ctx, eventID, roundID, status)
	if errors.Is(err, store.ErrNotFound) {
		return trivia.Round{}, trivia.ErrNotFound("round not found")
	}
	if err != nil {
		return trivia.Round{}, fmt.Errorf("setting round status: %w", err)
	}
	s.notifier.Notify(eventID)
	return s.round(ctx, eventID, roundID)
}

// CurrentResponses lists the live responses to the current item, for
// scoring.
func (s *Service) CurrentResponses(ctx context.Context, eventID string) ([]trivia.Response, error) {
	cur, it, err := s.currentItem(ctx, eventID)
	if err != nil {
		return nil, err
	}
	rs, err := s.store.ItemResponses(ctx, *cur.ActiveRoundID, it.ID)
	if err != nil {
		return nil, fmt.Errorf("loading responses: %w", err)
	}
	return rs, nil
}

// Mark scores one response. A nil correct clears the mark.
func (s *Service) Mark(ctx context.Context, eventID, responseID string, correct *bool, markedBy string) (trivia.Response, error) {
	r, err := s.store.MarkResponse(ctx, eventID, responseID, correct, markedBy)
	if errors.Is(err, store.ErrNotFound) {
		return r, trivia.ErrNotFound("response not found")
	}
	if err != nil {
		return r, fmt.Errorf("marking response: %w", err)
	}
	s.notifier.Notify(eventID)
	return r, nil
}
