// Package readmodel derives the public event payload from stored state. It
// never writes. Answer redaction is applied here, for every view, so no
// client ever receives an answer before the host reveals it.
package readmodel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/playperu/livetrivia/internal/store"
	"github.com/playperu/livetrivia/internal/trivia"
)

type View string

const (
	ViewPlay        View = "play"
	ViewLeaderboard View = "leaderboard"
)

// ParseView maps a query value to a View; empty means play.
func ParseView(v string) (View, error) {
	switch View(v) {
	case "", ViewPlay:
		return ViewPlay, nil
	case ViewLeaderboard:
		return ViewLeaderboard, nil
	}
	return "", trivia.ErrValidation("view must be play or leaderboard").
		WithDetails(map[string]any{"field": "view"})
}

// Source is the read side of the store.
type Source interface {
	EventByCode(ctx context.Context, code string) (trivia.Event, error)
	Rounds(ctx context.Context, eventID string) ([]trivia.Round, error)
	LiveState(ctx context.Context, eventID string) (trivia.LiveState, error)
	RoundItems(ctx context.Context, roundID string) ([]trivia.Item, error)
	Teams(ctx context.Context, eventID string) ([]trivia.Team, error)
	Leaderboard(ctx context.Context, eventID string) ([]trivia.Standing, error)
	ChoiceCounts(ctx context.Context, roundID, itemID string) (map[int]int, error)
}

type Builder struct {
	src   Source
	clock clockwork.Clock
	grace time.Duration
}

// New returns a Builder. grace is the allowance past the timer deadline
// before response counts are shown; it matches the submission grace, so a
// negative value means trivia.DefaultGrace there too.
func New(src Source, clock clockwork.Clock, grace time.Duration) *Builder {
	if grace < 0 {
		grace = trivia.DefaultGrace
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Builder{src: src, clock: clock, grace: grace}
}

// Build resolves the event by public code and derives its payload for view.
func (b *Builder) Build(ctx context.Context, code string, view View) (Payload, error) {
	ev, err := b.src.EventByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return Payload{}, trivia.ErrNotFound("event not found")
	}
	if err != nil {
		return Payload{}, fmt.Errorf("loading event: %w", err)
	}

	p := Payload{
		Event: EventInfo{
			PublicCode:   ev.PublicCode,
			Title:        ev.Title,
			Status:       ev.Status,
			StartsAt:     ev.StartsAt,
			LocationName: ev.LocationName,
		},
		View:   view,
		Rounds: []RoundInfo{},
	}

	rounds, err := b.src.Rounds(ctx, ev.ID)
	if err != nil {
		return Payload{}, fmt.Errorf("loading rounds: %w", err)
	}
	for _, r := range rounds {
		p.Rounds = append(p.Rounds, NewRoundInfo(r))
	}

	ls, err := b.src.LiveState(ctx, ev.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// Never gone live: no live block and nothing answer-gated.
		return p, b.addLeaderboard(ctx, ev.ID, &p, view == ViewLeaderboard)
	case err != nil:
		return Payload{}, fmt.Errorf("loading live state: %w", err)
	}
	p.Live = NewLiveInfo(ls)

	showBoard := view == ViewLeaderboard || ls.WaitingShowLeaderboard
	if err := b.addLeaderboard(ctx, ev.ID, &p, showBoard); err != nil {
		return Payload{}, err
	}

	active := findRound(rounds, ls.ActiveRoundID)
	if active == nil {
		return p, nil
	}
	ri := NewRoundInfo(*active)
	p.ActiveRound = &ri

	if view == ViewLeaderboard {
		return p, nil
	}

	teams, err := b.src.Teams(ctx, ev.ID)
	if err != nil {
		return Payload{}, fmt.Errorf("loading teams: %w", err)
	}
	p.Teams = teamInfos(teams)

	items, err := b.src.RoundItems(ctx, active.ID)
	if err != nil {
		return Payload{}, fmt.Errorf("loading items: %w", err)
	}

	current := findItem(items, ls.CurrentItemOrdinal)
	if current != nil {
		ci := itemInfo(*current, ls, true)
		p.CurrentItem = &ci
	}

	if allImages(items) {
		p.VisualItems = make([]ItemInfo, 0, len(items))
		for _, it := range items {
			p.VisualItems = append(p.VisualItems, itemInfo(it, ls, current != nil && it.ID == current.ID))
		}
	}

	if current != nil && current.Type == trivia.ItemMultipleChoice && ls.TimerExpired(b.clock.Now(), b.grace) {
		counts, err := b.src.ChoiceCounts(ctx, active.ID, current.ID)
		if err != nil {
			return Payload{}, fmt.Errorf("counting responses: %w", err)
		}
		p.ResponseCounts = make([]int, len(current.Choices))
		for i := range p.ResponseCounts {
			p.ResponseCounts[i] = counts[i]
		}
	}

	return p, nil
}

func (b *Builder) addLeaderboard(ctx context.Context, eventID string, p *Payload, show bool) error {
	if !show {
		return nil
	}
	standings, err := b.src.Leaderboard(ctx, eventID)
	if err != nil {
		return fmt.Errorf("loading leaderboard: %w", err)
	}
	p.Leaderboard = make([]StandingInfo, 0, len(standings))
	rank := 0
	for i, st := range standings {
		// Ties share a rank.
		if i == 0 || st.Score != standings[i-1].Score {
			rank = i + 1
		}
		p.Leaderboard = append(p.Leaderboard, StandingInfo{Rank: rank, TeamName: st.Name, Score: st.Score})
	}
	return nil
}

// NewRoundInfo is the participant-facing form of a round.
func NewRoundInfo(r trivia.Round) RoundInfo {
	return RoundInfo{
		ID:                   r.ID,
		RoundNumber:          r.RoundNumber,
		Label:                r.DisplayLabel(),
		Status:               r.Status,
		TimerSeconds:         r.TimerSeconds,
		ParticipantAudioStop: r.Game.ParticipantAudioStop,
	}
}

// NewLiveInfo is the JSON form of a live state row.
func NewLiveInfo(ls trivia.LiveState) *LiveInfo {
	return &LiveInfo{
		ActiveRoundID:          ls.ActiveRoundID,
		CurrentItemOrdinal:     ls.CurrentItemOrdinal,
		RevealAnswer:           ls.RevealAnswer,
		RevealFunFact:          ls.RevealFunFact,
		WaitingMessage:         ls.WaitingMessage,
		WaitingShowLeaderboard: ls.WaitingShowLeaderboard,
		WaitingShowNextRound:   ls.WaitingShowNextRound,
		TimerStartedAt:         ls.TimerStartedAt,
		TimerDurationSeconds:   ls.TimerDurationSeconds,
		AudioPlaying:           ls.AudioPlaying,
		AudioStoppedByTeamID:   ls.AudioStoppedByTeamID,
		AudioStoppedByTeamName: ls.AudioStoppedByTeamName,
		AudioStoppedAt:         ls.AudioStoppedAt,
		UpdatedAt:              ls.UpdatedAt,
	}
}

// itemInfo copies the public fields of it. Answers are only copied for the
// current item while live state reveals them.
func itemInfo(it trivia.Item, ls trivia.LiveState, isCurrent bool) ItemInfo {
	info := ItemInfo{
		ID:        it.ID,
		Ordinal:   it.Ordinal,
		Type:      it.Type,
		Prompt:    it.Prompt,
		Choices:   it.Choices,
		MediaType: it.MediaType,
		MediaKey:  it.MediaKey,
		MediaKind: trivia.SniffMediaKind(it.MediaType, it.MediaKey, nil),
	}
	if it.Type != trivia.ItemMultipleChoice && (len(it.AnswerParts) > 0 || it.Type == trivia.ItemAudio) {
		info.AnswerLabels = it.ExpectedLabels()
	}
	if isCurrent && ls.RevealAnswer {
		info.Answer = it.Answer
		info.AnswerA = it.AnswerA
		info.AnswerB = it.AnswerB
		info.AnswerParts = it.AnswerParts
		info.AudioAnswerKey = it.AudioAnswerKey
	}
	if isCurrent && ls.RevealFunFact {
		info.FunFact = it.FunFact
	}
	return info
}

func teamInfos(teams []trivia.Team) []TeamInfo {
	out := make([]TeamInfo, 0, len(teams))
	for _, t := range teams {
		if t.Placeholder {
			continue
		}
		out = append(out, TeamInfo{Name: t.Name, Joined: t.SessionToken != ""})
	}
	return out
}

func findRound(rounds []trivia.Round, id *string) *trivia.Round {
	if id == nil {
		return nil
	}
	for i := range rounds {
		if rounds[i].ID == *id {
			return &rounds[i]
		}
	}
	return nil
}

func findItem(items []trivia.Item, ordinal *int) *trivia.Item {
	if ordinal == nil {
		return nil
	}
	for i := range items {
		if items[i].Ordinal == *ordinal {
			return &items[i]
		}
	}
	return nil
}

// allImages reports whether a round is purely visual.
func allImages(items []trivia.Item) bool {
	if len(items) == 0 {
		return false
	}
	for _, it := range items {
		if !it.IsImage() {
			return false
		}
	}
	return true
}
