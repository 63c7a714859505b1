// Package trivia defines the core domain types shared by the live event services.
// It has zero external dependencies, everything here is pure Go.
package trivia

import (
	"strings"
	"time"
)

type EventStatus string

const (
	EventPlanned   EventStatus = "planned"
	EventLive      EventStatus = "live"
	EventCompleted EventStatus = "completed"
	EventCanceled  EventStatus = "canceled"
)

// Closed reports whether participants are locked out of the event.
func (s EventStatus) Closed() bool {
	return s == EventCompleted || s == EventCanceled
}

type RoundStatus string

const (
	RoundPlanned   RoundStatus = "planned"
	RoundLive      RoundStatus = "live"
	RoundLocked    RoundStatus = "locked"
	RoundCompleted RoundStatus = "completed"
	RoundCanceled  RoundStatus = "canceled"
)

type ItemType string

const (
	ItemMultipleChoice ItemType = "multiple_choice"
	ItemText           ItemType = "text"
	ItemAudio          ItemType = "audio"
	ItemImage          ItemType = "image"
)

type Event struct {
	ID           string
	PublicCode   string
	Title        string
	Status       EventStatus
	StartsAt     *time.Time
	LocationName string
	HostUserID   string
}

// Game is the template family an edition belongs to. Its flags drive
// presentation and which shared interactions a round allows.
type Game struct {
	ID                   string
	Name                 string
	HideTheme            bool
	ParticipantAudioStop bool
}

type Round struct {
	ID           string
	EventID      string
	RoundNumber  int
	Label        string
	Status       RoundStatus
	EditionID    string
	TimerSeconds int
	Game         Game
}

// DisplayLabel is the label shown to participants. Games that hide their
// theme show the game name instead.
func (r Round) DisplayLabel() string {
	if r.Game.HideTheme && r.Game.Name != "" {
		return r.Game.Name
	}
	return r.Label
}

type AnswerPart struct {
	Label  string `json:"label"`
	Answer string `json:"answer"`
}

// Item is an edition item placed in a round, with the round's overrides
// already layered over the template content.
type Item struct {
	ID             string
	RoundItemID    string
	RoundID        string
	Ordinal        int
	Type           ItemType
	Prompt         string
	Choices        []string
	Answer         string
	AnswerA        string
	AnswerB        string
	AnswerParts    []AnswerPart
	FunFact        string
	MediaType      string
	MediaKey       string
	AudioAnswerKey string
}

// ExpectedLabels lists the labels a labeled submission must cover.
func (it Item) ExpectedLabels() []string {
	if len(it.AnswerParts) > 0 {
		labels := make([]string, 0, len(it.AnswerParts))
		for _, p := range it.AnswerParts {
			if l := strings.TrimSpace(p.Label); l != "" {
				labels = append(labels, l)
			}
		}
		if len(labels) > 0 {
			return labels
		}
	}
	return []string{"Answer A", "Answer B"}
}

// IsImage reports whether the item is presented as a picture.
func (it Item) IsImage() bool {
	if it.Type == ItemImage {
		return true
	}
	return SniffMediaKind(it.MediaType, it.MediaKey, nil) == MediaImage
}

type Team struct {
	ID               string
	EventID          string
	Name             string
	Code             string
	Placeholder      bool
	SessionToken     string
	SessionUpdatedAt *time.Time
}

// LiveState is the single authoritative row describing what an event is
// currently presenting.
type LiveState struct {
	EventID                string
	ActiveRoundID          *string
	CurrentItemOrdinal     *int
	RevealAnswer           bool
	RevealFunFact          bool
	WaitingMessage         *string
	WaitingShowLeaderboard bool
	WaitingShowNextRound   bool
	TimerStartedAt         *time.Time
	TimerDurationSeconds   *int
	AudioPlaying           bool
	AudioStoppedByTeamID   *string
	AudioStoppedByTeamName *string
	AudioStoppedAt         *time.Time
	UpdatedAt              time.Time
}

// TimerStarted reports whether both timer fields are present.
func (ls LiveState) TimerStarted() bool {
	return ls.TimerStartedAt != nil && ls.TimerDurationSeconds != nil
}

// TimerDeadline is the nominal end of the timer, without grace.
func (ls LiveState) TimerDeadline() time.Time {
	if !ls.TimerStarted() {
		return time.Time{}
	}
	return ls.TimerStartedAt.Add(time.Duration(*ls.TimerDurationSeconds) * time.Second)
}

// TimerOpen reports whether a submission at now still falls in the window.
func (ls LiveState) TimerOpen(now time.Time, grace time.Duration) bool {
	if !ls.TimerStarted() {
		return false
	}
	return !now.After(ls.TimerDeadline().Add(grace))
}

// DefaultGrace absorbs request latency and small clock skew at the end of a
// timer.
const DefaultGrace = 10 * time.Second

// TimerExpired reports whether the window, grace included, has closed.
func (ls LiveState) TimerExpired(now time.Time, grace time.Duration) bool {
	return ls.TimerStarted() && !ls.TimerOpen(now, grace)
}

type Response struct {
	ID          string
	EventID     string
	RoundID     string
	ItemID      string
	TeamID      string
	ChoiceIndex *int
	ChoiceText  string
	Parts       []AnswerPart
	Shared      bool
	IsCorrect   *bool
	MarkedAt    *time.Time
	MarkedBy    string
	SubmittedAt time.Time
	UpdatedAt   time.Time
	Deleted     bool
	DeletedAt   *time.Time
}

type Standing struct {
	TeamID string
	Name   string
	Score  int
}

// NormalizeCode upper-cases and trims a public event code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NameKey is the case-insensitive identity of a team name.
func NameKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
