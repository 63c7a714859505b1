package readmodel

import (
	"time"

	"github.com/playperu/livetrivia/internal/trivia"
)

// Payload is the public snapshot of an event. It never carries the event's
// internal id or any team code, and nothing in it depends on the time it was
// built except the one-way switch to showing response counts.
type Payload struct {
	Event          EventInfo      `json:"event"`
	View           View           `json:"view"`
	Rounds         []RoundInfo    `json:"rounds"`
	Live           *LiveInfo      `json:"live"`
	ActiveRound    *RoundInfo     `json:"active_round,omitempty"`
	CurrentItem    *ItemInfo      `json:"current_item,omitempty"`
	VisualItems    []ItemInfo     `json:"visual_items,omitempty"`
	ResponseCounts []int          `json:"response_counts,omitempty"`
	Teams          []TeamInfo     `json:"teams,omitempty"`
	Leaderboard    []StandingInfo `json:"leaderboard,omitempty"`
}

type EventInfo struct {
	PublicCode   string             `json:"public_code"`
	Title        string             `json:"title"`
	Status       trivia.EventStatus `json:"status"`
	StartsAt     *time.Time         `json:"starts_at"`
	LocationName string             `json:"location_name"`
}

type RoundInfo struct {
	ID                   string             `json:"id"`
	RoundNumber          int                `json:"round_number"`
	Label                string             `json:"label"`
	Status               trivia.RoundStatus `json:"status"`
	TimerSeconds         int                `json:"timer_seconds"`
	ParticipantAudioStop bool               `json:"participant_audio_stop"`
}

type LiveInfo struct {
	ActiveRoundID          *string    `json:"active_round_id"`
	CurrentItemOrdinal     *int       `json:"current_item_ordinal"`
	RevealAnswer           bool       `json:"reveal_answer"`
	RevealFunFact          bool       `json:"reveal_fun_fact"`
	WaitingMessage         *string    `json:"waiting_message"`
	WaitingShowLeaderboard bool       `json:"waiting_show_leaderboard"`
	WaitingShowNextRound   bool       `json:"waiting_show_next_round"`
	TimerStartedAt         *time.Time `json:"timer_started_at"`
	TimerDurationSeconds   *int       `json:"timer_duration_seconds"`
	AudioPlaying           bool       `json:"audio_playing"`
	AudioStoppedByTeamID   *string    `json:"audio_stopped_by_team_id"`
	AudioStoppedByTeamName *string    `json:"audio_stopped_by_team_name"`
	AudioStoppedAt         *time.Time `json:"audio_stopped_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// ItemInfo is an item as participants may see it. Answer fields are only
// filled while the matching reveal flag is on.
type ItemInfo struct {
	ID             string              `json:"id"`
	Ordinal        int                 `json:"ordinal"`
	Type           trivia.ItemType     `json:"type"`
	Prompt         string              `json:"prompt"`
	Choices        []string            `json:"choices,omitempty"`
	MediaType      string              `json:"media_type,omitempty"`
	MediaKey       string              `json:"media_key,omitempty"`
	MediaKind      trivia.MediaKind    `json:"media_kind,omitempty"`
	AnswerLabels   []string            `json:"answer_labels,omitempty"`
	Answer         string              `json:"answer,omitempty"`
	AnswerA        string              `json:"answer_a,omitempty"`
	AnswerB        string              `json:"answer_b,omitempty"`
	AnswerParts    []trivia.AnswerPart `json:"answer_parts_json,omitempty"`
	AudioAnswerKey string              `json:"audio_answer_key,omitempty"`
	FunFact        string              `json:"fun_fact,omitempty"`
}

type TeamInfo struct {
	Name   string `json:"name"`
	Joined bool   `json:"joined"`
}

type StandingInfo struct {
	Rank     int    `json:"rank"`
	TeamName string `json:"team_name"`
	Score    int    `json:"score"`
}
