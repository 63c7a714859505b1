package trivia

import (
	"encoding/json"
	"time"
)

// Field is a partial-update value that remembers whether it was provided.
// A provided null decodes to Set with the zero value, so *T fields can
// express "clear" separately from "leave alone".
type Field[T any] struct {
	Set   bool
	Value T
}

// Some returns a provided field.
func Some[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: v}
}

func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.Set = true
	if string(data) == "null" {
		var zero T
		f.Value = zero
		return nil
	}
	return json.Unmarshal(data, &f.Value)
}

func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.Set {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// Or returns the value when set, otherwise fallback.
func (f Field[T]) Or(fallback T) T {
	if f.Set {
		return f.Value
	}
	return fallback
}

// LivePatch is a partial update to a LiveState row. Unset fields keep their
// stored value, or the documented default when the row is first created.
type LivePatch struct {
	ActiveRoundID          Field[*string]    `json:"active_round_id"`
	CurrentItemOrdinal     Field[*int]       `json:"current_item_ordinal"`
	RevealAnswer           Field[bool]       `json:"reveal_answer"`
	RevealFunFact          Field[bool]       `json:"reveal_fun_fact"`
	WaitingMessage         Field[*string]    `json:"waiting_message"`
	WaitingShowLeaderboard Field[bool]       `json:"waiting_show_leaderboard"`
	WaitingShowNextRound   Field[bool]       `json:"waiting_show_next_round"`
	TimerStartedAt         Field[*time.Time] `json:"timer_started_at"`
	TimerDurationSeconds   Field[*int]       `json:"timer_duration_seconds"`
	AudioPlaying           Field[bool]       `json:"audio_playing"`
	AudioStoppedByTeamID   Field[*string]    `json:"-"`
	AudioStoppedByTeamName Field[*string]    `json:"-"`
	AudioStoppedAt         Field[*time.Time] `json:"-"`
}

// Empty reports whether no field is set.
func (p LivePatch) Empty() bool {
	return !p.ActiveRoundID.Set && !p.CurrentItemOrdinal.Set &&
		!p.RevealAnswer.Set && !p.RevealFunFact.Set &&
		!p.WaitingMessage.Set && !p.WaitingShowLeaderboard.Set &&
		!p.WaitingShowNextRound.Set && !p.TimerStartedAt.Set &&
		!p.TimerDurationSeconds.Set && !p.AudioPlaying.Set &&
		!p.AudioStoppedByTeamID.Set && !p.AudioStoppedByTeamName.Set &&
		!p.AudioStoppedAt.Set
}

// ClearItemState sets every per-item field back to its idle value: reveals,
// timer, audio and the audio stop owner.
func (p *LivePatch) ClearItemState() {
	p.RevealAnswer = Some(false)
	p.RevealFunFact = Some(false)
	p.TimerStartedAt = Some[*time.Time](nil)
	p.TimerDurationSeconds = Some[*int](nil)
	p.AudioPlaying = Some(false)
	p.AudioStoppedByTeamID = Some[*string](nil)
	p.AudioStoppedByTeamName = Some[*string](nil)
	p.AudioStoppedAt = Some[*time.Time](nil)
}

// ClearUnsetItemState is ClearItemState for the per-item fields p leaves
// unset; fields the caller provided keep their values.
func (p *LivePatch) ClearUnsetItemState() {
	var idle LivePatch
	idle.ClearItemState()
	if !p.RevealAnswer.Set {
		p.RevealAnswer = idle.RevealAnswer
	}
	if !p.RevealFunFact.Set {
		p.RevealFunFact = idle.RevealFunFact
	}
	if !p.TimerStartedAt.Set {
		p.TimerStartedAt = idle.TimerStartedAt
	}
	if !p.TimerDurationSeconds.Set {
		p.TimerDurationSeconds = idle.TimerDurationSeconds
	}
	if !p.AudioPlaying.Set {
		p.AudioPlaying = idle.AudioPlaying
	}
	if !p.AudioStoppedByTeamID.Set {
		p.AudioStoppedByTeamID = idle.AudioStoppedByTeamID
		p.AudioStoppedByTeamName = idle.AudioStoppedByTeamName
		p.AudioStoppedAt = idle.AudioStoppedAt
	}
}

// Moves reports whether applying p to cur points live state at a different
// item. Changing the round without an ordinal leaves no item selected.
func (p LivePatch) Moves(cur *LiveState) bool {
	if !p.ActiveRoundID.Set && !p.CurrentItemOrdinal.Set {
		return false
	}
	if cur == nil {
		return true
	}
	round, ordinal := cur.ActiveRoundID, cur.CurrentItemOrdinal
	if p.ActiveRoundID.Set {
		if !equalPtr(p.ActiveRoundID.Value, round) {
			ordinal = nil
		}
		round = p.ActiveRoundID.Value
	}
	if p.CurrentItemOrdinal.Set {
		ordinal = p.CurrentItemOrdinal.Value
	}
	return !equalPtr(round, cur.ActiveRoundID) || !equalPtr(ordinal, cur.CurrentItemOrdinal)
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
