package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/playperu/livetrivia/internal/database"
	"github.com/playperu/livetrivia/internal/trivia"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const liveColumns = `event_id, active_round_id, current_item_ordinal, reveal_answer, reveal_fun_fact,
	waiting_message, waiting_show_leaderboard, waiting_show_next_round,
	timer_started_at, timer_duration_seconds, audio_playing,
	participant_audio_stopped_by_team_id, participant_audio_stopped_by_team_name,
	participant_audio_stopped_at, updated_at`

func scanLiveState(row scanner) (trivia.LiveState, error) {
	var ls trivia.LiveState
	var roundID, message, stoppedByID, stoppedByName sql.NullString
	var timerStarted, stoppedAt sql.NullString
	var ordinal, duration sql.NullInt64
	var revealAnswer, revealFunFact, showLeaderboard, showNextRound, audio int
	var updated string
	err := row.Scan(&ls.EventID, &roundID, &ordinal, &revealAnswer, &revealFunFact,
		&message, &showLeaderboard, &showNextRound,
		&timerStarted, &duration, &audio,
		&stoppedByID, &stoppedByName, &stoppedAt, &updated)
	if err != nil {
		return ls, err
	}
	ls.ActiveRoundID = stringPtr(roundID)
	ls.CurrentItemOrdinal = intPtr(ordinal)
	ls.RevealAnswer = revealAnswer == 1
	ls.RevealFunFact = revealFunFact == 1
	ls.WaitingMessage = stringPtr(message)
	ls.WaitingShowLeaderboard = showLeaderboard == 1
	ls.WaitingShowNextRound = showNextRound == 1
	ls.TimerDurationSeconds = intPtr(duration)
	ls.AudioPlaying = audio == 1
	ls.AudioStoppedByTeamID = stringPtr(stoppedByID)
	ls.AudioStoppedByTeamName = stringPtr(stoppedByName)
	if ls.TimerStartedAt, err = timePtr(timerStarted); err != nil {
		return ls, fmt.Errorf("parsing timer_started_at: %w", err)
	}
	if ls.AudioStoppedAt, err = timePtr(stoppedAt); err != nil {
		return ls, fmt.Errorf("parsing participant_audio_stopped_at: %w", err)
	}
	if ls.UpdatedAt, err = parseTime(updated); err != nil {
		return ls, fmt.Errorf("parsing updated_at: %w", err)
	}
	return ls, nil
}

// LiveState returns the event's live state row, or ErrNotFound when the
// event has never gone live.
func (s *Store) LiveState(ctx context.Context, eventID string) (trivia.LiveState, error) {
	ls, err := scanLiveState(s.db.QueryRowContext(ctx,
		`SELECT `+liveColumns+` FROM event_live_state WHERE event_id = ?`, eventID))
	if errors.Is(err, sql.ErrNoRows) {
		return ls, ErrNotFound
	}
	return ls, err
}

// liveField is one patchable column: whether it was provided, and the value
// to store (or the first-write default when it was not).
type liveField struct {
	column string
	set    bool
	value  any
}

func liveFields(p trivia.LivePatch) []liveField {
	return []liveField{
		{"active_round_id", p.ActiveRoundID.Set, nullString(p.ActiveRoundID.Value)},
		{"current_item_ordinal", p.CurrentItemOrdinal.Set, nullInt(p.CurrentItemOrdinal.Value)},
		{"reveal_answer", p.RevealAnswer.Set, boolInt(p.RevealAnswer.Value)},
		{"reveal_fun_fact", p.RevealFunFact.Set, boolInt(p.RevealFunFact.Value)},
		{"waiting_message", p.WaitingMessage.Set, nullString(p.WaitingMessage.Value)},
		{"waiting_show_leaderboard", p.WaitingShowLeaderboard.Set, boolInt(p.WaitingShowLeaderboard.Value)},
		{"waiting_show_next_round", p.WaitingShowNextRound.Set, boolInt(p.WaitingShowNextRound.Or(true))},
		{"timer_started_at", p.TimerStartedAt.Set, nullTime(p.TimerStartedAt.Value)},
		{"timer_duration_seconds", p.TimerDurationSeconds.Set, nullInt(p.TimerDurationSeconds.Value)},
		{"audio_playing", p.AudioPlaying.Set, boolInt(p.AudioPlaying.Value)},
		{"participant_audio_stopped_by_team_id", p.AudioStoppedByTeamID.Set, nullString(p.AudioStoppedByTeamID.Value)},
		{"participant_audio_stopped_by_team_name", p.AudioStoppedByTeamName.Set, nullString(p.AudioStoppedByTeamName.Value)},
		{"participant_audio_stopped_at", p.AudioStoppedAt.Set, nullTime(p.AudioStoppedAt.Value)},
	}
}

// upsertLiveSQL is built once from the column list. Insert values come first,
// followed by one presence flag per column for the DO UPDATE branch. Every
// SET expression reads the row as it was before the statement, so changing
// the active round without an ordinal clears the ordinal in the same write.
var upsertLiveSQL = func() string {
	fields := liveFields(trivia.LivePatch{})
	cols := make([]string, 0, len(fields)+2)
	marks := make([]string, 0, len(fields)+2)
	sets := make([]string, 0, len(fields)+1)
	cols = append(cols, "event_id")
	marks = append(marks, "?")
	for _, f := range fields {
		cols = append(cols, f.column)
		marks = append(marks, "?")
		if f.column == "current_item_ordinal" {
			sets = append(sets, `current_item_ordinal = CASE
				WHEN ? THEN excluded.current_item_ordinal
				WHEN ? AND excluded.active_round_id IS NOT event_live_state.active_round_id THEN NULL
				ELSE event_live_state.current_item_ordinal END`)
			continue
		}
		sets = append(sets, fmt.Sprintf("%[1]s = CASE WHEN ? THEN excluded.%[1]s ELSE event_live_state.%[1]s END", f.column))
	}
	cols = append(cols, "updated_at")
	marks = append(marks, "?")
	sets = append(sets, "updated_at = excluded.updated_at")

	return `INSERT INTO event_live_state (` + strings.Join(cols, ", ") + `)
		VALUES (` + strings.Join(marks, ", ") + `)
		ON CONFLICT(event_id) DO UPDATE SET ` + strings.Join(sets, ",\n") + `
		RETURNING ` + liveColumns
}()

func upsertLiveState(ctx context.Context, q querier, eventID string, p trivia.LivePatch, now time.Time) (trivia.LiveState, error) {
	fields := liveFields(p)
	args := make([]any, 0, 2*len(fields)+3)
	args = append(args, eventID)
	for _, f := range fields {
		args = append(args, f.value)
	}
	args = append(args, formatTime(now))
	for _, f := range fields {
		args = append(args, boolInt(f.set))
		if f.column == "current_item_ordinal" {
			args = append(args, boolInt(p.ActiveRoundID.Set))
		}
	}
	return scanLiveState(q.QueryRowContext(ctx, upsertLiveSQL, args...))
}

// UpsertLiveState applies p to the event's live state in one statement and
// returns the resulting row.
func (s *Store) UpsertLiveState(ctx context.Context, eventID string, p trivia.LivePatch) (trivia.LiveState, error) {
	return upsertLiveState(ctx, s.db, eventID, p, s.now())
}

// ResetItem returns the current item to its idle state and soft-deletes its
// responses, in one transaction.
func (s *Store) ResetItem(ctx context.Context, eventID, roundID, itemID string) (trivia.LiveState, int64, error) {
	var ls trivia.LiveState
	var cleared int64
	now := s.now()
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var p trivia.LivePatch
		p.ClearItemState()
		var err error
		if ls, err = upsertLiveState(ctx, tx, eventID, p, now); err != nil {
			return fmt.Errorf("clearing live state: %w", err)
		}
		if itemID == "" {
			return nil
		}
		if cleared, err = softDeleteItemResponses(ctx, tx, roundID, itemID, now); err != nil {
			return fmt.Errorf("clearing responses: %w", err)
		}
		return nil
	})
	return ls, cleared, err
}

// ClaimAudioStop records team as the one that stopped the shared audio for
// the given item. Only the first caller while audio is playing wins; it
// reports false for everyone else. A win also retires any canonical answer
// another team left on the item from an earlier pass, so the new owner can
// answer.
func (s *Store) ClaimAudioStop(ctx context.Context, eventID, roundID string, ordinal int, teamID, teamName string) (bool, error) {
	now := formatTime(s.now())
	var won bool
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE event_live_state
			SET audio_playing = 0,
				participant_audio_stopped_by_team_id = ?,
				participant_audio_stopped_by_team_name = ?,
				participant_audio_stopped_at = ?,
				updated_at = ?
			WHERE event_id = ?
				AND active_round_id = ?
				AND current_item_ordinal = ?
				AND audio_playing = 1
				AND participant_audio_stopped_by_team_id IS NULL
		`, teamID, teamName, now, now, eventID, roundID, ordinal)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil || n != 1 {
			return err
		}
		won = true

		_, err = tx.ExecContext(ctx, `
			UPDATE event_item_responses SET deleted = 1, deleted_at = ?
			WHERE event_round_id = ?
				AND edition_item_id = (
					SELECT edition_item_id FROM event_round_items
					WHERE event_round_id = ? AND ordinal = ?)
				AND shared = 1
				AND deleted = 0
				AND team_id <> ?
		`, now, roundID, roundID, ordinal, teamID)
		if err != nil {
			return fmt.Errorf("retiring stale shared answer: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return won, nil
}
