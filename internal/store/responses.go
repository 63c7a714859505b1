package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/playperu/livetrivia/internal/trivia"
)

const responseColumns = `id, event_id, event_round_id, edition_item_id, team_id, choice_index,
	COALESCE(choice_text, ''), response_parts_json, shared, is_correct, marked_at,
	COALESCE(marked_by, ''), submitted_at, updated_at, deleted, deleted_at`

func scanResponse(row scanner) (trivia.Response, error) {
	var r trivia.Response
	var choice, correct sql.NullInt64
	var parts, markedAt, deletedAt sql.NullString
	var shared, deleted int
	var submitted, updated string
	err := row.Scan(&r.ID, &r.EventID, &r.RoundID, &r.ItemID, &r.TeamID, &choice,
		&r.ChoiceText, &parts, &shared, &correct, &markedAt,
		&r.MarkedBy, &submitted, &updated, &deleted, &deletedAt)
	if err != nil {
		return r, err
	}
	r.ChoiceIndex = intPtr(choice)
	r.Shared = shared == 1
	r.Deleted = deleted == 1
	if correct.Valid {
		v := correct.Int64 == 1
		r.IsCorrect = &v
	}
	if parts.Valid && parts.String != "" {
		if err := json.Unmarshal([]byte(parts.String), &r.Parts); err != nil {
			return r, fmt.Errorf("decoding response parts: %w", err)
		}
	}
	if r.MarkedAt, err = timePtr(markedAt); err != nil {
		return r, err
	}
	if r.DeletedAt, err = timePtr(deletedAt); err != nil {
		return r, err
	}
	if r.SubmittedAt, err = parseTime(submitted); err != nil {
		return r, err
	}
	if r.UpdatedAt, err = parseTime(updated); err != nil {
		return r, err
	}
	return r, nil
}

// UpsertChoice records a team's choice for an item. A resubmission
// overwrites the live row and voids any mark it carried.
func (s *Store) UpsertChoice(ctx context.Context, eventID, roundID, itemID, teamID string, index int, text string) (trivia.Response, error) {
	now := formatTime(s.now())
	return scanResponse(s.db.QueryRowContext(ctx, `
		INSERT INTO event_item_responses (id, event_id, event_round_id, edition_item_id, team_id,
			choice_index, choice_text, shared, submitted_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT (event_round_id, edition_item_id, team_id) WHERE deleted = 0 AND shared = 0
		DO UPDATE SET
			choice_index = excluded.choice_index,
			choice_text = excluded.choice_text,
			is_correct = NULL,
			marked_at = NULL,
			marked_by = NULL,
			updated_at = excluded.updated_at
		RETURNING `+responseColumns,
		newID(), eventID, roundID, itemID, teamID, index, text, now, now))
}

// UpsertSharedParts records the single canonical answer for a shared item.
// The owning team may overwrite it; a different team gets ErrConflict, and
// the unique index settles two teams racing for an empty slot.
func (s *Store) UpsertSharedParts(ctx context.Context, eventID, roundID, itemID, teamID string, parts []trivia.AnswerPart) (trivia.Response, error) {
	b, err := json.Marshal(parts)
	if err != nil {
		return trivia.Response{}, err
	}
	now := formatTime(s.now())
	r, err := scanResponse(s.db.QueryRowContext(ctx, `
		INSERT INTO event_item_responses (id, event_id, event_round_id, edition_item_id, team_id,
			response_parts_json, shared, submitted_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT (event_round_id, edition_item_id) WHERE deleted = 0 AND shared = 1
		DO UPDATE SET
			response_parts_json = excluded.response_parts_json,
			is_correct = NULL,
			marked_at = NULL,
			marked_by = NULL,
			updated_at = excluded.updated_at
		WHERE event_item_responses.team_id = excluded.team_id
		RETURNING `+responseColumns,
		newID(), eventID, roundID, itemID, teamID, string(b), now, now))
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrConflict
	}
	return r, err
}

// TeamResponse returns a team's live response to an item.
func (s *Store) TeamResponse(ctx context.Context, roundID, itemID, teamID string) (trivia.Response, error) {
	r, err := scanResponse(s.db.QueryRowContext(ctx, `
		SELECT `+responseColumns+` FROM event_item_responses
		WHERE event_round_id = ? AND edition_item_id = ? AND team_id = ? AND deleted = 0
		ORDER BY updated_at DESC LIMIT 1
	`, roundID, itemID, teamID))
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrNotFound
	}
	return r, err
}

// ItemResponses lists the live responses to an item, oldest first.
func (s *Store) ItemResponses(ctx context.Context, roundID, itemID string) ([]trivia.Response, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+responseColumns+` FROM event_item_responses
		WHERE event_round_id = ? AND edition_item_id = ? AND deleted = 0
		ORDER BY submitted_at, id
	`, roundID, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []trivia.Response
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func softDeleteItemResponses(ctx context.Context, q querier, roundID, itemID string, now time.Time) (int64, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE event_item_responses SET deleted = 1, deleted_at = ?
		WHERE event_round_id = ? AND edition_item_id = ? AND deleted = 0
	`, formatTime(now), roundID, itemID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ClearItemResponses soft-deletes every live response to an item.
func (s *Store) ClearItemResponses(ctx context.Context, roundID, itemID string) (int64, error) {
	return softDeleteItemResponses(ctx, s.db, roundID, itemID, s.now())
}

// MarkResponse scores a live response. A nil correct clears the mark.
func (s *Store) MarkResponse(ctx context.Context, eventID, responseID string, correct *bool, markedBy string) (trivia.Response, error) {
	var val, at, by any
	if correct != nil {
		val = boolInt(*correct)
		at = formatTime(s.now())
		by = markedBy
	}
	r, err := scanResponse(s.db.QueryRowContext(ctx, `
		UPDATE event_item_responses SET is_correct = ?, marked_at = ?, marked_by = ?
		WHERE id = ? AND event_id = ? AND deleted = 0
		RETURNING `+responseColumns,
		val, at, by, responseID, eventID))
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrNotFound
	}
	return r, err
}

// ChoiceCounts tallies live choice responses per choice index.
func (s *Store) ChoiceCounts(ctx context.Context, roundID, itemID string) (map[int]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT choice_index, COUNT(*) FROM event_item_responses
		WHERE event_round_id = ? AND edition_item_id = ? AND deleted = 0 AND choice_index IS NOT NULL
		GROUP BY choice_index
	`, roundID, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var idx, n int
		if err := rows.Scan(&idx, &n); err != nil {
			return nil, err
		}
		counts[idx] = n
	}
	return counts, rows.Err()
}

// Leaderboard ranks the event's named teams by responses marked correct.
func (s *Store) Leaderboard(ctx context.Context, eventID string) ([]trivia.Standing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name, COALESCE(SUM(CASE WHEN r.is_correct = 1 THEN 1 ELSE 0 END), 0) AS score
		FROM teams t
		LEFT JOIN event_item_responses r ON r.team_id = t.id AND r.deleted = 0
		WHERE t.event_id = ? AND t.is_placeholder = 0
		GROUP BY t.id, t.name
		ORDER BY score DESC, t.name COLLATE NOCASE
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []trivia.Standing
	for rows.Next() {
		var st trivia.Standing
		if err := rows.Scan(&st.TeamID, &st.Name, &st.Score); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
