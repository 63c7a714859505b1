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

const eventColumns = `id, public_code, title, status, starts_at, location_name, COALESCE(host_user_id, '')`

func scanEvent(row scanner) (trivia.Event, error) {
	var ev trivia.Event
	var status string
	var startsAt sql.NullString
	if err := row.Scan(&ev.ID, &ev.PublicCode, &ev.Title, &status, &startsAt, &ev.LocationName, &ev.HostUserID); err != nil {
		return ev, err
	}
	ev.Status = trivia.EventStatus(status)
	t, err := timePtr(startsAt)
	if err != nil {
		return ev, fmt.Errorf("parsing starts_at: %w", err)
	}
	ev.StartsAt = t
	return ev, nil
}

// EventByCode resolves an event by its public code, case-insensitively.
func (s *Store) EventByCode(ctx context.Context, code string) (trivia.Event, error) {
	ev, err := scanEvent(s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE public_code = ?`, trivia.NormalizeCode(code)))
	if errors.Is(err, sql.ErrNoRows) {
		return ev, ErrNotFound
	}
	return ev, err
}

func (s *Store) EventByID(ctx context.Context, id string) (trivia.Event, error) {
	ev, err := scanEvent(s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ev, ErrNotFound
	}
	return ev, err
}

func (s *Store) CreateEvent(ctx context.Context, ev trivia.Event) (trivia.Event, error) {
	if ev.ID == "" {
		ev.ID = newID()
	}
	ev.PublicCode = trivia.NormalizeCode(ev.PublicCode)
	var host any
	if ev.HostUserID != "" {
		host = ev.HostUserID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, public_code, title, status, starts_at, location_name, host_user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.PublicCode, ev.Title, string(ev.Status), nullTime(ev.StartsAt), ev.LocationName, host, formatTime(s.now()))
	if isUniqueViolation(err) {
		return ev, ErrConflict
	}
	return ev, err
}

func (s *Store) SetEventStatus(ctx context.Context, eventID string, status trivia.EventStatus) error {
	n, err := s.execAffected(ctx, `UPDATE events SET status = ? WHERE id = ?`, string(status), eventID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const roundColumns = `
	r.id, r.event_id, r.round_number, COALESCE(NULLIF(r.label, ''), e.theme), r.status,
	r.edition_id, r.timer_seconds, g.id, g.name, g.hide_theme, g.participant_audio_stop`

const roundJoins = `
	FROM event_rounds r
	JOIN editions e ON e.id = r.edition_id
	JOIN games g ON g.id = e.game_id`

func scanRound(row scanner) (trivia.Round, error) {
	var r trivia.Round
	var status string
	var hide, audioStop int
	err := row.Scan(&r.ID, &r.EventID, &r.RoundNumber, &r.Label, &status,
		&r.EditionID, &r.TimerSeconds, &r.Game.ID, &r.Game.Name, &hide, &audioStop)
	r.Status = trivia.RoundStatus(status)
	r.Game.HideTheme = hide == 1
	r.Game.ParticipantAudioStop = audioStop == 1
	return r, err
}

// Rounds lists an event's rounds in presentation order.
func (s *Store) Rounds(ctx context.Context, eventID string) ([]trivia.Round, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+roundColumns+roundJoins+` WHERE r.event_id = ? ORDER BY r.round_number`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rounds []trivia.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}

// Round loads one round, scoped to its event.
func (s *Store) Round(ctx context.Context, eventID, roundID string) (trivia.Round, error) {
	r, err := scanRound(s.db.QueryRowContext(ctx,
		`SELECT `+roundColumns+roundJoins+` WHERE r.id = ? AND r.event_id = ?`, roundID, eventID))
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrNotFound
	}
	return r, err
}

func (s *Store) SetRoundStatus(ctx context.Context, eventID, roundID string, status trivia.RoundStatus) error {
	n, err := s.execAffected(ctx,
		`UPDATE event_rounds SET status = ? WHERE id = ? AND event_id = ?`, string(status), roundID, eventID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const itemColumns = `
	ei.id, ri.id, ri.event_round_id, ri.ordinal, ei.item_type,
	COALESCE(ri.prompt_override, ei.prompt), ei.choices_json,
	COALESCE(ri.answer_override, ei.answer), ei.answer_a, ei.answer_b, ei.answer_parts_json,
	COALESCE(ri.fun_fact_override, ei.fun_fact), ei.media_type, ei.media_key, ei.audio_answer_key`

const itemJoins = `
	FROM event_round_items ri
	JOIN edition_items ei ON ei.id = ri.edition_item_id`

func scanItem(row scanner) (trivia.Item, error) {
	var it trivia.Item
	var typ string
	var choices, parts sql.NullString
	err := row.Scan(&it.ID, &it.RoundItemID, &it.RoundID, &it.Ordinal, &typ,
		&it.Prompt, &choices, &it.Answer, &it.AnswerA, &it.AnswerB, &parts,
		&it.FunFact, &it.MediaType, &it.MediaKey, &it.AudioAnswerKey)
	if err != nil {
		return it, err
	}
	it.Type = trivia.ItemType(typ)
	if choices.Valid && choices.String != "" {
		if err := json.Unmarshal([]byte(choices.String), &it.Choices); err != nil {
			return it, fmt.Errorf("decoding choices of item %s: %w", it.ID, err)
		}
	}
	if parts.Valid && parts.String != "" {
		if err := json.Unmarshal([]byte(parts.String), &it.AnswerParts); err != nil {
			return it, fmt.Errorf("decoding answer parts of item %s: %w", it.ID, err)
		}
	}
	return it, nil
}

// RoundItems returns a round's items ordered by ordinal.
func (s *Store) RoundItems(ctx context.Context, roundID string) ([]trivia.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+itemJoins+` WHERE ri.event_round_id = ? ORDER BY ri.ordinal`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []trivia.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ItemAt locates the item by exact ordinal; ordinals may have gaps.
func (s *Store) ItemAt(ctx context.Context, roundID string, ordinal int) (trivia.Item, error) {
	it, err := scanItem(s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+itemJoins+` WHERE ri.event_round_id = ? AND ri.ordinal = ?`, roundID, ordinal))
	if errors.Is(err, sql.ErrNoRows) {
		return it, ErrNotFound
	}
	return it, err
}

// Catalog inserts, used by seeding and tests.

func (s *Store) CreateGame(ctx context.Context, g trivia.Game) (trivia.Game, error) {
	if g.ID == "" {
		g.ID = newID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO games (id, name, hide_theme, participant_audio_stop) VALUES (?, ?, ?, ?)`,
		g.ID, g.Name, boolInt(g.HideTheme), boolInt(g.ParticipantAudioStop))
	return g, err
}

func (s *Store) CreateEdition(ctx context.Context, gameID, theme string, timerSeconds int) (string, error) {
	id := newID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO editions (id, game_id, theme, timer_seconds) VALUES (?, ?, ?, ?)`,
		id, gameID, theme, timerSeconds)
	return id, err
}

// CreateEditionItem stores template content; it.Ordinal is the edition order.
func (s *Store) CreateEditionItem(ctx context.Context, editionID string, it trivia.Item) (string, error) {
	if it.ID == "" {
		it.ID = newID()
	}
	var choices, parts any
	if len(it.Choices) > 0 {
		b, err := json.Marshal(it.Choices)
		if err != nil {
			return "", err
		}
		choices = string(b)
	}
	if len(it.AnswerParts) > 0 {
		b, err := json.Marshal(it.AnswerParts)
		if err != nil {
			return "", err
		}
		parts = string(b)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO edition_items (id, edition_id, ordinal, item_type, prompt, choices_json,
			answer, answer_a, answer_b, answer_parts_json, fun_fact, media_type, media_key, audio_answer_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, it.ID, editionID, it.Ordinal, string(it.Type), it.Prompt, choices,
		it.Answer, it.AnswerA, it.AnswerB, parts, it.FunFact, it.MediaType, it.MediaKey, it.AudioAnswerKey)
	return it.ID, err
}

// CreateRound inserts a round; the timer is inherited from the edition when
// timerSeconds is zero.
func (s *Store) CreateRound(ctx context.Context, r trivia.Round) (trivia.Round, error) {
	if r.ID == "" {
		r.ID = newID()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO event_rounds (id, event_id, round_number, label, status, edition_id, timer_seconds)
		VALUES (?, ?, ?, ?, ?, ?, COALESCE(NULLIF(?, 0), (SELECT timer_seconds FROM editions WHERE id = ?)))
	`, r.ID, r.EventID, r.RoundNumber, r.Label, string(r.Status), r.EditionID, r.TimerSeconds, r.EditionID)
	if isUniqueViolation(err) {
		return r, ErrConflict
	}
	return r, err
}

// RoundItemOverrides are optional per-round replacements for template text.
type RoundItemOverrides struct {
	Prompt  *string
	Answer  *string
	FunFact *string
}

func (s *Store) AddRoundItem(ctx context.Context, roundID, editionItemID string, ordinal int, o RoundItemOverrides) (string, error) {
	id := newID()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO event_round_items (id, event_round_id, edition_item_id, ordinal, prompt_override, answer_override, fun_fact_override)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, roundID, editionItemID, ordinal, nullString(o.Prompt), nullString(o.Answer), nullString(o.FunFact))
	if isUniqueViolation(err) {
		return "", ErrConflict
	}
	return id, err
}

// Now is the store clock, used by seeding to place events relative to now.
func (s *Store) Now() time.Time { return s.now() }
