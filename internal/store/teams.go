package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/playperu/livetrivia/internal/trivia"
)

const teamColumns = `id, event_id, name, team_code, is_placeholder, COALESCE(session_token, ''), session_updated_at`

func scanTeam(row scanner) (trivia.Team, error) {
	var t trivia.Team
	var placeholder int
	var updated sql.NullString
	if err := row.Scan(&t.ID, &t.EventID, &t.Name, &t.Code, &placeholder, &t.SessionToken, &updated); err != nil {
		return t, err
	}
	t.Placeholder = placeholder == 1
	ts, err := timePtr(updated)
	if err != nil {
		return t, fmt.Errorf("parsing session_updated_at: %w", err)
	}
	t.SessionUpdatedAt = ts
	return t, nil
}

func (s *Store) queryTeam(ctx context.Context, where string, args ...any) (trivia.Team, error) {
	t, err := scanTeam(s.db.QueryRowContext(ctx, `SELECT `+teamColumns+` FROM teams WHERE `+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, err
}

// CreateTeam inserts a team. Name and code collisions within the event
// report ErrConflict.
func (s *Store) CreateTeam(ctx context.Context, eventID, name, code string, placeholder bool) (trivia.Team, error) {
	t := trivia.Team{
		ID:          newID(),
		EventID:     eventID,
		Name:        strings.TrimSpace(name),
		Code:        trivia.NormalizeCode(code),
		Placeholder: placeholder,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO teams (id, event_id, name, name_key, team_code, is_placeholder, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.ID, eventID, t.Name, trivia.NameKey(t.Name), t.Code, boolInt(placeholder), formatTime(s.now()))
	if isUniqueViolation(err) {
		return t, ErrConflict
	}
	return t, err
}

// Teams lists an event's teams by name.
func (s *Store) Teams(ctx context.Context, eventID string) ([]trivia.Team, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+teamColumns+` FROM teams WHERE event_id = ? ORDER BY name COLLATE NOCASE`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teams []trivia.Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

func (s *Store) CountTeams(ctx context.Context, eventID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM teams WHERE event_id = ?`, eventID).Scan(&n)
	return n, err
}

func (s *Store) TeamByCode(ctx context.Context, eventID, code string) (trivia.Team, error) {
	return s.queryTeam(ctx, `event_id = ? AND team_code = ?`, eventID, trivia.NormalizeCode(code))
}

func (s *Store) TeamByID(ctx context.Context, eventID, teamID string) (trivia.Team, error) {
	return s.queryTeam(ctx, `event_id = ? AND id = ?`, eventID, teamID)
}

// TeamBySession returns the team only if token is its current session.
func (s *Store) TeamBySession(ctx context.Context, eventID, teamID, token string) (trivia.Team, error) {
	if token == "" {
		return trivia.Team{}, ErrNotFound
	}
	return s.queryTeam(ctx, `event_id = ? AND id = ? AND session_token = ?`, eventID, teamID, token)
}

// ClaimPlaceholder names a placeholder team and installs its first session.
// It reports false when the team is no longer a placeholder.
func (s *Store) ClaimPlaceholder(ctx context.Context, teamID, name, token string) (bool, error) {
	name = strings.TrimSpace(name)
	n, err := s.execAffected(ctx, `
		UPDATE teams
		SET name = ?, name_key = ?, is_placeholder = 0, session_token = ?, session_updated_at = ?
		WHERE id = ? AND is_placeholder = 1
	`, name, trivia.NameKey(name), token, formatTime(s.now()), teamID)
	if isUniqueViolation(err) {
		return false, ErrConflict
	}
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RotateSession replaces the team's session token, invalidating the previous one.
func (s *Store) RotateSession(ctx context.Context, teamID, token string) error {
	n, err := s.execAffected(ctx,
		`UPDATE teams SET session_token = ?, session_updated_at = ? WHERE id = ?`,
		token, formatTime(s.now()), teamID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RenameTeam renames the team holding token.
func (s *Store) RenameTeam(ctx context.Context, eventID, teamID, token, name string) error {
	name = strings.TrimSpace(name)
	n, err := s.execAffected(ctx, `
		UPDATE teams SET name = ?, name_key = ?
		WHERE id = ? AND event_id = ? AND session_token = ?
	`, name, trivia.NameKey(name), teamID, eventID, token)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
