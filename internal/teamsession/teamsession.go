// Package teamsession authenticates participant devices as teams using a
// short team code and a rotating session token. Each join mints a new token,
// so only the most recent device of a team can act for it.
package teamsession

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/playperu/livetrivia/internal/store"
	"github.com/playperu/livetrivia/internal/trivia"
)

const maxNameLength = 60

type Manager struct {
	store *store.Store
}

func New(s *store.Store) *Manager {
	return &Manager{store: s}
}

type JoinResult struct {
	Team  trivia.Team
	Token string
}

// NewToken returns 32 random bytes, hex encoded.
func NewToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func cleanName(name string) (string, error) {
	name = strings.Join(strings.Fields(name), " ")
	if len([]rune(name)) > maxNameLength {
		return "", trivia.ErrValidation("team name is too long").
			WithDetails(map[string]any{"field": "team_name", "max_length": maxNameLength})
	}
	return name, nil
}

// Join resolves the team by code within the event and installs a fresh
// session. Placeholders must be named by the first join; named teams must be
// joined with their existing name, if any name is given.
func (m *Manager) Join(ctx context.Context, eventCode, teamCode, requestedName string) (JoinResult, error) {
	ev, err := m.store.EventByCode(ctx, eventCode)
	if errors.Is(err, store.ErrNotFound) {
		return JoinResult{}, trivia.ErrNotFound("event not found")
	}
	if err != nil {
		return JoinResult{}, fmt.Errorf("loading event: %w", err)
	}
	if ev.Status.Closed() {
		return JoinResult{}, trivia.ErrEventClosed()
	}

	team, err := m.store.TeamByCode(ctx, ev.ID, teamCode)
	if errors.Is(err, store.ErrNotFound) {
		return JoinResult{}, trivia.ErrNotFound("team not found")
	}
	if err != nil {
		return JoinResult{}, fmt.Errorf("loading team: %w", err)
	}

	name, err := cleanName(requestedName)
	if err != nil {
		return JoinResult{}, err
	}

	token, err := NewToken()
	if err != nil {
		return JoinResult{}, err
	}

	if team.Placeholder {
		if name == "" {
			return JoinResult{}, trivia.ErrTeamNameRequired()
		}
		claimed, err := m.store.ClaimPlaceholder(ctx, team.ID, name, token)
		if errors.Is(err, store.ErrConflict) {
			return JoinResult{}, trivia.ErrConflict("team name already taken")
		}
		if err != nil {
			return JoinResult{}, fmt.Errorf("claiming placeholder: %w", err)
		}
		if claimed {
			team.Name = name
			team.Placeholder = false
			team.SessionToken = token
			return JoinResult{Team: team, Token: token}, nil
		}
		// Someone else named it first; continue as a named team.
		if team, err = m.store.TeamByID(ctx, ev.ID, team.ID); err != nil {
			return JoinResult{}, fmt.Errorf("reloading team: %w", err)
		}
	}

	if name != "" && trivia.NameKey(name) != trivia.NameKey(team.Name) {
		return JoinResult{}, trivia.ErrTeamNameMismatch()
	}
	if err := m.store.RotateSession(ctx, team.ID, token); err != nil {
		return JoinResult{}, fmt.Errorf("rotating session: %w", err)
	}
	team.SessionToken = token
	return JoinResult{Team: team, Token: token}, nil
}

// Validate returns the team if token is its current session. Any mismatch,
// including a team that never joined, is team_session_invalid.
func (m *Manager) Validate(ctx context.Context, eventID, teamID, token string) (trivia.Team, error) {
	team, err := m.store.TeamBySession(ctx, eventID, teamID, token)
	if errors.Is(err, store.ErrNotFound) {
		return trivia.Team{}, trivia.ErrTeamSessionInvalid()
	}
	if err != nil {
		return trivia.Team{}, fmt.Errorf("validating session: %w", err)
	}
	return team, nil
}

// Rename changes the name of the team holding token.
func (m *Manager) Rename(ctx context.Context, eventCode, teamID, token, newName string) (trivia.Team, error) {
	ev, err := m.store.EventByCode(ctx, eventCode)
	if errors.Is(err, store.ErrNotFound) {
		return trivia.Team{}, trivia.ErrNotFound("event not found")
	}
	if err != nil {
		return trivia.Team{}, fmt.Errorf("loading event: %w", err)
	}
	if ev.Status.Closed() {
		return trivia.Team{}, trivia.ErrEventClosed()
	}

	name, err := cleanName(newName)
	if err != nil {
		return trivia.Team{}, err
	}
	if name == "" {
		return trivia.Team{}, trivia.ErrTeamNameRequired()
	}

	if _, err := m.Validate(ctx, ev.ID, teamID, token); err != nil {
		return trivia.Team{}, err
	}
	err = m.store.RenameTeam(ctx, ev.ID, teamID, token, name)
	switch {
	case errors.Is(err, store.ErrConflict):
		return trivia.Team{}, trivia.ErrConflict("team name already taken")
	case errors.Is(err, store.ErrNotFound):
		// The session rotated between validation and the update.
		return trivia.Team{}, trivia.ErrTeamSessionInvalid()
	case err != nil:
		return trivia.Team{}, fmt.Errorf("renaming team: %w", err)
	}
	return m.store.TeamByID(ctx, ev.ID, teamID)
}

const placeholderCodeAttempts = 20

// SeedPlaceholders adds n unnamed teams numbered after the existing ones,
// each with a unique four-digit code.
func (m *Manager) SeedPlaceholders(ctx context.Context, eventID string, n int) ([]trivia.Team, error) {
	if n <= 0 || n > 200 {
		return nil, trivia.ErrValidation("count must be between 1 and 200")
	}
	existing, err := m.store.CountTeams(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("counting teams: %w", err)
	}

	teams := make([]trivia.Team, 0, n)
	next := existing + 1
	for len(teams) < n {
		team, err := m.createPlaceholder(ctx, eventID, fmt.Sprintf("Team %02d", next))
		next++
		if errors.Is(err, errNameTaken) {
			continue
		}
		if err != nil {
			return teams, err
		}
		teams = append(teams, team)
	}
	return teams, nil
}

var errNameTaken = errors.New("placeholder name taken")

func (m *Manager) createPlaceholder(ctx context.Context, eventID, name string) (trivia.Team, error) {
	for range placeholderCodeAttempts {
		code, err := randomCode()
		if err != nil {
			return trivia.Team{}, err
		}
		team, err := m.store.CreateTeam(ctx, eventID, name, code, true)
		if err == nil {
			return team, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return trivia.Team{}, fmt.Errorf("creating placeholder: %w", err)
		}
		// Either the code or the name collided.
		if _, lookupErr := m.store.TeamByCode(ctx, eventID, code); errors.Is(lookupErr, store.ErrNotFound) {
			return trivia.Team{}, errNameTaken
		}
	}
	return trivia.Team{}, fmt.Errorf("no free team code after %d attempts", placeholderCodeAttempts)
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", fmt.Errorf("generating team code: %w", err)
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}
