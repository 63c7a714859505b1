package teamsession_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playperu/livetrivia/internal/store/storetest"
	"github.com/playperu/livetrivia/internal/teamsession"
	"github.com/playperu/livetrivia/internal/trivia"
)

func requireCode(t *testing.T, err error, code trivia.Code) {
	t.Helper()
	var te *trivia.Error
	require.True(t, errors.As(err, &te), "want %s, got %v", code, err)
	require.Equal(t, code, te.Code)
}

func TestJoinNamedTeam(t *testing.T) {
	f := storetest.New(t)
	m := teamsession.New(f.Store)
	ctx := context.Background()

	res, err := m.Join(ctx, "4821", "0193", "")
	require.NoError(t, err)
	assert.Equal(t, f.Alpha.ID, res.Team.ID)
	assert.Len(t, res.Token, 64)

	// The name check is case-insensitive and whitespace-tolerant.
	_, err = m.Join(ctx, "4821", "0193", "  alpha ")
	require.NoError(t, err)

	_, err = m.Join(ctx, "4821", "0193", "Bravo")
	requireCode(t, err, trivia.CodeTeamNameMismatch)
}

func TestJoinSingleActiveSession(t *testing.T) {
	f := storetest.New(t)
	m := teamsession.New(f.Store)
	ctx := context.Background()

	deviceA, err := m.Join(ctx, "4821", "0193", "")
	require.NoError(t, err)
	_, err = m.Validate(ctx, f.Event.ID, f.Alpha.ID, deviceA.Token)
	require.NoError(t, err)

	deviceB, err := m.Join(ctx, "4821", "0193", "")
	require.NoError(t, err)
	require.NotEqual(t, deviceA.Token, deviceB.Token)

	_, err = m.Validate(ctx, f.Event.ID, f.Alpha.ID, deviceA.Token)
	requireCode(t, err, trivia.CodeTeamSessionInvalid)
	_, err = m.Validate(ctx, f.Event.ID, f.Alpha.ID, deviceB.Token)
	require.NoError(t, err)
}

func TestValidateNeverJoined(t *testing.T) {
	f := storetest.New(t)
	m := teamsession.New(f.Store)

	_, err := m.Validate(context.Background(), f.Event.ID, f.Alpha.ID, "")
	requireCode(t, err, trivia.CodeTeamSessionInvalid)
	_, err = m.Validate(context.Background(), f.Event.ID, "no-such-team", "x")
	requireCode(t, err, trivia.CodeTeamSessionInvalid)
}

func TestJoinPlaceholder(t *testing.T) {
	f := storetest.New(t)
	m := teamsession.New(f.Store)
	ctx := context.Background()

	_, err := m.Join(ctx, "4821", "0500", "")
	requireCode(t, err, trivia.CodeTeamNameRequired)

	_, err = m.Join(ctx, "4821", "0500", "ALPHA")
	requireCode(t, err, trivia.CodeConflict)

	res, err := m.Join(ctx, "4821", "0500", "Quiz Khalifa")
	require.NoError(t, err)
	assert.False(t, res.Team.Placeholder)
	assert.Equal(t, "Quiz Khalifa", res.Team.Name)

	// Once claimed, the team behaves like any named team.
	_, err = m.Join(ctx, "4821", "0500", "Other Name")
	requireCode(t, err, trivia.CodeTeamNameMismatch)
	_, err = m.Join(ctx, "4821", "0500", "")
	require.NoError(t, err)
}

func TestJoinErrors(t *testing.T) {
	f := storetest.New(t)
	m := teamsession.New(f.Store)
	ctx := context.Background()

	_, err := m.Join(ctx, "9999", "0193", "")
	requireCode(t, err, trivia.CodeNotFound)

	_, err = m.Join(ctx, "4821", "0000", "")
	requireCode(t, err, trivia.CodeNotFound)

	require.NoError(t, f.Store.SetEventStatus(ctx, f.Event.ID, trivia.EventCompleted))
	_, err = m.Join(ctx, "4821", "0193", "")
	requireCode(t, err, trivia.CodeEventClosed)
}

func TestRename(t *testing.T) {
	f := storetest.New(t)
	m := teamsession.New(f.Store)
	ctx := context.Background()

	alpha, err := m.Join(ctx, "4821", "0193", "")
	require.NoError(t, err)
	other, err := m.Join(ctx, "4821", "0500", "Bravo")
	require.NoError(t, err)

	team, err := m.Rename(ctx, "4821", alpha.Team.ID, alpha.Token, "Alpha Centauri")
	require.NoError(t, err)
	assert.Equal(t, "Alpha Centauri", team.Name)

	_, err = m.Rename(ctx, "4821", alpha.Team.ID, alpha.Token, "bravo")
	requireCode(t, err, trivia.CodeConflict)

	_, err = m.Rename(ctx, "4821", alpha.Team.ID, other.Token, "Hijacked")
	requireCode(t, err, trivia.CodeTeamSessionInvalid)

	_, err = m.Rename(ctx, "4821", alpha.Team.ID, alpha.Token, "   ")
	requireCode(t, err, trivia.CodeTeamNameRequired)
}

func TestSeedPlaceholders(t *testing.T) {
	f := storetest.New(t)
	m := teamsession.New(f.Store)
	ctx := context.Background()

	teams, err := m.SeedPlaceholders(ctx, f.Event.ID, 3)
	require.NoError(t, err)
	require.Len(t, teams, 3)

	codes := map[string]bool{f.Alpha.Code: true, f.Placeholder.Code: true}
	for i, team := range teams {
		assert.True(t, team.Placeholder)
		assert.Len(t, team.Code, 4)
		assert.False(t, codes[team.Code], "duplicate code %s", team.Code)
		codes[team.Code] = true
		assert.Equal(t, []string{"Team 03", "Team 04", "Team 05"}[i], team.Name)
	}

	_, err = m.SeedPlaceholders(ctx, f.Event.ID, 0)
	requireCode(t, err, trivia.CodeValidation)
}
