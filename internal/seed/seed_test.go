package seed_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/playperu/livetrivia/internal/seed"
	"github.com/playperu/livetrivia/internal/store"
	"github.com/playperu/livetrivia/internal/store/storetest"
	"github.com/playperu/livetrivia/internal/teamsession"
	"github.com/playperu/livetrivia/internal/trivia"
)

func TestDefaultDemo(t *testing.T) {
	d, err := seed.Default()
	require.NoError(t, err)

	assert.Equal(t, "4821", d.Event.Code)
	assert.Equal(t, trivia.EventLive, d.Event.Status)
	assert.Equal(t, time.Hour, d.Event.StartsIn)
	require.Len(t, d.Rounds, 3)
	assert.Equal(t, []trivia.AnswerPart{{Label: "Artist", Answer: "Vanilla Ice"}, {Label: "Song", Answer: "Ice Ice Baby"}},
		d.Rounds[1].Items[0].AnswerParts)
}

func TestParseRejectsUnknownGame(t *testing.T) {
	_, err := seed.Parse([]byte(`
event: {code: "1000"}
rounds:
  - number: 1
    game: missing
`))
	require.Error(t, err)
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	s, _ := storetest.Open(t)
	sessions := teamsession.New(s)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d, err := seed.Default()
	require.NoError(t, err)

	require.NoError(t, seed.Apply(ctx, logger, s, sessions, d))

	ev, err := s.EventByCode(ctx, "4821")
	require.NoError(t, err)
	assert.Equal(t, trivia.EventLive, ev.Status)

	rounds, err := s.Rounds(ctx, ev.ID)
	require.NoError(t, err)
	require.Len(t, rounds, 3)
	assert.Equal(t, trivia.RoundLive, rounds[0].Status)
	assert.Equal(t, 30, rounds[0].TimerSeconds)
	assert.True(t, rounds[1].Game.ParticipantAudioStop)
	assert.Equal(t, "Picture Round", rounds[2].DisplayLabel())

	images, err := s.RoundItems(ctx, rounds[2].ID)
	require.NoError(t, err)
	require.Len(t, images, 3)
	for _, it := range images {
		assert.True(t, it.IsImage(), it.Prompt)
	}

	alpha, err := s.TeamByCode(ctx, ev.ID, "0193")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", alpha.Name)
	teams, err := s.Teams(ctx, ev.ID)
	require.NoError(t, err)
	assert.Len(t, teams, 5)

	host, err := s.UserByEmail(ctx, "host@livetrivia.local")
	require.NoError(t, err)
	assert.Equal(t, store.RoleHost, host.Role)
	assert.Equal(t, host.ID, ev.HostUserID)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(host.PasswordHash), []byte("quizmaster")))

	// A second run leaves the existing event alone.
	require.NoError(t, seed.Apply(ctx, logger, s, sessions, d))
	teams, err = s.Teams(ctx, ev.ID)
	require.NoError(t, err)
	assert.Len(t, teams, 5)
}
