// Package storetest builds in-memory stores with a known live event for tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"

	"github.com/playperu/livetrivia/internal/database"
	"github.com/playperu/livetrivia/internal/migrations"
	"github.com/playperu/livetrivia/internal/store"
	"github.com/playperu/livetrivia/internal/trivia"
)

// Start is the fake clock's initial time.
var Start = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

// Open returns a migrated in-memory store driven by a fake clock.
func Open(t testing.TB) (*store.Store, *clockwork.FakeClock) {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := migrations.Run(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	clock := clockwork.NewFakeClockAt(Start)
	return store.New(db, clock), clock
}

// Fixture is event 4821: a live multiple-choice round, a shared audio round
// and an all-image round, with one named team and one placeholder.
type Fixture struct {
	Store *store.Store
	Clock *clockwork.FakeClock

	Event       trivia.Event
	ChoiceRound trivia.Round
	AudioRound  trivia.Round
	ImageRound  trivia.Round
	ChoiceItems []trivia.Item
	AudioItems  []trivia.Item
	ImageItems  []trivia.Item

	Alpha       trivia.Team
	Placeholder trivia.Team
	Host        store.User
}

// HostPassword is the plain-text password of the fixture host.
const HostPassword = "quizmaster"

// New opens a store and seeds the fixture event.
func New(t testing.TB) *Fixture {
	t.Helper()
	s, clock := Open(t)
	return Seed(t, s, clock)
}

func Seed(t testing.TB, s *store.Store, clock *clockwork.FakeClock) *Fixture {
	t.Helper()
	ctx := context.Background()
	f := &Fixture{Store: s, Clock: clock}

	must := func(err error, what string) {
		t.Helper()
		if err != nil {
			t.Fatalf("seed %s: %v", what, err)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(HostPassword), bcrypt.MinCost)
	must(err, "password hash")
	f.Host, err = s.CreateUser(ctx, "host@livetrivia.local", string(hash), store.RoleHost)
	must(err, "host")

	f.Event, err = s.CreateEvent(ctx, trivia.Event{
		PublicCode:   "4821",
		Title:        "Tuesday Trivia",
		Status:       trivia.EventLive,
		LocationName: "The Crooked Pint",
		HostUserID:   f.Host.ID,
	})
	must(err, "event")

	classic, err := s.CreateGame(ctx, trivia.Game{Name: "Classic"})
	must(err, "classic game")
	music, err := s.CreateGame(ctx, trivia.Game{Name: "Name That Tune", ParticipantAudioStop: true})
	must(err, "music game")
	pictures, err := s.CreateGame(ctx, trivia.Game{Name: "Picture Round", HideTheme: true})
	must(err, "picture game")

	f.ChoiceRound, f.ChoiceItems = seedRound(t, s, f.Event.ID, classic, 1, "General Knowledge", trivia.RoundLive, []trivia.Item{
		{Ordinal: 1, Type: trivia.ItemMultipleChoice, Prompt: "Which planet is known as the red planet?",
			Choices: []string{"Venus", "Jupiter", "Mars", "Saturn"}, Answer: "Mars", FunFact: "Its color comes from iron oxide."},
		{Ordinal: 2, Type: trivia.ItemMultipleChoice, Prompt: "How many sides does a hexagon have?",
			Choices: []string{"Five", "Six", "Eight"}, Answer: "Six"},
	})
	f.AudioRound, f.AudioItems = seedRound(t, s, f.Event.ID, music, 2, "One Hit Wonders", trivia.RoundPlanned, []trivia.Item{
		{Ordinal: 1, Type: trivia.ItemAudio, Prompt: "Name the artist and the song",
			AnswerParts: []trivia.AnswerPart{{Label: "Artist", Answer: "Vanilla Ice"}, {Label: "Song", Answer: "Ice Ice Baby"}},
			MediaType: "audio/mpeg", MediaKey: "audio/r2/clip1.mp3", AudioAnswerKey: "audio/r2/clip1-answer.mp3"},
	})
	f.ImageRound, f.ImageItems = seedRound(t, s, f.Event.ID, pictures, 3, "Famous Landmarks", trivia.RoundPlanned, []trivia.Item{
		{Ordinal: 1, Type: trivia.ItemImage, Prompt: "Where is this?", Answer: "Machu Picchu", MediaKey: "img/r3/1.jpg"},
		{Ordinal: 3, Type: trivia.ItemText, Prompt: "And this one?", Answer: "Petra", MediaKey: "img/r3/2.webp"},
	})

	f.Alpha, err = s.CreateTeam(ctx, f.Event.ID, "Alpha", "0193", false)
	must(err, "team alpha")
	f.Placeholder, err = s.CreateTeam(ctx, f.Event.ID, "Team 02", "0500", true)
	must(err, "placeholder team")

	return f
}

func seedRound(t testing.TB, s *store.Store, eventID string, g trivia.Game, number int, theme string, status trivia.RoundStatus, items []trivia.Item) (trivia.Round, []trivia.Item) {
	t.Helper()
	ctx := context.Background()

	editionID, err := s.CreateEdition(ctx, g.ID, theme, 30)
	if err != nil {
		t.Fatalf("seed edition: %v", err)
	}
	r, err := s.CreateRound(ctx, trivia.Round{EventID: eventID, RoundNumber: number, Status: status, EditionID: editionID})
	if err != nil {
		t.Fatalf("seed round: %v", err)
	}
	for _, it := range items {
		itemID, err := s.CreateEditionItem(ctx, editionID, it)
		if err != nil {
			t.Fatalf("seed item: %v", err)
		}
		if _, err := s.AddRoundItem(ctx, r.ID, itemID, it.Ordinal, store.RoundItemOverrides{}); err != nil {
			t.Fatalf("seed round item: %v", err)
		}
	}
	r, err = s.Round(ctx, eventID, r.ID)
	if err != nil {
		t.Fatalf("load round: %v", err)
	}
	loaded, err := s.RoundItems(ctx, r.ID)
	if err != nil {
		t.Fatalf("load items: %v", err)
	}
	return r, loaded
}

// GoLive points live state at the given round and ordinal with a started
// timer anchored at the clock's current time.
func (f *Fixture) GoLive(t testing.TB, r trivia.Round, ordinal int) trivia.LiveState {
	t.Helper()
	now := f.Clock.Now().UTC()
	dur := r.TimerSeconds
	var p trivia.LivePatch
	p.ClearItemState()
	p.ActiveRoundID = trivia.Some(&r.ID)
	p.CurrentItemOrdinal = trivia.Some(&ordinal)
	p.TimerStartedAt = trivia.Some(&now)
	p.TimerDurationSeconds = trivia.Some(&dur)
	ls, err := f.Store.UpsertLiveState(context.Background(), f.Event.ID, p)
	if err != nil {
		t.Fatalf("go live: %v", err)
	}
	return ls
}
