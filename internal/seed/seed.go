// Package seed loads a demo event described in YAML.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/playperu/livetrivia/internal/store"
	"github.com/playperu/livetrivia/internal/teamsession"
	"github.com/playperu/livetrivia/internal/trivia"
)

//go:embed demo.yaml
var demoYAML []byte

type Demo struct {
	Host         Host    `yaml:"host"`
	Games        []Game  `yaml:"games"`
	Event        Event   `yaml:"event"`
	Rounds       []Round `yaml:"rounds"`
	Teams        []Team  `yaml:"teams"`
	Placeholders int     `yaml:"placeholders"`
}

type Host struct {
	Email    string     `yaml:"email"`
	Password string     `yaml:"password"`
	Role     store.Role `yaml:"role"`
}

type Game struct {
	Key                  string `yaml:"key"`
	Name                 string `yaml:"name"`
	HideTheme            bool   `yaml:"hide_theme"`
	ParticipantAudioStop bool   `yaml:"participant_audio_stop"`
}

type Event struct {
	Code     string             `yaml:"code"`
	Title    string             `yaml:"title"`
	Status   trivia.EventStatus `yaml:"status"`
	Location string             `yaml:"location"`
	StartsIn time.Duration      `yaml:"starts_in"`
}

type Round struct {
	Number       int                `yaml:"number"`
	Game         string             `yaml:"game"`
	Theme        string             `yaml:"theme"`
	Label        string             `yaml:"label"`
	Status       trivia.RoundStatus `yaml:"status"`
	TimerSeconds int                `yaml:"timer_seconds"`
	Items        []Item             `yaml:"items"`
}

type Item struct {
	Type           trivia.ItemType     `yaml:"type"`
	Prompt         string              `yaml:"prompt"`
	Choices        []string            `yaml:"choices"`
	Answer         string              `yaml:"answer"`
	AnswerA        string              `yaml:"answer_a"`
	AnswerB        string              `yaml:"answer_b"`
	AnswerParts    []trivia.AnswerPart `yaml:"answer_parts"`
	FunFact        string              `yaml:"fun_fact"`
	MediaType      string              `yaml:"media_type"`
	MediaKey       string              `yaml:"media_key"`
	AudioAnswerKey string              `yaml:"audio_answer_key"`
}

type Team struct {
	Name string `yaml:"name"`
	Code string `yaml:"code"`
}

// Parse decodes a demo description and checks its references.
func Parse(data []byte) (Demo, error) {
	var d Demo
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Demo{}, fmt.Errorf("parsing seed: %w", err)
	}
	if d.Event.Code == "" {
		return Demo{}, errors.New("seed: event code is required")
	}
	games := make(map[string]bool, len(d.Games))
	for _, g := range d.Games {
		games[g.Key] = true
	}
	for _, r := range d.Rounds {
		if !games[r.Game] {
			return Demo{}, fmt.Errorf("seed: round %d uses unknown game %q", r.Number, r.Game)
		}
	}
	if d.Host.Role == "" {
		d.Host.Role = store.RoleHost
	}
	if d.Event.Status == "" {
		d.Event.Status = trivia.EventPlanned
	}
	return d, nil
}

// Default is the embedded demo event.
func Default() (Demo, error) {
	return Parse(demoYAML)
}

// Apply creates the demo event unless an event with its code already
// exists. The host account is reused when its email is taken.
func Apply(ctx context.Context, logger *slog.Logger, s *store.Store, sessions *teamsession.Manager, d Demo) error {
	if _, err := s.EventByCode(ctx, d.Event.Code); err == nil {
		logger.InfoContext(ctx, "demo event already present", "code", d.Event.Code)
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("looking up demo event: %w", err)
	}

	host, err := ensureHost(ctx, s, d.Host)
	if err != nil {
		return err
	}

	starts := s.Now().Add(d.Event.StartsIn)
	ev, err := s.CreateEvent(ctx, trivia.Event{
		PublicCode:   d.Event.Code,
		Title:        d.Event.Title,
		Status:       d.Event.Status,
		StartsAt:     &starts,
		LocationName: d.Event.Location,
		HostUserID:   host.ID,
	})
	if err != nil {
		return fmt.Errorf("creating demo event: %w", err)
	}

	games := make(map[string]trivia.Game, len(d.Games))
	for _, g := range d.Games {
		created, err := s.CreateGame(ctx, trivia.Game{Name: g.Name, HideTheme: g.HideTheme, ParticipantAudioStop: g.ParticipantAudioStop})
		if err != nil {
			return fmt.Errorf("creating game %s: %w", g.Key, err)
		}
		games[g.Key] = created
	}

	for _, r := range d.Rounds {
		if err := applyRound(ctx, s, ev.ID, games[r.Game], r); err != nil {
			return err
		}
	}

	for _, t := range d.Teams {
		if _, err := s.CreateTeam(ctx, ev.ID, t.Name, t.Code, false); err != nil {
			return fmt.Errorf("creating team %s: %w", t.Name, err)
		}
	}
	if d.Placeholders > 0 {
		if _, err := sessions.SeedPlaceholders(ctx, ev.ID, d.Placeholders); err != nil {
			return fmt.Errorf("creating placeholder teams: %w", err)
		}
	}

	logger.InfoContext(ctx, "demo event seeded", "code", ev.PublicCode, "host", host.Email, "rounds", len(d.Rounds))
	return nil
}

func ensureHost(ctx context.Context, s *store.Store, h Host) (store.User, error) {
	u, err := s.UserByEmail(ctx, h.Email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.User{}, fmt.Errorf("looking up host: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(h.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hashing host password: %w", err)
	}
	u, err = s.CreateUser(ctx, h.Email, string(hash), h.Role)
	if err != nil {
		return store.User{}, fmt.Errorf("creating host: %w", err)
	}
	return u, nil
}

func applyRound(ctx context.Context, s *store.Store, eventID string, g trivia.Game, r Round) error {
	editionID, err := s.CreateEdition(ctx, g.ID, r.Theme, r.TimerSeconds)
	if err != nil {
		return fmt.Errorf("creating edition for round %d: %w", r.Number, err)
	}
	status := r.Status
	if status == "" {
		status = trivia.RoundPlanned
	}
	round, err := s.CreateRound(ctx, trivia.Round{
		EventID:     eventID,
		RoundNumber: r.Number,
		Label:       r.Label,
		Status:      status,
		EditionID:   editionID,
	})
	if err != nil {
		return fmt.Errorf("creating round %d: %w", r.Number, err)
	}
	for i, it := range r.Items {
		ordinal := i + 1
		itemID, err := s.CreateEditionItem(ctx, editionID, trivia.Item{
			Ordinal:        ordinal,
			Type:           it.Type,
			Prompt:         it.Prompt,
			Choices:        it.Choices,
			Answer:         it.Answer,
			AnswerA:        it.AnswerA,
			AnswerB:        it.AnswerB,
			AnswerParts:    it.AnswerParts,
			FunFact:        it.FunFact,
			MediaType:      it.MediaType,
			MediaKey:       it.MediaKey,
			AudioAnswerKey: it.AudioAnswerKey,
		})
		if err != nil {
			return fmt.Errorf("creating item %d of round %d: %w", ordinal, r.Number, err)
		}
		if _, err := s.AddRoundItem(ctx, round.ID, itemID, ordinal, store.RoundItemOverrides{}); err != nil {
			return fmt.Errorf("placing item %d of round %d: %w", ordinal, r.Number, err)
		}
	}
	return nil
}
