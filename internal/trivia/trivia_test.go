package trivia_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/playperu/livetrivia/internal/trivia"
)

func TestLivePatchPresence(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantMsgSet  bool
		wantMsgNil  bool
		wantRevSet  bool
		wantRevealV bool
	}{
		{name: "omitted", body: `{}`},
		{name: "explicit null message", body: `{"waiting_message": null}`, wantMsgSet: true, wantMsgNil: true},
		{name: "message value", body: `{"waiting_message": "back soon"}`, wantMsgSet: true},
		{name: "reveal false", body: `{"reveal_answer": false}`, wantRevSet: true},
		{name: "reveal true", body: `{"reveal_answer": true}`, wantRevSet: true, wantRevealV: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p trivia.LivePatch
			if err := json.Unmarshal([]byte(tt.body), &p); err != nil {
				t.Fatalf("decoding: %v", err)
			}
			if p.WaitingMessage.Set != tt.wantMsgSet {
				t.Errorf("waiting_message set = %v, want %v", p.WaitingMessage.Set, tt.wantMsgSet)
			}
			if tt.wantMsgSet && (p.WaitingMessage.Value == nil) != tt.wantMsgNil {
				t.Errorf("waiting_message nil = %v, want %v", p.WaitingMessage.Value == nil, tt.wantMsgNil)
			}
			if p.RevealAnswer.Set != tt.wantRevSet {
				t.Errorf("reveal_answer set = %v, want %v", p.RevealAnswer.Set, tt.wantRevSet)
			}
			if p.RevealAnswer.Value != tt.wantRevealV {
				t.Errorf("reveal_answer = %v, want %v", p.RevealAnswer.Value, tt.wantRevealV)
			}
		})
	}
}

func TestLivePatchIgnoresAudioOwner(t *testing.T) {
	var p trivia.LivePatch
	body := `{"AudioStoppedByTeamID": "t1", "audio_playing": true}`
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if p.AudioStoppedByTeamID.Set {
		t.Error("stop owner must not be settable from a request body")
	}
	if !p.AudioPlaying.Set || !p.AudioPlaying.Value {
		t.Error("audio_playing should be set to true")
	}
}

func TestTimerWindow(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	dur := 30
	ls := trivia.LiveState{TimerStartedAt: &t0, TimerDurationSeconds: &dur}
	grace := 10 * time.Second

	tests := []struct {
		offset time.Duration
		open   bool
	}{
		{0, true},
		{29 * time.Second, true},
		{40 * time.Second, true},
		{41 * time.Second, false},
		{45 * time.Second, false},
	}
	for _, tt := range tests {
		now := t0.Add(tt.offset)
		if got := ls.TimerOpen(now, grace); got != tt.open {
			t.Errorf("TimerOpen(+%s) = %v, want %v", tt.offset, got, tt.open)
		}
		if got := ls.TimerExpired(now, grace); got == tt.open {
			t.Errorf("TimerExpired(+%s) = %v, want %v", tt.offset, got, !tt.open)
		}
	}

	if (trivia.LiveState{}).TimerOpen(t0, grace) {
		t.Error("a timer that never started must not be open")
	}
}

func TestExpectedLabels(t *testing.T) {
	it := trivia.Item{AnswerParts: []trivia.AnswerPart{{Label: "Artist"}, {Label: "Song"}}}
	if got := it.ExpectedLabels(); len(got) != 2 || got[0] != "Artist" || got[1] != "Song" {
		t.Errorf("labels = %v", got)
	}
	if got := (trivia.Item{}).ExpectedLabels(); len(got) != 2 || got[0] != "Answer A" {
		t.Errorf("fallback labels = %v", got)
	}
}

func TestSniffMediaKind(t *testing.T) {
	tests := []struct {
		name      string
		mediaType string
		key       string
		head      []byte
		want      trivia.MediaKind
	}{
		{"declared mime wins", "image/png", "song.mp3", nil, trivia.MediaImage},
		{"bare kind", "audio", "", nil, trivia.MediaAudio},
		{"data uri", "", "data:image/jpeg;base64,/9j/4AAQ", nil, trivia.MediaImage},
		{"extension with query", "", "media/round2/clip.MP3?v=3", nil, trivia.MediaAudio},
		{"png magic", "", "blob", []byte("\x89PNG\r\n\x1a\n...."), trivia.MediaImage},
		{"riff wave", "", "", []byte("RIFF\x00\x00\x00\x00WAVEfmt "), trivia.MediaAudio},
		{"nothing known", "", "notes", []byte("hello"), trivia.MediaUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := trivia.SniffMediaKind(tt.mediaType, tt.key, tt.head); got != tt.want {
				t.Errorf("SniffMediaKind = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRoundDisplayLabel(t *testing.T) {
	r := trivia.Round{Label: "90s Movies", Game: trivia.Game{Name: "Mystery Mix", HideTheme: true}}
	if got := r.DisplayLabel(); got != "Mystery Mix" {
		t.Errorf("hidden theme label = %q", got)
	}
	r.Game.HideTheme = false
	if got := r.DisplayLabel(); got != "90s Movies" {
		t.Errorf("label = %q", got)
	}
}

func TestLivePatchMoves(t *testing.T) {
	r1, r2 := "r1", "r2"
	one, two := 1, 2
	cur := &trivia.LiveState{ActiveRoundID: &r1, CurrentItemOrdinal: &one}

	tests := []struct {
		name  string
		cur   *trivia.LiveState
		patch trivia.LivePatch
		want  bool
	}{
		{"no position fields", cur, trivia.LivePatch{RevealAnswer: trivia.Some(true)}, false},
		{"same ordinal", cur, trivia.LivePatch{CurrentItemOrdinal: trivia.Some(&one)}, false},
		{"same round and ordinal", cur, trivia.LivePatch{ActiveRoundID: trivia.Some(&r1), CurrentItemOrdinal: trivia.Some(&one)}, false},
		{"same round only", cur, trivia.LivePatch{ActiveRoundID: trivia.Some(&r1)}, false},
		{"next ordinal", cur, trivia.LivePatch{CurrentItemOrdinal: trivia.Some(&two)}, true},
		{"other round keeps ordinal number", cur, trivia.LivePatch{ActiveRoundID: trivia.Some(&r2), CurrentItemOrdinal: trivia.Some(&one)}, true},
		{"other round without ordinal", cur, trivia.LivePatch{ActiveRoundID: trivia.Some(&r2)}, true},
		{"ordinal cleared", cur, trivia.LivePatch{CurrentItemOrdinal: trivia.Some[*int](nil)}, true},
		{"first write", nil, trivia.LivePatch{ActiveRoundID: trivia.Some(&r1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.patch.Moves(tt.cur); got != tt.want {
				t.Errorf("Moves = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClearUnsetItemStateKeepsExplicitFields(t *testing.T) {
	p := trivia.LivePatch{AudioPlaying: trivia.Some(true)}
	p.ClearUnsetItemState()

	if !p.AudioPlaying.Value {
		t.Error("explicit audio_playing was overwritten")
	}
	if !p.RevealAnswer.Set || p.RevealAnswer.Value {
		t.Errorf("reveal_answer = %+v, want set false", p.RevealAnswer)
	}
	if !p.AudioStoppedByTeamID.Set || p.AudioStoppedByTeamID.Value != nil {
		t.Errorf("stop owner = %+v, want set nil", p.AudioStoppedByTeamID)
	}
	if !p.TimerStartedAt.Set || p.TimerStartedAt.Value != nil {
		t.Errorf("timer_started_at = %+v, want set nil", p.TimerStartedAt)
	}
}
