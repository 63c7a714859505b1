package stream_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/playperu/livetrivia/internal/stream"
	"github.com/playperu/livetrivia/internal/trivia"
)

type recordingSink struct {
	msgs chan string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{msgs: make(chan string, 16)}
}

func (s *recordingSink) Update(_ context.Context, payload []byte) error {
	s.msgs <- "update:" + string(payload)
	return nil
}

func (s *recordingSink) Error(_ context.Context, msg stream.ErrorMessage) error {
	s.msgs <- "error:" + string(msg.Code)
	return nil
}

func (s *recordingSink) KeepAlive(context.Context) error {
	s.msgs <- "keepalive"
	return nil
}

func (s *recordingSink) next(t *testing.T) string {
	t.Helper()
	select {
	case m := <-s.msgs:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a stream message")
		return ""
	}
}

// source is a payload generator the test can change between ticks.
type source struct {
	mu      sync.Mutex
	payload string
	err     error
}

func (s *source) set(payload string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payload, s.err = payload, err
}

func (s *source) build(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.payload), nil
}

func TestRunPushesOnlyChanges(t *testing.T) {
	clock := clockwork.NewFakeClock()
	wake := make(chan struct{}, 1)
	src := &source{payload: `{"v":1}`}
	sink := newRecordingSink()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- stream.Run(ctx, stream.Config{Interval: 2 * time.Second, Clock: clock, Wake: wake}, src.build, sink)
	}()

	assert.Equal(t, `update:{"v":1}`, sink.next(t), "first tick always sends the payload")

	clock.Advance(2 * time.Second)
	assert.Equal(t, "keepalive", sink.next(t), "unchanged payload sends a keep-alive")

	src.set(`{"v":2}`, nil)
	clock.Advance(2 * time.Second)
	assert.Equal(t, `update:{"v":2}`, sink.next(t))

	src.set(`{"v":3}`, nil)
	wake <- struct{}{}
	assert.Equal(t, `update:{"v":3}`, sink.next(t), "a nudge rebuilds without waiting for the tick")

	src.set("", errors.New("database is locked"))
	clock.Advance(2 * time.Second)
	assert.Equal(t, "keepalive", sink.next(t), "transient failures keep the connection")

	src.set("", trivia.ErrNotFound("event not found"))
	clock.Advance(2 * time.Second)
	assert.Equal(t, "error:not_found", sink.next(t))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the event disappeared")
	}
}

func TestRunStopsOnDisconnect(t *testing.T) {
	src := &source{payload: "{}"}
	sink := newRecordingSink()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- stream.Run(ctx, stream.Config{Clock: clockwork.NewFakeClock()}, src.build, sink)
	}()
	sink.next(t)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSSESink(t *testing.T) {
	rec := httptest.NewRecorder()
	sink, err := stream.NewSSESink(rec)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sink.Update(ctx, []byte(`{"a":1}`)))
	require.NoError(t, sink.KeepAlive(ctx))
	require.NoError(t, sink.Error(ctx, stream.ErrorMessage{Message: "event not found", Code: trivia.CodeNotFound, Status: 404}))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
	want := "event: update\ndata: {\"a\":1}\n\n" +
		": ping\n\n" +
		"event: error\ndata: {\"message\":\"event not found\",\"code\":\"not_found\",\"status\":404}\n\n"
	assert.Equal(t, want, rec.Body.String())
}

func TestWebSocketSink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		sink := stream.NewWebSocketSink(conn)
		_ = sink.Update(r.Context(), []byte(`{"a":1}`))
		_ = sink.KeepAlive(r.Context())
		_ = sink.Error(r.Context(), stream.ErrorMessage{Message: "gone", Code: trivia.CodeNotFound, Status: 404})
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var got []string
	for range 3 {
		_, msg, err := conn.Read(ctx)
		require.NoError(t, err)
		got = append(got, string(msg))
	}
	assert.Equal(t, []string{
		`{"event":"update","data":{"a":1}}`,
		`{"event":"ping"}`,
		`{"event":"error","data":{"message":"gone","code":"not_found","status":404}}`,
	}, got)
}

func TestNotifier(t *testing.T) {
	n := stream.NewNotifier()
	a, releaseA := n.Subscribe("ev1")
	b, releaseB := n.Subscribe("ev1")
	other, releaseOther := n.Subscribe("ev2")
	defer releaseOther()
	assert.Equal(t, 2, n.Subscribers("ev1"))

	n.Notify("ev1")
	n.Notify("ev1") // coalesced with the pending nudge

	for _, ch := range []<-chan struct{}{a, b} {
		select {
		case <-ch:
		default:
			t.Fatal("subscriber was not nudged")
		}
		select {
		case <-ch:
			t.Fatal("nudges should coalesce")
		default:
		}
	}
	select {
	case <-other:
		t.Fatal("other events must not be nudged")
	default:
	}

	releaseA()
	releaseB()
	assert.Zero(t, n.Subscribers("ev1"))
}
