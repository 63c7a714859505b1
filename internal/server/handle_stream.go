package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"

	"github.com/playperu/livetrivia/internal/readmodel"
	"github.com/playperu/livetrivia/internal/store"
	"github.com/playperu/livetrivia/internal/stream"
	"github.com/playperu/livetrivia/internal/trivia"
)

// streamTarget is the event and view a stream follows.
type streamTarget struct {
	eventID string
	code    string
	view    readmodel.View
}

// resolveStream validates the request before any stream headers are sent, so
// an unknown event is a plain 404.
func resolveStream(r *http.Request, deps Deps) (streamTarget, error) {
	view, err := readmodel.ParseView(r.URL.Query().Get("view"))
	if err != nil {
		return streamTarget{}, err
	}
	code := chi.URLParam(r, "code")
	ev, err := deps.Store.EventByCode(r.Context(), code)
	if errors.Is(err, store.ErrNotFound) {
		return streamTarget{}, trivia.ErrNotFound("event not found")
	}
	if err != nil {
		return streamTarget{}, err
	}
	return streamTarget{eventID: ev.ID, code: code, view: view}, nil
}

func runStream(ctx context.Context, deps Deps, t streamTarget, transport string, sink stream.Sink) error {
	var wake <-chan struct{}
	if deps.Notifier != nil {
		ch, release := deps.Notifier.Subscribe(t.eventID)
		defer release()
		wake = ch
	}

	deps.Metrics.StreamOpened(transport)
	defer deps.Metrics.StreamClosed(transport)

	build := func(ctx context.Context) ([]byte, error) {
		p, err := deps.Reads.Build(ctx, t.code, t.view)
		if err != nil {
			return nil, err
		}
		return json.Marshal(p)
	}
	return stream.Run(ctx, stream.Config{
		Interval: deps.StreamInterval,
		Clock:    deps.Clock,
		Wake:     wake,
		Logger:   deps.Logger,
		Metrics:  deps.Metrics,
	}, build, sink)
}

// handleStreamSSE pushes payload changes as server-sent events.
func handleStreamSSE(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := resolveStream(r, deps)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		sink, err := stream.NewSSESink(w)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		if err := runStream(r.Context(), deps, t, "sse", sink); err != nil && r.Context().Err() == nil {
			deps.Logger.DebugContext(r.Context(), "sse stream ended", "error", err)
		}
	}
}

// handleStreamWS pushes the same notifications over a WebSocket. Clients
// never send anything; reads only serve close and ping frames.
func handleStreamWS(deps Deps) http.HandlerFunc {
	opts := websocketOptions(deps.AllowedOrigins)
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := resolveStream(r, deps)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		conn, err := websocket.Accept(w, r, opts)
		if err != nil {
			deps.Logger.WarnContext(r.Context(), "websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		ctx := conn.CloseRead(r.Context())
		if err := runStream(ctx, deps, t, "websocket", stream.NewWebSocketSink(conn)); err != nil && ctx.Err() == nil {
			deps.Logger.DebugContext(ctx, "websocket stream ended", "error", err)
			return
		}
		conn.Close(websocket.StatusNormalClosure, "")
	}
}

// websocketOptions maps CORS origins to origin patterns. With no configured
// origins only same-host upgrades are accepted.
func websocketOptions(origins []string) *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{}
	for _, o := range origins {
		if o == "*" {
			opts.InsecureSkipVerify = true
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			opts.OriginPatterns = append(opts.OriginPatterns, u.Host)
		}
	}
	return opts
}
