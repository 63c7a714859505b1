package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/playperu/livetrivia/internal/handler/health"
	"github.com/playperu/livetrivia/internal/livestate"
	"github.com/playperu/livetrivia/internal/metrics"
	"github.com/playperu/livetrivia/internal/ratelimit"
	"github.com/playperu/livetrivia/internal/readmodel"
	"github.com/playperu/livetrivia/internal/store/storetest"
	"github.com/playperu/livetrivia/internal/stream"
	"github.com/playperu/livetrivia/internal/submission"
	"github.com/playperu/livetrivia/internal/teamsession"
)

type testServer struct {
	*storetest.Fixture
	deps    Deps
	handler http.Handler
	prom    *metrics.Prometheus
	limiter *ratelimit.Limiter
}

var testLimits = ratelimit.Config{MaxAttempts: 60, WindowSeconds: 60, BlockSeconds: 120}

// newTestServer wires the full router over the storetest fixture.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	f := storetest.New(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	prom := metrics.NewPrometheus()
	notifier := stream.NewNotifier()
	limiter := ratelimit.New(ratelimit.NewSQLStore(f.Store.DB()), f.Clock)
	guard := func(action string) *ratelimit.Guard {
		return ratelimit.NewGuard(limiter, action, testLimits, logger, prom)
	}
	sessions := teamsession.New(f.Store)

	deps := Deps{
		Logger:   logger,
		Clock:    f.Clock,
		Store:    f.Store,
		Sessions: sessions,
		Live:     livestate.New(f.Store, f.Clock, notifier),
		Reads:    readmodel.New(f.Store, f.Clock, submission.DefaultGrace),
		Submissions: submission.New(f.Store, sessions, guard("answer"), guard("audio"), submission.Config{
			Clock:    f.Clock,
			Grace:    submission.DefaultGrace,
			Notifier: notifier,
			Metrics:  prom,
		}),
		Notifier:       notifier,
		Metrics:        prom,
		MetricsHandler: prom.Handler(),
		HealthChecks: map[string]health.Checker{
			"database": health.CheckFunc(f.Store.DB().PingContext),
			"redis":    nil,
		},
		JoinGuard:   guard("join"),
		RenameGuard: guard("rename"),
		LoginGuard:  guard("login"),
	}
	return &testServer{Fixture: f, deps: deps, handler: NewHandler(deps), prom: prom, limiter: limiter}
}

// rebuild applies fn to the deps and rebuilds the router.
func (s *testServer) rebuild(fn func(d *Deps)) {
	fn(&s.deps)
	s.handler = NewHandler(s.deps)
}

type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error ErrorBody       `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if r != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, rec.Body.String())
	}
	if data != nil && env.OK {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
	return env
}

// login signs the fixture host in and returns the session cookie.
func (s *testServer) login(t *testing.T) *http.Cookie {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/host/login", HostLoginRequest{
		Email:    s.Host.Email,
		Password: storetest.HostPassword,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == hostCookieName {
			return c
		}
	}
	t.Fatal("login set no host_session cookie")
	return nil
}

// join joins team code into event 4821 and returns the session token.
func (s *testServer) join(t *testing.T, code string) JoinResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/events/4821/join", JoinRequest{TeamCode: code})
	if rec.Code != http.StatusOK {
		t.Fatalf("join status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp JoinResponse
	decodeEnvelope(t, rec, &resp)
	return resp
}
