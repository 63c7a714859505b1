package server

import (
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"

	"github.com/playperu/livetrivia/internal/handler/health"
)

func addRoutes(r chi.Router, deps Deps) {
	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Live Trivia API", "/openapi.json", "/docs"))
	r.Mount("/healthz", health.NewHandler(deps.Logger, deps.HealthChecks).Routes())
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// Participant and display routes, addressed by public event code.
	r.Route("/api/events/{code}", func(r chi.Router) {
		r.Get("/", handleEventSnapshot(deps))
		r.Group(func(r chi.Router) {
			r.Use(throttleStreams(deps.Logger, deps.StreamOpens))
			r.Get("/stream", handleStreamSSE(deps))
			r.Get("/stream/ws", handleStreamWS(deps))
		})
		r.Post("/join", handleJoin(deps))
		r.Post("/team/rename", handleRename(deps))
		r.Post("/answers/choice", handleSubmitChoice(deps))
		r.Post("/answers/labeled", handleSubmitLabeled(deps))
		r.Post("/audio/stop", handleStopAudio(deps))
	})

	// Host auth.
	r.Post("/api/host/login", handleHostLogin(deps))
	r.Post("/api/host/logout", handleHostLogout(deps))
	r.Get("/api/host/me", handleHostMe(deps))

	// Host control, requires a session owning the event.
	r.Route("/api/host/events/{eventID}", func(r chi.Router) {
		r.Use(hostAuthMiddleware(deps.Logger, deps.Store))
		r.Use(eventHostMiddleware(deps.Logger, deps.Store))

		r.Get("/", handleHostEvent(deps))
		r.Get("/live", handleGetLive(deps))
		r.Put("/live", handlePutLive(deps))
		r.Post("/live/advance", handleAdvance(deps))
		r.Post("/live/timer", handleStartTimer(deps))
		r.Post("/live/reset-item", handleResetItem(deps))
		r.Post("/rounds/{roundID}/status", handleRoundStatus(deps))

		r.Get("/responses", handleListResponses(deps))
		r.Post("/responses/clear", handleClearResponses(deps))
		r.Put("/responses/{responseID}/mark", handleMarkResponse(deps))

		r.Get("/teams", handleListTeams(deps))
		r.Post("/teams/placeholders", handleSeedPlaceholders(deps))
	})

	if deps.StaticDir != "" {
		if info, err := os.Stat(deps.StaticDir); err == nil && info.IsDir() {
			deps.Logger.Info("serving frontend", "dir", deps.StaticDir)
			r.NotFound(handleFrontend(deps.Logger, deps.StaticDir))
		} else {
			deps.Logger.Warn("static dir not usable, frontend disabled", "dir", deps.StaticDir)
		}
	}
}
