package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/livetrivia/internal/readmodel"
)

// handleEventSnapshot serves the public payload for one event.
func handleEventSnapshot(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := readmodel.ParseView(r.URL.Query().Get("view"))
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		p, err := deps.Reads.Build(r.Context(), chi.URLParam(r, "code"), view)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeData(w, http.StatusOK, p)
	}
}
