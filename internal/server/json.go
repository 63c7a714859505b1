package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/playperu/livetrivia/internal/trivia"
)

// DataResponse wraps every successful response.
type DataResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data"`
}

// ErrorResponse wraps every failed response.
type ErrorResponse struct {
	OK    bool      `json:"ok"`
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    trivia.Code    `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 64<<10))
	if err := dec.Decode(v); err != nil {
		return trivia.ErrValidation("invalid request body")
	}
	return nil
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, DataResponse{OK: true, Data: data})
}

// writeError renders err as the error envelope. Anything that is not a
// *trivia.Error is logged with the request id and hidden behind a generic
// server_error.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var te *trivia.Error
	if !errors.As(err, &te) {
		logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: ErrorBody{
			Code:    trivia.CodeServerError,
			Message: "internal error",
		}})
		return
	}
	if te.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(te.RetryAfter))
	}
	writeJSON(w, te.Status, ErrorResponse{Error: ErrorBody{
		Code:    te.Code,
		Message: te.Message,
		Details: te.Details,
	}})
}
