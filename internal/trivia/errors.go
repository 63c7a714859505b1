package trivia

import (
	"fmt"
	"net/http"
)

// Code is a stable machine-readable error identifier returned to clients.
type Code string

const (
	CodeNotFound           Code = "not_found"
	CodeEventClosed        Code = "event_closed"
	CodeNotLive            Code = "not_live"
	CodeForbidden          Code = "forbidden"
	CodeUnauthorized       Code = "unauthorized"
	CodeValidation         Code = "validation_error"
	CodeRateLimited        Code = "rate_limited"
	CodeTeamSessionInvalid Code = "team_session_invalid"
	CodeTimerExpired       Code = "timer_expired"
	CodeTimerNotStarted    Code = "timer_not_started"
	CodeNotCurrent         Code = "not_current"
	CodeInvalidChoice      Code = "invalid_choice"
	CodeInvalidType        Code = "invalid_type"
	CodeAudioStillPlaying  Code = "audio_still_playing"
	CodeAudioNotPlaying    Code = "audio_not_playing"
	CodeConflict           Code = "conflict"
	CodeTeamNameRequired   Code = "team_name_required"
	CodeTeamNameMismatch   Code = "team_name_mismatch"
	CodeServerError        Code = "server_error"
)

// Error is a client-visible failure. Anything that is not an *Error is
// treated as an infrastructure failure.
type Error struct {
	Code       Code
	Status     int
	Message    string
	Details    map[string]any
	RetryAfter int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code Code, status int, msg string) *Error {
	return &Error{Code: code, Status: status, Message: msg}
}

// WithDetails returns a copy of e carrying details.
func (e *Error) WithDetails(details map[string]any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

func ErrNotFound(msg string) *Error {
	return newError(CodeNotFound, http.StatusNotFound, msg)
}

func ErrEventClosed() *Error {
	return newError(CodeEventClosed, http.StatusGone, "event is closed")
}

func ErrNotLive() *Error {
	return newError(CodeNotLive, http.StatusConflict, "no live round")
}

func ErrForbidden(msg string) *Error {
	return newError(CodeForbidden, http.StatusForbidden, msg)
}

func ErrUnauthorized() *Error {
	return newError(CodeUnauthorized, http.StatusUnauthorized, "not authenticated")
}

func ErrValidation(msg string) *Error {
	return newError(CodeValidation, http.StatusBadRequest, msg)
}

func ErrRateLimited(retryAfter int) *Error {
	e := newError(CodeRateLimited, http.StatusTooManyRequests, "too many attempts, try again later")
	e.RetryAfter = retryAfter
	e.Details = map[string]any{"retry_after_seconds": retryAfter}
	return e
}

func ErrTeamSessionInvalid() *Error {
	return newError(CodeTeamSessionInvalid, http.StatusUnauthorized, "team session is not valid, join again")
}

func ErrTimerExpired() *Error {
	return newError(CodeTimerExpired, http.StatusConflict, "time is up for this question")
}

func ErrTimerNotStarted() *Error {
	return newError(CodeTimerNotStarted, http.StatusConflict, "the timer has not started")
}

func ErrNotCurrent() *Error {
	return newError(CodeNotCurrent, http.StatusConflict, "item is not the current item")
}

func ErrInvalidChoice() *Error {
	return newError(CodeInvalidChoice, http.StatusBadRequest, "choice is out of range")
}

func ErrInvalidType(msg string) *Error {
	return newError(CodeInvalidType, http.StatusBadRequest, msg)
}

func ErrAudioStillPlaying() *Error {
	return newError(CodeAudioStillPlaying, http.StatusConflict, "audio is still playing")
}

func ErrAudioNotPlaying() *Error {
	return newError(CodeAudioNotPlaying, http.StatusConflict, "audio is not playing")
}

func ErrConflict(msg string) *Error {
	return newError(CodeConflict, http.StatusConflict, msg)
}

func ErrTeamNameRequired() *Error {
	return newError(CodeTeamNameRequired, http.StatusBadRequest, "team name is required")
}

func ErrTeamNameMismatch() *Error {
	return newError(CodeTeamNameMismatch, http.StatusConflict, "team name does not match this team code")
}
