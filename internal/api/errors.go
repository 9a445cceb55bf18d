package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/train-control/tcc/internal/adapter"
	"github.com/train-control/tcc/internal/command"
	"github.com/train-control/tcc/internal/control"
	"github.com/train-control/tcc/internal/decoder"
	"github.com/train-control/tcc/internal/program"
	"github.com/train-control/tcc/internal/session"
)

// API-layer codes.
var (
	ErrBadRequest       = errors.New("BAD_REQUEST")
	ErrAlreadyConnected = errors.New("ALREADY_CONNECTED")
)

// APIError represents an API-layer error with HTTP status code.
type APIError struct {
	Code       string
	Message    string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAPIError creates a new API error.
func NewAPIError(code, message string, statusCode int) *APIError {
	return &APIError{Code: code, Message: message, StatusCode: statusCode}
}

// ToAPIError maps orchestrator, adapter and parse errors to an API error.
// Unknown errors become INTERNAL.
func ToAPIError(err error) *APIError {
	var apiErr *APIError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, command.ErrMalformed),
		errors.Is(err, decoder.ErrInvalidSequence),
		errors.Is(err, program.ErrInvalidProgram):
		return NewAPIError(ErrBadRequest.Error(), err.Error(), http.StatusBadRequest)
	case errors.Is(err, control.ErrInvalidArgument):
		return NewAPIError(control.ErrInvalidArgument.Error(), err.Error(), http.StatusBadRequest)
	case errors.Is(err, adapter.ErrInvalidRange):
		return NewAPIError(adapter.ErrInvalidRange.Error(), "Parameter value is outside the allowed range", http.StatusBadRequest)
	case errors.Is(err, control.ErrNotConnected):
		return NewAPIError(control.ErrNotConnected.Error(), "No vehicle is connected", http.StatusConflict)
	case errors.Is(err, ErrAlreadyConnected):
		return NewAPIError(ErrAlreadyConnected.Error(), session.MsgAlreadyConnecting, http.StatusConflict)
	case errors.Is(err, adapter.ErrBusy):
		return NewAPIError(adapter.ErrBusy.Error(), "Vehicle is busy, please retry with backoff", http.StatusServiceUnavailable)
	case errors.Is(err, adapter.ErrUnavailable):
		return NewAPIError(adapter.ErrUnavailable.Error(), "Vehicle is temporarily unavailable", http.StatusServiceUnavailable)
	default:
		return NewAPIError(adapter.ErrInternal.Error(), "Internal server error", http.StatusInternalServerError)
	}
}

// connectError turns a failed connect callback message into an error.
func connectError(msg string) error {
	if msg == session.MsgAlreadyConnecting {
		return ErrAlreadyConnected
	}
	code, _, _ := strings.Cut(msg, " ")
	switch strings.TrimSuffix(code, ":") {
	case adapter.ErrBusy.Error():
		return fmt.Errorf("%w: %s", adapter.ErrBusy, msg)
	case adapter.ErrInvalidRange.Error():
		return fmt.Errorf("%w: %s", adapter.ErrInvalidRange, msg)
	case adapter.ErrInternal.Error():
		return fmt.Errorf("%w: %s", adapter.ErrInternal, msg)
	default:
		return fmt.Errorf("%w: %s", adapter.ErrUnavailable, msg)
	}
}
