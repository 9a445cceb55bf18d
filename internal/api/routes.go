package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/train-control/tcc/internal/auth"
	"github.com/train-control/tcc/internal/command"
	"github.com/train-control/tcc/internal/program"
)

// CommandRequest is the body of POST /api/v1/commands.
type CommandRequest struct {
	Command string `json:"command"`
	Args    []int  `json:"args,omitempty"`
}

// ProgramRequest is the body of POST /api/v1/programs.
type ProgramRequest struct {
	Sequence string `json:"sequence"`
	Command  string `json:"command"`
}

// ProgramView is one registered program.
type ProgramView struct {
	Trigger string `json:"trigger"`
	Command string `json:"command"`
}

// ConnectResult is the data of a successful POST /api/v1/connect.
type ConnectResult struct {
	SessionID string `json:"sessionId"`
	Vehicle   string `json:"vehicle"`
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", fmt.Sprintf("Method %s is not allowed", r.Method))
	})

	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			if s.opts.Auth != nil {
				r.Use(s.opts.Auth.RequireAuth)
			}

			r.With(s.requireScope(auth.ScopeRead)).Get("/state", s.handleState)
			r.With(s.requireScope(auth.ScopeRead)).Get("/programs", s.handleListPrograms)
			r.With(s.requireScope(auth.ScopeTelemetry)).Get("/telemetry", s.handleTelemetry)

			r.Group(func(r chi.Router) {
				r.Use(s.requireScope(auth.ScopeControl))
				r.Post("/programs", s.handleAddProgram)
				r.Post("/commands", s.handleCommand)
				r.Post("/connect", s.handleConnect)
				r.Post("/disconnect", s.handleDisconnect)
			})
		})
	})

	return r
}

func (s *Server) requireScope(scopes ...string) func(http.Handler) http.Handler {
	if s.opts.Auth == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return s.opts.Auth.RequireScope(scopes...)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if s.opts.Telemetry == nil {
		status = "degraded"
	}
	WriteSuccess(w, map[string]interface{}{
		"status":    status,
		"uptimeSec": time.Since(s.startTime).Seconds(),
		"version":   s.opts.Version,
		"session":   s.opts.Control.Snapshot().Session.State,
	})
}

// handleState handles GET /state
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, s.opts.Control.Snapshot())
}

// handleCommand handles POST /commands
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := decodeStrict(r.Body, &req); err != nil {
		WriteErr(w, err)
		return
	}

	kind, err := command.ParseKind(req.Command)
	if err != nil {
		WriteErr(w, err)
		return
	}
	if err := command.Validate(kind, req.Args); err != nil {
		WriteErr(w, err)
		return
	}

	cmd := command.New(kind, req.Args...)
	if err := s.opts.Control.Execute(r.Context(), cmd); err != nil {
		WriteErr(w, err)
		return
	}
	WriteSuccess(w, s.opts.Control.Snapshot())
}

// handleListPrograms handles GET /programs
func (s *Server) handleListPrograms(w http.ResponseWriter, r *http.Request) {
	programs := s.opts.Control.Programs()
	views := make([]ProgramView, 0, len(programs))
	for _, p := range programs {
		views = append(views, viewOf(p))
	}
	WriteSuccess(w, views)
}

// handleAddProgram handles POST /programs
func (s *Server) handleAddProgram(w http.ResponseWriter, r *http.Request) {
	var req ProgramRequest
	if err := decodeStrict(r.Body, &req); err != nil {
		WriteErr(w, err)
		return
	}
	p, err := program.Parse(req.Sequence, req.Command)
	if err != nil {
		WriteErr(w, err)
		return
	}
	if err := s.opts.Control.Program(p); err != nil {
		WriteErr(w, err)
		return
	}
	WriteSuccess(w, viewOf(p))
}

// handleConnect handles POST /connect. It waits for the scan outcome up to
// ConnectTimeout and answers 202 with the session if it is still pending.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	type outcome struct {
		ok            bool
		idOrErr, name string
	}
	done := make(chan outcome, 1)
	s.opts.Control.Connect(func(ok bool, idOrErr, name string) {
		done <- outcome{ok, idOrErr, name}
	})

	timer := time.NewTimer(s.opts.ConnectTimeout)
	defer timer.Stop()

	select {
	case out := <-done:
		if !out.ok {
			WriteErr(w, connectError(out.idOrErr))
			return
		}
		WriteSuccess(w, ConnectResult{SessionID: out.idOrErr, Vehicle: out.name})
	case <-timer.C:
		writeResponse(w, http.StatusAccepted, SuccessResponse(s.opts.Control.Snapshot().Session))
	case <-r.Context().Done():
	}
}

// handleDisconnect handles POST /disconnect
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.opts.Control.Disconnect()
	WriteSuccess(w, s.opts.Control.Snapshot().Session)
}

// handleTelemetry handles GET /telemetry
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if s.opts.Telemetry == nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Telemetry service not available")
		return
	}
	if err := s.opts.Telemetry.Subscribe(r.Context(), w, r); err != nil {
		s.logger.Debug("telemetry stream ended", zap.Error(err))
	}
}

func viewOf(p program.Program) ProgramView {
	return ProgramView{Trigger: p.Identity(), Command: p.Command().String()}
}

// decodeStrict decodes exactly one JSON object with no unknown fields.
func decodeStrict(body io.Reader, v interface{}) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON or unknown fields", ErrBadRequest)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data after JSON object", ErrBadRequest)
	}
	return nil
}
