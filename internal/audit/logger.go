package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/train-control/tcc/internal/config"
)

// Outcome values.
const (
	OutcomeSuccess = "SUCCESS"
	OutcomeError   = "ERROR"
)

// Entry represents a single audit log entry.
type Entry struct {
	Timestamp time.Time              `json:"ts"`
	User      string                 `json:"user"`
	Session   string                 `json:"session,omitempty"`
	Vehicle   string                 `json:"vehicle,omitempty"`
	Action    string                 `json:"action"`
	Params    map[string]interface{} `json:"params"`
	Outcome   string                 `json:"outcome"`
	Code      string                 `json:"code"`
	LatencyMs float64                `json:"latencyMs"`
}

type userKey struct{}

// WithUser returns a context carrying the acting user.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the acting user, or "local" when none is set.
func UserFromContext(ctx context.Context) string {
	if user, ok := ctx.Value(userKey{}).(string); ok && user != "" {
		return user
	}
	return "local"
}

// Logger appends JSON lines to a rotating audit file.
type Logger struct {
	mu     sync.Mutex
	w      io.WriteCloser
	path   string
	logger *zap.Logger
}

// NewLogger creates an audit logger writing to cfg.Path, rotated by size and age.
func NewLogger(cfg config.AuditConfig, logger *zap.Logger) (*Logger, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("audit path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return NewWriterLogger(&lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}, cfg.Path, logger), nil
}

// NewWriterLogger creates an audit logger over an arbitrary writer.
func NewWriterLogger(w io.WriteCloser, path string, logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{w: w, path: path, logger: logger}
}

// Record writes one entry. Timestamp, User and Outcome are filled in when
// empty. Write failures are logged, never returned, so auditing cannot fail
// a command.
func (l *Logger) Record(ctx context.Context, e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.User == "" {
		e.User = UserFromContext(ctx)
	}
	if e.Params == nil {
		e.Params = map[string]interface{}{}
	}
	if e.Outcome == "" {
		e.Outcome = OutcomeSuccess
		if e.Code != "" && e.Code != OutcomeSuccess {
			e.Outcome = OutcomeError
		}
	}
	if e.Code == "" {
		e.Code = OutcomeSuccess
	}

	data, err := json.Marshal(e)
	if err != nil {
		l.logger.Error("failed to marshal audit entry", zap.Error(err))
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return
	}
	if _, err := l.w.Write(append(data, '\n')); err != nil {
		l.logger.Error("failed to write audit entry", zap.Error(err))
	}
}

// Rotate closes the current file and starts a new one.
func (l *Logger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.w.(interface{ Rotate() error })
	if !ok {
		return nil
	}
	if err := r.Rotate(); err != nil {
		return fmt.Errorf("failed to rotate audit log: %w", err)
	}
	return nil
}

// Close closes the underlying writer.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.w != nil {
		err := l.w.Close()
		l.w = nil
		return err
	}
	return nil
}

// GetFilePath returns the path to the audit log file.
func (l *Logger) GetFilePath() string {
	return l.path
}
