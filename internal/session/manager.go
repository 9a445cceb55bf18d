package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/train-control/tcc/internal/adapter"
	"github.com/train-control/tcc/internal/config"
	"github.com/train-control/tcc/internal/metrics"
)

// State is a lifecycle state.
type State string

const (
	StateDisconnected  State = "DISCONNECTED"
	StateConnecting    State = "CONNECTING"
	StateConnected     State = "CONNECTED"
	StateDisconnecting State = "DISCONNECTING"
)

// MsgAlreadyConnecting is reported when Connect finds a session in progress.
const MsgAlreadyConnecting = "already connecting or connected"

var stateNames = []string{
	string(StateDisconnected),
	string(StateConnecting),
	string(StateConnected),
	string(StateDisconnecting),
}

// ConnectCallback receives the connect outcome. On success idOrErr is the
// session ID and name the vehicle name; on failure idOrErr is the error
// message and name is empty.
type ConnectCallback func(ok bool, idOrErr, name string)

// Listener is armed when a vehicle connects and disarmed before the link is
// closed. Detach must stop the vehicle.
type Listener interface {
	Attach(sessionID string, train adapter.ITrain)
	Detach(train adapter.ITrain)
}

// Info is a snapshot of the lifecycle.
type Info struct {
	ID          string    `json:"id,omitempty"`
	Vehicle     string    `json:"vehicle,omitempty"`
	State       State     `json:"state"`
	Connected   bool      `json:"connected"`
	Driving     bool      `json:"driving"`
	ConnectedAt time.Time `json:"connectedAt,omitempty"`
}

type session struct {
	id          string
	vehicle     string
	connectedAt time.Time
	stop        chan struct{}
	stopOnce    sync.Once
	cancelScan  context.CancelFunc
	done        chan struct{}
}

func (s *session) halt() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.cancelScan()
	})
}

// Manager runs connect/drive/disconnect sessions against a Scanner.
type Manager struct {
	scanner  adapter.Scanner
	listener Listener
	timing   *config.TimingConfig
	vendor   string
	metrics  *metrics.Metrics
	logger   *zap.Logger

	// lock is held for the whole life of a session.
	lock sync.Mutex

	mu      sync.Mutex
	state   State
	driving bool
	current *session
}

// NewManager creates a Manager. vendor selects the error mapping table.
func NewManager(scanner adapter.Scanner, listener Listener, timing *config.TimingConfig, vendor string, m *metrics.Metrics, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timing == nil {
		timing = config.LoadTimingBaseline()
	}
	mgr := &Manager{
		scanner:  scanner,
		listener: listener,
		timing:   timing,
		vendor:   vendor,
		metrics:  m,
		logger:   logger.Named("session"),
		state:    StateDisconnected,
	}
	m.SetSessionState(string(StateDisconnected), stateNames)
	return mgr
}

// Connect starts a session unless one is already in progress, in which case
// cb is called synchronously with MsgAlreadyConnecting.
func (m *Manager) Connect(cb ConnectCallback) {
	if cb == nil {
		cb = func(bool, string, string) {}
	}

	if !m.lock.TryLock() {
		m.metrics.ObserveConnect("busy")
		m.logger.Info("connect rejected", zap.String("reason", MsgAlreadyConnecting))
		cb(false, MsgAlreadyConnecting, "")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timing.ScanTimeout)
	s := &session{
		stop:       make(chan struct{}),
		cancelScan: cancel,
		done:       make(chan struct{}),
	}

	m.mu.Lock()
	m.current = s
	m.driving = false
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	go m.run(ctx, s, cb)
}

// Disconnect ends the current session. It returns without waiting; use Wait
// to block until teardown completes.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.driving = false
	if m.current != nil {
		m.current.halt()
	}
}

// Wait blocks until the current session goroutine has exited.
func (m *Manager) Wait() {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()
	if s != nil {
		<-s.done
	}
}

// Driving reports whether a session is connected and driving.
func (m *Manager) Driving() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.driving
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Info returns a snapshot of the lifecycle.
func (m *Manager) Info() Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := Info{
		State:     m.state,
		Connected: m.state == StateConnected,
		Driving:   m.driving,
	}
	if m.current != nil && m.state != StateDisconnected {
		info.ID = m.current.id
		info.Vehicle = m.current.vehicle
		info.ConnectedAt = m.current.connectedAt
	}
	return info
}

func (m *Manager) run(ctx context.Context, s *session, cb ConnectCallback) {
	var report func()

	// Deferred in reverse: state reset, lock release, failure report, done.
	defer close(s.done)
	defer func() {
		if report != nil {
			report()
		}
	}()
	defer m.lock.Unlock()
	defer m.finish()

	train, err := m.scanner.Scan(ctx)
	s.cancelScan()
	if err != nil {
		err = m.normalizeScanError(err)
		m.metrics.ObserveConnect("failure")
		m.logger.Warn("connect failed", zap.Error(err))
		report = func() { cb(false, err.Error(), "") }
		return
	}

	s.id = uuid.New().String()
	s.vehicle = train.Name()
	s.connectedAt = time.Now().UTC()

	m.mu.Lock()
	halted := isClosed(s.stop)
	if !halted {
		m.driving = true
		m.setStateLocked(StateConnected)
	}
	m.mu.Unlock()

	if halted {
		m.metrics.ObserveConnect("failure")
		m.closeLink(train)
		report = func() { cb(false, "connect canceled", "") }
		return
	}

	m.metrics.ObserveConnect("success")
	m.logger.Info("connected", zap.String("session", s.id), zap.String("vehicle", s.vehicle))

	m.listener.Attach(s.id, train)
	cb(true, s.id, s.vehicle)

	m.drive(s, train)

	m.mu.Lock()
	m.driving = false
	m.setStateLocked(StateDisconnecting)
	m.mu.Unlock()

	m.listener.Detach(train)
	m.closeLink(train)
	m.logger.Info("disconnected", zap.String("session", s.id), zap.String("vehicle", s.vehicle))
}

// drive blocks until Disconnect is called or the link drops.
func (m *Manager) drive(s *session, train adapter.ITrain) {
	ticker := time.NewTicker(m.timing.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if !train.Connected() {
				m.logger.Warn("vehicle link lost", zap.String("session", s.id))
				return
			}
		}
	}
}

func (m *Manager) closeLink(train adapter.ITrain) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timing.DisconnectTimeout)
	defer cancel()
	if err := train.Disconnect(ctx); err != nil {
		m.logger.Warn("vehicle disconnect failed", zap.Error(adapter.NormalizeVendorErrorWithVendor(err, nil, m.vendor)))
	}
}

func (m *Manager) finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.driving = false
	m.setStateLocked(StateDisconnected)
}

func (m *Manager) setStateLocked(state State) {
	m.state = state
	m.metrics.SetSessionState(string(state), stateNames)
}

// normalizeScanError maps scan errors onto container codes. A scan that ran
// out of time or was canceled found no vehicle.
func (m *Manager) normalizeScanError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &adapter.VendorError{Code: adapter.ErrUnavailable, Original: err}
	}
	return adapter.NormalizeVendorErrorWithVendor(err, nil, m.vendor)
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// States returns every lifecycle state name.
func States() []string {
	return append([]string(nil), stateNames...)
}
