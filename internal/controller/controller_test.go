package controller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/train-control/tcc/internal/command"
	"github.com/train-control/tcc/internal/program"
	"github.com/train-control/tcc/internal/session"
)

type mockDriver struct {
	mu          sync.Mutex
	executed    []command.Command
	programs    []program.Program
	connects    int
	disconnects int
	connectOK   bool
	execErr     error
	programErr  error
}

func (m *mockDriver) Execute(ctx context.Context, cmd command.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executed = append(m.executed, cmd)
	return m.execErr
}

func (m *mockDriver) Program(p program.Program) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.programErr != nil {
		return m.programErr
	}
	m.programs = append(m.programs, p)
	return nil
}

func (m *mockDriver) Connect(cb session.ConnectCallback) {
	m.mu.Lock()
	m.connects++
	ok := m.connectOK
	m.mu.Unlock()
	if ok {
		cb(true, "session-1", "intelino-1")
	} else {
		cb(false, "UNAVAILABLE", "")
	}
}

func (m *mockDriver) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects++
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func run(t *testing.T, d *mockDriver, input string) string {
	t.Helper()
	out := &syncBuffer{}
	k := New(d, strings.NewReader(input), out, nil)
	require.NoError(t, k.Run(context.Background()))
	return out.String()
}

func TestCommandsAreExecuted(t *testing.T) {
	d := &mockDriver{}
	run(t, d, "start\nNEXT_LEFT 2\n\nspeed_fine 4\nstop\n")

	want := []command.Command{
		command.New(command.KindStart),
		command.New(command.KindNextLeft, 2),
		command.New(command.KindSpeedFine, 4),
		command.New(command.KindStop),
	}
	require.Len(t, d.executed, len(want))
	for i := range want {
		assert.True(t, want[i].Equal(d.executed[i]), "command %d: got %s, want %s", i, d.executed[i], want[i])
	}
	assert.Equal(t, 1, d.disconnects, "end of input disconnects")
}

func TestQuitStopsReading(t *testing.T) {
	d := &mockDriver{}
	out := run(t, d, "start\nquit\nstop\n")

	assert.Len(t, d.executed, 1)
	assert.Contains(t, out, "Quitting key controller")
	assert.Equal(t, 1, d.disconnects)
}

func TestConnectReportsOutcome(t *testing.T) {
	d := &mockDriver{connectOK: true}
	out := run(t, d, "connect\n")
	assert.Equal(t, 1, d.connects)
	assert.Contains(t, out, "Connected: true, Vehicle: intelino-1")

	d = &mockDriver{}
	out = run(t, d, "connect\n")
	assert.Contains(t, out, "Connected: false, Message: UNAVAILABLE")
}

func TestConnectOnStart(t *testing.T) {
	d := &mockDriver{connectOK: true}
	k := New(d, strings.NewReader(""), io.Discard, nil)
	k.ConnectOnStart = true
	require.NoError(t, k.Run(context.Background()))
	assert.Equal(t, 1, d.connects)
}

func TestUnknownAndFailingCommands(t *testing.T) {
	d := &mockDriver{execErr: errors.New("NOT_CONNECTED")}
	out := run(t, d, "fly\nstart\n")

	assert.Contains(t, out, `Unknown command "fly"`)
	assert.Contains(t, out, "start: NOT_CONNECTED")
	assert.Len(t, d.executed, 1)
}

func TestProgramLine(t *testing.T) {
	d := &mockDriver{}
	out := run(t, d, "program red, yellow -> next_right 2\nprogram black -> stop\nprogram red\n")

	require.Len(t, d.programs, 1)
	assert.Equal(t, "RED-YELLOW", d.programs[0].Identity())
	assert.Equal(t, "next_right 2", d.programs[0].Command().String())
	assert.Contains(t, out, "Invalid program")
	assert.Contains(t, out, "Usage: program")
}

func TestProgramRejectedByDriver(t *testing.T) {
	d := &mockDriver{programErr: fmt.Errorf("%w: trigger too long", program.ErrInvalidProgram)}
	out := run(t, d, "program red, yellow -> stop\n")

	assert.Empty(t, d.programs)
	assert.Contains(t, out, "Invalid program: INVALID_PROGRAM: trigger too long")
	assert.NotContains(t, out, "Program RED-YELLOW")
}

func TestPromptCanBeDisabled(t *testing.T) {
	out := &syncBuffer{}
	k := New(&mockDriver{}, strings.NewReader("start\n"), out, nil)
	require.NoError(t, k.Run(context.Background()))
	assert.Contains(t, out.String(), Prompt)

	out = &syncBuffer{}
	k = New(&mockDriver{}, strings.NewReader("start\n"), out, nil)
	k.ShowPrompt = false
	require.NoError(t, k.Run(context.Background()))
	assert.NotContains(t, out.String(), Prompt)
}

func TestHelpListsKeywords(t *testing.T) {
	out := run(t, &mockDriver{}, "help\n")
	for _, kind := range command.AllKinds() {
		assert.Contains(t, out, kind.Keyword())
	}
}

func TestStopEndsRun(t *testing.T) {
	d := &mockDriver{}
	pr, pw := io.Pipe()
	defer pw.Close()

	k := New(d, pr, io.Discard, nil)
	done := make(chan error, 1)
	go func() { done <- k.Run(context.Background()) }()

	_, err := pw.Write([]byte("start\n"))
	require.NoError(t, err)

	k.Stop()
	k.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
	assert.Equal(t, 1, d.disconnects)
}

func TestContextCancelEndsRun(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	k := New(&mockDriver{}, pr, io.Discard, nil)
	done := make(chan error, 1)
	go func() { done <- k.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
