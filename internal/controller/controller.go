// Package controller reads operator commands one line at a time.
package controller

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/train-control/tcc/internal/command"
	"github.com/train-control/tcc/internal/program"
	"github.com/train-control/tcc/internal/session"
)

// Prompt is written before each line is read.
const Prompt = "Next command (start, stop, quit): "

// Driver is what the controller needs from the orchestrator.
type Driver interface {
	Execute(ctx context.Context, cmd command.Command) error
	Program(p program.Program) error
	Connect(cb session.ConnectCallback)
	Disconnect()
}

// KeyController turns text lines into commands.
//
// Besides every command keyword it understands:
//
//	quit                         stop reading and disconnect
//	program red,yellow -> stop   register a program
//	help                         list keywords
type KeyController struct {
	driver Driver
	in     io.Reader
	out    io.Writer
	logger *zap.Logger

	// ConnectOnStart connects before the first prompt.
	ConnectOnStart bool
	// ShowPrompt writes Prompt before each line. On by default.
	ShowPrompt bool

	outMu    sync.Mutex
	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a controller reading in and prompting on out.
func New(driver Driver, in io.Reader, out io.Writer, logger *zap.Logger) *KeyController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeyController{
		driver:     driver,
		in:         in,
		out:        out,
		logger:     logger.Named("controller"),
		ShowPrompt: true,
		stop:       make(chan struct{}),
	}
}

// Stop ends Run. Safe to call more than once and from any goroutine.
func (k *KeyController) Stop() {
	k.stopOnce.Do(func() { close(k.stop) })
}

// Run reads lines until quit, end of input, Stop or ctx cancellation, then
// disconnects the vehicle.
func (k *KeyController) Run(ctx context.Context) error {
	k.logger.Info("keyboard controller started")
	defer k.logger.Info("keyboard controller stopped")
	defer k.driver.Disconnect()
	defer k.Stop()

	if k.ConnectOnStart {
		k.connect()
	}

	lines := make(chan string)
	readErr := make(chan error, 1)
	go k.read(lines, readErr)

	for {
		if k.ShowPrompt {
			k.print(Prompt)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-k.stop:
			return nil
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("failed to read commands: %w", err)
			}
			return nil
		case line := <-lines:
			if !k.handle(ctx, line) {
				return nil
			}
		}
	}
}

func (k *KeyController) read(lines chan<- string, readErr chan<- error) {
	scanner := bufio.NewScanner(k.in)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-k.stop:
			return
		}
	}
	readErr <- scanner.Err()
}

// handle runs one line and reports whether to keep reading.
func (k *KeyController) handle(ctx context.Context, line string) bool {
	text := strings.ToLower(strings.TrimSpace(line))
	switch {
	case text == "":
		return true
	case text == "quit":
		k.println("Quitting key controller")
		return false
	case text == "help":
		k.println("Commands: quit, help, program <colors> -> <command>, " + strings.Join(keywords(), ", "))
		return true
	case text == "connect":
		k.connect()
		return true
	case strings.HasPrefix(text, "program "):
		k.program(strings.TrimPrefix(text, "program "))
		return true
	}

	cmd, err := command.Parse(text)
	if err != nil {
		k.println(fmt.Sprintf("Unknown command %q", line))
		return true
	}
	if err := k.driver.Execute(ctx, cmd); err != nil {
		k.println(fmt.Sprintf("%s: %v", cmd, err))
	}
	return true
}

func (k *KeyController) connect() {
	k.driver.Connect(func(ok bool, idOrErr, name string) {
		if ok {
			k.println(fmt.Sprintf("Connected: true, Vehicle: %s, Session: %s", name, idOrErr))
			return
		}
		k.println(fmt.Sprintf("Connected: false, Message: %s", idOrErr))
	})
}

func (k *KeyController) program(text string) {
	seq, cmd, ok := strings.Cut(text, "->")
	if !ok {
		k.println("Usage: program <color,color,...> -> <command>")
		return
	}
	p, err := program.Parse(seq, cmd)
	if err != nil {
		k.println(fmt.Sprintf("Invalid program: %v", err))
		return
	}
	if err := k.driver.Program(p); err != nil {
		k.println(fmt.Sprintf("Invalid program: %v", err))
		return
	}
	k.println(fmt.Sprintf("Program %s", p))
}

func (k *KeyController) print(s string) {
	k.outMu.Lock()
	defer k.outMu.Unlock()
	_, _ = io.WriteString(k.out, s)
}

func (k *KeyController) println(s string) {
	k.print(s + "\n")
}

func keywords() []string {
	kinds := command.AllKinds()
	out := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		out = append(out, kind.Keyword())
	}
	return out
}
