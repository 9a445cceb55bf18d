package logging

import (
	"fmt"
	"io"
	"sync"
)

// Reporter receives human-readable log text.
type Reporter interface {
	// Log writes a line-terminated message.
	Log(line string)
	// Logn writes text without a line terminator.
	Logn(text string)
}

// ConsoleReporter writes to an io.Writer.
type ConsoleReporter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleReporter returns a reporter writing to w.
func NewConsoleReporter(w io.Writer) *ConsoleReporter {
	return &ConsoleReporter{w: w}
}

func (r *ConsoleReporter) Log(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, line)
}

func (r *ConsoleReporter) Logn(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprint(r.w, text)
}

// Fanout dispatches every write to all added reporters.
// It is safe for concurrent use.
type Fanout struct {
	mu    sync.RWMutex
	sinks []Reporter
}

// Add registers a reporter.
func (f *Fanout) Add(r Reporter) {
	if r == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, r)
}

// Len returns the number of registered reporters.
func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.sinks)
}

func (f *Fanout) Log(line string) {
	for _, r := range f.snapshot() {
		r.Log(line)
	}
}

func (f *Fanout) Logn(text string) {
	for _, r := range f.snapshot() {
		r.Logn(text)
	}
}

// Logf formats and writes a line.
func (f *Fanout) Logf(format string, args ...interface{}) {
	f.Log(fmt.Sprintf(format, args...))
}

func (f *Fanout) snapshot() []Reporter {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]Reporter(nil), f.sinks...)
}

// Recorder keeps every line in memory.
type Recorder struct {
	mu    sync.Mutex
	lines []string
	tail  string
}

func (r *Recorder) Log(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, r.tail+line)
	r.tail = ""
}

func (r *Recorder) Logn(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tail += text
}

// Lines returns a copy of the completed lines.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}
