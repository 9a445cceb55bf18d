// Package program binds color sequences to commands.
//
// A Program pairs a trigger sequence with the command executed when the
// front sensor reads exactly that sequence between two BLACK delimiters.
// Programs are loaded from a YAML file and can be reloaded when it changes.
package program

import (
	"errors"
	"fmt"
	"sort"

	"github.com/train-control/tcc/internal/command"
	"github.com/train-control/tcc/internal/decoder"
)

// ErrInvalidProgram indicates a program that cannot be registered.
var ErrInvalidProgram = errors.New("INVALID_PROGRAM")

// Program is an immutable trigger/command pair.
type Program struct {
	trigger decoder.Sequence
	cmd     command.Command
}

// New validates and builds a Program.
func New(trigger decoder.Sequence, cmd command.Command) (Program, error) {
	if _, err := decoder.NewSequence(trigger...); err != nil {
		return Program{}, fmt.Errorf("%w: %v", ErrInvalidProgram, err)
	}
	if err := command.Validate(cmd.Kind, cmd.Args); err != nil {
		return Program{}, fmt.Errorf("%w: %v", ErrInvalidProgram, err)
	}
	return Program{
		trigger: append(decoder.Sequence(nil), trigger...),
		cmd:     command.Command{Kind: cmd.Kind, Args: append([]int(nil), cmd.Args...)},
	}, nil
}

// Parse builds a Program from text, e.g. ("red, yellow", "next_left 2").
func Parse(sequence, cmd string) (Program, error) {
	seq, err := decoder.ParseSequence(sequence)
	if err != nil {
		return Program{}, fmt.Errorf("%w: %v", ErrInvalidProgram, err)
	}
	c, err := command.Parse(cmd)
	if err != nil {
		return Program{}, fmt.Errorf("%w: %v", ErrInvalidProgram, err)
	}
	return New(seq, c)
}

// Trigger returns a copy of the trigger sequence.
func (p Program) Trigger() decoder.Sequence {
	return append(decoder.Sequence(nil), p.trigger...)
}

// Command returns the bound command.
func (p Program) Command() command.Command {
	return command.Command{Kind: p.cmd.Kind, Args: append([]int(nil), p.cmd.Args...)}
}

// Identity returns the trigger identity used as the registry key.
func (p Program) Identity() string {
	return p.trigger.Identity()
}

func (p Program) String() string {
	return fmt.Sprintf("%s -> %s", p.trigger.Identity(), p.cmd)
}

// Registry maps trigger identities to programs.
// It is not safe for concurrent use; callers hold their own lock.
type Registry struct {
	programs map[string]Program
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{programs: make(map[string]Program)}
}

// Register inserts p, replacing any program with the same trigger.
// It reports whether an existing program was replaced.
func (r *Registry) Register(p Program) bool {
	id := p.Identity()
	_, replaced := r.programs[id]
	r.programs[id] = p
	return replaced
}

// Lookup returns the command bound to exactly seq.
func (r *Registry) Lookup(seq decoder.Sequence) (command.Command, bool) {
	p, ok := r.programs[seq.Identity()]
	if !ok {
		return command.Command{}, false
	}
	return p.Command(), true
}

// Len returns the number of programs.
func (r *Registry) Len() int {
	return len(r.programs)
}

// Programs returns all programs sorted by identity.
func (r *Registry) Programs() []Program {
	out := make([]Program, 0, len(r.programs))
	for _, p := range r.programs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity() < out[j].Identity() })
	return out
}
