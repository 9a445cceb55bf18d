package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformed indicates command text that cannot be parsed.
var ErrMalformed = errors.New("MALFORMED_COMMAND")

// Command is a tagged variant of Kind plus arguments.
type Command struct {
	Kind Kind
	Args []int
}

// New returns a command of the given kind.
func New(kind Kind, args ...int) Command {
	return Command{Kind: kind, Args: args}
}

// Arg returns the first argument, or def when there is none.
func (c Command) Arg(def int) int {
	if len(c.Args) == 0 {
		return def
	}
	return c.Args[0]
}

// String returns the text form, e.g. "next_left 2".
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Kind.Keyword()
	}
	parts := []string{c.Kind.Keyword()}
	for _, a := range c.Args {
		parts = append(parts, strconv.Itoa(a))
	}
	return strings.Join(parts, " ")
}

// Equal reports whether two commands have the same kind and arguments.
func (c Command) Equal(other Command) bool {
	if c.Kind != other.Kind || len(c.Args) != len(other.Args) {
		return false
	}
	for i := range c.Args {
		if c.Args[i] != other.Args[i] {
			return false
		}
	}
	return true
}

// Parse builds a command from its text form: a keyword followed by at most
// one integer argument. Argument ranges are checked on execution, not here.
func Parse(s string) (Command, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("%w: empty command", ErrMalformed)
	}

	kind, err := ParseKind(fields[0])
	if err != nil {
		return Command{}, err
	}

	args := make([]int, 0, len(fields)-1)
	for _, f := range fields[1:] {
		n, err := strconv.Atoi(f)
		if err != nil {
			return Command{}, fmt.Errorf("%w: %s argument %q is not an integer", ErrMalformed, kind, f)
		}
		args = append(args, n)
	}

	if err := Validate(kind, args); err != nil {
		return Command{}, err
	}
	return Command{Kind: kind, Args: args}, nil
}

// Validate checks argument arity for kind.
func Validate(kind Kind, args []int) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown kind %d", ErrMalformed, int(kind))
	}
	switch {
	case kind == KindSpeedFine && len(args) != 1:
		return fmt.Errorf("%w: %s requires exactly one level", ErrMalformed, kind)
	case kind.IsNext() && len(args) > 1:
		return fmt.Errorf("%w: %s takes at most one count", ErrMalformed, kind)
	case !kind.TakesArg() && len(args) > 0:
		return fmt.Errorf("%w: %s takes no arguments", ErrMalformed, kind)
	}
	return nil
}
