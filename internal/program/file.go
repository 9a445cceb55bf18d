package program

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk programs document.
//
//	programs:
//	  - sequence: "red, yellow"
//	    command: "next_left 2"
type File struct {
	Programs []Entry `yaml:"programs"`
}

// Entry is one program in text form.
type Entry struct {
	Sequence string `yaml:"sequence"`
	Command  string `yaml:"command"`
}

// LoadFile reads and validates a programs file.
func LoadFile(path string) ([]Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read programs file: %w", err)
	}
	programs, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return programs, nil
}

// Decode parses a programs document. Every entry is validated; all entry
// errors are reported together.
func Decode(data []byte) ([]Program, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse programs file: %w", err)
	}

	programs := make([]Program, 0, len(f.Programs))
	var errs []error
	for i, e := range f.Programs {
		p, err := Parse(e.Sequence, e.Command)
		if err != nil {
			errs = append(errs, fmt.Errorf("programs[%d]: %w", i, err))
			continue
		}
		programs = append(programs, p)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return programs, nil
}

// Encode renders programs as a programs document.
func Encode(programs []Program) ([]byte, error) {
	f := File{Programs: make([]Entry, 0, len(programs))}
	for _, p := range programs {
		f.Programs = append(f.Programs, Entry{
			Sequence: sequenceCSV(p),
			Command:  p.Command().String(),
		})
	}
	return yaml.Marshal(&f)
}

func sequenceCSV(p Program) string {
	var buf bytes.Buffer
	for i, c := range p.Trigger() {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(c.String())
	}
	return buf.String()
}
