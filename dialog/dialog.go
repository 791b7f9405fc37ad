// Package dialog runs declarative expect/send scripts against a live
// session. A script is a YAML document listing steps executed in order;
// the first failing step aborts the run. Scripts are pure clients of the
// session's public operations.
package dialog

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/praxiomlabs/expect"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "500ms" or "1m30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("dialog: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Matcher is one alternative inside an expect_any step. Exactly one field
// must be set.
type Matcher struct {
	Literal string `yaml:"literal,omitempty"`
	Re      string `yaml:"re,omitempty"`
	Glob    string `yaml:"glob,omitempty"`
}

func (m Matcher) pattern() (expect.Pattern, error) {
	set := 0
	for _, s := range []string{m.Literal, m.Re, m.Glob} {
		if s != "" {
			set++
		}
	}
	if set != 1 {
		return expect.Pattern{}, fmt.Errorf("dialog: matcher needs exactly one of literal/re/glob")
	}
	switch {
	case m.Literal != "":
		return expect.Literal(m.Literal), nil
	case m.Re != "":
		return expect.RegexpPattern(m.Re)
	default:
		return expect.Glob(m.Glob)
	}
}

// Step is a single script action. Exactly one action field must be set;
// Timeout optionally overrides the script default for this step.
type Step struct {
	Send       *string   `yaml:"send,omitempty"`
	SendLine   *string   `yaml:"send_line,omitempty"`
	Expect     string    `yaml:"expect,omitempty"`
	ExpectRe   string    `yaml:"expect_re,omitempty"`
	ExpectGlob string    `yaml:"expect_glob,omitempty"`
	ExpectAny  []Matcher `yaml:"expect_any,omitempty"`
	ExpectEOF  bool      `yaml:"expect_eof,omitempty"`
	Wait       bool      `yaml:"wait,omitempty"`
	Timeout    Duration  `yaml:"timeout,omitempty"`
}

func (s Step) kind() (string, error) {
	kinds := []struct {
		name string
		set  bool
	}{
		{"send", s.Send != nil},
		{"send_line", s.SendLine != nil},
		{"expect", s.Expect != ""},
		{"expect_re", s.ExpectRe != ""},
		{"expect_glob", s.ExpectGlob != ""},
		{"expect_any", len(s.ExpectAny) > 0},
		{"expect_eof", s.ExpectEOF},
		{"wait", s.Wait},
	}
	found := ""
	for _, k := range kinds {
		if !k.set {
			continue
		}
		if found != "" {
			return "", fmt.Errorf("dialog: step sets both %s and %s", found, k.name)
		}
		found = k.name
	}
	if found == "" {
		return "", fmt.Errorf("dialog: step sets no action")
	}
	return found, nil
}

// Script is a named sequence of steps, with an optional command line to
// spawn and a default per-step deadline.
type Script struct {
	Name    string   `yaml:"name"`
	Spawn   string   `yaml:"spawn,omitempty"`
	Timeout Duration `yaml:"timeout,omitempty"`
	Steps   []Step   `yaml:"steps"`
}

// Load parses a script and validates every step, so pattern compile errors
// and malformed steps surface before anything runs.
func Load(r io.Reader) (*Script, error) {
	var s Script
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("dialog: parse script: %w", err)
	}
	if len(s.Steps) == 0 {
		return nil, fmt.Errorf("dialog: script %q has no steps", s.Name)
	}
	for i, step := range s.Steps {
		if _, err := step.kind(); err != nil {
			return nil, fmt.Errorf("dialog: step %d: %w", i+1, err)
		}
		if _, err := step.patterns(); err != nil {
			return nil, fmt.Errorf("dialog: step %d: %w", i+1, err)
		}
	}
	return &s, nil
}

// LoadFile reads and parses the script at path.
func LoadFile(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// patterns compiles the step's expect patterns, nil for send/wait steps.
func (s Step) patterns() ([]expect.Pattern, error) {
	switch {
	case s.Expect != "":
		return []expect.Pattern{expect.Literal(s.Expect)}, nil
	case s.ExpectRe != "":
		p, err := expect.RegexpPattern(s.ExpectRe)
		if err != nil {
			return nil, err
		}
		return []expect.Pattern{p}, nil
	case s.ExpectGlob != "":
		p, err := expect.Glob(s.ExpectGlob)
		if err != nil {
			return nil, err
		}
		return []expect.Pattern{p}, nil
	case len(s.ExpectAny) > 0:
		out := make([]expect.Pattern, 0, len(s.ExpectAny))
		for _, m := range s.ExpectAny {
			p, err := m.pattern()
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		return out, nil
	default:
		return nil, nil
	}
}
