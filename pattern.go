package expect

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// PatternKind enumerates the closed set of pattern variants. Literal,
// Regexp and Glob match buffered bytes; EOF and Deadline are synthetic and
// carry no byte span.
type PatternKind int

const (
	KindLiteral PatternKind = iota
	KindRegexp
	KindGlob
	KindEOF
	KindDeadline
)

func (k PatternKind) String() string {
	switch k {
	case KindLiteral:
		return "literal"
	case KindRegexp:
		return "regexp"
	case KindGlob:
		return "glob"
	case KindEOF:
		return "eof"
	case KindDeadline:
		return "deadline"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Pattern is one matching rule in an expect call. Its priority is its
// position in the caller-supplied pattern list. Patterns are immutable
// after construction and safe for reuse across calls and sessions.
type Pattern struct {
	kind PatternKind
	text string
	lit  []byte
	re   *regexp.Regexp
	wait time.Duration
}

// Literal matches the first byte-exact occurrence of text.
func Literal(text string) Pattern {
	return Pattern{kind: KindLiteral, text: text, lit: []byte(text)}
}

// Regexp matches the leftmost match of a pre-compiled expression. Capture
// groups, named and positional, are carried into the MatchResult.
func Regexp(re *regexp.Regexp) Pattern {
	return Pattern{kind: KindRegexp, text: re.String(), re: re}
}

// RegexpPattern compiles expr and returns the resulting regexp pattern.
// Compilation failure is reported here, never at match time.
func RegexpPattern(expr string) (Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, &PatternError{Kind: KindRegexp, Expr: expr, Err: err}
	}
	return Regexp(re), nil
}

// MustRegexp is RegexpPattern that panics on compile failure.
func MustRegexp(expr string) Pattern {
	p, err := RegexpPattern(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// Glob matches a shell-style glob where '*' matches any run of bytes and
// '?' matches a single byte, both crossing newlines. A backslash escapes
// the next character. The glob is translated once, at construction, into
// an equivalent regexp and matched like one thereafter.
func Glob(pattern string) (Pattern, error) {
	re, err := globRegexp(pattern)
	if err != nil {
		return Pattern{}, &PatternError{Kind: KindGlob, Expr: pattern, Err: err}
	}
	return Pattern{kind: KindGlob, text: pattern, re: re}, nil
}

// MustGlob is Glob that panics on translation failure.
func MustGlob(pattern string) Pattern {
	p, err := Glob(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

// EOF matches once the transport has closed and every other pattern in the
// active set has been tested against the full buffer without a match. An
// EOF match consumes the entire remaining buffer into Before.
var EOF = Pattern{kind: KindEOF}

// Deadline bounds the expect call it appears in, measured on a monotonic
// clock from the start of the call. It overrides the session default; the
// earliest of several Deadline patterns governs. A non-positive duration
// disables the deadline entirely.
func Deadline(d time.Duration) Pattern {
	return Pattern{kind: KindDeadline, wait: d}
}

// Kind returns the pattern's variant.
func (p Pattern) Kind() PatternKind { return p.kind }

func (p Pattern) String() string {
	switch p.kind {
	case KindLiteral:
		return fmt.Sprintf("literal(%q)", p.text)
	case KindRegexp:
		return fmt.Sprintf("regexp(%q)", p.text)
	case KindGlob:
		return fmt.Sprintf("glob(%q)", p.text)
	case KindEOF:
		return "eof"
	case KindDeadline:
		return fmt.Sprintf("deadline(%v)", p.wait)
	default:
		return p.kind.String()
	}
}

// matchLoc locates a match within a scanned slice. groups uses the regexp
// FindSubmatchIndex layout: pairs of start/end offsets, -1 for absent
// submatches.
type matchLoc struct {
	start, end int
	groups     []int
}

// match reports the first occurrence of p in data. It is pure: no state on
// either side changes. Synthetic kinds never match bytes.
func (p Pattern) match(data []byte) (matchLoc, bool) {
	switch p.kind {
	case KindLiteral:
		i := bytes.Index(data, p.lit)
		if i < 0 {
			return matchLoc{}, false
		}
		return matchLoc{start: i, end: i + len(p.lit)}, true
	case KindRegexp, KindGlob:
		loc := p.re.FindSubmatchIndex(data)
		if loc == nil {
			return matchLoc{}, false
		}
		return matchLoc{start: loc[0], end: loc[1], groups: loc}, true
	default:
		return matchLoc{}, false
	}
}

// globRegexp translates a glob into an unanchored regexp. Everything except
// '*', '?' and backslash escapes is quoted verbatim.
func globRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("(?s)")
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '\\':
			if i == len(pattern)-1 {
				return nil, errors.New("trailing backslash")
			}
			i++
			b.WriteString(regexp.QuoteMeta(string(pattern[i])))
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return regexp.Compile(b.String())
}

// patternStrings renders a pattern set for error payloads and log fields.
func patternStrings(patterns []Pattern) []string {
	out := make([]string, len(patterns))
	for i, p := range patterns {
		out[i] = p.String()
	}
	return out
}
