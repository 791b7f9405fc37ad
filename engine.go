package expect

import (
	"context"
	"errors"
	"time"
)

// ErrNoPatterns is returned by an expect call given an empty pattern set.
var ErrNoPatterns = errors.New("expect: no patterns given")

// engine resolves a single expect call: a race between byte patterns over
// the unconsumed buffer, new data, stream closure, the deadline, and caller
// cancellation. One engine value is built per call; the buffer and channels
// belong to the Session.
type engine struct {
	buf            *buffer
	notify         <-chan struct{} // signaled after every reader append
	closed         <-chan struct{} // closed when the reader stops
	readErr        func() error    // fatal read error once closed, if any
	defaultTimeout time.Duration
}

// run repeatedly rescans the buffer until one of the outcomes wins.
//
// Byte patterns are scanned in priority order and the earliest start offset
// wins, ties resolved to the lowest index. A winner consumes the buffer
// through its end offset. End-of-stream and the deadline resolve the call
// only when no byte pattern matches: a match already buffered when the
// stream closes is reported as a match.
func (e *engine) run(ctx context.Context, patterns []Pattern) (*MatchResult, error) {
	if len(patterns) == 0 {
		return nil, ErrNoPatterns
	}

	start := time.Now()

	eofIndex := -1
	deadline := e.defaultTimeout
	explicit := false
	for i, p := range patterns {
		switch p.kind {
		case KindEOF:
			if eofIndex < 0 {
				eofIndex = i
			}
		case KindDeadline:
			if !explicit || p.wait < deadline {
				deadline = p.wait
			}
			explicit = true
		}
	}

	var timeout <-chan time.Time
	if deadline > 0 {
		timer := time.NewTimer(deadline)
		defer timer.Stop()
		timeout = timer.C
	}

	closed := e.closed
	streamClosed := false

	for {
		if res := e.scan(patterns); res != nil {
			return res, nil
		}

		if streamClosed {
			// Final full-buffer scan above found no byte winner.
			if err := e.readErr(); err != nil {
				return nil, err
			}
			if eofIndex >= 0 {
				return e.eofResult(eofIndex), nil
			}
			return nil, &EndOfStreamError{
				Patterns: patternStrings(patterns),
				Snapshot: e.buf.snapshot(),
			}
		}

		select {
		case <-e.notify:
		case <-closed:
			streamClosed = true
			closed = nil
		case <-timeout:
			return nil, &TimeoutError{
				Deadline: deadline,
				Elapsed:  time.Since(start),
				Patterns: patternStrings(patterns),
				Snapshot: e.buf.snapshot(),
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// scan tests every byte pattern against the unconsumed buffer, consumes
// through the winner's end, and builds the result, all under the buffer
// lock. Returns nil when nothing matched.
func (e *engine) scan(patterns []Pattern) *MatchResult {
	var res *MatchResult
	e.buf.view(func(data []byte) int {
		winner := -1
		var at matchLoc
		for i, p := range patterns {
			loc, ok := p.match(data)
			if !ok {
				continue
			}
			// Strict less keeps the earliest-declared pattern on ties.
			if winner < 0 || loc.start < at.start {
				winner, at = i, loc
			}
		}
		if winner < 0 {
			return 0
		}
		res = newMatchResult(data, winner, at, patterns[winner])
		return at.end
	})
	return res
}

// eofResult consumes the whole remaining buffer into Before so no byte is
// ever delivered twice.
func (e *engine) eofResult(index int) *MatchResult {
	var res *MatchResult
	e.buf.view(func(data []byte) int {
		res = &MatchResult{
			Before:       cloneBytes(data),
			Matched:      []byte{},
			After:        []byte{},
			PatternIndex: index,
			EOF:          true,
		}
		return len(data)
	})
	return res
}
