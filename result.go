package expect

// MatchResult reports the winner of one expect call. Every byte slice is a
// copy owned by the caller. After is the unconsumed buffer beyond the match
// at the moment the result was built: a snapshot, never a live view. Bytes
// arriving later do not retroactively appear in it.
type MatchResult struct {
	// Before holds the bytes preceding the match. For an EOF match it
	// holds the whole remaining buffer.
	Before []byte

	// Matched is the winning span. Empty for an EOF match.
	Matched []byte

	// After snapshots the unconsumed buffer past the match end.
	After []byte

	// Captures are positional submatches for regexp and glob patterns;
	// Captures[0] is the full match. Nil for literal and EOF wins.
	Captures [][]byte

	// Named maps named capture groups to their matched bytes.
	Named map[string][]byte

	// PatternIndex is the position of the winning pattern in the
	// caller-supplied set.
	PatternIndex int

	// EOF is set when the end-of-stream pseudo-pattern won.
	EOF bool
}

func cloneBytes(p []byte) []byte {
	out := make([]byte, len(p))
	copy(out, p)
	return out
}

// newMatchResult builds a result from a byte-pattern win over data. It runs
// under the buffer lock, so data is stable for the duration.
func newMatchResult(data []byte, index int, loc matchLoc, p Pattern) *MatchResult {
	r := &MatchResult{
		Before:       cloneBytes(data[:loc.start]),
		Matched:      cloneBytes(data[loc.start:loc.end]),
		After:        cloneBytes(data[loc.end:]),
		PatternIndex: index,
	}
	if len(loc.groups) == 0 {
		return r
	}
	n := len(loc.groups) / 2
	r.Captures = make([][]byte, n)
	for i := 0; i < n; i++ {
		s, e := loc.groups[2*i], loc.groups[2*i+1]
		if s < 0 {
			continue
		}
		r.Captures[i] = cloneBytes(data[s:e])
	}
	if p.re != nil {
		for gi, name := range p.re.SubexpNames() {
			if name == "" || gi >= n {
				continue
			}
			if r.Named == nil {
				r.Named = make(map[string][]byte)
			}
			r.Named[name] = r.Captures[gi]
		}
	}
	return r
}
