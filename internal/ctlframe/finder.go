package ctlframe

import "bytes"

// tailSize caps how much of a previous chunk is ever retained awaiting a
// split pattern, so a pathologically long search pattern can't make Feed
// withhold unbounded amounts of otherwise-plain output.
const tailSize = 100

// Finder incrementally scans a byte stream for a fixed pattern, correctly
// matching occurrences that straddle two separate Feed calls by retaining a
// trailing buffer from the previous chunk.
type Finder struct {
	pattern []byte
	tail    []byte
}

// NewFinder returns a Finder that looks for pattern across successive Feed
// calls.
func NewFinder(pattern []byte) *Finder {
	return &Finder{pattern: append([]byte(nil), pattern...)}
}

// Feed scans chunk, prefixed with any retained tail from the previous call,
// for the first occurrence of the pattern. It returns the bytes before the
// match and the bytes after it (both relative to the combined buffer), and
// ok is true if a match was found in this call. When ok is false, the last
// len(pattern)-1 bytes of the combined buffer (at most tailSize, and fewer if
// the buffer is shorter) are retained for the next Feed call, and before
// holds everything that is now safe to treat as plain, unmatched output.
func (f *Finder) Feed(chunk []byte) (before, after []byte, ok bool) {
	combined := append(f.tail, chunk...)
	f.tail = nil

	if idx := bytes.Index(combined, f.pattern); idx >= 0 {
		before = combined[:idx]
		after = combined[idx+len(f.pattern):]
		return before, after, true
	}

	// Only the bytes that could still be a prefix of the pattern need to be
	// withheld; everything else is safe to flush immediately so interactive
	// keystrokes aren't delayed waiting for a control frame that never
	// arrives.
	keep := len(f.pattern) - 1
	if keep < 0 {
		keep = 0
	}
	if keep > tailSize {
		keep = tailSize
	}
	if keep > len(combined) {
		keep = len(combined)
	}
	cut := len(combined) - keep
	if cut < 0 {
		cut = 0
	}
	before = combined[:cut]
	f.tail = append([]byte(nil), combined[cut:]...)
	return before, nil, false
}

// Pending returns the bytes currently withheld awaiting more input, without
// consuming them. Useful for flushing on stream close.
func (f *Finder) Pending() []byte {
	return f.tail
}
