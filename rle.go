package zpack

// RunLength is a MatchFinder that only finds runs of a repeated byte, so
// every match it reports has a distance of 1.
type RunLength struct {
	// MinLength is the shortest run that will be reported. The default is 3.
	MinLength int

	// MaxLength is the longest match that will be reported. The default is 258.
	MaxLength int

	last    byte
	hasLast bool
}

func (r *RunLength) Reset() {
	r.hasLast = false
}

// Prime remembers the last byte of history, which is all a run needs.
func (r *RunLength) Prime(history []byte) {
	r.hasLast = len(history) > 0
	if r.hasLast {
		r.last = history[len(history)-1]
	}
}

// FindMatches looks for runs in src, appends them to dst, and returns dst.
func (r *RunLength) FindMatches(dst []Match, src []byte) []Match {
	minLength, maxLength := r.MinLength, r.MaxLength
	if minLength == 0 {
		minLength = 3
	}
	if maxLength == 0 {
		maxLength = 258
	}

	nextEmit := 0
	for s := 0; s < len(src); {
		var prev byte
		switch {
		case s > 0:
			prev = src[s-1]
		case r.hasLast:
			prev = r.last
		default:
			s++
			continue
		}

		n := 0
		for s+n < len(src) && n < maxLength && src[s+n] == prev {
			n++
		}
		if n < minLength {
			s++
			continue
		}

		dst = append(dst, Match{
			Unmatched: s - nextEmit,
			Length:    n,
			Distance:  1,
		})
		s += n
		nextEmit = s
	}

	if nextEmit < len(src) {
		dst = append(dst, Match{
			Unmatched: len(src) - nextEmit,
		})
	}
	if len(src) > 0 {
		r.last = src[len(src)-1]
		r.hasLast = true
	}
	return dst
}

// LiteralsOnly is a MatchFinder that never finds a match. It is used for
// Huffman-only compression.
type LiteralsOnly struct{}

func (LiteralsOnly) Reset() {}

func (LiteralsOnly) Prime(history []byte) {}

func (LiteralsOnly) FindMatches(dst []Match, src []byte) []Match {
	if len(src) > 0 {
		dst = append(dst, Match{
			Unmatched: len(src),
		})
	}
	return dst
}
