package zpack

import (
	"encoding/binary"
	"math/bits"
	"runtime"
)

// HashChain is an implementation of the MatchFinder interface that
// uses hash chaining to find longer matches. The chain is an arena: one
// entry per history byte, holding the distance back to the previous
// position with the same hash.
type HashChain struct {
	// SearchLen is how many entries to examine on the hash chain.
	// The default is 1.
	SearchLen int

	// MaxDistance is the maximum distance (in bytes) to look back for
	// a match. The default is 32768.
	MaxDistance int

	// MaxLength is the longest match that will be reported.
	// The default is 258.
	MaxLength int

	// NiceLength stops the chain search once a match this long is found.
	// The default is MaxLength.
	NiceLength int

	Parser Parser

	table [maxTableSize]uint32

	history []byte
	chain   []uint16
}

const (
	// The history is trimmed back to MaxDistance once it has grown
	// historySlack bytes past it.
	historySlack = 1 << 16

	maxTableSize = 1 << 15
	shift        = 32 - 15
	// tableMask is redundant, but helps the compiler eliminate bounds
	// checks.
	tableMask = maxTableSize - 1

	// Three-byte matches further back than this cost more bits than the
	// literals they replace.
	tooFar = 4096
)

func (q *HashChain) Reset() {
	q.table = [maxTableSize]uint32{}
	q.history = q.history[:0]
	q.chain = q.chain[:0]
}

// Prime replaces the history with the last MaxDistance bytes of history.
func (q *HashChain) Prime(history []byte) {
	q.setDefaults()
	q.Reset()
	if len(history) > q.MaxDistance {
		history = history[len(history)-q.MaxDistance:]
	}
	q.history = append(q.history, history...)
	q.updateChain()
}

func (q *HashChain) setDefaults() {
	if q.MaxDistance == 0 {
		q.MaxDistance = 32768
	}
	if q.SearchLen == 0 {
		q.SearchLen = 1
	}
	if q.MaxLength == 0 {
		q.MaxLength = 258
	}
	if q.NiceLength == 0 {
		q.NiceLength = q.MaxLength
	}
}

// FindMatches looks for matches in src, appends them to dst, and returns dst.
func (q *HashChain) FindMatches(dst []Match, src []byte) []Match {
	q.setDefaults()
	var nextEmit int

	if len(q.history) > q.MaxDistance+historySlack {
		// Trim down the history buffer.
		delta := len(q.history) - q.MaxDistance
		copy(q.history, q.history[delta:])
		q.history = q.history[:q.MaxDistance]
		copy(q.chain, q.chain[delta:])
		q.chain = q.chain[:len(q.chain)-delta]

		for i, v := range q.table {
			newV := int(v) - delta
			if newV < 0 {
				newV = 0
			}
			q.table[i] = uint32(newV)
		}
	}

	// Append src to the history buffer.
	nextEmit = len(q.history)
	q.history = append(q.history, src...)
	q.updateChain()

	return q.Parser.Parse(dst, q, nextEmit, len(q.history))
}

// updateChain calculates hashes and chain entries for every history
// position that has three bytes available and no entry yet.
func (q *HashChain) updateChain() {
	src := q.history
	chain := q.chain
	for i := len(chain); i+2 < len(src); i++ {
		h := hash3(src[i:])
		// Table entries are position+1, so that 0 means empty.
		candidate := int(q.table[h&tableMask]) - 1
		q.table[h&tableMask] = uint32(i + 1)
		if candidate < 0 || i-candidate > 65535 {
			chain = append(chain, 0)
		} else {
			chain = append(chain, uint16(i-candidate))
		}
	}
	q.chain = chain
}

const hashMul32 = 0x1e35a7bd

// hash3 hashes the first three bytes of b.
func hash3(b []byte) uint32 {
	u := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
	return (u * hashMul32) >> shift
}

// extendMatch returns the largest k such that k <= len(src) and that
// src[i:i+k-j] and src[j:k] have the same contents.
//
// It assumes that:
//
//	0 <= i && i < j && j <= len(src)
func extendMatch(src []byte, i, j int) int {
	switch runtime.GOARCH {
	case "amd64":
		// As long as we are 8 or more bytes before the end of src, we can load and
		// compare 8 bytes at a time. If those 8 bytes are equal, repeat.
		for j+8 < len(src) {
			iBytes := binary.LittleEndian.Uint64(src[i:])
			jBytes := binary.LittleEndian.Uint64(src[j:])
			if iBytes != jBytes {
				// If those 8 bytes were not equal, XOR the two 8 byte values, and return
				// the index of the first byte that differs. The BSF instruction finds the
				// least significant 1 bit, the amd64 architecture is little-endian, and
				// the shift by 3 converts a bit index to a byte index.
				return j + bits.TrailingZeros64(iBytes^jBytes)>>3
			}
			i, j = i+8, j+8
		}
	case "386":
		// On a 32-bit CPU, we do it 4 bytes at a time.
		for j+4 < len(src) {
			iBytes := binary.LittleEndian.Uint32(src[i:])
			jBytes := binary.LittleEndian.Uint32(src[j:])
			if iBytes != jBytes {
				return j + bits.TrailingZeros32(iBytes^jBytes)>>3
			}
			i, j = i+4, j+4
		}
	}
	for ; j < len(src) && src[i] == src[j]; i, j = i+1, j+1 {
	}
	return j
}

func (q *HashChain) Search(dst []AbsoluteMatch, pos, min, max int) []AbsoluteMatch {
	if pos >= len(q.chain) || pos+3 > max {
		return dst
	}
	src := q.history

	var length int

	candidate := pos
	for i := 0; i < q.SearchLen; i++ {
		d := q.chain[candidate]
		if d == 0 {
			break
		}
		candidate -= int(d)
		if candidate < 0 || pos-candidate > q.MaxDistance {
			break
		}
		if src[candidate] != src[pos] || src[candidate+1] != src[pos+1] || src[candidate+2] != src[pos+2] {
			continue
		}

		newEnd := extendMatch(src[:max], candidate+3, pos+3)

		// Extend the match backward as far as possible.
		newStart := pos
		newMatch := candidate
		for newStart > min && newMatch > 0 && src[newStart-1] == src[newMatch-1] {
			newStart--
			newMatch--
		}

		if newEnd-newStart > q.MaxLength {
			newEnd = newStart + q.MaxLength
		}
		if newEnd-newStart == 3 && pos-candidate > tooFar {
			continue
		}

		if newEnd-newStart > length {
			dst = append(dst, AbsoluteMatch{
				Start: newStart,
				End:   newEnd,
				Match: newMatch,
			})
			length = newEnd - newStart
			if length >= q.NiceLength {
				break
			}
		}
	}

	return dst
}
