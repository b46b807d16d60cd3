// Copyright 2009 The Go Authors. All rights reserved.
// Copyright (c) 2015 Klaus Post
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flate

import (
	"encoding/binary"
	"math/bits"

	"github.com/andybalholm/zpack"
)

const (
	hashBits      = 15
	hashSize      = 1 << hashBits
	hashMask      = hashSize - 1
	maxHashOffset = 1 << 24

	// minLookahead is how much input must be buffered past the current
	// position before a match search, unless the matcher is flushing.
	minLookahead = minMatchLength + maxMatchLength

	// Three-byte matches further back than this cost more bits than the
	// literals they replace.
	tooFar = 4096
)

type compressionLevel struct {
	good, lazy, nice, chain int
}

// The zlib parameters for the lazy levels. Levels 0-3 do not use
// lazyMatcher.
var levels = [10]compressionLevel{
	4: {4, 4, 16, 16},
	5: {8, 16, 32, 32},
	6: {8, 16, 128, 128},
	7: {8, 32, 128, 256},
	8: {32, 128, 258, 1024},
	9: {32, 258, 258, 4096},
}

// lazyMatcher is the lazy-matching compressor from
// github.com/klauspost/compress/flate, modified to implement
// zpack.MatchFinder with a configurable window and three-byte matches.
//
// Input is buffered in window. Unprocessed data is window[index:windowEnd],
// and everything up to windowSize bytes before index is available as match
// history.
type lazyMatcher struct {
	compressionLevel

	// minLength is the shortest match reported.
	minLength int

	windowSize int
	windowMask int

	window    []byte
	windowEnd int

	// Input hash chains
	// hashHead[hashValue] contains the largest inputIndex with the specified hash value
	// If hashHead[hashValue] is within the current window, then
	// hashPrev[hashHead[hashValue] & windowMask] contains the previous index
	// with the same hash value.
	chainHead  int
	hashHead   [hashSize]uint32
	hashPrev   []uint32
	hashOffset int

	index          int
	maxInsertIndex int
	length         int
	offset         int
	hash           uint32
	hashMatch      [maxMatchLength + minMatchLength]uint32

	// queued output matches
	matches []zpack.Match

	sync          bool // requesting flush
	byteAvailable bool // if true, still need to process window[index-1].
	unmatched     int  // unmatched bytes to output with the next match
}

// newLazyMatcher returns a lazyMatcher for a level from 4 to 9.
func newLazyMatcher(level, windowBits, minLength int) *lazyMatcher {
	d := &lazyMatcher{
		compressionLevel: levels[level],
		minLength:        minLength,
		windowSize:       1 << windowBits,
		windowMask:       1<<windowBits - 1,
	}
	bufSize := d.windowSize
	if bufSize < 1024 {
		bufSize = 1024
	}
	d.window = make([]byte, d.windowSize+bufSize)
	d.hashPrev = make([]uint32, d.windowSize)
	d.Reset()
	return d
}

func (d *lazyMatcher) fill(b []byte) int {
	if d.index >= len(d.window)-minLookahead {
		// Slide the window so that index is windowSize bytes in.
		delta := d.index - d.windowSize
		copy(d.window, d.window[delta:d.windowEnd])
		d.index -= delta
		d.windowEnd -= delta
		d.hashOffset += delta
		if d.hashOffset > maxHashOffset {
			delta := d.hashOffset - 1
			d.hashOffset -= delta
			d.chainHead -= delta
			for i, v := range d.hashPrev {
				if int(v) > delta {
					d.hashPrev[i] = uint32(int(v) - delta)
				} else {
					d.hashPrev[i] = 0
				}
			}
			// Iterate over slices instead of arrays to avoid copying
			// the entire table onto the stack.
			for i, v := range d.hashHead[:] {
				if int(v) > delta {
					d.hashHead[i] = uint32(int(v) - delta)
				} else {
					d.hashHead[i] = 0
				}
			}
		}
	}
	n := copy(d.window[d.windowEnd:], b)
	d.windowEnd += n
	return n
}

// Try to find a match starting at pos whose length is greater than
// prevLength. We only look at chain possibilities before giving up.
func (d *lazyMatcher) findMatch(pos int, prevHead int, prevLength int, lookahead int) (length, offset int, ok bool) {
	minMatchLook := maxMatchLength
	if lookahead < minMatchLook {
		minMatchLook = lookahead
	}

	win := d.window[0 : pos+minMatchLook]

	// We quit when we get a match that's at least nice long
	nice := len(win) - pos
	if d.nice < nice {
		nice = d.nice
	}

	// If we've got a match that's good enough, only look in 1/4 the chain.
	tries := d.chain
	length = prevLength
	if length >= d.good {
		tries >>= 2
	}

	wEnd := win[pos+length]
	wPos := win[pos:]
	minIndex := pos - d.windowSize

	for i := prevHead; tries > 0; tries-- {
		if wEnd == win[i+length] {
			n := matchLen(win[i:i+minMatchLook], wPos)

			if n > length && (n > minMatchLength || pos-i <= tooFar) {
				length = n
				offset = pos - i
				ok = true
				if n >= nice {
					// The match is good enough that we don't try to find a better one.
					break
				}
				wEnd = win[pos+n]
			}
		}
		if i == minIndex {
			// hashPrev[i & windowMask] has already been overwritten, so stop now.
			break
		}
		i = int(d.hashPrev[i&d.windowMask]) - d.hashOffset
		if i < minIndex || i < 0 {
			break
		}
	}
	return
}

const prime3bytes = 506832829

// hash3 returns the hash of the first 3 bytes of b.
func hash3(b []byte) uint32 {
	u := uint32(b[2]) | uint32(b[1])<<8 | uint32(b[0])<<16
	return (u * prime3bytes) >> (32 - hashBits)
}

// bulkHash3 computes hash3 for every position in b that has three bytes
// available.
func bulkHash3(b []byte, dst []uint32) {
	if len(b) < minMatchLength {
		return
	}
	hb := uint32(b[2]) | uint32(b[1])<<8 | uint32(b[0])<<16
	dst[0] = (hb * prime3bytes) >> (32 - hashBits)
	end := len(b) - minMatchLength + 1
	for i := 1; i < end; i++ {
		hb = (hb<<8 | uint32(b[i+2])) & 0xffffff
		dst[i] = (hb * prime3bytes) >> (32 - hashBits)
	}
}

// insert adds position i to the hash chains.
func (d *lazyMatcher) insert(i int) {
	h := hash3(d.window[i:]) & hashMask
	d.hashPrev[i&d.windowMask] = d.hashHead[h]
	d.hashHead[h] = uint32(i + d.hashOffset)
}

func (d *lazyMatcher) deflateLazy() {
	if d.windowEnd-d.index < minLookahead && !d.sync {
		return
	}

	d.maxInsertIndex = d.windowEnd - (minMatchLength - 1)

	for {
		lookahead := d.windowEnd - d.index
		if lookahead < minLookahead {
			if !d.sync {
				return
			}
			if lookahead == 0 {
				if d.byteAvailable {
					// There is still one pending literal.
					d.unmatched++
					d.byteAvailable = false
				}
				return
			}
		}
		if d.index < d.maxInsertIndex {
			d.hash = hash3(d.window[d.index:]) & hashMask
			ch := d.hashHead[d.hash]
			d.chainHead = int(ch)
			d.hashPrev[d.index&d.windowMask] = ch
			d.hashHead[d.hash] = uint32(d.index + d.hashOffset)
		}
		prevLength := d.length
		prevOffset := d.offset
		d.length = minMatchLength - 1
		d.offset = 0
		minIndex := d.index - d.windowSize
		if minIndex < 0 {
			minIndex = 0
		}

		if d.chainHead-d.hashOffset >= minIndex && lookahead > prevLength && prevLength < d.lazy {
			if newLength, newOffset, ok := d.findMatch(d.index, d.chainHead-d.hashOffset, prevLength, lookahead); ok && newLength >= d.minLength {
				d.length = newLength
				d.offset = newOffset
			}
		}
		if prevLength >= d.minLength && d.length <= prevLength {
			// There was a match at the previous step, and the current match is
			// not better. Output the previous match.
			d.matches = append(d.matches, zpack.Match{
				Unmatched: d.unmatched,
				Length:    prevLength,
				Distance:  prevOffset,
			})
			d.unmatched = 0

			// Insert in the hash table all strings up to the end of the match.
			// index and index-1 are already inserted. If there is not enough
			// lookahead, the last two strings are not inserted into the hash
			// table.
			newIndex := d.index + prevLength - 1
			end := newIndex
			if end > d.maxInsertIndex {
				end = d.maxInsertIndex
			}
			end += minMatchLength - 1
			startIndex := d.index + 1
			if startIndex > d.maxInsertIndex {
				startIndex = d.maxInsertIndex
			}
			tocheck := d.window[startIndex:end]
			dstSize := len(tocheck) - minMatchLength + 1
			if dstSize > 0 {
				dst := d.hashMatch[:dstSize]
				bulkHash3(tocheck, dst)
				for i, val := range dst {
					di := i + startIndex
					newH := val & hashMask
					// Get previous value with the same hash.
					// Our chain should point to the previous value.
					d.hashPrev[di&d.windowMask] = d.hashHead[newH]
					// Set the head of the hash chain to us.
					d.hashHead[newH] = uint32(di + d.hashOffset)
				}
			}

			d.index = newIndex
			d.byteAvailable = false
			d.length = minMatchLength - 1
		} else {
			// We have a byte waiting. Emit it.
			if d.byteAvailable {
				d.unmatched++
			}
			d.index++
			d.byteAvailable = true
		}
	}
}

// FindMatches looks for matches in b, appends them to dst, and returns dst.
// All of b is processed before it returns.
func (d *lazyMatcher) FindMatches(dst []zpack.Match, b []byte) []zpack.Match {
	d.matches = dst
	for len(b) > 0 {
		d.deflateLazy()
		b = b[d.fill(b):]
	}
	d.sync = true
	d.deflateLazy()
	d.sync = false
	if d.unmatched > 0 {
		d.matches = append(d.matches, zpack.Match{
			Unmatched: d.unmatched,
		})
		d.unmatched = 0
	}
	dst = d.matches
	d.matches = nil
	return dst
}

// Prime loads the last windowSize bytes of history as match sources.
func (d *lazyMatcher) Prime(history []byte) {
	d.Reset()
	if len(history) > d.windowSize {
		history = history[len(history)-d.windowSize:]
	}
	d.windowEnd = copy(d.window, history)
	for i := 0; i+minMatchLength <= d.windowEnd; i++ {
		d.insert(i)
	}
	d.index = d.windowEnd
}

// Reset clears the match history.
func (d *lazyMatcher) Reset() {
	d.sync = false
	d.chainHead = -1
	for i := range d.hashHead {
		d.hashHead[i] = 0
	}
	for i := range d.hashPrev {
		d.hashPrev[i] = 0
	}
	d.hashOffset = 1
	d.index, d.windowEnd = 0, 0
	d.byteAvailable = false
	d.matches = nil
	d.length = minMatchLength - 1
	d.offset = 0
	d.hash = 0
	d.maxInsertIndex = 0
	d.unmatched = 0
}

// matchLen returns the maximum length.
// 'a' must be the shortest of the two.
func matchLen(a, b []byte) int {
	var checked int

	for len(a) >= 8 {
		if diff := binary.LittleEndian.Uint64(a) ^ binary.LittleEndian.Uint64(b); diff != 0 {
			return checked + (bits.TrailingZeros64(diff) >> 3)
		}
		checked += 8
		a = a[8:]
		b = b[8:]
	}
	b = b[:len(a)]
	for i := range a {
		if a[i] != b[i] {
			return i + checked
		}
	}
	return len(a) + checked
}
