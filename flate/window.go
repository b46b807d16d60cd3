// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flate

// window implements the LZ77 sliding dictionary as used in decompression.
// LZ77 decompresses data through sequences of two forms of commands:
//
//   - Literal insertions: Runs of one or more symbols are inserted into the data
//     stream as is. This is accomplished through the writeByte method for a
//     single symbol, or combinations of writeSlice/writeMark for multiple symbols.
//     Any valid stream must start with a literal insertion if no preset dictionary
//     is used.
//
//   - Backward copies: Runs of one or more symbols are copied from previously
//     emitted data. Backward copies come as the tuple (dist, length) where dist
//     determines how far back in the stream to copy from and length determines how
//     many bytes to copy. Note that it is valid for the length to be greater than
//     the distance. Since LZ77 uses forward copies, that situation is used to
//     perform a form of run-length encoding on repeated runs of symbols.
//     The writeCopy method is used to implement this command.
//
// The history is a ring buffer. Bytes written to it stay pending until read
// out, and the buffer only wraps once everything has been read.
type window struct {
	hist []byte // Sliding window history

	wrPos int  // Current output position in buffer
	rdPos int  // Have emitted hist[:rdPos] already
	full  bool // Has a full window length been written yet?
}

// init sets up the window with the given size, seeded with the tail of dict.
func (w *window) init(size int, dict []byte) {
	*w = window{hist: w.hist}
	if cap(w.hist) < size {
		w.hist = make([]byte, size)
	}
	w.hist = w.hist[:size]

	if len(dict) > len(w.hist) {
		dict = dict[len(dict)-len(w.hist):]
	}
	w.wrPos = copy(w.hist, dict)
	if w.wrPos == len(w.hist) {
		w.wrPos = 0
		w.full = true
	}
	w.rdPos = w.wrPos
}

// histSize reports the total amount of historical data in the window.
func (w *window) histSize() int {
	if w.full {
		return len(w.hist)
	}
	return w.wrPos
}

// pending reports the number of bytes written but not yet read out.
func (w *window) pending() int {
	return w.wrPos - w.rdPos
}

// availSize reports the available amount of output buffer space.
func (w *window) availSize() int {
	return len(w.hist) - w.wrPos
}

// writeSlice returns a slice of the available buffer to write data to.
//
// This invariant will be kept: len(s) <= availSize()
func (w *window) writeSlice() []byte {
	return w.hist[w.wrPos:]
}

// writeMark advances the writer pointer by cnt.
func (w *window) writeMark(cnt int) {
	w.wrPos += cnt
}

// writeByte writes a single byte to the window.
//
// This invariant must be kept: 0 < availSize()
func (w *window) writeByte(c byte) {
	w.hist[w.wrPos] = c
	w.wrPos++
}

// writeCopy copies a string at a given (dist, length) to the output.
// This returns the number of bytes copied and may be less than the requested
// length if the available space in the output buffer is too small.
//
// This invariant must be kept: 0 < dist <= histSize()
func (w *window) writeCopy(dist, length int) int {
	wrBase := w.wrPos
	wrEnd := w.wrPos + length
	if wrEnd > len(w.hist) {
		wrEnd = len(w.hist)
	}

	// Copy non-overlapping section after destination position.
	//
	// This section is non-overlapping in that the copy length for this section
	// is always less than or equal to the backwards distance. This can occur
	// if a distance refers to data that wraps-around in the buffer.
	// Thus, a backwards copy is performed here; that is, the exact bytes in
	// the source prior to the copy is placed in the destination.
	rdPos := w.wrPos - dist
	if rdPos < 0 {
		rdPos += len(w.hist)
		w.wrPos += copy(w.hist[w.wrPos:wrEnd], w.hist[rdPos:])
		rdPos = 0
	}

	// Copy possibly overlapping section before destination position.
	//
	// This section can overlap if the copy length for this section is larger
	// than the backwards distance. This is allowed by LZ77 so that repeated
	// strings can be succinctly represented using (dist, length) pairs.
	// Thus, a forwards copy is performed here; that is, the bytes copied is
	// possibly dependent on the resulting bytes in the destination as the copy
	// progresses along.
	for w.wrPos < wrEnd {
		w.wrPos += copy(w.hist[w.wrPos:wrEnd], w.hist[rdPos:w.wrPos])
	}
	return w.wrPos - wrBase
}

// readTo copies pending bytes to p and returns the bytes copied, as a slice
// of the history. Once everything up to the end of the buffer has been read,
// the buffer wraps around.
func (w *window) readTo(p []byte) []byte {
	n := copy(p, w.hist[w.rdPos:w.wrPos])
	out := w.hist[w.rdPos : w.rdPos+n]
	w.rdPos += n
	w.wrap()
	return out
}

func (w *window) wrap() {
	if w.rdPos == len(w.hist) {
		w.wrPos, w.rdPos = 0, 0
		w.full = true
	}
}
