package flate

import "math/bits"

// The data structure for decoding Huffman tables is based on that of
// zlib. There is a lookup table of a fixed bit width (huffmanChunkBits),
// For codes smaller than the table width, there are multiple entries
// (each combination of trailing bits has the same value). For codes
// larger than the table width, the table contains a link to an overflow
// table. The width of each entry in the link table is the maximum code
// size minus the chunk width.
//
// Note that you can do a lookup in the table even without all bits
// filled. Since the extra bits are zero, and the DEFLATE Huffman codes
// have the property that shorter codes come before longer ones, the
// bit length estimate in the result is a lower bound on the actual
// number of bits.
//
// chunk & 15 is number of bits
// chunk >> 4 is value, including table link

const (
	huffmanChunkBits  = 9
	huffmanNumChunks  = 1 << huffmanChunkBits
	huffmanCountMask  = 15
	huffmanValueShift = 4
)

type huffmanDecoder struct {
	min      int                      // the minimum code length
	chunks   [huffmanNumChunks]uint32 // chunks as described above
	links    [][]uint32               // overflow links
	linkMask uint32                   // mask the width of the link table
}

// init builds the decoding tables from an array of code lengths. It reports
// false if the lengths do not describe a complete prefix code. Two
// incomplete codes are accepted, as RFC 1951 allows: a single code of
// length 1, and (if allowEmpty) no codes at all.
func (h *huffmanDecoder) init(lengths []uint8, allowEmpty bool) bool {
	*h = huffmanDecoder{}

	// Count number of codes of each length,
	// compute min and max length.
	var count [maxCodeBits + 1]int
	var min, max int
	for _, n := range lengths {
		if n == 0 {
			continue
		}
		if int(n) > maxCodeBits {
			return false
		}
		if min == 0 || int(n) < min {
			min = int(n)
		}
		if int(n) > max {
			max = int(n)
		}
		count[n]++
	}
	if max == 0 {
		return allowEmpty
	}

	code := 0
	var nextcode [maxCodeBits + 1]int
	for i := min; i <= max; i++ {
		code <<= 1
		nextcode[i] = code
		code += count[i]
	}

	// Check that the coding is complete (i.e., that we've
	// assigned all 2-to-the-max possible bit sequences).
	// Exception: To be compatible with zlib, we also need to
	// accept degenerate single-code codings.
	if code != 1<<uint(max) && !(code == 1 && max == 1) {
		return false
	}

	h.min = min
	if max > huffmanChunkBits {
		numLinks := 1 << (uint(max) - huffmanChunkBits)
		h.linkMask = uint32(numLinks - 1)

		// create link tables
		link := nextcode[huffmanChunkBits+1] >> 1
		h.links = make([][]uint32, huffmanNumChunks-link)
		for j := uint(link); j < huffmanNumChunks; j++ {
			reverse := int(bits.Reverse16(uint16(j)))
			reverse >>= uint(16 - huffmanChunkBits)
			off := j - uint(link)
			h.chunks[reverse] = uint32(off<<huffmanValueShift | (huffmanChunkBits + 1))
			h.links[off] = make([]uint32, numLinks)
		}
	}

	for i, n := range lengths {
		if n == 0 {
			continue
		}
		code := nextcode[n]
		nextcode[n]++
		chunk := uint32(i<<huffmanValueShift | int(n))
		reverse := int(bits.Reverse16(uint16(code)))
		reverse >>= uint(16 - n)
		if n <= huffmanChunkBits {
			for off := reverse; off < len(h.chunks); off += 1 << uint(n) {
				h.chunks[off] = chunk
			}
		} else {
			j := reverse & (huffmanNumChunks - 1)
			value := h.chunks[j] >> huffmanValueShift
			linktab := h.links[value]
			reverse >>= huffmanChunkBits
			for off := reverse; off < len(linktab); off += 1 << uint(n-huffmanChunkBits) {
				linktab[off] = chunk
			}
		}
	}
	return true
}

// huffSym decodes one symbol. It reports ok == false, consuming nothing, if
// the input ran out before a whole code was available, and valid == false
// if the bits do not form a code.
func (r *bitReader) huffSym(h *huffmanDecoder) (sym int, ok, valid bool) {
	n := uint(h.min)
	if n == 0 {
		return 0, true, false
	}
	for {
		// need can not pull more than the 15 bits of the longest code, so a
		// short read here only means we are out of input.
		if !r.need(n) {
			return 0, false, true
		}
		chunk := h.chunks[r.b&(huffmanNumChunks-1)]
		n = uint(chunk & huffmanCountMask)
		if n > huffmanChunkBits {
			chunk = h.links[chunk>>huffmanValueShift][(r.b>>huffmanChunkBits)&uint64(h.linkMask)]
			n = uint(chunk & huffmanCountMask)
		}
		if n == 0 {
			return 0, true, false
		}
		if n <= r.nb {
			r.drop(n)
			return int(chunk >> huffmanValueShift), true, true
		}
	}
}

var (
	fixedLiteralDecoder huffmanDecoder
	fixedOffsetDecoder  huffmanDecoder
)

func init() {
	fixedLiteralDecoder.init(fixedLiteralEncoding.lengths, false)
	fixedOffsetDecoder.init(fixedOffsetEncoding.lengths, false)
}
