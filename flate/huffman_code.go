package flate

import (
	"math"
	"sort"
)

// hcode is a Huffman code with a bit length, stored bit-reversed so that it
// can be written LSB-first.
type hcode struct {
	code uint16
	len  uint8
}

// A huffmanCode is the encoding side of a Huffman table: a code length per
// symbol and the canonical code derived from it. Fixed and dynamic tables
// share this shape.
type huffmanCode struct {
	lengths []uint8
	codes   []hcode
}

func newHuffmanCode(size int) *huffmanCode {
	return &huffmanCode{
		lengths: make([]uint8, size),
		codes:   make([]hcode, size),
	}
}

// bitLength returns the number of bits needed to encode symbols with the
// given frequencies, not counting extra bits.
func (h *huffmanCode) bitLength(freq []uint32) int {
	total := 0
	for i, f := range freq {
		if f != 0 {
			total += int(f) * int(h.lengths[i])
		}
	}
	return total
}

// build computes length-limited code lengths for freq and assigns canonical
// codes. Fewer than two used symbols are padded out with dummy symbols, so
// the result is always a complete code.
func (h *huffmanCode) build(freq []uint32, maxBits int) {
	buildLengths(freq, maxBits, h.lengths[:len(freq)])
	for i := len(freq); i < len(h.lengths); i++ {
		h.lengths[i] = 0
	}
	assignCodes(h.lengths, h.codes)
}

// A node of a Huffman tree.
type huffmanTree struct {
	totalCount      uint32
	indexLeft       int16
	indexRightOrSym int16
}

func initHuffmanTree(self *huffmanTree, count uint32, left int16, right int16) {
	self.totalCount = count
	self.indexLeft = left
	self.indexRightOrSym = right
}

// setDepth walks the tree from p0 and records each leaf's depth. It reports
// false if a leaf is deeper than maxDepth.
func setDepth(p0 int, pool []huffmanTree, depth []uint8, maxDepth int) bool {
	var stack [maxCodeBits + 2]int
	level := 0
	p := p0
	stack[0] = -1
	for {
		if pool[p].indexLeft >= 0 {
			level++
			if level > maxDepth {
				return false
			}
			stack[level] = int(pool[p].indexRightOrSym)
			p = int(pool[p].indexLeft)
			continue
		} else {
			depth[pool[p].indexRightOrSym] = uint8(level)
		}

		for level >= 0 && stack[level] == -1 {
			level--
		}
		if level < 0 {
			return true
		}
		p = stack[level]
		stack[level] = -1
	}
}

// buildLengths fills depth with Huffman code lengths for histogram, none
// longer than maxBits. If the unconstrained tree is too deep, the counts of
// rare symbols are raised to countLimit and the tree rebuilt, doubling
// countLimit until it fits.
func buildLengths(histogram []uint32, maxBits int, depth []uint8) {
	for i := range depth {
		depth[i] = 0
	}

	var used []int
	for i, f := range histogram {
		if f != 0 {
			used = append(used, i)
		}
	}
	switch len(used) {
	case 0:
		depth[0], depth[1] = 1, 1
		return
	case 1:
		// A lone symbol still gets a one-bit code, paired with a dummy.
		other := 0
		if used[0] == 0 {
			other = 1
		}
		depth[used[0]], depth[other] = 1, 1
		return
	}

	n := len(used)
	tree := make([]huffmanTree, 2*n+1)
	for countLimit := uint32(1); ; countLimit *= 2 {
		node := 0
		for l := len(used) - 1; l >= 0; l-- {
			sym := used[l]
			count := histogram[sym]
			if count < countLimit {
				count = countLimit
			}
			initHuffmanTree(&tree[node], count, -1, int16(sym))
			node++
		}

		leaves := tree[:n]
		sort.SliceStable(leaves, func(i, j int) bool {
			if leaves[i].totalCount != leaves[j].totalCount {
				return leaves[i].totalCount < leaves[j].totalCount
			}
			return leaves[i].indexRightOrSym > leaves[j].indexRightOrSym
		})

		// The nodes are:
		// [0, n): the sorted leaf nodes that we start with.
		// [n]: we add a sentinel here.
		// [n + 1, 2n): new parent nodes are added here, starting from
		//              (n+1). These are naturally in ascending order.
		// [2n]: we add a sentinel at the end as well.
		// There will be (2n+1) elements at the end.
		var sentinel huffmanTree
		initHuffmanTree(&sentinel, math.MaxUint32, -1, -1)
		tree[node] = sentinel
		node++
		tree[node] = sentinel
		node++

		i := 0     // Points to the next leaf node.
		j := n + 1 // Points to the next non-leaf node.
		for k := n - 1; k > 0; k-- {
			var left, right int
			if tree[i].totalCount <= tree[j].totalCount {
				left = i
				i++
			} else {
				left = j
				j++
			}

			if tree[i].totalCount <= tree[j].totalCount {
				right = i
				i++
			} else {
				right = j
				j++
			}

			// The sentinel node becomes the parent node.
			tree[node-1].totalCount = tree[left].totalCount + tree[right].totalCount
			tree[node-1].indexLeft = int16(left)
			tree[node-1].indexRightOrSym = int16(right)

			// Add back the last sentinel node.
			tree[node] = sentinel
			node++
		}

		if setDepth(2*n-1, tree, depth, maxBits) {
			return
		}
		// We need to pack the Huffman tree in maxBits bits. If this was not
		// successful, add fake entities to the lowest values and retry.
		for _, sym := range used {
			depth[sym] = 0
		}
	}
}

// reverseBits reverses the low n bits of b.
func reverseBits(b uint16, n uint8) uint16 {
	var r uint16
	for i := uint8(0); i < n; i++ {
		r = r<<1 | b&1
		b >>= 1
	}
	return r
}

// assignCodes gets the actual bit values for a table of code lengths.
// Codes are assigned in order of length and then symbol, and stored
// bit-reversed.
func assignCodes(depth []uint8, codes []hcode) {
	var blCount [maxCodeBits + 1]uint16
	var nextCode [maxCodeBits + 1]uint16
	for _, d := range depth {
		blCount[d]++
	}

	blCount[0] = 0
	code := 0
	for i := 1; i <= maxCodeBits; i++ {
		code = (code + int(blCount[i-1])) << 1
		nextCode[i] = uint16(code)
	}

	for i, d := range depth {
		if d != 0 {
			codes[i] = hcode{code: reverseBits(nextCode[d], d), len: d}
			nextCode[d]++
		} else {
			codes[i] = hcode{}
		}
	}
}

// The fixed literal/length and distance tables from RFC 1951 3.2.6.
var (
	fixedLiteralEncoding = generateFixedLiteralEncoding()
	fixedOffsetEncoding  = generateFixedOffsetEncoding()
)

func generateFixedLiteralEncoding() *huffmanCode {
	h := newHuffmanCode(288)
	for ch := range h.lengths {
		switch {
		case ch < 144:
			h.lengths[ch] = 8
		case ch < 256:
			h.lengths[ch] = 9
		case ch < 280:
			h.lengths[ch] = 7
		default:
			h.lengths[ch] = 8
		}
	}
	assignCodes(h.lengths, h.codes)
	return h
}

func generateFixedOffsetEncoding() *huffmanCode {
	h := newHuffmanCode(32)
	for i := range h.lengths {
		h.lengths[i] = 5
	}
	assignCodes(h.lengths, h.codes)
	return h
}
