package flate

import "github.com/andybalholm/zpack"

const badCode = 255

// An Encoder implements the zpack.Encoder interface, writing raw DEFLATE
// blocks. Each call to Encode writes one block (or, for stored blocks longer
// than 65535 bytes, a run of them), using whichever of the stored, fixed and
// dynamic representations is smallest.
type Encoder struct {
	// ForceFixed never uses dynamic Huffman tables. A stored block is still
	// used when it is smaller.
	ForceFixed bool

	// StoredOnly writes every block stored.
	StoredOnly bool

	bw bitWriter

	litFreq [maxNumLit]uint32
	offFreq [maxNumDist]uint32

	literalEncoding *huffmanCode
	offsetEncoding  *huffmanCode
	codegenEncoding *huffmanCode

	// codegen holds the run-length encoded code lengths of a dynamic
	// header, terminated by badCode. Repeat codes are followed by their
	// extra-bits value.
	codegen     [maxNumLit + maxNumDist + 1]uint8
	codegenFreq [codegenCodeSize]uint32

	// blocks counts the blocks written of each type.
	blocks [3]int
}

// NewEncoder returns an Encoder that chooses the block type by size.
func NewEncoder() *Encoder {
	return &Encoder{
		literalEncoding: newHuffmanCode(maxNumLit),
		offsetEncoding:  newHuffmanCode(maxNumDist),
		codegenEncoding: newHuffmanCode(codegenCodeSize),
	}
}

func (e *Encoder) Reset() {
	e.bw.reset()
	e.blocks = [3]int{}
}

// Header returns dst unchanged: a raw DEFLATE stream has no header.
func (e *Encoder) Header(dst []byte) []byte {
	return dst
}

func (e *Encoder) Encode(dst []byte, src []byte, matches []zpack.Match, lastBlock bool) []byte {
	e.bw.dst = dst
	if len(src) == 0 && !lastBlock {
		return dst
	}
	if e.literalEncoding == nil {
		e.literalEncoding = newHuffmanCode(maxNumLit)
		e.offsetEncoding = newHuffmanCode(maxNumDist)
		e.codegenEncoding = newHuffmanCode(codegenCodeSize)
	}

	extraBits := e.countFrequencies(src, matches)
	storedSize := e.storedSize(len(src))

	if e.StoredOnly {
		e.writeStored(src, lastBlock)
		return e.finishBlock(lastBlock)
	}

	fixedSize := 3 + fixedLiteralEncoding.bitLength(e.litFreq[:]) +
		fixedOffsetEncoding.bitLength(e.offFreq[:]) + extraBits

	dynamicSize := -1
	var numLiterals, numOffsets, numCodegens int
	if !e.ForceFixed {
		e.literalEncoding.build(e.litFreq[:], maxCodeBits)
		e.offsetEncoding.build(e.offFreq[:], maxCodeBits)
		numLiterals = usedLength(e.literalEncoding.lengths, lengthCodesStart)
		numOffsets = usedLength(e.offsetEncoding.lengths, 1)

		e.generateCodegen(numLiterals, numOffsets)
		e.codegenEncoding.build(e.codegenFreq[:], maxCodegenBits)
		numCodegens = codegenCodeSize
		for numCodegens > 4 && e.codegenEncoding.lengths[codegenOrder[numCodegens-1]] == 0 {
			numCodegens--
		}
		dynamicSize = e.dynamicHeaderSize(numCodegens) +
			e.literalEncoding.bitLength(e.litFreq[:]) +
			e.offsetEncoding.bitLength(e.offFreq[:]) + extraBits
	}

	switch {
	case storedSize <= fixedSize && (dynamicSize < 0 || storedSize <= dynamicSize):
		e.writeStored(src, lastBlock)
	case dynamicSize < 0 || fixedSize <= dynamicSize:
		e.writeBlockHeader(blockFixed, lastBlock)
		e.writeTokens(src, matches, fixedLiteralEncoding.codes, fixedOffsetEncoding.codes)
		e.blocks[blockFixed]++
	default:
		e.writeDynamicHeader(numLiterals, numOffsets, numCodegens, lastBlock)
		e.writeTokens(src, matches, e.literalEncoding.codes, e.offsetEncoding.codes)
		e.blocks[blockDynamic]++
	}
	return e.finishBlock(lastBlock)
}

// Flush writes an empty stored block, which leaves the output byte aligned.
func (e *Encoder) Flush(dst []byte) []byte {
	e.bw.dst = dst
	e.writeBlockHeader(blockStored, false)
	e.bw.jumpToByteBoundary()
	e.bw.writeBits(16, 0)
	e.bw.writeBits(16, 0xffff)
	return e.bw.dst
}

func (e *Encoder) finishBlock(lastBlock bool) []byte {
	if lastBlock {
		e.bw.jumpToByteBoundary()
	}
	return e.bw.dst
}

// countFrequencies fills in the symbol histograms for src and returns the
// number of extra bits its matches need. Bytes after the last match are
// literals.
func (e *Encoder) countFrequencies(src []byte, matches []zpack.Match) (extraBits int) {
	e.litFreq = [maxNumLit]uint32{}
	e.offFreq = [maxNumDist]uint32{}

	pos := 0
	for _, m := range matches {
		for _, c := range src[pos : pos+m.Unmatched] {
			e.litFreq[c]++
		}
		pos += m.Unmatched
		if m.Length > 0 {
			lc := lengthCode(m.Length)
			oc := offsetCode(m.Distance)
			e.litFreq[lengthCodesStart+lc]++
			e.offFreq[oc]++
			extraBits += int(lengthExtraBits[lc]) + int(offsetExtraBits[oc])
			pos += m.Length
		}
	}
	for _, c := range src[pos:] {
		e.litFreq[c]++
	}
	e.litFreq[endBlockMarker] = 1
	return extraBits
}

// storedSize returns the number of bits that src would take as stored
// blocks, counting the padding after each header.
func (e *Encoder) storedSize(n int) int {
	nbits := int(e.bw.pendingBits())
	size := 0
	for {
		chunk := n
		if chunk > maxStoredBlockSize {
			chunk = maxStoredBlockSize
		}
		pad := (8 - (nbits+3)%8) % 8
		size += 3 + pad + 32 + 8*chunk
		nbits = 0
		n -= chunk
		if n == 0 {
			return size
		}
	}
}

func (e *Encoder) writeBlockHeader(typ int, final bool) {
	var b uint64
	if final {
		b = 1
	}
	e.bw.writeBits(3, b|uint64(typ)<<1)
}

func (e *Encoder) writeStored(src []byte, lastBlock bool) {
	for {
		chunk := src
		if len(chunk) > maxStoredBlockSize {
			chunk = chunk[:maxStoredBlockSize]
		}
		src = src[len(chunk):]
		e.writeBlockHeader(blockStored, lastBlock && len(src) == 0)
		e.bw.jumpToByteBoundary()
		e.bw.writeBits(16, uint64(len(chunk)))
		e.bw.writeBits(16, uint64(^uint16(len(chunk))))
		e.bw.writeBytes(chunk)
		e.blocks[blockStored]++
		if len(src) == 0 {
			return
		}
	}
}

func (e *Encoder) writeTokens(src []byte, matches []zpack.Match, litCodes, offCodes []hcode) {
	pos := 0
	for _, m := range matches {
		for _, c := range src[pos : pos+m.Unmatched] {
			e.bw.writeCode(litCodes[c])
		}
		pos += m.Unmatched
		if m.Length == 0 {
			continue
		}
		lc := lengthCode(m.Length)
		e.bw.writeCode(litCodes[lengthCodesStart+lc])
		if eb := lengthExtraBits[lc]; eb > 0 {
			e.bw.writeBits(uint(eb), uint64(m.Length-minMatchLength-int(lengthBase[lc])))
		}
		oc := offsetCode(m.Distance)
		e.bw.writeCode(offCodes[oc])
		if eb := offsetExtraBits[oc]; eb > 0 {
			e.bw.writeBits(uint(eb), uint64(m.Distance-1-int(offsetBase[oc])))
		}
		pos += m.Length
	}
	for _, c := range src[pos:] {
		e.bw.writeCode(litCodes[c])
	}
	e.bw.writeCode(litCodes[endBlockMarker])
}

// usedLength returns the number of leading entries of lengths up to and
// including the last non-zero one, but at least min.
func usedLength(lengths []uint8, min int) int {
	n := len(lengths)
	for n > min && lengths[n-1] == 0 {
		n--
	}
	return n
}

// generateCodegen computes the run-length encoded code lengths of the
// literal and offset tables, and their histogram.
func (e *Encoder) generateCodegen(numLiterals int, numOffsets int) {
	e.codegenFreq = [codegenCodeSize]uint32{}
	// codegen is used both as a copy of the code lengths and as the place
	// where the result goes. The output is always shorter than the input
	// used so far.
	codegen := e.codegen[:]
	copy(codegen, e.literalEncoding.lengths[:numLiterals])
	copy(codegen[numLiterals:], e.offsetEncoding.lengths[:numOffsets])
	codegen[numLiterals+numOffsets] = badCode

	size := codegen[0]
	count := 1
	outIndex := 0
	for inIndex := 1; size != badCode; inIndex++ {
		// We have seen count copies of size that have not yet had output
		// generated for them.
		nextSize := codegen[inIndex]
		if nextSize == size {
			count++
			continue
		}
		if size != 0 {
			codegen[outIndex] = size
			outIndex++
			e.codegenFreq[size]++
			count--
			for count >= 3 {
				n := 6
				if n > count {
					n = count
				}
				codegen[outIndex] = 16
				codegen[outIndex+1] = uint8(n - 3)
				outIndex += 2
				e.codegenFreq[16]++
				count -= n
			}
		} else {
			for count >= 11 {
				n := 138
				if n > count {
					n = count
				}
				codegen[outIndex] = 18
				codegen[outIndex+1] = uint8(n - 11)
				outIndex += 2
				e.codegenFreq[18]++
				count -= n
			}
			if count >= 3 {
				codegen[outIndex] = 17
				codegen[outIndex+1] = uint8(count - 3)
				outIndex += 2
				e.codegenFreq[17]++
				count = 0
			}
		}
		for ; count > 0; count-- {
			codegen[outIndex] = size
			outIndex++
			e.codegenFreq[size]++
		}
		size = nextSize
		count = 1
	}
	codegen[outIndex] = badCode
}

func (e *Encoder) dynamicHeaderSize(numCodegens int) int {
	return 3 + 5 + 5 + 4 + 3*numCodegens +
		e.codegenEncoding.bitLength(e.codegenFreq[:]) +
		int(e.codegenFreq[16])*2 +
		int(e.codegenFreq[17])*3 +
		int(e.codegenFreq[18])*7
}

func (e *Encoder) writeDynamicHeader(numLiterals int, numOffsets int, numCodegens int, lastBlock bool) {
	e.writeBlockHeader(blockDynamic, lastBlock)
	e.bw.writeBits(5, uint64(numLiterals-lengthCodesStart))
	e.bw.writeBits(5, uint64(numOffsets-1))
	e.bw.writeBits(4, uint64(numCodegens-4))

	for i := 0; i < numCodegens; i++ {
		e.bw.writeBits(3, uint64(e.codegenEncoding.lengths[codegenOrder[i]]))
	}

	for i := 0; ; i++ {
		codeWord := e.codegen[i]
		if codeWord == badCode {
			break
		}
		e.bw.writeCode(e.codegenEncoding.codes[codeWord])
		switch codeWord {
		case 16:
			i++
			e.bw.writeBits(2, uint64(e.codegen[i]))
		case 17:
			i++
			e.bw.writeBits(3, uint64(e.codegen[i]))
		case 18:
			i++
			e.bw.writeBits(7, uint64(e.codegen[i]))
		}
	}
}
