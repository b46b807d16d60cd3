// Package flate implements a streaming DEFLATE (RFC 1951) compressor and
// decompressor with optional zlib (RFC 1950) framing, preset dictionaries
// and zlib-style flush modes.
//
// The core is a pair of caller-driven state machines, Deflater and Inflater.
// Each Process call consumes bytes from a source slice and writes bytes to a
// destination slice; neither slice is retained after the call returns.
package flate

import (
	"fmt"
	"math/bits"
)

const (
	// DefaultCompression selects level 6.
	DefaultCompression = -1
	NoCompression      = 0
	BestSpeed          = 1
	BestCompression    = 9

	// MinWindowBits and MaxWindowBits bound the base-2 logarithm of the
	// window size.
	MinWindowBits = 8
	MaxWindowBits = 15

	minMatchLength = 3
	maxMatchLength = 258

	// The number of literal/length and distance symbols a block may declare.
	maxNumLit  = 286
	maxNumDist = 30

	endBlockMarker   = 256
	lengthCodesStart = 257

	// The most input bytes the deflater puts in one block. It must not be
	// larger than maxStoredBlockSize, so a block never needs more than one
	// stored block.
	blockSize          = 1 << 15
	maxStoredBlockSize = 65535

	maxCodeBits     = 15
	maxCodegenBits  = 7
	codegenCodeSize = 19
)

// Block types, as found in bits 1-2 of a block header.
const (
	blockStored  = 0
	blockFixed   = 1
	blockDynamic = 2
)

// A Mode selects the direction of a Stream.
type Mode int

const (
	ModeDeflate Mode = iota
	ModeInflate
)

func (m Mode) String() string {
	switch m {
	case ModeDeflate:
		return "deflate"
	case ModeInflate:
		return "inflate"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// A Strategy tunes the match finder and block encoder.
type Strategy int

const (
	DefaultStrategy Strategy = iota
	// Filtered drops matches shorter than 6 bytes.
	Filtered
	// HuffmanOnly disables match finding.
	HuffmanOnly
	// RLE only finds matches at distance 1.
	RLE
	// Fixed uses the fixed Huffman tables instead of dynamic ones.
	Fixed
)

var strategyNames = [...]string{"default", "filtered", "huffman-only", "rle", "fixed"}

func (s Strategy) String() string {
	if s >= 0 && int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ParseStrategy returns the Strategy with the given name.
func ParseStrategy(name string) (Strategy, error) {
	for i, n := range strategyNames {
		if n == name {
			return Strategy(i), nil
		}
	}
	return 0, invalidParameter("unknown strategy %q", name)
}

// A Format selects the framing around the DEFLATE blocks.
type Format int

const (
	// Raw is a bare DEFLATE stream.
	Raw Format = iota
	// Zlib adds the RFC 1950 header and Adler-32 trailer.
	Zlib
)

func (f Format) String() string {
	switch f {
	case Raw:
		return "raw"
	case Zlib:
		return "zlib"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// A Flush controls how much pending state Process finalizes.
type Flush int

const (
	// NoFlush lets the stream buffer data internally.
	NoFlush Flush = iota
	// SyncFlush encodes all pending input and byte-aligns the output with an
	// empty stored block. History is kept.
	SyncFlush
	// FullFlush is a SyncFlush that also resets the match history, so that
	// decoding can restart at this point.
	FullFlush
	// Finish ends the stream.
	Finish
)

func (f Flush) String() string {
	switch f {
	case NoFlush:
		return "none"
	case SyncFlush:
		return "sync"
	case FullFlush:
		return "full"
	case Finish:
		return "finish"
	}
	return fmt.Sprintf("Flush(%d)", int(f))
}

// A Status reports the outcome of a successful Process call.
type Status int

const (
	// StatusOK means more work is possible.
	StatusOK Status = iota
	// StatusStreamEnd means the final block, and trailer if any, has been
	// fully processed.
	StatusStreamEnd
)

func (s Status) String() string {
	if s == StatusStreamEnd {
		return "stream end"
	}
	return "ok"
}

// A Stream is the shared lifecycle of Deflater and Inflater.
type Stream interface {
	// SetDictionary seeds the window with a preset dictionary. It is only
	// legal before the first call to Process.
	SetDictionary(dict []byte) error

	// Process consumes bytes from src and writes bytes to dst. It returns
	// the number of bytes written and consumed.
	Process(dst, src []byte, flush Flush) (nDst, nSrc int, status Status, err error)

	// End releases the stream's buffers. It is idempotent.
	End() error
}

// New returns a Deflater or an Inflater, depending on mode.
func New(mode Mode, cfg Config) (Stream, error) {
	switch mode {
	case ModeDeflate:
		return NewDeflater(cfg)
	case ModeInflate:
		return NewInflater(cfg)
	}
	return nil, invalidParameter("mode %v", mode)
}

// The number of extra bits needed by length code X - lengthCodesStart.
var lengthExtraBits = [29]uint8{
	/* 257 */ 0, 0, 0,
	/* 260 */ 0, 0, 0, 0, 0, 1, 1, 1, 1, 2,
	/* 270 */ 2, 2, 2, 3, 3, 3, 3, 4, 4, 4,
	/* 280 */ 4, 5, 5, 5, 5, 0,
}

// The length indicated by length code X - lengthCodesStart, minus 3.
var lengthBase = [29]uint16{
	0, 1, 2, 3, 4, 5, 6, 7, 8, 10,
	12, 14, 16, 20, 24, 28, 32, 40, 48, 56,
	64, 80, 96, 112, 128, 160, 192, 224, 255,
}

// offset code word extra bits.
var offsetExtraBits = [maxNumDist]uint8{
	0, 0, 0, 0, 1, 1, 2, 2, 3, 3,
	4, 4, 5, 5, 6, 6, 7, 7, 8, 8,
	9, 9, 10, 10, 11, 11, 12, 12, 13, 13,
}

// The distance indicated by distance code X, minus 1.
var offsetBase = [maxNumDist]uint32{
	0x000000, 0x000001, 0x000002, 0x000003, 0x000004,
	0x000006, 0x000008, 0x00000c, 0x000010, 0x000018,
	0x000020, 0x000030, 0x000040, 0x000060, 0x000080,
	0x0000c0, 0x000100, 0x000180, 0x000200, 0x000300,
	0x000400, 0x000600, 0x000800, 0x000c00, 0x001000,
	0x001800, 0x002000, 0x003000, 0x004000, 0x006000,
}

// The odd order in which the codegen code sizes are written.
var codegenOrder = [codegenCodeSize]uint8{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}

// lengthCodes maps a match length minus 3 to its length code minus 257.
var lengthCodes [256]uint8

func init() {
	for code := range lengthBase {
		base := int(lengthBase[code])
		for i := 0; i < 1<<lengthExtraBits[code] && base+i < len(lengthCodes); i++ {
			lengthCodes[base+i] = uint8(code)
		}
	}
}

// lengthCode returns the length code (minus 257) for a match length.
func lengthCode(length int) int {
	return int(lengthCodes[length-minMatchLength])
}

// offsetCode returns the distance code for a match distance.
func offsetCode(dist int) int {
	d := uint32(dist - 1)
	if d < 4 {
		return int(d)
	}
	nb := bits.Len32(d) - 1
	return 2*nb + int((d>>(nb-1))&1)
}
