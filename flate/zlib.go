package flate

import (
	"encoding/binary"
	"hash"
	"hash/adler32"

	"github.com/andybalholm/zpack"
)

const (
	zlibDeflate   = 8
	zlibFlagDict  = 0x20
	zlibHeaderLen = 2
	zlibDictIDLen = 4
	zlibTrailer   = 4
)

// A zlibEncoder wraps a DEFLATE Encoder in the RFC 1950 envelope.
type zlibEncoder struct {
	f *Encoder

	windowBits int
	level      int
	strategy   Strategy

	hasDict bool
	dictID  uint32

	sum hash.Hash32
}

func newZlibEncoder(f *Encoder, cfg Config) *zlibEncoder {
	return &zlibEncoder{
		f:          f,
		windowBits: cfg.WindowBits,
		level:      cfg.Level,
		strategy:   cfg.Strategy,
		sum:        adler32.New(),
	}
}

// setDictionary makes the header announce dict.
func (z *zlibEncoder) setDictionary(dict []byte) {
	z.hasDict = true
	z.dictID = adler32.Checksum(dict)
}

func (z *zlibEncoder) Reset() {
	z.f.Reset()
	z.hasDict = false
	z.dictID = 0
	z.sum.Reset()
}

func (z *zlibEncoder) Header(dst []byte) []byte {
	cmf := byte(z.windowBits-8)<<4 | zlibDeflate

	var flevel byte
	switch {
	case z.strategy == HuffmanOnly || z.strategy == RLE || z.level < 2:
		flevel = 0
	case z.level < 6:
		flevel = 1
	case z.level == 6:
		flevel = 2
	default:
		flevel = 3
	}
	flg := flevel << 6
	if z.hasDict {
		flg |= zlibFlagDict
	}
	if r := (uint16(cmf)<<8 | uint16(flg)) % 31; r != 0 {
		flg += byte(31 - r)
	}

	dst = append(dst, cmf, flg)
	if z.hasDict {
		dst = binary.BigEndian.AppendUint32(dst, z.dictID)
	}
	return dst
}

func (z *zlibEncoder) Encode(dst []byte, src []byte, matches []zpack.Match, lastBlock bool) []byte {
	dst = z.f.Encode(dst, src, matches, lastBlock)
	z.sum.Write(src)
	if lastBlock {
		dst = binary.BigEndian.AppendUint32(dst, z.sum.Sum32())
	}
	return dst
}

func (z *zlibEncoder) Flush(dst []byte) []byte {
	return z.f.Flush(dst)
}

// checkZlibHeader validates a two-byte zlib header against the largest
// window the decoder has, and reports whether a dictionary id follows.
func checkZlibHeader(cmf, flg byte, windowBits int, offset int64) (needDict bool, err error) {
	if (uint16(cmf)<<8|uint16(flg))%31 != 0 {
		return false, corrupt(offset, "incorrect header check")
	}
	if cmf&0x0f != zlibDeflate {
		return false, corrupt(offset, "unknown compression method %d", cmf&0x0f)
	}
	if bits := int(cmf>>4) + 8; bits > windowBits {
		return false, corrupt(offset, "window size 2^%d larger than 2^%d", bits, windowBits)
	}
	return flg&zlibFlagDict != 0, nil
}
