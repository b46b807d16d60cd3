package flate

import (
	"hash"
	"hash/adler32"
	"math/bits"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// inflateStep is the next thing the Inflater expects in its input.
type inflateStep int

const (
	stepZlibHeader inflateStep = iota
	stepDictID
	stepBlockHeader
	stepStoredLen
	stepStoredCopy
	stepTableCounts
	stepCodeLenLens
	stepCodeLens
	stepSymbol
	stepLenExtra
	stepDistSym
	stepDistExtra
	stepCopy
	stepChecksum
	stepVerify
	stepDone
)

// An Inflater decompresses data passed to Process.
//
// Decoding is a state machine over the input bits; every step either
// completes or leaves the stream where it was, so that input can be split at
// any byte. Decoded bytes go into the window and are copied out to the
// caller's buffer from there.
type Inflater struct {
	cfg  Config
	log  logrus.FieldLogger
	life lifecycle

	br  bitReader
	win window

	step  inflateStep
	final bool

	// Huffman decoders for literal/length, distance and code lengths.
	hl, hd   *huffmanDecoder
	h1, h2   huffmanDecoder
	hcl      huffmanDecoder
	codebits [codegenCodeSize]uint8
	lengths  [maxNumLit + maxNumDist]uint8

	nlit, ndist, nclen int
	ncode              int
	repSym             int // a repeat code whose extra bits are still unread

	storedLeft int
	lenCode    int
	copyLen    int
	distCode   int
	copyDist   int

	dict     []byte
	wantSum  uint32
	sum      hash.Hash32
	totalOut int64
	blocks   [3]int
}

// NewInflater returns an Inflater for the given configuration.
func NewInflater(cfg Config) (*Inflater, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	f := &Inflater{
		cfg: cfg,
		log: cfg.Logger.WithFields(cfg.fields()).WithField("mode", ModeInflate),
		sum: adler32.New(),
	}
	f.reset()
	f.log.Debug("inflate stream created")
	return f, nil
}

func (f *Inflater) reset() {
	f.br.reset()
	f.win.init(1<<f.cfg.WindowBits, nil)
	f.step = stepBlockHeader
	if f.cfg.Format == Zlib {
		f.step = stepZlibHeader
	}
	f.final = false
	f.repSym = 0
	f.dict = nil
	f.sum.Reset()
	f.totalOut = 0
	f.blocks = [3]int{}
}

// SetDictionary seeds the window with dict. A zlib stream must announce the
// same dictionary in its header.
func (f *Inflater) SetDictionary(dict []byte) error {
	if err := f.life.advance(opSetDictionary); err != nil {
		return err
	}
	f.dict = append(f.dict[:0], dict...)
	f.win.init(1<<f.cfg.WindowBits, f.dict)
	f.log.WithField("size", len(dict)).Debug("dictionary set")
	return nil
}

// Process decompresses src into dst. It returns StatusStreamEnd once the
// final block, and the trailer of a zlib stream, has been decoded and all of
// the output written. After that it keeps returning StatusStreamEnd without
// consuming anything.
//
// It returns an error wrapping ErrBuffer if it could neither consume input
// nor produce output, or if flush is Finish and the stream is not complete
// when src runs out.
func (f *Inflater) Process(dst, src []byte, flush Flush) (nDst, nSrc int, status Status, err error) {
	if flush < NoFlush || flush > Finish {
		return 0, 0, StatusOK, invalidParameter("flush mode %v", flush)
	}
	if err := f.life.advance(opProcess); err != nil {
		return 0, 0, StatusOK, err
	}
	if f.life.state == stateFinished {
		return 0, 0, StatusStreamEnd, nil
	}

	f.br.setInput(src)
	moved := false
	for {
		out := f.win.readTo(dst[nDst:])
		f.sum.Write(out)
		nDst += len(out)

		if f.step == stepDone && f.win.pending() == 0 {
			f.life.advance(opFinish)
			status = StatusStreamEnd
			f.log.WithFields(logrus.Fields{
				"in":     f.br.offset,
				"out":    f.totalOut + int64(nDst),
				"blocks": f.blocks,
			}).Debug("inflate stream finished")
			break
		}
		if f.win.pending() > len(dst)-nDst {
			break
		}

		var progress bool
		progress, err = f.decode()
		if err != nil || !progress {
			break
		}
		moved = true
	}
	nSrc = f.br.release()
	f.totalOut += int64(nDst)

	if err != nil {
		f.log.WithError(err).Debug("inflate failed")
		return nDst, nSrc, StatusOK, err
	}
	if status != StatusStreamEnd {
		if nDst == 0 && nSrc == 0 && !moved {
			return 0, 0, StatusOK, errors.Wrap(ErrBuffer, "inflate")
		}
		if flush == Finish && nSrc == len(src) {
			return nDst, nSrc, StatusOK, errors.Wrap(ErrBuffer, "inflate: stream incomplete at finish")
		}
	}
	return nDst, nSrc, status, nil
}

// decode runs the current step once. It reports false if the step needs more
// input, or more window space than is free.
func (f *Inflater) decode() (bool, error) {
	br := &f.br
	switch f.step {
	case stepZlibHeader:
		if !br.need(16) {
			return false, nil
		}
		cmf, flg := byte(br.peek(8)), byte(br.peek(16)>>8)
		needDict, err := checkZlibHeader(cmf, flg, f.cfg.WindowBits, br.offset-2)
		if err != nil {
			return false, err
		}
		br.drop(16)
		switch {
		case needDict && f.dict == nil:
			return false, corrupt(br.offset, "stream needs a dictionary")
		case needDict:
			f.step = stepDictID
		default:
			// A stream that announces no dictionary may not refer to one.
			f.win.init(1<<f.cfg.WindowBits, nil)
			f.step = stepBlockHeader
		}

	case stepDictID:
		if !br.need(32) {
			return false, nil
		}
		id := bits.ReverseBytes32(br.peek(32))
		br.drop(32)
		if id != adler32.Checksum(f.dict) {
			return false, corrupt(br.offset, "dictionary id %08x does not match", id)
		}
		f.step = stepBlockHeader

	case stepBlockHeader:
		v, ok := br.getBits(3)
		if !ok {
			return false, nil
		}
		f.final = v&1 == 1
		switch v >> 1 {
		case blockStored:
			br.alignToByte()
			f.step = stepStoredLen
		case blockFixed:
			f.hl, f.hd = &fixedLiteralDecoder, &fixedOffsetDecoder
			f.step = stepSymbol
		case blockDynamic:
			f.step = stepTableCounts
		default:
			return false, corrupt(br.offset, "invalid block type")
		}
		f.blocks[v>>1]++

	case stepStoredLen:
		if !br.need(32) {
			return false, nil
		}
		v := br.peek(32)
		br.drop(32)
		n, nn := uint16(v), uint16(v>>16)
		if n != ^nn {
			return false, corrupt(br.offset, "invalid stored block lengths")
		}
		f.storedLeft = int(n)
		f.step = stepStoredCopy
		if n == 0 {
			f.endBlock()
		}

	case stepStoredCopy:
		buf := f.win.writeSlice()
		if len(buf) > f.storedLeft {
			buf = buf[:f.storedLeft]
		}
		n := br.readBytes(buf)
		if n == 0 {
			return false, nil
		}
		f.win.writeMark(n)
		f.storedLeft -= n
		if f.storedLeft == 0 {
			f.endBlock()
		}

	case stepTableCounts:
		v, ok := br.getBits(14)
		if !ok {
			return false, nil
		}
		f.nlit = int(v&0x1f) + lengthCodesStart
		f.ndist = int(v>>5&0x1f) + 1
		f.nclen = int(v>>10&0xf) + 4
		if f.nlit > maxNumLit || f.ndist > maxNumDist {
			return false, corrupt(br.offset, "too many length or distance symbols")
		}
		f.codebits = [codegenCodeSize]uint8{}
		f.ncode = 0
		f.step = stepCodeLenLens

	case stepCodeLenLens:
		progress := false
		for f.ncode < f.nclen {
			v, ok := br.getBits(3)
			if !ok {
				return progress, nil
			}
			f.codebits[codegenOrder[f.ncode]] = uint8(v)
			f.ncode++
			progress = true
		}
		if !f.hcl.init(f.codebits[:], false) {
			return false, invalidTable(br.offset, "invalid code lengths code")
		}
		f.ncode = 0
		f.repSym = 0
		f.step = stepCodeLens

	case stepCodeLens:
		return f.readCodeLengths()

	case stepSymbol:
		if f.win.availSize() == 0 {
			return false, nil
		}
		sym, ok, valid := br.huffSym(f.hl)
		if !ok {
			return false, nil
		}
		if !valid {
			return false, corrupt(br.offset, "invalid literal/length code")
		}
		switch {
		case sym < endBlockMarker:
			f.win.writeByte(byte(sym))
		case sym == endBlockMarker:
			f.endBlock()
		case sym < maxNumLit:
			f.lenCode = sym - lengthCodesStart
			f.step = stepLenExtra
		default:
			return false, corrupt(br.offset, "invalid literal/length symbol %d", sym)
		}

	case stepLenExtra:
		v, ok := br.getBits(uint(lengthExtraBits[f.lenCode]))
		if !ok {
			return false, nil
		}
		f.copyLen = int(lengthBase[f.lenCode]) + minMatchLength + int(v)
		f.step = stepDistSym

	case stepDistSym:
		sym, ok, valid := br.huffSym(f.hd)
		if !ok {
			return false, nil
		}
		if !valid || sym >= maxNumDist {
			return false, corrupt(br.offset, "invalid distance code")
		}
		f.distCode = sym
		f.step = stepDistExtra

	case stepDistExtra:
		v, ok := br.getBits(uint(offsetExtraBits[f.distCode]))
		if !ok {
			return false, nil
		}
		f.copyDist = int(offsetBase[f.distCode]) + 1 + int(v)
		if f.copyDist > f.win.histSize() {
			return false, corrupt(br.offset, "distance %d too far back", f.copyDist)
		}
		f.step = stepCopy

	case stepCopy:
		if f.win.availSize() == 0 {
			return false, nil
		}
		f.copyLen -= f.win.writeCopy(f.copyDist, f.copyLen)
		if f.copyLen == 0 {
			f.step = stepSymbol
		}

	case stepChecksum:
		if !br.need(32) {
			return false, nil
		}
		f.wantSum = bits.ReverseBytes32(br.peek(32))
		br.drop(32)
		f.step = stepVerify

	case stepVerify:
		// Everything decoded must be read out before the sum is complete.
		if f.win.pending() > 0 {
			return false, nil
		}
		if got := f.sum.Sum32(); got != f.wantSum {
			return false, corrupt(br.offset, "checksum %08x, want %08x", got, f.wantSum)
		}
		f.step = stepDone

	case stepDone:
		return false, nil
	}
	return true, nil
}

// readCodeLengths decodes the run-length encoded literal/length and distance
// code lengths of a dynamic block, then builds their decoders.
func (f *Inflater) readCodeLengths() (bool, error) {
	br := &f.br
	n := f.nlit + f.ndist
	progress := false
	for f.ncode < n {
		if f.repSym == 0 {
			sym, ok, valid := br.huffSym(&f.hcl)
			if !ok {
				return progress, nil
			}
			if !valid {
				return false, corrupt(br.offset, "invalid code lengths set")
			}
			progress = true
			if sym < 16 {
				f.lengths[f.ncode] = uint8(sym)
				f.ncode++
				continue
			}
			f.repSym = sym
		}

		var rep, nb uint
		var b uint8
		switch f.repSym {
		case 16:
			rep, nb = 3, 2
			if f.ncode == 0 {
				return false, corrupt(br.offset, "repeat with no first length")
			}
			b = f.lengths[f.ncode-1]
		case 17:
			rep, nb = 3, 3
		default:
			rep, nb = 11, 7
		}
		v, ok := br.getBits(nb)
		if !ok {
			return progress, nil
		}
		progress = true
		rep += uint(v)
		if f.ncode+int(rep) > n {
			return false, corrupt(br.offset, "too many code lengths")
		}
		for j := 0; j < int(rep); j++ {
			f.lengths[f.ncode] = b
			f.ncode++
		}
		f.repSym = 0
	}

	if f.lengths[endBlockMarker] == 0 {
		return false, invalidTable(br.offset, "missing end-of-block code")
	}
	if !f.h1.init(f.lengths[:f.nlit], false) {
		return false, invalidTable(br.offset, "invalid literal/lengths set")
	}
	if !f.h2.init(f.lengths[f.nlit:n], true) {
		return false, invalidTable(br.offset, "invalid distances set")
	}
	f.hl, f.hd = &f.h1, &f.h2
	f.step = stepSymbol
	return true, nil
}

// endBlock moves on after the end of a block.
func (f *Inflater) endBlock() {
	switch {
	case !f.final:
		f.step = stepBlockHeader
	case f.cfg.Format == Zlib:
		f.br.alignToByte()
		f.step = stepChecksum
	default:
		f.step = stepDone
	}
}

// Reset discards the stream state, including any dictionary, so that f can
// decompress a new stream with the same configuration.
func (f *Inflater) Reset() error {
	if err := f.life.advance(opReset); err != nil {
		return err
	}
	f.reset()
	return nil
}

// End releases the Inflater's buffers. Later calls to End do nothing; any
// other method returns an ErrState error.
func (f *Inflater) End() error {
	if f.life.state == stateEnded {
		return nil
	}
	f.life.advance(opEnd)
	f.win = window{}
	f.dict = nil
	f.h1, f.h2, f.hcl = huffmanDecoder{}, huffmanDecoder{}, huffmanDecoder{}
	f.log.Debug("inflate stream ended")
	return nil
}

// TotalIn returns the number of bytes consumed so far.
func (f *Inflater) TotalIn() int64 { return f.br.offset - int64(f.br.nb/8) }

// TotalOut returns the number of bytes produced so far.
func (f *Inflater) TotalOut() int64 { return f.totalOut }

// Adler32 returns the Adler-32 checksum of the output produced so far.
func (f *Inflater) Adler32() uint32 { return f.sum.Sum32() }
