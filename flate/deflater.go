package flate

import (
	"hash"
	"hash/adler32"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/andybalholm/zpack"
)

// A Deflater compresses data passed to Process.
//
// Input is collected into blocks of up to 32 KiB. Each full block is run
// through the match finder chosen for the level and strategy and handed to
// the block Encoder; the encoded bytes wait in an internal buffer until
// there is room for them in the caller's output.
type Deflater struct {
	cfg  Config
	log  logrus.FieldLogger
	life lifecycle

	mf      zpack.MatchFinder
	enc     zpack.Encoder
	flusher zpack.Flusher
	raw     *Encoder
	zlib    *zlibEncoder

	block   []byte
	matches []zpack.Match

	pending    []byte
	pendingPos int

	wroteHeader bool
	dirty       bool  // input since the last flush
	flushed     Flush // the last flush mode applied, if not dirty
	finishing   bool  // the final block has been encoded

	sum      hash.Hash32
	totalIn  int64
	totalOut int64
}

// NewDeflater returns a Deflater for the given configuration.
func NewDeflater(cfg Config) (*Deflater, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	d := &Deflater{
		cfg:   cfg,
		log:   cfg.Logger.WithFields(cfg.fields()).WithField("mode", ModeDeflate),
		mf:    NewMatchFinder(cfg.Level, cfg.Strategy, cfg.WindowBits),
		raw:   NewEncoder(),
		block: make([]byte, 0, blockSize),
		sum:   adler32.New(),
	}
	d.raw.StoredOnly = cfg.Level == NoCompression
	d.raw.ForceFixed = cfg.Strategy == Fixed
	d.enc, d.flusher = d.raw, d.raw
	if cfg.Format == Zlib {
		d.zlib = newZlibEncoder(d.raw, cfg)
		d.enc, d.flusher = d.zlib, d.zlib
	}
	d.log.Debug("deflate stream created")
	return d, nil
}

// SetDictionary seeds the match history with dict. The dictionary itself
// produces no output; a zlib stream announces it by its Adler-32 checksum.
func (d *Deflater) SetDictionary(dict []byte) error {
	if err := d.life.advance(opSetDictionary); err != nil {
		return err
	}
	if p, ok := d.mf.(zpack.Primer); ok {
		p.Prime(dict)
	}
	if d.zlib != nil {
		d.zlib.setDictionary(dict)
	}
	d.log.WithField("size", len(dict)).Debug("dictionary set")
	return nil
}

// Process compresses src into dst. It returns StatusStreamEnd once flush is
// Finish and all output, including the final block and any trailer, has
// been written. It returns an error wrapping ErrBuffer if it could neither
// consume input nor produce output.
func (d *Deflater) Process(dst, src []byte, flush Flush) (nDst, nSrc int, status Status, err error) {
	if flush < NoFlush || flush > Finish {
		return 0, 0, StatusOK, invalidParameter("flush mode %v", flush)
	}
	if d.life.state == stateFinished && len(src) > 0 {
		return 0, 0, StatusOK, stateError("input after the end of the stream")
	}
	if err := d.life.advance(opProcess); err != nil {
		return 0, 0, StatusOK, err
	}

	if !d.wroteHeader {
		d.pending = d.enc.Header(d.pending)
		d.wroteHeader = true
	}

	for {
		n := copy(dst[nDst:], d.pending[d.pendingPos:])
		nDst += n
		d.pendingPos += n
		if d.pendingPos < len(d.pending) {
			break
		}
		d.pending = d.pending[:0]
		d.pendingPos = 0

		if d.finishing {
			if d.life.state == stateRunning {
				d.life.advance(opFinish)
				d.log.WithFields(logrus.Fields{
					"in":  d.totalIn + int64(nSrc),
					"out": d.totalOut + int64(nDst),
				}).Debug("deflate stream finished")
			}
			status = StatusStreamEnd
			break
		}

		if nSrc < len(src) {
			if len(d.block) == blockSize {
				d.encodeBlock(false)
				continue
			}
			n := copy(d.block[len(d.block):blockSize], src[nSrc:])
			d.block = d.block[:len(d.block)+n]
			d.sum.Write(src[nSrc : nSrc+n])
			nSrc += n
			d.dirty = true
			continue
		}

		if flush == NoFlush || (!d.dirty && flush != Finish && flush <= d.flushed) {
			break
		}
		switch flush {
		case SyncFlush, FullFlush:
			d.encodeBlock(false)
			d.pending = d.flusher.Flush(d.pending)
			if flush == FullFlush && d.mf != nil {
				d.mf.Reset()
			}
			d.log.WithField("flush", flush).Debug("flushed")
		case Finish:
			d.encodeBlock(true)
			d.finishing = true
		}
		d.dirty = false
		d.flushed = flush
	}

	d.totalIn += int64(nSrc)
	d.totalOut += int64(nDst)
	if nDst == 0 && nSrc == 0 && status != StatusStreamEnd {
		return 0, 0, StatusOK, errors.Wrap(ErrBuffer, "deflate")
	}
	return nDst, nSrc, status, nil
}

func (d *Deflater) encodeBlock(lastBlock bool) {
	d.matches = d.matches[:0]
	if d.mf != nil {
		d.matches = d.mf.FindMatches(d.matches, d.block)
	}
	d.pending = d.enc.Encode(d.pending, d.block, d.matches, lastBlock)
	if len(d.block) > 0 || lastBlock {
		d.log.WithFields(logrus.Fields{
			"size":    len(d.block),
			"matches": len(d.matches),
			"final":   lastBlock,
		}).Debug("block encoded")
	}
	d.block = d.block[:0]
}

// Reset discards the stream state, including any dictionary, so that d can
// compress a new stream with the same configuration.
func (d *Deflater) Reset() error {
	if err := d.life.advance(opReset); err != nil {
		return err
	}
	if d.mf != nil {
		d.mf.Reset()
	}
	d.enc.Reset()
	d.block = d.block[:0]
	d.matches = d.matches[:0]
	d.pending = d.pending[:0]
	d.pendingPos = 0
	d.wroteHeader = false
	d.dirty = false
	d.flushed = NoFlush
	d.finishing = false
	d.sum.Reset()
	d.totalIn, d.totalOut = 0, 0
	return nil
}

// End releases the Deflater's buffers. Later calls to End do nothing; any
// other method returns an ErrState error.
func (d *Deflater) End() error {
	if d.life.state == stateEnded {
		return nil
	}
	d.life.advance(opEnd)
	d.mf = nil
	d.block = nil
	d.matches = nil
	d.pending = nil
	d.log.Debug("deflate stream ended")
	return nil
}

// TotalIn returns the number of bytes consumed so far.
func (d *Deflater) TotalIn() int64 { return d.totalIn }

// TotalOut returns the number of bytes produced so far.
func (d *Deflater) TotalOut() int64 { return d.totalOut }

// Adler32 returns the Adler-32 checksum of the input consumed so far.
func (d *Deflater) Adler32() uint32 { return d.sum.Sum32() }
