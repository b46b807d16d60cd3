package flate

import (
	"io"

	"github.com/pkg/errors"

	"github.com/andybalholm/zpack"
)

// NewMatchFinder returns the match finder the Deflater uses for a level and
// strategy, or nil for level 0, which stores everything.
func NewMatchFinder(level int, strategy Strategy, windowBits int) zpack.MatchFinder {
	if level == NoCompression {
		return nil
	}
	switch strategy {
	case HuffmanOnly:
		return zpack.LiteralsOnly{}
	case RLE:
		return &zpack.RunLength{}
	}

	minLength := minMatchLength
	if strategy == Filtered {
		minLength = 6
	}

	switch level {
	case 1, 2, 3:
		// zlib's max_chain and nice_length for its fast levels.
		chain := [...]int{1: 4, 2: 8, 3: 32}[level]
		nice := [...]int{1: 8, 2: 16, 3: 32}[level]
		return &zpack.HashChain{
			SearchLen:   chain,
			MaxDistance: 1 << windowBits,
			MaxLength:   maxMatchLength,
			NiceLength:  nice,
			Parser:      &zpack.GreedyParser{MinLength: minLength},
		}
	}
	return newLazyMatcher(level, windowBits, minLength)
}

// A Writer is an io.WriteCloser that compresses what is written to it
// with a Deflater.
type Writer struct {
	w   io.Writer
	d   *Deflater
	buf []byte
	err error
}

// NewWriter returns a Writer that compresses to w.
func NewWriter(w io.Writer, cfg Config) (*Writer, error) {
	return NewWriterDict(w, cfg, nil)
}

// NewWriterDict is like NewWriter, but presets the dictionary if dict is not
// nil.
func NewWriterDict(w io.Writer, cfg Config, dict []byte) (*Writer, error) {
	d, err := NewDeflater(cfg)
	if err != nil {
		return nil, err
	}
	if dict != nil {
		if err := d.SetDictionary(dict); err != nil {
			return nil, err
		}
	}
	return &Writer{
		w:   w,
		d:   d,
		buf: make([]byte, 1<<15),
	}, nil
}

func (z *Writer) process(p []byte, flush Flush) (int, error) {
	consumed := 0
	for {
		nDst, nSrc, status, err := z.d.Process(z.buf, p[consumed:], flush)
		consumed += nSrc
		if err != nil && IsFatal(err) {
			return consumed, err
		}
		if nDst > 0 {
			if _, err := z.w.Write(z.buf[:nDst]); err != nil {
				return consumed, errors.Wrap(err, "flate: write failed")
			}
		}
		if status == StatusStreamEnd || err != nil {
			// ErrBuffer: everything has been consumed and flushed.
			return consumed, nil
		}
		if consumed == len(p) && nDst < len(z.buf) && flush == NoFlush {
			return consumed, nil
		}
	}
}

// Write compresses p.
func (z *Writer) Write(p []byte) (int, error) {
	if z.err != nil {
		return 0, z.err
	}
	n, err := z.process(p, NoFlush)
	z.err = err
	return n, err
}

// Flush writes any pending data to the underlying writer, ending with a
// sync marker so that a reader can decode everything written so far.
func (z *Writer) Flush() error {
	if z.err != nil {
		return z.err
	}
	_, z.err = z.process(nil, SyncFlush)
	return z.err
}

// Close finishes the stream. It does not close the underlying writer.
func (z *Writer) Close() error {
	if z.err != nil {
		return z.err
	}
	if _, err := z.process(nil, Finish); err != nil {
		z.err = err
		return err
	}
	z.d.End()
	z.err = errors.Wrap(ErrState, "flate: writer closed")
	return nil
}
