package main

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/andybalholm/zpack"
	"github.com/andybalholm/zpack/flate"
)

// textBlockSize is how much input textStream hands the match finder at once.
const textBlockSize = 1 << 15

// compressStream copies src to dst through a Deflater, using fixed input and
// output buffers of s.BufferSize bytes.
func compressStream(dst io.Writer, src io.Reader, s *Settings) (in, out int64, err error) {
	d, err := flate.NewDeflater(s.Codec)
	if err != nil {
		return 0, 0, errors.Wrap(err, "unable to create deflater")
	}
	defer d.End()

	if s.Dictionary != nil {
		if err := d.SetDictionary(s.Dictionary); err != nil {
			return 0, 0, errors.Wrap(err, "unable to set dictionary")
		}
	}

	inBuf := make([]byte, s.BufferSize)
	outBuf := make([]byte, s.BufferSize)
	var pending []byte
	eof := false

	for {
		if len(pending) == 0 && !eof {
			n, err := src.Read(inBuf)
			pending = inBuf[:n]
			if err == io.EOF {
				eof = true
			} else if err != nil {
				return d.TotalIn(), d.TotalOut(), errors.Wrap(err, "error reading input")
			}
		}

		flush := flate.NoFlush
		if eof {
			flush = flate.Finish
		}

		nDst, nSrc, status, err := d.Process(outBuf, pending, flush)
		pending = pending[nSrc:]
		if err != nil && flate.IsFatal(err) {
			return d.TotalIn(), d.TotalOut(), errors.Wrap(err, "error compressing")
		}

		if nDst > 0 {
			if _, err := dst.Write(outBuf[:nDst]); err != nil {
				return d.TotalIn(), d.TotalOut(), errors.Wrap(err, "error writing output")
			}
		}

		if status == flate.StatusStreamEnd {
			return d.TotalIn(), d.TotalOut(), nil
		}
	}
}

// decompressStream copies src to dst through an Inflater. Input after the
// end of the compressed stream is left unread in the buffer and reported.
func decompressStream(dst io.Writer, src io.Reader, s *Settings) (in, out int64, err error) {
	f, err := flate.NewInflater(s.Codec)
	if err != nil {
		return 0, 0, errors.Wrap(err, "unable to create inflater")
	}
	defer f.End()

	if s.Dictionary != nil {
		if err := f.SetDictionary(s.Dictionary); err != nil {
			return 0, 0, errors.Wrap(err, "unable to set dictionary")
		}
	}

	inBuf := make([]byte, s.BufferSize)
	outBuf := make([]byte, s.BufferSize)
	var pending []byte
	eof := false

	for {
		if len(pending) == 0 && !eof {
			n, err := src.Read(inBuf)
			pending = inBuf[:n]
			if err == io.EOF {
				eof = true
			} else if err != nil {
				return f.TotalIn(), f.TotalOut(), errors.Wrap(err, "error reading input")
			}
		}

		nDst, nSrc, status, err := f.Process(outBuf, pending, flate.NoFlush)
		pending = pending[nSrc:]
		if err != nil && flate.IsFatal(err) {
			return f.TotalIn(), f.TotalOut(), errors.Wrap(err, "error decompressing")
		}

		if nDst > 0 {
			if _, err := dst.Write(outBuf[:nDst]); err != nil {
				return f.TotalIn(), f.TotalOut(), errors.Wrap(err, "error writing output")
			}
		}

		if status == flate.StatusStreamEnd {
			if len(pending) > 0 {
				logrus.WithField("bytes", len(pending)).Warn("ignoring data after the end of the compressed stream")
			}
			return f.TotalIn(), f.TotalOut(), nil
		}

		if err != nil && eof && len(pending) == 0 {
			return f.TotalIn(), f.TotalOut(), errors.Wrap(io.ErrUnexpectedEOF, "compressed stream is truncated")
		}
	}
}

// textStream writes the matches the Deflater would find in src, with each
// match shown as <length,distance>.
func textStream(dst io.Writer, src io.Reader, s *Settings) (in, out int64, err error) {
	var mf zpack.MatchFinder = zpack.LiteralsOnly{}
	if m := flate.NewMatchFinder(s.Codec.Level, s.Codec.Strategy, s.Codec.WindowBits); m != nil {
		mf = m
	}
	if p, ok := mf.(zpack.Primer); ok && s.Dictionary != nil {
		p.Prime(s.Dictionary)
	}

	var enc zpack.TextEncoder
	block := make([]byte, textBlockSize)
	var matches []zpack.Match
	buf := enc.Header(nil)

	for {
		n, rerr := io.ReadFull(src, block)
		if n > 0 {
			matches = mf.FindMatches(matches[:0], block[:n])
			buf = enc.Encode(buf[:0], block[:n], matches, rerr != nil)
			if _, err := dst.Write(buf); err != nil {
				return in, out, errors.Wrap(err, "error writing output")
			}
			in += int64(n)
			out += int64(len(buf))
		}

		switch rerr {
		case nil:
		case io.EOF, io.ErrUnexpectedEOF:
			return in, out, nil
		default:
			return in, out, errors.Wrap(rerr, "error reading input")
		}
	}
}

func openInput(name string) (io.ReadCloser, error) {
	if name == "" || name == "-" {
		return os.Stdin, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open input")
	}
	return f, nil
}

func createOutput(name string) (io.WriteCloser, error) {
	if name == "" || name == "-" {
		return os.Stdout, nil
	}
	f, err := os.Create(name)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create output")
	}
	return f, nil
}

type streamFunc func(dst io.Writer, src io.Reader, s *Settings) (int64, int64, error)

func runStream(cfg *Config, flags CodecFlags, input, output, verb string, fn streamFunc) error {
	s, err := cfg.Resolve(flags)
	if err != nil {
		return err
	}

	displaySettings(verb, s)

	r, err := openInput(input)
	if err != nil {
		return err
	}
	defer r.Close()

	w, err := createOutput(output)
	if err != nil {
		return err
	}

	in, out, err := fn(w, r, s)
	if cerr := w.Close(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, "error closing output")
	}
	if err != nil {
		return errors.Wrapf(err, "%s failed", verb)
	}

	logrus.WithFields(logrus.Fields{
		"in":  in,
		"out": out,
	}).Infof("%s done", verb)

	return nil
}

func (c *CompressCmd) Run(cfg *Config) error {
	if c.Text {
		return runStream(cfg, c.CodecFlags, c.Input, c.Output, "parse", textStream)
	}
	return runStream(cfg, c.CodecFlags, c.Input, c.Output, "compress", compressStream)
}

func (c *DecompressCmd) Run(cfg *Config) error {
	return runStream(cfg, c.CodecFlags, c.Input, c.Output, "decompress", decompressStream)
}
