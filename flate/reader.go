package flate

import (
	"io"

	"github.com/pkg/errors"
)

// A Reader is an io.ReadCloser that decompresses a stream read from an
// underlying reader with an Inflater.
type Reader struct {
	r   io.Reader
	f   *Inflater
	buf []byte
	in  []byte // unconsumed part of buf
	eof bool   // r has returned io.EOF
	err error
}

// NewReader returns a Reader that decompresses data from r. If dict is not
// nil, it is used as the preset dictionary.
func NewReader(r io.Reader, cfg Config, dict []byte) (*Reader, error) {
	f, err := NewInflater(cfg)
	if err != nil {
		return nil, err
	}
	if dict != nil {
		if err := f.SetDictionary(dict); err != nil {
			return nil, err
		}
	}
	return &Reader{
		r:   r,
		f:   f,
		buf: make([]byte, 1<<14),
	}, nil
}

func (z *Reader) Read(p []byte) (int, error) {
	if z.err != nil {
		return 0, z.err
	}
	if len(p) == 0 {
		return 0, nil
	}
	for {
		if len(z.in) == 0 && !z.eof {
			n, err := z.r.Read(z.buf)
			z.in = z.buf[:n]
			switch {
			case err == io.EOF:
				z.eof = true
			case err != nil:
				z.err = errors.Wrap(err, "flate: read failed")
				return 0, z.err
			}
		}

		nDst, nSrc, status, err := z.f.Process(p, z.in, NoFlush)
		z.in = z.in[nSrc:]
		if status == StatusStreamEnd {
			z.err = io.EOF
			if nDst > 0 {
				return nDst, nil
			}
			return 0, io.EOF
		}
		if err != nil && IsFatal(err) {
			z.err = err
			return nDst, err
		}
		if nDst > 0 {
			return nDst, nil
		}
		if err != nil && z.eof && len(z.in) == 0 {
			z.err = io.ErrUnexpectedEOF
			return 0, z.err
		}
	}
}

// Close releases the Inflater. It does not close the underlying reader.
func (z *Reader) Close() error {
	z.f.End()
	if z.err == nil || z.err == io.EOF {
		z.err = errors.Wrap(ErrState, "flate: reader closed")
	}
	return nil
}
