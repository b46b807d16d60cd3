package main

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/golang/snappy"
	kflate "github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/pierrec/xxHash/xxHash32"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/andybalholm/zpack/flate"
)

// A codec is a whole-buffer compressor used for comparisons.
type codec struct {
	name       string
	compress   func(src []byte) ([]byte, error)
	decompress func(src []byte) ([]byte, error)
}

type benchResult struct {
	Codec          string
	File           string
	In, Out        int
	CompressTime   time.Duration
	DecompressTime time.Duration
}

func (r benchResult) ratio() float64 {
	if r.Out == 0 {
		return 0
	}
	return float64(r.In) / float64(r.Out)
}

func throughput(n int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds() / 1e6
}

func writeAll(compress func(io.Writer) (io.WriteCloser, error), src []byte) ([]byte, error) {
	var b bytes.Buffer
	w, err := compress(&b)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func newCodec(name string, s *Settings) (*codec, error) {
	level := s.Codec.Level

	switch name {
	case "zpack":
		return &codec{
			name: name,
			compress: func(src []byte) ([]byte, error) {
				return writeAll(func(w io.Writer) (io.WriteCloser, error) {
					return flate.NewWriterDict(w, s.Codec, s.Dictionary)
				}, src)
			},
			decompress: func(src []byte) ([]byte, error) {
				r, err := flate.NewReader(bytes.NewReader(src), s.Codec, s.Dictionary)
				if err != nil {
					return nil, err
				}
				defer r.Close()
				return ioutil.ReadAll(r)
			},
		}, nil

	case "flate":
		return &codec{
			name: name,
			compress: func(src []byte) ([]byte, error) {
				return writeAll(func(w io.Writer) (io.WriteCloser, error) {
					return kflate.NewWriter(w, level)
				}, src)
			},
			decompress: func(src []byte) ([]byte, error) {
				return ioutil.ReadAll(kflate.NewReader(bytes.NewReader(src)))
			},
		}, nil

	case "zstd":
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			return nil, errors.Wrap(err, "unable to create zstd encoder")
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, errors.Wrap(err, "unable to create zstd decoder")
		}
		return &codec{
			name: name,
			compress: func(src []byte) ([]byte, error) {
				return enc.EncodeAll(src, nil), nil
			},
			decompress: func(src []byte) ([]byte, error) {
				return dec.DecodeAll(src, nil)
			},
		}, nil

	case "brotli":
		return &codec{
			name: name,
			compress: func(src []byte) ([]byte, error) {
				return writeAll(func(w io.Writer) (io.WriteCloser, error) {
					return brotli.NewWriterLevel(w, level), nil
				}, src)
			},
			decompress: func(src []byte) ([]byte, error) {
				return ioutil.ReadAll(brotli.NewReader(bytes.NewReader(src)))
			},
		}, nil

	case "snappy":
		return &codec{
			name: name,
			compress: func(src []byte) ([]byte, error) {
				return snappy.Encode(nil, src), nil
			},
			decompress: func(src []byte) ([]byte, error) {
				return snappy.Decode(nil, src)
			},
		}, nil

	case "lz4":
		return &codec{
			name: name,
			compress: func(src []byte) ([]byte, error) {
				return writeAll(func(w io.Writer) (io.WriteCloser, error) {
					return lz4.NewWriter(w), nil
				}, src)
			},
			decompress: func(src []byte) ([]byte, error) {
				return ioutil.ReadAll(lz4.NewReader(bytes.NewReader(src)))
			},
		}, nil
	}

	return nil, errors.Errorf("unknown codec %s", name)
}

// benchCodec compresses and decompresses data iterations times, keeping the
// fastest time for each direction. The round trip is checked by comparing
// xxHash32 fingerprints.
func benchCodec(c *codec, file string, data []byte, iterations int) (*benchResult, error) {
	want := xxHash32.Checksum(data, 0)
	res := &benchResult{
		Codec: c.name,
		File:  file,
		In:    len(data),
	}

	for i := 0; i < iterations; i++ {
		start := time.Now()
		compressed, err := c.compress(data)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: compress failed", c.name)
		}
		ct := time.Since(start)

		start = time.Now()
		decompressed, err := c.decompress(compressed)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: decompress failed", c.name)
		}
		dt := time.Since(start)

		if got := xxHash32.Checksum(decompressed, 0); got != want || len(decompressed) != len(data) {
			return nil, errors.Errorf("%s: round trip mismatch (checksum %08x, want %08x)", c.name, got, want)
		}

		res.Out = len(compressed)
		if i == 0 || ct < res.CompressTime {
			res.CompressTime = ct
		}
		if i == 0 || dt < res.DecompressTime {
			res.DecompressTime = dt
		}
	}

	return res, nil
}

func runBench(cfg *Config, flags CodecFlags, files, names []string, out io.Writer) ([]*benchResult, error) {
	s, err := cfg.Resolve(flags)
	if err != nil {
		return nil, err
	}

	displaySettings("bench", s)

	if len(names) == 0 {
		names = cfg.TOML.Bench.Codecs
	}

	codecs := make([]*codec, 0, len(names))
	for _, name := range names {
		c, err := newCodec(name, s)
		if err != nil {
			return nil, err
		}
		codecs = append(codecs, c)
	}

	var results []*benchResult
	fmt.Fprintf(out, "%-24s %-8s %12s %12s %8s %10s %10s\n", "file", "codec", "in", "out", "ratio", "comp MB/s", "decomp MB/s")

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, errors.Wrap(err, "unable to read bench input")
		}

		for _, c := range codecs {
			res, err := benchCodec(c, file, data, cfg.TOML.Bench.Iterations)
			if err != nil {
				return nil, errors.Wrapf(err, "bench of %s failed", file)
			}

			logrus.WithFields(logrus.Fields{
				"file":  file,
				"codec": c.name,
				"out":   res.Out,
			}).Debug("bench result")

			fmt.Fprintf(out, "%-24s %-8s %12d %12d %8.3f %10.1f %10.1f\n",
				file, c.name, res.In, res.Out, res.ratio(),
				throughput(res.In, res.CompressTime), throughput(res.In, res.DecompressTime))
			results = append(results, res)
		}
	}

	return results, nil
}

func (b *BenchCmd) Run(cfg *Config) error {
	_, err := runBench(cfg, b.CodecFlags, b.Files, b.Codecs, os.Stdout)
	return err
}
