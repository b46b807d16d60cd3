package main

import (
	"bytes"
	"io"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/andybalholm/zpack/flate"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.Out = ioutil.Discard
	return l
}

func testInput() []byte {
	var b bytes.Buffer
	for i := 0; b.Len() < 200000; i++ {
		b.WriteString(strings.Repeat("zpack ", i%7))
		b.WriteString("streams data through fixed buffers, ")
		b.WriteByte(byte(i))
	}
	return b.Bytes()
}

func TestStreamRoundTrip(t *testing.T) {
	data := testInput()
	for _, s := range []*Settings{
		{Codec: flate.Config{Level: 6, Format: flate.Zlib}, BufferSize: 64 << 10},
		{Codec: flate.Config{Level: 1, Format: flate.Raw}, BufferSize: 7},
		{Codec: flate.Config{Level: 9, Format: flate.Zlib, WindowBits: 10}, BufferSize: 1000, Dictionary: []byte("streams data through")},
		{Codec: flate.Config{Level: 0, Format: flate.Raw}, BufferSize: 1},
	} {
		s.Codec.Logger = quietLogger()

		var compressed bytes.Buffer
		in, out, err := compressStream(&compressed, iotest.HalfReader(bytes.NewReader(data)), s)
		require.NoError(t, err)
		require.Equal(t, int64(len(data)), in)
		require.Equal(t, int64(compressed.Len()), out)

		var decompressed bytes.Buffer
		in, out, err = decompressStream(&decompressed, bytes.NewReader(compressed.Bytes()), s)
		require.NoError(t, err)
		require.Equal(t, int64(compressed.Len()), in)
		require.Equal(t, int64(len(data)), out)
		require.True(t, bytes.Equal(data, decompressed.Bytes()))
	}
}

func TestStreamErrors(t *testing.T) {
	s := &Settings{Codec: flate.Config{Level: 6, Format: flate.Zlib, Logger: quietLogger()}, BufferSize: 4096}
	var compressed bytes.Buffer
	_, _, err := compressStream(&compressed, bytes.NewReader(testInput()), s)
	require.NoError(t, err)

	truncated := compressed.Bytes()[:compressed.Len()-3]
	_, _, err = decompressStream(ioutil.Discard, bytes.NewReader(truncated), s)
	require.True(t, errors.Is(err, io.ErrUnexpectedEOF), "%v", err)

	corrupt := append([]byte{}, compressed.Bytes()...)
	corrupt[0] = 0x77
	_, _, err = decompressStream(ioutil.Discard, bytes.NewReader(corrupt), s)
	require.True(t, errors.Is(err, flate.ErrCorruptData), "%v", err)

	// Data after the end of the stream is ignored.
	trailing := append(append([]byte{}, compressed.Bytes()...), "trailing"...)
	var out bytes.Buffer
	_, _, err = decompressStream(&out, bytes.NewReader(trailing), s)
	require.NoError(t, err)
	require.Equal(t, len(testInput()), out.Len())
}

func TestCompressCommand(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, "input.txt", string(testInput()))
	compressed := filepath.Join(dir, "input.txt.z")
	output := filepath.Join(dir, "output.txt")

	cfg, err := NewConfig([]string{"compress", "-o", compressed, input}, noExit())
	require.NoError(t, err)
	require.NoError(t, cfg.CLI.Ctx.Run(cfg))

	cfg, err = NewConfig([]string{"decompress", "-o", output, compressed}, noExit())
	require.NoError(t, err)
	require.NoError(t, cfg.CLI.Ctx.Run(cfg))

	got, err := ioutil.ReadFile(output)
	require.NoError(t, err)
	require.True(t, bytes.Equal(testInput(), got))

	cfg, err = NewConfig([]string{"decompress", "-o", output, filepath.Join(dir, "missing")}, noExit())
	require.NoError(t, err)
	require.Error(t, cfg.CLI.Ctx.Run(cfg))
}

func TestBench(t *testing.T) {
	input := writeFile(t, "bench.txt", string(testInput()))
	cfg, err := NewConfig([]string{"bench", input}, noExit())
	require.NoError(t, err)
	cfg.TOML.Bench.Iterations = 1

	var table bytes.Buffer
	results, err := runBench(cfg, cfg.CLI.Bench.CodecFlags, cfg.CLI.Bench.Files, nil, &table)
	require.NoError(t, err)
	require.Len(t, results, len(validCodecs))
	for _, r := range results {
		require.Equal(t, len(testInput()), r.In)
		require.True(t, r.Out > 0 && r.Out < r.In, "%s: %d -> %d", r.Codec, r.In, r.Out)
		require.Contains(t, table.String(), r.Codec)
	}

	_, err = runBench(cfg, cfg.CLI.Bench.CodecFlags, []string{filepath.Join(t.TempDir(), "missing")}, []string{"zpack"}, &table)
	require.Error(t, err)
}

func TestTextStream(t *testing.T) {
	s := &Settings{Codec: flate.Config{Level: 1, WindowBits: 15}}
	var out bytes.Buffer
	in, n, err := textStream(&out, strings.NewReader("HelloHelloHello, world"), s)
	require.NoError(t, err)
	require.Equal(t, int64(22), in)
	require.Equal(t, int64(out.Len()), n)
	require.Equal(t, "Hello<10,5>, world", out.String())

	// Level 0 finds no matches at all.
	s.Codec.Level = 0
	out.Reset()
	_, _, err = textStream(&out, strings.NewReader("abcabcabc"), s)
	require.NoError(t, err)
	require.Equal(t, "abcabcabc", out.String())
}
