package flate

import (
	"bytes"
	"compress/flate"
	"io"
	"io/ioutil"
	"testing"
	"testing/iotest"

	kzlib "github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestWriterReader(t *testing.T) {
	text := makeText(300000)
	for _, level := range []int{0, 1, 6, 9} {
		var b bytes.Buffer
		w, err := NewWriter(&b, Config{Level: level, Logger: quietLogger()})
		require.NoError(t, err)
		for i := 0; i < len(text); i += 7777 {
			end := i + 7777
			if end > len(text) {
				end = len(text)
			}
			n, err := w.Write(text[i:end])
			require.NoError(t, err)
			require.Equal(t, end-i, n)
		}
		require.NoError(t, w.Close())

		// The reference decoder reads what the Writer wrote.
		got, err := ioutil.ReadAll(flate.NewReader(bytes.NewReader(b.Bytes())))
		require.NoError(t, err)
		require.True(t, bytes.Equal(text, got), "level %d", level)

		// So does the Reader, fed one byte at a time.
		r, err := NewReader(iotest.OneByteReader(bytes.NewReader(b.Bytes())), Config{Logger: quietLogger()}, nil)
		require.NoError(t, err)
		got, err = ioutil.ReadAll(r)
		require.NoError(t, err)
		require.True(t, bytes.Equal(text, got), "level %d", level)
		require.NoError(t, r.Close())
	}
}

func TestWriterFlush(t *testing.T) {
	var b bytes.Buffer
	w, err := NewWriterDict(&b, Config{Format: Zlib, Logger: quietLogger()}, []byte(testDict))
	require.NoError(t, err)
	f, err := NewInflater(Config{Format: Zlib, Logger: quietLogger()})
	require.NoError(t, err)
	require.NoError(t, f.SetDictionary([]byte(testDict)))

	out := make([]byte, 1<<16)
	for i, msg := range []string{"first message", "second message, much like the first message", "third"} {
		_, err := w.Write([]byte(msg))
		require.NoError(t, err)
		require.NoError(t, w.Flush())

		// Everything written so far decodes before the stream is closed.
		nDst, nSrc, status, err := f.Process(out, b.Bytes(), NoFlush)
		require.NoError(t, err, "message %d", i)
		require.Equal(t, StatusOK, status)
		require.Equal(t, b.Len(), nSrc)
		require.Equal(t, msg, string(out[:nDst]))
		b.Reset()

		// A second flush with nothing new adds nothing.
		require.NoError(t, w.Flush())
		require.Equal(t, 0, b.Len())
	}
	require.NoError(t, w.Close())
	_, _, status, err := f.Process(out, b.Bytes(), Finish)
	require.NoError(t, err)
	require.Equal(t, StatusStreamEnd, status)

	_, err = w.Write([]byte("late"))
	require.True(t, errors.Is(err, ErrState))
}

func TestReaderZlib(t *testing.T) {
	text := makeText(50000)
	var b bytes.Buffer
	zw := kzlib.NewWriter(&b)
	zw.Write(text)
	zw.Close()

	r, err := NewReader(&b, Config{Format: Zlib, Logger: quietLogger()}, nil)
	require.NoError(t, err)
	got, err := ioutil.ReadAll(r)
	require.NoError(t, err)
	require.True(t, bytes.Equal(text, got))

	// Reads after the end keep returning io.EOF.
	n, err := r.Read(make([]byte, 10))
	require.Equal(t, 0, n)
	require.Equal(t, io.EOF, err)
}

func TestReaderErrors(t *testing.T) {
	compressed := compressOnce(t, Config{Level: 6}, nil, makeText(20000), Finish)

	r, err := NewReader(bytes.NewReader(compressed[:len(compressed)-10]), Config{Logger: quietLogger()}, nil)
	require.NoError(t, err)
	_, err = ioutil.ReadAll(r)
	require.Equal(t, io.ErrUnexpectedEOF, err)

	r, err = NewReader(bytes.NewReader([]byte{0x07, 0x00}), Config{Logger: quietLogger()}, nil)
	require.NoError(t, err)
	_, err = ioutil.ReadAll(r)
	require.True(t, errors.Is(err, ErrCorruptData), "%v", err)

	// Random data is larger than one buffer of input, so the second read fails.
	compressed = compressOnce(t, Config{Level: 6}, nil, makeSource2(100000), Finish)
	r, err = NewReader(iotest.TimeoutReader(bytes.NewReader(compressed)), Config{Logger: quietLogger()}, nil)
	require.NoError(t, err)
	_, err = ioutil.ReadAll(r)
	require.True(t, errors.Is(err, iotest.ErrTimeout), "%v", err)
}
