package flate

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"testing"

	kflate "github.com/klauspost/compress/flate"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// compressOnce compresses src with a single Process call into a buffer of
// CompressBound(len(src)) bytes.
func compressOnce(t testing.TB, cfg Config, dict, src []byte, flush Flush) []byte {
	t.Helper()
	cfg.Logger = quietLogger()
	d, err := NewDeflater(cfg)
	require.NoError(t, err)
	defer d.End()
	if dict != nil {
		require.NoError(t, d.SetDictionary(dict))
	}
	out := make([]byte, CompressBound(len(src)))
	nDst, nSrc, status, err := d.Process(out, src, flush)
	require.NoError(t, err)
	require.Equal(t, len(src), nSrc)
	if flush == Finish {
		require.Equal(t, StatusStreamEnd, status)
	} else {
		require.Equal(t, StatusOK, status)
	}
	return out[:nDst]
}

// checkInflate decodes input split in two at every possible point, and
// checks that each split gives back original.
func checkInflate(t *testing.T, input, dict, original []byte) {
	t.Helper()
	step := 1
	if testing.Short() {
		step = 97
	}
	f, err := NewInflater(Config{Logger: quietLogger()})
	require.NoError(t, err)
	defer f.End()
	for i := 0; i < len(input); i += step {
		require.NoError(t, f.Reset())
		if dict != nil {
			require.NoError(t, f.SetDictionary(dict))
		}
		output := make([]byte, len(original))
		n := 0
		if i > 0 {
			nDst, nSrc, _, err := f.Process(output, input[:i], FullFlush)
			require.NoError(t, err, "split %d", i)
			require.Equal(t, i, nSrc)
			n += nDst
		}
		nDst, nSrc, _, err := f.Process(output[n:], input[i:], FullFlush)
		require.NoError(t, err, "split %d", i)
		require.Equal(t, len(input)-i, nSrc)
		n += nDst
		require.Equal(t, len(original), n, "split %d", i)
		require.True(t, bytes.Equal(original, output), "split %d", i)
	}
}

func TestCompressGrid(t *testing.T) {
	const n = 2048
	sources := []struct {
		name string
		data []byte
	}{
		{"source1", makeSource1(n)},
		{"source2", makeSource2(n)},
	}
	for _, source := range sources {
		for dictno, dict := range [][]byte{nil, []byte(testDict)} {
			for level := 0; level <= 9; level++ {
				for strategy := DefaultStrategy; strategy <= Fixed; strategy++ {
					name := fmt.Sprintf("%s/dict%d/level%d/%v", source.name, dictno, level, strategy)
					t.Run(name, func(t *testing.T) {
						cfg := Config{Level: level, Strategy: strategy}
						compressed := compressOnce(t, cfg, dict, source.data, FullFlush)
						checkInflate(t, compressed, dict, source.data)
					})
				}
			}
		}
	}
}

// inflateAll decodes a complete stream in one call.
func inflateAll(t testing.TB, cfg Config, dict, compressed []byte, size int) []byte {
	t.Helper()
	cfg.Logger = quietLogger()
	f, err := NewInflater(cfg)
	require.NoError(t, err)
	defer f.End()
	if dict != nil {
		require.NoError(t, f.SetDictionary(dict))
	}
	out := make([]byte, size+1)
	nDst, nSrc, status, err := f.Process(out, compressed, Finish)
	require.NoError(t, err)
	require.Equal(t, StatusStreamEnd, status)
	require.Equal(t, len(compressed), nSrc)
	return out[:nDst]
}

func TestRoundTripLevels(t *testing.T) {
	inputs := map[string][]byte{
		"empty":  nil,
		"byte":   {'x'},
		"text":   makeText(300000),
		"random": makeSource2(100000),
		"zeros":  make([]byte, 70000),
	}
	for name, input := range inputs {
		for _, format := range []Format{Raw, Zlib} {
			for level := 0; level <= 9; level++ {
				for strategy := DefaultStrategy; strategy <= Fixed; strategy++ {
					cfg := Config{Level: level, Strategy: strategy, Format: format}
					t.Run(fmt.Sprintf("%s/%v/%d/%v", name, format, level, strategy), func(t *testing.T) {
						compressed := compressOnce(t, cfg, nil, input, Finish)
						require.LessOrEqual(t, len(compressed), CompressBound(len(input)))
						got := inflateAll(t, cfg, nil, compressed, len(input))
						require.True(t, bytes.Equal(input, got))
					})
				}
			}
		}
	}
}

func TestCompressionRatio(t *testing.T) {
	text := makeText(100000)
	prev := len(text)
	for _, level := range []int{1, 4, 9} {
		compressed := compressOnce(t, Config{Level: level}, nil, text, Finish)
		require.Less(t, len(compressed), prev, "level %d", level)
		prev = len(compressed) + len(compressed)/50
	}
}

func TestDecodeWithReference(t *testing.T) {
	text := makeText(100000)
	for level := 0; level <= 9; level++ {
		for strategy := DefaultStrategy; strategy <= Fixed; strategy++ {
			compressed := compressOnce(t, Config{Level: level, Strategy: strategy}, nil, text, Finish)
			got, err := ioutil.ReadAll(kflate.NewReader(bytes.NewReader(compressed)))
			require.NoError(t, err)
			require.True(t, bytes.Equal(text, got), "level %d strategy %v", level, strategy)
		}
	}
}

func TestSmallWindows(t *testing.T) {
	text := makeText(50000)
	for wb := MinWindowBits; wb <= MaxWindowBits; wb++ {
		for _, level := range []int{1, 3, 6, 9} {
			cfg := Config{Level: level, WindowBits: wb, Format: Zlib}
			compressed := compressOnce(t, cfg, []byte(testDict), text, Finish)
			got := inflateAll(t, cfg, []byte(testDict), compressed, len(text))
			require.True(t, bytes.Equal(text, got), "window bits %d level %d", wb, level)
		}
	}
}

func TestFullFlushRestart(t *testing.T) {
	first := makeText(40000)
	second := makeText(20000)
	for _, level := range []int{1, 6, 9} {
		d, err := NewDeflater(Config{Level: level, Logger: quietLogger()})
		require.NoError(t, err)
		require.NoError(t, d.SetDictionary([]byte(testDict)))

		out := make([]byte, CompressBound(len(first))+CompressBound(len(second)))
		n1, _, _, err := d.Process(out, first, FullFlush)
		require.NoError(t, err)
		n2, _, status, err := d.Process(out[n1:], second, Finish)
		require.NoError(t, err)
		require.Equal(t, StatusStreamEnd, status)

		// A decoder starting at the flush point needs neither the earlier
		// data nor the dictionary.
		got := inflateAll(t, Config{}, nil, out[n1:n1+n2], len(second))
		require.True(t, bytes.Equal(second, got), "level %d", level)
	}
}

func TestSyncFlush(t *testing.T) {
	text := makeText(30000)
	d, err := NewDeflater(Config{Level: 6, Logger: quietLogger()})
	require.NoError(t, err)
	f, err := NewInflater(Config{Logger: quietLogger()})
	require.NoError(t, err)

	out := make([]byte, CompressBound(len(text)))
	decoded := make([]byte, len(text))
	total := 0
	for _, chunk := range [][]byte{text[:1000], text[1000:1001], text[1001:20000], text[20000:]} {
		nDst, nSrc, _, err := d.Process(out, chunk, SyncFlush)
		require.NoError(t, err)
		require.Equal(t, len(chunk), nSrc)
		// A sync marker ends with an empty stored block.
		require.Equal(t, []byte{0, 0, 0xff, 0xff}, out[nDst-4:nDst])

		n, _, _, err := f.Process(decoded[total:], out[:nDst], NoFlush)
		require.NoError(t, err)
		total += n
		require.Equal(t, text[:total], decoded[:total])
		require.Equal(t, int(d.TotalIn()), total)
	}

	// Flushing again with no new input can not make progress.
	_, _, _, err = d.Process(out, nil, SyncFlush)
	require.True(t, errors.Is(err, ErrBuffer))
}

func TestTinyBuffers(t *testing.T) {
	text := makeText(20000)
	for _, format := range []Format{Raw, Zlib} {
		cfg := Config{Level: 6, Format: format, Logger: quietLogger()}
		d, err := NewDeflater(cfg)
		require.NoError(t, err)

		var compressed []byte
		var one [1]byte
		src := text
		for {
			nDst, nSrc, status, err := d.Process(one[:], src, Finish)
			if err != nil {
				require.True(t, errors.Is(err, ErrBuffer))
			}
			compressed = append(compressed, one[:nDst]...)
			src = src[nSrc:]
			if status == StatusStreamEnd {
				break
			}
		}
		require.Equal(t, compressed, compressOnce(t, cfg, nil, text, Finish))

		f, err := NewInflater(cfg)
		require.NoError(t, err)
		var decoded []byte
		in := compressed
		for {
			nDst, nSrc, status, err := f.Process(one[:], in[:min(len(in), 3)], NoFlush)
			require.NoError(t, err)
			decoded = append(decoded, one[:nDst]...)
			in = in[nSrc:]
			if status == StatusStreamEnd {
				break
			}
		}
		require.True(t, bytes.Equal(text, decoded))
		require.Empty(t, in)
		require.Equal(t, d.Adler32(), f.Adler32())
	}
}

func TestDeflaterStateErrors(t *testing.T) {
	d, err := NewDeflater(Config{Level: 6, Logger: quietLogger()})
	require.NoError(t, err)
	out := make([]byte, 100)

	_, _, _, err = d.Process(out, []byte("hello"), NoFlush)
	require.NoError(t, err)
	require.True(t, errors.Is(d.SetDictionary([]byte("late")), ErrState))

	_, _, status, err := d.Process(out, nil, Finish)
	require.NoError(t, err)
	require.Equal(t, StatusStreamEnd, status)

	_, _, status, err = d.Process(out, nil, Finish)
	require.NoError(t, err)
	require.Equal(t, StatusStreamEnd, status)

	_, _, _, err = d.Process(out, []byte("more"), NoFlush)
	require.True(t, errors.Is(err, ErrState))

	require.NoError(t, d.Reset())
	require.NoError(t, d.SetDictionary([]byte("early")))

	require.NoError(t, d.End())
	require.NoError(t, d.End())
	_, _, _, err = d.Process(out, []byte("x"), NoFlush)
	require.True(t, errors.Is(err, ErrState))
	require.True(t, errors.Is(d.Reset(), ErrState))
}

func TestErrBuffer(t *testing.T) {
	d, err := NewDeflater(Config{Level: 1, Logger: quietLogger()})
	require.NoError(t, err)
	_, _, _, err = d.Process(nil, nil, NoFlush)
	require.True(t, errors.Is(err, ErrBuffer))
	require.False(t, IsFatal(err))

	// Input is buffered even with no room for output.
	_, nSrc, _, err := d.Process(nil, []byte("abc"), NoFlush)
	require.NoError(t, err)
	require.Equal(t, 3, nSrc)
}

func TestInvalidParameters(t *testing.T) {
	for _, cfg := range []Config{
		{Level: 10},
		{Level: -2},
		{WindowBits: 7},
		{WindowBits: 16},
		{Strategy: Fixed + 1},
		{Format: Zlib + 1},
	} {
		_, err := NewDeflater(cfg)
		require.True(t, errors.Is(err, ErrInvalidParameter), "%+v", cfg)
		_, err = New(ModeInflate, cfg)
		require.True(t, errors.Is(err, ErrInvalidParameter), "%+v", cfg)
	}
	_, err := New(Mode(5), Config{})
	require.True(t, errors.Is(err, ErrInvalidParameter))

	d, err := NewDeflater(Config{})
	require.NoError(t, err)
	_, _, _, err = d.Process(nil, nil, Finish+1)
	require.True(t, errors.Is(err, ErrInvalidParameter))
}

func TestCompressBound(t *testing.T) {
	for _, n := range []int{0, 1, 100, blockSize - 1, blockSize, blockSize + 1, 3 * blockSize, 200000} {
		src := makeSource2(n)
		for _, level := range []int{0, 1, 6, 9} {
			for _, flush := range []Flush{SyncFlush, FullFlush, Finish} {
				compressed := compressOnce(t, Config{Level: level, Format: Zlib}, []byte(testDict), src, flush)
				require.LessOrEqual(t, len(compressed), CompressBound(n), "n %d level %d flush %v", n, level, flush)
			}
		}
	}
}

func TestDeflaterReset(t *testing.T) {
	text := makeText(10000)
	cfg := Config{Level: 6, Format: Zlib}
	want := compressOnce(t, cfg, nil, text, Finish)

	cfg.Logger = quietLogger()
	d, err := NewDeflater(cfg)
	require.NoError(t, err)
	out := make([]byte, CompressBound(len(text)))
	for i := 0; i < 3; i++ {
		nDst, _, status, err := d.Process(out, text, Finish)
		require.NoError(t, err)
		require.Equal(t, StatusStreamEnd, status)
		require.Equal(t, want, out[:nDst])
		require.Equal(t, int64(len(text)), d.TotalIn())
		require.Equal(t, int64(nDst), d.TotalOut())
		require.NoError(t, d.Reset())
	}
}
