package flate

import (
	"bytes"
	"compress/flate"
	"io/ioutil"
	"math/rand"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/andybalholm/zpack"
)

const source1Chars = "01234567890{}\"ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz" +
	"{{{{{{{{{{}}}}}}}}}}  "

const testDict = "01234567890{}\"ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz{} "

// makeSource1 returns n bytes drawn from a small, skewed alphabet.
func makeSource1(n int) []byte {
	rng := rand.New(rand.NewSource(1))
	b := make([]byte, n)
	for i := range b {
		b[i] = source1Chars[rng.Intn(len(source1Chars))]
	}
	return b
}

// makeSource2 returns n random bytes.
func makeSource2(n int) []byte {
	rng := rand.New(rand.NewSource(2))
	b := make([]byte, n)
	rng.Read(b)
	return b
}

var words = strings.Fields(`of the light which is reflected by bodies and refracted
through prisms the colours of thin plates rays that are most refrangible
experiment proposition theorem glass water air lens sun image spectrum`)

// makeText returns n bytes of repetitive, word-based text.
func makeText(n int) []byte {
	rng := rand.New(rand.NewSource(3))
	var b bytes.Buffer
	for b.Len() < n {
		b.WriteString(words[rng.Intn(len(words))])
		if rng.Intn(12) == 0 {
			b.WriteString(".\n")
		} else {
			b.WriteByte(' ')
		}
	}
	return b.Bytes()[:n]
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.Out = ioutil.Discard
	return l
}

// encodeAll runs matches through an Encoder as one final block.
func encodeAll(mf zpack.MatchFinder, e zpack.Encoder, src []byte) []byte {
	dst := e.Header(nil)
	matches := mf.FindMatches(nil, src)
	return e.Encode(dst, src, matches, true)
}

func TestEncode(t *testing.T) {
	text := makeText(200000)
	var compressed []byte
	mf := &zpack.HashChain{SearchLen: 8, Parser: &zpack.GreedyParser{MinLength: 3}}
	e := NewEncoder()
	for start := 0; start < len(text); start += blockSize {
		end := start + blockSize
		if end > len(text) {
			end = len(text)
		}
		block := text[start:end]
		compressed = e.Encode(compressed, block, mf.FindMatches(nil, block), end == len(text))
	}

	sr := flate.NewReader(bytes.NewReader(compressed))
	decompressed, err := ioutil.ReadAll(sr)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decompressed, text) {
		t.Fatal("decompressed output doesn't match")
	}
	if len(compressed) > len(text)/2 {
		t.Fatalf("poor compression: %d -> %d", len(text), len(compressed))
	}
}

func TestEncodeHelloHello(t *testing.T) {
	hello := []byte("HelloHelloHelloHelloHelloHelloHelloHelloHelloHello, world")
	compressed := encodeAll(&zpack.HashChain{Parser: &zpack.GreedyParser{}}, NewEncoder(), hello)
	sr := flate.NewReader(bytes.NewReader(compressed))
	decompressed, err := ioutil.ReadAll(sr)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decompressed, hello) {
		t.Fatalf("decompressed output doesn't match: got %q, want %q", decompressed, hello)
	}
}

func TestEncoderBlockTypes(t *testing.T) {
	random := makeSource2(4000)
	text := makeText(4000)
	for _, tc := range []struct {
		name  string
		e     *Encoder
		src   []byte
		typ   int
		count int
	}{
		{"random stored", NewEncoder(), random, blockStored, 1},
		{"text dynamic", NewEncoder(), text, blockDynamic, 1},
		{"text fixed", &Encoder{ForceFixed: true}, text, blockFixed, 1},
		{"stored only", &Encoder{StoredOnly: true}, text, blockStored, 1},
		{"long stored", &Encoder{StoredOnly: true}, makeSource2(150000), blockStored, 3},
		{"empty", NewEncoder(), nil, blockFixed, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			compressed := encodeAll(NewMatchFinder(6, DefaultStrategy, 15), tc.e, tc.src)
			if tc.e.blocks[tc.typ] != tc.count {
				t.Fatalf("got block counts %v, want %d of type %d", tc.e.blocks, tc.count, tc.typ)
			}
			decompressed, err := ioutil.ReadAll(flate.NewReader(bytes.NewReader(compressed)))
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(decompressed, tc.src) {
				t.Fatal("decompressed output doesn't match")
			}
		})
	}
}

func TestEncodeTrailingLiterals(t *testing.T) {
	// Bytes after the last match are literals even without a final
	// unmatched entry.
	src := []byte("abcabcabcXYZ")
	matches := []zpack.Match{{Unmatched: 3, Length: 6, Distance: 3}}
	compressed := NewEncoder().Encode(nil, src, matches, true)
	decompressed, err := ioutil.ReadAll(flate.NewReader(bytes.NewReader(compressed)))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decompressed, src) {
		t.Fatalf("got %q, want %q", decompressed, src)
	}
}

func BenchmarkEncode(b *testing.B) {
	b.StopTimer()
	b.ReportAllocs()
	text := makeText(1 << 20)
	b.SetBytes(int64(len(text)))

	d, err := NewDeflater(Config{Level: DefaultCompression, Logger: quietLogger()})
	if err != nil {
		b.Fatal(err)
	}
	out := make([]byte, CompressBound(len(text)))
	nDst, _, _, err := d.Process(out, text, Finish)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportMetric(float64(len(text))/float64(nDst), "ratio")
	b.StartTimer()
	for i := 0; i < b.N; i++ {
		d.Reset()
		d.Process(out, text, Finish)
	}
}
