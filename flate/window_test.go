package flate

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"
)

func TestWindow(t *testing.T) {
	const abc = "ABC\n"
	const fox = "The quick brown fox jumped over the lazy dog!\n"

	var got, want bytes.Buffer
	var w window
	w.init(1<<11, nil)

	var writeCopy = func(dist, length int) {
		for length > 0 {
			cnt := w.writeCopy(dist, length)
			length -= cnt
			if w.availSize() == 0 {
				got.Write(w.readTo(make([]byte, w.pending())))
			}
		}
	}
	var writeString = func(str string) {
		for len(str) > 0 {
			cnt := copy(w.writeSlice(), str)
			w.writeMark(cnt)
			str = str[cnt:]
			if w.availSize() == 0 {
				got.Write(w.readTo(make([]byte, w.pending())))
			}
		}
	}

	// Random literals and copies, checked against a plain slice.
	rng := rand.New(rand.NewSource(6))
	text := makeText(3000)
	for want.Len() < 20000 {
		if want.Len() == 0 || rng.Intn(3) == 0 {
			n := rng.Intn(20) + 1
			start := rng.Intn(len(text) - n)
			writeString(string(text[start : start+n]))
			want.Write(text[start : start+n])
			continue
		}
		dist := rng.Intn(w.histSize()) + 1
		length := rng.Intn(maxMatchLength-minMatchLength) + minMatchLength
		writeCopy(dist, length)
		for i := 0; i < length; i++ {
			b := want.Bytes()
			want.WriteByte(b[len(b)-dist])
		}
	}

	writeString(abc)
	writeCopy(len(abc), 59*len(abc))
	want.WriteString(strings.Repeat(abc, 60))

	writeString(fox)
	writeCopy(len(fox), 9*len(fox))
	want.WriteString(strings.Repeat(fox, 10))

	writeString(".")
	writeCopy(1, 9)
	want.WriteString(strings.Repeat(".", 10))

	writeCopy(w.histSize(), 10)
	want.Write(want.Bytes()[want.Len()-w.histSize():][:10])

	got.Write(w.readTo(make([]byte, w.pending())))
	if !bytes.Equal(got.Bytes(), want.Bytes()) {
		for i := range got.Bytes() {
			if i >= want.Len() || got.Bytes()[i] != want.Bytes()[i] {
				t.Fatalf("output differs at byte %d", i)
			}
		}
		t.Fatalf("output length mismatch: got %d, want %d", got.Len(), want.Len())
	}
}

func TestWindowDictionary(t *testing.T) {
	var w window
	dict := []byte(strings.Repeat("0123456789", 30))

	// A dictionary longer than the window keeps only its tail.
	w.init(256, dict)
	if w.histSize() != 256 || w.pending() != 0 {
		t.Fatalf("histSize %d, pending %d", w.histSize(), w.pending())
	}
	w.writeCopy(10, 10)
	if got := string(w.readTo(make([]byte, 10))); got != "0123456789" {
		t.Fatalf("copy from dictionary: got %q", got)
	}

	// A short dictionary is history but never output.
	w.init(256, []byte("hello"))
	if w.histSize() != 5 || w.pending() != 0 {
		t.Fatalf("histSize %d, pending %d", w.histSize(), w.pending())
	}
	w.writeByte(' ')
	w.writeCopy(6, 5)
	if got := string(w.readTo(make([]byte, 100))); got != " hello" {
		t.Fatalf("got %q", got)
	}
}

func TestWindowPartialRead(t *testing.T) {
	var w window
	w.init(16, nil)
	n := copy(w.writeSlice(), "abcdefghijklmnop")
	w.writeMark(n)
	if w.availSize() != 0 {
		t.Fatalf("availSize = %d", w.availSize())
	}
	// The buffer only wraps once everything has been read out.
	if got := string(w.readTo(make([]byte, 10))); got != "abcdefghij" {
		t.Fatalf("got %q", got)
	}
	if w.availSize() != 0 || w.pending() != 6 {
		t.Fatalf("availSize %d, pending %d", w.availSize(), w.pending())
	}
	if got := string(w.readTo(make([]byte, 10))); got != "klmnop" {
		t.Fatalf("got %q", got)
	}
	if w.availSize() != 16 || w.histSize() != 16 {
		t.Fatalf("after wrap: availSize %d, histSize %d", w.availSize(), w.histSize())
	}
	w.writeCopy(16, 3)
	if got := string(w.readTo(make([]byte, 10))); got != "abc" {
		t.Fatalf("copy across the wrap: got %q", got)
	}
}
