package flate

// maxWriteBits is the most bits writeBits accepts in one call. The
// accumulator never holds more than 7 bits between calls.
const maxWriteBits = 56

// A bitWriter packs codes LSB-first, the DEFLATE bit order, appending
// completed bytes to dst.
type bitWriter struct {
	dst   []byte
	bits  uint64
	nbits uint
}

func (w *bitWriter) writeBits(nb uint, b uint64) {
	if nb > maxWriteBits {
		panic("flate: writeBits: too many bits")
	}
	w.bits |= (b & (1<<nb - 1)) << w.nbits
	w.nbits += nb
	for w.nbits >= 8 {
		w.dst = append(w.dst, byte(w.bits))
		w.bits >>= 8
		w.nbits -= 8
	}
}

func (w *bitWriter) writeSingleBit(bit bool) {
	if bit {
		w.writeBits(1, 1)
	} else {
		w.writeBits(1, 0)
	}
}

func (w *bitWriter) writeCode(c hcode) {
	w.writeBits(uint(c.len), uint64(c.code))
}

// jumpToByteBoundary pads the output with zero bits up to the next byte.
func (w *bitWriter) jumpToByteBoundary() {
	if w.nbits > 0 {
		w.dst = append(w.dst, byte(w.bits))
		w.bits = 0
		w.nbits = 0
	}
}

// writeBytes copies p to the output. The writer must be byte aligned.
func (w *bitWriter) writeBytes(p []byte) {
	if w.nbits != 0 {
		panic("flate: writeBytes with unfinished bits")
	}
	w.dst = append(w.dst, p...)
}

// pendingBits returns the number of bits waiting for a byte boundary.
func (w *bitWriter) pendingBits() uint {
	return w.nbits
}

func (w *bitWriter) reset() {
	w.dst = nil
	w.bits = 0
	w.nbits = 0
}

// maxReadBits is the most bits a single need or getBits call may ask for.
const maxReadBits = 32

// A bitReader pulls bytes from a borrowed input slice into a bit
// accumulator one byte at a time, only when a read needs them. Bits that
// have been pulled but not consumed stay in the accumulator across calls,
// so decoding can stop at any input byte and resume with the next slice.
type bitReader struct {
	in  []byte // borrowed for the duration of one Process call
	pos int

	b  uint64
	nb uint

	// offset counts the input bytes pulled since the start of the stream.
	offset int64
}

// setInput lends in to the reader.
func (r *bitReader) setInput(in []byte) {
	r.in = in
	r.pos = 0
}

// release drops the reference to the borrowed input and returns how many of
// its bytes were pulled.
func (r *bitReader) release() int {
	n := r.pos
	r.in = nil
	r.pos = 0
	return n
}

// need makes sure that at least n bits are in the accumulator. It reports
// false if the input ran out first.
func (r *bitReader) need(n uint) bool {
	if n > maxReadBits {
		panic("flate: need: too many bits")
	}
	for r.nb < n {
		if r.pos >= len(r.in) {
			return false
		}
		r.b |= uint64(r.in[r.pos]) << r.nb
		r.pos++
		r.nb += 8
		r.offset++
	}
	return true
}

// peek returns the low n bits of the accumulator. The caller must have
// called need(n).
func (r *bitReader) peek(n uint) uint32 {
	return uint32(r.b & (1<<n - 1))
}

func (r *bitReader) drop(n uint) {
	if n > r.nb {
		panic("flate: drop: not enough bits")
	}
	r.b >>= n
	r.nb -= n
}

// getBits reads n bits, or reports false without consuming anything if the
// input ran out.
func (r *bitReader) getBits(n uint) (uint32, bool) {
	if !r.need(n) {
		return 0, false
	}
	v := r.peek(n)
	r.drop(n)
	return v, true
}

// alignToByte discards the bits up to the next byte boundary.
func (r *bitReader) alignToByte() {
	r.drop(r.nb & 7)
}

// available returns the number of unread input bytes, counting whole bytes
// still in the accumulator.
func (r *bitReader) available() int {
	return len(r.in) - r.pos + int(r.nb/8)
}

// readBytes copies aligned bytes into p, first from the accumulator and then
// straight from the input. It returns the number of bytes copied.
func (r *bitReader) readBytes(p []byte) int {
	if r.nb&7 != 0 {
		panic("flate: readBytes with unaligned bits")
	}
	n := 0
	for n < len(p) && r.nb > 0 {
		p[n] = byte(r.b)
		r.b >>= 8
		r.nb -= 8
		n++
	}
	m := copy(p[n:], r.in[r.pos:])
	r.pos += m
	r.offset += int64(m)
	return n + m
}

func (r *bitReader) reset() {
	*r = bitReader{}
}
