package flate

// maxBlockOverhead is the most bytes a block adds to its contents when it is
// stored: a 3-bit header, up to 7 bits of padding and the 32-bit length
// pair. An empty stored flush marker or final block fits in it as well.
const maxBlockOverhead = 6

// CompressBound returns an upper bound on the compressed size of n bytes of
// input when the whole input is passed to a Deflater and then flushed once,
// with any flush mode. The bound holds for every level, strategy and
// format, with or without a dictionary.
func CompressBound(n int) int {
	blocks := n/blockSize + 1
	// One more block covers the flush marker or the empty final block.
	return n + maxBlockOverhead*(blocks+1) + zlibHeaderLen + zlibDictIDLen + zlibTrailer + 2
}
