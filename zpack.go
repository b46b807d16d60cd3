// Package zpack is a modular system for DEFLATE compression.
//
// Like most LZ77 compressors, a DEFLATE encoder has two main parts:
//   - Something that looks for repeated sequences of bytes
//   - An encoder for the compressed data format (an entropy coder)
//
// This package defines the interfaces and the intermediate representation
// that connect the two, along with the match finders used by the flate
// package at the different compression levels and strategies.
package zpack

// A Match is the basic unit of LZ77 compression.
type Match struct {
	Unmatched int // the number of unmatched bytes since the previous match
	Length    int // the number of bytes in the matched string; it may be 0 at the end of the input
	Distance  int // how far back in the stream to copy from
}

// A MatchFinder performs the LZ77 stage of compression, looking for matches.
type MatchFinder interface {
	// FindMatches looks for matches in src, appends them to dst, and returns dst.
	// Matches may refer back into data passed to earlier calls.
	FindMatches(dst []Match, src []byte) []Match

	// Reset clears any internal state, preparing the MatchFinder to be used with
	// a new stream. No match found after Reset refers to data from before it.
	Reset()
}

// A Primer is a MatchFinder that can be seeded with history that precedes
// the stream, such as a preset dictionary.
type Primer interface {
	// Prime replaces the match history with history. The bytes are available
	// as match sources but are never reported as unmatched data.
	Prime(history []byte)
}

// An Encoder encodes the data in its final format.
type Encoder interface {
	// Header appends the appropriate stream header to dst.
	Header(dst []byte) []byte

	// Encode appends the encoded format of src to dst, using the match
	// information from matches.
	Encode(dst []byte, src []byte, matches []Match, lastBlock bool) []byte

	// Reset clears any internal state, preparing the Encoder to be used with
	// a new stream.
	Reset()
}

// A Flusher is an Encoder that can bring its output to a byte boundary in the
// middle of a stream, so that everything encoded so far can be decoded.
type Flusher interface {
	// Flush appends the flush marker, and any bits still buffered, to dst.
	Flush(dst []byte) []byte
}
