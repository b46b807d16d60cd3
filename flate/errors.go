package flate

import "github.com/pkg/errors"

// Error kinds. Errors returned by this package wrap one of these, so callers
// classify them with errors.Is.
var (
	// ErrInvalidParameter reports a bad configuration value.
	ErrInvalidParameter = errors.New("flate: invalid parameter")

	// ErrState reports an operation invoked in the wrong lifecycle phase.
	ErrState = errors.New("flate: operation not valid in current state")

	// ErrInvalidTable reports a malformed Huffman table.
	ErrInvalidTable = errors.New("flate: invalid huffman table")

	// ErrCorruptData reports a stream that can not be decoded.
	ErrCorruptData = errors.New("flate: corrupt data")

	// ErrBuffer reports that no progress was possible with the buffers given.
	// Calling Process again with more input or output space recovers.
	ErrBuffer = errors.New("flate: no progress possible")
)

func invalidParameter(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidParameter, format, args...)
}

func stateError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrState, format, args...)
}

func corrupt(offset int64, format string, args ...interface{}) error {
	return errors.Wrapf(ErrCorruptData, "input offset %d: "+format, append([]interface{}{offset}, args...)...)
}

func invalidTable(offset int64, what string) error {
	return errors.Wrapf(ErrInvalidTable, "input offset %d: %s", offset, what)
}

// IsFatal reports whether err means the stream can not continue, as opposed
// to ErrBuffer backpressure.
func IsFatal(err error) bool {
	return err != nil && !errors.Is(err, ErrBuffer)
}
