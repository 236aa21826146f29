package binary

import "errors"

var (
	// ErrShortBuffer means the buffer does not hold enough bytes for the
	// requested read. At the frame boundary this is "wait for more data",
	// inside a complete frame it means the tree is malformed.
	ErrShortBuffer = errors.New("binary: not enough bytes in buffer")

	// ErrMalformedTree is returned when a complete payload does not
	// decode to a valid tree.
	ErrMalformedTree = errors.New("binary: malformed tree")

	// ErrEmptyTree marks the stream-control byte 0x02, a tree carrying
	// nothing. Callers skip it.
	ErrEmptyTree = errors.New("binary: empty tree")
)
