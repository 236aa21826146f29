// Package binary implements the length-prefixed, dictionary-compressed
// tree format spoken on the wire: an append/consume byte buffer with the
// protocol's typed reads, the Node tree type and its codec.
package binary

import (
	"fmt"
	"strings"

	"github.com/zedaapi/waproto/binary/token"
)

const (
	byteListEmpty = 0x00
	byteList8     = 0xF8
	byteList16    = 0xF9
	byteJID       = 0xFA
	byteBinary8   = 0xFC
	byteBinary24  = 0xFD
)

// Buffer is an append-only / consume-from-front byte sequence with the
// big-endian integer and token-aware string accessors the codec needs.
type Buffer struct {
	data []byte
}

// NewBuffer wraps b without copying.
func NewBuffer(b []byte) *Buffer {
	return &Buffer{data: b}
}

func (b *Buffer) Len() int      { return len(b.data) }
func (b *Buffer) Bytes() []byte { return b.data }

// Write appends p to the buffer.
func (b *Buffer) Write(p []byte) {
	b.data = append(b.data, p...)
}

// PeekInt reads a big-endian integer of the given byte width at offset
// without consuming it.
func (b *Buffer) PeekInt(width, offset int) (int, error) {
	if offset+width > len(b.data) {
		return 0, ErrShortBuffer
	}
	v := 0
	for i := range width {
		v = v<<8 | int(b.data[offset+i])
	}
	return v, nil
}

// ReadInt consumes and returns a big-endian integer of the given width.
func (b *Buffer) ReadInt(width int) (int, error) {
	v, err := b.PeekInt(width, 0)
	if err != nil {
		return 0, err
	}
	b.data = b.data[width:]
	return v, nil
}

// Consume removes and returns the first n bytes.
func (b *Buffer) Consume(n int) ([]byte, error) {
	if n > len(b.data) {
		return nil, ErrShortBuffer
	}
	out := b.data[:n]
	b.data = b.data[n:]
	return out, nil
}

// Discard drops the first n bytes.
func (b *Buffer) Discard(n int) error {
	_, err := b.Consume(n)
	return err
}

// WriteInt appends v as a big-endian integer of the given width.
func (b *Buffer) WriteInt(v, width int) {
	for i := width - 1; i >= 0; i-- {
		b.data = append(b.data, byte(v>>(8*i)))
	}
}

// ReadListSize consumes a list-size header: 0x00 for an empty list,
// 0xF8 with a one-byte size or 0xF9 with a two-byte size.
func (b *Buffer) ReadListSize() (int, error) {
	marker, err := b.ReadInt(1)
	if err != nil {
		return 0, err
	}
	switch marker {
	case byteListEmpty:
		return 0, nil
	case byteList8:
		return b.ReadInt(1)
	case byteList16:
		return b.ReadInt(2)
	}
	return 0, fmt.Errorf("%w: bad list marker 0x%02x", ErrMalformedTree, marker)
}

// WriteListSize appends a list-size header for n elements.
func (b *Buffer) WriteListSize(n int) {
	switch {
	case n == 0:
		b.WriteInt(byteListEmpty, 1)
	case n < 256:
		b.WriteInt(byteList8, 1)
		b.WriteInt(n, 1)
	default:
		b.WriteInt(byteList16, 1)
		b.WriteInt(n, 2)
	}
}

// IsListNext reports whether the next element is a child list rather
// than a string.
func (b *Buffer) IsListNext() bool {
	v, err := b.PeekInt(1, 0)
	if err != nil {
		return false
	}
	return v == byteListEmpty || v == byteList8 || v == byteList16
}

// ReadString consumes one string element: a dictionary reference, a
// compact jabber-id pair, or a length-prefixed literal.
func (b *Buffer) ReadString() (string, error) {
	marker, err := b.ReadInt(1)
	if err != nil {
		return "", err
	}
	switch {
	case marker < token.Count():
		tok, ok := token.Get(byte(marker))
		if !ok {
			return "", fmt.Errorf("%w: reserved token index 0x%02x", ErrMalformedTree, marker)
		}
		return tok, nil
	case marker == byteJID:
		user, err := b.ReadString()
		if err != nil {
			return "", err
		}
		server, err := b.ReadString()
		if err != nil {
			return "", err
		}
		if user == "" {
			return server, nil
		}
		return user + "@" + server, nil
	case marker == byteBinary8:
		n, err := b.ReadInt(1)
		if err != nil {
			return "", err
		}
		raw, err := b.Consume(n)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	case marker == byteBinary24:
		n, err := b.ReadInt(3)
		if err != nil {
			return "", err
		}
		raw, err := b.Consume(n)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
	return "", fmt.Errorf("%w: bad string marker 0x%02x", ErrMalformedTree, marker)
}

// WriteString appends s preferring a dictionary reference, then the
// compact jabber-id form, then a literal.
func (b *Buffer) WriteString(s string) {
	if i, ok := token.Index(s); ok {
		b.WriteInt(int(i), 1)
		return
	}
	if user, server, ok := strings.Cut(s, "@"); ok {
		b.WriteInt(byteJID, 1)
		b.WriteString(user)
		b.WriteString(server)
		return
	}
	b.WriteRawString(s)
}

// WriteRawString appends s as a length-prefixed literal, never a token.
func (b *Buffer) WriteRawString(s string) {
	if len(s) < 256 {
		b.WriteInt(byteBinary8, 1)
		b.WriteInt(len(s), 1)
	} else {
		b.WriteInt(byteBinary24, 1)
		b.WriteInt(len(s), 3)
	}
	b.data = append(b.data, s...)
}
