package binary

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zedaapi/waproto/binary/token"
)

func assertNodeEqual(t *testing.T, want, got *Node) {
	t.Helper()
	require.Equal(t, want.Tag, got.Tag)
	require.Equal(t, want.AttrPairs(), got.AttrPairs())
	require.Equal(t, string(want.Data), string(got.Data))
	require.Len(t, got.Children, len(want.Children))
	for i := range want.Children {
		assertNodeEqual(t, &want.Children[i], &got.Children[i])
	}
}

func TestBufferInts(t *testing.T) {
	buf := &Buffer{}
	buf.WriteInt(0x12, 1)
	buf.WriteInt(0x1234, 2)
	buf.WriteInt(0x123456, 3)

	v, err := buf.PeekInt(1, 0)
	require.NoError(t, err)
	require.Equal(t, 0x12, v)

	v, err = buf.PeekInt(2, 1)
	require.NoError(t, err)
	require.Equal(t, 0x1234, v)

	require.NoError(t, buf.Discard(3))
	v, err = buf.ReadInt(3)
	require.NoError(t, err)
	require.Equal(t, 0x123456, v)

	_, err = buf.ReadInt(1)
	require.ErrorIs(t, err, ErrShortBuffer)
}

func TestBufferListSize(t *testing.T) {
	for _, n := range []int{0, 1, 9, 255, 256, 4000} {
		buf := &Buffer{}
		buf.WriteListSize(n)
		got, err := buf.ReadListSize()
		require.NoError(t, err)
		require.Equal(t, n, got)
		require.Zero(t, buf.Len())
	}
}

func TestBufferStringForms(t *testing.T) {
	tests := []struct {
		name  string
		value string
		wire  int
	}{
		{"dictionary token", "message", 1},
		{"short literal", "PING-1", 2 + len("PING-1")},
		{"jid with token server", "34666777888@s.whatsapp.net", 1 + 2 + 11 + 1},
		{"long literal", strings.Repeat("x", 300), 4 + 300},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf := &Buffer{}
			buf.WriteString(tc.value)
			require.Equal(t, tc.wire, buf.Len())
			got, err := buf.ReadString()
			require.NoError(t, err)
			require.Equal(t, tc.value, got)
		})
	}
}

func TestBufferBadMarkers(t *testing.T) {
	_, err := NewBuffer([]byte{0xFB}).ReadString()
	require.ErrorIs(t, err, ErrMalformedTree)

	// Reserved dictionary slots never appear in well-formed streams.
	_, err = NewBuffer([]byte{0x03}).ReadString()
	require.ErrorIs(t, err, ErrMalformedTree)

	_, err = NewBuffer([]byte{0x42}).ReadListSize()
	require.ErrorIs(t, err, ErrMalformedTree)
}

func TestMarshalLeafUsesDictionary(t *testing.T) {
	n := NewNode("ack")
	data := Marshal(&n)

	idx, ok := token.Index("ack")
	require.True(t, ok)
	require.Equal(t, []byte{0xF8, 0x01, idx}, data)
}

func TestRoundTrip(t *testing.T) {
	body := NewNode("body")
	body.Data = []byte("hola caracola")

	media := NewNode("media",
		"type", "image",
		"url", "https://mms.example.net/file.jpg",
		"size", "12345",
	)
	media.Data = []byte{0xFF, 0xD8, 0x00, 0x01}

	msg := NewNode("message",
		"to", "34666777888@s.whatsapp.net",
		"type", "text",
		"id", "1700000000-1",
		"t", "1700000000",
	)
	msg.AddChild(body)
	msg.AddChild(media)

	tests := []struct {
		name string
		node Node
	}{
		{"leaf", NewNode("readreceipts")},
		{"attrs only", NewNode("receipt", "to", "1@s.whatsapp.net", "id", "m1", "type", "read", "t", "1")},
		{"data", body},
		{"nested", msg},
		{"non-dictionary tag", NewNode("frobnicate", "alpha", "beta")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Unmarshal(Marshal(&tc.node))
			require.NoError(t, err)
			assertNodeEqual(t, &tc.node, &got)
		})
	}
}

func TestRoundTripPreservesAttrOrder(t *testing.T) {
	n := NewNode("presence", "type", "subscribe", "to", "1@s.whatsapp.net")
	got, err := Unmarshal(Marshal(&n))
	require.NoError(t, err)
	require.Equal(t, [][2]string{
		{"type", "subscribe"},
		{"to", "1@s.whatsapp.net"},
	}, got.AttrPairs())
}

func TestForcedEmptyData(t *testing.T) {
	n := NewNode("auth", "mechanism", "WAUTH-2", "user", "34666777888")
	n.ForceData = true

	got, err := Unmarshal(Marshal(&n))
	require.NoError(t, err)
	require.True(t, got.ForceData)
	require.Empty(t, got.Data)

	// Without the marker the same node is a leaf.
	n.ForceData = false
	got, err = Unmarshal(Marshal(&n))
	require.NoError(t, err)
	require.False(t, got.ForceData)
}

func TestStartControlByte(t *testing.T) {
	n := NewNode(TagStart, "resource", "S40-2.4.7-443", "to", "s.whatsapp.net")
	data := Marshal(&n)
	// List header, then the control byte instead of a tag string.
	require.Equal(t, byte(0xF8), data[0])
	require.Equal(t, byte(0x01), data[2])

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assertNodeEqual(t, &n, &got)
}

func TestEmptyTreeControlByte(t *testing.T) {
	_, err := Unmarshal([]byte{0xF8, 0x01, 0x02})
	require.ErrorIs(t, err, ErrEmptyTree)
}

func TestUnmarshalMalformed(t *testing.T) {
	n := NewNode("message", "to", "1@s.whatsapp.net")
	data := Marshal(&n)
	_, err := Unmarshal(data[:len(data)-2])
	require.ErrorIs(t, err, ErrMalformedTree)
}
