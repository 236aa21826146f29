package socket

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	wabin "github.com/zedaapi/waproto/binary"
	"github.com/zedaapi/waproto/util/keys"
)

const (
	headerLen    = 3
	flagCrypted  = 0x80
	maxTreeBytes = 65535
)

// ErrStream covers everything that kills the session: malformed trees,
// authentication failures on frames, and clear-text frames after the
// ciphers are installed.
var ErrStream = errors.New("socket: stream error")

// FrameSocket speaks frames over a Pipe. Until ciphers are installed
// frames pass in the clear; afterwards every outbound tree is encrypted
// and inbound clear-text frames are rejected.
type FrameSocket struct {
	pipe Pipe
	in   *keys.StreamCipher
	out  *keys.StreamCipher
	log  zerolog.Logger
}

// NewFrameSocket builds a frame socket logging through log.
func NewFrameSocket(log zerolog.Logger) *FrameSocket {
	return &FrameSocket{log: log}
}

// Pipe exposes the underlying byte pipe for the host transfer calls.
func (fs *FrameSocket) Pipe() *Pipe {
	return &fs.pipe
}

// SetCiphers installs the per-direction stream ciphers. From here on
// SendTree encrypts and clear-text inbound frames are fatal.
func (fs *FrameSocket) SetCiphers(in, out *keys.StreamCipher) {
	fs.in = in
	fs.out = out
}

// Encrypted reports whether the ciphers are installed.
func (fs *FrameSocket) Encrypted() bool {
	return fs.out != nil
}

// OutSeq reports the outbound frame counter.
func (fs *FrameSocket) OutSeq() uint32 {
	if fs.out == nil {
		return 0
	}
	return fs.out.Seq()
}

// QueueRaw queues bytes verbatim, for the stream preamble.
func (fs *FrameSocket) QueueRaw(data []byte) {
	fs.pipe.Queue(data)
}

// SendTree frames and queues a tree, encrypting when the ciphers are
// installed. Trees too large for the 2-byte length field are dropped.
func (fs *FrameSocket) SendTree(n *wabin.Node) {
	fs.sendTree(n, fs.out != nil)
}

// SendTreePlain frames and queues a tree without encryption regardless
// of cipher state, for the handshake stanzas.
func (fs *FrameSocket) SendTreePlain(n *wabin.Node) {
	fs.sendTree(n, false)
}

func (fs *FrameSocket) sendTree(n *wabin.Node, encrypt bool) {
	payload := wabin.Marshal(n)
	if len(payload) > maxTreeBytes {
		fs.log.Warn().Str("tag", n.Tag).Int("size", len(payload)).
			Msg("dropping oversized outbound tree")
		return
	}
	var flag byte
	if encrypt {
		payload = fs.out.Seal(payload, false)
		flag = flagCrypted
	}

	header := [headerLen]byte{flag}
	binary.BigEndian.PutUint16(header[1:], uint16(len(payload)))
	fs.pipe.Queue(header[:])
	fs.pipe.Queue(payload)
	framesSent.Inc()
}

// ReadTree parses one complete inbound frame. ok=false with a nil error
// means a partial frame: nothing was consumed, wait for more bytes.
// Stream-control trees are skipped transparently.
func (fs *FrameSocket) ReadTree() (wabin.Node, bool, error) {
	for {
		n, ok, err := fs.readFrame()
		if err != nil || !ok {
			return wabin.Node{}, false, err
		}
		if n.Tag == "" {
			continue
		}
		return n, true, nil
	}
}

func (fs *FrameSocket) readFrame() (wabin.Node, bool, error) {
	in := fs.pipe.Inbound()
	if len(in) < headerLen {
		return wabin.Node{}, false, nil
	}
	flag := in[0]
	length := int(binary.BigEndian.Uint16(in[1:headerLen]))
	if length > len(in)-headerLen {
		return wabin.Node{}, false, nil
	}

	payload := in[headerLen : headerLen+length]
	fs.pipe.ConsumeInbound(headerLen + length)
	framesReceived.Inc()

	if (flag>>4)&0x8 != 0 {
		if fs.in == nil {
			fs.log.Warn().Msg("encrypted frame before cipher setup, skipping")
			return wabin.Node{}, true, nil
		}
		plain, err := fs.in.Open(payload, false)
		if err != nil {
			macFailures.Inc()
			fs.log.Warn().Err(err).Msg("inbound frame failed MAC verification")
			return wabin.Node{}, false, fmt.Errorf("%w: %w", ErrStream, err)
		}
		payload = plain
	} else if fs.in != nil {
		return wabin.Node{}, false, fmt.Errorf("%w: clear-text frame on encrypted stream", ErrStream)
	}

	n, err := wabin.Unmarshal(payload)
	if err == wabin.ErrEmptyTree {
		return wabin.Node{}, true, nil
	}
	if err != nil {
		return wabin.Node{}, false, fmt.Errorf("%w: %w", ErrStream, err)
	}
	return n, true, nil
}
