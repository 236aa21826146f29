// Package socket frames trees onto byte pipes: the 3-byte header, the
// conditional per-frame encryption, and the host-driven
// has-data/send/sent/receive transfer contract.
package socket

// Pipe is one transport endpoint as the host sees it: bytes received
// from the wire accumulate on the inbound side, bytes queued by the
// engine drain from the outbound side. The main stream and the upload
// side channel are two independent Pipes with the same contract.
type Pipe struct {
	in  []byte
	out []byte
}

// Receive appends bytes read from the transport.
func (p *Pipe) Receive(data []byte) {
	p.in = append(p.in, data...)
}

// Send copies up to len(dst) pending outbound bytes into dst without
// consuming them, returning the count.
func (p *Pipe) Send(dst []byte) int {
	n := copy(dst, p.out)
	return n
}

// Sent consumes n outbound bytes after the transport confirmed them.
func (p *Pipe) Sent(n int) {
	if n > len(p.out) {
		n = len(p.out)
	}
	p.out = p.out[n:]
}

// HasDataToSend reports pending outbound bytes.
func (p *Pipe) HasDataToSend() bool {
	return len(p.out) != 0
}

// Queue appends raw bytes to the outbound side.
func (p *Pipe) Queue(data []byte) {
	p.out = append(p.out, data...)
}

// PendingOut reports the number of unconfirmed outbound bytes.
func (p *Pipe) PendingOut() int {
	return len(p.out)
}

// Inbound exposes the unparsed inbound bytes.
func (p *Pipe) Inbound() []byte {
	return p.in
}

// ConsumeInbound drops n parsed bytes from the inbound side.
func (p *Pipe) ConsumeInbound(n int) {
	if n > len(p.in) {
		n = len(p.in)
	}
	p.in = p.in[n:]
}

// Reset drops both directions, used when the side channel is reused for
// a new connection.
func (p *Pipe) Reset() {
	p.in = nil
	p.out = nil
}
