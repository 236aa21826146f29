package keys

import (
	"crypto/hmac"
	"crypto/rc4"
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	rc4Drop = 768
	macLen  = 4
)

// ErrMACMismatch means a frame failed authentication. The session must
// treat this as fatal.
var ErrMACMismatch = errors.New("keys: frame MAC mismatch")

// StreamCipher is one direction of the encrypted stream: an RC4 state
// with the first 768 keystream bytes discarded, plus a truncated
// HMAC-SHA1 over (frame counter, ciphertext).
type StreamCipher struct {
	cipher *rc4.Cipher
	macKey []byte
	seq    uint32
}

// NewStreamCipher initializes one direction from its cipher and MAC keys.
func NewStreamCipher(cipherKey, macKey []byte) (*StreamCipher, error) {
	c, err := rc4.NewCipher(cipherKey)
	if err != nil {
		return nil, fmt.Errorf("init stream cipher: %w", err)
	}
	var drop [rc4Drop]byte
	c.XORKeyStream(drop[:], drop[:])
	return &StreamCipher{cipher: c, macKey: macKey}, nil
}

// Seq reports the current frame counter.
func (s *StreamCipher) Seq() uint32 {
	return s.seq
}

// Seal encrypts plain and attaches the 4-byte MAC, consuming one frame
// counter tick. The MAC leads the ciphertext when macFirst is set (the
// auth response blob), otherwise it trails (regular frames).
func (s *StreamCipher) Seal(plain []byte, macFirst bool) []byte {
	ct := make([]byte, len(plain))
	s.cipher.XORKeyStream(ct, plain)
	mac := s.mac(ct)
	s.seq++
	if macFirst {
		return append(mac, ct...)
	}
	return append(ct, mac...)
}

// Open verifies the MAC of payload and returns the decrypted content,
// consuming one frame counter tick. Verification failure leaves the
// counter untouched; the stream is dead at that point anyway.
func (s *StreamCipher) Open(payload []byte, macFirst bool) ([]byte, error) {
	if len(payload) < macLen {
		return nil, fmt.Errorf("%w: frame shorter than MAC", ErrMACMismatch)
	}
	var mac, ct []byte
	if macFirst {
		mac, ct = payload[:macLen], payload[macLen:]
	} else {
		mac, ct = payload[len(payload)-macLen:], payload[:len(payload)-macLen]
	}
	if !hmac.Equal(mac, s.mac(ct)) {
		return nil, ErrMACMismatch
	}
	plain := make([]byte, len(ct))
	s.cipher.XORKeyStream(plain, ct)
	s.seq++
	return plain, nil
}

func (s *StreamCipher) mac(ct []byte) []byte {
	h := hmac.New(sha1.New, s.macKey)
	var seq [4]byte
	binary.BigEndian.PutUint32(seq[:], s.seq)
	h.Write(seq[:])
	h.Write(ct)
	return h.Sum(nil)[:macLen]
}
