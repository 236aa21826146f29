// Package keys derives the WAUTH-2 session keys and implements the
// per-direction RC4/HMAC stream ciphers applied to encrypted frames.
package keys

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyLen        = 20
	kdfIterations = 2
)

// SessionKeys are the four 20-byte keys derived from the stored
// credential and the server challenge nonce.
type SessionKeys struct {
	OutCipher []byte
	OutMAC    []byte
	InCipher  []byte
	InMAC     []byte
}

// DecodeSecret turns the stored base64 credential into the raw secret.
func DecodeSecret(password string) ([]byte, error) {
	secret, err := base64.StdEncoding.DecodeString(password)
	if err != nil {
		return nil, fmt.Errorf("decode credential: %w", err)
	}
	return secret, nil
}

// Derive runs the four PBKDF2-HMAC-SHA1 passes over the challenge
// nonce, one per key, each salt distinguished by a trailing byte 1-4.
func Derive(secret, nonce []byte) SessionKeys {
	derive := func(suffix byte) []byte {
		salt := make([]byte, 0, len(nonce)+1)
		salt = append(salt, nonce...)
		salt = append(salt, suffix)
		return pbkdf2.Key(secret, salt, kdfIterations, keyLen, sha1.New)
	}
	return SessionKeys{
		OutCipher: derive(1),
		OutMAC:    derive(2),
		InCipher:  derive(3),
		InMAC:     derive(4),
	}
}
