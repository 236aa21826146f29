package keys

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

const testPassword = "MDEyMzQ1Njc4OWFiY2RlZmdoaWo=" // "0123456789abcdefghij"

func testNonce(t *testing.T) []byte {
	t.Helper()
	nonce, err := hex.DecodeString("00112233445566778899aabbccddeeff00112233")
	require.NoError(t, err)
	return nonce
}

func TestDecodeSecret(t *testing.T) {
	secret, err := DecodeSecret(testPassword)
	require.NoError(t, err)
	require.Equal(t, []byte("0123456789abcdefghij"), secret)

	_, err = DecodeSecret("not base64 !!!")
	require.Error(t, err)
}

func TestDeriveKnownVectors(t *testing.T) {
	secret, err := DecodeSecret(testPassword)
	require.NoError(t, err)
	sk := Derive(secret, testNonce(t))

	require.Equal(t, "ac692c056683b30b32ba5d80aa2e031fec616a10", hex.EncodeToString(sk.OutCipher))
	require.Equal(t, "9ead9fd215ee0746519ff75d1a51265219020aac", hex.EncodeToString(sk.OutMAC))
	require.Equal(t, "e17de986e392df82dce03cf7e4dea9a1084f1c3e", hex.EncodeToString(sk.InCipher))
	require.Equal(t, "7d92291aa021c3254f6223509c7570edc79d3b02", hex.EncodeToString(sk.InMAC))
}

func TestDeriveDependsOnNonce(t *testing.T) {
	secret := []byte("0123456789abcdefghij")
	a := Derive(secret, []byte("nonce-a"))
	b := Derive(secret, []byte("nonce-b"))
	require.NotEqual(t, a.OutCipher, b.OutCipher)
	require.Equal(t, a.OutCipher, Derive(secret, []byte("nonce-a")).OutCipher)
}

func TestSealKnownVector(t *testing.T) {
	secret, _ := DecodeSecret(testPassword)
	sk := Derive(secret, testNonce(t))

	s, err := NewStreamCipher(sk.OutCipher, sk.OutMAC)
	require.NoError(t, err)

	sealed := s.Seal([]byte("hello whatsapp frame"), false)
	require.Equal(t,
		"2ecfb4e8b6cc52cab560fff86479a2ed2e9f3100"+"234f2e40",
		hex.EncodeToString(sealed))
	require.Equal(t, uint32(1), s.Seq())
}

func TestSealOpenMirrored(t *testing.T) {
	secret, _ := DecodeSecret(testPassword)
	sk := Derive(secret, testNonce(t))

	seal, err := NewStreamCipher(sk.OutCipher, sk.OutMAC)
	require.NoError(t, err)
	open, err := NewStreamCipher(sk.OutCipher, sk.OutMAC)
	require.NoError(t, err)

	for _, msg := range []string{"first frame", "second frame", "third"} {
		plain, err := open.Open(seal.Seal([]byte(msg), false), false)
		require.NoError(t, err)
		require.Equal(t, msg, string(plain))
	}
	require.Equal(t, seal.Seq(), open.Seq())
}

func TestSealOpenMACFirst(t *testing.T) {
	secret, _ := DecodeSecret(testPassword)
	sk := Derive(secret, testNonce(t))

	seal, _ := NewStreamCipher(sk.OutCipher, sk.OutMAC)
	open, _ := NewStreamCipher(sk.OutCipher, sk.OutMAC)

	plain, err := open.Open(seal.Seal([]byte("auth response blob"), true), true)
	require.NoError(t, err)
	require.Equal(t, "auth response blob", string(plain))
}

func TestOpenRejectsTamper(t *testing.T) {
	secret, _ := DecodeSecret(testPassword)
	sk := Derive(secret, testNonce(t))

	seal, _ := NewStreamCipher(sk.OutCipher, sk.OutMAC)
	open, _ := NewStreamCipher(sk.OutCipher, sk.OutMAC)

	sealed := seal.Seal([]byte("payload"), false)
	sealed[0] ^= 0x01
	_, err := open.Open(sealed, false)
	require.ErrorIs(t, err, ErrMACMismatch)

	_, err = open.Open([]byte{1, 2}, false)
	require.ErrorIs(t, err, ErrMACMismatch)
}

func TestOpenRejectsCounterSkew(t *testing.T) {
	secret, _ := DecodeSecret(testPassword)
	sk := Derive(secret, testNonce(t))

	seal, _ := NewStreamCipher(sk.OutCipher, sk.OutMAC)
	open, _ := NewStreamCipher(sk.OutCipher, sk.OutMAC)

	first := seal.Seal([]byte("frame one"), false)
	second := seal.Seal([]byte("frame two"), false)

	// Dropping a frame desynchronizes the counter and must not verify.
	_, err := open.Open(second, false)
	require.ErrorIs(t, err, ErrMACMismatch)

	_, err = open.Open(first, false)
	require.NoError(t, err)
}

func TestWrongKeyLength(t *testing.T) {
	_, err := NewStreamCipher(nil, nil)
	require.Error(t, err)
}
