package waproto

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zedaapi/waproto/binary"
)

// uploadFixture writes a real JPEG to disk and returns its path and
// expected hash.
func uploadFixture(t *testing.T) (string, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pic.jpg")
	require.NoError(t, os.WriteFile(path, defaultThumbnail, 0o600))
	sum := sha256.Sum256(defaultThumbnail)
	return path, base64.StdEncoding.EncodeToString(sum[:])
}

func startUpload(t *testing.T, h *harness) (string, string) {
	t.Helper()
	path, hash := uploadFixture(t)

	id, err := h.c.SendImage("777@s.whatsapp.net", path, nil)
	require.NoError(t, err)

	req := findNode(t, h.drainNodes(), "iq")
	require.True(t, req.AttrIs("id", id))
	require.True(t, req.AttrIs("type", "set"))
	require.True(t, req.AttrIs("xmlns", "w:m"))
	media, ok := req.Child("media")
	require.True(t, ok)
	require.True(t, media.AttrIs("type", "image"))
	require.True(t, media.AttrIs("hash", hash))
	require.True(t, media.AttrIs("size", fmt.Sprint(len(defaultThumbnail))))

	return id, hash
}

func drainSSL(h *harness) []byte {
	buf := make([]byte, 1<<20)
	n := h.c.SendSSL(buf)
	h.c.SentSSL(n)
	return buf[:n]
}

func TestUploadDuplicateShortCircuit(t *testing.T) {
	h := newHarness(t)
	h.handshake()
	h.drainNodes()

	id, hash := startUpload(t, h)

	dup := binary.NewNode("iq", "type", "result", "from", "s.whatsapp.net", "id", id)
	dup.AddChild(binary.NewNode("duplicate",
		"url", "https://mms.example.net/existing.jpg",
		"size", "313",
		"type", "image",
		"mimetype", "image/jpeg",
		"filehash", hash,
		"width", "100",
		"height", "100",
	))
	h.injectEncrypted(&dup)

	// No POST happens.
	_, _, open := h.c.HasSSLConnection()
	require.False(t, open)
	require.False(t, h.c.HasSSLDataToSend())
	require.True(t, h.c.UploadComplete(id))

	msg := findNode(t, h.drainNodes(), "message")
	require.True(t, msg.AttrIs("to", "777@s.whatsapp.net"))
	require.True(t, msg.AttrIs("type", "media"))
	media, ok := msg.Child("media")
	require.True(t, ok)
	require.True(t, media.AttrIs("url", "https://mms.example.net/existing.jpg"))
	require.True(t, media.AttrIs("filehash", hash))
	require.True(t, media.AttrIs("width", "100"))
	require.NotEmpty(t, media.Data)
}

func TestUploadPostFlow(t *testing.T) {
	h := newHarness(t)
	h.handshake()
	h.drainNodes()

	id, hash := startUpload(t, h)

	slot := binary.NewNode("iq", "type", "result", "from", "s.whatsapp.net", "id", id)
	slot.AddChild(binary.NewNode("media", "url", "https://mms.example.net/upload/abc"))
	h.injectEncrypted(&slot)

	host, port, open := h.c.HasSSLConnection()
	require.True(t, open)
	require.Equal(t, "mms.example.net", host)
	require.Equal(t, 443, port)
	require.False(t, h.c.SSLShouldClose())

	post := string(drainSSL(h))
	require.True(t, strings.HasPrefix(post, "POST https://mms.example.net/upload/abc\r\n"))
	require.Contains(t, post, "Host: mms.example.net\r\n")
	require.Contains(t, post, "User-Agent: WhatsApp/2.4.7 S40Version/14.26 Device/Nokia302\r\n")
	require.Contains(t, post, "multipart/form-data; boundary=zzXXzzYYzzXXzzQQ")
	require.Contains(t, post, "name=\"to\"\r\n\r\n777@s.whatsapp.net\r\n")
	require.Contains(t, post, "name=\"from\"\r\n\r\n"+testPhone+"@s.whatsapp.net\r\n")
	require.Contains(t, post, "name=\"file\"; filename=\"pic.jpg\"\r\n")
	require.Contains(t, post, "Content-Type: image/jpeg\r\n")

	rid, sent, inFlight := h.c.UploadProgress()
	require.True(t, inFlight)
	require.Equal(t, id, rid)
	require.Equal(t, len(defaultThumbnail), sent)

	body := fmt.Sprintf(`{"url":"https://mms.example.net/f.jpg","type":"image","size":"313","width":32,"height":32,"filehash":%q,"mimetype":"image/jpeg"}`, hash)
	resp := fmt.Sprintf("HTTP/1.1 200 OK\r\nServer: nginx\r\nContent-Length: %d\r\n\r\n%s", len(body), body)

	// Feed the response in two chunks; nothing resolves until the body
	// is complete.
	half := len(resp) / 2
	h.c.ReceiveSSL([]byte(resp[:half]))
	require.False(t, h.c.UploadComplete(id))
	h.c.ReceiveSSL([]byte(resp[half:]))

	require.True(t, h.c.UploadComplete(id))
	require.True(t, h.c.SSLShouldClose())

	msg := findNode(t, h.drainNodes(), "message")
	media, ok := msg.Child("media")
	require.True(t, ok)
	require.True(t, media.AttrIs("url", "https://mms.example.net/f.jpg"))
	require.True(t, media.AttrIs("size", "313"))
	require.True(t, media.AttrIs("width", "32"))
	require.True(t, media.AttrIs("mimetype", "image/jpeg"))
}

func TestUploadRejected(t *testing.T) {
	h := newHarness(t)
	h.handshake()
	h.drainNodes()

	id, _ := startUpload(t, h)

	slot := binary.NewNode("iq", "type", "result", "from", "s.whatsapp.net", "id", id)
	slot.AddChild(binary.NewNode("media", "url", "https://mms.example.net/upload/abc"))
	h.injectEncrypted(&slot)
	drainSSL(h)

	h.c.ReceiveSSL([]byte("HTTP/1.1 403 Forbidden\r\nContent-Length: 0\r\n\r\n"))

	require.True(t, h.c.UploadComplete(id))
	require.True(t, h.c.SSLShouldClose())
	require.Empty(t, h.drainNodes())
}

func TestOneUploadPostingAtATime(t *testing.T) {
	h := newHarness(t)
	h.handshake()
	h.drainNodes()

	first, _ := startUpload(t, h)

	path2 := filepath.Join(t.TempDir(), "other.jpg")
	require.NoError(t, os.WriteFile(path2, append([]byte(nil), defaultThumbnail...), 0o600))
	second, err := h.c.SendImage("888@s.whatsapp.net", path2, nil)
	require.NoError(t, err)
	h.drainNodes()

	for _, id := range []string{first, second} {
		slot := binary.NewNode("iq", "type", "result", "from", "s.whatsapp.net", "id", id)
		slot.AddChild(binary.NewNode("media", "url", "https://mms.example.net/upload/"+id))
		h.injectEncrypted(&slot)
	}

	// Only the first transfer is armed.
	rid, _, inFlight := h.c.UploadProgress()
	require.True(t, inFlight)
	require.Equal(t, first, rid)
	require.False(t, h.c.UploadComplete(second))
}

func TestDetectMIME(t *testing.T) {
	tests := []struct {
		name string
		path string
		data []byte
		want string
	}{
		{"magic bytes win", "x.bin", defaultThumbnail, "image/jpeg"},
		{"extension fallback", "x.png", []byte("not an image"), "image/png"},
		{"unknown", "x.weird", []byte("???"), "application/octet-stream"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, detectMIME(tc.path, tc.data))
		})
	}
}

func TestHostOfURL(t *testing.T) {
	require.Equal(t, "mms.example.net", hostOfURL("https://mms.example.net/path/to/file"))
	require.Equal(t, "mms.example.net", hostOfURL("mms.example.net/path"))
	require.Equal(t, "mms.example.net", hostOfURL("https://mms.example.net"))
}

func TestSendImageThumbnailOverride(t *testing.T) {
	h := newHarness(t)
	h.handshake()
	h.drainNodes()

	path, hash := uploadFixture(t)
	custom := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	id, err := h.c.SendImage("777@s.whatsapp.net", path, custom)
	require.NoError(t, err)
	h.drainNodes()

	dup := binary.NewNode("iq", "type", "result", "from", "s.whatsapp.net", "id", id)
	dup.AddChild(binary.NewNode("duplicate",
		"url", "https://mms.example.net/existing.jpg",
		"size", "313",
		"type", "image",
		"mimetype", "image/jpeg",
		"filehash", hash,
		"width", "100",
		"height", "100",
	))
	h.injectEncrypted(&dup)

	msg := findNode(t, h.drainNodes(), "message")
	media, ok := msg.Child("media")
	require.True(t, ok)
	require.Equal(t, custom, media.Data)
}

func TestSendImageMissingFile(t *testing.T) {
	h := newHarness(t)
	_, err := h.c.SendImage("777@s.whatsapp.net", filepath.Join(t.TempDir(), "nope.jpg"), nil)
	require.Error(t, err)
}
