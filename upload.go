package waproto

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/h2non/filetype"

	"github.com/zedaapi/waproto/binary"
)

// Upload side channel phases: idle, request queued on the SSL pipe,
// response being collected.
const (
	sslIdle = iota
	sslSending
	sslReceiving
)

const (
	uploadBoundary  = "zzXXzzYYzzXXzzQQ"
	uploadUserAgent = "WhatsApp/2.4.7 S40Version/14.26 Device/Nokia302"
	uploadPort      = 443
)

type uploadState int

const (
	uploadRequested uploadState = iota
	uploadURLAssigned
	uploadPosting
)

type pendingUpload struct {
	requestID string
	to        string
	from      string
	path      string
	hashB64   string
	mediaType string
	totalSize int
	uploadURL string
	host      string
	state     uploadState
	thumb     []byte
}

// SendImage starts an image upload to a recipient: hashes the file,
// asks the server for an upload slot and queues the transfer. The
// returned id matches UploadProgress/UploadComplete. The chat message
// itself is emitted once the upload (or its duplicate short-circuit)
// resolves. A non-nil thumbnail is used verbatim as the inline preview;
// nil renders one from the file.
func (c *Client) SendImage(to, path string, thumbnail []byte) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read upload file: %w", err)
	}
	if thumbnail == nil {
		thumbnail = makeThumbnail(data)
	}
	sum := sha256.Sum256(data)
	hash := base64.StdEncoding.EncodeToString(sum[:])

	id := c.nextIQID()
	n := binary.NewNode("iq", "id", id, "type", "set", "to", c.server, "xmlns", "w:m")
	n.AddChild(binary.NewNode("media",
		"type", "image",
		"hash", hash,
		"size", strconv.Itoa(len(data)),
	))
	c.sendTree(&n)

	c.uploads = append(c.uploads, &pendingUpload{
		requestID: id,
		to:        to,
		from:      c.userJID(c.phone),
		path:      path,
		hashB64:   hash,
		mediaType: "image",
		thumb:     thumbnail,
	})
	return id, nil
}

// UploadProgress reports the request id of the transfer in flight and
// an estimate of its progress: the file size minus every byte still
// pending on the side channel (request headers and multipart framing
// included), never below zero. It equals the file size once the host
// has taken the whole request.
func (c *Client) UploadProgress() (string, int, bool) {
	if c.sslStatus == sslIdle {
		return "", 0, false
	}
	for _, u := range c.uploads {
		if u.state == uploadPosting {
			sent := u.totalSize - c.sslPipe.PendingOut()
			if sent < 0 {
				sent = 0
			}
			return u.requestID, sent, true
		}
	}
	return "", 0, false
}

// UploadComplete reports whether the transfer with the given request id
// has left the queue.
func (c *Client) UploadComplete(requestID string) bool {
	for _, u := range c.uploads {
		if u.requestID == requestID {
			return false
		}
	}
	return true
}

// HasSSLConnection tells the host to open the side channel: the target
// host and port of the pending POST.
func (c *Client) HasSSLConnection() (string, int, bool) {
	if c.sslStatus != sslSending {
		return "", 0, false
	}
	for _, u := range c.uploads {
		if u.state == uploadPosting {
			return u.host, uploadPort, true
		}
	}
	return "", 0, false
}

// SendSSL copies pending side-channel bytes into buf without consuming.
func (c *Client) SendSSL(buf []byte) int {
	return c.sslPipe.Send(buf)
}

// SentSSL confirms n side-channel bytes were written.
func (c *Client) SentSSL(n int) {
	c.sslPipe.Sent(n)
}

// HasSSLDataToSend reports pending side-channel bytes.
func (c *Client) HasSSLDataToSend() bool {
	return c.sslPipe.HasDataToSend()
}

// ReceiveSSL feeds bytes read from the side channel.
func (c *Client) ReceiveSSL(data []byte) {
	c.sslPipe.Receive(data)
	c.processSSLIncoming()
}

// SSLShouldClose tells the host the side channel is done.
func (c *Client) SSLShouldClose() bool {
	return c.sslStatus == sslIdle
}

// SSLClosed notifies the engine the host closed the side channel.
func (c *Client) SSLClosed() {
	c.sslStatus = sslIdle
}

// uploadURLAssigned matches an upload-slot result to its request and
// arms the POST.
func (c *Client) uploadURLAssigned(iqID string, media *binary.Node) {
	url, ok := media.Attr("url")
	if !ok {
		return
	}
	for _, u := range c.uploads {
		if u.requestID != iqID {
			continue
		}
		u.uploadURL = url
		u.host = hostOfURL(url)
		u.state = uploadURLAssigned
		c.processUploadQueue()
		return
	}
}

// uploadDuplicate handles the server-side "file already exists" answer:
// no POST happens, the chat message is emitted straight from the
// duplicate attributes.
func (c *Client) uploadDuplicate(iqID string, dup *binary.Node) {
	for i, u := range c.uploads {
		if u.requestID != iqID {
			continue
		}
		c.uploads = append(c.uploads[:i], c.uploads[i+1:]...)
		c.emitUploadedImage(u, uploadResult{
			url:      dup.AttrDefault("url", ""),
			size:     parseInt(dup.AttrDefault("size", "")),
			width:    parseInt(dup.AttrDefault("width", "")),
			height:   parseInt(dup.AttrDefault("height", "")),
			fileHash: dup.AttrDefault("filehash", ""),
			mimeType: dup.AttrDefault("mimetype", ""),
		})
		return
	}
}

// processUploadQueue arms the next POST when the side channel is idle.
// Only one upload may be posting at a time.
func (c *Client) processUploadQueue() {
	if c.sslStatus != sslIdle {
		return
	}
	for i, u := range c.uploads {
		if u.state != uploadURLAssigned {
			continue
		}
		post, err := c.buildUploadPOST(u)
		if err != nil {
			c.log.Warn().Err(err).Str("path", u.path).Msg("dropping upload")
			c.uploads = append(c.uploads[:i], c.uploads[i+1:]...)
			c.processUploadQueue()
			return
		}
		u.state = uploadPosting
		c.sslPipe.Reset()
		c.sslPipe.Queue(post)
		c.sslStatus = sslSending
		return
	}
}

// buildUploadPOST renders the complete multipart request the host
// streams over its TLS connection.
func (c *Client) buildUploadPOST(u *pendingUpload) ([]byte, error) {
	data, err := os.ReadFile(u.path)
	if err != nil {
		return nil, fmt.Errorf("read upload file: %w", err)
	}
	mime := detectMIME(u.path, data)

	var body strings.Builder
	writePart := func(name, value string) {
		body.WriteString("--" + uploadBoundary + "\r\n")
		body.WriteString("Content-Disposition: form-data; name=\"" + name + "\"\r\n\r\n")
		body.WriteString(value + "\r\n")
	}
	writePart("to", u.to)
	writePart("from", u.from)
	body.WriteString("--" + uploadBoundary + "\r\n")
	body.WriteString("Content-Disposition: form-data; name=\"file\"; filename=\"" + filepath.Base(u.path) + "\"\r\n")
	body.WriteString("Content-Type: " + mime + "\r\n\r\n")
	body.Write(data)
	body.WriteString("\r\n--" + uploadBoundary + "--\r\n")

	var req strings.Builder
	req.WriteString("POST " + u.uploadURL + "\r\n")
	req.WriteString("Content-Type: multipart/form-data; boundary=" + uploadBoundary + "\r\n")
	req.WriteString("Host: " + u.host + "\r\n")
	req.WriteString("User-Agent: " + uploadUserAgent + "\r\n")
	req.WriteString("Content-Length: " + strconv.Itoa(body.Len()) + "\r\n\r\n")
	req.WriteString(body.String())

	u.totalSize = len(data)
	return []byte(req.String()), nil
}

// processSSLIncoming parses the HTTPS response once the full body is
// buffered, then re-arms the queue.
func (c *Client) processSSLIncoming() {
	if c.sslStatus == sslSending {
		c.sslStatus = sslReceiving
	}
	if c.sslStatus != sslReceiving {
		return
	}

	raw := string(c.sslPipe.Inbound())
	if line, _, ok := strings.Cut(raw, "\r\n"); ok {
		if !strings.Contains(line, "200") {
			c.abortUpload("upload rejected: " + line)
			return
		}
		if headers, content, ok := strings.Cut(raw, "\r\n\r\n"); ok {
			length, ok := contentLength(headers)
			if ok && length == len(content) {
				c.finishUpload([]byte(content))
				c.sslStatus = sslIdle
			}
		}
	}
	c.processUploadQueue()
}

func (c *Client) abortUpload(reason string) {
	for i, u := range c.uploads {
		if u.state == uploadPosting {
			c.log.Warn().Str("id", u.requestID).Msg(reason)
			c.uploads = append(c.uploads[:i], c.uploads[i+1:]...)
			break
		}
	}
	c.sslStatus = sslIdle
	c.processUploadQueue()
}

func contentLength(headers string) (int, bool) {
	for _, line := range strings.Split(headers, "\r\n") {
		key, value, ok := strings.Cut(line, ":")
		if ok && strings.EqualFold(strings.TrimSpace(key), "Content-Length") {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			return n, err == nil
		}
	}
	return 0, false
}

type uploadResult struct {
	url      string
	size     int
	width    int
	height   int
	fileHash string
	mimeType string
}

// finishUpload matches the response JSON to the posting upload by file
// hash and emits the chat message carrying the URL.
func (c *Client) finishUpload(body []byte) {
	res := uploadResult{
		url:      jsonField(body, "url"),
		size:     parseInt(jsonField(body, "size")),
		width:    parseInt(jsonField(body, "width")),
		height:   parseInt(jsonField(body, "height")),
		fileHash: jsonField(body, "filehash"),
		mimeType: jsonField(body, "mimetype"),
	}
	for i, u := range c.uploads {
		if u.state == uploadPosting && u.hashB64 == res.fileHash {
			c.uploads = append(c.uploads[:i], c.uploads[i+1:]...)
			c.emitUploadedImage(u, res)
			return
		}
	}
	c.log.Warn().Str("filehash", res.fileHash).Msg("upload response matches no pending transfer")
}

func (c *Client) emitUploadedImage(u *pendingUpload, res uploadResult) {
	msg := ImageMessage{
		MessageHeader: MessageHeader{
			From:      u.to,
			Timestamp: uint64(c.now().Unix()),
			ID:        c.MessageID(),
			Author:    c.nickname,
		},
		URL:      res.url,
		Width:    res.width,
		Height:   res.height,
		Size:     res.size,
		Encoding: "raw",
		FileHash: res.fileHash,
		MIMEType: res.mimeType,
		Preview:  u.thumb,
	}
	c.sendMessage(msg, c.server)
	uploadsCompleted.Inc()
}

// jsonField reads a top-level field as a string, tolerating numeric
// values.
func jsonField(data []byte, key string) string {
	if s, err := jsonparser.GetString(data, key); err == nil {
		return s
	}
	v, _, _, err := jsonparser.Get(data, key)
	if err != nil {
		return ""
	}
	return string(v)
}

// hostOfURL strips the scheme and path off an upload URL.
func hostOfURL(url string) string {
	host := url
	if _, rest, ok := strings.Cut(host, "://"); ok {
		host = rest
	}
	host, _, _ = strings.Cut(host, "/")
	return host
}

// detectMIME sniffs the content type from magic bytes, falling back to
// the file extension.
func detectMIME(path string, data []byte) string {
	head := data
	if len(head) > 300 {
		head = head[:300]
	}
	if t, err := filetype.Match(head); err == nil && t != filetype.Unknown {
		return t.MIME.Value
	}
	if t := filetype.GetType(strings.TrimPrefix(filepath.Ext(path), ".")); t != filetype.Unknown {
		return t.MIME.Value
	}
	return "application/octet-stream"
}
