package waproto

import (
	"strconv"

	"github.com/zedaapi/waproto/binary"
)

// MessageKind tags the message variants; the values double as the
// query_next discriminator.
type MessageKind int

const (
	KindChat MessageKind = iota
	KindImage
	KindLocation
	KindSound
	KindVideo
)

// MessageHeader carries the fields common to every message variant.
type MessageHeader struct {
	From      string
	Timestamp uint64
	ID        string
	Author    string
}

// Message is the tagged union over the five chat payload variants.
// Values hold plain data only; they never reference the session.
type Message interface {
	Kind() MessageKind
	Header() MessageHeader
	node(server string) binary.Node
}

// ChatMessage is a plain text message.
type ChatMessage struct {
	MessageHeader
	Text string
}

// ImageMessage references an uploaded image with an inline preview.
type ImageMessage struct {
	MessageHeader
	URL      string
	Width    int
	Height   int
	Size     int
	Encoding string
	FileHash string
	MIMEType string
	Preview  []byte
}

// LocationMessage is a coordinate pair with a map preview.
type LocationMessage struct {
	MessageHeader
	Latitude  float64
	Longitude float64
	Preview   []byte
}

// SoundMessage references an uploaded audio clip.
type SoundMessage struct {
	MessageHeader
	URL      string
	FileHash string
	MIMEType string
}

// VideoMessage references an uploaded video.
type VideoMessage struct {
	MessageHeader
	URL      string
	FileHash string
	MIMEType string
}

func (m ChatMessage) Kind() MessageKind     { return KindChat }
func (m ImageMessage) Kind() MessageKind    { return KindImage }
func (m LocationMessage) Kind() MessageKind { return KindLocation }
func (m SoundMessage) Kind() MessageKind    { return KindSound }
func (m VideoMessage) Kind() MessageKind    { return KindVideo }

func (h MessageHeader) Header() MessageHeader { return h }

// envelope builds the outer message stanza; From doubles as the target
// when a message is serialized for sending.
func (h MessageHeader) envelope(server, typ string) binary.Node {
	to := h.From
	if username(to) == to {
		to += "@" + server
	}
	return binary.NewNode("message",
		"to", to,
		"type", typ,
		"id", h.ID,
		"t", strconv.FormatUint(h.Timestamp, 10),
	)
}

func (m ChatMessage) node(server string) binary.Node {
	n := m.envelope(server, "text")
	body := binary.NewNode("body")
	body.Data = []byte(m.Text)
	n.AddChild(body)
	return n
}

func (m ImageMessage) node(server string) binary.Node {
	n := m.envelope(server, "media")
	media := binary.NewNode("media",
		"type", "image",
		"url", m.URL,
		"encoding", m.Encoding,
		"filehash", m.FileHash,
		"mimetype", m.MIMEType,
		"width", strconv.Itoa(m.Width),
		"height", strconv.Itoa(m.Height),
		"size", strconv.Itoa(m.Size),
	)
	media.Data = m.Preview
	n.AddChild(media)
	return n
}

func (m LocationMessage) node(server string) binary.Node {
	n := m.envelope(server, "media")
	media := binary.NewNode("media",
		"type", "location",
		"latitude", strconv.FormatFloat(m.Latitude, 'f', -1, 64),
		"longitude", strconv.FormatFloat(m.Longitude, 'f', -1, 64),
	)
	media.Data = m.Preview
	n.AddChild(media)
	return n
}

func (m SoundMessage) node(server string) binary.Node {
	n := m.envelope(server, "media")
	n.AddChild(binary.NewNode("media",
		"type", "audio",
		"url", m.URL,
		"filehash", m.FileHash,
		"mimetype", m.MIMEType,
	))
	return n
}

func (m VideoMessage) node(server string) binary.Node {
	n := m.envelope(server, "media")
	n.AddChild(binary.NewNode("media",
		"type", "video",
		"url", m.URL,
		"filehash", m.FileHash,
		"mimetype", m.MIMEType,
	))
	return n
}
