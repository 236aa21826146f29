// Package waproto is a state-driven engine for the legacy WhatsApp
// binary stream: WAUTH-2 authentication, per-frame RC4/HMAC encryption,
// the dictionary-compressed tree codec, and the conversational state a
// chat host needs (contacts, groups, receipts, media uploads).
//
// The engine owns no sockets and no goroutines. The host pumps bytes in
// and out through the callback surface (Receive/Send/Sent plus the SSL
// side channel for uploads) and pulls results through the query
// methods; every entry point must be called from a single goroutine.
package waproto

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/zedaapi/waproto/binary"
	"github.com/zedaapi/waproto/socket"
	"github.com/zedaapi/waproto/util/keys"
)

// SessionState tracks the handshake progress.
type SessionState int

const (
	StateNone SessionState = iota
	StateWaitingChallenge
	StateWaitingAuthOK
	StateConnected
	StateClosed
)

const (
	chatServer  = "s.whatsapp.net"
	groupServer = "g.us"

	// Stream preamble: "WA", protocol version 1.5.
	streamPreamble = "WA\x01\x05"
)

// Client is one WhatsApp session.
type Client struct {
	log zerolog.Logger

	phone    string
	password string
	nickname string

	server   string
	groupSrv string

	state     SessionState
	fs        *socket.FrameSocket
	inCipher  *keys.StreamCipher
	outCipher *keys.StreamCipher
	challenge []byte

	myPresence string
	myMessage  string
	sendRead   bool

	iqCounter  int
	msgCounter int
	now        func() time.Time

	account AccountInfo

	contacts map[string]*Contact
	groups   map[string]*Group
	gsync    groupSync

	recvMessages []Message
	recvDelayed  []Message
	receivedAcks []Ack
	userChanges  []string
	userTyping   []string
	userIcons    []string

	uploads   []*pendingUpload
	sslPipe   socket.Pipe
	sslStatus int
}

// NewClient builds a session from credentials. Nothing touches the wire
// until Login.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	c := &Client{
		log:        log,
		phone:      cfg.Phone,
		password:   strings.TrimSpace(cfg.Password),
		nickname:   cfg.Nickname,
		server:     chatServer,
		groupSrv:   groupServer,
		myPresence: "available",
		sendRead:   true,
		iqCounter:  1,
		msgCounter: 1,
		now:        time.Now,
		contacts:   make(map[string]*Contact),
		groups:     make(map[string]*Group),
	}
	c.fs = socket.NewFrameSocket(log.With().Str("component", "socket").Logger())
	return c
}

// Login queues the stream preamble and the WAUTH-2 auth request. The
// server answers with a challenge.
func (c *Client) Login(resource string) {
	if resource == "" {
		resource = defaultResource
	}
	c.fs.QueueRaw([]byte(streamPreamble))

	start := binary.NewNode(binary.TagStart, "resource", resource, "to", c.server)
	c.fs.SendTreePlain(&start)

	features := binary.NewNode("stream:features")
	features.AddChild(binary.NewNode("readreceipts"))
	c.fs.SendTreePlain(&features)

	auth := binary.NewNode("auth", "mechanism", "WAUTH-2", "user", c.phone)
	auth.ForceData = true
	c.fs.SendTreePlain(&auth)

	c.state = StateWaitingChallenge
	c.log.Debug().Str("resource", resource).Msg("login started")
}

// LoginStatus reports the session state.
func (c *Client) LoginStatus() SessionState {
	return c.state
}

// AccountInfo returns the account attributes from the auth success.
func (c *Client) AccountInfo() AccountInfo {
	return c.account
}

// Receive feeds bytes read from the main transport and runs the inbound
// dispatch over every complete frame. Stream and auth failures close
// the session and are returned.
func (c *Client) Receive(data []byte) error {
	c.fs.Pipe().Receive(data)
	for {
		node, ok, err := c.fs.ReadTree()
		if err != nil {
			c.state = StateClosed
			return fmt.Errorf("inbound stream: %w", err)
		}
		if !ok {
			return nil
		}
		if err := c.handleNode(&node); err != nil {
			return err
		}
	}
}

// Send copies pending outbound bytes into buf, not consuming them.
func (c *Client) Send(buf []byte) int {
	return c.fs.Pipe().Send(buf)
}

// Sent confirms n bytes were written to the transport.
func (c *Client) Sent(n int) {
	c.fs.Pipe().Sent(n)
}

// HasDataToSend reports pending outbound bytes on the main stream.
func (c *Client) HasDataToSend() bool {
	return c.fs.Pipe().HasDataToSend()
}

// MessageID mints a message id of the form "<epoch>-<counter>".
func (c *Client) MessageID() string {
	id := fmt.Sprintf("%d-%d", c.now().Unix(), c.msgCounter)
	c.msgCounter++
	return id
}

func (c *Client) nextIQID() string {
	id := strconv.Itoa(c.iqCounter)
	c.iqCounter++
	return id
}

// sendTree queues a stanza, honoring the handshake gate: while the
// challenge is outstanding only the auth response may leave, and a
// closed session emits nothing.
func (c *Client) sendTree(n *binary.Node) {
	if c.state == StateWaitingChallenge || c.state == StateClosed {
		c.log.Warn().Str("tag", n.Tag).Msg("dropping stanza in non-sending state")
		return
	}
	c.fs.SendTree(n)
}

// SendChat queues a text message to a user.
func (c *Client) SendChat(msgID, to, text string) {
	c.sendMessage(ChatMessage{
		MessageHeader: MessageHeader{From: to, Timestamp: uint64(c.now().Unix()), ID: msgID, Author: c.nickname},
		Text:          text,
	}, c.server)
}

// SendGroupChat queues a text message to a group.
func (c *Client) SendGroupChat(msgID, to, text string) {
	c.sendMessage(ChatMessage{
		MessageHeader: MessageHeader{From: to, Timestamp: uint64(c.now().Unix()), ID: msgID, Author: c.nickname},
		Text:          text,
	}, c.groupSrv)
}

func (c *Client) sendMessage(m Message, server string) {
	n := m.node(server)
	c.sendTree(&n)
}

// AddContacts merges users into the contact map and issues the
// subscription, preview-picture, last-seen and bulk status queries for
// anyone not yet subscribed.
func (c *Client) AddContacts(users []string) {
	for _, u := range users {
		ct := c.contact(u)
		ct.MyContact = true
		c.userChanges = append(c.userChanges, ct.JID)
	}

	subscribed := false
	for _, ct := range c.contacts {
		if ct.Subscribed {
			continue
		}
		ct.Subscribed = true
		jid := c.userJID(ct.JID)
		c.subscribePresence(jid)
		c.queryPreview(jid)
		c.getLast(jid)
		subscribed = true
	}
	if subscribed {
		c.queryStatuses()
	}
}

// NotifyTyping emits a chatstate update for the peer.
func (c *Client) NotifyTyping(who string, composing bool) {
	state := "paused"
	if composing {
		state = "composing"
	}
	n := binary.NewNode("chatstate", "to", c.userJID(who))
	n.AddChild(binary.NewNode(state))
	c.sendTree(&n)
}

// SetPresence updates own presence and status message, emitting only on
// change. The pseudo-presence "available-noread" reads as available on
// the wire but downgrades automatic receipts to delivery.
func (c *Client) SetPresence(presence, statusMessage string) {
	c.sendRead = presence == "available"
	if presence == "available-noread" {
		presence = "available"
	}

	if presence != c.myPresence {
		c.myPresence = presence
		c.notifyMyPresence()
	}
	if statusMessage != c.myMessage {
		c.myMessage = statusMessage
		c.notifyMyMessage()
	}
}

func (c *Client) notifyMyPresence() {
	n := binary.NewNode("presence", "name", c.nickname, "type", c.myPresence)
	c.sendTree(&n)
}

func (c *Client) notifyMyMessage() {
	x := binary.NewNode("x", "xmlns", "jabber:x:event")
	x.AddChild(binary.NewNode("server"))
	body := binary.NewNode("body")
	body.Data = []byte(c.myMessage)

	n := binary.NewNode("message",
		"to", "s.us",
		"type", "chat",
		"id", fmt.Sprintf("%d-%s", c.now().Unix(), c.nextIQID()),
	)
	n.AddChild(x)
	n.AddChild(body)
	c.sendTree(&n)
}

func (c *Client) sendInitial() {
	n := binary.NewNode("iq",
		"id", c.nextIQID(),
		"type", "get",
		"to", c.server,
		"xmlns", "urn:xmpp:whatsapp:push",
	)
	n.AddChild(binary.NewNode("config"))
	c.sendTree(&n)
}

func (c *Client) subscribePresence(jid string) {
	n := binary.NewNode("presence", "type", "subscribe", "to", jid)
	c.sendTree(&n)
}

func (c *Client) queryStatuses() {
	n := binary.NewNode("iq",
		"to", c.server,
		"type", "get",
		"id", c.nextIQID(),
		"xmlns", "status",
	)
	status := binary.NewNode("status")
	for user := range c.contacts {
		status.AddChild(binary.NewNode("user", "jid", c.userJID(user)))
	}
	n.AddChild(status)
	c.sendTree(&n)
}

func (c *Client) getLast(jid string) {
	n := binary.NewNode("iq",
		"id", c.nextIQID(),
		"type", "get",
		"to", jid,
		"xmlns", "jabber:iq:last",
	)
	n.AddChild(binary.NewNode("query"))
	c.sendTree(&n)
}

func (c *Client) queryPreview(jid string) {
	n := binary.NewNode("iq",
		"id", c.nextIQID(),
		"type", "get",
		"to", jid,
		"xmlns", "w:profile:picture",
	)
	n.AddChild(binary.NewNode("picture", "type", "preview"))
	c.sendTree(&n)
}

func (c *Client) queryFullSize(jid string) {
	n := binary.NewNode("iq",
		"id", c.nextIQID(),
		"type", "get",
		"to", jid,
		"xmlns", "w:profile:picture",
	)
	n.AddChild(binary.NewNode("picture"))
	c.sendTree(&n)
}

// SendAvatar uploads own profile picture, full size plus preview.
func (c *Client) SendAvatar(picture []byte) {
	full := binary.NewNode("picture")
	full.Data = picture
	preview := binary.NewNode("picture", "type", "preview")
	preview.Data = picture

	n := binary.NewNode("iq",
		"id", "set_photo_"+c.nextIQID(),
		"type", "set",
		"to", c.userJID(c.phone),
		"xmlns", "w:profile:picture",
	)
	n.AddChild(full)
	n.AddChild(preview)
	c.sendTree(&n)
}

// UpdateGroups restarts group discovery: the owning and participating
// lists in parallel, then one participant query per group as results
// come in. Group messages are held back until the sweep completes.
func (c *Client) UpdateGroups() {
	c.groups = make(map[string]*Group)

	owning := c.nextIQID()
	n := binary.NewNode("iq", "id", owning, "type", "get", "to", c.groupSrv, "xmlns", "w:g")
	n.AddChild(binary.NewNode("list", "type", "owning"))
	c.sendTree(&n)

	participating := c.nextIQID()
	n = binary.NewNode("iq", "id", participating, "type", "get", "to", c.groupSrv, "xmlns", "w:g")
	n.AddChild(binary.NewNode("list", "type", "participating"))
	c.sendTree(&n)

	c.gsync.begin(owning, participating)
}

// GroupsUpdated reports, once per completed sweep, that the group list
// is current.
func (c *Client) GroupsUpdated() bool {
	return c.gsync.consumeAnnouncement()
}

// AddGroup creates a group with the given subject.
func (c *Client) AddGroup(subject string) {
	n := binary.NewNode("iq", "id", c.nextIQID(), "type", "set", "to", c.groupSrv, "xmlns", "w:g")
	n.AddChild(binary.NewNode("group", "action", "create", "subject", subject))
	c.sendTree(&n)
}

// LeaveGroup leaves the group with the given id.
func (c *Client) LeaveGroup(group string) {
	leave := binary.NewNode("leave")
	leave.AddChild(binary.NewNode("group", "id", group+"@"+c.groupSrv))
	n := binary.NewNode("iq", "id", c.nextIQID(), "type", "set", "to", c.groupSrv, "xmlns", "w:g")
	n.AddChild(leave)
	c.sendTree(&n)
}

// ManageParticipant adds, removes, promotes or demotes a member.
func (c *Client) ManageParticipant(group, participant, action string) error {
	switch action {
	case "add", "remove", "promote", "demote":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	cmd := binary.NewNode(action)
	cmd.AddChild(binary.NewNode("participant", "jid", participant))
	n := binary.NewNode("iq", "id", c.nextIQID(), "type", "set", "to", group+"@"+c.groupSrv, "xmlns", "w:g")
	n.AddChild(cmd)
	c.sendTree(&n)
	return nil
}

// QueryNext peeks the kind of the earliest pending inbound message.
func (c *Client) QueryNext() (MessageKind, bool) {
	if len(c.recvMessages) == 0 {
		return 0, false
	}
	best := 0
	for i := 1; i < len(c.recvMessages); i++ {
		if c.recvMessages[i].Header().Timestamp < c.recvMessages[best].Header().Timestamp {
			best = i
		}
	}
	return c.recvMessages[best].Kind(), true
}

// QueryChat pops the next pending text message.
func (c *Client) QueryChat() (ChatMessage, bool) {
	return popMessage[ChatMessage](c)
}

// QueryImage pops the next pending image message.
func (c *Client) QueryImage() (ImageMessage, bool) {
	return popMessage[ImageMessage](c)
}

// QueryLocation pops the next pending location message.
func (c *Client) QueryLocation() (LocationMessage, bool) {
	return popMessage[LocationMessage](c)
}

// QuerySound pops the next pending audio message.
func (c *Client) QuerySound() (SoundMessage, bool) {
	return popMessage[SoundMessage](c)
}

// QueryVideo pops the next pending video message.
func (c *Client) QueryVideo() (VideoMessage, bool) {
	return popMessage[VideoMessage](c)
}

func popMessage[M Message](c *Client) (M, bool) {
	for i, m := range c.recvMessages {
		if typed, ok := m.(M); ok {
			c.recvMessages = append(c.recvMessages[:i], c.recvMessages[i+1:]...)
			return typed, true
		}
	}
	var zero M
	return zero, false
}
