package waproto

import (
	"fmt"
	"strconv"

	"github.com/zedaapi/waproto/binary"
	"github.com/zedaapi/waproto/util/keys"
)

// handleNode dispatches one parsed inbound stanza.
func (c *Client) handleNode(n *binary.Node) error {
	c.log.Debug().Stringer("node", n).Msg("inbound stanza")

	switch n.Tag {
	case "challenge":
		return c.handleChallenge(n)
	case "success":
		c.handleSuccess(n)
	case "failure":
		if c.state == StateWaitingAuthOK {
			c.state = StateClosed
			return ErrAuthFailure
		}
		c.log.Warn().Stringer("node", n).Msg("server reported failure")
	case "notification":
		c.handleNotification(n)
	case "ack":
		c.receivedAcks = append(c.receivedAcks, Ack{
			MessageID: n.AttrDefault("id", ""),
			Kind:      AckServer,
		})
	case "receipt":
		c.handleReceipt(n)
	case "chatstate":
		c.handleChatstate(n)
	case "message":
		c.handleMessage(n)
	case "presence":
		if from, ok := n.Attr("from"); ok {
			c.notifyPresence(from, n.AttrDefault("type", "available"))
		}
	case "iq":
		c.handleIQ(n)
	}
	return nil
}

// handleChallenge derives the session keys from the challenge nonce,
// installs the stream ciphers and answers with the encrypted response
// blob. The response consumes the first outbound frame counter tick.
func (c *Client) handleChallenge(n *binary.Node) error {
	if c.state != StateWaitingChallenge {
		prev := c.state
		c.state = StateClosed
		return fmt.Errorf("%w: challenge in state %d", ErrUnexpectedStanza, prev)
	}

	secret, err := keys.DecodeSecret(c.password)
	if err != nil {
		c.state = StateClosed
		return fmt.Errorf("%w: %w", ErrAuthFailure, err)
	}
	sk := keys.Derive(secret, n.Data)

	if c.outCipher, err = keys.NewStreamCipher(sk.OutCipher, sk.OutMAC); err != nil {
		c.state = StateClosed
		return err
	}
	if c.inCipher, err = keys.NewStreamCipher(sk.InCipher, sk.InMAC); err != nil {
		c.state = StateClosed
		return err
	}
	c.fs.SetCiphers(c.inCipher, c.outCipher)

	c.challenge = n.Data
	c.state = StateWaitingAuthOK

	plain := c.phone + string(c.challenge) + strconv.FormatInt(c.now().Unix(), 10)
	resp := binary.NewNode("response")
	resp.Data = c.outCipher.Seal([]byte(plain), true)
	c.fs.SendTreePlain(&resp)
	return nil
}

func (c *Client) handleSuccess(n *binary.Node) {
	c.state = StateConnected
	c.account = AccountInfo{
		Status:     n.AttrDefault("status", ""),
		Kind:       n.AttrDefault("kind", ""),
		Creation:   parseUint(n.AttrDefault("creation", "")),
		Expiration: parseUint(n.AttrDefault("expiration", "")),
	}

	c.notifyMyPresence()
	c.sendInitial()
	c.UpdateGroups()
	c.log.Info().Str("kind", c.account.Kind).Msg("authenticated")
}

// ackReceipt answers an inbound stanza with a receipt. An empty typ is
// resolved by the read-receipt policy.
func (c *Client) ackReceipt(from, typ, id string) {
	if typ == "" {
		if c.sendRead {
			typ = "read"
		} else {
			typ = "delivery"
		}
	}
	n := binary.NewNode("receipt", "to", from, "id", id, "type", typ, "t", "1")
	c.sendTree(&n)
}

func (c *Client) handleNotification(n *binary.Node) {
	c.ackReceipt(
		n.AttrDefault("from", ""),
		n.AttrDefault("type", ""),
		n.AttrDefault("id", ""),
	)
	// Membership changes invalidate the cached group list.
	if n.AttrIs("type", "participant") || n.AttrIs("type", "owner") {
		c.UpdateGroups()
	}
}

func (c *Client) handleReceipt(n *binary.Node) {
	id := n.AttrDefault("id", "")
	typ := n.AttrDefault("type", "delivery")

	ack := binary.NewNode("ack", "class", "receipt", "type", typ, "id", id)
	c.sendTree(&ack)

	kind := AckDelivered
	if typ == "read" {
		kind = AckRead
	}
	c.receivedAcks = append(c.receivedAcks, Ack{MessageID: id, Kind: kind})
}

func (c *Client) handleChatstate(n *binary.Node) {
	from := n.AttrDefault("from", "")
	if n.HasChild("composing") {
		c.gotTyping(from, "composing")
	}
	if n.HasChild("paused") {
		c.gotTyping(from, "paused")
	}
}

func (c *Client) gotTyping(who, state string) {
	who = username(who)
	if ct, ok := c.contacts[who]; ok {
		ct.Typing = state
		c.userTyping = append(c.userTyping, who)
	}
}

func (c *Client) notifyPresence(from, status string) {
	if status == "" {
		status = "available"
	}
	ct := c.contact(from)
	ct.Presence = status
	c.userChanges = append(c.userChanges, ct.JID)
}

func (c *Client) handleMessage(n *binary.Node) {
	from, hasFrom := n.Attr("from")
	typ, hasType := n.Attr("type")

	if hasFrom && (typ == "text" || typ == "media") {
		hdr := MessageHeader{
			From:      from,
			Timestamp: parseUint(n.AttrDefault("t", "")),
			ID:        n.AttrDefault("id", ""),
			Author:    n.AttrDefault("participant", ""),
		}
		if body, ok := n.Child("body"); ok {
			c.receiveMessage(ChatMessage{MessageHeader: hdr, Text: string(body.Data)})
		}
		if media, ok := n.Child("media"); ok {
			c.receiveMedia(hdr, media)
		}
	} else if n.AttrIs("type", "notification") && hasFrom {
		c.UpdateGroups()
	}

	if hasType && hasFrom {
		c.ackReceipt(from, "", n.AttrDefault("id", ""))
	}
}

func (c *Client) receiveMedia(hdr MessageHeader, media *binary.Node) {
	switch media.AttrDefault("type", "") {
	case "image":
		c.receiveMessage(ImageMessage{
			MessageHeader: hdr,
			URL:           media.AttrDefault("url", ""),
			Width:         parseInt(media.AttrDefault("width", "")),
			Height:        parseInt(media.AttrDefault("height", "")),
			Size:          parseInt(media.AttrDefault("size", "")),
			Encoding:      media.AttrDefault("encoding", ""),
			FileHash:      media.AttrDefault("filehash", ""),
			MIMEType:      media.AttrDefault("mimetype", ""),
			Preview:       media.Data,
		})
	case "location":
		c.receiveMessage(LocationMessage{
			MessageHeader: hdr,
			Latitude:      parseFloat(media.AttrDefault("latitude", "")),
			Longitude:     parseFloat(media.AttrDefault("longitude", "")),
			Preview:       media.Data,
		})
	case "audio":
		c.receiveMessage(SoundMessage{
			MessageHeader: hdr,
			URL:           media.AttrDefault("url", ""),
			FileHash:      media.AttrDefault("filehash", ""),
			MIMEType:      media.AttrDefault("mimetype", ""),
		})
	case "video":
		c.receiveMessage(VideoMessage{
			MessageHeader: hdr,
			URL:           media.AttrDefault("url", ""),
			FileHash:      media.AttrDefault("filehash", ""),
			MIMEType:      media.AttrDefault("mimetype", ""),
		})
	}
}

// receiveMessage queues an inbound message for the host. Group traffic
// is held in the delayed queue until group discovery settles, so the
// host can resolve the group id of everything it pulls.
func (c *Client) receiveMessage(m Message) {
	messagesReceived.Inc()
	from := m.Header().From
	if isGroupUser(username(from)) && !c.gsync.ready() {
		c.recvDelayed = append(c.recvDelayed, m)
	} else {
		c.recvMessages = append(c.recvMessages, m)
	}

	c.contact(from)
	c.AddContacts(nil)
}

func (c *Client) handleIQ(n *binary.Node) {
	id := n.AttrDefault("id", "")
	c.gsync.iqAnswered(id)

	from, hasFrom := n.Attr("from")
	if n.AttrIs("type", "result") && hasFrom {
		if q, ok := n.Child("query"); ok {
			if secs, ok := q.Attr("seconds"); ok {
				c.contact(from).LastSeen = parseUint(secs)
			}
		}
		if p, ok := n.Child("picture"); ok {
			c.storePicture(from, p)
		}
		if m, ok := n.Child("media"); ok {
			c.uploadURLAssigned(id, m)
		}
		if d, ok := n.Child("duplicate"); ok {
			c.uploadDuplicate(id, d)
		}
		if s, ok := n.Child("status"); ok {
			for i := range s.Children {
				u := &s.Children[i]
				if u.Tag != "user" {
					continue
				}
				ct := c.contact(u.AttrDefault("jid", ""))
				ct.Status = unescapeJSON(string(u.Data))
			}
		}

		c.collectGroups(n, from)

		// Group picture results come back under a group child.
		if g, ok := n.Child("group"); ok {
			c.storePicture(from, g)
		}
	}

	if n.AttrIs("xmlns", "urn:xmpp:ping") && hasFrom && id != "" {
		pong := binary.NewNode("iq", "to", from, "id", id, "type", "result")
		c.sendTree(&pong)
	}

	if c.gsync.maybeFinish() {
		c.flushDelayed()
	}
}

func (c *Client) storePicture(from string, p *binary.Node) {
	switch p.AttrDefault("type", "") {
	case "preview":
		ct := c.contact(from)
		ct.PreviewPicture = p.Data
		c.userIcons = append(c.userIcons, ct.JID)
	case "image":
		c.contact(from).FullPicture = p.Data
	}
}

// collectGroups records group children of a list result and queries the
// participants of each new group; participant children are appended to
// their group, the first one closing out the pending list query.
func (c *Client) collectGroups(n *binary.Node, from string) {
	firstParticipant := true
	for i := range n.Children {
		ch := &n.Children[i]
		switch ch.Tag {
		case "group":
			gid := username(ch.AttrDefault("id", ""))
			if gid == "" {
				continue
			}
			if _, exists := c.groups[gid]; exists {
				continue
			}
			c.groups[gid] = &Group{
				ID:      gid,
				Subject: ch.AttrDefault("subject", ""),
				Owner:   username(ch.AttrDefault("owner", "")),
			}

			list := binary.NewNode("iq",
				"id", c.nextIQID(),
				"type", "get",
				"to", ch.AttrDefault("id", "")+"@"+c.groupSrv,
				"xmlns", "w:g",
			)
			list.AddChild(binary.NewNode("list"))
			c.gsync.pendingLists++
			c.sendTree(&list)
		case "participant":
			gid := username(from)
			if g, ok := c.groups[gid]; ok {
				g.Participants = append(g.Participants, username(ch.AttrDefault("jid", "")))
			}
			if firstParticipant {
				c.gsync.pendingLists--
				firstParticipant = false
			}
		}
	}
}

func (c *Client) flushDelayed() {
	if len(c.recvDelayed) == 0 {
		return
	}
	c.log.Debug().Int("count", len(c.recvDelayed)).Msg("releasing delayed group messages")
	c.recvMessages = append(c.recvMessages, c.recvDelayed...)
	c.recvDelayed = nil
}

// groupSync tracks the group-discovery sweep: two parallel list queries
// followed by one participant query per discovered group. Until the
// sweep reaches ready, inbound group messages stay in the delayed
// queue.
type groupSync struct {
	querying          bool
	readyState        bool
	owningID          string
	participatingID   string
	owningDone        bool
	participatingDone bool
	pendingLists      int
	announce          bool
}

// begin restarts the sweep. Only the in-flight query bookkeeping
// resets; readyState and a not-yet-consumed announcement survive, so a
// refresh triggered by a membership notification cannot swallow a
// pending "groups updated" the host has not polled yet.
func (g *groupSync) begin(owningID, participatingID string) {
	g.querying = true
	g.owningID = owningID
	g.participatingID = participatingID
	g.owningDone = false
	g.participatingDone = false
	g.pendingLists = 0
}

func (g *groupSync) iqAnswered(id string) {
	if !g.querying || id == "" {
		return
	}
	if id == g.owningID {
		g.owningDone = true
	}
	if id == g.participatingID {
		g.participatingDone = true
	}
}

// maybeFinish transitions to ready once both list queries are answered
// and no participant query is outstanding. It reports the transition so
// the caller can run the flush entry action exactly once.
func (g *groupSync) maybeFinish() bool {
	if g.querying && g.owningDone && g.participatingDone && g.pendingLists <= 0 {
		g.querying = false
		g.readyState = true
		g.announce = true
		return true
	}
	return false
}

func (g *groupSync) ready() bool {
	return g.readyState && !g.querying
}

func (g *groupSync) consumeAnnouncement() bool {
	if g.readyState && g.announce {
		g.announce = false
		return true
	}
	return false
}

func parseUint(s string) uint64 {
	v, _ := strconv.ParseUint(s, 10, 64)
	return v
}

func parseInt(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
