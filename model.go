package waproto

import "strings"

// Contact is created on first reference and never destroyed during the
// session. The key into the contact map is the jid local part.
type Contact struct {
	JID            string
	MyContact      bool
	Subscribed     bool
	Presence       string
	Typing         string
	LastSeen       uint64
	Status         string
	StatusTime     uint64
	PreviewPicture []byte
	FullPicture    []byte
}

// Group is built from the group-list query responses.
type Group struct {
	ID           string
	Subject      string
	Owner        string
	Participants []string
}

// AckKind classifies entries of the received-acks queue.
type AckKind int

const (
	AckServer AckKind = iota
	AckDelivered
	AckRead
)

// Ack correlates an outbound message id with its acknowledgement level.
type Ack struct {
	MessageID string
	Kind      AckKind
}

// AccountInfo mirrors the attributes of the auth success stanza.
type AccountInfo struct {
	Creation   uint64
	Expiration uint64
	Status     string
	Kind       string
}

// username strips the server part off a jid; bare usernames pass
// through unchanged.
func username(jid string) string {
	user, _, _ := strings.Cut(jid, "@")
	return user
}

// isGroupUser reports whether a jid local part names a group; group ids
// carry a dash between creator and timestamp.
func isGroupUser(user string) bool {
	return strings.Contains(user, "-")
}

// contact returns the entry for user, creating it on first reference.
func (c *Client) contact(user string) *Contact {
	user = username(user)
	if ct, ok := c.contacts[user]; ok {
		return ct
	}
	ct := &Contact{JID: user, Presence: "unavailable"}
	c.contacts[user] = ct
	return ct
}

// userJID expands a bare username with the chat server.
func (c *Client) userJID(user string) string {
	if strings.Contains(user, "@") {
		return user
	}
	return user + "@" + c.server
}

// Contacts returns a snapshot of the contact map keyed by local part.
func (c *Client) Contacts() map[string]Contact {
	out := make(map[string]Contact, len(c.contacts))
	for k, v := range c.contacts {
		out[k] = *v
	}
	return out
}

// Groups returns a snapshot of the known groups.
func (c *Client) Groups() map[string]Group {
	out := make(map[string]Group, len(c.groups))
	for k, v := range c.groups {
		out[k] = *v
	}
	return out
}

// UserStatus reports presence for a known contact: 1 available,
// 0 unavailable, -1 unknown user.
func (c *Client) UserStatus(who string) int {
	ct, ok := c.contacts[username(who)]
	if !ok {
		return -1
	}
	if ct.Presence == "available" {
		return 1
	}
	return 0
}

// UserStatusString returns the contact's status message.
func (c *Client) UserStatusString(who string) string {
	if ct, ok := c.contacts[username(who)]; ok {
		return ct.Status
	}
	return ""
}

// LastSeen returns the last-seen epoch for a contact and schedules a
// refresh query so the next call is current.
func (c *Client) LastSeen(who string) (uint64, bool) {
	c.getLast(c.userJID(who))
	ct, ok := c.contacts[username(who)]
	if !ok {
		return 0, false
	}
	return ct.LastSeen, true
}

// QueryStatusChange pops one presence-change notification.
func (c *Client) QueryStatusChange() (string, bool, bool) {
	for len(c.userChanges) > 0 {
		user := c.userChanges[0]
		c.userChanges = c.userChanges[1:]
		if ct, ok := c.contacts[user]; ok {
			return user, ct.Presence == "available", true
		}
	}
	return "", false, false
}

// QueryTyping pops one typing-state notification.
func (c *Client) QueryTyping() (string, bool, bool) {
	for len(c.userTyping) > 0 {
		user := c.userTyping[0]
		c.userTyping = c.userTyping[1:]
		if ct, ok := c.contacts[user]; ok {
			return user, ct.Typing == "composing", true
		}
	}
	return "", false, false
}

// QueryIcon pops one preview-picture notification.
func (c *Client) QueryIcon() (string, []byte, bool) {
	for len(c.userIcons) > 0 {
		user := c.userIcons[0]
		c.userIcons = c.userIcons[1:]
		if ct, ok := c.contacts[user]; ok {
			return user, ct.PreviewPicture, true
		}
	}
	return "", nil, false
}

// QueryAvatar returns the full-size picture for a contact, falling back
// to the preview while scheduling a full-size fetch.
func (c *Client) QueryAvatar(user string) ([]byte, bool) {
	ct, ok := c.contacts[username(user)]
	if !ok {
		return nil, false
	}
	if len(ct.FullPicture) == 0 {
		c.queryFullSize(c.userJID(user))
		return ct.PreviewPicture, true
	}
	return ct.FullPicture, true
}

// QueryReceivedMessage pops one outbound-ack correlation entry.
func (c *Client) QueryReceivedMessage() (string, AckKind, bool) {
	if len(c.receivedAcks) == 0 {
		return "", 0, false
	}
	ack := c.receivedAcks[0]
	c.receivedAcks = c.receivedAcks[1:]
	return ack.MessageID, ack.Kind, true
}
