// Package token holds the static dictionary used by the binary tree
// codec. Small integers on the wire stand in for the protocol strings
// below; anything not in the table is sent as a length-prefixed literal.
package token

// Indexes 0-4 are reserved: 1 and 2 are stream control bytes and must
// never resolve to a token.
var singleTokens = []string{
	"", "", "", "", "",
	"account", "ack", "action", "active", "add", "after", "ib", "all",
	"allow", "apple", "audio", "auth", "author", "available", "bad-protocol",
	"bad-request", "before", "Bell.caf", "body", "Boing.caf", "cancel",
	"category", "challenge", "chat", "clean", "code", "composing", "config",
	"conflict", "contacts", "count", "create", "creation", "default",
	"delay", "delete", "delivered", "delivery", "dirty", "driver",
	"duplicate", "elapsed", "broadcast", "enable", "encoding", "duration",
	"error", "event", "expiration", "expired", "fail", "failure", "false",
	"favorites", "feature", "features", "field", "first", "free", "from",
	"g.us", "get", "Glass.caf", "google", "group", "groups", "g_notify",
	"g_sound", "Harp.caf", "http://etherx.jabber.org/streams",
	"http://jabber.org/protocol/chatstates", "id", "image", "img",
	"inactive", "index", "internal-server-error", "invalid-mechanism",
	"ip", "iq", "item", "item-not-found", "user-not-found",
	"jabber:iq:last", "jabber:iq:privacy", "jabber:x:delay",
	"jabber:x:event", "jid", "jid-malformed", "kind", "last", "latitude",
	"lc", "leave", "list", "location", "longitude", "max", "max_groups",
	"max_participants", "max_subject", "mechanism", "media", "message",
	"message_acks", "method", "microsoft", "missing", "modify", "mute",
	"name", "nokia", "none", "not-acceptable", "not-allowed",
	"not-authorized", "notification", "notify", "off", "offline", "order",
	"owner", "owning", "paid", "participant", "participants",
	"participating", "password", "paused", "picture", "pin", "ping",
	"platform", "pop_mean_time", "pop_plus_minus", "port", "presence",
	"preview", "probe", "proceed", "prop", "props", "p_o", "p_t", "query",
	"raw", "reason", "receipt", "receipt_acks", "received", "registration",
	"relay", "remote-server-timeout", "remove",
	"Replaced by new connection", "request", "required", "resource",
	"resource-constraint", "response", "result", "retry", "rim",
	"s.whatsapp.net", "s.us", "seconds", "server", "server-error",
	"service-unavailable", "set", "show", "sid", "silent", "sound",
	"stamp", "unsubscribe", "stat", "status", "stream:error",
	"stream:features", "subject", "subscribe", "success", "sync",
	"system-shutdown", "s_o", "s_t", "t", "text", "timeout",
	"TimePassing.caf", "timestamp", "to", "Tri-tone.caf", "true", "type",
	"unavailable", "uri", "url", "urn:ietf:params:xml:ns:xmpp-sasl",
	"urn:ietf:params:xml:ns:xmpp-stanzas",
	"urn:ietf:params:xml:ns:xmpp-streams", "urn:xmpp:delay",
	"urn:xmpp:ping", "urn:xmpp:receipts", "urn:xmpp:whatsapp",
	"urn:xmpp:whatsapp:account", "urn:xmpp:whatsapp:dirty",
	"urn:xmpp:whatsapp:mms", "urn:xmpp:whatsapp:push", "user", "username",
	"value", "vcard", "version", "video", "w", "w:g", "w:p", "w:p:r",
	"w:profile:picture", "wait", "x", "xml-not-well-formed", "xmlns",
	"xmlns:stream", "Xylophone.caf", "1", "WAUTH-2", "class", "w:m",
	"read", "hash", "size", "width", "height", "mimetype", "filehash",
}

var indexOfToken = buildIndex()

func buildIndex() map[string]byte {
	idx := make(map[string]byte, len(singleTokens))
	for i, t := range singleTokens {
		if t != "" {
			idx[t] = byte(i)
		}
	}
	return idx
}

// Count reports the size of the dictionary. Any wire byte below this
// value is a dictionary reference.
func Count() int {
	return len(singleTokens)
}

// Get resolves a dictionary index to its token. The empty string with
// ok=false is returned for reserved or out-of-range indexes.
func Get(index byte) (string, bool) {
	if int(index) >= len(singleTokens) || singleTokens[index] == "" {
		return "", false
	}
	return singleTokens[index], true
}

// Index returns the dictionary position of a token, if it has one.
func Index(tok string) (byte, bool) {
	i, ok := indexOfToken[tok]
	return i, ok
}
