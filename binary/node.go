package binary

import (
	"fmt"
	"strings"

	"github.com/elliotchance/orderedmap/v3"
)

// Node is the atomic protocol unit: a tag, insertion-ordered attributes,
// and either raw data or child nodes. ForceData makes an empty data
// section explicit on the wire (<tag></tag> instead of <tag/>).
type Node struct {
	Tag       string
	Attrs     *orderedmap.OrderedMap[string, string]
	Children  []Node
	Data      []byte
	ForceData bool
}

// NewNode builds a node from alternating attribute key/value pairs.
// A trailing unpaired key is ignored.
func NewNode(tag string, pairs ...string) Node {
	n := Node{Tag: tag}
	for i := 0; i+1 < len(pairs); i += 2 {
		n.SetAttr(pairs[i], pairs[i+1])
	}
	return n
}

// SetAttr sets an attribute, preserving first-insertion order.
func (n *Node) SetAttr(key, value string) {
	if n.Attrs == nil {
		n.Attrs = orderedmap.NewOrderedMap[string, string]()
	}
	n.Attrs.Set(key, value)
}

// Attr looks up an attribute value.
func (n *Node) Attr(key string) (string, bool) {
	if n.Attrs == nil {
		return "", false
	}
	return n.Attrs.Get(key)
}

// AttrDefault returns the attribute value, or def when absent or empty.
func (n *Node) AttrDefault(key, def string) string {
	if v, ok := n.Attr(key); ok && v != "" {
		return v
	}
	return def
}

// HasAttr reports whether the attribute is present.
func (n *Node) HasAttr(key string) bool {
	_, ok := n.Attr(key)
	return ok
}

// AttrIs reports whether the attribute is present with the given value.
func (n *Node) AttrIs(key, value string) bool {
	v, ok := n.Attr(key)
	return ok && v == value
}

func (n *Node) attrCount() int {
	if n.Attrs == nil {
		return 0
	}
	return n.Attrs.Len()
}

// AttrPairs returns the attributes in insertion order.
func (n *Node) AttrPairs() [][2]string {
	if n.Attrs == nil {
		return nil
	}
	pairs := make([][2]string, 0, n.Attrs.Len())
	for key, value := range n.Attrs.AllFromFront() {
		pairs = append(pairs, [2]string{key, value})
	}
	return pairs
}

// AddChild appends a child node.
func (n *Node) AddChild(c Node) {
	n.Children = append(n.Children, c)
}

// Child returns the first child with the given tag.
func (n *Node) Child(tag string) (*Node, bool) {
	for i := range n.Children {
		if n.Children[i].Tag == tag {
			return &n.Children[i], true
		}
	}
	return nil, false
}

// HasChild reports whether a child with the given tag exists.
func (n *Node) HasChild(tag string) bool {
	_, ok := n.Child(tag)
	return ok
}

// String renders the node as XML-ish text for logs.
func (n *Node) String() string {
	var sb strings.Builder
	sb.WriteByte('<')
	sb.WriteString(n.Tag)
	for _, p := range n.AttrPairs() {
		fmt.Fprintf(&sb, " %s=%q", p[0], p[1])
	}
	if len(n.Children) == 0 && len(n.Data) == 0 && !n.ForceData {
		sb.WriteString("/>")
		return sb.String()
	}
	sb.WriteByte('>')
	if len(n.Data) > 0 {
		fmt.Fprintf(&sb, "[%d bytes]", len(n.Data))
	}
	for i := range n.Children {
		sb.WriteString(n.Children[i].String())
	}
	fmt.Fprintf(&sb, "</%s>", n.Tag)
	return sb.String()
}
