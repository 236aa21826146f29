package binary

// The "start" stanza has no dictionary entry; it is the control byte
// 0x01 followed by its attributes.
const TagStart = "start"

// Marshal serializes a tree to its wire form, without framing.
func Marshal(n *Node) []byte {
	buf := &Buffer{}
	writeTree(buf, n)
	return buf.Bytes()
}

func writeTree(buf *Buffer, n *Node) {
	size := 1 + 2*n.attrCount()
	if len(n.Children) > 0 {
		size++
	}
	if len(n.Data) > 0 || n.ForceData {
		size++
	}
	buf.WriteListSize(size)

	if n.Tag == TagStart {
		buf.WriteInt(1, 1)
	} else {
		buf.WriteString(n.Tag)
	}
	for _, p := range n.AttrPairs() {
		buf.WriteString(p[0])
		buf.WriteString(p[1])
	}

	if len(n.Data) > 0 || n.ForceData {
		buf.WriteRawString(string(n.Data))
	}
	if len(n.Children) > 0 {
		buf.WriteListSize(len(n.Children))
		for i := range n.Children {
			writeTree(buf, &n.Children[i])
		}
	}
}
