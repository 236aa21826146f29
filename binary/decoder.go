package binary

import "fmt"

// Unmarshal decodes one tree from a complete frame payload. Any read
// past the end of the payload means the tree is malformed, not short:
// the frame layer only hands over full frames.
func Unmarshal(payload []byte) (Node, error) {
	buf := NewBuffer(payload)
	n, err := readTree(buf)
	if err != nil && err != ErrEmptyTree {
		return Node{}, fmt.Errorf("%w: %v", ErrMalformedTree, err)
	}
	return n, err
}

func readTree(buf *Buffer) (Node, error) {
	size, err := buf.ReadListSize()
	if err != nil {
		return Node{}, err
	}

	marker, err := buf.PeekInt(1, 0)
	if err != nil {
		return Node{}, err
	}
	switch marker {
	case 1:
		// Stream open: attributes only, no regular tag on the wire.
		buf.Discard(1)
		n := Node{Tag: TagStart}
		if err := readAttributes(buf, &n, size); err != nil {
			return Node{}, err
		}
		return n, nil
	case 2:
		buf.Discard(1)
		return Node{}, ErrEmptyTree
	}

	var n Node
	if n.Tag, err = buf.ReadString(); err != nil {
		return Node{}, err
	}
	if err := readAttributes(buf, &n, size); err != nil {
		return Node{}, err
	}

	// An odd list size means tag plus attribute pairs only.
	if size&1 == 1 {
		return n, nil
	}

	if buf.IsListNext() {
		count, err := buf.ReadListSize()
		if err != nil {
			return Node{}, err
		}
		n.Children = make([]Node, 0, count)
		for range count {
			child, err := readTree(buf)
			if err == ErrEmptyTree {
				continue
			}
			if err != nil {
				return Node{}, err
			}
			n.Children = append(n.Children, child)
		}
	} else {
		data, err := buf.ReadString()
		if err != nil {
			return Node{}, err
		}
		n.Data = []byte(data)
		if len(data) == 0 {
			n.ForceData = true
		}
	}
	return n, nil
}

func readAttributes(buf *Buffer, n *Node, listSize int) error {
	for range (listSize - 1) / 2 {
		key, err := buf.ReadString()
		if err != nil {
			return err
		}
		value, err := buf.ReadString()
		if err != nil {
			return err
		}
		n.SetAttr(key, value)
	}
	return nil
}
