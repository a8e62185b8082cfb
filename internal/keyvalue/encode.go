package keyvalue

import (
	"bytes"
	"strings"
)

// Marshal renders the children of n in the layout Steam writes to disk.
// Quote characters inside keys or values cannot be represented and are
// removed.
func Marshal(n *Node) []byte {
	var buf bytes.Buffer
	writeObject(&buf, n, 0)
	return buf.Bytes()
}

func writeObject(buf *bytes.Buffer, n *Node, depth int) {
	indent := strings.Repeat("\t", depth)
	for k, v := range n.All() {
		buf.WriteString(indent)
		writeQuoted(buf, k)
		if v.IsLeaf() {
			buf.WriteString("\t\t")
			writeQuoted(buf, v.Value())
			buf.WriteByte('\n')
			continue
		}
		buf.WriteByte('\n')
		buf.WriteString(indent)
		buf.WriteString("{\n")
		writeObject(buf, v, depth+1)
		buf.WriteString(indent)
		buf.WriteString("}\n")
	}
}

func writeQuoted(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	buf.WriteString(strings.ReplaceAll(s, `"`, ""))
	buf.WriteByte('"')
}
