// Package keyvalue reads the quoted, brace-delimited text format used by
// Steam for library listings and app/workshop manifests.
package keyvalue

import (
	"iter"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Node is either a leaf holding a string or an object holding an ordered
// mapping of keys to child nodes. The zero value is an empty object.
type Node struct {
	leaf     bool
	value    string
	children *orderedmap.OrderedMap[string, *Node]
}

// NewObject returns an empty object node.
func NewObject() *Node {
	return &Node{children: orderedmap.New[string, *Node]()}
}

// NewLeaf returns a leaf node holding s.
func NewLeaf(s string) *Node {
	return &Node{leaf: true, value: s}
}

// IsLeaf reports whether n holds a string value.
func (n *Node) IsLeaf() bool { return n != nil && n.leaf }

// IsObject reports whether n holds child nodes.
func (n *Node) IsObject() bool { return n != nil && !n.leaf }

// Value returns the leaf string, or "" for objects.
func (n *Node) Value() string {
	if !n.IsLeaf() {
		return ""
	}
	return n.value
}

// Set binds child under key. An existing key keeps its position and takes
// the new value.
func (n *Node) Set(key string, child *Node) {
	if n.leaf {
		return
	}
	if n.children == nil {
		n.children = orderedmap.New[string, *Node]()
	}
	n.children.Set(key, child)
}

// Get returns the direct child bound under key.
func (n *Node) Get(key string) (*Node, bool) {
	if !n.IsObject() || n.children == nil {
		return nil, false
	}
	return n.children.Get(key)
}

// Lookup walks path from n and returns the node at its end.
func (n *Node) Lookup(path ...string) (*Node, bool) {
	cur := n
	for _, key := range path {
		next, ok := cur.Get(key)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, cur != nil
}

// String returns the leaf value at path. It reports false when the path is
// missing or ends at an object.
func (n *Node) String(path ...string) (string, bool) {
	v, ok := n.Lookup(path...)
	if !ok || !v.IsLeaf() {
		return "", false
	}
	return v.value, true
}

// Len returns the number of children of an object node.
func (n *Node) Len() int {
	if !n.IsObject() || n.children == nil {
		return 0
	}
	return n.children.Len()
}

// Keys returns child keys in insertion order.
func (n *Node) Keys() []string {
	keys := make([]string, 0, n.Len())
	for k := range n.All() {
		keys = append(keys, k)
	}
	return keys
}

// All iterates over the children of an object node in insertion order.
func (n *Node) All() iter.Seq2[string, *Node] {
	return func(yield func(string, *Node) bool) {
		if !n.IsObject() || n.children == nil {
			return
		}
		for p := n.children.Oldest(); p != nil; p = p.Next() {
			if !yield(p.Key, p.Value) {
				return
			}
		}
	}
}

// Equal reports whether two trees hold the same keys, order, and values.
func (n *Node) Equal(o *Node) bool {
	if n == nil || o == nil {
		return n == o
	}
	if n.leaf != o.leaf {
		return false
	}
	if n.leaf {
		return n.value == o.value
	}
	if n.Len() != o.Len() {
		return false
	}
	next, stop := iter.Pull2(o.All())
	defer stop()
	for k, v := range n.All() {
		k2, v2, ok := next()
		if !ok || k != k2 || !v.Equal(v2) {
			return false
		}
	}
	return true
}
