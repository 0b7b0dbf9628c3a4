package sorter

import (
	"golang.org/x/exp/slices"
)

// kind is the structural and activation state of a node.
type kind int

const (
	internalNode kind = iota // path segment with children, never a client
	activeLeaf               // client eligible for the next ordering
	inactiveLeaf             // client kept for bookkeeping only
)

func (k kind) String() string {
	switch k {
	case internalNode:
		return "internal"
	case activeLeaf:
		return "active"
	case inactiveLeaf:
		return "inactive"
	}
	return "unknown"
}

// syntheticName is the reserved segment of the leaf that stands for a client
// whose path is also a strict prefix of other clients. Real client paths may
// never contain it, so it cannot collide with a real child.
const syntheticName = "."

// pathSeparator splits client paths into segments.
const pathSeparator = "/"

// defaultWeight applies to every path without an explicit weight.
const defaultWeight = 1.0

// cachedWeight is the lazily resolved fairness weight of a node.
type cachedWeight struct {
	resolved bool
	value    float64
}

func resolvedWeight(w float64) cachedWeight {
	return cachedWeight{resolved: true, value: w}
}

// node is a vertex of the client tree. A node owns its children; parent is a
// back reference cleared when the node is detached.
//
// children is kept partitioned: internal nodes and active leaves first,
// inactive leaves last. Sort relies on this to stop at the first inactive
// leaf.
type node struct {
	name       string
	path       string
	kind       kind
	parent     *node
	children   []*node
	allocation ledger
	weight     cachedWeight
}

func newNode(name string, k kind, parent *node) *node {
	n := &node{
		name:       name,
		kind:       k,
		parent:     parent,
		allocation: newLedger(),
	}

	switch {
	case parent == nil:
		n.path = ""
	case name == syntheticName:
		n.path = parent.path
	case parent.parent == nil:
		n.path = name
	default:
		n.path = parent.path + pathSeparator + name
	}

	return n
}

func (n *node) isLeaf() bool {
	return n.kind == activeLeaf || n.kind == inactiveLeaf
}

func (n *node) isSynthetic() bool {
	return n.name == syntheticName
}

// addChild places child at the front of the children, or at the back when
// it is an inactive leaf.
func (n *node) addChild(child *node) {
	if child.kind == inactiveLeaf {
		n.children = append(n.children, child)
		return
	}
	n.children = slices.Insert(n.children, 0, child)
}

func (n *node) removeChild(child *node) {
	if i := slices.Index(n.children, child); i >= 0 {
		n.children = slices.Delete(n.children, i, i+1)
	}
}

// child returns the child named name, or nil.
func (n *node) child(name string) *node {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// syntheticChild returns the synthetic leaf of n, or nil.
func (n *node) syntheticChild() *node {
	return n.child(syntheticName)
}

// activeLen returns the number of children before the first inactive leaf.
func (n *node) activeLen() int {
	i := slices.IndexFunc(n.children, func(c *node) bool { return c.kind == inactiveLeaf })
	if i < 0 {
		return len(n.children)
	}
	return i
}
