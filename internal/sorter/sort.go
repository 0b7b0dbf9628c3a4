package sorter

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// Sort returns the paths of all active clients, in the order they should be
// offered resources this round.
//
// The children of every internal node are shuffled by weight, then the tree
// is flattened in pre-order. Every call reshuffles, so consecutive calls
// return different orders. Allocations are not consulted.
func (s *RandomSorter) Sort() []string {
	s.shuffleTree(s.root)

	// Over-reserves when some clients are inactive.
	result := make([]string, 0, len(s.clients))
	return appendActiveClients(result, s.root)
}

// shuffleTree shuffles the active children of n and recurses into the
// internal ones. Inactive leaves are always the trailing children, so only
// the prefix before the first of them is shuffled.
func (s *RandomSorter) shuffleTree(n *node) {
	active := n.children[:n.activeLen()]

	weights := make([]float64, len(active))
	for i, child := range active {
		weights[i] = s.weightOf(child)
	}
	weightedShuffle(active, weights, s.rng)

	for _, child := range n.children {
		switch child.kind {
		case internalNode:
			s.shuffleTree(child)
		case inactiveLeaf:
			return
		}
	}
}

// appendActiveClients appends the active leaves below n in pre-order.
func appendActiveClients(result []string, n *node) []string {
	for _, child := range n.children {
		switch child.kind {
		case activeLeaf:
			result = append(result, child.path)
		case inactiveLeaf:
			return result
		case internalNode:
			result = appendActiveClients(result, child)
		}
	}
	return result
}

// InternalNode identifies an internal node of the client tree. Paths alone
// cannot tell the root apart from the node of an empty first segment, as in
// client "/a", since both have path "".
type InternalNode struct {
	Path string
	Root bool
}

// ActiveInternalNodes returns the internal nodes, root included, that have
// at least one active client below them. Callers use it to restrict further
// work, such as quota checks, to the subtrees that can receive offers.
func (s *RandomSorter) ActiveInternalNodes() mapset.Set[InternalNode] {
	result := mapset.NewThreadUnsafeSet[InternalNode]()
	collectActiveInternal(s.root, result)
	return result
}

// collectActiveInternal visits n in post-order and reports whether its
// subtree contains an active leaf.
func collectActiveInternal(n *node, result mapset.Set[InternalNode]) bool {
	switch n.kind {
	case activeLeaf:
		return true
	case inactiveLeaf:
		return false
	}

	active := false
	for _, child := range n.children {
		if collectActiveInternal(child, result) {
			active = true
		}
	}
	if active {
		result.Add(InternalNode{Path: n.path, Root: n.parent == nil})
	}
	return active
}
