// Package sorter implements the fair-sharing client ordering used by the allocator.
// See doc.go for complete package documentation.
package sorter

import (
	"fmt"
	"maps"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/dreamware/fairshare/internal/resources"
)

// Sorter orders the clients of the allocator for resource offer
// distribution and keeps the allocation bookkeeping that the ordering is
// based on.
//
// Methods that name a client path which must exist panic when it does not.
// Such calls are contract violations of the caller; the panic value is an
// error matching one of the errdefs classes.
type Sorter interface {
	// Add registers a new inactive client.
	Add(clientPath string)
	// Remove unregisters a client and drops its allocation from its ancestors.
	Remove(clientPath string)

	// Activate makes a client eligible for Sort.
	Activate(clientPath string)
	// Deactivate excludes a client from Sort without removing it.
	Deactivate(clientPath string)

	// UpdateWeight sets the fairness weight of a path, which need not exist yet.
	UpdateWeight(path string, weight float64)

	// Allocated records resources allocated to a client on a slave.
	Allocated(clientPath string, slaveID resources.SlaveID, rs resources.Resources)
	// Update replaces part of a client's allocation on a slave.
	Update(clientPath string, slaveID resources.SlaveID, oldAllocation, newAllocation resources.Resources)
	// Unallocated records resources released by a client on a slave.
	Unallocated(clientPath string, slaveID resources.SlaveID, rs resources.Resources)

	// Allocation returns the resources allocated to a client, per slave.
	Allocation(clientPath string) map[resources.SlaveID]resources.Resources
	// AllocationScalarQuantities returns the scalar total allocated to a client.
	AllocationScalarQuantities(clientPath string) resources.Quantities
	// TotalAllocationScalarQuantities returns the scalar total allocated to all clients.
	TotalAllocationScalarQuantities() resources.Quantities
	// SlaveAllocation returns what each client holds on a slave.
	SlaveAllocation(slaveID resources.SlaveID) map[string]resources.Resources
	// ClientSlaveAllocation returns what a client holds on a slave.
	ClientSlaveAllocation(clientPath string, slaveID resources.SlaveID) resources.Resources

	// AddSlave adds resources to the cluster total.
	AddSlave(slaveID resources.SlaveID, rs resources.Resources)
	// RemoveSlave removes resources from the cluster total.
	RemoveSlave(slaveID resources.SlaveID, rs resources.Resources)
	// TotalScalarQuantities returns the scalar total of the cluster.
	TotalScalarQuantities() resources.Quantities

	// Sort returns the active clients in the order they should receive offers.
	Sort() []string

	// Contains reports whether a client is registered.
	Contains(clientPath string) bool
	// Count returns the number of registered clients.
	Count() int
}

var _ Sorter = (*RandomSorter)(nil)

// RandomSorter orders clients by a weighted random shuffle of the client
// tree. Clients with a higher weight tend to come first, but every active
// client has a chance to be first in every round.
//
// RandomSorter performs no locking. It must be owned by a single goroutine
// or guarded by the caller.
type RandomSorter struct {
	root    *node              // Unnamed internal node above all clients
	clients map[string]*node   // client path -> leaf
	weights map[string]float64 // path -> weight, may name paths without a node
	total   ledger             // Cluster resources, independent of clients
	rng     *rand.Rand         // Advanced by every Sort
	log     *logrus.Entry
}

// Option configures a RandomSorter.
type Option func(*RandomSorter)

// WithLogger sets the log entry used for debug and error output.
func WithLogger(entry *logrus.Entry) Option {
	return func(s *RandomSorter) {
		s.log = entry
	}
}

// NewRandomSorter creates an empty sorter that shuffles with rng. A nil rng
// is replaced by a randomly seeded PCG generator.
//
// Example:
//
//	s := NewRandomSorter(rand.New(rand.NewPCG(1, 2)))
//	s.Add("eng/web")
//	s.Activate("eng/web")
//	order := s.Sort()
func NewRandomSorter(rng *rand.Rand, opts ...Option) *RandomSorter {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	s := &RandomSorter{
		root:    newNode("", internalNode, nil),
		clients: make(map[string]*node),
		weights: make(map[string]float64),
		total:   newLedger(),
		rng:     rng,
		log:     logrus.WithField("component", "sorter"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers clientPath as an inactive client.
//
// Adding works like `mkdir -p`: the tree is walked segment by segment until
// either
//
//	(a) the segments run out at an internal node: a "." leaf is added to
//	    stand for the path itself,
//	(b) a leaf is reached: the leaf becomes internal and a "." child takes
//	    over its kind, allocation and registration,
//	(c) no child matches the next segment.
//
// Remaining segments are then created as internal nodes, the last one as an
// inactive leaf.
//
// Add panics if clientPath is already registered or contains a "." segment.
func (s *RandomSorter) Add(clientPath string) {
	if _, exists := s.clients[clientPath]; exists {
		s.fatal(fmt.Errorf("add client %q: %w", clientPath, errdefs.ErrAlreadyExists))
	}

	tokens := strings.Split(clientPath, pathSeparator)
	if slices.Contains(tokens, syntheticName) {
		s.fatal(fmt.Errorf("add client %q: segment %q is reserved: %w", clientPath, syntheticName, errdefs.ErrInvalidArgument))
	}

	current := s.root
	i := 0
	for {
		if i == len(tokens) {
			virtual := newNode(syntheticName, inactiveLeaf, current)
			current.addChild(virtual)
			current = virtual
			break
		}

		if current.isLeaf() {
			s.split(current)
			break
		}

		child := current.child(tokens[i])
		if child == nil {
			break
		}
		current = child
		i++
	}

	for ; i < len(tokens); i++ {
		k := internalNode
		if i == len(tokens)-1 {
			k = inactiveLeaf
		}

		child := newNode(tokens[i], k, current)
		current.addChild(child)
		current = child
	}

	if len(current.children) != 0 || current.kind != inactiveLeaf || current.path != clientPath {
		s.fatal(fmt.Errorf("add client %q: ended at %s node %q: %w", clientPath, current.kind, current.path, errdefs.ErrFailedPrecondition))
	}

	s.clients[clientPath] = current
	s.log.WithField("client", clientPath).Debug("client added")
}

// split turns a leaf into an internal node whose "." child inherits the
// leaf's kind, allocation, weight and registry entry.
func (s *RandomSorter) split(leaf *node) {
	oldKind := leaf.kind

	leaf.parent.removeChild(leaf)
	leaf.kind = internalNode
	leaf.parent.addChild(leaf)

	virtual := newNode(syntheticName, oldKind, leaf)
	virtual.allocation = leaf.allocation.clone()
	virtual.weight = leaf.weight

	leaf.addChild(virtual)
	s.clients[virtual.path] = virtual

	s.log.WithField("path", leaf.path).Debug("leaf converted to internal node")
}

// Remove unregisters clientPath.
//
// The leaf is removed, then the tree is walked up to the root. The leaf's
// allocation is subtracted from every ancestor, nodes left without children
// are deleted and a node left with only its "." child is collapsed back into
// a leaf, so no empty path segments are retained.
//
// Remove panics if clientPath is not registered.
func (s *RandomSorter) Remove(clientPath string) {
	current := s.mustFind(clientPath)

	// The leaf is destroyed below, keep its allocation.
	leafAllocation := maps.Clone(current.allocation.resources)

	delete(s.clients, clientPath)

	for current != s.root {
		parent := current.parent

		for slaveID, rs := range leafAllocation {
			if err := parent.allocation.subtract(slaveID, rs); err != nil {
				s.fatal(fmt.Errorf("remove client %q from %q: %w", clientPath, parent.path, err))
			}
		}

		switch len(current.children) {
		case 0:
			parent.removeChild(current)
			current.parent = nil
		case 1:
			if child := current.children[0]; child.isSynthetic() {
				s.collapse(current, child)
			}
		}

		current = parent
	}

	s.log.WithField("client", clientPath).Debug("client removed")
}

// collapse folds the "." leaf virtual back into its parent n, which becomes
// a leaf registered under its own path.
func (s *RandomSorter) collapse(n, virtual *node) {
	if !virtual.isLeaf() || s.clients[n.path] != virtual {
		s.fatal(fmt.Errorf("collapse %q: synthetic leaf is not the registered client: %w", n.path, errdefs.ErrFailedPrecondition))
	}

	n.kind = virtual.kind
	n.removeChild(virtual)
	virtual.parent = nil

	// n is a leaf again and may now be inactive, which must sort last.
	n.parent.removeChild(n)
	n.parent.addChild(n)

	s.clients[n.path] = n

	s.log.WithField("path", n.path).Debug("internal node collapsed to leaf")
}

// Activate makes clientPath eligible for Sort. It moves the client to the
// front of its siblings. Activating an active client is a no-op.
func (s *RandomSorter) Activate(clientPath string) {
	client := s.mustFind(clientPath)
	if client.kind != inactiveLeaf {
		return
	}

	client.kind = activeLeaf
	client.parent.removeChild(client)
	client.parent.addChild(client)

	s.log.WithField("client", clientPath).Debug("client activated")
}

// Deactivate excludes clientPath from Sort. It moves the client to the back
// of its siblings. Deactivating an inactive client is a no-op.
func (s *RandomSorter) Deactivate(clientPath string) {
	client := s.mustFind(clientPath)
	if client.kind != activeLeaf {
		return
	}

	client.kind = inactiveLeaf
	client.parent.removeChild(client)
	client.parent.addChild(client)

	s.log.WithField("client", clientPath).Debug("client deactivated")
}

// UpdateWeight records weight for path. The weight is kept even when no
// node exists at path yet and is picked up once one is created.
//
// If a node exists at path it is updated in place. A path that is both an
// internal node and a client has a "." leaf that shares the path; both are
// updated.
//
// A NaN or infinite weight is a contract violation.
func (s *RandomSorter) UpdateWeight(path string, weight float64) {
	if math.IsNaN(weight) || math.IsInf(weight, 0) {
		s.fatal(fmt.Errorf("weight of %q is %g: %w", path, weight, errdefs.ErrInvalidArgument))
	}
	s.weights[path] = weight

	n := s.lookup(path)
	if n == nil {
		return
	}

	n.weight = resolvedWeight(weight)
	if virtual := n.syntheticChild(); virtual != nil {
		virtual.weight = resolvedWeight(weight)
	}

	s.log.WithFields(logrus.Fields{"path": path, "weight": weight}).Debug("weight updated")
}

// weightOf resolves the weight of n from the weight table on first use.
func (s *RandomSorter) weightOf(n *node) float64 {
	if !n.weight.resolved {
		w, ok := s.weights[n.path]
		if !ok {
			w = defaultWeight
		}
		n.weight = resolvedWeight(w)
	}
	return n.weight.value
}

// lookup walks the tree to the node at path, internal or leaf. It never
// returns a "." leaf.
func (s *RandomSorter) lookup(path string) *node {
	current := s.root
	for _, token := range strings.Split(path, pathSeparator) {
		if token == syntheticName {
			return nil
		}
		if current = current.child(token); current == nil {
			return nil
		}
	}
	return current
}

// Contains reports whether clientPath is registered.
func (s *RandomSorter) Contains(clientPath string) bool {
	return s.find(clientPath) != nil
}

// Count returns the number of registered clients.
func (s *RandomSorter) Count() int {
	return len(s.clients)
}

// find returns the leaf registered for clientPath, or nil.
func (s *RandomSorter) find(clientPath string) *node {
	client, ok := s.clients[clientPath]
	if !ok {
		return nil
	}
	if !client.isLeaf() {
		s.fatal(fmt.Errorf("client %q is registered to a %s node: %w", clientPath, client.kind, errdefs.ErrFailedPrecondition))
	}
	return client
}

func (s *RandomSorter) mustFind(clientPath string) *node {
	client := s.find(clientPath)
	if client == nil {
		s.fatal(fmt.Errorf("client %q: %w", clientPath, errdefs.ErrNotFound))
	}
	return client
}

// fatal logs err and panics with it. The sorter state can no longer be
// trusted once a precondition is violated.
func (s *RandomSorter) fatal(err error) {
	s.log.WithError(err).Error("sorter precondition violated")
	panic(err)
}
