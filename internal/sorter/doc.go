// Package sorter decides in which order the allocator offers resources to its
// clients. Clients are roles or frameworks addressed by slash separated
// paths, and the sorter keeps them in a tree that mirrors those paths.
//
// # Overview
//
// Every round the allocator asks the sorter for an ordering of the clients
// that currently want resources (the active ones). RandomSorter produces it
// with a weighted random shuffle instead of a strict priority: a client with
// weight 3 is three times as likely to be drawn before a sibling of weight 1,
// but never guaranteed to be.
//
// # Client Tree
//
// Paths are split on "/" and every segment becomes a node:
//
//	            root
//	          /  |   \
//	        eng  ops  qa          clients: eng, eng/web, eng/batch,
//	       / | \   |               ops/db, qa
//	      .  web batch db
//
// "eng" is both a client and the parent of other clients, so the client
// itself is represented by a synthetic leaf named ".". The "." segment is
// reserved and may not appear in client paths.
//
// Removing a client removes every node that no longer leads to a client and
// folds a lone "." leaf back into its parent, so the tree never keeps empty
// path segments.
//
// Children of a node are kept with inactive leaves last. Sort only shuffles
// and walks the prefix before the first inactive leaf.
//
// # Ordering
//
// Sort shuffles the active children of every internal node by weight, from
// the root down, and then lists the active leaves in pre-order. A subtree is
// therefore placed as a whole relative to its siblings:
//
//	weights: eng=3, ops=1
//	P(eng/* before ops/db) = 3/4
//
// Weights are set per path with UpdateWeight, may be set before the path
// exists and default to 1.
//
// # Allocation Bookkeeping
//
// Every node keeps a ledger of the resources allocated below it, per slave,
// plus the scalar totals. Allocated, Update and Unallocated apply a change to
// the client and all of its ancestors, so the root ledger always holds the
// allocation of the whole tree.
//
// Independently of clients the sorter tracks the cluster total through
// AddSlave and RemoveSlave. Shared resources count once towards the scalar
// total, however many copies a slave reports.
//
// # Failure Model
//
// Calls that violate the contract panic: naming a client that does not
// exist, adding a client twice, or removing resources that are not there.
// The panic value is an error wrapping a github.com/containerd/errdefs class
// (ErrNotFound, ErrAlreadyExists, ErrInvalidArgument,
// ErrFailedPrecondition). Lookups of absent clients through Contains simply
// return false.
//
// # Concurrency
//
// RandomSorter performs no locking. The allocator serializes all calls; the
// random source passed to NewRandomSorter is advanced by Sort and must not
// be shared between goroutines.
//
// # Usage Example
//
//	s := sorter.NewRandomSorter(rand.New(rand.NewPCG(1, 2)))
//
//	s.Add("eng/web")
//	s.Add("ops")
//	s.Activate("eng/web")
//	s.Activate("ops")
//	s.UpdateWeight("eng", 3)
//
//	s.Allocated("eng/web", "agent-1", resources.MustParse("cpus:2;mem:1GiB"))
//
//	for _, client := range s.Sort() {
//	    // offer resources to client
//	}
package sorter
