package resources

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// Quantities maps a resource name to an aggregated scalar amount,
// regardless of role, sharedness or slave. Entries are never zero or
// negative: Subtract drops names that reach zero.
//
// Add and Subtract modify the receiver in place, so the receiver must be
// non-nil. Use Clone to take an independent copy.
type Quantities map[string]float64

// FromScalarResources sums the scalar resources of rs by name. A shared
// resource contributes its amount once regardless of how many copies rs
// holds.
func FromScalarResources(rs Resources) Quantities {
	q := Quantities{}
	for _, e := range rs.entries {
		if e.resource.Type != Scalar {
			continue
		}
		q[e.resource.Name] = round(q[e.resource.Name] + e.resource.Scalar)
	}
	return q
}

// Add adds every quantity of other to q.
func (q Quantities) Add(other Quantities) {
	for name, v := range other {
		q[name] = round(q[name] + v)
	}
}

// Subtract removes every quantity of other from q.
func (q Quantities) Subtract(other Quantities) {
	for name, v := range other {
		left := round(q[name] - v)
		if left <= 0 {
			delete(q, name)
			continue
		}
		q[name] = left
	}
}

// Contains reports whether q holds at least every quantity of other.
func (q Quantities) Contains(other Quantities) bool {
	for name, v := range other {
		if round(q[name]) < round(v) {
			return false
		}
	}
	return true
}

// Get returns the quantity for name, zero when absent.
func (q Quantities) Get(name string) float64 {
	return q[name]
}

// Empty reports whether q holds nothing.
func (q Quantities) Empty() bool {
	return len(q) == 0
}

// Clone returns an independent copy of q. Cloning nil yields an empty,
// writable value.
func (q Quantities) Clone() Quantities {
	out := make(Quantities, len(q))
	for name, v := range q {
		out[name] = v
	}
	return out
}

func (q Quantities) String() string {
	names := make([]string, 0, len(q))
	for name := range q {
		names = append(names, name)
	}
	slices.Sort(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s:%s", name, formatScalar(q[name])))
	}
	return strings.Join(parts, "; ")
}
