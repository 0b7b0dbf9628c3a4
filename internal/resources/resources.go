// Package resources provides the resource values that the sorter accounts for.
// See doc.go for complete package documentation.
package resources

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/exp/slices"
)

// SlaveID identifies an agent in the cluster that offers resources.
type SlaveID string

// ValueType is the kind of value a Resource carries.
type ValueType int

const (
	// Scalar resources carry a single floating point amount (cpus, mem, disk).
	Scalar ValueType = iota
	// Set resources carry a set of distinct items (ports, devices).
	Set
)

// DefaultRole is the role of unreserved resources.
const DefaultRole = "*"

// Resource is a single named resource.
//
// Two resources with the same name, role, type and sharedness are the
// same kind of resource: non-shared resources of the same kind merge when
// added together. Shared resources only merge with identical values and
// are counted instead, since every copy refers to the same physical thing.
type Resource struct {
	Name   string    // Resource name, e.g. "cpus"
	Role   string    // Reservation role, DefaultRole when empty
	Type   ValueType // Scalar or Set
	Scalar float64   // Amount for Scalar resources
	Items  []string  // Members for Set resources
	Shared bool      // Whether copies of this resource may be handed out concurrently
}

// NewScalar returns an unreserved scalar resource.
func NewScalar(name string, value float64) Resource {
	return Resource{Name: name, Role: DefaultRole, Type: Scalar, Scalar: value}
}

// NewSet returns an unreserved set resource.
func NewSet(name string, items ...string) Resource {
	return Resource{Name: name, Role: DefaultRole, Type: Set, Items: items}
}

func (r Resource) role() string {
	if r.Role == "" {
		return DefaultRole
	}
	return r.Role
}

func (r Resource) empty() bool {
	switch r.Type {
	case Scalar:
		return round(r.Scalar) <= 0
	case Set:
		return len(r.Items) == 0
	}
	return true
}

func (r Resource) sameKind(o Resource) bool {
	return r.Name == o.Name && r.role() == o.role() && r.Type == o.Type && r.Shared == o.Shared
}

func (r Resource) identical(o Resource) bool {
	if !r.sameKind(o) {
		return false
	}
	if r.Type == Scalar {
		return round(r.Scalar) == round(o.Scalar)
	}
	return slices.Equal(r.Items, o.Items)
}

// normalized returns a deep copy with the default role filled in, the
// scalar rounded and the set items sorted and de-duplicated.
func (r Resource) normalized() Resource {
	out := r
	out.Role = r.role()
	switch r.Type {
	case Scalar:
		out.Scalar = round(r.Scalar)
		out.Items = nil
	case Set:
		out.Items = slices.Clone(r.Items)
		slices.Sort(out.Items)
		out.Items = slices.Compact(out.Items)
	}
	return out
}

func (r Resource) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	if role := r.role(); role != DefaultRole {
		fmt.Fprintf(&b, "(%s)", role)
	}
	b.WriteByte(':')
	switch r.Type {
	case Scalar:
		b.WriteString(formatScalar(r.Scalar))
	case Set:
		fmt.Fprintf(&b, "{%s}", strings.Join(r.Items, ","))
	}
	if r.Shared {
		b.WriteString("<shared>")
	}
	return b.String()
}

type entry struct {
	resource Resource
	count    int // copies held; greater than one only for shared resources
}

// Resources is an immutable collection of resources. The zero value is an
// empty collection ready for use. All operations return new values and never
// modify their receiver or arguments.
type Resources struct {
	entries []entry
}

// New returns the sum of the given resources.
func New(rs ...Resource) Resources {
	var out Resources
	for _, r := range rs {
		out.addResource(r)
	}
	return out
}

func (rs Resources) clone() Resources {
	out := Resources{entries: make([]entry, len(rs.entries))}
	for i, e := range rs.entries {
		out.entries[i] = entry{resource: e.resource.normalized(), count: e.count}
	}
	return out
}

func (rs *Resources) addResource(r Resource) {
	if r.empty() {
		return
	}
	r = r.normalized()

	for i := range rs.entries {
		e := &rs.entries[i]
		if r.Shared {
			if e.resource.identical(r) {
				e.count++
				return
			}
			continue
		}
		if !e.resource.sameKind(r) {
			continue
		}
		switch r.Type {
		case Scalar:
			e.resource.Scalar = round(e.resource.Scalar + r.Scalar)
		case Set:
			e.resource.Items = union(e.resource.Items, r.Items)
		}
		return
	}

	rs.entries = append(rs.entries, entry{resource: r, count: 1})
}

func (rs *Resources) subtractResource(r Resource) {
	if r.empty() {
		return
	}
	r = r.normalized()

	for i := range rs.entries {
		e := &rs.entries[i]
		if r.Shared {
			if !e.resource.identical(r) {
				continue
			}
			e.count--
			if e.count == 0 {
				rs.entries = slices.Delete(rs.entries, i, i+1)
			}
			return
		}
		if !e.resource.sameKind(r) {
			continue
		}
		switch r.Type {
		case Scalar:
			e.resource.Scalar = round(e.resource.Scalar - r.Scalar)
		case Set:
			e.resource.Items = difference(e.resource.Items, r.Items)
		}
		if e.resource.empty() {
			rs.entries = slices.Delete(rs.entries, i, i+1)
		}
		return
	}
}

// ContainsResource reports whether at least r is held.
func (rs Resources) ContainsResource(r Resource) bool {
	if r.empty() {
		return true
	}
	r = r.normalized()

	for _, e := range rs.entries {
		if r.Shared {
			if e.resource.identical(r) {
				return true
			}
			continue
		}
		if !e.resource.sameKind(r) {
			continue
		}
		switch r.Type {
		case Scalar:
			return e.resource.Scalar >= r.Scalar
		case Set:
			return isSubset(r.Items, e.resource.Items)
		}
	}
	return false
}

// Contains reports whether other is a subset of rs, counting every copy of
// a shared resource.
func (rs Resources) Contains(other Resources) bool {
	remaining := rs.clone()
	for _, e := range other.entries {
		for i := 0; i < e.count; i++ {
			if !remaining.ContainsResource(e.resource) {
				return false
			}
			remaining.subtractResource(e.resource)
		}
	}
	return true
}

// Add returns the sum of rs and other.
func (rs Resources) Add(other Resources) Resources {
	out := rs.clone()
	for _, e := range other.entries {
		for i := 0; i < e.count; i++ {
			out.addResource(e.resource)
		}
	}
	return out
}

// Subtract returns rs minus other. Resources in other that rs does not hold
// are ignored; callers that need exact subtraction check Contains first.
func (rs Resources) Subtract(other Resources) Resources {
	out := rs.clone()
	for _, e := range other.entries {
		for i := 0; i < e.count; i++ {
			out.subtractResource(e.resource)
		}
	}
	return out
}

// Equal reports whether rs and other hold exactly the same resources.
func (rs Resources) Equal(other Resources) bool {
	return rs.Contains(other) && other.Contains(rs)
}

// Empty reports whether no resources are held.
func (rs Resources) Empty() bool {
	return len(rs.entries) == 0
}

// Count returns how many copies of r are held: the number of shared copies
// for a shared resource, otherwise one when r is contained and zero if not.
func (rs Resources) Count(r Resource) int {
	r = r.normalized()
	for _, e := range rs.entries {
		if e.resource.identical(r) {
			return e.count
		}
	}
	return 0
}

// Filter returns the resources for which keep returns true. Every copy of a
// shared resource is kept or dropped together.
func (rs Resources) Filter(keep func(Resource) bool) Resources {
	var out Resources
	for _, e := range rs.entries {
		r := e.resource.normalized()
		if keep(r) {
			out.entries = append(out.entries, entry{resource: r, count: e.count})
		}
	}
	return out
}

// Shared returns the shared resources.
func (rs Resources) Shared() Resources {
	return rs.Filter(func(r Resource) bool { return r.Shared })
}

// NonShared returns the resources that are not shared.
func (rs Resources) NonShared() Resources {
	return rs.Filter(func(r Resource) bool { return !r.Shared })
}

// Scalars returns the scalar resources.
func (rs Resources) Scalars() Resources {
	return rs.Filter(func(r Resource) bool { return r.Type == Scalar })
}

// AsShared returns a copy of rs with every resource marked shared.
func (rs Resources) AsShared() Resources {
	var out Resources
	for _, e := range rs.entries {
		r := e.resource.normalized()
		r.Shared = true
		for i := 0; i < e.count; i++ {
			out.addResource(r)
		}
	}
	return out
}

// All returns one Resource per distinct entry. A shared resource held
// several times appears once; use Count for the number of copies.
func (rs Resources) All() []Resource {
	out := make([]Resource, 0, len(rs.entries))
	for _, e := range rs.entries {
		out = append(out, e.resource.normalized())
	}
	return out
}

func (rs Resources) String() string {
	parts := make([]string, 0, len(rs.entries))
	for _, e := range rs.entries {
		s := e.resource.String()
		if e.count > 1 {
			s = fmt.Sprintf("%s x%d", s, e.count)
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "; ")
}

// round truncates to the three decimal fixed-point precision used for all
// scalar arithmetic so that repeated add/subtract cycles return to zero.
func round(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func formatScalar(v float64) string {
	return fmt.Sprintf("%g", round(v))
}

func union(a, b []string) []string {
	out := append(slices.Clone(a), b...)
	slices.Sort(out)
	return slices.Compact(out)
}

func difference(a, b []string) []string {
	out := make([]string, 0, len(a))
	for _, item := range a {
		if !slices.Contains(b, item) {
			out = append(out, item)
		}
	}
	return out
}

func isSubset(sub, super []string) bool {
	for _, item := range sub {
		if !slices.Contains(super, item) {
			return false
		}
	}
	return true
}
