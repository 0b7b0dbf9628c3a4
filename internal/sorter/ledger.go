package sorter

import (
	"fmt"
	"maps"

	"github.com/containerd/errdefs"

	"github.com/dreamware/fairshare/internal/resources"
)

// ledger records resources per slave together with their aggregated scalar
// quantities. Every node carries one for the allocation of its subtree, and
// the sorter keeps one more for the cluster total.
//
// A shared resource is counted in totals only while at least one copy of it
// is held on the slave.
type ledger struct {
	resources map[resources.SlaveID]resources.Resources
	totals    resources.Quantities
}

func newLedger() ledger {
	return ledger{
		resources: make(map[resources.SlaveID]resources.Resources),
		totals:    resources.Quantities{},
	}
}

func (l ledger) clone() ledger {
	return ledger{
		resources: maps.Clone(l.resources),
		totals:    l.totals.Clone(),
	}
}

func (l *ledger) add(slaveID resources.SlaveID, rs resources.Resources) {
	if rs.Empty() {
		return
	}

	current := l.resources[slaveID]
	newShared := rs.Shared().Filter(func(r resources.Resource) bool {
		return !current.ContainsResource(r)
	})

	l.resources[slaveID] = current.Add(rs)
	l.totals.Add(resources.FromScalarResources(rs.NonShared().Add(newShared).Scalars()))
}

func (l *ledger) subtract(slaveID resources.SlaveID, rs resources.Resources) error {
	if rs.Empty() {
		return nil
	}

	current, ok := l.resources[slaveID]
	if !ok {
		return fmt.Errorf("slave %s: %w", slaveID, errdefs.ErrNotFound)
	}
	if !current.Contains(rs) {
		return fmt.Errorf("slave %s: %s does not contain %s: %w", slaveID, current, rs, errdefs.ErrFailedPrecondition)
	}

	current = current.Subtract(rs)

	absentShared := rs.Shared().Filter(func(r resources.Resource) bool {
		return !current.ContainsResource(r)
	})
	quantities := resources.FromScalarResources(rs.NonShared().Add(absentShared).Scalars())
	if !l.totals.Contains(quantities) {
		return fmt.Errorf("slave %s: totals %s do not contain %s: %w", slaveID, l.totals, quantities, errdefs.ErrFailedPrecondition)
	}
	l.totals.Subtract(quantities)

	l.set(slaveID, current)
	return nil
}

// update replaces oldAllocation with newAllocation on the slave. The two are
// not checked to describe the same kind of resources.
func (l *ledger) update(slaveID resources.SlaveID, oldAllocation, newAllocation resources.Resources) error {
	current, ok := l.resources[slaveID]
	if !ok {
		return fmt.Errorf("slave %s: %w", slaveID, errdefs.ErrNotFound)
	}
	if !current.Contains(oldAllocation) {
		return fmt.Errorf("slave %s: %s does not contain %s: %w", slaveID, current, oldAllocation, errdefs.ErrFailedPrecondition)
	}

	oldQuantities := resources.FromScalarResources(oldAllocation.Scalars())
	newQuantities := resources.FromScalarResources(newAllocation.Scalars())
	if !l.totals.Contains(oldQuantities) {
		return fmt.Errorf("slave %s: totals %s do not contain %s: %w", slaveID, l.totals, oldQuantities, errdefs.ErrFailedPrecondition)
	}

	l.totals.Subtract(oldQuantities)
	l.totals.Add(newQuantities)

	l.set(slaveID, current.Subtract(oldAllocation).Add(newAllocation))
	return nil
}

func (l *ledger) set(slaveID resources.SlaveID, rs resources.Resources) {
	if rs.Empty() {
		delete(l.resources, slaveID)
		return
	}
	l.resources[slaveID] = rs
}
