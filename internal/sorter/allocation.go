package sorter

import (
	"fmt"
	"maps"

	"github.com/dreamware/fairshare/internal/resources"
)

// Allocated records that rs on slaveID were allocated to clientPath. The
// change is applied to the client and every ancestor up to the root.
func (s *RandomSorter) Allocated(clientPath string, slaveID resources.SlaveID, rs resources.Resources) {
	for current := s.mustFind(clientPath); current != nil; current = current.parent {
		current.allocation.add(slaveID, rs)
	}
}

// Update replaces oldAllocation with newAllocation in the allocation of
// clientPath on slaveID, and in every ancestor.
func (s *RandomSorter) Update(clientPath string, slaveID resources.SlaveID, oldAllocation, newAllocation resources.Resources) {
	// TODO: check that oldAllocation and newAllocation carry the same
	// resource names and roles.
	for current := s.mustFind(clientPath); current != nil; current = current.parent {
		if err := current.allocation.update(slaveID, oldAllocation, newAllocation); err != nil {
			s.fatal(fmt.Errorf("update client %q at %q: %w", clientPath, current.path, err))
		}
	}
}

// Unallocated records that rs on slaveID were released by clientPath.
func (s *RandomSorter) Unallocated(clientPath string, slaveID resources.SlaveID, rs resources.Resources) {
	for current := s.mustFind(clientPath); current != nil; current = current.parent {
		if err := current.allocation.subtract(slaveID, rs); err != nil {
			s.fatal(fmt.Errorf("unallocate client %q at %q: %w", clientPath, current.path, err))
		}
	}
}

// Allocation returns the resources held by clientPath, per slave.
func (s *RandomSorter) Allocation(clientPath string) map[resources.SlaveID]resources.Resources {
	return maps.Clone(s.mustFind(clientPath).allocation.resources)
}

// AllocationScalarQuantities returns the scalar quantities held by clientPath.
func (s *RandomSorter) AllocationScalarQuantities(clientPath string) resources.Quantities {
	return s.mustFind(clientPath).allocation.totals.Clone()
}

// TotalAllocationScalarQuantities returns the scalar quantities held by all
// clients together.
func (s *RandomSorter) TotalAllocationScalarQuantities() resources.Quantities {
	return s.root.allocation.totals.Clone()
}

// SlaveAllocation returns, for every client holding resources on slaveID,
// what it holds there.
//
// This is linear in the number of clients: the registry is scanned rather
// than keeping a second index by slave.
func (s *RandomSorter) SlaveAllocation(slaveID resources.SlaveID) map[string]resources.Resources {
	result := make(map[string]resources.Resources)
	for clientPath, client := range s.clients {
		if rs, ok := client.allocation.resources[slaveID]; ok {
			result[clientPath] = rs
		}
	}
	return result
}

// ClientSlaveAllocation returns what clientPath holds on slaveID. The result
// is empty when it holds nothing there.
func (s *RandomSorter) ClientSlaveAllocation(clientPath string, slaveID resources.SlaveID) resources.Resources {
	return s.mustFind(clientPath).allocation.resources[slaveID]
}

// AddSlave adds rs on slaveID to the cluster total.
func (s *RandomSorter) AddSlave(slaveID resources.SlaveID, rs resources.Resources) {
	s.total.add(slaveID, rs)
}

// RemoveSlave removes rs on slaveID from the cluster total. It panics if the
// slave is unknown or does not hold rs.
func (s *RandomSorter) RemoveSlave(slaveID resources.SlaveID, rs resources.Resources) {
	if err := s.total.subtract(slaveID, rs); err != nil {
		s.fatal(fmt.Errorf("remove cluster resources: %w", err))
	}
}

// TotalScalarQuantities returns the scalar quantities of the whole cluster.
func (s *RandomSorter) TotalScalarQuantities() resources.Quantities {
	return s.total.totals.Clone()
}
