package sorter

import (
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/fairshare/internal/resources"
)

// TestAllocated tests that allocations are recorded on the client and every
// ancestor, and the read-only projections of the ledgers.
func TestAllocated(t *testing.T) {
	s := newTestSorter(t)
	s.Add("a/b")
	s.Add("a/c")
	s.Add("d")

	s.Allocated("a/b", "s1", resources.MustParse("cpus:1;mem:100"))
	s.Allocated("a/b", "s2", resources.MustParse("cpus:2"))
	s.Allocated("a/c", "s1", resources.MustParse("cpus:3;ports:{80,443}"))
	s.Allocated("d", "s1", resources.MustParse("gpus:1"))
	checkInvariants(t, s)

	t.Run("client allocation", func(t *testing.T) {
		allocation := s.Allocation("a/b")
		require.Len(t, allocation, 2)
		assert.True(t, allocation["s1"].Equal(resources.MustParse("cpus:1;mem:100")))
		assert.True(t, allocation["s2"].Equal(resources.MustParse("cpus:2")))

		assert.Equal(t, resources.Quantities{"cpus": 3, "mem": 100}, s.AllocationScalarQuantities("a/b"))
		assert.Equal(t, resources.Quantities{"cpus": 3}, s.AllocationScalarQuantities("a/c"), "sets are not scalar")
	})

	t.Run("ancestors aggregate", func(t *testing.T) {
		assert.Equal(t, resources.Quantities{"cpus": 6, "mem": 100}, s.lookup("a").allocation.totals)
		assert.Equal(t, resources.Quantities{"cpus": 6, "mem": 100, "gpus": 1}, s.TotalAllocationScalarQuantities())
	})

	t.Run("slave allocation", func(t *testing.T) {
		onS1 := s.SlaveAllocation("s1")
		require.Len(t, onS1, 3)
		assert.True(t, onS1["a/c"].Equal(resources.MustParse("cpus:3;ports:{80,443}")))
		assert.True(t, onS1["d"].Equal(resources.MustParse("gpus:1")))

		onS2 := s.SlaveAllocation("s2")
		require.Len(t, onS2, 1)
		assert.Contains(t, onS2, "a/b")

		assert.Empty(t, s.SlaveAllocation("s3"))
	})

	t.Run("client slave allocation", func(t *testing.T) {
		assert.True(t, s.ClientSlaveAllocation("a/b", "s2").Equal(resources.MustParse("cpus:2")))
		assert.True(t, s.ClientSlaveAllocation("d", "s2").Empty())
	})

	t.Run("queries return copies", func(t *testing.T) {
		q := s.AllocationScalarQuantities("a/b")
		q["cpus"] = 100
		delete(s.Allocation("a/b"), "s1")

		assert.Equal(t, 3.0, s.AllocationScalarQuantities("a/b").Get("cpus"))
		assert.Len(t, s.Allocation("a/b"), 2)
	})

	t.Run("unknown client panics", func(t *testing.T) {
		for name, fn := range map[string]func(){
			"Allocated":                  func() { s.Allocated("a", "s1", resources.MustParse("cpus:1")) },
			"Allocation":                 func() { s.Allocation("x") },
			"AllocationScalarQuantities": func() { s.AllocationScalarQuantities("x") },
			"ClientSlaveAllocation":      func() { s.ClientSlaveAllocation("x", "s1") },
		} {
			err := panicError(t, fn)
			assert.True(t, errdefs.IsNotFound(err), "%s: got %v", name, err)
		}
	})
}

// TestUnallocated tests releasing allocations.
func TestUnallocated(t *testing.T) {
	s := newTestSorter(t)
	s.Add("a/b")
	s.Allocated("a/b", "s1", resources.MustParse("cpus:1;mem:100"))

	s.Unallocated("a/b", "s1", resources.MustParse("cpus:1"))
	assert.True(t, s.ClientSlaveAllocation("a/b", "s1").Equal(resources.MustParse("mem:100")))
	assert.Equal(t, resources.Quantities{"mem": 100}, s.TotalAllocationScalarQuantities())
	checkInvariants(t, s)

	s.Unallocated("a/b", "s1", resources.MustParse("mem:100"))
	assert.Empty(t, s.Allocation("a/b"), "empty slave entries are dropped")
	assert.Empty(t, s.lookup("a").allocation.resources)
	assert.True(t, s.TotalAllocationScalarQuantities().Empty())
	checkInvariants(t, s)

	t.Run("more than allocated panics", func(t *testing.T) {
		s := newTestSorter(t)
		s.Add("a")
		s.Allocated("a", "s1", resources.MustParse("cpus:1"))

		err := panicError(t, func() { s.Unallocated("a", "s1", resources.MustParse("cpus:2")) })
		assert.True(t, errdefs.IsFailedPrecondition(err), "got %v", err)
	})

	t.Run("unknown slave panics", func(t *testing.T) {
		s := newTestSorter(t)
		s.Add("a")

		err := panicError(t, func() { s.Unallocated("a", "s9", resources.MustParse("cpus:1")) })
		assert.True(t, errdefs.IsNotFound(err), "got %v", err)
	})

	t.Run("empty release is a no-op", func(t *testing.T) {
		s := newTestSorter(t)
		s.Add("a")

		s.Unallocated("a", "s9", resources.Resources{})
		assert.Empty(t, s.Allocation("a"))
	})
}

// TestUpdate tests replacing part of an allocation in place.
func TestUpdate(t *testing.T) {
	s := newTestSorter(t)
	s.Add("a/b")
	s.Allocated("a/b", "s1", resources.MustParse("cpus:2;mem:100"))

	s.Update("a/b", "s1", resources.MustParse("cpus:1"), resources.MustParse("cpus:1.5;disk:10"))

	assert.True(t, s.ClientSlaveAllocation("a/b", "s1").Equal(resources.MustParse("cpus:2.5;mem:100;disk:10")))
	assert.Equal(t, resources.Quantities{"cpus": 2.5, "mem": 100, "disk": 10}, s.AllocationScalarQuantities("a/b"))
	assert.Equal(t, resources.Quantities{"cpus": 2.5, "mem": 100, "disk": 10}, s.TotalAllocationScalarQuantities())
	checkInvariants(t, s)

	t.Run("resource kinds are not validated", func(t *testing.T) {
		s.Update("a/b", "s1", resources.MustParse("disk:10"), resources.MustParse("gpus:1"))
		assert.Equal(t, 1.0, s.AllocationScalarQuantities("a/b").Get("gpus"))
		assert.Equal(t, 0.0, s.AllocationScalarQuantities("a/b").Get("disk"))
	})

	t.Run("old allocation not held panics", func(t *testing.T) {
		err := panicError(t, func() {
			s.Update("a/b", "s1", resources.MustParse("cpus:9"), resources.MustParse("cpus:1"))
		})
		assert.True(t, errdefs.IsFailedPrecondition(err), "got %v", err)
	})

	t.Run("unknown slave panics", func(t *testing.T) {
		err := panicError(t, func() {
			s.Update("a/b", "s2", resources.MustParse("cpus:1"), resources.MustParse("cpus:2"))
		})
		assert.True(t, errdefs.IsNotFound(err), "got %v", err)
	})
}

// TestAllocationAcrossStructuralChanges verifies that splitting, collapsing
// and removing clients keep every ledger consistent.
func TestAllocationAcrossStructuralChanges(t *testing.T) {
	s := newTestSorter(t)
	s.Add("x")
	s.Allocated("x", "s1", resources.MustParse("cpus:2"))

	s.Add("x/y")
	assert.True(t, s.ClientSlaveAllocation("x", "s1").Equal(resources.MustParse("cpus:2")), "synthetic leaf keeps the allocation")
	assert.Equal(t, resources.Quantities{"cpus": 2}, s.TotalAllocationScalarQuantities())
	checkInvariants(t, s)

	s.Allocated("x/y", "s1", resources.MustParse("cpus:1"))
	assert.Equal(t, resources.Quantities{"cpus": 3}, s.lookup("x").allocation.totals)

	s.Remove("x")
	assert.Equal(t, resources.Quantities{"cpus": 1}, s.TotalAllocationScalarQuantities())
	assert.Equal(t, resources.Quantities{"cpus": 1}, s.lookup("x").allocation.totals)
	checkInvariants(t, s)

	s.Remove("x/y")
	assert.True(t, s.TotalAllocationScalarQuantities().Empty())
	assert.Empty(t, s.root.allocation.resources)
	assert.Empty(t, s.root.children)
}

// TestSharedAllocation tests that a shared resource held by several clients
// counts once in the aggregated quantities.
func TestSharedAllocation(t *testing.T) {
	volume := resources.MustParse("disk:100").AsShared()

	s := newTestSorter(t)
	s.Add("a")
	s.Add("b")
	s.Allocated("a", "s1", volume)
	s.Allocated("b", "s1", volume)

	assert.Equal(t, resources.Quantities{"disk": 100}, s.AllocationScalarQuantities("a"))
	assert.Equal(t, resources.Quantities{"disk": 100}, s.TotalAllocationScalarQuantities())
	assert.Equal(t, 2, s.root.allocation.resources["s1"].Count(volume.All()[0]))
	checkInvariants(t, s)

	s.Unallocated("a", "s1", volume)
	assert.Equal(t, resources.Quantities{"disk": 100}, s.TotalAllocationScalarQuantities(), "b still holds a copy")
	checkInvariants(t, s)

	s.Remove("b")
	assert.True(t, s.TotalAllocationScalarQuantities().Empty())
}

// TestClusterTotals tests the cluster-wide resource tracker.
func TestClusterTotals(t *testing.T) {
	t.Run("non-shared resources add up", func(t *testing.T) {
		s := newTestSorter(t)
		s.AddSlave("s1", resources.MustParse("cpus:4;mem:1024"))
		s.AddSlave("s1", resources.MustParse("cpus:4"))
		s.AddSlave("s2", resources.MustParse("cpus:2;ports:{1-100}"))

		assert.Equal(t, resources.Quantities{"cpus": 10, "mem": 1024}, s.TotalScalarQuantities())

		s.RemoveSlave("s1", resources.MustParse("cpus:8;mem:1024"))
		assert.Equal(t, resources.Quantities{"cpus": 2}, s.TotalScalarQuantities())
		assert.NotContains(t, s.total.resources, resources.SlaveID("s1"), "emptied slave is dropped")
	})

	t.Run("shared resources count once", func(t *testing.T) {
		volume := resources.MustParse("disk:100").AsShared()
		r := volume.All()[0]

		s := newTestSorter(t)
		s.AddSlave("s1", resources.MustParse("cpus:1").Add(volume))
		assert.Equal(t, resources.Quantities{"cpus": 1, "disk": 100}, s.TotalScalarQuantities())

		s.AddSlave("s1", volume)
		assert.Equal(t, 2, s.total.resources["s1"].Count(r))
		assert.Equal(t, resources.Quantities{"cpus": 1, "disk": 100}, s.TotalScalarQuantities())

		s.RemoveSlave("s1", volume)
		assert.Equal(t, 1, s.total.resources["s1"].Count(r))
		assert.Equal(t, resources.Quantities{"cpus": 1, "disk": 100}, s.TotalScalarQuantities())

		s.RemoveSlave("s1", volume)
		assert.Equal(t, resources.Quantities{"cpus": 1}, s.TotalScalarQuantities())
	})

	t.Run("independent of allocations", func(t *testing.T) {
		s := newTestSorter(t)
		s.AddSlave("s1", resources.MustParse("cpus:4"))
		s.Add("a")
		s.Allocated("a", "s1", resources.MustParse("cpus:3"))

		assert.Equal(t, resources.Quantities{"cpus": 4}, s.TotalScalarQuantities())
		assert.Equal(t, resources.Quantities{"cpus": 3}, s.TotalAllocationScalarQuantities())
	})

	t.Run("removing more than tracked panics", func(t *testing.T) {
		s := newTestSorter(t)
		s.AddSlave("s1", resources.MustParse("cpus:4"))

		err := panicError(t, func() { s.RemoveSlave("s1", resources.MustParse("cpus:5")) })
		assert.True(t, errdefs.IsFailedPrecondition(err), "got %v", err)
	})

	t.Run("removing from unknown slave panics", func(t *testing.T) {
		s := newTestSorter(t)

		err := panicError(t, func() { s.RemoveSlave("s1", resources.MustParse("cpus:1")) })
		assert.True(t, errdefs.IsNotFound(err), "got %v", err)

		// Nothing to remove is not a violation.
		s.RemoveSlave("s1", resources.Resources{})
	})
}
