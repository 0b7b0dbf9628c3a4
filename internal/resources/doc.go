// Package resources implements the resource values exchanged between the
// allocator and the sorter: per-slave resource collections and the
// aggregated scalar quantities derived from them.
//
// # Overview
//
// A Resources value is an immutable bag of named resources. Scalars
// (cpus, mem, disk, gpus) are added and subtracted numerically with three
// decimal fixed-point rounding, sets (ports) by union and difference.
//
//	cpus:1;mem:128  +  cpus:0.5;ports:{80}  =  cpus:1.5;mem:128;ports:{80}
//
// # Shared Resources
//
// A shared resource (for example a persistent volume that several tasks can
// mount) is never merged with other copies. Each copy is counted instead:
//
//	disk:100<shared>  +  disk:100<shared>  =  disk:100<shared> x2
//
// Subtracting one copy leaves the other in place. Quantities derived with
// FromScalarResources count a shared resource once, however many copies
// are held.
//
// # Quantities
//
// Quantities flatten resources to name -> amount, ignoring roles and
// slaves. They are the coarse totals tracked per client and per cluster.
//
// # Text Form
//
// Parse accepts "name(role):value" fields separated by semicolons:
//
//	rs, err := resources.Parse("cpus:2;mem:4GiB;ports:{8080,8443}")
package resources
