// Package scenario loads cluster scenarios from YAML and replays them
// against a sorter.
//
// A scenario lists the slaves of a cluster, the clients of the sorter with
// what they hold on each slave, and the weights of the client tree:
//
//	seed: 42
//	rounds: 1000
//	weights:
//	  eng: 3
//	slaves:
//	  - id: s1
//	    resources: "cpus:8;mem:16GiB"
//	    shared: "disk:100"
//	clients:
//	  - path: eng/web
//	    active: true
//	    allocations:
//	      - slave: s1
//	        resources: "cpus:2;mem:4GiB"
//	        shared: "disk:100"
//	  - path: ops
//	    active: true
//
// Resource strings use the syntax of resources.Parse. Validate checks a
// scenario before Apply replays it, so a bad file is reported as an error
// instead of tripping the sorter's contract checks. Simulate then sorts
// repeatedly and reports how often each client came first and its mean
// position.
package scenario
