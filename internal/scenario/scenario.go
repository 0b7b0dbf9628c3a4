// Package scenario loads cluster scenarios from YAML and replays them against a sorter.
// See doc.go for complete package documentation.
package scenario

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/containerd/errdefs"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"github.com/dreamware/fairshare/internal/resources"
	"github.com/dreamware/fairshare/internal/sorter"
)

// Scenario describes a cluster: its slaves, its clients with their
// allocations, and the weights of the client tree.
type Scenario struct {
	Seed    uint64             `yaml:"seed"`
	Rounds  int                `yaml:"rounds"`
	Weights map[string]float64 `yaml:"weights"`
	Slaves  []Slave            `yaml:"slaves"`
	Clients []Client           `yaml:"clients"`
}

// Slave is an agent contributing resources to the cluster total. Shared
// lists resources that may be allocated to several clients at once.
type Slave struct {
	ID        string `yaml:"id"`
	Resources string `yaml:"resources"`
	Shared    string `yaml:"shared"`
}

// Client is a sorter client and what it currently holds.
type Client struct {
	Path        string       `yaml:"path"`
	Active      bool         `yaml:"active"`
	Allocations []Allocation `yaml:"allocations"`
}

// Allocation is a set of resources held on one slave. Shared names
// resources taken from the slave's shared pool.
type Allocation struct {
	Slave     string `yaml:"slave"`
	Resources string `yaml:"resources"`
	Shared    string `yaml:"shared"`
}

// Load decodes a scenario from r. Unknown fields are rejected. The result
// is not validated; Apply validates before touching the sorter.
func Load(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode scenario: %w: empty document", errdefs.ErrInvalidArgument)
		}
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	return &sc, nil
}

// LoadFile reads and decodes the scenario file at path.
func LoadFile(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()

	sc, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

type slavePlan struct {
	id    resources.SlaveID
	total resources.Resources
}

type allocationPlan struct {
	client string
	slave  resources.SlaveID
	rs     resources.Resources
}

// plan is a validated scenario with every resource string parsed.
type plan struct {
	slaves      []slavePlan
	allocations []allocationPlan
}

// Validate reports the first problem that would make Apply misuse the
// sorter. The returned error matches errdefs.ErrInvalidArgument.
func (sc *Scenario) Validate() error {
	_, err := sc.compile()
	return err
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errdefs.ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func validPath(path string) error {
	if path == "" {
		return invalid("empty path")
	}
	for _, segment := range strings.Split(path, "/") {
		if segment == "." {
			return invalid("path %q: segment \".\" is reserved", path)
		}
	}
	return nil
}

func (sc *Scenario) weightPaths() []string {
	paths := make([]string, 0, len(sc.Weights))
	for path := range sc.Weights {
		paths = append(paths, path)
	}
	slices.Sort(paths)
	return paths
}

func (sc *Scenario) compile() (*plan, error) {
	if sc.Rounds < 0 {
		return nil, invalid("rounds must not be negative, got %d", sc.Rounds)
	}

	for _, path := range sc.weightPaths() {
		if err := validPath(path); err != nil {
			return nil, fmt.Errorf("weights: %w", err)
		}
		weight := sc.Weights[path]
		if math.IsNaN(weight) || math.IsInf(weight, 0) {
			return nil, invalid("weights: %q must be finite, got %g", path, weight)
		}
		if weight < 0 {
			return nil, invalid("weights: %q must not be negative, got %g", path, weight)
		}
	}

	p := &plan{}

	// Per slave capacity left for non-shared allocations, and the shared
	// resources any number of clients may hold.
	capacity := make(map[resources.SlaveID]resources.Resources, len(sc.Slaves))
	shared := make(map[resources.SlaveID]resources.Resources, len(sc.Slaves))

	for i, slave := range sc.Slaves {
		if slave.ID == "" {
			return nil, invalid("slaves[%d]: missing id", i)
		}
		id := resources.SlaveID(slave.ID)
		if _, ok := capacity[id]; ok {
			return nil, invalid("slaves[%d]: duplicate id %q", i, slave.ID)
		}

		rs, err := resources.Parse(slave.Resources)
		if err != nil {
			return nil, invalid("slave %q: %v", slave.ID, err)
		}
		sh, err := resources.Parse(slave.Shared)
		if err != nil {
			return nil, invalid("slave %q shared: %v", slave.ID, err)
		}
		sh = sh.AsShared()

		capacity[id] = rs
		shared[id] = sh
		p.slaves = append(p.slaves, slavePlan{id: id, total: rs.Add(sh)})
	}

	seen := mapset.NewThreadUnsafeSet[string]()
	for i, client := range sc.Clients {
		if err := validPath(client.Path); err != nil {
			return nil, fmt.Errorf("clients[%d]: %w", i, err)
		}
		if !seen.Add(client.Path) {
			return nil, invalid("clients[%d]: duplicate path %q", i, client.Path)
		}

		for _, a := range client.Allocations {
			id := resources.SlaveID(a.Slave)
			left, ok := capacity[id]
			if !ok {
				return nil, invalid("client %q: unknown slave %q", client.Path, a.Slave)
			}
			nonShared, err := resources.Parse(a.Resources)
			if err != nil {
				return nil, invalid("client %q on %q: %v", client.Path, a.Slave, err)
			}
			sh, err := resources.Parse(a.Shared)
			if err != nil {
				return nil, invalid("client %q on %q shared: %v", client.Path, a.Slave, err)
			}
			sh = sh.AsShared()
			rs := nonShared.Add(sh)
			if rs.Empty() {
				continue
			}

			if !left.Contains(nonShared) {
				return nil, invalid("client %q on %q: %s exceeds what is left (%s)", client.Path, a.Slave, nonShared, left)
			}
			capacity[id] = left.Subtract(nonShared)

			for _, r := range sh.All() {
				if !shared[id].ContainsResource(r) {
					return nil, invalid("client %q on %q: %s is not shared by the slave", client.Path, a.Slave, r)
				}
			}

			p.allocations = append(p.allocations, allocationPlan{client: client.Path, slave: id, rs: rs})
		}
	}

	return p, nil
}

// Apply validates the scenario and replays it against s: slaves are added
// to the cluster total, weights are set, clients are added and activated,
// and their allocations recorded. Nothing is applied when validation fails.
func (sc *Scenario) Apply(s sorter.Sorter) error {
	p, err := sc.compile()
	if err != nil {
		return err
	}
	log := logrus.WithField("component", "scenario")

	for _, slave := range p.slaves {
		s.AddSlave(slave.id, slave.total)
	}

	paths := sc.weightPaths()
	for _, path := range paths {
		s.UpdateWeight(path, sc.Weights[path])
	}

	for _, client := range sc.Clients {
		s.Add(client.Path)
		if client.Active {
			s.Activate(client.Path)
		}
	}
	for _, a := range p.allocations {
		s.Allocated(a.client, a.slave, a.rs)
	}

	log.WithFields(logrus.Fields{
		"slaves":  len(p.slaves),
		"clients": len(sc.Clients),
		"weights": len(paths),
	}).Debug("scenario applied")
	return nil
}
