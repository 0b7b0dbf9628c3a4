package scenario

import (
	"strings"

	"golang.org/x/exp/slices"

	"github.com/dreamware/fairshare/internal/sorter"
)

// ClientStats summarizes how a client fared over a simulation.
type ClientStats struct {
	Path     string
	First    int     // rounds in which the client came first
	Seen     int     // rounds in which the client was sorted at all
	MeanRank float64 // 1-based average position over the rounds it was seen
}

// FirstShare is the fraction of rounds the client came first.
func (c ClientStats) FirstShare(rounds int) float64 {
	if rounds == 0 {
		return 0
	}
	return float64(c.First) / float64(rounds)
}

// Report is the outcome of Simulate.
type Report struct {
	Rounds  int
	Clients []ClientStats // sorted by path
}

// Client returns the stats for path, or false if it was never sorted.
func (r *Report) Client(path string) (ClientStats, bool) {
	i, ok := slices.BinarySearchFunc(r.Clients, path, func(c ClientStats, p string) int {
		return strings.Compare(c.Path, p)
	})
	if !ok {
		return ClientStats{}, false
	}
	return r.Clients[i], true
}

// Simulate calls s.Sort rounds times and tallies where each client lands.
func Simulate(s sorter.Sorter, rounds int) *Report {
	stats := make(map[string]*ClientStats)
	rankSums := make(map[string]int)

	for round := 0; round < rounds; round++ {
		for rank, client := range s.Sort() {
			st, ok := stats[client]
			if !ok {
				st = &ClientStats{Path: client}
				stats[client] = st
			}
			st.Seen++
			rankSums[client] += rank + 1
			if rank == 0 {
				st.First++
			}
		}
	}

	report := &Report{Rounds: rounds, Clients: make([]ClientStats, 0, len(stats))}
	for _, st := range stats {
		st.MeanRank = float64(rankSums[st.Path]) / float64(st.Seen)
		report.Clients = append(report.Clients, *st)
	}
	slices.SortFunc(report.Clients, func(a, b ClientStats) int {
		return strings.Compare(a.Path, b.Path)
	})
	return report
}
