// Command sortsim replays a cluster scenario against the random sorter and
// reports how the clients were ordered.
//
// Usage:
//
//	sortsim run --scenario cluster.yaml [--rounds 1000] [--seed 42]
//	sortsim validate --scenario cluster.yaml
//
// Flags default to the SORTSIM_SCENARIO, SORTSIM_ROUNDS, SORTSIM_SEED and
// SORTSIM_LOG_LEVEL environment variables. Rounds and seed given on the
// command line or in the environment override the scenario file.
package main

import (
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dreamware/fairshare/internal/scenario"
	"github.com/dreamware/fairshare/internal/sorter"
)

// defaultRounds is used when neither the scenario nor the caller set rounds.
const defaultRounds = 1000

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "sortsim",
		Short: "Simulate the random sorter on a cluster scenario",
		Long: `sortsim loads a YAML description of a cluster (slaves, clients, their
allocations and weights), applies it to a random sorter and sorts the clients
repeatedly to show how often each one would receive resource offers first.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			logrus.SetOutput(cmd.ErrOrStderr())
			logrus.SetLevel(level)
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", getenv("SORTSIM_LOG_LEVEL", "warn"), "log level (debug, info, warn, error)")

	cmd.AddCommand(newRunCommand(), newValidateCommand())
	return cmd
}

type runOptions struct {
	scenario  string
	rounds    int
	roundsSet bool
	seed      uint64
	seedSet   bool
}

func newRunCommand() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Apply a scenario and report the sort order statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.fromEnv(cmd); err != nil {
				return err
			}
			sc, err := loadScenario(opts.scenario)
			if err != nil {
				return err
			}
			if opts.roundsSet {
				sc.Rounds = opts.rounds
			}
			if opts.seedSet {
				sc.Seed = opts.seed
			}
			return run(cmd.OutOrStdout(), sc)
		},
	}

	cmd.Flags().StringVar(&opts.scenario, "scenario", getenv("SORTSIM_SCENARIO", ""), "scenario file")
	cmd.Flags().IntVar(&opts.rounds, "rounds", 0, "number of sorts to run (default from scenario, env SORTSIM_ROUNDS)")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "random seed (default from scenario, env SORTSIM_SEED)")
	return cmd
}

// fromEnv fills rounds and seed from the environment unless they were given
// as flags, and records which of them override the scenario.
func (o *runOptions) fromEnv(cmd *cobra.Command) error {
	o.roundsSet = cmd.Flags().Changed("rounds")
	if v := os.Getenv("SORTSIM_ROUNDS"); v != "" && !o.roundsSet {
		rounds, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SORTSIM_ROUNDS: %w", err)
		}
		o.rounds, o.roundsSet = rounds, true
	}

	o.seedSet = cmd.Flags().Changed("seed")
	if v := os.Getenv("SORTSIM_SEED"); v != "" && !o.seedSet {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("SORTSIM_SEED: %w", err)
		}
		o.seed, o.seedSet = seed, true
	}
	return nil
}

func newValidateCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a scenario file without running it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := loadScenario(file)
			if err != nil {
				return err
			}
			if err := sc.Validate(); err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d slaves, %d clients)\n", file, len(sc.Slaves), len(sc.Clients))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "scenario", getenv("SORTSIM_SCENARIO", ""), "scenario file")
	return cmd
}

func loadScenario(file string) (*scenario.Scenario, error) {
	if file == "" {
		return nil, errors.New("no scenario: pass --scenario or set SORTSIM_SCENARIO")
	}
	return scenario.LoadFile(file)
}

// run applies sc to a fresh sorter seeded from the scenario and writes the
// simulation report to w.
func run(w io.Writer, sc *scenario.Scenario) error {
	rounds := sc.Rounds
	if rounds == 0 {
		rounds = defaultRounds
	}

	s := sorter.NewRandomSorter(rand.New(rand.NewPCG(sc.Seed, sc.Seed)))
	if err := sc.Apply(s); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"clients": s.Count(),
		"rounds":  rounds,
		"seed":    sc.Seed,
	}).Info("simulating")
	report := scenario.Simulate(s, rounds)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CLIENT\tFIRST\tSHARE\tMEAN RANK")
	for _, c := range report.Clients {
		fmt.Fprintf(tw, "%s\t%d\t%.3f\t%.2f\n", c.Path, c.First, c.FirstShare(rounds), c.MeanRank)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nrounds: %d\n", rounds)
	fmt.Fprintf(w, "total: %s\n", s.TotalScalarQuantities())
	fmt.Fprintf(w, "allocated: %s\n", s.TotalAllocationScalarQuantities())
	return nil
}

// getenv retrieves an environment variable with a fallback default value.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
