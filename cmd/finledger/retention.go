package main

import (
	"fmt"
	"io"

	"finledger/internal/retention"

	"github.com/spf13/cobra"
)

var retentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Inspect and apply data retention policies",
}

var retentionRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Delete records older than each enabled policy's window",
	Args:  cobra.NoArgs,
	RunE:  runRetentionRun,
}

var retentionStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show how many records each enabled policy would delete",
	Args:  cobra.NoArgs,
	RunE:  runRetentionStats,
}

func init() {
	retentionCmd.AddCommand(retentionRunCmd)
	retentionCmd.AddCommand(retentionStatsCmd)
	rootCmd.AddCommand(retentionCmd)
}

// newRetentionEngine resolves the policies from config or retention.toml.
func newRetentionEngine(env *appEnv) (*retention.Engine, error) {
	policies, err := retention.Resolve(env.cfg.Retention, env.home)
	if err != nil {
		return nil, err
	}
	if err := retention.Validate(policies, env.store.Registry()); err != nil {
		return nil, err
	}
	return retention.NewEngine(env.store, policies, env.logger), nil
}

func runRetentionRun(cmd *cobra.Command, args []string) error {
	env, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer env.Close()

	engine, err := newRetentionEngine(env)
	if err != nil {
		return err
	}
	results := engine.Execute(cmd.Context())

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	if err := render(results, func(w io.Writer) {
		if len(results) == 0 {
			fmt.Fprintln(w, "No enabled retention policies.")
		}
		for _, r := range results {
			if r.Error != "" {
				fmt.Fprintf(w, "  %-20s FAILED: %s\n", r.Table, r.Error)
				continue
			}
			fmt.Fprintf(w, "  %-20s deleted %d (before %s)\n", r.Table, r.Deleted, r.Cutoff)
		}
	}); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("retention failed for %d table(s)", failed)
	}
	return nil
}

func runRetentionStats(cmd *cobra.Command, args []string) error {
	env, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer env.Close()

	engine, err := newRetentionEngine(env)
	if err != nil {
		return err
	}
	stats, err := engine.Stats(cmd.Context())
	if err != nil {
		return err
	}
	return render(stats, func(w io.Writer) {
		if len(stats) == 0 {
			fmt.Fprintln(w, "No enabled retention policies.")
		}
		for _, s := range stats {
			fmt.Fprintf(w, "  %-20s %d of %d older than %s (%d months)\n",
				s.Table, s.EligibleForDeletion, s.TotalRecords, s.Cutoff, s.RetentionMonths)
		}
	})
}
