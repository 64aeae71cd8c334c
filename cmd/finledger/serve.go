package main

import (
	"fmt"
	"time"

	"finledger/internal/retention"

	"github.com/spf13/cobra"
)

var (
	serveSchedule string
	serveRunNow   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scheduled retention in the foreground",
	Long: `Keeps the store open and runs the retention policies on the configured
cron schedule until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveSchedule, "schedule", "", "Cron schedule (default: retention.schedule from config)")
	serveCmd.Flags().BoolVar(&serveRunNow, "run-now", false, "Run retention once before waiting for the schedule")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	env, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	engine, err := newRetentionEngine(env)
	if err != nil {
		return err
	}
	spec := serveSchedule
	if spec == "" {
		spec = env.cfg.Retention.Schedule
	}
	sched, err := retention.NewScheduler(engine, spec, env.logger)
	if err != nil {
		return err
	}

	if serveRunNow {
		sched.RunNow(ctx)
	}
	if err := sched.Start(); err != nil {
		return err
	}
	env.logger.Info("Retention scheduler started", "schedule", spec, "policies", len(engine.Policies()))
	fmt.Printf("Retention scheduled with %q\n", spec)
	fmt.Println("Press Ctrl+C to stop")

	<-ctx.Done()
	env.logger.Info("Received shutdown signal")

	if err := sched.Stop(30 * time.Second); err != nil {
		env.logger.Error("Retention run did not finish", "error", err)
		return err
	}
	runs, _ := sched.Runs()
	env.logger.Info("Retention scheduler stopped", "runs", runs)
	return nil
}
