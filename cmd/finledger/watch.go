package main

import (
	"fmt"
	"os"
	"time"

	"finledger/internal/ledger"

	"github.com/spf13/cobra"
)

var watchFilters filterFlags

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print matching transactions now and after every change",
	Long: `Subscribes to a live transaction query and reprints the result whenever a
write touches the transactions table, until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchFilters.register(watchCmd)
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	env, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()
	svc, closeBackend, err := env.ledger(ctx)
	if err != nil {
		return err
	}
	defer closeBackend()

	format, err := outputFormat()
	if err != nil {
		return err
	}

	sub, err := svc.Watch(watchFilters.filter(), func(r ledger.WatchResult) {
		if r.Err != nil {
			env.logger.Error("Live query failed", "error", r.Err)
			return
		}
		if format == FormatJSON {
			_ = writeJSON(os.Stdout, map[string]any{"state": r.State, "transactions": r.Transactions})
			return
		}
		fmt.Printf("-- %s (%s, %d transactions)\n", time.Now().Format(time.TimeOnly), r.State, len(r.Transactions))
		printTxns(os.Stdout, r.Transactions)
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	<-ctx.Done()
	return nil
}
