package main

import (
	"fmt"
	"io"
	"os"

	"finledger/internal/csvexport"

	"github.com/spf13/cobra"
)

var csvFilters filterFlags

var csvCmd = &cobra.Command{
	Use:   "csv [path]",
	Short: "Export transactions as CSV",
	Long:  "Writes the matching transactions as CSV to path, or to stdout when no path is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCSV,
}

func init() {
	csvFilters.register(csvCmd)
	rootCmd.AddCommand(csvCmd)
}

func runCSV(cmd *cobra.Command, args []string) error {
	env, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer env.Close()
	svc, closeBackend, err := env.ledger(cmd.Context())
	if err != nil {
		return err
	}
	defer closeBackend()

	if len(args) == 0 {
		_, err := csvexport.Export(cmd.Context(), os.Stdout, svc, csvFilters.filter())
		return err
	}

	n, err := csvexport.ExportFile(cmd.Context(), args[0], svc, csvFilters.filter())
	if err != nil {
		return err
	}
	env.logger.Info("CSV written", "path", args[0], "rows", n)
	return render(map[string]any{"path": args[0], "rows": n}, func(w io.Writer) {
		fmt.Fprintf(w, "Wrote %d transactions to %s\n", n, args[0])
	})
}
