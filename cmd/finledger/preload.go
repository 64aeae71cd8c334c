package main

import (
	"fmt"
	"io"
	"os"

	ferrors "finledger/internal/errors"
	"finledger/internal/preload"

	"github.com/spf13/cobra"
)

var preloadDryRun bool

var preloadCmd = &cobra.Command{
	Use:   "preload <file>",
	Short: "Import an initial financial snapshot",
	Long: `Reads a snapshot document (profile, expenses, income, vehicles, mutual funds,
loans and credit cards) and writes it in one transaction. Every validation
problem is reported before anything is written.`,
	Args: cobra.ExactArgs(1),
	RunE: runPreload,
}

func init() {
	preloadCmd.Flags().BoolVar(&preloadDryRun, "dry-run", false, "Validate the document without writing")
	rootCmd.AddCommand(preloadCmd)
}

func runPreload(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	doc, err := preload.Parse(f)
	_ = f.Close()
	if err != nil {
		return err
	}

	if preloadDryRun {
		issues := preload.Validate(doc)
		if err := render(map[string]any{"valid": len(issues) == 0, "issues": issues}, func(w io.Writer) {
			printIssues(w, issues)
		}); err != nil {
			return err
		}
		if len(issues) > 0 {
			return ferrors.Validation("invalid preload document", issues)
		}
		return nil
	}

	env, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer env.Close()

	res, err := preload.Apply(cmd.Context(), env.store, doc)
	if err != nil {
		if issues := ferrors.Issues(err); len(issues) > 0 {
			printIssues(os.Stderr, issues)
		}
		return err
	}
	env.logger.Info("Snapshot preloaded", "records", res.Total())
	return render(res, func(w io.Writer) {
		fmt.Fprintf(w, "Preloaded %d records\n", res.Total())
		fmt.Fprintf(w, "  expenses     %d\n", res.Expenses)
		fmt.Fprintf(w, "  income       %d\n", res.Income)
		fmt.Fprintf(w, "  vehicles     %d\n", res.Vehicles)
		fmt.Fprintf(w, "  investments  %d\n", res.Investments)
		fmt.Fprintf(w, "  loans        %d\n", res.Loans)
		fmt.Fprintf(w, "  credit cards %d\n", res.CreditCards)
		if res.ProfileUpdated {
			fmt.Fprintln(w, "  profile updated")
		}
	})
}

func printIssues(w io.Writer, issues []ferrors.ValidationIssue) {
	if len(issues) == 0 {
		fmt.Fprintln(w, "Document is valid.")
		return
	}
	for _, is := range issues {
		fmt.Fprintf(w, "  %s: %s\n", is.Path, is.Message)
	}
}
