package main

import (
	"fmt"
	"io"
	"sort"

	"finledger/internal/integrity"

	"github.com/spf13/cobra"
)

var (
	checkFix    bool
	checkStrict bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the data integrity check",
	Long: `Scans every table for missing required fields, duplicate transactions,
orphaned references and advisory rule violations. The scan never writes.
With --fix, missing required fields are filled with safe defaults and the
check is run again.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkFix, "fix", false, "Fill missing required fields, then re-check")
	checkCmd.Flags().BoolVar(&checkStrict, "strict", false, "Exit non-zero when issues remain")
	rootCmd.AddCommand(checkCmd)
}

type checkResponse struct {
	Fix    *integrity.FixResult `json:"fix,omitempty"`
	Report *integrity.Report    `json:"report"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	env, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	checker := integrity.NewChecker(env.store, env.logger)
	var resp checkResponse
	if checkFix {
		if resp.Fix, err = checker.PerformAutoFix(ctx); err != nil {
			return err
		}
	}
	if resp.Report, err = checker.PerformIntegrityCheck(ctx); err != nil {
		return err
	}

	if err := render(resp, func(w io.Writer) { printCheck(w, resp) }); err != nil {
		return err
	}
	if checkStrict && !resp.Report.Clean() {
		return fmt.Errorf("integrity check found %d issue(s)", resp.Report.IssueCount())
	}
	return nil
}

func printCheck(w io.Writer, resp checkResponse) {
	if resp.Fix != nil {
		fmt.Fprintf(w, "Fixed %d record(s)\n", resp.Fix.Fixed)
		tables := make([]string, 0, len(resp.Fix.ByTable))
		for t := range resp.Fix.ByTable {
			tables = append(tables, t)
		}
		sort.Strings(tables)
		for _, t := range tables {
			fmt.Fprintf(w, "  %-20s %d\n", t, resp.Fix.ByTable[t])
		}
		for _, e := range resp.Fix.Errors {
			fmt.Fprintf(w, "  ! %s\n", e)
		}
		fmt.Fprintln(w)
	}

	r := resp.Report
	fmt.Fprintf(w, "Checked %d records in %d tables\n", r.RecordsChecked, r.TablesChecked)
	if r.Clean() {
		fmt.Fprintln(w, "No issues found.")
		return
	}
	for _, m := range r.MissingRequiredFields {
		fmt.Fprintf(w, "  missing   %s/%s: %s\n", m.Table, m.RecordID, m.Field)
	}
	for _, d := range r.DuplicateRecords {
		fmt.Fprintf(w, "  duplicate %s %s %s: %v\n", d.Date, d.Amount, d.Category, d.RecordIDs)
	}
	for _, o := range r.OrphanedRecords {
		fmt.Fprintf(w, "  orphan    %s/%s.%s -> %s/%s\n", o.Table, o.RecordID, o.Field, o.References, o.MissingID)
	}
	for _, v := range r.InvariantViolations {
		fmt.Fprintf(w, "  rule      %s/%s [%s] %s\n", v.Table, v.RecordID, v.Rule, v.Message)
	}
	fmt.Fprintf(w, "%d issue(s)\n", r.IssueCount())
}
