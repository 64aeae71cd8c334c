package main

import (
	"finledger/internal/version"

	"github.com/spf13/cobra"
)

var (
	// homeFlag is the CLI --home flag value
	homeFlag    string
	verboseFlag int
	quietFlag   bool
	formatFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "finledger",
	Short: "finledger - local-first personal finance ledger",
	Long: `finledger keeps a household's transactions, assets, liabilities and settings
in an embedded store under the data directory, with schema migrations, integrity
checks, scheduled retention and portable JSON backups.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("finledger version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&homeFlag, "home", "",
		"Data directory (default: $FINLEDGER_HOME or ~/.finledger)")
	rootCmd.PersistentFlags().CountVarP(&verboseFlag, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress all log output")
	rootCmd.PersistentFlags().StringVar(&formatFlag, "format", string(FormatHuman), "Output format (human, json)")
}
