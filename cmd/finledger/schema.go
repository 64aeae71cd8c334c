package main

import (
	"os"

	"finledger/internal/schema"

	"github.com/spf13/cobra"
)

var schemaAs string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the latest schema declaration",
	Long:  "Prints every table of the latest schema version with its primary key, indexes and date field.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := schema.Default().Describe().Render(schemaAs)
		if err != nil {
			return err
		}
		if _, err := os.Stdout.Write(data); err != nil {
			return err
		}
		if len(data) > 0 && data[len(data)-1] != '\n' {
			_, err = os.Stdout.WriteString("\n")
		}
		return err
	},
}

func init() {
	schemaCmd.Flags().StringVar(&schemaAs, "as", "json", "Encoding: json, yaml or toml")
	rootCmd.AddCommand(schemaCmd)
}
