package main

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"finledger/internal/backup"
	"finledger/internal/paths"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export [path]",
	Short: "Export every table to a JSON backup",
	Long: `Writes a backup document with every table. Without a path the file goes
to <home>/backups/, zstd-compressed when backup.compress is set. A path ending
in .zst is always compressed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Restore tables from a JSON backup",
	Long: `Validates the whole document first, then replaces the contents of every
table present in it within one transaction. Tables missing from the document
are left alone.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

// defaultBackupPath names a backup after the current time.
func defaultBackupPath(home string, compress bool, now time.Time) string {
	name := "finledger-" + now.UTC().Format("20060102-150405") + ".json"
	if compress {
		name += ".zst"
	}
	return filepath.Join(paths.BackupsDir(home), name)
}

func runExport(cmd *cobra.Command, args []string) error {
	env, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer env.Close()

	var path string
	if len(args) == 1 {
		path = args[0]
	} else {
		if _, err := paths.EnsureDir(paths.BackupsDir(env.home)); err != nil {
			return err
		}
		path = defaultBackupPath(env.home, env.cfg.Backup.Compress, time.Now())
	}

	doc, err := backup.NewService(env.store, env.logger).Export(cmd.Context())
	if err != nil {
		return err
	}
	if err := backup.WriteFile(path, doc); err != nil {
		return err
	}

	rows := 0
	for _, recs := range doc.Tables {
		rows += len(recs)
	}
	env.logger.Info("Backup written", "path", path, "rows", rows)

	resp := map[string]any{"path": path, "rows": rows, "compressed": backup.Compressed(path)}
	return render(resp, func(w io.Writer) {
		fmt.Fprintf(w, "Exported %d rows to %s\n", rows, path)
	})
}

func runImport(cmd *cobra.Command, args []string) error {
	doc, err := backup.ReadFile(args[0])
	if err != nil {
		return err
	}

	env, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer env.Close()

	res, err := backup.NewService(env.store, env.logger).Import(cmd.Context(), doc)
	if err != nil {
		return err
	}
	return render(res, func(w io.Writer) {
		fmt.Fprintf(w, "Imported %d rows into %d tables\n", res.Total, len(res.Counts))
	})
}
