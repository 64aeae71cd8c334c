package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	ferrors "finledger/internal/errors"

	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is fine; variables already set in the environment win.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		for _, fix := range ferrors.GetSuggestedFixes(ferrors.CodeOf(err)) {
			switch fix.Type {
			case ferrors.RunCommand:
				fmt.Fprintf(os.Stderr, "  hint: %s\n        $ %s\n", fix.Description, fix.Command)
			case ferrors.EditConfig:
				fmt.Fprintf(os.Stderr, "  hint: %s (%s in config.json)\n", fix.Description, fix.Key)
			}
		}
		os.Exit(1)
	}
}
