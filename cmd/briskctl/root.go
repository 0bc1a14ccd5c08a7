// Package briskctl is the command-line surface over the download engine.
// It has no separate server/TUI process to talk to (that transport is out
// of scope here, see SPEC_FULL.md §1); each invocation opens the state
// store directly, so long-running operations like fetch hold the store for
// their own process lifetime. Grounded on the teacher's cmd package
// (cobra command registration, gofrs/flock single-instance lock, partial-
// ID resolution, tabwriter listing), adapted to a single-process model.
package briskctl

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/briskdl/engine/internal/applog"
	"github.com/briskdl/engine/internal/config"
)

var rootCmd = &cobra.Command{
	Use:     "briskctl",
	Short:   "A parallel, resumable HTTP download engine",
	Long:    `briskctl splits HTTP downloads across many byte-range connections and can pause, resume, and survive a restart mid-transfer.`,
	Version: "dev",
}

// Execute runs the CLI; it's the single entry point called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(func() {
		if err := config.EnsureDirs(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to set up application directories: %v\n", err)
			os.Exit(1)
		}
		applog.CleanupLogs(20)
	})
}
