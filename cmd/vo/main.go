// Command vo opens files from the terminal in the editor window that owns
// them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configFile string
	verbose    bool

	lineFlag int
	zenFlag  bool
	rawFlag  bool
)

// rootCmd opens a file when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "vo [flags] <file>",
	Short: "Open a file in the editor window that owns it",
	Long: `vo routes a file to the running editor window whose workspace contains it.

Windows advertise themselves in a shared registry. vo checks that a window is
alive and still serves the expected workspace before using it; stale entries
are removed. When no window qualifies the file is opened with the configured
fallback command.

A trailing :LINE on the file (main.go:42) is accepted in place of --line.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runOpen,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file (JSON, default from VO_CONFIG or the user config dir)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Mirror log output to stderr")

	rootCmd.Flags().IntVarP(&lineFlag, "line", "l", 0, "Line to jump to")
	rootCmd.Flags().BoolVar(&zenFlag, "zen", false, "Open in distraction-free mode")
	rootCmd.Flags().BoolVar(&rawFlag, "raw", false, "Skip file-type handlers and open in the editor itself")
}
