package main

import (
	"fmt"

	"github.com/codefionn/vo/internal/logger"
	"github.com/spf13/cobra"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove registry entries whose window is gone or moved",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		defer logger.Global().Close()

		removed, err := newResolver(cfg).Prune(cmd.Context())
		for _, e := range removed {
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\t%s\n", e.Workspace, e.Endpoint)
		}
		if err != nil {
			return err
		}
		if len(removed) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "registry is clean")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pruneCmd)
}
