package main

import (
	"fmt"
	"os"

	"github.com/codefionn/vo/internal/logger"
	"github.com/spf13/cobra"
)

var filesCmd = &cobra.Command{
	Use:   "files [dir]",
	Short: "List files open in the window that owns dir",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		defer logger.Global().Close()

		dir := "."
		if len(args) == 1 {
			dir = args[0]
		} else if wd, err := os.Getwd(); err == nil {
			dir = wd
		}

		_, files, err := newResolver(cfg).OpenFiles(cmd.Context(), dir)
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Fprintln(cmd.OutOrStdout(), f)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(filesCmd)
}
