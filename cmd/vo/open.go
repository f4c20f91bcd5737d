package main

import (
	"fmt"

	"github.com/codefionn/vo/internal/logger"
	"github.com/codefionn/vo/internal/resolver"
	"github.com/spf13/cobra"
)

func runOpen(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	defer logger.Global().Close()

	file, line := SplitLineSuffix(args[0])
	if lineFlag < 0 {
		return fmt.Errorf("--line must be positive, got %d", lineFlag)
	}
	if lineFlag > 0 {
		line = lineFlag
	}

	out, err := newResolver(cfg).Open(cmd.Context(), resolver.Request{
		File:            file,
		Line:            line,
		DistractionFree: zenFlag,
		BypassHandlers:  rawFlag,
	})
	if err != nil {
		return err
	}

	if verbose {
		if out.FellBack {
			fmt.Fprintf(cmd.ErrOrStderr(), "opened %s with fallback (workspace %q, %s match)\n", out.File, out.Workspace, out.Match)
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "opened %s in %s via %s\n", out.File, out.Window.Endpoint, out.HandlerUsed)
		}
	}
	return nil
}
