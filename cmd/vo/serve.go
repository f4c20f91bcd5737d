package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/codefionn/vo/internal/logger"
	"github.com/codefionn/vo/internal/window"
	"github.com/spf13/cobra"
)

var serveWorkspace string

// serveCmd runs a window endpoint around a command-driven editor.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a window endpoint for a workspace",
	Long: `Run a window endpoint that registers the workspace and opens files with
serve.open_command from the configuration. Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		defer logger.Global().Close()

		ws := serveWorkspace
		if ws == "" {
			if ws, err = os.Getwd(); err != nil {
				return err
			}
		}
		if info, err := os.Stat(ws); err != nil || !info.IsDir() {
			return fmt.Errorf("workspace %s is not a directory", ws)
		}

		srv, err := window.New(window.Options{
			Workspace: ws,
			PortStart: cfg.PortRangeStart,
			PortEnd:   cfg.PortRangeEnd,
			Editor:    window.NewCommandEditor(cfg.Serve),
			Handlers:  window.HandlersFromConfig(cfg.Handlers),
			Registry:  newStore(cfg),
			Log:       logger.Global().WithPrefix("window"),
		})
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if err := srv.Start(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "serving %s on %s\n", srv.Workspace(), srv.Endpoint())

		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveWorkspace, "workspace", "", "Workspace directory (default: current directory)")
}
