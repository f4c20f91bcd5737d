// Package fallback opens files with a window-agnostic editor command when no
// registered window can take the request.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/codefionn/vo/internal/config"
	"github.com/codefionn/vo/internal/logger"
)

// ErrNoCommand is returned when no fallback command is configured.
var ErrNoCommand = errors.New("no fallback command configured")

// Target is what the fallback should open.
type Target struct {
	// Workspace is passed first so the editor opens or reuses a window for
	// it. Empty means the editor's own choice.
	Workspace string
	File      string
	Line      int
}

// Opener opens a target outside of any registered window.
type Opener interface {
	Open(ctx context.Context, t Target) error
}

// RunFunc executes argv. Tests replace it.
type RunFunc func(ctx context.Context, argv []string) error

// Command runs an external editor command such as `code`.
type Command struct {
	name     string
	args     []string
	gotoFlag string
	run      RunFunc
	log      *logger.Logger
}

// New builds a Command from configuration.
func New(cfg config.FallbackConfig) *Command {
	return &Command{
		name:     cfg.Command,
		args:     append([]string(nil), cfg.Args...),
		gotoFlag: cfg.GotoFlag,
		run:      runAttached,
		log:      logger.Global().WithPrefix("fallback"),
	}
}

// WithRunner replaces how the command is executed.
func (c *Command) WithRunner(run RunFunc) *Command {
	c.run = run
	return c
}

// Argv returns the command line for t:
// `<command> [args...] [workspace] <file>` or, with a line,
// `<command> [args...] [workspace] <goto flag> <file>:<line>`.
func (c *Command) Argv(t Target) []string {
	argv := make([]string, 0, len(c.args)+4)
	argv = append(argv, c.name)
	argv = append(argv, c.args...)
	if t.Workspace != "" {
		argv = append(argv, t.Workspace)
	}

	if t.Line > 0 {
		if c.gotoFlag != "" {
			argv = append(argv, c.gotoFlag)
		}
		argv = append(argv, t.File+":"+strconv.Itoa(t.Line))
	} else {
		argv = append(argv, t.File)
	}
	return argv
}

// Open runs the command and waits for it to exit.
func (c *Command) Open(ctx context.Context, t Target) error {
	if c.name == "" {
		return ErrNoCommand
	}

	argv := c.Argv(t)
	c.log.Info("fallback open: %v", argv)
	if err := c.run(ctx, argv); err != nil {
		return fmt.Errorf("fallback command %s failed: %w", c.name, err)
	}
	return nil
}

func runAttached(ctx context.Context, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
