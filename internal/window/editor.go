package window

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/codefionn/vo/internal/config"
)

// Modes are presentation changes requested alongside an open.
type Modes struct {
	DistractionFree bool
}

// Editor is the seam to the editor a window endpoint fronts.
// Implementations must be safe for concurrent use.
type Editor interface {
	// Open shows file in the editor, at line when line > 0.
	Open(ctx context.Context, file string, line int) error
	// ApplyModes is called before every open.
	ApplyModes(ctx context.Context, m Modes) error
	// OpenFiles lists the absolute paths currently open.
	OpenFiles(ctx context.Context) ([]string, error)
}

// StartFunc launches argv without waiting for it to exit.
type StartFunc func(argv []string) error

func startDetached(argv []string) error {
	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// expandArgv substitutes {file} and {line} in tmpl. When no argument names
// {file} and file is set, the file is appended.
func expandArgv(tmpl []string, file string, line int) []string {
	lineStr := "1"
	if line > 0 {
		lineStr = strconv.Itoa(line)
	}

	argv := make([]string, 0, len(tmpl)+1)
	sawFile := false
	for _, arg := range tmpl {
		if strings.Contains(arg, "{file}") {
			sawFile = true
		}
		arg = strings.ReplaceAll(arg, "{file}", file)
		arg = strings.ReplaceAll(arg, "{line}", lineStr)
		argv = append(argv, arg)
	}
	if !sawFile && file != "" {
		argv = append(argv, file)
	}
	return argv
}

// CommandEditor opens files by running a configured command and remembers
// what it opened. Without an open command it only records files.
type CommandEditor struct {
	openCommand []string
	zenCommand  []string
	start       StartFunc

	mu    sync.Mutex
	files []string
	zen   bool
}

// NewCommandEditor builds an editor from the serve configuration.
func NewCommandEditor(cfg config.ServeConfig) *CommandEditor {
	return &CommandEditor{
		openCommand: append([]string(nil), cfg.OpenCommand...),
		zenCommand:  append([]string(nil), cfg.ZenCommand...),
		start:       startDetached,
	}
}

// WithStarter replaces how commands are launched.
func (e *CommandEditor) WithStarter(start StartFunc) *CommandEditor {
	e.start = start
	return e
}

// Open implements Editor.
func (e *CommandEditor) Open(ctx context.Context, file string, line int) error {
	if len(e.openCommand) > 0 {
		if err := e.start(expandArgv(e.openCommand, file, line)); err != nil {
			return fmt.Errorf("open command failed: %w", err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, f := range e.files {
		if f == file {
			return nil
		}
	}
	e.files = append(e.files, file)
	return nil
}

// ApplyModes implements Editor. The zen command runs once when
// distraction-free mode is first requested.
func (e *CommandEditor) ApplyModes(ctx context.Context, m Modes) error {
	if !m.DistractionFree {
		return nil
	}

	e.mu.Lock()
	already := e.zen
	e.zen = true
	e.mu.Unlock()

	if already || len(e.zenCommand) == 0 {
		return nil
	}
	if err := e.start(expandArgv(e.zenCommand, "", 0)); err != nil {
		e.mu.Lock()
		e.zen = false
		e.mu.Unlock()
		return fmt.Errorf("zen command failed: %w", err)
	}
	return nil
}

// OpenFiles implements Editor.
func (e *CommandEditor) OpenFiles(ctx context.Context) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string{}, e.files...), nil
}
