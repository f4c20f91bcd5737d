package window

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/codefionn/vo/internal/config"
	"github.com/codefionn/vo/internal/protocol"
)

// Handler takes over opening files of particular types.
type Handler interface {
	Name() string
	Open(ctx context.Context, editor Editor, req protocol.OpenRequest) error
}

// FileTypeTag returns the lookup key for file: its lower-cased extension
// including the dot, or the lower-cased base name when it has none.
// Dotfiles such as ".bashrc" are keyed by name.
func FileTypeTag(file string) string {
	base := filepath.Base(file)
	ext := filepath.Ext(base)
	if ext == "" || ext == base {
		return strings.ToLower(base)
	}
	return strings.ToLower(ext)
}

// HandlerTable maps file-type tags to handlers. The zero value is unusable;
// use NewHandlerTable.
type HandlerTable struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewHandlerTable returns an empty table. Every lookup misses, so every file
// goes to the editor's own open.
func NewHandlerTable() *HandlerTable {
	return &HandlerTable{handlers: make(map[string]Handler)}
}

// Register binds h to each tag, replacing earlier bindings.
func (t *HandlerTable) Register(h Handler, tags ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" {
			t.handlers[tag] = h
		}
	}
}

// Lookup returns the handler registered for file's type tag.
func (t *HandlerTable) Lookup(file string) (Handler, bool) {
	if t == nil {
		return nil, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.handlers[FileTypeTag(file)]
	return h, ok
}

// Len returns the number of bound tags.
func (t *HandlerTable) Len() int {
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.handlers)
}

// CommandHandler opens files by launching an external program, such as an
// image viewer, instead of the editor.
type CommandHandler struct {
	name  string
	argv  []string
	start StartFunc
}

// NewCommandHandler returns a handler running argv. {file} and {line} are
// substituted; without {file} the path is appended.
func NewCommandHandler(name string, argv []string) *CommandHandler {
	return &CommandHandler{name: name, argv: append([]string(nil), argv...), start: startDetached}
}

// WithStarter replaces how the command is launched.
func (h *CommandHandler) WithStarter(start StartFunc) *CommandHandler {
	h.start = start
	return h
}

func (h *CommandHandler) Name() string { return h.name }

func (h *CommandHandler) Open(ctx context.Context, _ Editor, req protocol.OpenRequest) error {
	if len(h.argv) == 0 {
		return fmt.Errorf("handler %s has no command", h.name)
	}
	if err := h.start(expandArgv(h.argv, req.File, req.Line)); err != nil {
		return fmt.Errorf("handler %s: %w", h.name, err)
	}
	return nil
}

// HandlersFromConfig builds a table of command handlers.
func HandlersFromConfig(cfgs []config.HandlerConfig) *HandlerTable {
	table := NewHandlerTable()
	for _, c := range cfgs {
		table.Register(NewCommandHandler(c.Name, c.Command), c.Types...)
	}
	return table
}
