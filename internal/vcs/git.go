package vcs

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Git asks the git binary for the repository root.
type Git struct {
	// Binary defaults to "git" on PATH.
	Binary string
}

// NewGit returns a Git finder using git from PATH.
func NewGit() *Git {
	return &Git{Binary: "git"}
}

// RepositoryRoot implements Finder.
func (g *Git) RepositoryRoot(ctx context.Context, dir string) (string, error) {
	bin := g.Binary
	if bin == "" {
		bin = "git"
	}

	cmd := exec.CommandContext(ctx, bin, "-C", dir, "rev-parse", "--show-toplevel")
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %s: %v", ErrNotRepository, dir, err)
	}

	root := strings.TrimSpace(string(output))
	if root == "" {
		return "", fmt.Errorf("%w: %s", ErrNotRepository, dir)
	}
	return filepath.FromSlash(root), nil
}
