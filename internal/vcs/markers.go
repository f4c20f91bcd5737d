package vcs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultMarkers are the entries whose presence marks a repository root.
var DefaultMarkers = []string{".git", ".hg", ".svn", ".jj"}

// MarkerFinder walks up from a directory until it finds one containing a
// repository marker. It needs no external tools.
type MarkerFinder struct {
	Markers []string
}

// NewMarkerFinder returns a finder using DefaultMarkers.
func NewMarkerFinder() *MarkerFinder {
	return &MarkerFinder{Markers: DefaultMarkers}
}

// RepositoryRoot implements Finder. The nearest enclosing root wins, so a
// nested repository shadows its parent.
func (m *MarkerFinder) RepositoryRoot(ctx context.Context, dir string) (string, error) {
	markers := m.Markers
	if len(markers) == 0 {
		markers = DefaultMarkers
	}

	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		for _, marker := range markers {
			// .git is a file in worktrees and submodules, so any entry counts.
			if _, err := os.Lstat(filepath.Join(dir, marker)); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w: %s", ErrNotRepository, dir)
		}
		dir = parent
	}
}
