// Package vcs finds the version-control root that encloses a path.
// It is used to decide which project a file opened from the terminal
// belongs to.
package vcs

import (
	"context"
	"errors"
)

// ErrNotRepository is returned when no repository encloses the directory.
var ErrNotRepository = errors.New("not in a repository")

// Finder locates repository roots.
type Finder interface {
	// RepositoryRoot returns the root directory of the repository that
	// contains dir, or an error wrapping ErrNotRepository.
	RepositoryRoot(ctx context.Context, dir string) (string, error)
}

// ForMode returns the finder for a configured detection mode: "git" shells
// out to git, anything else walks up looking for markers.
func ForMode(mode string) Finder {
	if mode == "git" {
		return NewGit()
	}
	return NewMarkerFinder()
}
