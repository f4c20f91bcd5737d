package vcs

import (
	"context"
	"fmt"
)

// Mock is a Finder for tests.
type Mock struct {
	// RepositoryRootFunc is called when set. Otherwise Mock reports no repository.
	RepositoryRootFunc func(ctx context.Context, dir string) (string, error)
}

// RepositoryRoot implements Finder.
func (m *Mock) RepositoryRoot(ctx context.Context, dir string) (string, error) {
	if m.RepositoryRootFunc != nil {
		return m.RepositoryRootFunc(ctx, dir)
	}
	return "", fmt.Errorf("%w: %s", ErrNotRepository, dir)
}
