package vcs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

func TestMarkerFinder(t *testing.T) {
	ctx := context.Background()
	root := tempDir(t)
	repo := filepath.Join(root, "repo")
	nested := filepath.Join(repo, "vendor", "lib")
	deep := filepath.Join(repo, "src", "pkg")

	require.NoError(t, os.MkdirAll(filepath.Join(repo, ".git"), 0o755))
	require.NoError(t, os.MkdirAll(deep, 0o755))
	require.NoError(t, os.MkdirAll(nested, 0o755))
	// Worktrees carry a .git file instead of a directory.
	require.NoError(t, os.WriteFile(filepath.Join(nested, ".git"), []byte("gitdir: elsewhere\n"), 0o644))

	finder := NewMarkerFinder()

	got, err := finder.RepositoryRoot(ctx, deep)
	require.NoError(t, err)
	assert.Equal(t, repo, got)

	got, err = finder.RepositoryRoot(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, repo, got)

	got, err = finder.RepositoryRoot(ctx, nested)
	require.NoError(t, err)
	assert.Equal(t, nested, got)
}

func TestMarkerFinder_OtherSystems(t *testing.T) {
	for _, marker := range []string{".hg", ".svn", ".jj"} {
		t.Run(marker, func(t *testing.T) {
			repo := tempDir(t)
			require.NoError(t, os.Mkdir(filepath.Join(repo, marker), 0o755))
			sub := filepath.Join(repo, "a")
			require.NoError(t, os.Mkdir(sub, 0o755))

			got, err := NewMarkerFinder().RepositoryRoot(context.Background(), sub)
			require.NoError(t, err)
			assert.Equal(t, repo, got)
		})
	}
}

func TestMarkerFinder_CustomMarkers(t *testing.T) {
	repo := tempDir(t)
	require.NoError(t, os.Mkdir(filepath.Join(repo, ".git"), 0o755))

	finder := &MarkerFinder{Markers: []string{".project-root"}}
	_, err := finder.RepositoryRoot(context.Background(), repo)
	if err == nil {
		t.Skip("temp dir is inside a directory carrying .project-root")
	}
	assert.ErrorIs(t, err, ErrNotRepository)
}

func TestMarkerFinder_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMarkerFinder().RepositoryRoot(ctx, tempDir(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGit_RepositoryRoot(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	ctx := context.Background()

	repo := tempDir(t)
	cmd := exec.Command("git", "init", "-q")
	cmd.Dir = repo
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))

	sub := filepath.Join(repo, "x", "y")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	got, err := NewGit().RepositoryRoot(ctx, sub)
	require.NoError(t, err)
	resolved, err := filepath.EvalSymlinks(got)
	require.NoError(t, err)
	assert.Equal(t, repo, resolved)
}

func TestGit_MissingBinary(t *testing.T) {
	g := &Git{Binary: filepath.Join(tempDir(t), "no-such-git")}
	_, err := g.RepositoryRoot(context.Background(), tempDir(t))
	assert.ErrorIs(t, err, ErrNotRepository)
}

func TestMock(t *testing.T) {
	var m Mock
	_, err := m.RepositoryRoot(context.Background(), "/x")
	assert.ErrorIs(t, err, ErrNotRepository)

	m.RepositoryRootFunc = func(ctx context.Context, dir string) (string, error) { return "/root", nil }
	got, err := m.RepositoryRoot(context.Background(), "/x")
	require.NoError(t, err)
	assert.Equal(t, "/root", got)
}

func TestForMode(t *testing.T) {
	assert.IsType(t, &Git{}, ForMode("git"))
	assert.IsType(t, &MarkerFinder{}, ForMode("markers"))
	assert.IsType(t, &MarkerFinder{}, ForMode(""))
}
