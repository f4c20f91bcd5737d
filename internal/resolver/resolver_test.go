package resolver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/codefionn/vo/internal/client"
	"github.com/codefionn/vo/internal/fallback"
	"github.com/codefionn/vo/internal/logger"
	"github.com/codefionn/vo/internal/protocol"
	"github.com/codefionn/vo/internal/registry"
	"github.com/codefionn/vo/internal/vcs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEndpoint struct {
	workspace string
	status    string
	openResp  *protocol.OpenResponse
	openErr   error
	files     []string

	mu     sync.Mutex
	opened []protocol.OpenRequest
}

func (e *fakeEndpoint) Identity(ctx context.Context) (*protocol.IdentityResponse, error) {
	status := e.status
	if status == "" {
		status = protocol.StatusOK
	}
	return &protocol.IdentityResponse{Status: status, Workspace: e.workspace, OwnerID: "1:fake"}, nil
}

func (e *fakeEndpoint) Open(ctx context.Context, req protocol.OpenRequest) (*protocol.OpenResponse, error) {
	e.mu.Lock()
	e.opened = append(e.opened, req)
	e.mu.Unlock()
	if e.openErr != nil {
		return nil, e.openErr
	}
	if e.openResp != nil {
		return e.openResp, nil
	}
	return &protocol.OpenResponse{Success: true, HandlerUsed: protocol.HandlerDefault}, nil
}

func (e *fakeEndpoint) Files(ctx context.Context) (*protocol.FilesResponse, error) {
	return &protocol.FilesResponse{Success: true, Files: e.files}, nil
}

func (e *fakeEndpoint) openCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.opened)
}

type deadEndpoint struct{ addr string }

func (d deadEndpoint) err() error {
	return fmt.Errorf("%w: %s: connection refused", client.ErrUnreachable, d.addr)
}

func (d deadEndpoint) Identity(context.Context) (*protocol.IdentityResponse, error) {
	return nil, d.err()
}

func (d deadEndpoint) Open(context.Context, protocol.OpenRequest) (*protocol.OpenResponse, error) {
	return nil, d.err()
}

func (d deadEndpoint) Files(context.Context) (*protocol.FilesResponse, error) {
	return nil, d.err()
}

// fakeNet maps endpoint addresses to fake windows; unknown addresses are dead.
type fakeNet struct {
	mu        sync.Mutex
	endpoints map[string]*fakeEndpoint
	dials     []string
}

func newFakeNet() *fakeNet {
	return &fakeNet{endpoints: make(map[string]*fakeEndpoint)}
}

func (n *fakeNet) add(addr string, ep *fakeEndpoint) *fakeEndpoint {
	n.endpoints[addr] = ep
	return ep
}

func (n *fakeNet) dial(addr string) Endpoint {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dials = append(n.dials, addr)
	if ep, ok := n.endpoints[addr]; ok {
		return ep
	}
	return deadEndpoint{addr: addr}
}

func (n *fakeNet) dialCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.dials)
}

type recordingFallback struct {
	targets []fallback.Target
	err     error
}

func (f *recordingFallback) Open(ctx context.Context, t fallback.Target) error {
	f.targets = append(f.targets, t)
	return f.err
}

type countingRegistry struct {
	*registry.FileStore
	reads, removes int
}

func (c *countingRegistry) Read() registry.Table {
	c.reads++
	return c.FileStore.Read()
}

func (c *countingRegistry) Remove(workspace, endpoint string) (bool, error) {
	c.removes++
	return c.FileStore.Remove(workspace, endpoint)
}

type fixture struct {
	store    *registry.FileStore
	net      *fakeNet
	fallback *recordingFallback
	finder   *vcs.Mock
	resolver *Resolver
}

func newFixture(t *testing.T, configured string) *fixture {
	t.Helper()
	f := &fixture{
		store:    registry.NewFileStore(filepath.Join(t.TempDir(), "vo", "windows.json")),
		net:      newFakeNet(),
		fallback: &recordingFallback{},
		finder:   &vcs.Mock{},
	}
	f.resolver = New(Options{
		Registry:          f.store,
		Finder:            f.finder,
		Fallback:          f.fallback,
		FallbackWorkspace: configured,
		Dial:              f.net.dial,
		Log:               logger.Nop(),
	})
	return f
}

func (f *fixture) register(t *testing.T, ws, endpoint string, lastActive int64) {
	t.Helper()
	// Write directly so several entries may share a workspace.
	table := f.store.Read()
	table.Windows = append(table.Windows, registry.Entry{
		Workspace:  ws,
		Endpoint:   endpoint,
		OwnerID:    "1:test",
		LastActive: time.Unix(lastActive, 0).UTC(),
	})
	require.NoError(t, f.store.Write(table))
}

func (f *fixture) projectRoot(root string) {
	f.finder.RepositoryRootFunc = func(ctx context.Context, dir string) (string, error) {
		if within(root, dir) {
			return root, nil
		}
		return "", vcs.ErrNotRepository
	}
}

// project creates a workspace directory holding one file.
func project(t *testing.T) (string, string) {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	file := filepath.Join(dir, "src", "main.go")
	require.NoError(t, os.MkdirAll(filepath.Dir(file), 0o755))
	require.NoError(t, os.WriteFile(file, []byte("package main\n"), 0o644))
	return dir, file
}

func TestOpen_DeadEntryPrunedThenFallback(t *testing.T) {
	f := newFixture(t, "")
	ws, file := project(t)
	f.projectRoot(ws)
	f.register(t, ws, "127.0.0.1:9001", 100)

	out, err := f.resolver.Open(context.Background(), Request{File: file})
	require.NoError(t, err)

	assert.True(t, out.FellBack)
	assert.Empty(t, f.store.Read().Windows)
	require.Len(t, out.Pruned, 1)
	assert.Equal(t, "127.0.0.1:9001", out.Pruned[0].Endpoint)
	assert.Equal(t, []fallback.Target{{Workspace: ws, File: file}}, f.fallback.targets)
}

func TestOpen_DispatchesToLiveEntryAndPrunesDeadOne(t *testing.T) {
	f := newFixture(t, "")
	ws, file := project(t)
	f.projectRoot(ws)
	f.register(t, ws, "127.0.0.1:9001", 200) // dead, newer
	f.register(t, ws, "127.0.0.1:9002", 100)
	live := f.net.add("127.0.0.1:9002", &fakeEndpoint{workspace: ws})

	out, err := f.resolver.Open(context.Background(), Request{File: file, Line: 42, DistractionFree: true})
	require.NoError(t, err)

	assert.False(t, out.FellBack)
	require.NotNil(t, out.Window)
	assert.Equal(t, "127.0.0.1:9002", out.Window.Endpoint)
	assert.Equal(t, protocol.HandlerDefault, out.HandlerUsed)
	assert.Equal(t, []protocol.OpenRequest{{File: file, Line: 42, DistractionFree: true}}, live.opened)
	assert.Empty(t, f.fallback.targets)

	table := f.store.Read()
	assert.False(t, table.Contains(ws, "127.0.0.1:9001"))
	assert.True(t, table.Contains(ws, "127.0.0.1:9002"))
}

func TestOpen_PrefersMostRecentlyActive(t *testing.T) {
	f := newFixture(t, "")
	ws, file := project(t)
	f.projectRoot(ws)
	f.register(t, ws, "127.0.0.1:9001", 100)
	f.register(t, ws, "127.0.0.1:9002", 200)
	older := f.net.add("127.0.0.1:9001", &fakeEndpoint{workspace: ws})
	newer := f.net.add("127.0.0.1:9002", &fakeEndpoint{workspace: ws})

	out, err := f.resolver.Open(context.Background(), Request{File: file})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9002", out.Window.Endpoint)
	assert.Equal(t, 1, newer.openCount())
	assert.Equal(t, 0, older.openCount())
	assert.Len(t, f.store.Read().Windows, 2)
}

func TestOpen_MissingInputTouchesNothing(t *testing.T) {
	f := newFixture(t, "")
	counting := &countingRegistry{FileStore: f.store}
	r := New(Options{Registry: counting, Finder: f.finder, Fallback: f.fallback, Dial: f.net.dial, Log: logger.Nop()})

	_, err := r.Open(context.Background(), Request{File: "/does/not/exist.txt"})
	assert.ErrorIs(t, err, ErrInputNotFound)
	assert.Contains(t, err.Error(), "/does/not/exist.txt")
	assert.Zero(t, counting.reads)
	assert.Zero(t, counting.removes)
	assert.Zero(t, f.net.dialCount())
	assert.Empty(t, f.fallback.targets)
}

func TestOpen_MismatchRemovesOnlyThatEntry(t *testing.T) {
	f := newFixture(t, "")
	ws, file := project(t)
	other, _ := project(t)
	f.projectRoot(ws)
	f.register(t, ws, "127.0.0.1:9001", 100)
	f.register(t, other, "127.0.0.1:9003", 100)
	// The window on 9001 now serves the other workspace.
	f.net.add("127.0.0.1:9001", &fakeEndpoint{workspace: other})
	f.net.add("127.0.0.1:9003", &fakeEndpoint{workspace: other})

	out, err := f.resolver.Open(context.Background(), Request{File: file})
	require.NoError(t, err)
	assert.True(t, out.FellBack)

	table := f.store.Read()
	assert.False(t, table.Contains(ws, "127.0.0.1:9001"))
	assert.True(t, table.Contains(other, "127.0.0.1:9003"))
}

func TestOpen_EndpointFailureIsPartialSuccess(t *testing.T) {
	f := newFixture(t, "")
	ws, file := project(t)
	f.projectRoot(ws)
	f.register(t, ws, "127.0.0.1:9001", 100)
	f.net.add("127.0.0.1:9001", &fakeEndpoint{
		workspace: ws,
		openResp:  &protocol.OpenResponse{Success: false, Error: "permission denied", HandlerUsed: "default"},
	})

	out, err := f.resolver.Open(context.Background(), Request{File: file})
	var epErr *EndpointError
	require.ErrorAs(t, err, &epErr)
	assert.Equal(t, "permission denied", epErr.Message)
	assert.Equal(t, "127.0.0.1:9001", epErr.Endpoint)
	assert.Contains(t, err.Error(), "permission denied")
	require.NotNil(t, out)
	assert.False(t, out.FellBack)
	assert.Empty(t, f.fallback.targets)
	assert.Len(t, f.store.Read().Windows, 1)
}

func TestOpen_DispatchTransportFailureFallsBackWithoutPruning(t *testing.T) {
	f := newFixture(t, "")
	ws, file := project(t)
	f.projectRoot(ws)
	f.register(t, ws, "127.0.0.1:9001", 100)
	f.net.add("127.0.0.1:9001", &fakeEndpoint{workspace: ws, openErr: client.ErrUnreachable})

	out, err := f.resolver.Open(context.Background(), Request{File: file, Line: 3})
	require.NoError(t, err)
	assert.True(t, out.FellBack)
	assert.Equal(t, []fallback.Target{{Workspace: ws, File: file, Line: 3}}, f.fallback.targets)
	assert.True(t, f.store.Read().Contains(ws, "127.0.0.1:9001"))
}

func TestOpen_NonLoopbackEntryIsDead(t *testing.T) {
	f := newFixture(t, "")
	ws, file := project(t)
	f.projectRoot(ws)
	f.register(t, ws, "10.0.0.5:9001", 100)
	f.net.add("10.0.0.5:9001", &fakeEndpoint{workspace: ws})

	out, err := f.resolver.Open(context.Background(), Request{File: file})
	require.NoError(t, err)
	assert.True(t, out.FellBack)
	assert.Zero(t, f.net.dialCount())
	assert.Empty(t, f.store.Read().Windows)
}

func TestOpen_MalformedIdentityIsDead(t *testing.T) {
	f := newFixture(t, "")
	ws, file := project(t)
	f.projectRoot(ws)
	f.register(t, ws, "127.0.0.1:9001", 100)
	f.net.add("127.0.0.1:9001", &fakeEndpoint{workspace: ws, status: "starting"})

	out, err := f.resolver.Open(context.Background(), Request{File: file})
	require.NoError(t, err)
	assert.True(t, out.FellBack)
	assert.Empty(t, f.store.Read().Windows)
}

func TestOpen_AncestorMatch(t *testing.T) {
	f := newFixture(t, "")
	ws, file := project(t)
	inner := filepath.Join(ws, "src")
	f.register(t, ws, "127.0.0.1:9001", 100)
	f.register(t, inner, "127.0.0.1:9002", 100)
	f.net.add("127.0.0.1:9001", &fakeEndpoint{workspace: ws})
	innerEp := f.net.add("127.0.0.1:9002", &fakeEndpoint{workspace: inner})

	out, err := f.resolver.Open(context.Background(), Request{File: file})
	require.NoError(t, err)
	assert.Equal(t, MatchAncestor, out.Match)
	assert.Equal(t, inner, out.Workspace)
	assert.Equal(t, 1, innerEp.openCount())
}

func TestOpen_ProjectMatchTakesPriority(t *testing.T) {
	f := newFixture(t, "")
	ws, file := project(t)
	repo := filepath.Join(ws, "src")
	f.projectRoot(repo)
	f.register(t, ws, "127.0.0.1:9001", 100)
	parent := f.net.add("127.0.0.1:9001", &fakeEndpoint{workspace: ws})

	out, err := f.resolver.Open(context.Background(), Request{File: file})
	require.NoError(t, err)
	assert.Equal(t, MatchProject, out.Match)
	assert.Equal(t, repo, out.Workspace)
	assert.True(t, out.FellBack)
	assert.Equal(t, 0, parent.openCount())
	assert.Equal(t, []fallback.Target{{Workspace: repo, File: file}}, f.fallback.targets)
}

func TestOpen_ConfiguredWorkspace(t *testing.T) {
	scratch, _ := project(t)
	f := newFixture(t, scratch)
	_, orphan := project(t)
	f.register(t, scratch, "127.0.0.1:9001", 100)
	ep := f.net.add("127.0.0.1:9001", &fakeEndpoint{workspace: scratch})

	out, err := f.resolver.Open(context.Background(), Request{File: orphan})
	require.NoError(t, err)
	assert.Equal(t, MatchConfigured, out.Match)
	assert.Equal(t, scratch, out.Workspace)
	assert.Equal(t, 1, ep.openCount())
}

func TestOpen_OrphanGoesStraightToFallback(t *testing.T) {
	f := newFixture(t, "")
	_, orphan := project(t)

	out, err := f.resolver.Open(context.Background(), Request{File: orphan, Line: 7})
	require.NoError(t, err)
	assert.Equal(t, MatchNone, out.Match)
	assert.True(t, out.FellBack)
	assert.Zero(t, f.net.dialCount())
	assert.Equal(t, []fallback.Target{{File: orphan, Line: 7}}, f.fallback.targets)
}

func TestOpen_FallbackCompleteness(t *testing.T) {
	tests := map[string]func(t *testing.T, f *fixture, ws string){
		"empty registry": func(t *testing.T, f *fixture, ws string) {},
		"all dead": func(t *testing.T, f *fixture, ws string) {
			f.register(t, ws, "127.0.0.1:9001", 100)
			f.register(t, ws, "127.0.0.1:9002", 200)
		},
		"all mismatched": func(t *testing.T, f *fixture, ws string) {
			f.register(t, ws, "127.0.0.1:9001", 100)
			f.register(t, ws, "127.0.0.1:9002", 200)
			f.net.add("127.0.0.1:9001", &fakeEndpoint{workspace: "/elsewhere"})
			f.net.add("127.0.0.1:9002", &fakeEndpoint{})
		},
	}

	for name, setup := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, "")
			ws, file := project(t)
			f.projectRoot(ws)
			setup(t, f, ws)

			out, err := f.resolver.Open(context.Background(), Request{File: file})
			require.NoError(t, err)
			assert.True(t, out.FellBack)
			assert.Len(t, f.fallback.targets, 1)
			assert.Empty(t, f.store.Read().Lookup(ws))
		})
	}
}

func TestOpen_FallbackFailureIsReturned(t *testing.T) {
	f := newFixture(t, "")
	_, orphan := project(t)
	f.fallback.err = errors.New("code: not found")

	_, err := f.resolver.Open(context.Background(), Request{File: orphan})
	assert.ErrorIs(t, err, f.fallback.err)
}

func TestOpen_SymlinkedInput(t *testing.T) {
	f := newFixture(t, "")
	ws, file := project(t)
	f.projectRoot(ws)
	link := filepath.Join(t.TempDir(), "link.go")
	require.NoError(t, os.Symlink(file, link))

	out, err := f.resolver.Open(context.Background(), Request{File: link})
	require.NoError(t, err)
	assert.Equal(t, file, out.File)
	assert.Equal(t, ws, out.Workspace)
}

func TestOpenFiles(t *testing.T) {
	f := newFixture(t, "")
	ws, _ := project(t)
	f.projectRoot(ws)

	_, _, err := f.resolver.OpenFiles(context.Background(), ws)
	assert.ErrorIs(t, err, ErrNoWindow)

	f.register(t, ws, "127.0.0.1:9001", 100)
	f.net.add("127.0.0.1:9001", &fakeEndpoint{workspace: ws, files: []string{ws + "/a.go"}})

	target, files, err := f.resolver.OpenFiles(context.Background(), ws)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9001", target.Window.Endpoint)
	assert.Equal(t, []string{ws + "/a.go"}, files)
}

func TestWithin(t *testing.T) {
	assert.True(t, within("/tmp/ab", "/tmp/ab"))
	assert.True(t, within("/tmp/ab", "/tmp/ab/c/d.go"))
	assert.False(t, within("/tmp/ab", "/tmp/abc/d.go"))
	assert.False(t, within("/tmp/ab", "/tmp"))
}

func TestMatchKindString(t *testing.T) {
	assert.Equal(t, "project", MatchProject.String())
	assert.Equal(t, "ancestor", MatchAncestor.String())
	assert.Equal(t, "configured", MatchConfigured.String())
	assert.Equal(t, "none", MatchNone.String())
}
