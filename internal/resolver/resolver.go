// Package resolver decides which editor window should open a file.
//
// Registry entries are never trusted on sight. Every candidate is probed
// before use; entries that are dead or now serve another workspace are
// removed on the way, and when no window survives the request goes to the
// fallback opener.
package resolver

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codefionn/vo/internal/client"
	"github.com/codefionn/vo/internal/fallback"
	"github.com/codefionn/vo/internal/logger"
	"github.com/codefionn/vo/internal/protocol"
	"github.com/codefionn/vo/internal/registry"
	"github.com/codefionn/vo/internal/vcs"
)

// Default deadlines for talking to windows.
const (
	DefaultProbeTimeout = 300 * time.Millisecond
	DefaultOpenTimeout  = 900 * time.Millisecond
)

// MatchKind records how the workspace for a path was chosen.
type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchProject
	MatchAncestor
	MatchConfigured
)

func (m MatchKind) String() string {
	switch m {
	case MatchProject:
		return "project"
	case MatchAncestor:
		return "ancestor"
	case MatchConfigured:
		return "configured"
	default:
		return "none"
	}
}

// Registry is the part of the registry store the resolver needs.
type Registry interface {
	Read() registry.Table
	Remove(workspace, endpoint string) (bool, error)
}

// Endpoint is a connection to one window.
type Endpoint interface {
	Identity(ctx context.Context) (*protocol.IdentityResponse, error)
	Open(ctx context.Context, req protocol.OpenRequest) (*protocol.OpenResponse, error)
	Files(ctx context.Context) (*protocol.FilesResponse, error)
}

// DialFunc returns an Endpoint for address.
type DialFunc func(endpoint string) Endpoint

// DialHTTP connects with the loopback HTTP client.
func DialHTTP(endpoint string) Endpoint {
	return client.New(endpoint)
}

// Options configures a Resolver.
type Options struct {
	Registry Registry
	Finder   vcs.Finder
	Fallback fallback.Opener
	// FallbackWorkspace is used when neither a project root nor a
	// registered ancestor encloses the path.
	FallbackWorkspace string
	ProbeTimeout      time.Duration
	OpenTimeout       time.Duration
	Dial              DialFunc
	Log               *logger.Logger
}

// Resolver routes open requests.
type Resolver struct {
	registry          Registry
	finder            vcs.Finder
	fallback          fallback.Opener
	fallbackWorkspace string
	probeTimeout      time.Duration
	openTimeout       time.Duration
	dial              DialFunc
	log               *logger.Logger
}

// New returns a Resolver. Registry and Fallback are required.
func New(opts Options) *Resolver {
	r := &Resolver{
		registry:          opts.Registry,
		finder:            opts.Finder,
		fallback:          opts.Fallback,
		fallbackWorkspace: opts.FallbackWorkspace,
		probeTimeout:      opts.ProbeTimeout,
		openTimeout:       opts.OpenTimeout,
		dial:              opts.Dial,
		log:               opts.Log,
	}
	if r.finder == nil {
		r.finder = vcs.NewMarkerFinder()
	}
	if r.probeTimeout <= 0 {
		r.probeTimeout = DefaultProbeTimeout
	}
	if r.openTimeout <= 0 {
		r.openTimeout = DefaultOpenTimeout
	}
	if r.dial == nil {
		r.dial = DialHTTP
	}
	if r.log == nil {
		r.log = logger.Global().WithPrefix("resolver")
	}
	return r
}

// Request asks for one file to be opened.
type Request struct {
	File            string
	Line            int
	DistractionFree bool
	BypassHandlers  bool
}

// Target is the result of locating a path.
type Target struct {
	// File is absolute and symlink-resolved.
	File      string
	Workspace string
	Match     MatchKind
	// Window is the verified window for Workspace, or nil.
	Window *registry.Entry
	// Pruned lists entries removed while verifying candidates.
	Pruned []registry.Entry
}

// Outcome describes how an open request completed.
type Outcome struct {
	Target
	// FellBack is set when the fallback opener handled the request.
	FellBack    bool
	HandlerUsed string
}

// Open resolves req.File and opens it in the best window, or through the
// fallback. Only a missing input, an endpoint-reported failure or a failing
// fallback command produce an error.
func (r *Resolver) Open(ctx context.Context, req Request) (*Outcome, error) {
	target, err := r.Locate(ctx, req.File)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Target: *target}

	if w := target.Window; w != nil {
		resp, err := r.dispatch(ctx, *w, protocol.OpenRequest{
			File:            target.File,
			Line:            req.Line,
			DistractionFree: req.DistractionFree,
			BypassHandlers:  req.BypassHandlers,
		})
		switch {
		case err != nil:
			// The window answered the probe, so its entry stays.
			r.log.Warn("dispatch to %s failed, falling back: %v", w.Endpoint, err)
		case !resp.Success:
			out.HandlerUsed = resp.HandlerUsed
			return out, &EndpointError{Endpoint: w.Endpoint, Workspace: w.Workspace, Message: resp.Error}
		default:
			out.HandlerUsed = resp.HandlerUsed
			r.log.Info("opened %s in %s via %s", target.File, w.Endpoint, resp.HandlerUsed)
			return out, nil
		}
	}

	out.FellBack = true
	err = r.fallback.Open(ctx, fallback.Target{
		Workspace: target.Workspace,
		File:      target.File,
		Line:      req.Line,
	})
	return out, err
}

func (r *Resolver) dispatch(ctx context.Context, w registry.Entry, req protocol.OpenRequest) (*protocol.OpenResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, r.openTimeout)
	defer cancel()
	return r.dial(w.Endpoint).Open(ctx, req)
}

// Locate resolves path to its workspace and the verified window serving it,
// pruning stale candidates along the way. It does not open anything.
func (r *Resolver) Locate(ctx context.Context, path string) (*Target, error) {
	file, err := canonicalInput(path)
	if err != nil {
		return nil, err
	}

	table := r.registry.Read()
	target := &Target{File: file}
	target.Workspace, target.Match = r.classify(ctx, file, table)
	r.log.Debug("%s: workspace %q (%s)", file, target.Workspace, target.Match)

	if target.Workspace == "" {
		return target, nil
	}

	for _, candidate := range table.Lookup(target.Workspace) {
		st := r.probe(ctx, candidate)
		if st.Verdict == VerdictAlive {
			w := candidate
			target.Window = &w
			return target, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.log.Info("pruning %s at %s: %s", candidate.Workspace, candidate.Endpoint, st.Reason())
		r.remove(candidate)
		target.Pruned = append(target.Pruned, candidate)
	}
	return target, nil
}

// OpenFiles lists the files open in the window serving dir.
func (r *Resolver) OpenFiles(ctx context.Context, dir string) (*Target, []string, error) {
	target, err := r.Locate(ctx, dir)
	if err != nil {
		return nil, nil, err
	}
	if target.Window == nil {
		return target, nil, fmt.Errorf("%w: %s", ErrNoWindow, displayWorkspace(target))
	}

	ctx, cancel := context.WithTimeout(ctx, r.openTimeout)
	defer cancel()
	resp, err := r.dial(target.Window.Endpoint).Files(ctx)
	if err != nil {
		return target, nil, err
	}
	if !resp.Success {
		return target, nil, &EndpointError{Endpoint: target.Window.Endpoint, Workspace: target.Workspace, Message: resp.Error}
	}
	return target, resp.Files, nil
}

func displayWorkspace(t *Target) string {
	if t.Workspace == "" {
		return t.File
	}
	return t.Workspace
}

func (r *Resolver) remove(e registry.Entry) {
	if _, err := r.registry.Remove(e.Workspace, e.Endpoint); err != nil {
		r.log.Warn("failed to remove %s at %s: %v", e.Workspace, e.Endpoint, err)
	}
}

func canonicalInput(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInputNotFound, path)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("%w: %s", ErrInputNotFound, path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return filepath.Clean(abs), nil
}

// classify picks the workspace in strict priority: enclosing repository,
// longest registered ancestor, configured fallback workspace.
func (r *Resolver) classify(ctx context.Context, file string, table registry.Table) (string, MatchKind) {
	dir := file
	if info, err := os.Stat(file); err == nil && !info.IsDir() {
		dir = filepath.Dir(file)
	}

	if root, err := r.finder.RepositoryRoot(ctx, dir); err == nil && root != "" {
		if resolved, err := filepath.EvalSymlinks(root); err == nil {
			root = resolved
		}
		return filepath.Clean(root), MatchProject
	}

	best := ""
	for _, ws := range table.Workspaces() {
		if within(ws, file) && len(ws) > len(best) {
			best = ws
		}
	}
	if best != "" {
		return best, MatchAncestor
	}

	if r.fallbackWorkspace != "" {
		ws := filepath.Clean(r.fallbackWorkspace)
		if resolved, err := filepath.EvalSymlinks(ws); err == nil {
			ws = resolved
		}
		return ws, MatchConfigured
	}
	return "", MatchNone
}

// within reports whether path equals root or lies below it, comparing whole
// path components.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

func loopbackEndpoint(endpoint string) bool {
	host, _, err := net.SplitHostPort(endpoint)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
