// Package window runs the loopback endpoint through which one editor window
// accepts open requests. The window advertises itself in the registry while
// it runs.
package window

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/codefionn/vo/internal/config"
	"github.com/codefionn/vo/internal/logger"
	"github.com/codefionn/vo/internal/registry"
	"github.com/google/uuid"
)

var (
	// ErrNoFreePort is returned by Start when every port in the range is taken.
	ErrNoFreePort = errors.New("no free port in range")
	// ErrNotLoopback is returned when the configured host is not a loopback address.
	ErrNotLoopback = errors.New("endpoint host must be loopback")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("window endpoint already started")
)

// DefaultHost is the bind address for endpoints.
const DefaultHost = "127.0.0.1"

// Registry is the part of the registry store a window uses.
type Registry interface {
	Read() registry.Table
	Upsert(e registry.Entry) error
	Remove(workspace, endpoint string) (bool, error)
	Touch(workspace string, at time.Time) error
	Watch(ctx context.Context, onChange func()) error
}

// Options configures a Server.
type Options struct {
	// Workspace is the folder the window serves. Empty means the window is
	// not registered anywhere, yet still answers requests.
	Workspace string
	Host      string
	PortStart int
	PortEnd   int
	Editor    Editor
	Handlers  *HandlerTable
	Registry  Registry
	// OwnerID defaults to "<pid>:<random uuid>".
	OwnerID string
	Now     func() time.Time
	Log     *logger.Logger
}

// Server is one window endpoint.
type Server struct {
	opts    Options
	ownerID string
	log     *logger.Logger
	handler http.Handler

	mu         sync.Mutex
	endpoint   string
	port       int
	httpServer *http.Server
	stopWatch  context.CancelFunc
	serveDone  chan struct{}
	closed     bool
	registered bool
}

// New validates opts and returns an unstarted server.
func New(opts Options) (*Server, error) {
	if opts.Editor == nil {
		return nil, errors.New("window: editor is required")
	}
	if opts.Host == "" {
		opts.Host = DefaultHost
	}
	if !isLoopback(opts.Host) {
		return nil, fmt.Errorf("%w: %s", ErrNotLoopback, opts.Host)
	}
	if opts.PortStart <= 0 {
		opts.PortStart = config.DefaultPortRangeStart
	}
	if opts.PortEnd <= 0 {
		opts.PortEnd = config.DefaultPortRangeEnd
	}
	if opts.PortStart > opts.PortEnd {
		return nil, fmt.Errorf("window: invalid port range %d-%d", opts.PortStart, opts.PortEnd)
	}
	if opts.Workspace != "" {
		ws, err := canonicalWorkspace(opts.Workspace)
		if err != nil {
			return nil, err
		}
		opts.Workspace = ws
	}
	if opts.Handlers == nil {
		opts.Handlers = NewHandlerTable()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = logger.Global().WithPrefix("window")
	}

	ownerID := opts.OwnerID
	if ownerID == "" {
		ownerID = strconv.Itoa(os.Getpid()) + ":" + uuid.NewString()
	}

	s := &Server{opts: opts, ownerID: ownerID, log: opts.Log}
	s.handler = s.routes()
	return s, nil
}

func canonicalWorkspace(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("window: resolve workspace %s: %w", dir, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return filepath.Clean(abs), nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Workspace returns the canonical workspace, or "".
func (s *Server) Workspace() string { return s.opts.Workspace }

// OwnerID returns the identifier published in the registry.
func (s *Server) OwnerID() string { return s.ownerID }

// Handler returns the HTTP handler, for mounting in tests.
func (s *Server) Handler() http.Handler { return s.handler }

// Endpoint returns "host:port" once started.
func (s *Server) Endpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint
}

// Start binds the first free port in range, starts serving and registers
// the window. ctx bounds the registry watch; use Shutdown to stop.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.httpServer != nil || s.closed {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}

	ln, port, err := listenInRange(s.opts.Host, s.opts.PortStart, s.opts.PortEnd)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	s.port = port
	s.endpoint = net.JoinHostPort(s.opts.Host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          logger.StdLogger(s.log, slog.LevelWarn),
	}
	s.serveDone = make(chan struct{})
	srv, done := s.httpServer, s.serveDone
	s.mu.Unlock()

	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("endpoint %s stopped: %v", s.Endpoint(), err)
		}
	}()
	s.log.Info("window endpoint listening on %s (workspace %q)", s.Endpoint(), s.opts.Workspace)

	if s.opts.Workspace == "" || s.opts.Registry == nil {
		return nil
	}

	if err := s.register(); err != nil {
		_ = s.Shutdown(context.Background())
		return fmt.Errorf("failed to register window: %w", err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	if err := s.opts.Registry.Watch(watchCtx, s.heal); err != nil {
		cancel()
		// Focus still repairs the registration without the watch.
		s.log.Warn("registry watch unavailable: %v", err)
		return nil
	}
	s.mu.Lock()
	s.stopWatch = cancel
	s.mu.Unlock()
	return nil
}

func listenInRange(host string, start, end int) (net.Listener, int, error) {
	for port := start; port <= end; port++ {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err == nil {
			return ln, port, nil
		}
	}
	return nil, 0, fmt.Errorf("%w: %s:%d-%d", ErrNoFreePort, host, start, end)
}

func (s *Server) entry() registry.Entry {
	return registry.Entry{
		Workspace:  s.opts.Workspace,
		Endpoint:   s.Endpoint(),
		OwnerID:    s.ownerID,
		LastActive: s.opts.Now(),
	}
}

func (s *Server) register() error {
	if err := s.opts.Registry.Upsert(s.entry()); err != nil {
		return err
	}
	s.mu.Lock()
	s.registered = true
	s.mu.Unlock()
	return nil
}

// Focused records that the window gained focus. It refreshes lastActive or,
// when the entry was lost, registers the window again.
func (s *Server) Focused() error {
	if s.opts.Workspace == "" || s.opts.Registry == nil {
		return nil
	}

	s.mu.Lock()
	closed, started := s.closed, s.httpServer != nil
	s.mu.Unlock()
	if closed || !started {
		return nil
	}

	if s.opts.Registry.Read().Contains(s.opts.Workspace, s.Endpoint()) {
		return s.opts.Registry.Touch(s.opts.Workspace, s.opts.Now())
	}
	s.log.Info("registry entry for %s missing on focus, registering again", s.opts.Workspace)
	return s.register()
}

// heal runs after every registry change.
func (s *Server) heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.registered {
		return
	}

	table := s.opts.Registry.Read()
	if table.Contains(s.opts.Workspace, s.endpoint) {
		return
	}
	if others := table.Lookup(s.opts.Workspace); len(others) > 0 {
		s.log.Info("workspace %s now served by %s, yielding", s.opts.Workspace, others[0].Endpoint)
		s.registered = false
		return
	}
	for _, e := range table.Windows {
		if e.Port() == s.port {
			s.log.Info("port %d claimed by %s, yielding", s.port, e.Workspace)
			s.registered = false
			return
		}
	}

	s.log.Info("registry entry for %s lost, registering again", s.opts.Workspace)
	e := registry.Entry{
		Workspace:  s.opts.Workspace,
		Endpoint:   s.endpoint,
		OwnerID:    s.ownerID,
		LastActive: s.opts.Now(),
	}
	if err := s.opts.Registry.Upsert(e); err != nil {
		s.log.Warn("failed to re-register %s: %v", s.opts.Workspace, err)
	}
}

// Shutdown stops serving and removes the window's registry entry.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	srv, stop, done, endpoint := s.httpServer, s.stopWatch, s.serveDone, s.endpoint
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	if srv == nil {
		return nil
	}

	err := srv.Shutdown(ctx)
	<-done

	if s.opts.Workspace != "" && s.opts.Registry != nil {
		if _, rmErr := s.opts.Registry.Remove(s.opts.Workspace, endpoint); rmErr != nil {
			s.log.Warn("failed to remove registry entry: %v", rmErr)
		}
	}
	s.log.Info("window endpoint %s stopped", endpoint)
	return err
}
