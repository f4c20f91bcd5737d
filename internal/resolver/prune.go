package resolver

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/codefionn/vo/internal/protocol"
	"github.com/codefionn/vo/internal/registry"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentProbes bounds Inspect and Prune.
const maxConcurrentProbes = 8

// Verdict is the result of probing one registry entry.
type Verdict int

const (
	VerdictAlive Verdict = iota
	VerdictDead
	VerdictMismatch
)

func (v Verdict) String() string {
	switch v {
	case VerdictAlive:
		return "alive"
	case VerdictMismatch:
		return "mismatch"
	default:
		return "dead"
	}
}

var errNotLoopback = errors.New("endpoint is not a loopback address")

// Status is the probe result for one entry.
type Status struct {
	Entry    registry.Entry
	Verdict  Verdict
	Identity *protocol.IdentityResponse
	Err      error
}

// Reason describes why the entry is not alive.
func (s Status) Reason() string {
	switch {
	case s.Verdict == VerdictAlive:
		return "alive"
	case s.Verdict == VerdictMismatch && s.Identity != nil:
		return fmt.Sprintf("serves %q", s.Identity.Workspace)
	case s.Err != nil:
		return s.Err.Error()
	default:
		return s.Verdict.String()
	}
}

func (r *Resolver) probe(ctx context.Context, e registry.Entry) Status {
	st := Status{Entry: e, Verdict: VerdictDead}
	if !loopbackEndpoint(e.Endpoint) {
		st.Err = fmt.Errorf("%w: %s", errNotLoopback, e.Endpoint)
		return st
	}

	ctx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	id, err := r.dial(e.Endpoint).Identity(ctx)
	if err != nil {
		st.Err = err
		return st
	}
	st.Identity = id
	if id.Status != protocol.StatusOK {
		st.Err = fmt.Errorf("unexpected status %q", id.Status)
		return st
	}
	if id.Workspace == "" || filepath.Clean(id.Workspace) != e.Workspace {
		st.Verdict = VerdictMismatch
		return st
	}
	st.Verdict = VerdictAlive
	return st
}

// Inspect probes every registry entry concurrently without changing the
// registry. Results keep the registry's order.
func (r *Resolver) Inspect(ctx context.Context) ([]Status, error) {
	entries := r.registry.Read().Windows
	statuses := make([]Status, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentProbes)
	for i, e := range entries {
		g.Go(func() error {
			statuses[i] = r.probe(gctx, e)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return statuses, nil
}

// Prune removes every entry whose window is dead or serves a different
// workspace, and returns the removed entries.
func (r *Resolver) Prune(ctx context.Context) ([]registry.Entry, error) {
	statuses, err := r.Inspect(ctx)
	if err != nil {
		return nil, err
	}

	var removed []registry.Entry
	for _, st := range statuses {
		if st.Verdict == VerdictAlive {
			continue
		}
		r.log.Info("pruning %s at %s: %s", st.Entry.Workspace, st.Entry.Endpoint, st.Reason())
		ok, err := r.registry.Remove(st.Entry.Workspace, st.Entry.Endpoint)
		if err != nil {
			return removed, fmt.Errorf("failed to prune %s: %w", st.Entry.Endpoint, err)
		}
		if ok {
			removed = append(removed, st.Entry)
		}
	}
	return removed, nil
}
