// Package registry implements the shared, file-backed table in which editor
// windows advertise the workspace they serve and the loopback endpoint they
// listen on.
//
// The table is advisory. Writers never lock it; every write replaces the file
// atomically so readers see either the old or the new table, never a torn
// one. Concurrent read-modify-write cycles from different processes can lose
// an update (the last rename wins). Windows repair lost registrations on
// their next focus or when they notice their entry is gone, and the resolver
// prunes entries it proves stale.
package registry

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SchemaVersion is the registry file format understood by this build.
const SchemaVersion = 1

// ErrInvalidEntry is returned when an entry lacks a usable workspace or endpoint.
var ErrInvalidEntry = errors.New("invalid window entry")

// Entry advertises one live editor window.
type Entry struct {
	Workspace  string    `json:"workspace"`
	Endpoint   string    `json:"endpoint"`
	OwnerID    string    `json:"ownerId,omitempty"`
	LastActive time.Time `json:"lastActive"`
}

// Port returns the endpoint's port, or 0 when the endpoint does not parse.
func (e Entry) Port() int {
	_, portStr, err := net.SplitHostPort(e.Endpoint)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return 0
	}
	return port
}

// OwnerPID extracts the process id from an ownerId of the form "<pid>:<token>".
func (e Entry) OwnerPID() (int, bool) {
	head, _, _ := strings.Cut(e.OwnerID, ":")
	pid, err := strconv.Atoi(head)
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// Validate reports whether the entry can be stored.
func (e Entry) Validate() error {
	if e.Workspace == "" || !filepath.IsAbs(e.Workspace) {
		return fmt.Errorf("%w: workspace must be an absolute path, got %q", ErrInvalidEntry, e.Workspace)
	}
	if e.Port() == 0 {
		return fmt.Errorf("%w: endpoint must be host:port, got %q", ErrInvalidEntry, e.Endpoint)
	}
	return nil
}

func (e Entry) normalized() Entry {
	if e.Workspace != "" {
		e.Workspace = filepath.Clean(e.Workspace)
	}
	return e
}

// Table is the registry file's contents.
type Table struct {
	Version int     `json:"version"`
	Windows []Entry `json:"windows"`
}

// Lookup returns the entries bound to workspace, most recently active first.
// Entries with equal LastActive keep their file order.
func (t Table) Lookup(workspace string) []Entry {
	workspace = filepath.Clean(workspace)

	var matches []Entry
	for _, e := range t.Windows {
		if e.Workspace == workspace {
			matches = append(matches, e)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].LastActive.After(matches[j].LastActive)
	})
	return matches
}

// Workspaces returns every distinct workspace in the table.
func (t Table) Workspaces() []string {
	seen := make(map[string]bool, len(t.Windows))
	var out []string
	for _, e := range t.Windows {
		if !seen[e.Workspace] {
			seen[e.Workspace] = true
			out = append(out, e.Workspace)
		}
	}
	return out
}

// Contains reports whether an entry with exactly this workspace and endpoint exists.
func (t Table) Contains(workspace, endpoint string) bool {
	workspace = filepath.Clean(workspace)
	for _, e := range t.Windows {
		if e.Workspace == workspace && e.Endpoint == endpoint {
			return true
		}
	}
	return false
}
