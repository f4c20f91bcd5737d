package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/codefionn/vo/internal/logger"
	"github.com/natefinch/atomic"
)

// FileStore is the registry backed by a single JSON file.
type FileStore struct {
	path string
	log  *logger.Logger
}

// NewFileStore returns a store for the registry file at path. The file and
// its directory are created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path: path,
		log:  logger.Global().WithPrefix("registry"),
	}
}

// Path returns the registry file path.
func (s *FileStore) Path() string {
	return s.path
}

// Read returns the current table. A missing, unreadable or unparsable file
// is an empty table.
func (s *FileStore) Read() Table {
	empty := Table{Version: SchemaVersion}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("cannot read %s, treating registry as empty: %v", s.path, err)
		}
		return empty
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return empty
	}

	var table Table
	if err := json.Unmarshal(data, &table); err != nil {
		s.log.Warn("corrupt registry %s, treating as empty: %v", s.path, err)
		return empty
	}
	if table.Version > SchemaVersion {
		s.log.Warn("registry %s has schema version %d (supported: %d), treating as empty", s.path, table.Version, SchemaVersion)
		return empty
	}

	windows := make([]Entry, 0, len(table.Windows))
	for _, e := range table.Windows {
		e = e.normalized()
		if err := e.Validate(); err != nil {
			s.log.Debug("dropping unusable entry: %v", err)
			continue
		}
		windows = append(windows, e)
	}
	return Table{Version: SchemaVersion, Windows: windows}
}

// Write replaces the registry file atomically.
func (s *FileStore) Write(table Table) error {
	table.Version = SchemaVersion
	if table.Windows == nil {
		table.Windows = []Entry{}
	}

	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write registry: %w", err)
	}
	return nil
}

// Upsert stores e, first evicting every entry that shares its workspace or
// its endpoint port.
func (s *FileStore) Upsert(e Entry) error {
	e = e.normalized()
	if err := e.Validate(); err != nil {
		return err
	}

	table := s.Read()
	port := e.Port()
	kept := make([]Entry, 0, len(table.Windows)+1)
	for _, old := range table.Windows {
		switch {
		case old.Workspace == e.Workspace:
			s.log.Debug("superseding %s at %s", old.Workspace, old.Endpoint)
		case old.Port() == port:
			s.log.Info("evicting %s: port %d now claimed by %s", old.Workspace, port, e.Workspace)
		default:
			kept = append(kept, old)
		}
	}
	kept = append(kept, e)

	return s.Write(Table{Windows: kept})
}

// Remove deletes the entry matching both workspace and endpoint. It reports
// whether an entry was removed; removing an absent entry is not an error.
func (s *FileStore) Remove(workspace, endpoint string) (bool, error) {
	workspace = filepath.Clean(workspace)

	table := s.Read()
	kept := make([]Entry, 0, len(table.Windows))
	for _, e := range table.Windows {
		if e.Workspace == workspace && e.Endpoint == endpoint {
			continue
		}
		kept = append(kept, e)
	}
	if len(kept) == len(table.Windows) {
		return false, nil
	}

	if err := s.Write(Table{Windows: kept}); err != nil {
		return false, err
	}
	return true, nil
}

// Touch raises LastActive of the entry for workspace to at. Older timestamps
// and absent workspaces are ignored.
func (s *FileStore) Touch(workspace string, at time.Time) error {
	workspace = filepath.Clean(workspace)

	table := s.Read()
	changed := false
	for i := range table.Windows {
		e := &table.Windows[i]
		if e.Workspace == workspace && at.After(e.LastActive) {
			e.LastActive = at
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.Write(table)
}
