// Package state persists the seen and available product sets between runs.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aluiziolira/stockwatch/models"
)

const (
	SeenFile      = "seen_products.json"
	AvailableFile = "available_products.json"
)

// ErrInvariant is returned when Available holds an identity missing from Seen.
var ErrInvariant = errors.New("state: available is not a subset of seen")

// PersistedState maps identities to display names for both product sets.
type PersistedState struct {
	Seen      map[models.Identity]string
	Available map[models.Identity]string
}

// New returns an empty state.
func New() PersistedState {
	return PersistedState{
		Seen:      make(map[models.Identity]string),
		Available: make(map[models.Identity]string),
	}
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (s PersistedState) Clone() PersistedState {
	out := PersistedState{
		Seen:      make(map[models.Identity]string, len(s.Seen)),
		Available: make(map[models.Identity]string, len(s.Available)),
	}
	for k, v := range s.Seen {
		out.Seen[k] = v
	}
	for k, v := range s.Available {
		out.Available[k] = v
	}
	return out
}

// Validate checks Available ⊆ Seen.
func (s PersistedState) Validate() error {
	for id := range s.Available {
		if _, ok := s.Seen[id]; !ok {
			return fmt.Errorf("%w: %s", ErrInvariant, id)
		}
	}
	return nil
}

// repair adds available identities that are missing from Seen.
func (s PersistedState) repair() int {
	fixed := 0
	for id, name := range s.Available {
		if _, ok := s.Seen[id]; !ok {
			s.Seen[id] = name
			fixed++
		}
	}
	return fixed
}

// Store reads and writes the state files under a directory. It is not safe
// for concurrent use.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the directory the store writes to.
func (s *Store) Dir() string {
	return s.dir
}

// Load reads both files. Missing or unreadable files yield empty sets so a
// damaged state only costs de-duplication memory, never the run.
func (s *Store) Load() PersistedState {
	st := PersistedState{
		Seen:      s.loadFile(SeenFile),
		Available: s.loadFile(AvailableFile),
	}
	if fixed := st.repair(); fixed > 0 {
		slog.Warn("state repaired", slog.Int("available_missing_from_seen", fixed))
	}
	return st
}

// Save rewrites both files atomically.
func (s *Store) Save(st PersistedState) error {
	if err := st.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create state directory %q: %w", s.dir, err)
	}
	if err := writeJSONAtomic(filepath.Join(s.dir, SeenFile), st.Seen); err != nil {
		return err
	}
	if err := writeJSONAtomic(filepath.Join(s.dir, AvailableFile), st.Available); err != nil {
		return err
	}
	return nil
}

func (s *Store) loadFile(name string) map[models.Identity]string {
	path := filepath.Join(s.dir, name)
	out := make(map[models.Identity]string)

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("state file unreadable, starting empty", slog.String("path", path), slog.Any("error", err))
		}
		return out
	}
	if len(data) == 0 {
		return out
	}
	if err := json.Unmarshal(data, &out); err != nil {
		slog.Warn("state file corrupt, starting empty", slog.String("path", path), slog.Any("error", err))
		return make(map[models.Identity]string)
	}
	if out == nil {
		out = make(map[models.Identity]string)
	}
	return out
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	committed = true
	return nil
}
