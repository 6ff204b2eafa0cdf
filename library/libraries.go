package library

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const librariesFile = "libraries.txt"

// LibraryRegistry manages the branch list. Unlike the record stores it
// always reads and writes the file as one complete list; there is no
// per-record upsert for libraries.
type LibraryRegistry struct {
	path  string
	codec libraryCodec
	mu    sync.Mutex
}

func NewLibraryRegistry(dataDir string) *LibraryRegistry {
	return &LibraryRegistry{path: filepath.Join(dataDir, librariesFile)}
}

// LoadAll returns every branch in file order; a missing file is an empty
// list.
func (r *LibraryRegistry) LoadAll() ([]Library, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.path, err)
	}
	var out []Library
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lib, ok := r.codec.Decode(strings.TrimRight(line, "\r"))
		if !ok {
			continue
		}
		out = append(out, lib)
	}
	return out, nil
}

// SaveAll rewrites the whole branch list.
func (r *LibraryRegistry) SaveAll(libs []Library) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	lines := make([]string, 0, len(libs))
	for _, lib := range libs {
		lines = append(lines, r.codec.Encode(lib))
	}
	return writeFileAtomic(r.path, lines)
}

// Add appends a branch after checking that both its id and its campus are
// unused.
func (r *LibraryRegistry) Add(lib Library) error {
	if lib.ID <= 0 {
		return NewInvalidArgumentError("library id must be positive")
	}
	if strings.TrimSpace(lib.Campus) == "" {
		return NewInvalidArgumentError("library campus must not be empty")
	}
	libs, err := r.LoadAll()
	if err != nil {
		return err
	}
	for _, existing := range libs {
		if existing.ID == lib.ID {
			return NewConflictError("library id %d already exists", lib.ID)
		}
		if strings.EqualFold(existing.Campus, lib.Campus) {
			return NewConflictError("campus %q already has a library", lib.Campus)
		}
	}
	return r.SaveAll(append(libs, lib))
}

// FindByID returns the branch with the given id.
func (r *LibraryRegistry) FindByID(id int64) (Library, bool, error) {
	libs, err := r.LoadAll()
	if err != nil {
		return Library{}, false, err
	}
	for _, lib := range libs {
		if lib.ID == id {
			return lib, true, nil
		}
	}
	return Library{}, false, nil
}
