package library

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// RecordStore is a generic CRUD engine over one newline-delimited text
// file: one record per line, located by a unique key. Every mutation reads
// the whole file, edits it in memory and rewrites it; the per-store mutex
// serializes those read/rewrite cycles so one writer's update cannot be
// lost under another's. Stores for different files use independent locks,
// so a book update never blocks a member update.
//
// Deletion is an explicit operation. Upsert always writes a live record
// and rejects entities with an empty key rather than inferring a delete
// from a blanked key field.
type RecordStore[T any] struct {
	path  string
	codec Codec[T]
	key   func(T) string
	mu    sync.Mutex
}

// NewRecordStore builds a store over the file at path. key extracts the
// unique key of an entity; it must never be empty for a live record.
func NewRecordStore[T any](path string, codec Codec[T], key func(T) string) *RecordStore[T] {
	return &RecordStore[T]{path: path, codec: codec, key: key}
}

// LoadAll reads every record in file order. A missing file is an empty
// store, not an error. Blank lines and lines the codec rejects are skipped
// with a logged warning; a malformed line never fails the load.
func (s *RecordStore[T]) LoadAll() ([]T, error) {
	lines, err := s.readLines()
	if err != nil {
		return nil, err
	}
	var out []T
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		e, ok := s.codec.Decode(line)
		if !ok {
			log.Printf("%s: skipping malformed record on line %d", s.path, i+1)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// FindByKey returns the first record whose key equals k. First match wins
// if the uniqueness invariant was ever violated.
func (s *RecordStore[T]) FindByKey(k string) (T, bool, error) {
	return s.Find(func(e T) bool { return s.key(e) == k })
}

// Find returns the first record matching the predicate.
func (s *RecordStore[T]) Find(match func(T) bool) (T, bool, error) {
	var zero T
	all, err := s.LoadAll()
	if err != nil {
		return zero, false, err
	}
	for _, e := range all {
		if match(e) {
			return e, true, nil
		}
	}
	return zero, false, nil
}

// Filter returns every record matching the predicate, in file order.
func (s *RecordStore[T]) Filter(match func(T) bool) ([]T, error) {
	all, err := s.LoadAll()
	if err != nil {
		return nil, err
	}
	var out []T
	for _, e := range all {
		if match(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Upsert replaces the record stored under e's current key, or appends e if
// no such record exists.
func (s *RecordStore[T]) Upsert(e T) error {
	return s.upsert(e, s.key(e))
}

// UpsertKeyed is Upsert for entities whose key field itself changed: the
// existing record is located by oldKey so the old line can be found even
// though e already carries the new key.
func (s *RecordStore[T]) UpsertKeyed(oldKey string, e T) error {
	return s.upsert(e, oldKey)
}

func (s *RecordStore[T]) upsert(e T, oldKey string) error {
	if s.key(e) == "" {
		return NewInvalidArgumentError("record key must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.readLines()
	if err != nil {
		return err
	}
	encoded := s.codec.Encode(e)
	replaced := false
	for i, line := range lines {
		old, ok := s.codec.Decode(line)
		if ok && s.key(old) == oldKey {
			lines[i] = encoded
			replaced = true
			break
		}
	}
	if !replaced {
		lines = append(lines, encoded)
	}
	return s.writeLines(lines)
}

// DeleteByKey removes the record stored under k and rewrites the file
// without it. Deleting an absent key is a not-found domain error.
func (s *RecordStore[T]) DeleteByKey(k string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.readLines()
	if err != nil {
		return err
	}
	kept := lines[:0]
	found := false
	for _, line := range lines {
		e, ok := s.codec.Decode(line)
		if ok && s.key(e) == k {
			found = true
			continue
		}
		kept = append(kept, line)
	}
	if !found {
		return NewNotFoundError("no record with key %q", k)
	}
	return s.writeLines(kept)
}

// readLines returns the raw lines of the backing file. Keeping lines the
// codec cannot decode means a rewrite never destroys records a newer (or
// older) build might still understand.
func (s *RecordStore[T]) readLines() ([]string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, strings.TrimRight(line, "\r"))
	}
	return lines, nil
}

func (s *RecordStore[T]) writeLines(lines []string) error {
	return writeFileAtomic(s.path, lines)
}

// writeFileAtomic rewrites path all-or-nothing: the new content goes to a
// temp file in the same directory which is then renamed over the original,
// so a failed write leaves the previous content intact.
func writeFileAtomic(path string, lines []string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	content := ""
	if len(lines) > 0 {
		content = strings.Join(lines, "\n") + "\n"
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
