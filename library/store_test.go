package library

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func tempBookStore(t *testing.T) *RecordStore[Book] {
	t.Helper()
	path := filepath.Join(t.TempDir(), "books.txt")
	return NewRecordStore[Book](path, bookCodec{}, func(b Book) string { return b.Code })
}

func TestStoreMissingFileIsEmpty(t *testing.T) {
	s := tempBookStore(t)
	all, err := s.LoadAll()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("want empty store, got %d records", len(all))
	}
	if _, found, err := s.FindByKey("1-M-1"); err != nil || found {
		t.Fatalf("find on empty store: found=%v err=%v", found, err)
	}
}

func TestStoreUpsertAndFind(t *testing.T) {
	s := tempBookStore(t)
	b := Book{Code: "1-M-1", Name: "Cien años de soledad", Author: "G. García Márquez", FreeUnits: 3, LibraryID: 1, Campus: "Medellin"}
	if err := s.Upsert(b); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, found, err := s.FindByKey("1-M-1")
	if err != nil || !found {
		t.Fatalf("find: found=%v err=%v", found, err)
	}
	if got != b {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, b)
	}

	// Update in place: still exactly one record.
	b.FreeUnits = 2
	b.LoanedUnits = 1
	if err := s.Upsert(b); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	all, _ := s.LoadAll()
	if len(all) != 1 {
		t.Fatalf("want 1 record after update, got %d", len(all))
	}
	if all[0].FreeUnits != 2 || all[0].LoanedUnits != 1 {
		t.Fatalf("update not persisted: %+v", all[0])
	}
}

func TestStorePreservesFileOrder(t *testing.T) {
	s := tempBookStore(t)
	for i := 1; i <= 4; i++ {
		b := Book{Code: fmt.Sprintf("1-M-%d", i), Name: fmt.Sprintf("Book %d", i), LibraryID: 1}
		if err := s.Upsert(b); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}
	// Rewriting the second record must not move it.
	if err := s.Upsert(Book{Code: "1-M-2", Name: "Book 2 revised", LibraryID: 1}); err != nil {
		t.Fatalf("update: %v", err)
	}
	all, _ := s.LoadAll()
	if len(all) != 4 {
		t.Fatalf("want 4 records, got %d", len(all))
	}
	for i, b := range all {
		if want := fmt.Sprintf("1-M-%d", i+1); b.Code != want {
			t.Fatalf("position %d: want %s, got %s", i, want, b.Code)
		}
	}
}

func TestStoreKeyRenameLeavesSingleLine(t *testing.T) {
	s := tempBookStore(t)
	if err := s.Upsert(Book{Code: "1-M-1", Name: "Original", LibraryID: 1}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.UpsertKeyed("1-M-1", Book{Code: "2-B-1", Name: "Original", LibraryID: 2}); err != nil {
		t.Fatalf("rename: %v", err)
	}
	all, _ := s.LoadAll()
	if len(all) != 1 {
		t.Fatalf("want exactly 1 record after rename, got %d", len(all))
	}
	if all[0].Code != "2-B-1" {
		t.Fatalf("old key survived: %+v", all[0])
	}
	if _, found, _ := s.FindByKey("1-M-1"); found {
		t.Fatalf("old key still findable")
	}
}

func TestStoreDeleteByKey(t *testing.T) {
	s := tempBookStore(t)
	s.Upsert(Book{Code: "1-M-1", Name: "Keep", LibraryID: 1})
	s.Upsert(Book{Code: "1-M-2", Name: "Drop", LibraryID: 1})

	if err := s.DeleteByKey("1-M-2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	all, _ := s.LoadAll()
	if len(all) != 1 || all[0].Code != "1-M-1" {
		t.Fatalf("unexpected records after delete: %+v", all)
	}

	err := s.DeleteByKey("1-M-2")
	if err == nil {
		t.Fatalf("expected error deleting absent key")
	}
	if DomainCode(err) != ErrCodeNotFound {
		t.Fatalf("want NOT_FOUND, got %v", err)
	}
}

func TestStoreRejectsEmptyKey(t *testing.T) {
	s := tempBookStore(t)
	err := s.Upsert(Book{Name: "No code"})
	if err == nil {
		t.Fatalf("expected error for empty key")
	}
	if DomainCode(err) != ErrCodeInvalidArgument {
		t.Fatalf("want INVALID_ARGUMENT, got %v", err)
	}
}

func TestStoreSkipsMalformedLines(t *testing.T) {
	s := tempBookStore(t)
	raw := strings.Join([]string{
		`1-M-1\Good Book\Author\2\0\1\Medellin`,
		`garbage line`,
		`1-M-2\Bad Units\Author\two\0\1\Medellin`,
		``,
		`1-M-3\Also Good\Author\1\0\1\Medellin`,
	}, "\n")
	if err := os.WriteFile(s.path, []byte(raw+"\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	all, err := s.LoadAll()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("want 2 decodable records, got %d", len(all))
	}

	// A rewrite keeps the undecodable lines on file.
	if err := s.Upsert(Book{Code: "1-M-3", Name: "Also Good", Author: "Author", FreeUnits: 5, LibraryID: 1, Campus: "Medellin"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	data, _ := os.ReadFile(s.path)
	if !strings.Contains(string(data), "garbage line") {
		t.Fatalf("rewrite destroyed an undecodable line")
	}
}

func TestStoreConcurrentUpserts(t *testing.T) {
	s := tempBookStore(t)
	const writers = 20

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.Upsert(Book{Code: fmt.Sprintf("1-M-%d", i+1), Name: fmt.Sprintf("Book %d", i+1), LibraryID: 1})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent upsert: %v", err)
		}
	}

	all, _ := s.LoadAll()
	if len(all) != writers {
		t.Fatalf("lost update: want %d records, got %d", writers, len(all))
	}
}
