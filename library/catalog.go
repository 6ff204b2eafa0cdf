package library

import (
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
)

const (
	booksFile     = "books.txt"
	codeSeparator = "-"
)

// CatalogService manages the book inventory: codes, unit counts and the
// catalog file itself.
type CatalogService struct {
	store *RecordStore[Book]
}

func NewCatalogService(dataDir string) *CatalogService {
	path := filepath.Join(dataDir, booksFile)
	store := NewRecordStore[Book](path, bookCodec{}, func(b Book) string { return b.Code })
	return &CatalogService{store: store}
}

// GenerateNextCode builds the next book code for a branch. Codes look like
// "1-M-3": library id, the campus initial, and a running number. The number
// continues from the highest existing code under the same prefix; if no
// book carries the prefix yet it continues from the highest trailing number
// across the whole catalog, so numbering stays monotonic even after a
// branch prefix changes. Codes with an unparseable trailing segment are
// ignored.
func (c *CatalogService) GenerateNextCode(libraryID int64, campus string) (string, error) {
	campus = strings.TrimSpace(campus)
	if campus == "" {
		return "", NewInvalidArgumentError("campus must not be empty")
	}
	initial := unicode.ToUpper([]rune(campus)[0])
	prefix := fmt.Sprintf("%d%s%c", libraryID, codeSeparator, initial)

	books, err := c.store.LoadAll()
	if err != nil {
		return "", err
	}

	max := 0
	matched := false
	for _, b := range books {
		if !strings.HasPrefix(b.Code, prefix+codeSeparator) {
			continue
		}
		parts := strings.Split(b.Code, codeSeparator)
		if len(parts) != 3 {
			continue
		}
		n, err := strconv.Atoi(parts[2])
		if err != nil {
			continue
		}
		matched = true
		if n > max {
			max = n
		}
	}
	if !matched {
		// No book under this prefix: continue from the global maximum.
		for _, b := range books {
			parts := strings.Split(b.Code, codeSeparator)
			if len(parts) < 2 {
				continue
			}
			n, err := strconv.Atoi(parts[len(parts)-1])
			if err != nil {
				continue
			}
			if n > max {
				max = n
			}
		}
	}
	return fmt.Sprintf("%s%s%d", prefix, codeSeparator, max+1), nil
}

// AddBook adds a new title. The code must be set (usually from
// GenerateNextCode) and unused.
func (c *CatalogService) AddBook(b Book) error {
	if strings.TrimSpace(b.Code) == "" {
		return NewInvalidArgumentError("book code must not be empty")
	}
	if strings.TrimSpace(b.Name) == "" {
		return NewInvalidArgumentError("book name must not be empty")
	}
	if b.FreeUnits < 0 || b.LoanedUnits < 0 {
		return NewInvalidArgumentError("unit counts must not be negative")
	}
	_, exists, err := c.store.FindByKey(b.Code)
	if err != nil {
		return err
	}
	if exists {
		return NewConflictError("book code %q already exists", b.Code)
	}
	return c.store.Upsert(b)
}

// EditBook updates a title's descriptive fields and total unit count. The
// new total must cover the units currently out on loan; free units are
// recomputed from the difference.
func (c *CatalogService) EditBook(code, name, author string, totalUnits int) error {
	b, found, err := c.store.FindByKey(code)
	if err != nil {
		return err
	}
	if !found {
		return NewNotFoundError("no book with code %q", code)
	}
	if totalUnits < b.LoanedUnits {
		return NewConflictError("cannot set %d total units while %d are on loan", totalUnits, b.LoanedUnits)
	}
	if strings.TrimSpace(name) != "" {
		b.Name = name
	}
	if strings.TrimSpace(author) != "" {
		b.Author = author
	}
	b.FreeUnits = totalUnits - b.LoanedUnits
	return c.store.Upsert(b)
}

// RemoveUnits withdraws up to count free units of a title and returns how
// many were actually removed. The count is clamped to the free units on
// hand. When the last free unit goes while copies are still on loan the
// removal is refused outright, and once both counts reach zero the whole
// record is deleted.
func (c *CatalogService) RemoveUnits(code string, count int) (int, error) {
	if count <= 0 {
		return 0, NewInvalidArgumentError("unit count must be positive")
	}
	b, found, err := c.store.FindByKey(code)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, NewNotFoundError("no book with code %q", code)
	}
	if b.FreeUnits == 0 && b.LoanedUnits > 0 {
		return 0, NewConflictError("no free units of %q to remove while %d are on loan", code, b.LoanedUnits)
	}
	if count > b.FreeUnits {
		log.Printf("catalog: clamping removal of %d units of %q to the %d available", count, code, b.FreeUnits)
		count = b.FreeUnits
	}
	b.FreeUnits -= count
	if b.FreeUnits == 0 && b.LoanedUnits == 0 {
		return count, c.store.DeleteByKey(code)
	}
	return count, c.store.Upsert(b)
}

// MarkLoaned moves one unit from free to loaned, persisting the book. This
// is the only way the loan engine touches unit counts.
func (c *CatalogService) MarkLoaned(code string) error {
	b, found, err := c.store.FindByKey(code)
	if err != nil {
		return err
	}
	if !found {
		return NewNotFoundError("no book with code %q", code)
	}
	if b.FreeUnits == 0 {
		return NewNoUnitsError("no free units of %q", code)
	}
	b.FreeUnits--
	b.LoanedUnits++
	return c.store.Upsert(b)
}

// MarkReturned moves one unit back from loaned to free.
func (c *CatalogService) MarkReturned(code string) error {
	b, found, err := c.store.FindByKey(code)
	if err != nil {
		return err
	}
	if !found {
		return NewNotFoundError("no book with code %q", code)
	}
	if b.LoanedUnits == 0 {
		return NewConflictError("no loaned units of %q to return", code)
	}
	b.LoanedUnits--
	b.FreeUnits++
	return c.store.Upsert(b)
}

// FindByCode looks a title up by its code.
func (c *CatalogService) FindByCode(code string) (Book, bool, error) {
	return c.store.FindByKey(code)
}

// ListBooks returns the whole catalog in file order.
func (c *CatalogService) ListBooks() ([]Book, error) {
	return c.store.LoadAll()
}

// SearchBooks returns titles whose name or author contains q,
// case-insensitively.
func (c *CatalogService) SearchBooks(q string) ([]Book, error) {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return nil, nil
	}
	return c.store.Filter(func(b Book) bool {
		return strings.Contains(strings.ToLower(b.Name), q) ||
			strings.Contains(strings.ToLower(b.Author), q)
	})
}
