package library

import (
	"fmt"
	"path/filepath"
	"time"
)

const loansFile = "loans.txt"

// Clock abstracts today's date so loan and fine arithmetic is testable.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Session carries the acting member and the branch they are operating at.
// It replaces any notion of a process-wide "current user": every
// orchestration call receives its session explicitly.
type Session struct {
	Member  *Member
	Library *Library
}

// LoanEngine orchestrates borrowing and returning. It owns the loan file
// and goes through the catalog and membership services for every book or
// member mutation, so each entity's own persistence invariants keep
// holding.
//
// A lend or return touches two files (book units, then the loan record)
// and is not atomic across them: a crash between the two writes leaves
// them inconsistent. That gap is accepted; each individual file is still
// rewritten all-or-nothing.
type LoanEngine struct {
	store   *RecordStore[Loan]
	catalog *CatalogService
	members *MembershipService
	cfg     *Config
	clock   Clock
}

func NewLoanEngine(dataDir string, catalog *CatalogService, members *MembershipService, cfg *Config) *LoanEngine {
	path := filepath.Join(dataDir, loansFile)
	store := NewRecordStore[Loan](path, loanCodec{}, Loan.Key)
	return &LoanEngine{
		store:   store,
		catalog: catalog,
		members: members,
		cfg:     cfg,
		clock:   realClock{},
	}
}

// LendResult describes a successful loan.
type LendResult struct {
	Loan    Loan
	Message string
}

// LendBook checks every lending rule in order and, when all pass, moves
// one unit of the book to loaned and records a new LOANED loan due
// cfg.LoanDays from today.
func (e *LoanEngine) LendBook(s Session, bookCode string) (*LendResult, error) {
	m := s.Member
	if m == nil || s.Library == nil {
		return nil, NewInvalidArgumentError("session needs a member and a library")
	}
	if m.IsAdmin() {
		return nil, NewForbiddenError("administrators cannot borrow books")
	}
	// The session member may be stale; debt and role are read fresh.
	fresh, found, err := e.members.FindByDocument(m.DocumentNumber)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, NewNotFoundError("no member with document %d", m.DocumentNumber)
	}
	m = &fresh
	if m.Debt() > 0 {
		return nil, NewOutstandingDebtError("you owe %d; settle your debt before borrowing", m.Debt())
	}
	book, found, err := e.catalog.FindByCode(bookCode)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, NewNotFoundError("no book with code %q", bookCode)
	}
	if book.LibraryID != s.Library.ID {
		return nil, NewConflictError("book %q belongs to another library", bookCode)
	}
	if book.FreeUnits == 0 {
		return nil, NewNoUnitsError("no free units of %q", bookCode)
	}
	active, err := e.ActiveLoans(m.DocumentNumber)
	if err != nil {
		return nil, err
	}
	quota := e.cfg.QuotaFor(m.Role)
	if len(active) >= quota {
		return nil, NewQuotaExceededError("a %s may hold at most %d active loan(s)", m.Role, quota)
	}
	for _, l := range active {
		if l.BookCode == bookCode {
			return nil, NewConflictError("you already have %q on loan", bookCode)
		}
	}

	if err := e.catalog.MarkLoaned(bookCode); err != nil {
		return nil, err
	}
	today := dateOnly(e.clock.Now())
	loan := Loan{
		BookCode:       bookCode,
		DocumentNumber: m.DocumentNumber,
		LoanDate:       today,
		DueDate:        today.AddDate(0, 0, e.cfg.LoanDays),
		LibraryID:      s.Library.ID,
		State:          LoanStateLoaned,
	}
	if err := e.store.Upsert(loan); err != nil {
		return nil, err
	}
	return &LendResult{
		Loan:    loan,
		Message: fmt.Sprintf("book %q lent to %s, due %s", bookCode, m.FullName(), formatDate(loan.DueDate)),
	}, nil
}

// ReturnResult describes a completed return, including any fine accrued.
type ReturnResult struct {
	Loan     Loan
	DaysLate int
	Fine     int64
	Message  string
}

// ReturnBook closes the member's active loan for the book, frees the unit,
// and charges a late fine when the due date has passed. A return that is
// late by any amount is billed for at least one day.
func (e *LoanEngine) ReturnBook(s Session, bookCode string) (*ReturnResult, error) {
	m := s.Member
	if m == nil {
		return nil, NewInvalidArgumentError("session needs a member")
	}
	loan, found, err := e.store.Find(func(l Loan) bool {
		return l.Active() && l.DocumentNumber == m.DocumentNumber && l.BookCode == bookCode
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, NewNotFoundError("no active loan of %q for %s", bookCode, m.FullName())
	}

	today := dateOnly(e.clock.Now())
	loan.ReturnDate = today
	loan.State = LoanStateReturned
	if err := e.store.Upsert(loan); err != nil {
		return nil, err
	}
	if err := e.catalog.MarkReturned(bookCode); err != nil {
		return nil, err
	}

	result := &ReturnResult{
		Loan:    loan,
		Message: fmt.Sprintf("book %q returned on time", bookCode),
	}
	if today.After(loan.DueDate) {
		daysLate := daysBetween(today, loan.DueDate)
		if daysLate < 1 {
			daysLate = 1
		}
		fine := int64(daysLate) * e.cfg.FinePerDay
		if err := e.members.AddDebt(m.DocumentNumber, fine); err != nil {
			return nil, err
		}
		result.DaysLate = daysLate
		result.Fine = fine
		result.Message = fmt.Sprintf("book %q returned %d day(s) late; a fine of %d was added to your debt", bookCode, daysLate, fine)
	}
	return result, nil
}

// ------------------ Queries ------------------

// ActiveLoanCount implements LoanCounter for membership deletion guards.
func (e *LoanEngine) ActiveLoanCount(documentNumber int64) (int, error) {
	active, err := e.ActiveLoans(documentNumber)
	return len(active), err
}

// ActiveLoans returns a member's open loans. Only LOANED records count;
// returned loans stay on file but never against the quota.
func (e *LoanEngine) ActiveLoans(documentNumber int64) ([]Loan, error) {
	return e.store.Filter(func(l Loan) bool {
		return l.Active() && l.DocumentNumber == documentNumber
	})
}

// LoansForBook returns every loan ever recorded for a book code.
func (e *LoanEngine) LoansForBook(bookCode string) ([]Loan, error) {
	return e.store.Filter(func(l Loan) bool { return l.BookCode == bookCode })
}

// ListLoans returns the full loan history in file order.
func (e *LoanEngine) ListLoans() ([]Loan, error) {
	return e.store.LoadAll()
}
