package library

import (
	"fmt"
	"strconv"
	"time"
)

// Role classifies a member and decides what they may do: admins manage the
// catalog and membership, everyone else borrows books.
type Role int

const (
	RoleAdmin Role = iota
	RoleStudent
	RoleProfessor
	RoleStaffAdmin
)

func (r Role) Valid() bool {
	return r >= RoleAdmin && r <= RoleStaffAdmin
}

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "Admin"
	case RoleStudent:
		return "Student"
	case RoleProfessor:
		return "Professor"
	case RoleStaffAdmin:
		return "Staff"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// maxActiveLoans is the default number of simultaneous open loans a role may
// hold. Admins cannot borrow at all.
func (r Role) maxActiveLoans() int {
	switch r {
	case RoleStudent:
		return 5
	case RoleProfessor:
		return 3
	case RoleStaffAdmin:
		return 1
	default:
		return 0
	}
}

// DocumentType identifies the kind of identity document a member registered
// with.
type DocumentType int

const (
	DocCitizenID DocumentType = iota
	DocForeignerID
	DocPassport
)

// Member is a registered account. Admins carry only the core identity
// fields; every other role also carries a Profile with debt and campus
// information.
type Member struct {
	DocumentType   DocumentType
	DocumentNumber int64
	Role           Role
	FirstName      string
	LastName       string
	Username       string
	PasswordHash   string
	Profile        *UserProfile
}

// UserProfile holds the attributes only non-admin members have.
type UserProfile struct {
	Debt    int64
	Campus  string
	Program string
}

func (m *Member) IsAdmin() bool { return m.Role == RoleAdmin }

func (m *Member) FullName() string {
	return m.FirstName + " " + m.LastName
}

// Debt returns the member's outstanding debt, zero for admins.
func (m *Member) Debt() int64 {
	if m.Profile == nil {
		return 0
	}
	return m.Profile.Debt
}

// Book is one title in the catalog. FreeUnits plus LoanedUnits is the total
// number of physical copies the library owns.
type Book struct {
	Code        string
	Name        string
	Author      string
	FreeUnits   int
	LoanedUnits int
	LibraryID   int64
	Campus      string
}

func (b *Book) TotalUnits() int { return b.FreeUnits + b.LoanedUnits }

// Library is one branch of the university library system.
type Library struct {
	ID     int64
	Campus string
	Name   string
}

// LoanState is the lifecycle state of a loan. A loan is created LOANED and
// moves to RETURNED exactly once; RETURNED is terminal.
type LoanState string

const (
	LoanStateLoaned   LoanState = "LOANED"
	LoanStateReturned LoanState = "RETURNED"
)

// Loan records one borrowing of one book by one member. Its identity is the
// (BookCode, DocumentNumber, LoanDate) triple; ReturnDate stays zero while
// the loan is open.
type Loan struct {
	BookCode       string
	DocumentNumber int64
	LoanDate       time.Time
	DueDate        time.Time
	ReturnDate     time.Time
	LibraryID      int64
	State          LoanState
}

// Key is the composite identity used to address a loan in its store. The
// separator is never written to disk, it only needs to keep the three parts
// apart.
func (l Loan) Key() string {
	return l.BookCode + "|" + strconv.FormatInt(l.DocumentNumber, 10) + "|" + formatDate(l.LoanDate)
}

func (l Loan) Active() bool { return l.State == LoanStateLoaned }
