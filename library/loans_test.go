package library

import (
	"fmt"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

type testEnv struct {
	catalog *CatalogService
	members *MembershipService
	engine  *LoanEngine
	clock   *fakeClock
	cfg     *Config
	lib     Library
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.DataDir = dir

	env := &testEnv{
		catalog: NewCatalogService(dir),
		members: NewMembershipService(dir),
		clock:   &fakeClock{t: date("2024-01-02")},
		cfg:     cfg,
		lib:     Library{ID: 1, Campus: "Medellin", Name: "Central"},
	}
	env.engine = NewLoanEngine(dir, env.catalog, env.members, cfg)
	env.engine.clock = env.clock
	return env
}

func (env *testEnv) addBook(t *testing.T, code string, units int) {
	t.Helper()
	err := env.catalog.AddBook(Book{Code: code, Name: "Title " + code, Author: "Author", FreeUnits: units, LibraryID: env.lib.ID, Campus: env.lib.Campus})
	if err != nil {
		t.Fatalf("add book %s: %v", code, err)
	}
}

func (env *testEnv) addStudent(t *testing.T, doc int64, username string) Session {
	t.Helper()
	m := newStudent(doc, username)
	if err := env.members.CreateUser(m, "pw"); err != nil {
		t.Fatalf("create student %s: %v", username, err)
	}
	stored, _, err := env.members.FindByUsername(username)
	if err != nil {
		t.Fatalf("find %s: %v", username, err)
	}
	return Session{Member: &stored, Library: &env.lib}
}

func TestLendAndReturnCycle(t *testing.T) {
	env := newTestEnv(t)
	env.addBook(t, "1-M-1", 3)
	alice := env.addStudent(t, 1001, "alice")

	res, err := env.engine.LendBook(alice, "1-M-1")
	if err != nil {
		t.Fatalf("lend: %v", err)
	}
	if res.Loan.State != LoanStateLoaned {
		t.Fatalf("new loan not LOANED: %+v", res.Loan)
	}
	if want := date("2024-01-02").AddDate(0, 0, env.cfg.LoanDays); !res.Loan.DueDate.Equal(want) {
		t.Fatalf("due date: got %s, want %s", formatDate(res.Loan.DueDate), formatDate(want))
	}

	b, _, _ := env.catalog.FindByCode("1-M-1")
	if b.FreeUnits != 2 || b.LoanedUnits != 1 {
		t.Fatalf("lend did not move one unit: %+v", b)
	}
	if b.TotalUnits() != 3 {
		t.Fatalf("unit invariant broken: %+v", b)
	}
	if n, _ := env.engine.ActiveLoanCount(1001); n != 1 {
		t.Fatalf("want 1 active loan, got %d", n)
	}

	ret, err := env.engine.ReturnBook(alice, "1-M-1")
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if ret.Fine != 0 || ret.DaysLate != 0 {
		t.Fatalf("on-time return accrued a fine: %+v", ret)
	}
	if ret.Loan.State != LoanStateReturned || ret.Loan.ReturnDate.IsZero() {
		t.Fatalf("loan not closed: %+v", ret.Loan)
	}

	b, _, _ = env.catalog.FindByCode("1-M-1")
	if b.FreeUnits != 3 || b.LoanedUnits != 0 {
		t.Fatalf("return did not restore units: %+v", b)
	}
	if n, _ := env.engine.ActiveLoanCount(1001); n != 0 {
		t.Fatalf("want 0 active loans, got %d", n)
	}
	// The closed loan stays on file.
	if all, _ := env.engine.ListLoans(); len(all) != 1 || all[0].State != LoanStateReturned {
		t.Fatalf("loan history wrong: %+v", all)
	}
}

func TestStudentQuota(t *testing.T) {
	env := newTestEnv(t)
	alice := env.addStudent(t, 1001, "alice")
	for i := 1; i <= 6; i++ {
		env.addBook(t, fmt.Sprintf("1-M-%d", i), 1)
	}

	for i := 1; i <= 5; i++ {
		if _, err := env.engine.LendBook(alice, fmt.Sprintf("1-M-%d", i)); err != nil {
			t.Fatalf("loan %d within quota: %v", i, err)
		}
	}
	_, err := env.engine.LendBook(alice, "1-M-6")
	if DomainCode(err) != ErrCodeQuotaExceeded {
		t.Fatalf("6th loan: want QUOTA_EXCEEDED, got %v", err)
	}

	// Only LOANED records count against the quota.
	if _, err := env.engine.ReturnBook(alice, "1-M-3"); err != nil {
		t.Fatalf("return: %v", err)
	}
	if _, err := env.engine.LendBook(alice, "1-M-6"); err != nil {
		t.Fatalf("loan after return: %v", err)
	}
}

func TestRoleQuotas(t *testing.T) {
	env := newTestEnv(t)
	for i := 1; i <= 4; i++ {
		env.addBook(t, fmt.Sprintf("1-M-%d", i), 2)
	}

	prof := newStudent(2001, "prof")
	prof.Role = RoleProfessor
	if err := env.members.CreateUser(prof, "pw"); err != nil {
		t.Fatalf("create prof: %v", err)
	}
	staff := newStudent(3001, "staff")
	staff.Role = RoleStaffAdmin
	if err := env.members.CreateUser(staff, "pw"); err != nil {
		t.Fatalf("create staff: %v", err)
	}

	profSession := Session{Member: &prof, Library: &env.lib}
	for i := 1; i <= 3; i++ {
		if _, err := env.engine.LendBook(profSession, fmt.Sprintf("1-M-%d", i)); err != nil {
			t.Fatalf("professor loan %d: %v", i, err)
		}
	}
	if _, err := env.engine.LendBook(profSession, "1-M-4"); DomainCode(err) != ErrCodeQuotaExceeded {
		t.Fatalf("professor 4th loan: want QUOTA_EXCEEDED, got %v", err)
	}

	staffSession := Session{Member: &staff, Library: &env.lib}
	if _, err := env.engine.LendBook(staffSession, "1-M-4"); err != nil {
		t.Fatalf("staff loan: %v", err)
	}
	if _, err := env.engine.LendBook(staffSession, "1-M-1"); DomainCode(err) != ErrCodeQuotaExceeded {
		t.Fatalf("staff 2nd loan: want QUOTA_EXCEEDED, got %v", err)
	}
}

func TestQuotaOverrideFromConfig(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Quotas = map[string]int{"student": 1}
	env.addBook(t, "1-M-1", 1)
	env.addBook(t, "1-M-2", 1)
	alice := env.addStudent(t, 1001, "alice")

	if _, err := env.engine.LendBook(alice, "1-M-1"); err != nil {
		t.Fatalf("lend: %v", err)
	}
	if _, err := env.engine.LendBook(alice, "1-M-2"); DomainCode(err) != ErrCodeQuotaExceeded {
		t.Fatalf("want QUOTA_EXCEEDED with override, got %v", err)
	}
}

// Loan due 2024-01-10, returned 2024-01-15: five days late, five days of
// fines added to the user's debt.
func TestLateReturnFine(t *testing.T) {
	env := newTestEnv(t)
	env.addBook(t, "1-M-1", 1)
	alice := env.addStudent(t, 1001, "alice")

	env.clock.t = date("2023-12-11") // due 30 days later: 2024-01-10
	if _, err := env.engine.LendBook(alice, "1-M-1"); err != nil {
		t.Fatalf("lend: %v", err)
	}

	env.clock.t = date("2024-01-15")
	ret, err := env.engine.ReturnBook(alice, "1-M-1")
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if ret.DaysLate != 5 {
		t.Fatalf("want 5 days late, got %d", ret.DaysLate)
	}
	if want := 5 * env.cfg.FinePerDay; ret.Fine != want {
		t.Fatalf("want fine %d, got %d", want, ret.Fine)
	}

	m, _, _ := env.members.FindByUsername("alice")
	if m.Debt() != ret.Fine {
		t.Fatalf("fine not added to debt: %d", m.Debt())
	}
}

func TestAdminCannotBorrow(t *testing.T) {
	env := newTestEnv(t)
	env.addBook(t, "1-M-1", 1)
	if err := env.members.CreateAdmin(Member{DocumentNumber: 9001, FirstName: "C", LastName: "M", Username: "admin"}, "pw"); err != nil {
		t.Fatalf("create admin: %v", err)
	}
	admin, _, _ := env.members.FindByUsername("admin")

	_, err := env.engine.LendBook(Session{Member: &admin, Library: &env.lib}, "1-M-1")
	if DomainCode(err) != ErrCodeForbidden {
		t.Fatalf("want FORBIDDEN, got %v", err)
	}
}

func TestDebtBlocksLending(t *testing.T) {
	env := newTestEnv(t)
	env.addBook(t, "1-M-1", 1)
	alice := env.addStudent(t, 1001, "alice")
	env.members.AddDebt(1001, 2000)

	_, err := env.engine.LendBook(alice, "1-M-1")
	if DomainCode(err) != ErrCodeOutstandingDebt {
		t.Fatalf("want OUTSTANDING_DEBT, got %v", err)
	}

	// Settling the debt unblocks the loan; the engine reads debt fresh
	// even though the session still carries the indebted snapshot.
	if _, err := env.members.PayDebt(1001, 2000); err != nil {
		t.Fatalf("pay: %v", err)
	}
	if _, err := env.engine.LendBook(alice, "1-M-1"); err != nil {
		t.Fatalf("lend after paying: %v", err)
	}
}

func TestDuplicateLoanSameTitle(t *testing.T) {
	env := newTestEnv(t)
	env.addBook(t, "1-M-1", 3)
	alice := env.addStudent(t, 1001, "alice")

	if _, err := env.engine.LendBook(alice, "1-M-1"); err != nil {
		t.Fatalf("lend: %v", err)
	}
	_, err := env.engine.LendBook(alice, "1-M-1")
	if DomainCode(err) != ErrCodeConflict {
		t.Fatalf("want CONFLICT, got %v", err)
	}
}

func TestBookFromAnotherLibrary(t *testing.T) {
	env := newTestEnv(t)
	err := env.catalog.AddBook(Book{Code: "2-B-1", Name: "Elsewhere", Author: "A", FreeUnits: 1, LibraryID: 2, Campus: "Bogota"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	alice := env.addStudent(t, 1001, "alice")

	_, err = env.engine.LendBook(alice, "2-B-1")
	if DomainCode(err) != ErrCodeConflict {
		t.Fatalf("want CONFLICT, got %v", err)
	}
}

func TestNoFreeUnits(t *testing.T) {
	env := newTestEnv(t)
	env.addBook(t, "1-M-1", 1)
	alice := env.addStudent(t, 1001, "alice")
	bob := env.addStudent(t, 1002, "bob")

	if _, err := env.engine.LendBook(alice, "1-M-1"); err != nil {
		t.Fatalf("lend: %v", err)
	}
	_, err := env.engine.LendBook(bob, "1-M-1")
	if DomainCode(err) != ErrCodeNoUnits {
		t.Fatalf("want NO_UNITS, got %v", err)
	}
}

func TestLendUnknownBook(t *testing.T) {
	env := newTestEnv(t)
	alice := env.addStudent(t, 1001, "alice")
	_, err := env.engine.LendBook(alice, "1-M-404")
	if DomainCode(err) != ErrCodeNotFound {
		t.Fatalf("want NOT_FOUND, got %v", err)
	}
}

func TestReturnWithoutActiveLoan(t *testing.T) {
	env := newTestEnv(t)
	env.addBook(t, "1-M-1", 1)
	alice := env.addStudent(t, 1001, "alice")

	_, err := env.engine.ReturnBook(alice, "1-M-1")
	if DomainCode(err) != ErrCodeNotFound {
		t.Fatalf("want NOT_FOUND, got %v", err)
	}

	// Returning twice: the second return finds no active loan either.
	if _, err := env.engine.LendBook(alice, "1-M-1"); err != nil {
		t.Fatalf("lend: %v", err)
	}
	if _, err := env.engine.ReturnBook(alice, "1-M-1"); err != nil {
		t.Fatalf("return: %v", err)
	}
	if _, err := env.engine.ReturnBook(alice, "1-M-1"); DomainCode(err) != ErrCodeNotFound {
		t.Fatalf("second return: want NOT_FOUND, got %v", err)
	}
}

func TestDeleteMemberBlockedByActiveLoan(t *testing.T) {
	env := newTestEnv(t)
	env.addBook(t, "1-M-1", 1)
	alice := env.addStudent(t, 1001, "alice")

	if _, err := env.engine.LendBook(alice, "1-M-1"); err != nil {
		t.Fatalf("lend: %v", err)
	}
	err := env.members.DeleteMember("alice", env.engine)
	if DomainCode(err) != ErrCodeConflict {
		t.Fatalf("want CONFLICT, got %v", err)
	}
	if _, found, _ := env.members.FindByUsername("alice"); !found {
		t.Fatalf("member lost after refused delete")
	}

	if _, err := env.engine.ReturnBook(alice, "1-M-1"); err != nil {
		t.Fatalf("return: %v", err)
	}
	if err := env.members.DeleteMember("alice", env.engine); err != nil {
		t.Fatalf("delete after return: %v", err)
	}
}
