package library

import (
	"path/filepath"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const membersFile = "members.txt"

// LoanCounter reports how many open loans a member holds. The loan engine
// implements it; membership only needs the count to guard deletions.
type LoanCounter interface {
	ActiveLoanCount(documentNumber int64) (int, error)
}

// MembershipService manages accounts: credentials, identity fields, role
// changes and the debt a user owes.
type MembershipService struct {
	store *RecordStore[Member]
}

func NewMembershipService(dataDir string) *MembershipService {
	path := filepath.Join(dataDir, membersFile)
	store := NewRecordStore[Member](path, memberCodec{}, func(m Member) string { return m.Username })
	return &MembershipService{store: store}
}

// ------------------ Authentication ------------------

// Login scans the member file for the username (stored values are trimmed,
// the match itself is case-sensitive) and verifies the password against the
// stored bcrypt hash, which compares in constant time. A missing member
// file behaves like any other failed login.
func (s *MembershipService) Login(username, password string) (*Member, error) {
	m, found, err := s.store.Find(func(m Member) bool {
		return strings.TrimSpace(m.Username) == username
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, NewNotFoundError("invalid username or password")
	}
	if bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(password)) != nil {
		return nil, NewNotFoundError("invalid username or password")
	}
	return &m, nil
}

// ResetPassword replaces a member's password hash.
func (s *MembershipService) ResetPassword(username, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return NewInvalidArgumentError("password must not be empty")
	}
	m, found, err := s.store.FindByKey(username)
	if err != nil {
		return err
	}
	if !found {
		return NewNotFoundError("no member %q", username)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	m.PasswordHash = string(hash)
	return s.store.Upsert(m)
}

// ------------------ Creation ------------------

// CreateAdmin registers a new administrator account.
func (s *MembershipService) CreateAdmin(m Member, password string) error {
	m.Role = RoleAdmin
	m.Profile = nil
	return s.create(m, password)
}

// CreateUser registers a new borrowing account (student, professor or
// staff).
func (s *MembershipService) CreateUser(m Member, password string) error {
	if m.Role == RoleAdmin || !m.Role.Valid() {
		return NewInvalidArgumentError("role %v is not a borrowing role", m.Role)
	}
	if m.Profile == nil {
		m.Profile = &UserProfile{}
	}
	return s.create(m, password)
}

func (s *MembershipService) create(m Member, password string) error {
	m.Username = strings.TrimSpace(m.Username)
	if m.Username == "" {
		return NewInvalidArgumentError("username must not be empty")
	}
	if strings.TrimSpace(password) == "" {
		return NewInvalidArgumentError("password must not be empty")
	}
	if m.DocumentNumber <= 0 {
		return NewInvalidArgumentError("document number must be positive")
	}
	if err := s.checkUnique(m.Username, m.DocumentNumber, ""); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	m.PasswordHash = string(hash)
	return s.store.Upsert(m)
}

// checkUnique rejects a username (case-insensitively) or document number
// already held by a member other than exceptUsername.
func (s *MembershipService) checkUnique(username string, docNumber int64, exceptUsername string) error {
	all, err := s.store.LoadAll()
	if err != nil {
		return err
	}
	for _, existing := range all {
		if exceptUsername != "" && existing.Username == exceptUsername {
			continue
		}
		if strings.EqualFold(existing.Username, username) {
			return NewConflictError("username %q is already taken", username)
		}
		if existing.DocumentNumber == docNumber {
			return NewConflictError("document number %d is already registered", docNumber)
		}
	}
	return nil
}

// ------------------ Edits ------------------

// EditMember rewrites the member stored under oldUsername with the updated
// identity fields. The password hash is preserved; use ResetPassword to
// change it. A role change across the admin/user divide is a type change:
// the old record is deleted and a fresh one of the other shape is
// appended, because the two shapes carry different field sets.
func (s *MembershipService) EditMember(oldUsername string, updated Member) error {
	existing, found, err := s.store.FindByKey(oldUsername)
	if err != nil {
		return err
	}
	if !found {
		return NewNotFoundError("no member %q", oldUsername)
	}
	updated.Username = strings.TrimSpace(updated.Username)
	if updated.Username == "" {
		return NewInvalidArgumentError("username must not be empty")
	}
	if !updated.Role.Valid() {
		return NewInvalidArgumentError("invalid role")
	}
	if err := s.checkUnique(updated.Username, updated.DocumentNumber, oldUsername); err != nil {
		return err
	}
	updated.PasswordHash = existing.PasswordHash

	switch {
	case existing.Role == RoleAdmin && updated.Role != RoleAdmin:
		// Admin becomes a borrowing user: fresh profile.
		if updated.Profile == nil {
			updated.Profile = &UserProfile{}
		}
		if err := s.store.DeleteByKey(oldUsername); err != nil {
			return err
		}
		return s.store.Upsert(updated)
	case existing.Role != RoleAdmin && updated.Role == RoleAdmin:
		// A user with debt cannot be promoted out of owing it.
		if existing.Debt() > 0 {
			return NewOutstandingDebtError("%q owes %d and cannot become an admin", oldUsername, existing.Debt())
		}
		updated.Profile = nil
		if err := s.store.DeleteByKey(oldUsername); err != nil {
			return err
		}
		return s.store.Upsert(updated)
	default:
		if existing.Role != RoleAdmin {
			// Debt is owned by the loan engine; edits never touch it.
			if updated.Profile == nil {
				updated.Profile = &UserProfile{}
			}
			updated.Profile.Debt = existing.Debt()
		}
		return s.store.UpsertKeyed(oldUsername, updated)
	}
}

// DeleteMember removes an account. Admins cannot be deleted through this
// path, and a borrowing user must first return every open loan and settle
// any debt.
func (s *MembershipService) DeleteMember(username string, loans LoanCounter) error {
	m, found, err := s.store.FindByKey(username)
	if err != nil {
		return err
	}
	if !found {
		return NewNotFoundError("no member %q", username)
	}
	if m.IsAdmin() {
		return NewForbiddenError("admin accounts cannot be deleted")
	}
	active, err := loans.ActiveLoanCount(m.DocumentNumber)
	if err != nil {
		return err
	}
	if active > 0 {
		return NewConflictError("%q still holds %d active loan(s)", username, active)
	}
	if m.Debt() > 0 {
		return NewOutstandingDebtError("%q owes %d and cannot be deleted", username, m.Debt())
	}
	return s.store.DeleteByKey(username)
}

// ------------------ Debt ------------------

// AddDebt charges a fine to a user's account.
func (s *MembershipService) AddDebt(documentNumber, amount int64) error {
	if amount <= 0 {
		return NewInvalidArgumentError("debt amount must be positive")
	}
	m, found, err := s.FindByDocument(documentNumber)
	if err != nil {
		return err
	}
	if !found {
		return NewNotFoundError("no member with document %d", documentNumber)
	}
	if m.IsAdmin() {
		return NewForbiddenError("admins do not carry debt")
	}
	m.Profile.Debt += amount
	return s.store.Upsert(m)
}

// PayDebt settles up to amount of a user's debt and returns the remaining
// balance. Overpayment simply clears the debt.
func (s *MembershipService) PayDebt(documentNumber, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, NewInvalidArgumentError("payment must be positive")
	}
	m, found, err := s.FindByDocument(documentNumber)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, NewNotFoundError("no member with document %d", documentNumber)
	}
	if m.IsAdmin() {
		return 0, NewForbiddenError("admins do not carry debt")
	}
	if amount > m.Profile.Debt {
		amount = m.Profile.Debt
	}
	m.Profile.Debt -= amount
	if err := s.store.Upsert(m); err != nil {
		return 0, err
	}
	return m.Profile.Debt, nil
}

// ------------------ Lookups ------------------

// FindByUsername looks an account up by its exact username.
func (s *MembershipService) FindByUsername(username string) (Member, bool, error) {
	return s.store.FindByKey(username)
}

// FindByDocument looks an account up by document number.
func (s *MembershipService) FindByDocument(documentNumber int64) (Member, bool, error) {
	return s.store.Find(func(m Member) bool { return m.DocumentNumber == documentNumber })
}

// ListMembers returns every account in file order.
func (s *MembershipService) ListMembers() ([]Member, error) {
	return s.store.LoadAll()
}
