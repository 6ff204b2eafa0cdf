package library

import (
	"strconv"
	"strings"
)

// Delimiter separates record fields on disk. Fields must not contain it;
// that is a documented constraint of the file format, not something the
// codecs check at runtime.
const Delimiter = `\`

// Codec turns one entity into one text line and back. Decode returns
// ok=false for lines that are too short or carry unparseable numeric
// fields; the store skips such lines instead of failing the whole load.
type Codec[T any] interface {
	Encode(e T) string
	Decode(line string) (e T, ok bool)
}

func joinFields(fields ...string) string {
	return strings.Join(fields, Delimiter)
}

// ------------------ Member ------------------

// memberCodec writes admins with the seven core identity fields and every
// other role with three extra profile fields (debt, campus, program). The
// role field tells the decoder which shape to expect.
type memberCodec struct{}

func (memberCodec) Encode(m Member) string {
	fields := []string{
		strconv.Itoa(int(m.DocumentType)),
		strconv.FormatInt(m.DocumentNumber, 10),
		strconv.Itoa(int(m.Role)),
		m.FirstName,
		m.LastName,
		m.Username,
		m.PasswordHash,
	}
	if m.Role != RoleAdmin {
		p := m.Profile
		if p == nil {
			p = &UserProfile{}
		}
		fields = append(fields,
			strconv.FormatInt(p.Debt, 10),
			p.Campus,
			p.Program,
		)
	}
	return joinFields(fields...)
}

func (memberCodec) Decode(line string) (Member, bool) {
	f := strings.Split(line, Delimiter)
	if len(f) < 7 {
		return Member{}, false
	}
	docType, err := strconv.Atoi(f[0])
	if err != nil {
		return Member{}, false
	}
	docNumber, err := strconv.ParseInt(f[1], 10, 64)
	if err != nil {
		return Member{}, false
	}
	role, err := strconv.Atoi(f[2])
	if err != nil || !Role(role).Valid() {
		return Member{}, false
	}
	m := Member{
		DocumentType:   DocumentType(docType),
		DocumentNumber: docNumber,
		Role:           Role(role),
		FirstName:      f[3],
		LastName:       f[4],
		Username:       f[5],
		PasswordHash:   f[6],
	}
	if m.Role != RoleAdmin {
		if len(f) < 10 {
			return Member{}, false
		}
		debt, err := strconv.ParseInt(f[7], 10, 64)
		if err != nil {
			return Member{}, false
		}
		m.Profile = &UserProfile{Debt: debt, Campus: f[8], Program: f[9]}
	}
	return m, true
}

// ------------------ Book ------------------

type bookCodec struct{}

func (bookCodec) Encode(b Book) string {
	return joinFields(
		b.Code,
		b.Name,
		b.Author,
		strconv.Itoa(b.FreeUnits),
		strconv.Itoa(b.LoanedUnits),
		strconv.FormatInt(b.LibraryID, 10),
		b.Campus,
	)
}

func (bookCodec) Decode(line string) (Book, bool) {
	f := strings.Split(line, Delimiter)
	if len(f) < 7 {
		return Book{}, false
	}
	free, err := strconv.Atoi(f[3])
	if err != nil {
		return Book{}, false
	}
	loaned, err := strconv.Atoi(f[4])
	if err != nil {
		return Book{}, false
	}
	libID, err := strconv.ParseInt(f[5], 10, 64)
	if err != nil {
		return Book{}, false
	}
	return Book{
		Code:        f[0],
		Name:        f[1],
		Author:      f[2],
		FreeUnits:   free,
		LoanedUnits: loaned,
		LibraryID:   libID,
		Campus:      f[6],
	}, true
}

// ------------------ Loan ------------------

type loanCodec struct{}

func (loanCodec) Encode(l Loan) string {
	return joinFields(
		l.BookCode,
		strconv.FormatInt(l.DocumentNumber, 10),
		formatDate(l.LoanDate),
		formatDate(l.DueDate),
		formatDate(l.ReturnDate),
		strconv.FormatInt(l.LibraryID, 10),
		string(l.State),
	)
}

func (loanCodec) Decode(line string) (Loan, bool) {
	f := strings.Split(line, Delimiter)
	if len(f) < 7 {
		return Loan{}, false
	}
	docNumber, err := strconv.ParseInt(f[1], 10, 64)
	if err != nil {
		return Loan{}, false
	}
	loanDate, err := parseDate(f[2])
	if err != nil {
		return Loan{}, false
	}
	dueDate, err := parseDate(f[3])
	if err != nil {
		return Loan{}, false
	}
	returnDate, err := parseDate(f[4])
	if err != nil {
		return Loan{}, false
	}
	libID, err := strconv.ParseInt(f[5], 10, 64)
	if err != nil {
		return Loan{}, false
	}
	state := LoanState(f[6])
	if state != LoanStateLoaned && state != LoanStateReturned {
		return Loan{}, false
	}
	return Loan{
		BookCode:       f[0],
		DocumentNumber: docNumber,
		LoanDate:       loanDate,
		DueDate:        dueDate,
		ReturnDate:     returnDate,
		LibraryID:      libID,
		State:          state,
	}, true
}

// ------------------ Library ------------------

type libraryCodec struct{}

func (libraryCodec) Encode(l Library) string {
	return joinFields(strconv.FormatInt(l.ID, 10), l.Campus, l.Name)
}

func (libraryCodec) Decode(line string) (Library, bool) {
	f := strings.Split(line, Delimiter)
	if len(f) < 3 {
		return Library{}, false
	}
	id, err := strconv.ParseInt(f[0], 10, 64)
	if err != nil {
		return Library{}, false
	}
	return Library{ID: id, Campus: f[1], Name: f[2]}, true
}
