package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"unilib/library"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// app wires the services over one data directory.
type app struct {
	cfg       *library.Config
	catalog   *library.CatalogService
	members   *library.MembershipService
	libraries *library.LibraryRegistry
	loans     *library.LoanEngine
}

func openApp(cfgPath string) (*app, error) {
	cfg, err := library.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	catalog := library.NewCatalogService(cfg.DataDir)
	members := library.NewMembershipService(cfg.DataDir)
	return &app{
		cfg:       cfg,
		catalog:   catalog,
		members:   members,
		libraries: library.NewLibraryRegistry(cfg.DataDir),
		loans:     library.NewLoanEngine(cfg.DataDir, catalog, members, cfg),
	}, nil
}

var cfgPath string

func main() {
	root := &cobra.Command{
		Use:           "unilib",
		Short:         "University library management over flat-file records",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "path to the yaml config file")
	root.AddCommand(newShellCmd(), newInitCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// ------------------ init ------------------

func newInitCmd() *cobra.Command {
	var (
		libraryID   int64
		campus      string
		libraryName string
		adminUser   string
		adminDoc    int64
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the data directory with a first library and admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cfgPath)
			if err != nil {
				return err
			}
			existing, err := a.members.ListMembers()
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				return fmt.Errorf("member file already exists in %s; refusing to initialize", a.cfg.DataDir)
			}

			if err := a.libraries.Add(library.Library{ID: libraryID, Campus: campus, Name: libraryName}); err != nil {
				return err
			}

			password, err := readPassword(fmt.Sprintf("Password for admin %q: ", adminUser))
			if err != nil {
				return err
			}
			confirm, err := readPassword("Repeat password: ")
			if err != nil {
				return err
			}
			if password != confirm {
				return fmt.Errorf("passwords do not match")
			}

			admin := library.Member{
				DocumentNumber: adminDoc,
				FirstName:      "System",
				LastName:       "Administrator",
				Username:       adminUser,
			}
			if err := a.members.CreateAdmin(admin, password); err != nil {
				return err
			}
			fmt.Printf("Initialized %s: library %d (%s), admin %q\n", a.cfg.DataDir, libraryID, campus, adminUser)
			return nil
		},
	}
	cmd.Flags().Int64Var(&libraryID, "library-id", 1, "id for the first library")
	cmd.Flags().StringVar(&campus, "campus", "Medellin", "campus of the first library")
	cmd.Flags().StringVar(&libraryName, "library-name", "Central Library", "name of the first library")
	cmd.Flags().StringVar(&adminUser, "admin", "admin", "username for the first admin")
	cmd.Flags().Int64Var(&adminDoc, "admin-document", 1, "document number for the first admin")
	return cmd
}

// ------------------ shell ------------------

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start the interactive library shell",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cfgPath)
			if err != nil {
				return err
			}
			return runShell(a)
		},
	}
}

// readPassword securely reads a password with masking.
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	fmt.Println()
	return strings.TrimSpace(string(bytePassword)), nil
}

func runShell(a *app) error {
	sc := bufio.NewScanner(os.Stdin)

	fmt.Println("Welcome to the university library system.")
	session, err := login(sc, a)
	if err != nil {
		return err
	}
	fmt.Printf("Hello %s (%s), acting at %s.\n", session.Member.FullName(), session.Member.Role, session.Library.Name)

	if session.Member.IsAdmin() {
		fmt.Println("Commands: add book, edit book, remove units, list books, search book,")
		fmt.Println("          add member, add admin, edit member, delete member, list members,")
		fmt.Println("          reset password, list loans, add library, list libraries, exit")
	} else {
		fmt.Println("Commands: borrow, return, my loans, pay debt, search book, list books, exit")
	}

	for {
		fmt.Print("\n> ")
		if !sc.Scan() {
			return nil
		}
		cmd := strings.TrimSpace(sc.Text())
		if cmd == "exit" {
			fmt.Println("Goodbye!")
			return nil
		}
		if session.Member.IsAdmin() {
			dispatchAdmin(sc, a, session, cmd)
		} else {
			dispatchUser(sc, a, session, cmd)
		}
	}
}

func login(sc *bufio.Scanner, a *app) (library.Session, error) {
	username, ok := promptLine(sc, "Username: ")
	if !ok {
		return library.Session{}, fmt.Errorf("no input")
	}
	password, err := readPassword("Password: ")
	if err != nil {
		return library.Session{}, fmt.Errorf("read password: %w", err)
	}
	member, err := a.members.Login(username, password)
	if err != nil {
		return library.Session{}, fmt.Errorf("login failed: %s", library.UserMessage(err))
	}

	libs, err := a.libraries.LoadAll()
	if err != nil {
		return library.Session{}, err
	}
	if len(libs) == 0 {
		return library.Session{}, fmt.Errorf("no libraries registered; run 'unilib init' first")
	}
	lib := libs[0]
	if len(libs) > 1 {
		fmt.Println("Libraries:")
		for _, l := range libs {
			fmt.Printf("  %d  %-15s %s\n", l.ID, l.Campus, l.Name)
		}
		id, ok := promptInt64(sc, "Library id: ")
		if !ok {
			return library.Session{}, fmt.Errorf("no input")
		}
		chosen, found, err := a.libraries.FindByID(id)
		if err != nil {
			return library.Session{}, err
		}
		if !found {
			return library.Session{}, fmt.Errorf("no library with id %d", id)
		}
		lib = chosen
	}
	return library.Session{Member: member, Library: &lib}, nil
}

func dispatchAdmin(sc *bufio.Scanner, a *app, s library.Session, cmd string) {
	switch cmd {
	case "add book":
		handleAddBook(sc, a, s)
	case "edit book":
		handleEditBook(sc, a)
	case "remove units":
		handleRemoveUnits(sc, a)
	case "list books":
		handleListBooks(a)
	case "search book":
		handleSearchBooks(sc, a)
	case "add member":
		handleAddMember(sc, a, false)
	case "add admin":
		handleAddMember(sc, a, true)
	case "edit member":
		handleEditMember(sc, a)
	case "delete member":
		handleDeleteMember(sc, a)
	case "list members":
		handleListMembers(a)
	case "reset password":
		handleResetPassword(sc, a)
	case "list loans":
		handleListLoans(a)
	case "add library":
		handleAddLibrary(sc, a)
	case "list libraries":
		handleListLibraries(a)
	default:
		fmt.Println("Unknown command. Type one of the available commands listed above.")
	}
}

func dispatchUser(sc *bufio.Scanner, a *app, s library.Session, cmd string) {
	switch cmd {
	case "borrow":
		handleBorrow(sc, a, s)
	case "return":
		handleReturn(sc, a, s)
	case "my loans":
		handleMyLoans(a, s)
	case "pay debt":
		handlePayDebt(sc, a, s)
	case "search book":
		handleSearchBooks(sc, a)
	case "list books":
		handleListBooks(a)
	default:
		fmt.Println("Unknown command. Type one of the available commands listed above.")
	}
}

// ------------------ prompts ------------------

func promptLine(sc *bufio.Scanner, label string) (string, bool) {
	fmt.Print(label)
	if !sc.Scan() {
		return "", false
	}
	return strings.TrimSpace(sc.Text()), true
}

func promptInt(sc *bufio.Scanner, label string) (int, bool) {
	raw, ok := promptLine(sc, label)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		fmt.Printf("Invalid number: %s\n", raw)
		return 0, false
	}
	return n, true
}

func promptInt64(sc *bufio.Scanner, label string) (int64, bool) {
	raw, ok := promptLine(sc, label)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		fmt.Printf("Invalid number: %s\n", raw)
		return 0, false
	}
	return n, true
}

func printErr(err error) {
	fmt.Printf("Error: %s\n", library.UserMessage(err))
}

// ------------------ book handlers ------------------

func handleAddBook(sc *bufio.Scanner, a *app, s library.Session) {
	name, ok := promptLine(sc, "Name: ")
	if !ok {
		return
	}
	author, ok := promptLine(sc, "Author: ")
	if !ok {
		return
	}
	units, ok := promptInt(sc, "Units: ")
	if !ok {
		return
	}

	code, err := a.catalog.GenerateNextCode(s.Library.ID, s.Library.Campus)
	if err != nil {
		printErr(err)
		return
	}
	book := library.Book{
		Code:      code,
		Name:      name,
		Author:    author,
		FreeUnits: units,
		LibraryID: s.Library.ID,
		Campus:    s.Library.Campus,
	}
	if err := a.catalog.AddBook(book); err != nil {
		printErr(err)
		return
	}
	fmt.Printf("Added %q with code %s (%d units)\n", name, code, units)
}

func handleEditBook(sc *bufio.Scanner, a *app) {
	code, ok := promptLine(sc, "Code: ")
	if !ok {
		return
	}
	name, ok := promptLine(sc, "New name (blank to keep): ")
	if !ok {
		return
	}
	author, ok := promptLine(sc, "New author (blank to keep): ")
	if !ok {
		return
	}
	total, ok := promptInt(sc, "Total units: ")
	if !ok {
		return
	}
	if err := a.catalog.EditBook(code, name, author, total); err != nil {
		printErr(err)
		return
	}
	fmt.Printf("Book %s updated\n", code)
}

func handleRemoveUnits(sc *bufio.Scanner, a *app) {
	code, ok := promptLine(sc, "Code: ")
	if !ok {
		return
	}
	count, ok := promptInt(sc, "Units to remove: ")
	if !ok {
		return
	}
	removed, err := a.catalog.RemoveUnits(code, count)
	if err != nil {
		printErr(err)
		return
	}
	fmt.Printf("Removed %d unit(s) of %s\n", removed, code)
}

func handleListBooks(a *app) {
	books, err := a.catalog.ListBooks()
	if err != nil {
		printErr(err)
		return
	}
	if len(books) == 0 {
		fmt.Println("No books in the catalog.")
		return
	}
	fmt.Printf("%-10s %-35s %-25s %6s %6s %-12s\n", "Code", "Name", "Author", "Free", "Out", "Campus")
	fmt.Println(strings.Repeat("-", 100))
	for _, b := range books {
		fmt.Printf("%-10s %-35s %-25s %6d %6d %-12s\n",
			b.Code, truncate(b.Name, 35), truncate(b.Author, 25), b.FreeUnits, b.LoanedUnits, b.Campus)
	}
}

func handleSearchBooks(sc *bufio.Scanner, a *app) {
	q, ok := promptLine(sc, "Query: ")
	if !ok {
		return
	}
	books, err := a.catalog.SearchBooks(q)
	if err != nil {
		printErr(err)
		return
	}
	if len(books) == 0 {
		fmt.Printf("No books matching %q.\n", q)
		return
	}
	for _, b := range books {
		fmt.Printf("%-10s %s — %s (%d free)\n", b.Code, b.Name, b.Author, b.FreeUnits)
	}
}

// ------------------ member handlers ------------------

func handleAddMember(sc *bufio.Scanner, a *app, admin bool) {
	doc, ok := promptInt64(sc, "Document number: ")
	if !ok {
		return
	}
	first, ok := promptLine(sc, "First name: ")
	if !ok {
		return
	}
	last, ok := promptLine(sc, "Last name: ")
	if !ok {
		return
	}
	username, ok := promptLine(sc, "Username: ")
	if !ok {
		return
	}
	password, err := readPassword(fmt.Sprintf("Password for %s: ", username))
	if err != nil {
		fmt.Printf("Error reading password: %v\n", err)
		return
	}

	m := library.Member{
		DocumentNumber: doc,
		FirstName:      first,
		LastName:       last,
		Username:       username,
	}
	if admin {
		if err := a.members.CreateAdmin(m, password); err != nil {
			printErr(err)
			return
		}
		fmt.Printf("Added admin %q\n", username)
		return
	}

	role, ok := promptInt(sc, "Role (1=Student 2=Professor 3=Staff): ")
	if !ok {
		return
	}
	campus, ok := promptLine(sc, "Campus: ")
	if !ok {
		return
	}
	program, ok := promptLine(sc, "Program: ")
	if !ok {
		return
	}
	m.Role = library.Role(role)
	m.Profile = &library.UserProfile{Campus: campus, Program: program}
	if err := a.members.CreateUser(m, password); err != nil {
		printErr(err)
		return
	}
	fmt.Printf("Added %s %q\n", m.Role, username)
}

func handleEditMember(sc *bufio.Scanner, a *app) {
	username, ok := promptLine(sc, "Username: ")
	if !ok {
		return
	}
	existing, found, err := a.members.FindByUsername(username)
	if err != nil {
		printErr(err)
		return
	}
	if !found {
		fmt.Printf("No member %q\n", username)
		return
	}

	updated := existing
	if v, ok := promptLine(sc, fmt.Sprintf("Username [%s]: ", existing.Username)); ok && v != "" {
		updated.Username = v
	}
	if v, ok := promptLine(sc, fmt.Sprintf("First name [%s]: ", existing.FirstName)); ok && v != "" {
		updated.FirstName = v
	}
	if v, ok := promptLine(sc, fmt.Sprintf("Last name [%s]: ", existing.LastName)); ok && v != "" {
		updated.LastName = v
	}
	if v, ok := promptLine(sc, fmt.Sprintf("Role [%d=%s]: ", int(existing.Role), existing.Role)); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			fmt.Printf("Invalid role: %s\n", v)
			return
		}
		updated.Role = library.Role(n)
	}
	if updated.Role != library.RoleAdmin {
		profile := library.UserProfile{}
		if existing.Profile != nil {
			profile = *existing.Profile
		}
		if v, ok := promptLine(sc, fmt.Sprintf("Campus [%s]: ", profile.Campus)); ok && v != "" {
			profile.Campus = v
		}
		if v, ok := promptLine(sc, fmt.Sprintf("Program [%s]: ", profile.Program)); ok && v != "" {
			profile.Program = v
		}
		updated.Profile = &profile
	}

	if err := a.members.EditMember(username, updated); err != nil {
		printErr(err)
		return
	}
	fmt.Printf("Member %q updated\n", updated.Username)
}

func handleDeleteMember(sc *bufio.Scanner, a *app) {
	username, ok := promptLine(sc, "Username: ")
	if !ok {
		return
	}
	if err := a.members.DeleteMember(username, a.loans); err != nil {
		printErr(err)
		return
	}
	fmt.Printf("Member %q deleted\n", username)
}

func handleListMembers(a *app) {
	members, err := a.members.ListMembers()
	if err != nil {
		printErr(err)
		return
	}
	if len(members) == 0 {
		fmt.Println("No members registered.")
		return
	}
	fmt.Printf("%-12s %-20s %-25s %-10s %8s\n", "Document", "Username", "Name", "Role", "Debt")
	fmt.Println(strings.Repeat("-", 80))
	for _, m := range members {
		fmt.Printf("%-12d %-20s %-25s %-10s %8d\n",
			m.DocumentNumber, m.Username, truncate(m.FullName(), 25), m.Role, m.Debt())
	}
}

func handleResetPassword(sc *bufio.Scanner, a *app) {
	username, ok := promptLine(sc, "Username: ")
	if !ok {
		return
	}
	password, err := readPassword(fmt.Sprintf("New password for %s: ", username))
	if err != nil {
		fmt.Printf("Error reading password: %v\n", err)
		return
	}
	if err := a.members.ResetPassword(username, password); err != nil {
		printErr(err)
		return
	}
	fmt.Printf("Password reset for %q\n", username)
}

// ------------------ circulation handlers ------------------

func handleBorrow(sc *bufio.Scanner, a *app, s library.Session) {
	code, ok := promptLine(sc, "Book code: ")
	if !ok {
		return
	}
	res, err := a.loans.LendBook(s, code)
	if err != nil {
		printErr(err)
		return
	}
	fmt.Println(res.Message)
}

func handleReturn(sc *bufio.Scanner, a *app, s library.Session) {
	code, ok := promptLine(sc, "Book code: ")
	if !ok {
		return
	}
	res, err := a.loans.ReturnBook(s, code)
	if err != nil {
		printErr(err)
		return
	}
	fmt.Println(res.Message)
}

func handleMyLoans(a *app, s library.Session) {
	loans, err := a.loans.ActiveLoans(s.Member.DocumentNumber)
	if err != nil {
		printErr(err)
		return
	}
	if len(loans) == 0 {
		fmt.Println("You have no active loans.")
		return
	}
	for _, l := range loans {
		book, found, _ := a.catalog.FindByCode(l.BookCode)
		name := l.BookCode
		if found {
			name = book.Name
		}
		fmt.Printf("%-10s %-35s due %s\n", l.BookCode, truncate(name, 35), l.DueDate.Format("2006-01-02"))
	}
}

func handlePayDebt(sc *bufio.Scanner, a *app, s library.Session) {
	amount, ok := promptInt64(sc, "Amount: ")
	if !ok {
		return
	}
	remaining, err := a.members.PayDebt(s.Member.DocumentNumber, amount)
	if err != nil {
		printErr(err)
		return
	}
	fmt.Printf("Payment received. Remaining debt: %d\n", remaining)
}

// ------------------ loan/library handlers ------------------

func handleListLoans(a *app) {
	loans, err := a.loans.ListLoans()
	if err != nil {
		printErr(err)
		return
	}
	if len(loans) == 0 {
		fmt.Println("No loans on record.")
		return
	}
	fmt.Printf("%-10s %-12s %-12s %-12s %-12s %-8s\n", "Book", "Document", "Loaned", "Due", "Returned", "State")
	fmt.Println(strings.Repeat("-", 75))
	for _, l := range loans {
		returned := "-"
		if !l.ReturnDate.IsZero() {
			returned = l.ReturnDate.Format("2006-01-02")
		}
		fmt.Printf("%-10s %-12d %-12s %-12s %-12s %-8s\n",
			l.BookCode, l.DocumentNumber,
			l.LoanDate.Format("2006-01-02"), l.DueDate.Format("2006-01-02"),
			returned, l.State)
	}
}

func handleAddLibrary(sc *bufio.Scanner, a *app) {
	id, ok := promptInt64(sc, "Id: ")
	if !ok {
		return
	}
	campus, ok := promptLine(sc, "Campus: ")
	if !ok {
		return
	}
	name, ok := promptLine(sc, "Name: ")
	if !ok {
		return
	}
	if err := a.libraries.Add(library.Library{ID: id, Campus: campus, Name: name}); err != nil {
		printErr(err)
		return
	}
	fmt.Printf("Library %d (%s) added\n", id, campus)
}

func handleListLibraries(a *app) {
	libs, err := a.libraries.LoadAll()
	if err != nil {
		printErr(err)
		return
	}
	if len(libs) == 0 {
		fmt.Println("No libraries registered.")
		return
	}
	for _, l := range libs {
		fmt.Printf("%-4d %-15s %s\n", l.ID, l.Campus, l.Name)
	}
}

func truncate(s string, maxLength int) string {
	if len(s) <= maxLength {
		return s
	}
	return s[:maxLength-3] + "..."
}
