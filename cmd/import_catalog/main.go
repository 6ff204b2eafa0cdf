// Command import_catalog migrates books out of a legacy SQLite library
// database into the flat-file catalog. The legacy system kept one row per
// physical copy in a `books` table; each row becomes one unit here, with
// copies of the same title and author merged into a single record.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	"unilib/library"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	var (
		cfgPath   = flag.String("config", "config.yaml", "path to the yaml config file")
		dbPath    = flag.String("db", "library.db", "path to the legacy SQLite database")
		libraryID = flag.Int64("library", 1, "id of the library to import into")
	)
	flag.Parse()

	if err := run(*cfgPath, *dbPath, *libraryID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath, dbPath string, libraryID int64) error {
	cfg, err := library.LoadConfig(cfgPath)
	if err != nil {
		return err
	}
	registry := library.NewLibraryRegistry(cfg.DataDir)
	branch, found, err := registry.FindByID(libraryID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no library with id %d; run 'unilib init' first", libraryID)
	}
	catalog := library.NewCatalogService(cfg.DataDir)

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("open legacy db: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT title, author FROM books ORDER BY id`)
	if err != nil {
		return fmt.Errorf("read legacy books: %w", err)
	}
	defer rows.Close()

	type title struct{ name, author string }
	units := make(map[title]int)
	var order []title
	for rows.Next() {
		var t title
		if err := rows.Scan(&t.name, &t.author); err != nil {
			return fmt.Errorf("scan legacy book: %w", err)
		}
		if units[t] == 0 {
			order = append(order, t)
		}
		units[t]++
	}
	if err := rows.Err(); err != nil {
		return err
	}

	fmt.Printf("Importing %d title(s) from %s into library %d (%s)...\n", len(order), dbPath, branch.ID, branch.Campus)
	imported := 0
	failed := 0
	for _, t := range order {
		code, err := catalog.GenerateNextCode(branch.ID, branch.Campus)
		if err != nil {
			return err
		}
		book := library.Book{
			Code:      code,
			Name:      t.name,
			Author:    t.author,
			FreeUnits: units[t],
			LibraryID: branch.ID,
			Campus:    branch.Campus,
		}
		if err := catalog.AddBook(book); err != nil {
			fmt.Printf("  %-40s ERROR - %s\n", t.name, library.UserMessage(err))
			failed++
			continue
		}
		fmt.Printf("  %-40s %s (%d unit(s))\n", t.name, code, units[t])
		imported++
	}

	fmt.Printf("\nImport complete: %d imported, %d failed\n", imported, failed)
	return nil
}
