package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the bowdler home directory.
	DefaultDirName = ".bowdler"

	// BooksDirName is the subdirectory for per-book working data.
	BooksDirName = "books"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
)

// Dir represents the bowdler home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.bowdler).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// BooksPath returns the path to the books directory.
func (d *Dir) BooksPath() string {
	return filepath.Join(d.path, BooksDirName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// BookDir returns the working directory for a specific book.
func (d *Dir) BookDir(bookID string) string {
	return filepath.Join(d.BooksPath(), bookID)
}

// BookTextPath returns the path to a book's converted plain text.
func (d *Dir) BookTextPath(bookID string) string {
	return filepath.Join(d.BookDir(bookID), "book.txt")
}

// LedgerPath returns the path to a book's change ledger.
func (d *Dir) LedgerPath(bookID string) string {
	return filepath.Join(d.BookDir(bookID), "ledger.yaml")
}

// CleanedTextPath returns the path where a book's cleaned text is written.
func (d *Dir) CleanedTextPath(bookID string) string {
	return filepath.Join(d.BookDir(bookID), "book.cleaned.txt")
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	if err := os.MkdirAll(d.BooksPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create books directory: %w", err)
	}
	return nil
}

// EnsureBookDir creates the working directory for a book.
func (d *Dir) EnsureBookDir(bookID string) error {
	return os.MkdirAll(d.BookDir(bookID), 0o755)
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
