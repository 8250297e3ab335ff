package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/bowdler/internal/api"
	"github.com/jackzampolin/bowdler/internal/ledger"
	"github.com/jackzampolin/bowdler/internal/pipeline"
)

var (
	applyText string
	applyOut  string
)

var applyCmd = &cobra.Command{
	Use:   "apply <book>",
	Short: "Write the cleaned book text from accepted changes",
	Long: `Render the book with every accepted change applied and write it to
books/<book>/book.cleaned.txt. Pending and rejected changes leave the
original text untouched, so apply can be run at any point during review.

Examples:
  bowdler apply my-book
  bowdler apply my-book --text book.txt --out cleaned.txt`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := loadHome()
		if err != nil {
			return err
		}

		bookID := args[0]
		store := ledger.NewStore(h.LedgerPath(bookID))
		if !store.Exists() {
			return fmt.Errorf("no ledger for book %q (run \"bowdler clean\" first)", bookID)
		}
		l, err := store.Load()
		if err != nil {
			return fmt.Errorf("failed to load ledger: %w", err)
		}

		textPath := applyText
		if textPath == "" {
			textPath = h.BookTextPath(bookID)
		}
		book, err := pipeline.LoadBook(textPath)
		if err != nil {
			return fmt.Errorf("failed to read book: %w", err)
		}

		res, err := pipeline.ApplyAccepted(book, l)
		if err != nil {
			return err
		}

		outPath := applyOut
		if outPath == "" {
			outPath = h.CleanedTextPath(bookID)
		}
		if err := os.WriteFile(outPath, []byte(res.Text), 0o644); err != nil {
			return fmt.Errorf("failed to write cleaned book: %w", err)
		}

		return api.Output(struct {
			Book    string `json:"book" yaml:"book"`
			Output  string `json:"output" yaml:"output"`
			Applied int    `json:"applied" yaml:"applied"`
			Skipped int    `json:"skipped" yaml:"skipped"`
		}{
			Book:    bookID,
			Output:  outPath,
			Applied: res.Applied,
			Skipped: res.Skipped,
		})
	},
}

func init() {
	applyCmd.Flags().StringVar(&applyText, "text", "", "book text to apply changes to (default: the book's converted text)")
	applyCmd.Flags().StringVar(&applyOut, "out", "", "output path (default: the book's cleaned text path)")
}
