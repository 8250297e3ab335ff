package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/bowdler/internal/ledger"
	"github.com/jackzampolin/bowdler/internal/review"
)

var reviewCmd = &cobra.Command{
	Use:   "review <book>",
	Short: "Review proposed changes interactively",
	Long: `Walk the pending changes in a book's ledger one at a time.

Each decision is persisted immediately, so a review session can be
stopped and resumed at any point.

Commands:
  a          accept the proposed text
  e          accept with an edited replacement
  r          reject (keep the original text)
  n / p      move to the next / previous pending change
  A          accept all remaining pending changes
  c <name>   accept all pending changes with the given reason
  q          quit`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := loadHome()
		if err != nil {
			return err
		}

		store := ledger.NewStore(h.LedgerPath(args[0]))
		if !store.Exists() {
			return fmt.Errorf("no ledger for book %q (run \"bowdler clean\" first)", args[0])
		}
		l, err := store.Load()
		if err != nil {
			return fmt.Errorf("failed to load ledger: %w", err)
		}

		machine := review.NewMachine(l, store)
		return runReviewLoop(machine, os.Stdin, os.Stdout)
	},
}

// runReviewLoop drives the interactive session over in/out.
func runReviewLoop(m *review.Machine, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		change, err := m.Current()
		if errors.Is(err, review.ErrNoPending) {
			fmt.Fprintln(out, "No pending changes.")
			return nil
		}
		if err != nil {
			return err
		}

		printChange(out, m, change)
		fmt.Fprint(out, "[a]ccept [e]dit [r]eject [n]ext [p]rev [A]ll [c <reason>] [q]uit > ")

		if !scanner.Scan() {
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		cmdWord, arg, _ := strings.Cut(input, " ")

		switch cmdWord {
		case "a", "accept":
			err = m.Accept("")
		case "e", "edit":
			fmt.Fprintln(out, "Enter replacement text (end with a blank line):")
			edited := readMultiline(scanner)
			if edited == change.Original {
				fmt.Fprintln(out, "Edited text matches the original; use r to reject instead.")
				continue
			}
			err = m.Accept(edited)
		case "r", "reject":
			err = m.Reject()
		case "n", "next":
			m.Next()
		case "p", "prev":
			m.Prev()
		case "A", "all":
			var n int
			n, err = m.AcceptAll()
			fmt.Fprintf(out, "Accepted %d changes.\n", n)
		case "c", "category":
			if arg == "" {
				fmt.Fprintln(out, "Usage: c <reason>")
				continue
			}
			var n int
			n, err = m.AcceptAllMatching(func(reason string) bool { return strings.Contains(reason, arg) })
			fmt.Fprintf(out, "Accepted %d %q changes.\n", n, arg)
		case "q", "quit":
			return nil
		case "":
			continue
		default:
			fmt.Fprintf(out, "Unknown command %q.\n", cmdWord)
			continue
		}
		if err != nil {
			return err
		}
	}
}

func printChange(out io.Writer, m *review.Machine, c ledger.Change) {
	pos, total := m.Position()
	fmt.Fprintf(out, "\n[%d/%d] change %s (%s)\n", pos, total, c.ID, c.Reason)
	fmt.Fprintf(out, "  - %s\n", indentContinuations(c.Original))
	fmt.Fprintf(out, "  + %s\n", indentContinuations(c.Cleaned))
}

func indentContinuations(s string) string {
	return strings.ReplaceAll(s, "\n", "\n    ")
}

// readMultiline collects lines until a blank line or EOF.
func readMultiline(scanner *bufio.Scanner) string {
	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			break
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
