package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/bowdler/internal/api"
	"github.com/jackzampolin/bowdler/internal/ledger"
)

var statusCmd = &cobra.Command{
	Use:   "status <book>",
	Short: "Show review progress for a book's ledger",
	Args:  cobra.ExactArgs(1),
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

		type chapterStatus struct {
			Index  int           `json:"index" yaml:"index"`
			Title  string        `json:"title" yaml:"title"`
			Counts ledger.Counts `json:"counts" yaml:"counts"`
		}

		chapters := l.Chapters()
		out := struct {
			Book     string          `json:"book" yaml:"book"`
			Ledger   string          `json:"ledger" yaml:"ledger"`
			Counts   ledger.Counts   `json:"counts" yaml:"counts"`
			Chapters []chapterStatus `json:"chapters" yaml:"chapters"`
		}{
			Book:     args[0],
			Ledger:   store.Path(),
			Counts:   l.StatusCounts(),
			Chapters: make([]chapterStatus, 0, len(chapters)),
		}

		for _, ch := range chapters {
			var counts ledger.Counts
			for _, c := range ch.Changes {
				switch c.Status {
				case ledger.StatusPending:
					counts.Pending++
				case ledger.StatusAccepted:
					counts.Accepted++
				case ledger.StatusRejected:
					counts.Rejected++
				}
			}
			out.Chapters = append(out.Chapters, chapterStatus{
				Index:  ch.Index,
				Title:  ch.Title,
				Counts: counts,
			})
		}

		return api.Output(out)
	},
}
