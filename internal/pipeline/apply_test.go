package pipeline

import (
	"strings"
	"testing"

	"github.com/jackzampolin/bowdler/internal/ledger"
)

func applyLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l := ledger.New()
	for i, title := range []string{"Loomings", "The Carpet-Bag"} {
		if err := l.AddChapter(i, title); err != nil {
			t.Fatalf("AddChapter: %v", err)
		}
	}
	return l
}

func TestApplyAccepted(t *testing.T) {
	book := []BookChapter{
		{Index: 0, Title: "Loomings", Paragraphs: []string{"Call me Ishmael.", "It was a damn cold night."}},
		{Index: 1, Title: "The Carpet-Bag", Paragraphs: []string{"I stuffed a shirt or two."}},
	}

	t.Run("accepted changes only", func(t *testing.T) {
		l := applyLedger(t)
		changes := []ledger.Change{
			{ID: ledger.ChangeID{Chapter: 0, Seq: 0}, Original: "It was a damn cold night.", Cleaned: "It was a very cold night.", Reason: "language"},
			{ID: ledger.ChangeID{Chapter: 1, Seq: 0}, Original: "I stuffed a shirt or two.", Cleaned: "I packed a shirt or two.", Reason: "language"},
		}
		if err := l.AddChanges(changes[:1]); err != nil {
			t.Fatalf("AddChanges: %v", err)
		}
		if err := l.AddChanges(changes[1:]); err != nil {
			t.Fatalf("AddChanges: %v", err)
		}
		if err := l.Resolve(changes[0].ID, ledger.StatusAccepted, ""); err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if err := l.Resolve(changes[1].ID, ledger.StatusRejected, ""); err != nil {
			t.Fatalf("Resolve: %v", err)
		}

		res, err := ApplyAccepted(book, l)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Applied != 1 || res.Skipped != 0 {
			t.Errorf("Applied = %d, Skipped = %d", res.Applied, res.Skipped)
		}
		if !strings.Contains(res.Text, "It was a very cold night.") {
			t.Errorf("accepted change not applied: %s", res.Text)
		}
		if !strings.Contains(res.Text, "I stuffed a shirt or two.") {
			t.Errorf("rejected change should leave the original: %s", res.Text)
		}
	})

	t.Run("pending changes are not applied", func(t *testing.T) {
		l := applyLedger(t)
		err := l.AddChanges([]ledger.Change{
			{ID: ledger.ChangeID{Chapter: 0, Seq: 0}, Original: "Call me Ishmael.", Cleaned: "Call me Ish.", Reason: "language"},
		})
		if err != nil {
			t.Fatalf("AddChanges: %v", err)
		}

		res, err := ApplyAccepted(book, l)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Applied != 0 {
			t.Errorf("Applied = %d, want 0", res.Applied)
		}
		if !strings.Contains(res.Text, "Call me Ishmael.") {
			t.Errorf("pending change must not alter the text: %s", res.Text)
		}
	})

	t.Run("overlapping accepted changes skip the loser", func(t *testing.T) {
		l := applyLedger(t)
		// Two category passes proposed rewrites of the same paragraph.
		changes := []ledger.Change{
			{ID: ledger.ChangeID{Chapter: 0, Seq: 0}, Original: "It was a damn cold night.", Cleaned: "It was a very cold night.", Reason: "language"},
			{ID: ledger.ChangeID{Chapter: 0, Seq: 1}, Original: "It was a damn cold night.", Cleaned: "It was a chilly night.", Reason: "violence"},
		}
		if err := l.AddChanges(changes); err != nil {
			t.Fatalf("AddChanges: %v", err)
		}
		for _, c := range changes {
			if err := l.Resolve(c.ID, ledger.StatusAccepted, ""); err != nil {
				t.Fatalf("Resolve: %v", err)
			}
		}

		res, err := ApplyAccepted(book, l)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Applied != 1 || res.Skipped != 1 {
			t.Errorf("Applied = %d, Skipped = %d", res.Applied, res.Skipped)
		}
		if !strings.Contains(res.Text, "It was a very cold night.") {
			t.Errorf("first accepted change should win: %s", res.Text)
		}
	})

	t.Run("output round-trips through the book reader", func(t *testing.T) {
		l := applyLedger(t)

		res, err := ApplyAccepted(book, l)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		reread, err := ReadBook(strings.NewReader(res.Text))
		if err != nil {
			t.Fatalf("ReadBook: %v", err)
		}
		if len(reread) != len(book) {
			t.Fatalf("chapters = %d, want %d", len(reread), len(book))
		}
		for i := range book {
			if reread[i].Title != book[i].Title {
				t.Errorf("chapter %d title = %q, want %q", i, reread[i].Title, book[i].Title)
			}
			if len(reread[i].Paragraphs) != len(book[i].Paragraphs) {
				t.Errorf("chapter %d paragraphs = %d, want %d", i, len(reread[i].Paragraphs), len(book[i].Paragraphs))
			}
		}
	})

	t.Run("ledger chapter missing from book", func(t *testing.T) {
		l := applyLedger(t)
		err := l.AddChanges([]ledger.Change{
			{ID: ledger.ChangeID{Chapter: 1, Seq: 0}, Original: "I stuffed a shirt or two.", Cleaned: "I packed.", Reason: "language"},
		})
		if err != nil {
			t.Fatalf("AddChanges: %v", err)
		}
		if err := l.Resolve(ledger.ChangeID{Chapter: 1, Seq: 0}, ledger.StatusAccepted, ""); err != nil {
			t.Fatalf("Resolve: %v", err)
		}

		if _, err := ApplyAccepted(book[:1], l); err == nil {
			t.Error("expected error for ledger chapter not in book")
		}
	})
}
