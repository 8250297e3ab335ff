package pipeline

import (
	"fmt"
	"strings"

	"github.com/jackzampolin/bowdler/internal/chunker"
	"github.com/jackzampolin/bowdler/internal/ledger"
)

// ApplyResult summarizes rendering the cleaned book.
type ApplyResult struct {
	Text    string
	Applied int
	Skipped int
}

// ApplyAccepted renders the book with every accepted change applied and
// everything else left as written. Changes are applied in canonical
// (chapter, seq) order; an accepted change whose original text is no longer
// present is skipped rather than guessed at, which happens when an earlier
// accepted change from another category pass already rewrote the passage.
func ApplyAccepted(book []BookChapter, l *ledger.Ledger) (ApplyResult, error) {
	texts := make(map[int]string, len(book))
	for _, ch := range book {
		texts[ch.Index] = strings.Join(ch.Paragraphs, chunker.BoundaryMarker)
	}

	var res ApplyResult
	for _, c := range l.AllChanges() {
		if c.Status != ledger.StatusAccepted {
			continue
		}
		text, ok := texts[c.ID.Chapter]
		if !ok {
			return ApplyResult{}, fmt.Errorf("change %s: ledger chapter not in book", c.ID)
		}
		idx := strings.Index(text, c.Original)
		if idx < 0 {
			res.Skipped++
			continue
		}
		texts[c.ID.Chapter] = text[:idx] + c.Cleaned + text[idx+len(c.Original):]
		res.Applied++
	}

	var b strings.Builder
	for i, ch := range book {
		if i > 0 {
			b.WriteString(chunker.BoundaryMarker)
		}
		fmt.Fprintf(&b, "# %s", ch.Title)
		if text := texts[ch.Index]; text != "" {
			b.WriteString(chunker.BoundaryMarker)
			b.WriteString(text)
		}
	}
	b.WriteString("\n")
	res.Text = b.String()
	return res, nil
}
