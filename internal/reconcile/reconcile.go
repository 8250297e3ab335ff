// Package reconcile maps oracle output back onto the original paragraph
// structure it was derived from, emitting ledger changes for review.
package reconcile

import (
	"log/slog"

	"github.com/jackzampolin/bowdler/internal/chunker"
	"github.com/jackzampolin/bowdler/internal/ledger"
)

// Result carries the changes for one chunk plus alignment observability.
type Result struct {
	Changes []ledger.Change

	// Misaligned is true when the oracle merged or split paragraphs and the
	// whole-chunk fallback was used.
	Misaligned bool
	// DriftPct is the paragraph-count delta as a percentage of the input
	// count, only meaningful when Misaligned.
	DriftPct float64
}

// Reconciler turns transformed chunk text into ledger changes.
type Reconciler struct {
	logger *slog.Logger
}

// New creates a reconciler. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{logger: logger}
}

// Reconcile re-splits transformedText on the paragraph boundary marker and
// aligns it against the chunk:
//
//   - Same paragraph count: pair output[i] with input paragraph i and emit a
//     change only where the pair differs.
//   - Different count: the oracle re-flowed the text, so fine-grained pairing
//     would misattribute edits. Emit a single change spanning the whole chunk
//     and log the drift magnitude.
//
// Text byte-identical to the joined input yields no changes. Sequence numbers
// start at nextSeq and increase by one per emitted change; the caller is the
// single writer for the chapter and commits the returned changes atomically.
func (r *Reconciler) Reconcile(chunk chunker.Chunk, transformedText, reason string, nextSeq int) Result {
	original := chunk.Join()
	if transformedText == original {
		return Result{}
	}

	out := chunker.SplitParagraphs(transformedText)
	if len(out) != len(chunk.Paragraphs) {
		drift := 0.0
		if n := len(chunk.Paragraphs); n > 0 {
			drift = float64(len(out)-n) / float64(n) * 100
		}
		r.logger.Warn("paragraph count drift, falling back to whole-chunk change",
			"chapter", chunk.ChapterIndex,
			"start_paragraph", chunk.StartParagraph,
			"input_paragraphs", len(chunk.Paragraphs),
			"output_paragraphs", len(out),
			"drift_pct", drift,
		)
		return Result{
			Changes: []ledger.Change{{
				ID:       ledger.ChangeID{Chapter: chunk.ChapterIndex, Seq: nextSeq},
				Original: original,
				Cleaned:  transformedText,
				Reason:   reason,
				Status:   ledger.StatusPending,
			}},
			Misaligned: true,
			DriftPct:   drift,
		}
	}

	var changes []ledger.Change
	for i, cleaned := range out {
		if cleaned == chunk.Paragraphs[i] {
			continue
		}
		changes = append(changes, ledger.Change{
			ID:       ledger.ChangeID{Chapter: chunk.ChapterIndex, Seq: nextSeq + len(changes)},
			Original: chunk.Paragraphs[i],
			Cleaned:  cleaned,
			Reason:   reason,
			Status:   ledger.StatusPending,
		})
	}
	return Result{Changes: changes}
}
