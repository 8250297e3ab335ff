// Package ledger holds the durable record of proposed edits for a book:
// chapters in source order, each with an ordered list of changes carrying a
// stable id and a review status. This package has no dependencies on other
// bowdler packages to avoid import cycles.
package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Status is the review state of a change.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// ParseStatus converts a string to a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusAccepted, StatusRejected:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

// ChangeID identifies a change as (chapter, sequence). The pair is the
// canonical review order: all listings sort ascending by chapter, then seq.
type ChangeID struct {
	Chapter int
	Seq     int
}

// String renders the id in its textual "<chapter>.<seq>" form.
func (id ChangeID) String() string {
	return fmt.Sprintf("%d.%d", id.Chapter, id.Seq)
}

// Less reports whether id orders before other in canonical order.
func (id ChangeID) Less(other ChangeID) bool {
	if id.Chapter != other.Chapter {
		return id.Chapter < other.Chapter
	}
	return id.Seq < other.Seq
}

// ParseChangeID parses the textual "<chapter>.<seq>" form. Both components
// must be plain decimal integers with nothing left over, so a mangled id in
// a hand-edited file fails instead of parsing as a prefix.
func ParseChangeID(s string) (ChangeID, error) {
	chapterPart, seqPart, found := strings.Cut(s, ".")
	if !found {
		return ChangeID{}, fmt.Errorf("malformed change id %q: want <chapter>.<seq>", s)
	}
	chapter, err := strconv.Atoi(chapterPart)
	if err != nil {
		return ChangeID{}, fmt.Errorf("malformed change id %q: %w", s, err)
	}
	seq, err := strconv.Atoi(seqPart)
	if err != nil {
		return ChangeID{}, fmt.Errorf("malformed change id %q: %w", s, err)
	}
	id := ChangeID{Chapter: chapter, Seq: seq}
	if id.Chapter < 0 || id.Seq < 0 {
		return ChangeID{}, fmt.Errorf("malformed change id %q: negative component", s)
	}
	return id, nil
}

// Change is one proposed original -> cleaned substitution.
// Original is immutable once set; Cleaned may be edited while pending.
type Change struct {
	ID       ChangeID
	Original string
	Cleaned  string
	Reason   string
	Status   Status
}

// Chapter is one chapter of the source book with its proposed changes.
// Changes are append-only and kept in seq order.
type Chapter struct {
	Index   int
	Title   string
	Changes []Change
}

// Counts summarizes review progress.
type Counts struct {
	Pending  int `json:"pending" yaml:"pending"`
	Accepted int `json:"accepted" yaml:"accepted"`
	Rejected int `json:"rejected" yaml:"rejected"`
}

// Ledger is the document-level record. Chapter order matches source order and
// is never changed after creation. All mutations go through Ledger methods so
// concurrent chapter workers can share one instance.
type Ledger struct {
	mu       sync.RWMutex
	chapters []Chapter
	byIndex  map[int]int // chapter index -> position in chapters
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{byIndex: make(map[int]int)}
}

// AddChapter appends a chapter. Chapters must be added in ascending index
// order; duplicate indexes are rejected.
func (l *Ledger) AddChapter(index int, title string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.byIndex[index]; ok {
		return fmt.Errorf("chapter %d already exists", index)
	}
	if n := len(l.chapters); n > 0 && l.chapters[n-1].Index >= index {
		return fmt.Errorf("chapter %d out of order (last is %d)", index, l.chapters[n-1].Index)
	}
	l.byIndex[index] = len(l.chapters)
	l.chapters = append(l.chapters, Chapter{Index: index, Title: title})
	return nil
}

// Chapters returns a snapshot of the chapter list (changes shared, headers
// copied).
func (l *Ledger) Chapters() []Chapter {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Chapter, len(l.chapters))
	copy(out, l.chapters)
	return out
}

// ChapterTitle returns the title for a chapter index.
func (l *Ledger) ChapterTitle(index int) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.byIndex[index]
	if !ok {
		return "", false
	}
	return l.chapters[pos].Title, true
}

// NextSeq returns the next unused sequence number within a chapter.
// Returns 0 for an unknown chapter as well, so callers can plan before the
// chapter exists; AddChange still validates chapter existence.
func (l *Ledger) NextSeq(chapterIndex int) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nextSeqLocked(chapterIndex)
}

func (l *Ledger) nextSeqLocked(chapterIndex int) int {
	pos, ok := l.byIndex[chapterIndex]
	if !ok {
		return 0
	}
	ch := &l.chapters[pos]
	if n := len(ch.Changes); n > 0 {
		return ch.Changes[n-1].ID.Seq + 1
	}
	return 0
}

// AddChange appends a change to its chapter. The change must be pending,
// must actually change text (no-op edits are filtered out before insertion),
// and its seq must be the chapter's next unused number.
func (l *Ledger) AddChange(c Change) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.byIndex[c.ID.Chapter]
	if !ok {
		return fmt.Errorf("change %s: no such chapter", c.ID)
	}
	if c.Original == c.Cleaned {
		return fmt.Errorf("change %s: original and cleaned text are identical", c.ID)
	}
	if c.Status == "" {
		c.Status = StatusPending
	}
	if c.Status != StatusPending {
		return fmt.Errorf("change %s: new changes must be pending, got %s", c.ID, c.Status)
	}
	if want := l.nextSeqLocked(c.ID.Chapter); c.ID.Seq != want {
		return fmt.Errorf("change %s: expected seq %d", c.ID, want)
	}
	l.chapters[pos].Changes = append(l.chapters[pos].Changes, c)
	return nil
}

// AddChanges appends a batch of changes atomically: either all are added or
// none are. Used by reconciliation so a chunk's changes land all-or-nothing.
func (l *Ledger) AddChanges(changes []Change) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Validate the whole batch against a scratch view before mutating.
	nextSeq := make(map[int]int)
	for _, c := range changes {
		if _, ok := l.byIndex[c.ID.Chapter]; !ok {
			return fmt.Errorf("change %s: no such chapter", c.ID)
		}
		if c.Original == c.Cleaned {
			return fmt.Errorf("change %s: original and cleaned text are identical", c.ID)
		}
		if c.Status != "" && c.Status != StatusPending {
			return fmt.Errorf("change %s: new changes must be pending, got %s", c.ID, c.Status)
		}
		want, ok := nextSeq[c.ID.Chapter]
		if !ok {
			want = l.nextSeqLocked(c.ID.Chapter)
		}
		if c.ID.Seq != want {
			return fmt.Errorf("change %s: expected seq %d", c.ID, want)
		}
		nextSeq[c.ID.Chapter] = want + 1
	}
	for _, c := range changes {
		if c.Status == "" {
			c.Status = StatusPending
		}
		pos := l.byIndex[c.ID.Chapter]
		l.chapters[pos].Changes = append(l.chapters[pos].Changes, c)
	}
	return nil
}

// AllChanges returns every change in canonical (chapter, seq) order.
func (l *Ledger) AllChanges() []Change {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Change
	for _, ch := range l.chapters {
		out = append(out, ch.Changes...)
	}
	return out
}

// PendingChanges returns pending changes in canonical order.
func (l *Ledger) PendingChanges() []Change {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Change
	for _, ch := range l.chapters {
		for _, c := range ch.Changes {
			if c.Status == StatusPending {
				out = append(out, c)
			}
		}
	}
	return out
}

// Get returns a copy of the change with the given id.
func (l *Ledger) Get(id ChangeID) (Change, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c := l.findLocked(id)
	if c == nil {
		return Change{}, false
	}
	return *c, true
}

func (l *Ledger) findLocked(id ChangeID) *Change {
	pos, ok := l.byIndex[id.Chapter]
	if !ok {
		return nil
	}
	ch := &l.chapters[pos]
	for i := range ch.Changes {
		if ch.Changes[i].ID == id {
			return &ch.Changes[i]
		}
	}
	return nil
}

// Resolve moves a pending change to a terminal status. For acceptance, a
// non-empty edited text that differs from the stored cleaned text overwrites
// it first. Status is monotonic: resolving a non-pending change is an error.
func (l *Ledger) Resolve(id ChangeID, status Status, edited string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if status != StatusAccepted && status != StatusRejected {
		return fmt.Errorf("change %s: cannot resolve to %s", id, status)
	}
	c := l.findLocked(id)
	if c == nil {
		return fmt.Errorf("change %s: not found", id)
	}
	if c.Status != StatusPending {
		return fmt.Errorf("change %s: already %s", id, c.Status)
	}
	if status == StatusAccepted && edited != "" && edited != c.Cleaned {
		if edited == c.Original {
			// Accepting the original text verbatim is a rejection.
			return fmt.Errorf("change %s: edited text equals original; reject instead", id)
		}
		c.Cleaned = edited
	}
	c.Status = status
	return nil
}

// StatusCounts tallies changes by review status.
func (l *Ledger) StatusCounts() Counts {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var n Counts
	for _, ch := range l.chapters {
		for _, c := range ch.Changes {
			switch c.Status {
			case StatusAccepted:
				n.Accepted++
			case StatusRejected:
				n.Rejected++
			default:
				n.Pending++
			}
		}
	}
	return n
}
