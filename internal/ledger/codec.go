package ledger

import (
	"bytes"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// CodecError indicates a persisted ledger that could not be decoded. It is
// unrecoverable for that file: no partial parse is attempted, so review
// decisions are never silently discarded.
type CodecError struct {
	Err error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("ledger codec: %v", e.Err)
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

// Serialized form. The file is plain YAML so it diffs cleanly and a reviewer
// can hand-edit cleaned text between sessions.
type ledgerDoc struct {
	Chapters []chapterDoc `yaml:"chapters"`
}

type chapterDoc struct {
	Index   int         `yaml:"index"`
	Title   string      `yaml:"title"`
	Changes []changeDoc `yaml:"changes,omitempty"`
}

type changeDoc struct {
	ID       string `yaml:"id"`
	Original string `yaml:"original"`
	Cleaned  string `yaml:"cleaned"`
	Reason   string `yaml:"reason"`
	Status   string `yaml:"status"`
}

// Encode serializes the ledger. Chapters and changes are written in their
// stored order, so re-encoding after a review action never reorders
// untouched entries.
func Encode(l *Ledger) ([]byte, error) {
	doc := ledgerDoc{}
	for _, ch := range l.Chapters() {
		cd := chapterDoc{Index: ch.Index, Title: ch.Title}
		for _, c := range ch.Changes {
			cd.Changes = append(cd.Changes, changeDoc{
				ID:       c.ID.String(),
				Original: c.Original,
				Cleaned:  c.Cleaned,
				Reason:   c.Reason,
				Status:   string(c.Status),
			})
		}
		doc.Chapters = append(doc.Chapters, cd)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("failed to encode ledger: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode ledger: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a persisted ledger and revalidates every invariant the model
// enforces at build time. Any violation returns a *CodecError.
func Decode(data []byte) (*Ledger, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc ledgerDoc
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			// Empty file is an empty ledger.
			return New(), nil
		}
		return nil, &CodecError{Err: err}
	}

	l := New()
	for _, cd := range doc.Chapters {
		if err := l.AddChapter(cd.Index, cd.Title); err != nil {
			return nil, &CodecError{Err: err}
		}
		for _, d := range cd.Changes {
			id, err := ParseChangeID(d.ID)
			if err != nil {
				return nil, &CodecError{Err: err}
			}
			if id.Chapter != cd.Index {
				return nil, &CodecError{Err: fmt.Errorf("change %s listed under chapter %d", d.ID, cd.Index)}
			}
			status, err := ParseStatus(d.Status)
			if err != nil {
				return nil, &CodecError{Err: fmt.Errorf("change %s: %w", d.ID, err)}
			}
			c := Change{
				ID:       id,
				Original: d.Original,
				Cleaned:  d.Cleaned,
				Reason:   d.Reason,
				Status:   status,
			}
			if err := l.restore(c); err != nil {
				return nil, &CodecError{Err: err}
			}
		}
	}
	return l, nil
}

// restore appends a change during decode. Unlike AddChange it admits
// terminal statuses, since persisted ledgers carry resolved entries, and it
// only requires seqs to be strictly increasing rather than contiguous, so a
// hand-edited file with a deleted entry still loads.
func (l *Ledger) restore(c Change) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.byIndex[c.ID.Chapter]
	if !ok {
		return fmt.Errorf("change %s: no such chapter", c.ID)
	}
	if c.Original == c.Cleaned {
		return fmt.Errorf("change %s: original and cleaned text are identical", c.ID)
	}
	ch := &l.chapters[pos]
	if n := len(ch.Changes); n > 0 && ch.Changes[n-1].ID.Seq >= c.ID.Seq {
		return fmt.Errorf("change %s: seq out of order (last is %d)", c.ID, ch.Changes[n-1].ID.Seq)
	}
	ch.Changes = append(ch.Changes, c)
	return nil
}
