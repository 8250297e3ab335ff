// Package chunker partitions a chapter's paragraphs into bounded units sized
// for a single oracle call.
package chunker

import "strings"

// BoundaryMarker separates paragraphs when a chunk is joined into a single
// oracle input, and is the delimiter reconciliation re-splits on.
const BoundaryMarker = "\n\n"

// Limit bounds a chunk by paragraph count and/or word count. A zero field is
// unconstrained; a zero value for both means one chunk per chapter.
type Limit struct {
	MaxParagraphs int
	MaxWords      int
}

// Chunk is a contiguous run of a chapter's paragraphs. StartParagraph is
// inclusive, EndParagraph exclusive, both indexes into the chapter's
// paragraph list.
type Chunk struct {
	ChapterIndex   int
	StartParagraph int
	EndParagraph   int
	Paragraphs     []string
}

// Join returns the chunk's paragraphs joined with the boundary marker, the
// exact text sent to the oracle.
func (c Chunk) Join() string {
	return strings.Join(c.Paragraphs, BoundaryMarker)
}

// Words counts whitespace-separated words in a paragraph.
func Words(paragraph string) int {
	return len(strings.Fields(paragraph))
}

// Plan walks paragraphs in order, accumulating greedily until adding the next
// paragraph would exceed the limit, then closes the chunk. A paragraph that
// exceeds the limit on its own still gets a chunk of its own. The returned
// chunks cover the paragraph list exactly once with no gaps or overlaps; an
// empty list yields no chunks.
func Plan(chapterIndex int, paragraphs []string, limit Limit) []Chunk {
	var chunks []Chunk

	start := 0
	words := 0
	for i, p := range paragraphs {
		pw := Words(p)
		if i > start && exceeds(limit, i-start+1, words+pw) {
			chunks = append(chunks, newChunk(chapterIndex, paragraphs, start, i))
			start = i
			words = 0
		}
		words += pw
	}
	if start < len(paragraphs) {
		chunks = append(chunks, newChunk(chapterIndex, paragraphs, start, len(paragraphs)))
	}
	return chunks
}

func newChunk(chapterIndex int, paragraphs []string, start, end int) Chunk {
	return Chunk{
		ChapterIndex:   chapterIndex,
		StartParagraph: start,
		EndParagraph:   end,
		Paragraphs:     paragraphs[start:end],
	}
}

func exceeds(limit Limit, paragraphs, words int) bool {
	if limit.MaxParagraphs > 0 && paragraphs > limit.MaxParagraphs {
		return true
	}
	if limit.MaxWords > 0 && words > limit.MaxWords {
		return true
	}
	return false
}

// SplitParagraphs splits chapter text on the boundary marker and drops empty
// fragments. It is the inverse of Chunk.Join for well-formed text.
func SplitParagraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, BoundaryMarker) {
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
