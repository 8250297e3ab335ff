package chunker

import (
	"fmt"
	"strings"
	"testing"
)

func TestPlanParagraphLimit(t *testing.T) {
	paragraphs := make([]string, 120)
	for i := range paragraphs {
		paragraphs[i] = fmt.Sprintf("Sentence number %d.", i)
	}

	chunks := Plan(2, paragraphs, Limit{MaxParagraphs: 50})
	if len(chunks) != 3 {
		t.Fatalf("Plan produced %d chunks, want 3", len(chunks))
	}
	sizes := []int{50, 50, 20}
	for i, c := range chunks {
		if got := c.EndParagraph - c.StartParagraph; got != sizes[i] {
			t.Errorf("chunk %d size = %d, want %d", i, got, sizes[i])
		}
		if c.ChapterIndex != 2 {
			t.Errorf("chunk %d chapter = %d, want 2", i, c.ChapterIndex)
		}
	}
}

func TestPlanWordLimit(t *testing.T) {
	paragraphs := []string{
		"one two three",       // 3 words
		"four five",           // 2 words
		"six seven eight nine", // 4 words
		"ten",                 // 1 word
	}
	chunks := Plan(0, paragraphs, Limit{MaxWords: 5})
	if len(chunks) != 2 {
		t.Fatalf("Plan produced %d chunks, want 2: %+v", len(chunks), chunks)
	}
	if chunks[0].EndParagraph != 2 {
		t.Errorf("chunk 0 end = %d, want 2", chunks[0].EndParagraph)
	}
	if chunks[1].StartParagraph != 2 || chunks[1].EndParagraph != 4 {
		t.Errorf("chunk 1 range = [%d,%d), want [2,4)", chunks[1].StartParagraph, chunks[1].EndParagraph)
	}
}

func TestPlanOversizedParagraph(t *testing.T) {
	big := strings.Repeat("word ", 500)
	chunks := Plan(0, []string{"small one", big, "small two"}, Limit{MaxWords: 10})
	if len(chunks) != 3 {
		t.Fatalf("Plan produced %d chunks, want 3", len(chunks))
	}
	// The oversized paragraph is alone in its chunk rather than looping.
	if len(chunks[1].Paragraphs) != 1 || chunks[1].Paragraphs[0] != big {
		t.Errorf("chunk 1 = %+v, want the oversized paragraph alone", chunks[1])
	}
}

func TestPlanEmpty(t *testing.T) {
	if chunks := Plan(0, nil, Limit{MaxParagraphs: 10}); len(chunks) != 0 {
		t.Errorf("Plan(nil) = %d chunks, want 0", len(chunks))
	}
}

func TestPlanNoLimit(t *testing.T) {
	chunks := Plan(0, []string{"a", "b", "c"}, Limit{})
	if len(chunks) != 1 {
		t.Fatalf("Plan with zero limit = %d chunks, want 1", len(chunks))
	}
	if chunks[0].StartParagraph != 0 || chunks[0].EndParagraph != 3 {
		t.Errorf("chunk range = [%d,%d), want [0,3)", chunks[0].StartParagraph, chunks[0].EndParagraph)
	}
}

// TestPlanCoverage checks that chunk ranges tile the paragraph list exactly
// once, in order, for a spread of sizes and limits.
func TestPlanCoverage(t *testing.T) {
	for _, n := range []int{0, 1, 2, 7, 50, 121} {
		paragraphs := make([]string, n)
		for i := range paragraphs {
			paragraphs[i] = fmt.Sprintf("p%d has %d words", i, i%5+1)
		}
		for _, limit := range []Limit{
			{MaxParagraphs: 1},
			{MaxParagraphs: 3},
			{MaxWords: 1},
			{MaxWords: 12},
			{MaxParagraphs: 4, MaxWords: 9},
			{},
		} {
			chunks := Plan(0, paragraphs, limit)
			pos := 0
			for _, c := range chunks {
				if c.StartParagraph != pos {
					t.Fatalf("n=%d limit=%+v: chunk starts at %d, want %d", n, limit, c.StartParagraph, pos)
				}
				if c.EndParagraph <= c.StartParagraph {
					t.Fatalf("n=%d limit=%+v: empty chunk range [%d,%d)", n, limit, c.StartParagraph, c.EndParagraph)
				}
				if len(c.Paragraphs) != c.EndParagraph-c.StartParagraph {
					t.Fatalf("n=%d limit=%+v: paragraphs len %d != range %d", n, limit, len(c.Paragraphs), c.EndParagraph-c.StartParagraph)
				}
				pos = c.EndParagraph
			}
			if pos != n {
				t.Fatalf("n=%d limit=%+v: coverage ends at %d, want %d", n, limit, pos, n)
			}
		}
	}
}

func TestJoinSplitRoundTrip(t *testing.T) {
	paragraphs := []string{"First paragraph.", "Second one.", "Third."}
	c := Chunk{Paragraphs: paragraphs, EndParagraph: 3}
	joined := c.Join()
	got := SplitParagraphs(joined)
	if len(got) != len(paragraphs) {
		t.Fatalf("SplitParagraphs len = %d, want %d", len(got), len(paragraphs))
	}
	for i := range got {
		if got[i] != paragraphs[i] {
			t.Errorf("paragraph %d = %q, want %q", i, got[i], paragraphs[i])
		}
	}
}

func TestSplitParagraphsDropsEmpty(t *testing.T) {
	got := SplitParagraphs("A.\n\n\n\nB.\n\n  \n\nC.")
	if len(got) != 3 {
		t.Fatalf("SplitParagraphs len = %d, want 3: %q", len(got), got)
	}
}
