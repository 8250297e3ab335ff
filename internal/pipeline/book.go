package pipeline

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// BookChapter is one chapter of the plain-text book representation the
// converter produces: a "# Title" heading line followed by paragraphs
// separated by blank lines.
type BookChapter struct {
	Index      int
	Title      string
	Paragraphs []string
}

// LoadBook reads the converter's plain-text output.
func LoadBook(path string) ([]BookChapter, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open book: %w", err)
	}
	defer f.Close()
	return ReadBook(f)
}

// ReadBook parses chapters from r. Text before the first heading is
// rejected: the converter always emits a heading first.
func ReadBook(r io.Reader) ([]BookChapter, error) {
	var chapters []BookChapter
	var paragraph []string

	flushParagraph := func() {
		if len(paragraph) == 0 {
			return
		}
		ch := &chapters[len(chapters)-1]
		ch.Paragraphs = append(ch.Paragraphs, strings.Join(paragraph, "\n"))
		paragraph = nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		if title, ok := strings.CutPrefix(line, "# "); ok {
			if len(chapters) > 0 {
				flushParagraph()
			}
			chapters = append(chapters, BookChapter{
				Index: len(chapters),
				Title: strings.TrimSpace(title),
			})
			continue
		}
		if strings.TrimSpace(line) == "" {
			if len(chapters) > 0 {
				flushParagraph()
			}
			continue
		}
		if len(chapters) == 0 {
			return nil, fmt.Errorf("line %d: text before first chapter heading", lineNum)
		}
		paragraph = append(paragraph, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read book: %w", err)
	}
	if len(chapters) > 0 {
		flushParagraph()
	}
	return chapters, nil
}
