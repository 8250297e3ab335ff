package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/bowdler/internal/api"
	"github.com/jackzampolin/bowdler/internal/chunker"
	"github.com/jackzampolin/bowdler/internal/config"
	"github.com/jackzampolin/bowdler/internal/convert"
	"github.com/jackzampolin/bowdler/internal/ledger"
	"github.com/jackzampolin/bowdler/internal/oracle"
	"github.com/jackzampolin/bowdler/internal/pipeline"
	"github.com/jackzampolin/bowdler/internal/progress"
)

var (
	cleanBookID  string
	cleanConvert bool
)

var cleanCmd = &cobra.Command{
	Use:   "clean <book-file>",
	Short: "Run the cleaning pipeline over a book",
	Long: `Run the cleaning pipeline: chunk each chapter, send chunks to the
oracle per content category, reconcile the output against the original
text, and record proposed changes in the book's ledger.

The ledger is saved after every chunk, so an interrupted run keeps the
changes already proposed. Re-run "bowdler clean" to continue, then
"bowdler review" to walk the proposed changes.

Examples:
  bowdler clean book.txt
  bowdler clean book.epub --convert      # convert first, then clean
  bowdler clean book.txt --book my-book  # explicit ledger name`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := newLogger()

		cm, err := loadConfig()
		if err != nil {
			return err
		}
		cfg := cm.Get()
		oc, err := buildOracle(cfg)
		if err != nil {
			return err
		}

		// Cleaning runs for a long time; pick up rate-limit edits live.
		if client, ok := oc.(*oracle.OpenAIClient); ok {
			cm.OnChange(func(updated *config.Config) {
				client.SetRateLimit(updated.Oracle.RateLimit)
				logger.Info("config reloaded",
					"rate_limit", updated.Oracle.RateLimit)
			})
			cm.WatchConfig()
		}

		h, err := loadHome()
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		inputPath := args[0]
		bookID := cleanBookID
		if bookID == "" {
			bookID = bookIDFromPath(inputPath)
		}
		if err := h.EnsureBookDir(bookID); err != nil {
			return err
		}

		store := ledger.NewStore(h.LedgerPath(bookID))
		l, err := openLedger(store)
		if err != nil {
			return fmt.Errorf("failed to load ledger: %w", err)
		}

		status := newStatusPrinter(cfg.Policy.Categories(), os.Stderr)

		var converter *convert.Converter
		if cleanConvert {
			converter = &convert.Converter{
				Command: cfg.Converter.Command,
				Args:    cfg.Converter.Args,
				WorkDir: cfg.Converter.WorkDir,
				Lines:   status.Line,
				Logger:  logger,
			}
		}

		driver, err := pipeline.New(pipeline.Config{
			Oracle: oc,
			Policy: cfg.Policy,
			Ledger: l,
			Store:  store,
			Limit: chunker.Limit{
				MaxParagraphs: cfg.Pipeline.MaxParagraphs,
				MaxWords:      cfg.Pipeline.MaxWords,
			},
			Workers:     cfg.Pipeline.MaxWorkers,
			MaxAttempts: cfg.Oracle.MaxRetries,
			Converter:   converter,
			Status:      status,
			Logger:      logger,
		})
		if err != nil {
			return err
		}

		textPath := inputPath
		if cleanConvert {
			textPath = h.BookTextPath(bookID)
			if err := driver.Convert(ctx, inputPath, textPath); err != nil {
				return err
			}
		}

		book, err := pipeline.LoadBook(textPath)
		if err != nil {
			return fmt.Errorf("failed to read book: %w", err)
		}

		report, err := driver.Clean(ctx, book)
		if err != nil {
			return err
		}

		return api.Output(struct {
			Book   string          `json:"book" yaml:"book"`
			Ledger string          `json:"ledger" yaml:"ledger"`
			Run    pipeline.Report `json:"run" yaml:"run"`
			Counts ledger.Counts   `json:"counts" yaml:"counts"`
		}{
			Book:   bookID,
			Ledger: store.Path(),
			Run:    report,
			Counts: l.StatusCounts(),
		})
	},
}

func init() {
	cleanCmd.Flags().StringVar(&cleanBookID, "book", "", "book identifier (default: input file name)")
	cleanCmd.Flags().BoolVar(&cleanConvert, "convert", false, "run the configured converter before cleaning")
}

// bookIDFromPath derives a ledger name from the input file name.
func bookIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// statusPrinter renders pipeline status lines as a progress readout.
// It implements io.Writer so the pipeline can stream lines into it.
type statusPrinter struct {
	tracker *progress.Tracker
	out     *os.File
	buf     bytes.Buffer
}

func newStatusPrinter(categories []string, out *os.File) *statusPrinter {
	return &statusPrinter{
		tracker: progress.NewTracker(categories),
		out:     out,
	}
}

func (p *statusPrinter) Write(b []byte) (int, error) {
	p.buf.Write(b)
	for {
		line, rest, found := bytes.Cut(p.buf.Bytes(), []byte("\n"))
		if !found {
			break
		}
		text := string(line)
		remainder := append([]byte(nil), rest...)
		p.buf.Reset()
		p.buf.Write(remainder)
		p.Line(text)
	}
	return len(b), nil
}

// Line feeds one status line to the tracker and prints the readout.
func (p *statusPrinter) Line(text string) {
	p.tracker.Feed(text)
	s := p.tracker.Snapshot()
	fmt.Fprintf(p.out, "%5.1f%%  %s\n", s.Fraction*100, text)
}
