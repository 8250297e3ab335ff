// Package pipeline drives a batch revision run: convert the source document,
// size the work, send chunks through the oracle category by category, and
// commit proposed changes to the ledger as they reconcile.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/bowdler/internal/chunker"
	"github.com/jackzampolin/bowdler/internal/convert"
	"github.com/jackzampolin/bowdler/internal/ledger"
	"github.com/jackzampolin/bowdler/internal/oracle"
	"github.com/jackzampolin/bowdler/internal/reconcile"
)

// StageFailure is a fatal failure of a pipeline stage. The run stops, the
// ledger keeps everything reconciled so far, and unprocessed chapters stay
// untouched.
type StageFailure struct {
	Stage             string
	Chapter           int // chapter in progress, -1 when not chapter-scoped
	Chunk             int // chunk in progress within the chapter, -1 when n/a
	ChaptersCompleted int
	Err               error
}

func (e *StageFailure) Error() string {
	if e.Chapter >= 0 {
		return fmt.Sprintf("%s stage failed at chapter %d chunk %d (%d chapters completed): %v",
			e.Stage, e.Chapter, e.Chunk, e.ChaptersCompleted, e.Err)
	}
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageFailure) Unwrap() error {
	return e.Err
}

// Config wires a driver. Oracle, Ledger, and Store are required.
type Config struct {
	Oracle oracle.Client
	Policy oracle.Policy
	Ledger *ledger.Ledger
	Store  *ledger.Store

	// Limit bounds each oracle unit.
	Limit chunker.Limit
	// Workers bounds parallel chapters per category pass (default 1).
	Workers int
	// MaxAttempts bounds oracle retries per chunk (default 4).
	MaxAttempts int
	// RetryBaseDelay seeds the exponential backoff (default 1s).
	RetryBaseDelay time.Duration

	// Converter runs the document-conversion stage; nil skips it.
	Converter *convert.Converter

	// Status receives the free-text status lines a progress tracker
	// classifies. nil discards them.
	Status io.Writer
	Logger *slog.Logger
}

// Report summarizes a run for the caller.
type Report struct {
	Chapters        int  `json:"chapters" yaml:"chapters"`
	ChunksProcessed int  `json:"chunks_processed" yaml:"chunks_processed"`
	ChangesProposed int  `json:"changes_proposed" yaml:"changes_proposed"`
	Complete        bool `json:"complete" yaml:"complete"`
}

// Driver runs the batch pipeline.
type Driver struct {
	cfg        Config
	logger     *slog.Logger
	reconciler *reconcile.Reconciler

	mu       sync.Mutex // guards ledger saves and report counters
	statusMu sync.Mutex
	report   Report
}

// New creates a driver.
func New(cfg Config) (*Driver, error) {
	if cfg.Oracle == nil {
		return nil, fmt.Errorf("oracle client is required")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 4
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		cfg:        cfg,
		logger:     logger,
		reconciler: reconcile.New(logger),
	}, nil
}

// Convert runs the document-conversion stage. A non-zero converter exit is a
// StageFailure; it is not retried at this granularity.
func (d *Driver) Convert(ctx context.Context, inputPath, outputPath string) error {
	if d.cfg.Converter == nil {
		return nil
	}
	d.statusf("Converting %s", inputPath)
	if err := d.cfg.Converter.Run(ctx, inputPath, outputPath); err != nil {
		return &StageFailure{Stage: "convert", Chapter: -1, Chunk: -1, Err: err}
	}
	return nil
}

// Clean runs the rating and cleaning stages over the book and commits
// proposed changes to the ledger. On failure the returned report still
// reflects the committed work.
func (d *Driver) Clean(ctx context.Context, book []BookChapter) (Report, error) {
	d.mu.Lock()
	d.report = Report{Chapters: len(book)}
	d.mu.Unlock()

	for _, ch := range book {
		if _, ok := d.cfg.Ledger.ChapterTitle(ch.Index); !ok {
			if err := d.cfg.Ledger.AddChapter(ch.Index, ch.Title); err != nil {
				return d.snapshot(), &StageFailure{Stage: "rate", Chapter: ch.Index, Chunk: -1, Err: err}
			}
		}
	}

	plans := d.rate(book)

	for _, category := range d.cfg.Policy.Categories() {
		d.statusf("Cleaning %s", category)
		if err := d.cleanCategory(ctx, category, plans); err != nil {
			return d.snapshot(), err
		}
	}

	d.statusf("Verifying cleaned chapters")
	if err := d.save(); err != nil {
		return d.snapshot(), &StageFailure{Stage: "verify", Chapter: -1, Chunk: -1, Err: err}
	}
	d.statusf("Complete")

	d.mu.Lock()
	d.report.Complete = true
	d.mu.Unlock()
	return d.snapshot(), nil
}

// chapterPlan is the chunk plan for one chapter.
type chapterPlan struct {
	chapter int
	chunks  []chunker.Chunk
}

// rate sizes the run: plans every chapter's chunks and announces totals on
// the status stream.
func (d *Driver) rate(book []BookChapter) []chapterPlan {
	d.statusf("Rating %d chapters", len(book))
	plans := make([]chapterPlan, 0, len(book))
	for i, ch := range book {
		plans = append(plans, chapterPlan{
			chapter: ch.Index,
			chunks:  chunker.Plan(ch.Index, ch.Paragraphs, d.cfg.Limit),
		})
		d.statusf("[%d/%d]", i+1, len(book))
	}
	d.statusf("Identifying content to remove")
	return plans
}

// cleanCategory runs one category pass: chapters in parallel bounded by
// Workers, chunks within a chapter strictly serial so sequence-number
// assignment has a single writer per chapter.
func (d *Driver) cleanCategory(ctx context.Context, category string, plans []chapterPlan) error {
	policy := d.categoryPolicy(category)

	total := 0
	for _, p := range plans {
		total += len(p.chunks)
	}
	if total == 0 {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg        sync.WaitGroup
		sem       = make(chan struct{}, d.cfg.Workers)
		failMu    sync.Mutex
		failure   *StageFailure
		done      int
		completed int
	)

	fail := func(f *StageFailure) {
		failMu.Lock()
		if failure == nil {
			failure = f
			cancel()
		}
		failMu.Unlock()
	}

	for _, plan := range plans {
		wg.Add(1)
		go func(plan chapterPlan) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-runCtx.Done():
				return
			}

			for ci, chunk := range plan.chunks {
				// Cancellation is cooperative between chunks; an in-flight
				// chunk finishes and commits before the worker stops.
				if err := runCtx.Err(); err != nil {
					return
				}
				if err := d.processChunk(runCtx, chunk, category, policy); err != nil {
					if errors.Is(err, context.Canceled) {
						// Another worker failed or the caller cancelled;
						// cleanCategory reports the right cause either way.
						return
					}
					failMu.Lock()
					n := completed
					failMu.Unlock()
					fail(&StageFailure{
						Stage:             "clean",
						Chapter:           plan.chapter,
						Chunk:             ci,
						ChaptersCompleted: n,
						Err:               err,
					})
					return
				}
				failMu.Lock()
				done++
				k := done
				failMu.Unlock()
				d.statusf("[%d/%d]", k, total)
			}
			failMu.Lock()
			completed++
			failMu.Unlock()
		}(plan)
	}
	wg.Wait()

	if failure != nil {
		return failure
	}
	return ctx.Err()
}

// processChunk sends one chunk through the oracle and commits its changes
// atomically. Nothing is written for a chunk until its oracle call returned
// and reconciled.
func (d *Driver) processChunk(ctx context.Context, chunk chunker.Chunk, category string, policy oracle.Policy) error {
	text := chunk.Join()
	if text == "" {
		return nil
	}

	var result *oracle.TransformResult
	err := retry.Do(
		func() error {
			res, err := d.cfg.Oracle.Transform(ctx, text, policy)
			if err != nil {
				return err
			}
			result = res
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(d.cfg.MaxAttempts)),
		retry.Delay(d.cfg.RetryBaseDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxDelay(30*time.Second),
		retry.RetryIf(oracle.IsTransient),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			d.logger.Warn("oracle call retrying",
				"chapter", chunk.ChapterIndex,
				"start_paragraph", chunk.StartParagraph,
				"attempt", attempt+1,
				"error", err,
			)
			d.statusf("Retrying chapter %d after error (attempt %d)", chunk.ChapterIndex, attempt+1)
		}),
	)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.report.ChunksProcessed++
	d.mu.Unlock()

	if !result.Modified {
		return nil
	}

	res := d.reconciler.Reconcile(chunk, result.CleanedText, category, d.cfg.Ledger.NextSeq(chunk.ChapterIndex))
	if len(res.Changes) == 0 {
		return nil
	}
	if err := d.cfg.Ledger.AddChanges(res.Changes); err != nil {
		return err
	}

	d.mu.Lock()
	d.report.ChangesProposed += len(res.Changes)
	d.mu.Unlock()

	return d.save()
}

// categoryPolicy narrows the policy to a single category pass. The word
// list rides along only with the language pass.
func (d *Driver) categoryPolicy(category string) oracle.Policy {
	p := oracle.Policy{
		CategoryLevels: map[string]int{category: d.cfg.Policy.CategoryLevels[category]},
	}
	if category == "language" {
		p.WordList = d.cfg.Policy.WordList
	}
	return p
}

// save persists the ledger. Saves are serialized: each snapshot written to
// disk is a state the in-memory ledger reached.
func (d *Driver) save() error {
	if d.cfg.Store == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.Store.Save(d.cfg.Ledger)
}

func (d *Driver) snapshot() Report {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.report
}

func (d *Driver) statusf(format string, args ...any) {
	if d.cfg.Status == nil {
		return
	}
	d.statusMu.Lock()
	defer d.statusMu.Unlock()
	fmt.Fprintf(d.cfg.Status, format+"\n", args...)
}
