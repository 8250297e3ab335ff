package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/bowdler/internal/chunker"
	"github.com/jackzampolin/bowdler/internal/ledger"
	"github.com/jackzampolin/bowdler/internal/oracle"
	"github.com/jackzampolin/bowdler/internal/progress"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBook() []BookChapter {
	return []BookChapter{
		{Index: 0, Title: "One", Paragraphs: []string{"a damn mess", "all quiet"}},
		{Index: 1, Title: "Two", Paragraphs: []string{"damn again", "still quiet", "end"}},
	}
}

// syncBuffer is a goroutine-safe status sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testDriver(t *testing.T, mock *oracle.MockClient, workers int) (*Driver, *ledger.Ledger, *syncBuffer) {
	t.Helper()
	l := ledger.New()
	status := &syncBuffer{}
	d, err := New(Config{
		Oracle: mock,
		Policy: oracle.Policy{
			CategoryLevels: map[string]int{"language": 3},
			WordList:       []string{"damn"},
		},
		Ledger:         l,
		Store:          ledger.NewStore(filepath.Join(t.TempDir(), "ledger.yaml")),
		Limit:          chunker.Limit{MaxParagraphs: 2},
		Workers:        workers,
		MaxAttempts:    3,
		RetryBaseDelay: time.Millisecond,
		Status:         status,
		Logger:         testLogger(),
	})
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	return d, l, status
}

func TestCleanProposesChanges(t *testing.T) {
	mock := oracle.NewMockClient()
	mock.Replacements = map[string]string{"damn": "darn"}

	d, l, _ := testDriver(t, mock, 2)
	report, err := d.Clean(context.Background(), testBook())
	if err != nil {
		t.Fatalf("Clean error = %v", err)
	}
	if !report.Complete {
		t.Error("report not complete")
	}
	if report.Chapters != 2 {
		t.Errorf("report chapters = %d, want 2", report.Chapters)
	}

	all := l.AllChanges()
	if len(all) != 2 {
		t.Fatalf("changes = %d, want 2: %+v", len(all), all)
	}
	for _, c := range all {
		if c.Status != ledger.StatusPending {
			t.Errorf("change %s status = %s, want pending", c.ID, c.Status)
		}
		if c.Reason != "language" {
			t.Errorf("change %s reason = %q, want language", c.ID, c.Reason)
		}
		if !strings.Contains(c.Original, "damn") || !strings.Contains(c.Cleaned, "darn") {
			t.Errorf("change %s = %q -> %q", c.ID, c.Original, c.Cleaned)
		}
	}

	// Canonical ordering across chapters.
	for i := 1; i < len(all); i++ {
		if !all[i-1].ID.Less(all[i].ID) {
			t.Errorf("changes out of order: %s before %s", all[i-1].ID, all[i].ID)
		}
	}
}

func TestCleanPersistsAfterEachChunk(t *testing.T) {
	mock := oracle.NewMockClient()
	mock.Replacements = map[string]string{"damn": "darn"}

	d, _, _ := testDriver(t, mock, 1)
	if _, err := d.Clean(context.Background(), testBook()); err != nil {
		t.Fatalf("Clean error = %v", err)
	}

	loaded, err := d.cfg.Store.Load()
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}
	if got := len(loaded.AllChanges()); got != 2 {
		t.Errorf("persisted changes = %d, want 2", got)
	}
}

func TestCleanNoModifications(t *testing.T) {
	mock := oracle.NewMockClient() // pass-through

	d, l, _ := testDriver(t, mock, 1)
	report, err := d.Clean(context.Background(), testBook())
	if err != nil {
		t.Fatalf("Clean error = %v", err)
	}
	if got := len(l.AllChanges()); got != 0 {
		t.Errorf("changes = %d, want 0", got)
	}
	// 1 + 2 chunks for one category pass.
	if report.ChunksProcessed != 3 {
		t.Errorf("chunks processed = %d, want 3", report.ChunksProcessed)
	}
}

func TestCleanRetriesTransientFailures(t *testing.T) {
	calls := 0
	mock := oracle.NewMockClient()
	mock.Latency = 0
	mock.Func = func(text string, policy oracle.Policy) (*oracle.TransformResult, error) {
		calls++
		if calls == 1 {
			return nil, &oracle.RateLimitError{Message: "slow down", RetryAfter: time.Millisecond}
		}
		return &oracle.TransformResult{CleanedText: text, Modified: false}, nil
	}

	d, _, status := testDriver(t, mock, 1)
	if _, err := d.Clean(context.Background(), testBook()); err != nil {
		t.Fatalf("Clean error = %v", err)
	}
	if calls < 2 {
		t.Errorf("oracle calls = %d, want a retry", calls)
	}
	if !strings.Contains(status.String(), "Retrying") {
		t.Error("status stream missing retry notice")
	}
}

func TestCleanStageFailureReportsPosition(t *testing.T) {
	mock := oracle.NewMockClient()
	mock.Latency = 0
	mock.Func = func(string, oracle.Policy) (*oracle.TransformResult, error) {
		return nil, errors.New("oracle error (status 400): bad request")
	}

	d, l, _ := testDriver(t, mock, 1)
	// Single chapter so the failure position is deterministic.
	book := []BookChapter{{Index: 0, Title: "One", Paragraphs: []string{"a", "b", "c"}}}
	_, err := d.Clean(context.Background(), book)
	var sf *StageFailure
	if !errors.As(err, &sf) {
		t.Fatalf("Clean error = %v, want *StageFailure", err)
	}
	if sf.Stage != "clean" {
		t.Errorf("failed stage = %s, want clean", sf.Stage)
	}
	if sf.Chapter != 0 || sf.Chunk != 0 {
		t.Errorf("failure position = chapter %d chunk %d, want 0/0", sf.Chapter, sf.Chunk)
	}
	// Fail-safe: nothing was blanked or committed.
	if got := len(l.AllChanges()); got != 0 {
		t.Errorf("changes after failure = %d, want 0", got)
	}
}

func TestCleanRetriesExhaustedEscalates(t *testing.T) {
	mock := oracle.NewMockClient()
	mock.Latency = 0
	mock.ShouldFail = true
	mock.RateLimit = true

	d, _, _ := testDriver(t, mock, 1)
	_, err := d.Clean(context.Background(), testBook())
	var sf *StageFailure
	if !errors.As(err, &sf) {
		t.Fatalf("Clean error = %v, want *StageFailure", err)
	}
	if mock.RequestCount() != 3 {
		t.Errorf("oracle attempts = %d, want 3 (MaxAttempts)", mock.RequestCount())
	}
}

func TestCleanCancellationKeepsCommittedWork(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	mock := oracle.NewMockClient()
	mock.Latency = 0
	first := true
	mock.Func = func(text string, policy oracle.Policy) (*oracle.TransformResult, error) {
		if first {
			first = false
			return &oracle.TransformResult{
				CleanedText: strings.ReplaceAll(text, "damn", "darn"),
				Modified:    true,
			}, nil
		}
		cancel()
		return &oracle.TransformResult{CleanedText: text, Modified: false}, nil
	}

	d, l, _ := testDriver(t, mock, 1)
	_, err := d.Clean(ctx, testBook())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Clean error = %v, want context.Canceled", err)
	}
	// The chunk reconciled before cancellation stays in the ledger.
	if got := len(l.AllChanges()); got != 1 {
		t.Errorf("changes after cancel = %d, want 1", got)
	}
}

func TestStatusStreamDrivesProgressTracker(t *testing.T) {
	mock := oracle.NewMockClient()
	mock.Replacements = map[string]string{"damn": "darn"}

	d, _, status := testDriver(t, mock, 1)
	if _, err := d.Clean(context.Background(), testBook()); err != nil {
		t.Fatalf("Clean error = %v", err)
	}

	tr := progress.NewTracker([]string{"language"})
	if err := tr.Consume(strings.NewReader(status.String())); err != nil {
		t.Fatalf("Consume error = %v", err)
	}
	s := tr.Snapshot()
	if s.Phase != progress.PhaseComplete || s.Fraction != 1.0 {
		t.Errorf("tracker state = %+v, want complete", s)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{Ledger: ledger.New()}); err == nil {
		t.Error("New without oracle should fail")
	}
	if _, err := New(Config{Oracle: oracle.NewMockClient()}); err == nil {
		t.Error("New without ledger should fail")
	}
}
