package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestPolicyCategoriesSorted(t *testing.T) {
	p := Policy{CategoryLevels: map[string]int{"violence": 2, "language": 3, "sexual": 1}}
	got := p.Categories()
	want := []string{"language", "sexual", "violence"}
	if len(got) != len(want) {
		t.Fatalf("Categories len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Categories[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseTransformResult(t *testing.T) {
	res, err := parseTransformResult(`{"cleaned_text":"darn","modified":true,"detected_changes":["language"]}`)
	if err != nil {
		t.Fatalf("parseTransformResult error = %v", err)
	}
	if res.CleanedText != "darn" || !res.Modified {
		t.Errorf("result = %+v", res)
	}
	if len(res.DetectedChanges) != 1 || res.DetectedChanges[0] != "language" {
		t.Errorf("DetectedChanges = %v", res.DetectedChanges)
	}
}

func TestParseTransformResultRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":      "the text, cleaned",
		"missing field": `{"cleaned_text":"x"}`,
		"wrong type":    `{"cleaned_text":"x","modified":"yes","detected_changes":[]}`,
		"extra field":   `{"cleaned_text":"x","modified":false,"detected_changes":[],"score":1}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := parseTransformResult(content); err == nil {
				t.Error("parseTransformResult should fail")
			}
		})
	}
}

func TestSystemPromptMentionsPolicy(t *testing.T) {
	p := Policy{
		CategoryLevels: map[string]int{"language": 3},
		WordList:       []string{"dagnabbit"},
	}
	prompt := systemPrompt(p)
	for _, want := range []string{"language: level 3", "dagnabbit", "blank line"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("systemPrompt missing %q", want)
		}
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{&RateLimitError{Message: "slow down"}, true},
		{fmt.Errorf("wrapped: %w", &RateLimitError{Message: "slow down"}), true},
		{errors.New("oracle error (status 503): overloaded"), true},
		{errors.New("request timeout"), true},
		{errors.New("oracle error (status 400): bad request"), false},
		{context.Canceled, false},
		{context.DeadlineExceeded, true},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Errorf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d := parseRetryAfter("30"); d != 30*time.Second {
		t.Errorf("parseRetryAfter(30) = %v", d)
	}
	if d := parseRetryAfter(""); d != 0 {
		t.Errorf("parseRetryAfter(empty) = %v", d)
	}
	if d := parseRetryAfter("soon"); d != 0 {
		t.Errorf("parseRetryAfter(soon) = %v", d)
	}
}

func TestRateLimiterWait(t *testing.T) {
	rl := NewRateLimiter(600) // 10/sec, bucket starts full
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("Wait error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("full bucket should not block, took %v", elapsed)
	}
}

func TestRateLimiterCancellation(t *testing.T) {
	rl := NewRateLimiter(1)
	rl.Record429(time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait after drain error = %v, want deadline exceeded", err)
	}
}

func TestRateLimiterSetRPM(t *testing.T) {
	rl := NewRateLimiter(60)

	rl.SetRPM(600)
	if got := rl.RPM(); got != 600 {
		t.Errorf("RPM = %d, want 600", got)
	}

	// Capacity shrink forfeits tokens above the new budget: a full bucket at
	// 600 rpm clamps to 2 tokens, so the third request must wait.
	rl.SetRPM(2)
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 2; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("Wait error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("clamped bucket should still cover its capacity, took %v", elapsed)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := rl.Wait(waitCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait past capacity error = %v, want deadline exceeded", err)
	}

	// Invalid budgets are ignored.
	rl.SetRPM(0)
	if got := rl.RPM(); got != 2 {
		t.Errorf("RPM after SetRPM(0) = %d, want 2", got)
	}
}

func TestMockClient(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()
	mock.Replacements = map[string]string{"damn": "darn"}

	res, err := mock.Transform(ctx, "well damn it\n\nall fine here", Policy{})
	if err != nil {
		t.Fatalf("Transform error = %v", err)
	}
	if !res.Modified || res.CleanedText != "well darn it\n\nall fine here" {
		t.Errorf("result = %+v", res)
	}

	res, err = mock.Transform(ctx, "all fine here", Policy{})
	if err != nil {
		t.Fatalf("Transform error = %v", err)
	}
	if res.Modified {
		t.Error("pass-through text reported as modified")
	}
	if mock.RequestCount() != 2 {
		t.Errorf("RequestCount = %d, want 2", mock.RequestCount())
	}
}

func TestMockClientFailAfter(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()
	mock.FailAfter = 1
	mock.RateLimit = true

	if _, err := mock.Transform(ctx, "x", Policy{}); err != nil {
		t.Fatalf("first Transform error = %v", err)
	}
	_, err := mock.Transform(ctx, "x", Policy{})
	if _, ok := IsRateLimitError(err); !ok {
		t.Errorf("second Transform error = %v, want RateLimitError", err)
	}
}
