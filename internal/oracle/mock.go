package oracle

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

const MockName = "mock"

// MockClient is a Client for tests and dry runs.
type MockClient struct {
	// Configurable behavior
	Latency    time.Duration
	ShouldFail bool
	FailAfter  int // fail once the request count exceeds N (0 = never)
	RateLimit  bool
	// Replacements applied to every paragraph; when nil the text passes
	// through unchanged.
	Replacements map[string]string
	// Func overrides Replacements entirely when set.
	Func func(text string, policy Policy) (*TransformResult, error)

	// State
	requestCount atomic.Int64
}

// NewMockClient creates a mock with pass-through behavior.
func NewMockClient() *MockClient {
	return &MockClient{Latency: time.Millisecond}
}

// Name returns the client identifier.
func (c *MockClient) Name() string {
	return MockName
}

// RequestCount returns how many Transform calls were made.
func (c *MockClient) RequestCount() int64 {
	return c.requestCount.Load()
}

// Transform applies the scripted behavior.
func (c *MockClient) Transform(ctx context.Context, text string, policy Policy) (*TransformResult, error) {
	count := c.requestCount.Add(1)

	if c.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.Latency):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if c.ShouldFail || (c.FailAfter > 0 && count > int64(c.FailAfter)) {
		if c.RateLimit {
			return nil, &RateLimitError{Message: "mock rate limited", RetryAfter: time.Millisecond}
		}
		return nil, fmt.Errorf("mock transform failed (request %d)", count)
	}

	if c.Func != nil {
		return c.Func(text, policy)
	}

	cleaned := text
	for from, to := range c.Replacements {
		cleaned = strings.ReplaceAll(cleaned, from, to)
	}
	var detected []string
	if cleaned != text {
		detected = []string{"language"}
	}
	return &TransformResult{
		CleanedText:     cleaned,
		Modified:        cleaned != text,
		DetectedChanges: detected,
	}, nil
}
