// Package oracle is the boundary to the external content-transformation
// service. The core treats the service as opaque: it sends a unit of text
// plus a policy and gets back transformed text, tolerating re-flowed
// paragraphs, rate limiting, and outright unavailability.
package oracle

import (
	"context"
	"sort"
)

// Policy tells the oracle what to remove. CategoryLevels maps a category
// name (e.g. "language", "sexual", "violence") to a severity threshold;
// content at or above the threshold is rewritten. WordList is an optional
// explicit list of words to remove regardless of category scoring.
type Policy struct {
	CategoryLevels map[string]int `mapstructure:"category_levels" yaml:"category_levels"`
	WordList       []string       `mapstructure:"word_list" yaml:"word_list,omitempty"`
}

// Categories returns the policy's category names in stable sorted order.
func (p Policy) Categories() []string {
	out := make([]string, 0, len(p.CategoryLevels))
	for c := range p.CategoryLevels {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// TransformResult is the oracle's response for one unit of text.
type TransformResult struct {
	// CleanedText is the rewritten unit. Paragraph boundaries use the same
	// marker as the input, but the oracle may merge or split paragraphs.
	CleanedText string `json:"cleaned_text"`
	// Modified reports whether the oracle changed anything.
	Modified bool `json:"modified"`
	// DetectedChanges are free-text category tags for what was removed.
	DetectedChanges []string `json:"detected_changes"`
}

// Client is the oracle interface. Implementations make a single attempt per
// call; retry and backoff belong to the caller so waits can be surfaced to
// progress reporting.
type Client interface {
	// Transform rewrites text according to policy.
	Transform(ctx context.Context, text string, policy Policy) (*TransformResult, error)

	// Name returns the client identifier (e.g. "openai").
	Name() string
}
