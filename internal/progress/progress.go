// Package progress classifies the free-text status stream of a batch run
// into a phase, an optional sub-phase, and a fractional completion estimate.
//
// The stream has no schema beyond a handful of ad hoc markers ("Rating N
// chapters", "[3/7]", category headers). Matching is an ordered list of
// (pattern, transition) rules evaluated in priority order and kept as data,
// so adding a phase never touches the matching loop. Lines matching no rule
// are inert.
package progress

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Phase is a top-level stage of a batch run.
type Phase string

const (
	PhaseConverting Phase = "converting"
	PhaseRating     Phase = "rating"
	PhaseCleaning   Phase = "cleaning"
	PhaseComplete   Phase = "complete"
)

// Cleaning sub-phases that bracket the per-category passes.
const (
	SubPhaseIdentifying = "identifying"
	SubPhaseVerifying   = "verifying"
)

// Segment weights. Conversion and rating are cheap relative to the cleaning
// passes, which take the remaining budget split evenly across sub-phases.
const (
	convertingWeight = 0.05
	ratingWeight     = 0.15
	cleaningWeight   = 1.0 - convertingWeight - ratingWeight
)

// State is a snapshot of tracker output.
type State struct {
	Phase    Phase   `json:"phase" yaml:"phase"`
	SubPhase string  `json:"sub_phase,omitempty" yaml:"sub_phase,omitempty"`
	Current  int     `json:"current" yaml:"current"`
	Total    int     `json:"total" yaml:"total"`
	Fraction float64 `json:"fraction" yaml:"fraction"`
}

type rule struct {
	re    *regexp.Regexp
	apply func(t *Tracker, m []string)
}

// Tracker consumes one status line at a time. It is reset at the start of a
// run and discarded at the end. Feed must be driven by a single ordered
// stream; Snapshot may be called from other goroutines.
type Tracker struct {
	mu       sync.Mutex
	rules    []rule
	phase    Phase
	subPhase string
	current  int
	total    int
	// Sub-phase order within cleaning: identifying, categories, verifying.
	subPhases []string
}

// NewTracker creates a tracker whose cleaning segment is split across the
// given category passes (e.g. "language", "sexual", "violence").
func NewTracker(categories []string) *Tracker {
	t := &Tracker{phase: PhaseConverting}
	t.subPhases = append(t.subPhases, SubPhaseIdentifying)
	t.subPhases = append(t.subPhases, categories...)
	t.subPhases = append(t.subPhases, SubPhaseVerifying)

	t.rules = []rule{
		{regexp.MustCompile(`^Converting\b`), func(t *Tracker, m []string) {
			t.enter(PhaseConverting, "")
		}},
		{regexp.MustCompile(`^(?:Rating|Found)\s+(\d+)\s+chapters\b`), func(t *Tracker, m []string) {
			t.enter(PhaseRating, "")
			t.total = atoiOrKeep(m[1], t.total)
		}},
		{regexp.MustCompile(`^Identifying\b`), func(t *Tracker, m []string) {
			t.enter(PhaseCleaning, SubPhaseIdentifying)
		}},
		{regexp.MustCompile(`^Verifying\b`), func(t *Tracker, m []string) {
			t.enter(PhaseCleaning, SubPhaseVerifying)
		}},
		{regexp.MustCompile(`^Cleaning\s+(\S+)`), func(t *Tracker, m []string) {
			sub := strings.ToLower(m[1])
			if t.subPhaseIndex(sub) < 0 {
				return // unknown category header is inert
			}
			t.enter(PhaseCleaning, sub)
		}},
		{regexp.MustCompile(`^(?:Complete|Done)\b`), func(t *Tracker, m []string) {
			t.enter(PhaseComplete, "")
		}},
		{regexp.MustCompile(`\[(\d+)/(\d+)\]`), func(t *Tracker, m []string) {
			cur, err1 := strconv.Atoi(m[1])
			total, err2 := strconv.Atoi(m[2])
			if err1 != nil || err2 != nil {
				// Malformed counter: degrade to phase-only reporting.
				return
			}
			t.current, t.total = cur, total
		}},
	}
	return t
}

// Feed classifies one status line. The first matching rule wins; unmatched
// lines leave the state untouched.
func (t *Tracker) Feed(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	line = strings.TrimSpace(line)
	for _, r := range t.rules {
		if m := r.re.FindStringSubmatch(line); m != nil {
			r.apply(t, m)
			return
		}
	}
}

// Consume feeds every newline-delimited line from r until EOF.
func (t *Tracker) Consume(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		t.Feed(scanner.Text())
	}
	return scanner.Err()
}

// Snapshot returns the current state with the weighted fraction.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return State{
		Phase:    t.phase,
		SubPhase: t.subPhase,
		Current:  t.current,
		Total:    t.total,
		Fraction: t.fraction(),
	}
}

// Reset returns the tracker to the start-of-run state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = PhaseConverting
	t.subPhase = ""
	t.current = 0
	t.total = 0
}

// enter switches phase/sub-phase and clears the per-segment counters, so a
// stale total from the previous segment never skews the new one.
func (t *Tracker) enter(phase Phase, subPhase string) {
	if t.phase == phase && t.subPhase == subPhase {
		return
	}
	t.phase = phase
	t.subPhase = subPhase
	t.current = 0
	t.total = 0
}

func (t *Tracker) subPhaseIndex(sub string) int {
	for i, s := range t.subPhases {
		if s == sub {
			return i
		}
	}
	return -1
}

// fraction models the run as contiguous weighted segments. A segment that
// has not been sized yet (total == 0) holds at its base offset.
func (t *Tracker) fraction() float64 {
	var base, weight float64
	switch t.phase {
	case PhaseConverting:
		base, weight = 0, convertingWeight
	case PhaseRating:
		base, weight = convertingWeight, ratingWeight
	case PhaseCleaning:
		idx := t.subPhaseIndex(t.subPhase)
		if idx < 0 {
			idx = 0
		}
		subWeight := cleaningWeight / float64(len(t.subPhases))
		base = convertingWeight + ratingWeight + float64(idx)*subWeight
		weight = subWeight
	case PhaseComplete:
		return 1.0
	default:
		return 0
	}

	f := base
	if t.total > 0 {
		f += float64(t.current) / float64(t.total) * weight
	}
	return clamp01(f)
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func atoiOrKeep(s string, keep int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return keep
	}
	return n
}
