// Package review walks a ledger's pending changes in canonical order and
// applies accept/reject decisions, persisting after every mutation.
package review

import (
	"errors"
	"fmt"

	"github.com/jackzampolin/bowdler/internal/ledger"
)

// ErrNoPending signals an empty pending list.
var ErrNoPending = errors.New("no pending changes")

// Saver persists the ledger after each review action. *ledger.Store
// satisfies it; tests substitute their own.
type Saver interface {
	Save(*ledger.Ledger) error
}

// Machine is the review cursor over a ledger's pending changes. It is
// single-threaded by contract: one operation at a time, and the save for an
// operation completes before the next operation is accepted, so the on-disk
// ledger never runs ahead of or behind the in-memory one.
type Machine struct {
	ledger *ledger.Ledger
	saver  Saver
	cursor int
}

// NewMachine creates a review machine. saver may be nil for in-memory review.
func NewMachine(l *ledger.Ledger, saver Saver) *Machine {
	return &Machine{ledger: l, saver: saver}
}

// Current returns the pending change at the cursor, or ErrNoPending.
func (m *Machine) Current() (ledger.Change, error) {
	pending := m.ledger.PendingChanges()
	if len(pending) == 0 {
		return ledger.Change{}, ErrNoPending
	}
	m.clamp(len(pending))
	return pending[m.cursor], nil
}

// Position returns the cursor position and pending count, 1-based position
// for display. Position is (0, 0) when nothing is pending.
func (m *Machine) Position() (pos, total int) {
	pending := m.ledger.PendingChanges()
	if len(pending) == 0 {
		return 0, 0
	}
	m.clamp(len(pending))
	return m.cursor + 1, len(pending)
}

// Next moves the cursor forward without deciding, stopping at the last
// pending change.
func (m *Machine) Next() {
	if n := len(m.ledger.PendingChanges()); n > 0 {
		m.cursor++
		m.clamp(n)
	}
}

// Prev moves the cursor back, stopping at the first pending change.
func (m *Machine) Prev() {
	if n := len(m.ledger.PendingChanges()); n > 0 {
		m.cursor--
		m.clamp(n)
	}
}

// Accept resolves the current change as accepted. A non-empty edited string
// that differs from the stored cleaned text replaces it first. The pending
// list is recomputed afterwards, so the cursor is clamped rather than
// advanced: the decided entry has already dropped out from under it.
func (m *Machine) Accept(edited string) error {
	cur, err := m.Current()
	if err != nil {
		return err
	}
	if err := m.ledger.Resolve(cur.ID, ledger.StatusAccepted, edited); err != nil {
		return err
	}
	return m.finish()
}

// Reject resolves the current change as rejected.
func (m *Machine) Reject() error {
	cur, err := m.Current()
	if err != nil {
		return err
	}
	if err := m.ledger.Resolve(cur.ID, ledger.StatusRejected, ""); err != nil {
		return err
	}
	return m.finish()
}

// AcceptAll accepts every pending change in one operation and returns how
// many were accepted. The cursor resets to the front of whatever remains.
func (m *Machine) AcceptAll() (int, error) {
	return m.acceptWhere(func(string) bool { return true })
}

// AcceptAllMatching accepts every pending change whose reason satisfies the
// predicate, e.g. every change whose reason mentions "language".
func (m *Machine) AcceptAllMatching(pred func(reason string) bool) (int, error) {
	if pred == nil {
		return 0, fmt.Errorf("nil predicate")
	}
	return m.acceptWhere(pred)
}

func (m *Machine) acceptWhere(pred func(reason string) bool) (int, error) {
	accepted := 0
	for _, c := range m.ledger.PendingChanges() {
		if !pred(c.Reason) {
			continue
		}
		if err := m.ledger.Resolve(c.ID, ledger.StatusAccepted, ""); err != nil {
			return accepted, err
		}
		accepted++
	}
	m.cursor = 0
	if accepted == 0 {
		return 0, nil
	}
	return accepted, m.save()
}

func (m *Machine) finish() error {
	m.clamp(len(m.ledger.PendingChanges()))
	return m.save()
}

func (m *Machine) save() error {
	if m.saver == nil {
		return nil
	}
	if err := m.saver.Save(m.ledger); err != nil {
		return fmt.Errorf("failed to persist review decision: %w", err)
	}
	return nil
}

func (m *Machine) clamp(n int) {
	if n == 0 {
		m.cursor = 0
		return
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor > n-1 {
		m.cursor = n - 1
	}
}
