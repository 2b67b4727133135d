// Package tracker implements the knock sequence state machine. It tracks,
// per source address, progress through the configured port sequence and
// enforces the completion window. It is the only state shared between the
// knock listeners and is safe for concurrent use.
package tracker

import (
	"log/slog"
	"sync"
	"time"
)

// progress is the per-address state. next is the index into the sequence of
// the port expected on the following knock; start is when the first knock of
// the current attempt arrived. Absence from the map means no progress.
type progress struct {
	next  int
	start time.Time
}

// Tracker maps source addresses to their progress through the knock
// sequence. All transitions happen under a single mutex; the critical
// section is pure in-memory state so listeners never block on each other
// for long.
type Tracker struct {
	sequence []uint16
	window   time.Duration

	mu    sync.Mutex
	state map[string]progress
}

// New creates a Tracker for the given ordered port sequence and completion
// window. The sequence is copied and immutable afterwards.
func New(sequence []uint16, window time.Duration) *Tracker {
	seq := make([]uint16, len(sequence))
	copy(seq, sequence)
	return &Tracker{
		sequence: seq,
		window:   window,
		state:    make(map[string]progress),
	}
}

// Sequence returns a copy of the configured knock sequence.
func (t *Tracker) Sequence() []uint16 {
	seq := make([]uint16, len(t.sequence))
	copy(seq, t.sequence)
	return seq
}

// RegisterKnock records a knock from addr on port at time now and reports
// whether this knock completed the sequence. Completion is reported exactly
// once per successful run: the address's state is removed on the same call,
// so repeating the final knock starts from scratch.
func (t *Tracker) RegisterKnock(addr string, port uint16, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, tracked := t.state[addr]
	if !tracked {
		// Only a knock on the first sequence port starts tracking.
		return t.maybeStart(addr, port, now)
	}

	// Window expired: forget the old attempt, then treat this knock as if
	// the address had no state. A knock that expires an old window can
	// start a new attempt but never completes one.
	if now.Sub(p.start) > t.window {
		delete(t.state, addr)
		slog.Info("sequence window expired, reset", "addr", addr)
		t.maybeStart(addr, port, now)
		return false
	}

	expected := t.sequence[p.next]
	if port == expected {
		p.next++
		if p.next == len(t.sequence) {
			delete(t.state, addr)
			slog.Info("knock sequence complete",
				"addr", addr, "port", port,
				"knock", len(t.sequence), "of", len(t.sequence))
			return true
		}
		t.state[addr] = p
		slog.Info("knock accepted",
			"addr", addr, "port", port,
			"knock", p.next, "of", len(t.sequence))
		return false
	}

	// Wrong knock: full reset, no partial credit. If the wrong port happens
	// to be the first sequence port, the address re-arms immediately.
	delete(t.state, addr)
	slog.Info("wrong knock, reset",
		"addr", addr, "port", port, "expected", expected)
	t.maybeStart(addr, port, now)
	return false
}

// maybeStart creates fresh state when port is the first port of the
// sequence, and reports completion for the degenerate single-port
// sequence. Reset paths (window expiry, wrong knock) discard the result:
// a knock that tears down old state never completes a sequence itself.
// Callers hold t.mu.
func (t *Tracker) maybeStart(addr string, port uint16, now time.Time) bool {
	if port != t.sequence[0] {
		return false
	}
	if len(t.sequence) == 1 {
		slog.Info("knock sequence complete",
			"addr", addr, "port", port, "knock", 1, "of", 1)
		return true
	}
	t.state[addr] = progress{next: 1, start: now}
	slog.Info("knock accepted",
		"addr", addr, "port", port,
		"knock", 1, "of", len(t.sequence))
	return false
}

// Tracked reports whether addr currently has in-flight sequence state.
func (t *Tracker) Tracked(addr string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.state[addr]
	return ok
}
