package tracker

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var testSequence = []uint16{1234, 5678, 9012}

func testTracker() *Tracker {
	return New(testSequence, 10*time.Second)
}

func TestFullSequenceCompletes(t *testing.T) {
	tr := testTracker()
	now := time.Now()

	assert.False(t, tr.RegisterKnock("10.0.0.1", 1234, now))
	assert.False(t, tr.RegisterKnock("10.0.0.1", 5678, now.Add(2*time.Second)))
	assert.True(t, tr.RegisterKnock("10.0.0.1", 9012, now.Add(4*time.Second)))

	// State is gone after completion; the final knock cannot be replayed.
	assert.False(t, tr.Tracked("10.0.0.1"))
	assert.False(t, tr.RegisterKnock("10.0.0.1", 9012, now.Add(5*time.Second)))
}

func TestMidSequenceKnockIgnoredWithoutState(t *testing.T) {
	tr := testTracker()
	assert.False(t, tr.RegisterKnock("10.0.0.1", 5678, time.Now()))
	assert.False(t, tr.Tracked("10.0.0.1"))
}

func TestWindowExpiryResets(t *testing.T) {
	tr := testTracker()
	now := time.Now()

	assert.False(t, tr.RegisterKnock("10.0.0.1", 1234, now))
	assert.False(t, tr.RegisterKnock("10.0.0.1", 5678, now.Add(time.Second)))

	// Final knock lands after the window: old state is discarded and 9012
	// is not the first sequence port, so nothing restarts either.
	assert.False(t, tr.RegisterKnock("10.0.0.1", 9012, now.Add(11*time.Second)))
	assert.False(t, tr.Tracked("10.0.0.1"))
}

func TestWindowExpiryCanRestart(t *testing.T) {
	tr := testTracker()
	now := time.Now()

	assert.False(t, tr.RegisterKnock("10.0.0.1", 1234, now))
	// First-port knock after expiry starts a fresh attempt but never
	// completes anything itself.
	assert.False(t, tr.RegisterKnock("10.0.0.1", 1234, now.Add(15*time.Second)))
	assert.True(t, tr.Tracked("10.0.0.1"))

	assert.False(t, tr.RegisterKnock("10.0.0.1", 5678, now.Add(16*time.Second)))
	assert.True(t, tr.RegisterKnock("10.0.0.1", 9012, now.Add(17*time.Second)))
}

func TestWrongKnockResets(t *testing.T) {
	tr := testTracker()
	now := time.Now()

	// Skip 5678: state destroyed, and the later 5678 does not restart
	// anything because it is not the first sequence port.
	assert.False(t, tr.RegisterKnock("10.0.0.1", 1234, now))
	assert.False(t, tr.RegisterKnock("10.0.0.1", 9012, now.Add(time.Second)))
	assert.False(t, tr.Tracked("10.0.0.1"))
	assert.False(t, tr.RegisterKnock("10.0.0.1", 5678, now.Add(2*time.Second)))
	assert.False(t, tr.Tracked("10.0.0.1"))
}

func TestWrongKnockOnFirstPortRearms(t *testing.T) {
	tr := testTracker()
	now := time.Now()

	assert.False(t, tr.RegisterKnock("10.0.0.1", 1234, now))
	assert.False(t, tr.RegisterKnock("10.0.0.1", 5678, now.Add(time.Second)))
	// 1234 is wrong here (5678 already consumed) but re-arms immediately.
	assert.False(t, tr.RegisterKnock("10.0.0.1", 1234, now.Add(2*time.Second)))
	assert.True(t, tr.Tracked("10.0.0.1"))

	assert.False(t, tr.RegisterKnock("10.0.0.1", 5678, now.Add(3*time.Second)))
	assert.True(t, tr.RegisterKnock("10.0.0.1", 9012, now.Add(4*time.Second)))
}

func TestDuplicateKnockResets(t *testing.T) {
	tr := testTracker()
	now := time.Now()

	assert.False(t, tr.RegisterKnock("10.0.0.1", 1234, now))
	assert.False(t, tr.RegisterKnock("10.0.0.1", 5678, now.Add(time.Second)))
	// Repeating 5678 is a wrong knock against the new expected port.
	assert.False(t, tr.RegisterKnock("10.0.0.1", 5678, now.Add(2*time.Second)))
	assert.False(t, tr.Tracked("10.0.0.1"))
}

func TestRearmUsesFreshWindow(t *testing.T) {
	tr := testTracker()
	now := time.Now()

	assert.False(t, tr.RegisterKnock("10.0.0.1", 1234, now))
	// Wrong knock at t+8s on the first port re-arms with windowStart at
	// t+8s, so completing by t+17s is still inside the fresh window.
	assert.False(t, tr.RegisterKnock("10.0.0.1", 1234, now.Add(8*time.Second)))
	assert.False(t, tr.RegisterKnock("10.0.0.1", 5678, now.Add(16*time.Second)))
	assert.True(t, tr.RegisterKnock("10.0.0.1", 9012, now.Add(17*time.Second)))
}

func TestAddressesAreIndependent(t *testing.T) {
	tr := testTracker()
	now := time.Now()

	// B's noise on the same ports interleaves with A's clean run.
	assert.False(t, tr.RegisterKnock("10.0.0.1", 1234, now))
	assert.False(t, tr.RegisterKnock("10.0.0.2", 9012, now))
	assert.False(t, tr.RegisterKnock("10.0.0.1", 5678, now.Add(time.Second)))
	assert.False(t, tr.RegisterKnock("10.0.0.2", 5678, now.Add(time.Second)))
	assert.True(t, tr.RegisterKnock("10.0.0.1", 9012, now.Add(2*time.Second)))
	assert.False(t, tr.Tracked("10.0.0.2"))
}

func TestSinglePortSequence(t *testing.T) {
	tr := New([]uint16{4242}, 10*time.Second)
	now := time.Now()

	assert.False(t, tr.RegisterKnock("10.0.0.1", 80, now))
	assert.True(t, tr.RegisterKnock("10.0.0.1", 4242, now))
	assert.False(t, tr.Tracked("10.0.0.1"))
	// Each knock on the single port completes on its own.
	assert.True(t, tr.RegisterKnock("10.0.0.1", 4242, now.Add(time.Second)))
}

func TestConcurrentKnocksSingleCompletion(t *testing.T) {
	tr := testTracker()
	now := time.Now()

	// Many addresses complete the sequence concurrently; every address
	// must see exactly one completion.
	var wg sync.WaitGroup
	completions := make([]int, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr := fmt.Sprintf("10.1.%d.%d", i/256, i%256)
			for step, port := range testSequence {
				if tr.RegisterKnock(addr, port, now.Add(time.Duration(step)*time.Second)) {
					completions[i]++
				}
			}
		}(i)
	}
	wg.Wait()

	for i, n := range completions {
		assert.Equalf(t, 1, n, "address %d completed %d times", i, n)
	}
}

func TestSequenceIsCopied(t *testing.T) {
	seq := []uint16{1, 2, 3}
	tr := New(seq, time.Second)
	seq[0] = 99
	assert.Equal(t, []uint16{1, 2, 3}, tr.Sequence())
}
