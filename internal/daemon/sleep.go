// Package daemon implements the coordination fabric that fuses a
// configurable timer, filesystem change notifications, and operator
// commands into a single serialized sync stream: a reconfigurable sleep,
// a coalescing edge trigger, a filesystem watcher, and a command-socket
// listener, all feeding one sync actor that is the sole consumer of sync
// requests.
package daemon

import (
	"context"
	"sync"
	"time"
)

// sleepState is the value shared between a Sleeper and its Setter: the
// current target duration, plus a channel that is closed and replaced
// every time the target changes, waking any in-flight Sleep call. This is
// the same close-and-replace broadcast idiom used elsewhere in the pack
// for "wake every waiter on this kind of change" (a condition-variable
// substitute built from channels).
type sleepState struct {
	mu      sync.Mutex
	target  time.Duration
	changed chan struct{}
}

// Sleeper is the read side of a ConfigurableSleep: it owns Sleep, which
// blocks for the currently configured duration, re-evaluating if the
// duration changes mid-wait.
type Sleeper struct {
	state *sleepState
}

// Setter is the write side of a ConfigurableSleep: Set replaces the target
// duration and wakes any sleeper currently waiting.
type Setter struct {
	state *sleepState
}

// NewConfigurableSleep returns a (Sleeper, Setter) pair sharing a target
// duration, initialized to initial.
func NewConfigurableSleep(initial time.Duration) (*Sleeper, *Setter) {
	state := &sleepState{
		target:  initial,
		changed: make(chan struct{}),
	}
	return &Sleeper{state: state}, &Setter{state: state}
}

// Set replaces the target duration, waking any sleeper currently in
// Sleep. Shrinking the target below the already-elapsed time of an
// in-flight Sleep call makes it return immediately; enlarging it extends
// the remaining wait.
func (s *Setter) Set(d time.Duration) {
	s.state.mu.Lock()
	s.state.target = d
	old := s.state.changed
	s.state.changed = make(chan struct{})
	s.state.mu.Unlock()
	close(old)
}

// Sleep blocks until the current target duration has elapsed (measured
// from the call to Sleep, not from any prior Set), re-reading the target
// every time it changes mid-wait so a later Set is honored without
// restarting the elapsed-time clock. Returns ctx.Err() if ctx is
// cancelled first.
func (s *Sleeper) Sleep(ctx context.Context) error {
	start := time.Now()

	for {
		s.state.mu.Lock()
		target := s.state.target
		changed := s.state.changed
		s.state.mu.Unlock()

		elapsed := time.Since(start)
		if elapsed >= target {
			return nil
		}

		timer := time.NewTimer(target - elapsed)
		select {
		case <-timer.C:
			return nil
		case <-changed:
			timer.Stop()
			continue // re-evaluate against the new target; elapsed time is credited
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
