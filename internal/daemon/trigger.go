package daemon

import (
	"context"
	"sync"
)

// triggerState is the value shared between a TriggerSender and a
// TriggerReceiver: a boolean "fired" flag plus a channel closed exactly
// once per fired transition, so any number of Trigger calls before the
// next WaitAndReset collapse into a single wakeup.
type triggerState struct {
	mu    sync.Mutex
	fired bool
	ready chan struct{}
}

// TriggerSender is the write side of an EventTrigger.
type TriggerSender struct {
	state *triggerState
}

// TriggerReceiver is the read side of an EventTrigger.
type TriggerReceiver struct {
	state *triggerState
}

// NewEventTrigger returns a (TriggerSender, TriggerReceiver) pair: a
// coalescing edge trigger. Multiple Trigger calls before one
// WaitAndReset collapse to a single wakeup.
func NewEventTrigger() (*TriggerSender, *TriggerReceiver) {
	state := &triggerState{ready: make(chan struct{})}
	return &TriggerSender{state: state}, &TriggerReceiver{state: state}
}

// Trigger marks the event as fired. Idempotent: firing repeatedly before
// the next WaitAndReset has no additional effect.
func (s *TriggerSender) Trigger() {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	if s.state.fired {
		return
	}
	s.state.fired = true
	close(s.state.ready)
}

// WaitAndReset blocks until the event has fired, then atomically resets
// it to unfired before returning. Returns ctx.Err() if ctx is cancelled
// first, leaving the fired state untouched.
func (r *TriggerReceiver) WaitAndReset(ctx context.Context) error {
	r.state.mu.Lock()
	ready := r.state.ready
	r.state.mu.Unlock()

	select {
	case <-ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.state.mu.Lock()
	r.state.fired = false
	r.state.ready = make(chan struct{})
	r.state.mu.Unlock()

	return nil
}
