package daemon

import "sync"

// rootsState is a single-latest-value channel (a "watch channel" in the
// style of the rest of this package's coordination primitives): Set
// replaces the current root list and wakes anyone blocked on Changed.
type rootsState struct {
	mu      sync.Mutex
	roots   []string
	changed chan struct{}
}

// RootsPublisher is the write side of the save-roots watch channel: the
// daemon's control plane calls Set whenever config reload changes the
// configured save templates.
type RootsPublisher struct {
	state *rootsState
}

// RootsSubscriber is the read side: the filesystem-watch task reads the
// current roots and is woken via Changed whenever they change.
type RootsSubscriber struct {
	state *rootsState
}

// NewRootsWatch returns a (RootsPublisher, RootsSubscriber) pair sharing
// the initial root list.
func NewRootsWatch(initial []string) (*RootsPublisher, *RootsSubscriber) {
	state := &rootsState{roots: initial, changed: make(chan struct{})}
	return &RootsPublisher{state: state}, &RootsSubscriber{state: state}
}

// Set replaces the current root list and wakes any subscriber blocked on
// the previous Changed channel.
func (p *RootsPublisher) Set(roots []string) {
	p.state.mu.Lock()
	p.state.roots = roots
	old := p.state.changed
	p.state.changed = make(chan struct{})
	p.state.mu.Unlock()
	close(old)
}

// Get returns the current root list and a channel that closes the next
// time it changes.
func (s *RootsSubscriber) Get() ([]string, <-chan struct{}) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	return s.state.roots, s.state.changed
}
