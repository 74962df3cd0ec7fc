package session

import "sync"

// Source delivers user-interaction signals (pointer, key, touch, scroll in a
// UI; prompts or commands in a terminal). Implementations call the subscribed
// function once per signal. Subscribe returns a cancel function that stops
// delivery.
//
// The session manager only ever needs "something happened", never what, so
// the interface carries no payload.
type Source interface {
	Subscribe(fn func()) (cancel func())
}

// FuncSource is a Source driven by explicit calls to Signal. It backs
// terminal clients and tests, where there is no ambient event stream to hook.
type FuncSource struct {
	mu   sync.Mutex
	next int
	subs map[int]func()
}

// NewFuncSource creates an empty FuncSource.
func NewFuncSource() *FuncSource {
	return &FuncSource{subs: make(map[int]func())}
}

// Subscribe registers fn for future signals.
func (s *FuncSource) Subscribe(fn func()) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.next
	s.next++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Signal reports one user interaction to all subscribers.
func (s *FuncSource) Signal() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
