package controller

import "sync"

// symbolLocks serializes ledger writes per symbol.
type symbolLocks struct {
	mu    sync.Mutex
	locks map[string]*symbolLock
}

type symbolLock struct {
	mu   sync.Mutex
	refs int
}

func newSymbolLocks() *symbolLocks {
	return &symbolLocks{locks: make(map[string]*symbolLock)}
}

// Lock blocks until symbol is free and returns its release func.
func (s *symbolLocks) Lock(symbol string) func() {
	s.mu.Lock()
	l, ok := s.locks[symbol]
	if !ok {
		l = &symbolLock{}
		s.locks[symbol] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, symbol)
		}
		s.mu.Unlock()
	}
}
