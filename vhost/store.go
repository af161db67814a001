package vhost

import "sync/atomic"

// Store holds the registry currently in effect. Requests load it once and keep using that registry even
// when a reload swaps in a new one halfway through.
type Store struct {
	cur atomic.Pointer[Registry]
}

// NewStore returns a store serving reg.
func NewStore(reg *Registry) *Store {
	s := &Store{}
	s.cur.Store(reg)

	return s
}

// Load returns the current registry.
func (s *Store) Load() *Registry { return s.cur.Load() }

// Swap installs reg and returns the registry it replaced.
func (s *Store) Swap(reg *Registry) *Registry { return s.cur.Swap(reg) }
