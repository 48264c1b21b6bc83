package booking

import "sync"

// staffLocks is an arena of per-staff mutexes serializing the write-path
// critical section. Two writers for the same staff member queue behind one
// lock; writers for different staff members never contend. Entries are
// never removed — the arena grows with the active staff set, which is small.
type staffLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newStaffLocks() *staffLocks {
	return &staffLocks{locks: make(map[string]*sync.Mutex)}
}

func (s *staffLocks) forStaff(staffID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[staffID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[staffID] = l
	}
	return l
}
