package session

import (
	"cmp"
	"slices"
	"strings"
	"sync"
)

// Store keeps the most recent snapshot for readers outside the daemon
// goroutine.
type Store struct {
	mu     sync.RWMutex
	latest Snapshot
	byPID  map[uint32]int
	flips  int
}

func NewStore() *Store {
	return &Store{
		latest: Snapshot{Health: Healthy},
		byPID:  make(map[uint32]int),
	}
}

// Apply records an event's snapshot.
func (s *Store) Apply(ev Event) {
	snap := ev.Snapshot.Clone()
	idx := make(map[uint32]int, len(snap.Sessions))
	for i, v := range snap.Sessions {
		idx[v.PID] = i
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = snap
	s.byPID = idx
	if ev.Type == EventFlip {
		s.flips++
	}
}

// Latest returns a copy of the most recent snapshot.
func (s *Store) Latest() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest.Clone()
}

func (s *Store) Get(pid uint32) (View, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byPID[pid]
	if !ok {
		return View{}, false
	}
	return s.latest.Sessions[i], true
}

// GetAll returns every session of the latest snapshot ordered by name.
func (s *Store) GetAll() []View {
	s.mu.RLock()
	views := slices.Clone(s.latest.Sessions)
	s.mu.RUnlock()

	slices.SortStableFunc(views, func(a, b View) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.PID, b.PID)
	})
	return views
}

// Names returns the distinct session names of the latest snapshot, sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.latest.Sessions))
	for _, v := range s.latest.Sessions {
		names = append(names, v.Name)
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// Flips returns how many status flips have been applied.
func (s *Store) Flips() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flips
}
