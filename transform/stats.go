package transform

import (
	"sync"
	"time"
)

// Stat summarizes every run of one named transformer.
type Stat struct {
	Name     string
	Runs     int
	Changes  int
	Failures int
	Duration time.Duration
}

// Stats collects per-transformer counters for a pipeline.
type Stats struct {
	mu    sync.Mutex
	byKey map[string]*Stat
	order []string
}

// NewStats creates an empty collector.
func NewStats() *Stats {
	return &Stats{byKey: make(map[string]*Stat)}
}

func (s *Stats) record(name string, changes int, d time.Duration, err error) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.byKey[name]
	if !ok {
		st = &Stat{Name: name}
		s.byKey[name] = st
		s.order = append(s.order, name)
	}
	st.Runs++
	st.Changes += changes
	st.Duration += d
	if err != nil {
		st.Failures++
	}
}

// Snapshot returns a copy of the counters in order of first run.
func (s *Stats) Snapshot() []Stat {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Stat, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, *s.byKey[name])
	}
	return out
}

// Get returns the counters of the named transformer.
func (s *Stats) Get(name string) (Stat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.byKey[name]
	if !ok {
		return Stat{}, false
	}
	return *st, true
}

// Reset clears all counters.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey = make(map[string]*Stat)
	s.order = nil
}
