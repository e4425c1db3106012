package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// ManualEntry is a job registered with a Manual scheduler
type ManualEntry struct {
	ID       EntryID
	Name     string
	Interval time.Duration
	job      func()
}

// Manual is a Scheduler that only runs jobs when told to. Tests use it to drive
// task loops deterministically.
type Manual struct {
	mu      sync.Mutex
	nextID  EntryID
	entries map[EntryID]ManualEntry
}

// NewManual returns an empty manual scheduler
func NewManual() *Manual {
	return &Manual{entries: make(map[EntryID]ManualEntry)}
}

// Every implements Scheduler
func (m *Manual) Every(interval time.Duration, name string, job func()) (EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive, got %s", interval)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.entries[m.nextID] = ManualEntry{ID: m.nextID, Name: name, Interval: interval, job: job}
	return m.nextID, nil
}

// Remove implements Scheduler
func (m *Manual) Remove(id EntryID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
}

// Entries returns the registered jobs ordered by id
func (m *Manual) Entries() []ManualEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ManualEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Fire runs every registered job whose name is name, in id order, and reports how
// many ran
func (m *Manual) Fire(name string) int {
	ran := 0
	for _, e := range m.Entries() {
		if e.Name == name {
			e.job()
			ran++
		}
	}
	return ran
}
