package notify

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// MemorySink keeps notifications in memory. FailWrites makes the next n
// writes fail, for tests.
type MemorySink struct {
	mu            sync.Mutex
	notifications []Notification
	keys          map[string]bool
	failWrites    int
	writes        int
}

func NewMemorySink() *MemorySink {
	return &MemorySink{keys: make(map[string]bool)}
}

func (s *MemorySink) Write(_ context.Context, batch []Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writes++
	if s.failWrites > 0 {
		s.failWrites--
		return fmt.Errorf("sink unavailable")
	}
	for _, n := range batch {
		k := dedupeKey(n.LearnerID, n.TrainingID, n.ContentVersion)
		if s.keys[k] {
			continue
		}
		s.keys[k] = true
		s.notifications = append(s.notifications, n)
	}
	return nil
}

// ForLearner returns the learner's newest notifications first.
func (s *MemorySink) ForLearner(_ context.Context, learnerID string, limit int) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Notification
	for _, n := range s.notifications {
		if n.LearnerID == learnerID {
			out = append(out, n)
		}
	}
	slices.SortStableFunc(out, func(a, b Notification) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FailWrites makes the next n writes fail.
func (s *MemorySink) FailWrites(n int) {
	s.mu.Lock()
	s.failWrites = n
	s.mu.Unlock()
}

// Notifications returns every stored notification in write order.
func (s *MemorySink) Notifications() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification{}, s.notifications...)
}

// Writes returns how many Write calls were made.
func (s *MemorySink) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// MemoryDeduper is an in-process Deduper without expiry.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{seen: make(map[string]bool)}
}

func (d *MemoryDeduper) Claim(_ context.Context, learnerID, trainingID string, version int) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := dedupeKey(learnerID, trainingID, version)
	if d.seen[k] {
		return false, nil
	}
	d.seen[k] = true
	return true, nil
}

func (d *MemoryDeduper) Release(_ context.Context, learnerID, trainingID string, version int) error {
	d.mu.Lock()
	delete(d.seen, dedupeKey(learnerID, trainingID, version))
	d.mu.Unlock()
	return nil
}
