package pipeline

import (
	"sync"

	"github.com/edgesight/object-detection-service/models"
)

// Store holds the single most-recently-published DetectionBatch. Publishes
// replace the batch wholesale under the write lock, so a concurrent Snapshot
// observes either the old or the new batch in full, never a mix.
type Store struct {
	mu    sync.RWMutex
	batch *models.DetectionBatch
}

func NewStore() *Store {
	return &Store{}
}

// Publish atomically replaces the stored batch. The batch must not be
// mutated by the caller afterwards.
func (s *Store) Publish(batch models.DetectionBatch) {
	s.mu.Lock()
	s.batch = &batch
	s.mu.Unlock()
}

// Snapshot returns the most recently published batch. The second return is
// false before the first successful inference; a zero-detection batch is a
// real result, not this empty state.
func (s *Store) Snapshot() (models.DetectionBatch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.batch == nil {
		return models.DetectionBatch{}, false
	}
	return *s.batch, true
}
