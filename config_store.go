package rulekit

import (
	"fmt"
	"maps"
	"sync"
)

// ConfigStore is the key-value lookup behind ConfigDependency slots.
type ConfigStore interface {
	Lookup(key string) (any, bool)
}

// Feeder produces flat configuration keys. Implementations live in the feeders package.
type Feeder interface {
	Values() (map[string]any, error)
}

// MapConfigStore is a ConfigStore backed by a map. It may be refreshed from another
// goroutine (a file watcher for instance) while the frame loop reads it.
type MapConfigStore struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewMapConfigStore creates a store holding a copy of values.
func NewMapConfigStore(values map[string]any) *MapConfigStore {
	s := &MapConfigStore{values: make(map[string]any, len(values))}
	maps.Copy(s.values, values)
	return s
}

// Lookup implements ConfigStore.
func (s *MapConfigStore) Lookup(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores one value.
func (s *MapConfigStore) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Merge overlays values on the store.
func (s *MapConfigStore) Merge(values map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.Copy(s.values, values)
}

// Snapshot returns a copy of every key.
func (s *MapConfigStore) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

// FeedConfigStore merges the values of each feeder in order, later feeders winning.
func FeedConfigStore(store *MapConfigStore, feeders ...Feeder) error {
	merged := make(map[string]any)
	for i, f := range feeders {
		values, err := f.Values()
		if err != nil {
			return fmt.Errorf("config feeder %d (%T): %w", i, f, err)
		}
		maps.Copy(merged, values)
	}
	store.Merge(merged)
	return nil
}
