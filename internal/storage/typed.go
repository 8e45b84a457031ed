package storage

import (
	"encoding/json"
	"fmt"
)

// TypedStore stores values of one Go type under a single kind.
// It satisfies vlight.MemoryStore and memory.EntityStore.
type TypedStore[T any] struct {
	store *Store
	kind  string
}

// NewTypedStore binds T to kind on store.
func NewTypedStore[T any](store *Store, kind string) *TypedStore[T] {
	return &TypedStore[T]{store: store, kind: kind}
}

func (s *TypedStore[T]) decode(id string, payload []byte) (T, error) {
	var value T
	if err := json.Unmarshal(payload, &value); err != nil {
		return value, fmt.Errorf("corrupt %s record %s: %w", s.kind, id, err)
	}
	return value, nil
}

// Get returns the value for id and its version. A missing value is the
// zero T with version 0.
func (s *TypedStore[T]) Get(id string) (T, int64, error) {
	var zero T
	rec, err := s.store.Load(s.kind, id)
	if err != nil || rec.Version == 0 {
		return zero, 0, err
	}

	value, err := s.decode(id, rec.Payload)
	if err != nil {
		return zero, 0, err
	}
	return value, rec.Version, nil
}

// Set stores value under id.
func (s *TypedStore[T]) Set(id string, value T) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s %s: %w", s.kind, id, err)
	}
	return s.store.Save(s.kind, id, payload)
}

// Delete removes the value for id.
func (s *TypedStore[T]) Delete(id string) error {
	return s.store.Remove(s.kind, id)
}

// GetAll returns every value of the kind with its version, keyed by ID.
func (s *TypedStore[T]) GetAll() (map[string]T, map[string]int64, error) {
	records, err := s.store.LoadKind(s.kind)
	if err != nil {
		return nil, nil, err
	}

	values := make(map[string]T, len(records))
	versions := make(map[string]int64, len(records))
	for id, rec := range records {
		value, err := s.decode(id, rec.Payload)
		if err != nil {
			return nil, nil, err
		}
		values[id] = value
		versions[id] = rec.Version
	}
	return values, versions, nil
}

// Reset removes every value of the kind.
func (s *TypedStore[T]) Reset() (int64, error) {
	return s.store.Reset(s.kind)
}
