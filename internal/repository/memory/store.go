package memory

import (
	"sort"
	"sync"

	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/types"
)

// FilterFunc reports whether an item belongs in a listing.
type FilterFunc[T any] func(item T) bool

// LessFunc orders a listing.
type LessFunc[T any] func(a, b T) bool

// Store is a generic map-backed store. Items are copied on the way in and
// out so callers never share memory with the store.
type Store[T any] struct {
	mu     sync.RWMutex
	items  map[string]T
	clone  func(T) T
	entity string
}

func NewStore[T any](entity string, clone func(T) T) *Store[T] {
	return &Store[T]{
		items:  make(map[string]T),
		clone:  clone,
		entity: entity,
	}
}

func (s *Store[T]) Create(id string, item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[id]; exists {
		return ierr.NewError("item already exists").
			WithHintf("%s %s already exists", s.entity, id).
			Mark(ierr.ErrAlreadyExists)
	}
	s.items[id] = s.clone(item)
	return nil
}

// Get returns the item when it exists and belongs to the company.
func (s *Store[T]) Get(id string, visible FilterFunc[T]) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, exists := s.items[id]
	if !exists || (visible != nil && !visible(item)) {
		var zero T
		return zero, s.notFound(id)
	}
	return s.clone(item), nil
}

// Put replaces an existing item after check approves the stored version.
func (s *Store[T]) Put(id string, item T, check func(stored T) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.items[id]
	if !exists {
		return s.notFound(id)
	}
	if check != nil {
		if err := check(stored); err != nil {
			return err
		}
	}
	s.items[id] = s.clone(item)
	return nil
}

func (s *Store[T]) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[id]; !exists {
		return s.notFound(id)
	}
	delete(s.items, id)
	return nil
}

// List returns matching items sorted by less and paged by filter. A nil
// filter returns every match.
func (s *Store[T]) List(match FilterFunc[T], less LessFunc[T], filter *types.QueryFilter) []T {
	s.mu.RLock()
	result := make([]T, 0)
	for _, item := range s.items {
		if match == nil || match(item) {
			result = append(result, s.clone(item))
		}
	}
	s.mu.RUnlock()

	if less != nil {
		sort.Slice(result, func(i, j int) bool { return less(result[i], result[j]) })
	}
	if filter == nil {
		return result
	}

	start := filter.GetOffset()
	if start >= len(result) {
		return []T{}
	}
	end := start + filter.GetLimit()
	if end > len(result) {
		end = len(result)
	}
	return result[start:end]
}

// Clear removes all items from the store
func (s *Store[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]T)
}

func (s *Store[T]) notFound(id string) error {
	return ierr.NewError("item not found").
		WithHintf("%s %s not found", s.entity, id).
		WithReportableDetails(map[string]any{"id": id}).
		Mark(ierr.ErrNotFound)
}

// versionCheck rejects a write whose expected version is stale.
func versionCheck(entity, id string, expected, stored int) error {
	if expected == stored {
		return nil
	}
	return ierr.NewError(entity + " version conflict").
		WithHintf("%s %s was modified concurrently, retry the operation", entity, id).
		WithReportableDetails(map[string]any{
			"id":               id,
			"expected_version": expected,
			"current_version":  stored,
		}).
		Mark(ierr.ErrVersionConflict)
}
