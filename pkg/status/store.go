// Package status maintains the bounded, queryable history of command
// status projections. The store holds the persisted projection for
// completed and in-flight commands separately from the live activity state;
// only this materialised history is bounded, never the live store.
package status

import (
	"sort"
	"strings"
	"sync"

	"github.com/sagaflow/sagaflow/pkg/activity"
)

// DefaultCapacity is the default number of command statuses retained.
const DefaultCapacity = 300

// PagedResult is one page of a query along with the filtered total, for
// client-side page-count computation. PageIndex is 0-indexed.
type PagedResult[T any] struct {
	Page      []T
	PageIndex int
	PageSize  int
	Total     int
}

// Store is a bounded in-memory command status history. On every upsert over
// capacity the oldest entries by start time are evicted until the store is
// back at capacity. Eviction never blocks a concurrent read; an evicted
// command simply disappears from subsequent pages.
type Store struct {
	capacity int
	onEvict  func(n int)

	mu       sync.RWMutex
	statuses map[activity.CommandID]*activity.CommandStatus
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithCapacity overrides the retention capacity. Values below one fall back
// to the default.
func WithCapacity(capacity int) StoreOption {
	return func(s *Store) {
		if capacity > 0 {
			s.capacity = capacity
		}
	}
}

// WithEvictionObserver registers a callback invoked with the number of
// entries dropped by each eviction pass.
func WithEvictionObserver(fn func(n int)) StoreOption {
	return func(s *Store) { s.onEvict = fn }
}

// NewStore creates a status store with the default capacity of 300 entries.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		capacity: DefaultCapacity,
		statuses: make(map[activity.CommandID]*activity.CommandStatus),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert stores the projection for its command ID, then evicts the oldest
// entries when over capacity. Implements activity.StatusSink.
func (s *Store) Upsert(cs *activity.CommandStatus) {
	s.mu.Lock()
	s.statuses[cs.CommandID] = cs
	evicted := s.evictLocked()
	s.mu.Unlock()

	if evicted > 0 && s.onEvict != nil {
		s.onEvict(evicted)
	}
}

// Previous returns the last stored projection for a command. Implements
// activity.StatusSink.
func (s *Store) Previous(id activity.CommandID) (*activity.CommandStatus, bool) {
	return s.Get(id)
}

// Get returns the stored projection for a command. A missing entry, whether
// evicted or never tracked, reports ok=false rather than an error.
func (s *Store) Get(id activity.CommandID) (*activity.CommandStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.statuses[id]
	return cs, ok
}

// Len returns the number of retained statuses.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.statuses)
}

// GetCommands returns one page of retained statuses matching the keyword,
// most recently started first. The keyword is a case-insensitive substring
// match across display name, command name and type, initiating user,
// property values, last error and stack trace; a blank keyword matches
// everything.
func (s *Store) GetCommands(pageIndex, pageSize int, keyword string) PagedResult[*activity.CommandStatus] {
	s.mu.RLock()
	matched := make([]*activity.CommandStatus, 0, len(s.statuses))
	for _, cs := range s.statuses {
		if matchesKeyword(cs, keyword) {
			matched = append(matched, cs)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].StartTime.After(matched[j].StartTime)
	})

	result := PagedResult[*activity.CommandStatus]{
		PageIndex: pageIndex,
		PageSize:  pageSize,
		Total:     len(matched),
	}
	if pageIndex < 0 || pageSize <= 0 {
		return result
	}
	start := pageIndex * pageSize
	if start >= len(matched) {
		return result
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	result.Page = matched[start:end]
	return result
}

func matchesKeyword(cs *activity.CommandStatus, keyword string) bool {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return true
	}
	if containsFold(cs.Name, keyword) ||
		containsFold(cs.CommandName, keyword) ||
		containsFold(cs.CommandType, keyword) ||
		containsFold(cs.InitiatingUser, keyword) ||
		containsFold(cs.LastError, keyword) ||
		containsFold(cs.StackTrace, keyword) {
		return true
	}
	for _, v := range cs.Properties {
		if containsFold(v, keyword) {
			return true
		}
	}
	return false
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// evictLocked drops the oldest entries by start time until the store is at
// capacity. Called with the write lock held.
func (s *Store) evictLocked() int {
	over := len(s.statuses) - s.capacity
	if over <= 0 {
		return 0
	}

	oldest := make([]*activity.CommandStatus, 0, len(s.statuses))
	for _, cs := range s.statuses {
		oldest = append(oldest, cs)
	}
	sort.Slice(oldest, func(i, j int) bool {
		return oldest[i].StartTime.Before(oldest[j].StartTime)
	})

	for _, cs := range oldest[:over] {
		delete(s.statuses, cs.CommandID)
	}
	return over
}
