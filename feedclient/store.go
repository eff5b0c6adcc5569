package feedclient

import (
	"slices"
	"sync"

	"bitbucket.org/mmdatafocus/settlement_backend/models"
)

// Store holds the rows a client has fetched, keyed by id, newest first.
// Rows are only ever replaced with server objects, never merged field by field.
type Store[T models.FeedRow] struct {
	mu   sync.RWMutex
	rows []T
	ids  map[int]int
}

func NewStore[T models.FeedRow]() *Store[T] {
	return &Store[T]{ids: map[int]int{}}
}

func newestFirst[T models.FeedRow](a, b T) int {
	if c := b.FeedCreatedAt().Compare(a.FeedCreatedAt()); c != 0 {
		return c
	}
	return b.FeedID() - a.FeedID()
}

func (s *Store[T]) reindex() {
	slices.SortStableFunc(s.rows, newestFirst[T])
	s.ids = make(map[int]int, len(s.rows))
	for i, r := range s.rows {
		s.ids[r.FeedID()] = i
	}
}

// Replace installs the result of a full fetch.
func (s *Store[T]) Replace(rows []T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = slices.Clone(rows)
	s.reindex()
}

// Merge adds the rows of a since-fetch and returns how many were new.
// Ids already held are skipped.
func (s *Store[T]) Merge(rows []T) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, r := range rows {
		if _, ok := s.ids[r.FeedID()]; ok {
			continue
		}
		s.ids[r.FeedID()] = -1
		s.rows = append(s.rows, r)
		added++
	}
	if added > 0 {
		s.reindex()
	}
	return added
}

// Apply swaps in the server's copy of one row, such as a verify response.
// It reports false when the row is not held.
func (s *Store[T]) Apply(row T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.ids[row.FeedID()]
	if !ok {
		return false
	}
	s.rows[i] = row
	return true
}

// Cursor is the newest (created_at, id) held, or nil when empty.
func (s *Store[T]) Cursor() *models.FeedCursor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.CursorOf(s.rows)
}

func (s *Store[T]) Rows() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.rows)
}

func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func (s *Store[T]) Get(id int) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.ids[id]
	if !ok {
		var zero T
		return zero, false
	}
	return s.rows[i], true
}
