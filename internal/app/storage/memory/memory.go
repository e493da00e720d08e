// Package memory provides the in-memory SplitStore used by tests and
// single-process deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/R3E-Network/splitpay/internal/app/domain/split"
	"github.com/R3E-Network/splitpay/internal/app/storage"
)

// Store keeps split records in a map guarded by a single RWMutex. MutateSplit
// holds the write lock for the whole read-modify-write, which gives the
// atomicity SplitStore requires.
type Store struct {
	mu     sync.RWMutex
	splits map[string]split.Split
}

var _ storage.SplitStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{splits: make(map[string]split.Split)}
}

func (s *Store) CreateSplit(ctx context.Context, rec split.Split) (split.Split, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.splits[rec.ID]; exists {
		return split.Split{}, storage.ErrDuplicateID
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	s.splits[rec.ID] = rec.Clone()
	return rec, nil
}

func (s *Store) GetSplit(ctx context.Context, id string) (split.Split, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.splits[id]
	if !ok {
		return split.Split{}, storage.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *Store) MutateSplit(ctx context.Context, id string, fn func(*split.Split) error) (split.Split, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.splits[id]
	if !ok {
		return split.Split{}, storage.ErrNotFound
	}

	working := rec.Clone()
	if err := fn(&working); err != nil {
		return split.Split{}, err
	}
	working.UpdatedAt = time.Now().UTC()
	s.splits[id] = working.Clone()
	return working, nil
}

func (s *Store) ListSplits(ctx context.Context, initiator string, limit int) ([]split.Split, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []split.Split
	for _, rec := range s.splits {
		if rec.Initiator == initiator {
			result = append(result, rec.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListActiveSplits(ctx context.Context) ([]split.Split, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []split.Split
	for _, rec := range s.splits {
		if rec.Status == split.StatusActive {
			result = append(result, rec.Clone())
		}
	}
	return result, nil
}
