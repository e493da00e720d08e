// Package storage defines persistence contracts for the split ledger.
package storage

import (
	"context"
	"errors"

	"github.com/R3E-Network/splitpay/internal/app/domain/split"
)

// ErrNotFound marks a lookup for a split id that was never allocated. It is
// distinct from any "exists but zero value" condition so callers never mask
// the difference.
var ErrNotFound = errors.New("split not found")

// ErrDuplicateID marks an attempt to store a record under an id that is
// already allocated.
var ErrDuplicateID = errors.New("split id already exists")

// SplitStore persists split records. Implementations must guarantee that
// MutateSplit applies its callback as one atomic read-modify-write with
// respect to all other operations on the same split id.
type SplitStore interface {
	// CreateSplit stores a new record. Storing a duplicate id returns
	// ErrDuplicateID and leaves the existing record intact.
	CreateSplit(ctx context.Context, s split.Split) (split.Split, error)

	// GetSplit returns the record or ErrNotFound.
	GetSplit(ctx context.Context, id string) (split.Split, error)

	// MutateSplit loads the record, applies fn, and persists the result
	// atomically. If fn returns an error nothing is persisted and the error
	// is returned unchanged. Returns ErrNotFound for unknown ids.
	MutateSplit(ctx context.Context, id string, fn func(*split.Split) error) (split.Split, error)

	// ListSplits returns up to limit splits created by the initiator.
	ListSplits(ctx context.Context, initiator string, limit int) ([]split.Split, error)

	// ListActiveSplits returns every split currently in the active state.
	ListActiveSplits(ctx context.Context) ([]split.Split, error)
}
