package split

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

// IDGenerator allocates split identifiers. Implementations must never return
// the same id twice for the lifetime of the process set sharing the store.
type IDGenerator interface {
	// Next produces a fresh identifier for a split created by creator at the
	// given time. The underlying sequence advances on every call regardless
	// of whether the caller ends up using the id.
	Next(creator string, now time.Time) string
}

// SeqIDGenerator derives ids from an atomic counter, the creator identity and
// the creation time, hashed to a fixed width. The counter makes ids unique
// within a process even for identical creator/time pairs; the hash keeps them
// opaque and uniformly sized.
type SeqIDGenerator struct {
	counter atomic.Uint64
}

var _ IDGenerator = (*SeqIDGenerator)(nil)

// NewSeqIDGenerator creates a generator starting from zero.
func NewSeqIDGenerator() *SeqIDGenerator {
	return &SeqIDGenerator{}
}

func (g *SeqIDGenerator) Next(creator string, now time.Time) string {
	seq := g.counter.Add(1)
	seed := fmt.Sprintf("%d-%s-%d", seq, creator, now.UTC().UnixNano())
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:16])
}
