// Package split defines the escrow split domain model.
//
// A split is a shared expense created by an initiator and funded by a fixed
// number of participants, each contributing an identical share in a single
// asset. Once the target amount is collected the pooled funds release to the
// initiator; a cancelled or expired split lets contributors recover their
// share instead.
package split

import (
	"regexp"
	"time"
)

// Status is the lifecycle state of a split.
type Status string

const (
	// StatusActive accepts contributions until funded, cancelled or expired.
	StatusActive Status = "active"
	// StatusClosed means the split was fully funded and paid out. Terminal.
	StatusClosed Status = "closed"
	// StatusCancelled means the initiator aborted the split. Terminal.
	StatusCancelled Status = "cancelled"
)

// NativeAsset is the asset reference denoting the chain's native currency
// (GAS). Any other well-formed reference is a NEP-17 contract hash.
const NativeAsset = ""

var tokenHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ValidAssetRef reports whether ref is the native sentinel or a well-formed
// NEP-17 contract hash.
func ValidAssetRef(ref string) bool {
	return ref == NativeAsset || tokenHashPattern.MatchString(ref)
}

// IsToken reports whether ref denotes a fungible token rather than the
// native currency.
func IsToken(ref string) bool {
	return ref != NativeAsset
}

// Split is one expense-sharing event. Contribution bookkeeping is retained
// after terminal transitions for auditability; records are never deleted.
type Split struct {
	ID                   string
	Initiator            string
	Purpose              string
	Asset                string
	TotalAmount          uint64
	NumParticipants      uint64
	AmountPerParticipant uint64
	Deadline             time.Time
	TotalContributed     uint64
	Contributions        map[string]uint64
	HasContributed       map[string]bool
	Status               Status
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Expired reports whether the contribution window has passed at the given
// time. The deadline is a data value, not a state transition: an active split
// past its deadline simply rejects contributions and permits withdrawals.
func (s Split) Expired(now time.Time) bool {
	return now.After(s.Deadline)
}

// Clone returns a deep copy so callers can hand records across goroutines
// without sharing the contribution maps.
func (s Split) Clone() Split {
	out := s
	out.Contributions = make(map[string]uint64, len(s.Contributions))
	for k, v := range s.Contributions {
		out.Contributions[k] = v
	}
	out.HasContributed = make(map[string]bool, len(s.HasContributed))
	for k, v := range s.HasContributed {
		out.HasContributed[k] = v
	}
	return out
}

// Details is the query projection returned by the read operations.
type Details struct {
	ID                   string
	Initiator            string
	Purpose              string
	Asset                string
	TotalAmount          uint64
	NumParticipants      uint64
	AmountPerParticipant uint64
	Deadline             time.Time
	TotalContributed     uint64
	IsActive             bool
	IsCancelled          bool
}

// DetailsOf projects a split record into its query form.
func DetailsOf(s Split) Details {
	return Details{
		ID:                   s.ID,
		Initiator:            s.Initiator,
		Purpose:              s.Purpose,
		Asset:                s.Asset,
		TotalAmount:          s.TotalAmount,
		NumParticipants:      s.NumParticipants,
		AmountPerParticipant: s.AmountPerParticipant,
		Deadline:             s.Deadline,
		TotalContributed:     s.TotalContributed,
		IsActive:             s.Status == StatusActive,
		IsCancelled:          s.Status == StatusCancelled,
	}
}
