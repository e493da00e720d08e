package split

import "context"

// Ledger moves asset value between external accounts and the escrow. It is
// the only collaborator that can fail after validation has passed, so every
// lifecycle operation treats a ledger error as grounds for full rollback.
//
// The asset reference follows the domain convention: split.NativeAsset for
// the native currency, otherwise a NEP-17 contract hash.
type Ledger interface {
	// TransferIn pulls amount of asset from the external account into escrow.
	TransferIn(ctx context.Context, asset, from string, amount uint64) error
	// TransferOut releases amount of asset from escrow to the external account.
	TransferOut(ctx context.Context, asset, to string, amount uint64) error
}
