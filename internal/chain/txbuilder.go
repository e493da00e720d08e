package chain

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/rand"
	"strconv"

	"github.com/nspcc-dev/neo-go/pkg/config/netmode"
	"github.com/nspcc-dev/neo-go/pkg/core/transaction"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/wallet"
)

// defaultNetworkFee covers witness verification for a single-signer
// transaction (0.05 GAS).
const defaultNetworkFee = 5_000_000

// validUntilBlockOffset keeps broadcast transactions valid for roughly
// an hour of block production.
const validUntilBlockOffset = 240

// TxBuilder turns a simulated invocation into a signed, broadcastable
// transaction.
type TxBuilder struct {
	client    *Client
	networkID uint32
}

// NewTxBuilder creates a builder for the client's network.
func NewTxBuilder(client *Client, networkID uint32) *TxBuilder {
	return &TxBuilder{client: client, networkID: networkID}
}

// BuildAndSignTx builds a transaction from a HALTed simulation result and
// signs it with the account.
func (b *TxBuilder) BuildAndSignTx(ctx context.Context, sim *InvokeResult, acc *wallet.Account, scope transaction.WitnessScope) (*transaction.Transaction, error) {
	script, err := base64.StdEncoding.DecodeString(sim.Script)
	if err != nil {
		return nil, fmt.Errorf("decode script: %w", err)
	}

	sysFee, err := strconv.ParseInt(sim.GasConsumed, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse gas consumed %q: %w", sim.GasConsumed, err)
	}

	height, err := b.client.GetBlockCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("get block count: %w", err)
	}

	tx := transaction.New(script, sysFee)
	tx.Nonce = rand.Uint32()
	tx.ValidUntilBlock = height + validUntilBlockOffset
	tx.NetworkFee = defaultNetworkFee
	tx.Signers = []transaction.Signer{{
		Account: acc.ScriptHash(),
		Scopes:  scope,
	}}

	if err := acc.SignTx(netmode.Magic(b.networkID), tx); err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	return tx, nil
}

// BroadcastTx sends the signed transaction and returns its hash.
func (b *TxBuilder) BroadcastTx(ctx context.Context, tx *transaction.Transaction) (util.Uint256, error) {
	raw := tx.Bytes()

	if _, err := b.client.SendRawTransaction(ctx, base64.StdEncoding.EncodeToString(raw)); err != nil {
		return util.Uint256{}, fmt.Errorf("broadcast transaction: %w", err)
	}

	return tx.Hash(), nil
}
