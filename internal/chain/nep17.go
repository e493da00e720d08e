package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/core/transaction"
	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/wallet"

	domain "github.com/R3E-Network/splitpay/internal/app/domain/split"
	splitsvc "github.com/R3E-Network/splitpay/internal/app/services/split"
	"github.com/R3E-Network/splitpay/pkg/logger"
)

// GASContract is the native GAS token contract hash on Neo N3.
const GASContract = "0xd2a4cff31913016155e38e474a2c06d08be276cf"

// NEP17Ledger settles split transfers on Neo N3. Native-currency splits move
// GAS; token splits move the NEP-17 contract named by the asset reference.
//
// Contributions are pulled by signing a transfer on behalf of the custodial
// participant account supplied by the KeyResolver; payouts and refunds are
// signed by the escrow account.
type NEP17Ledger struct {
	client       *Client
	builder      *TxBuilder
	escrow       *wallet.Account
	resolver     KeyResolver
	waitTimeout  time.Duration
	pollInterval time.Duration
	log          *logger.Logger
}

var _ splitsvc.Ledger = (*NEP17Ledger)(nil)

// NewNEP17Ledger creates an on-chain ledger settling through the escrow
// account.
func NewNEP17Ledger(client *Client, escrow *wallet.Account, resolver KeyResolver, log *logger.Logger) *NEP17Ledger {
	if log == nil {
		log = logger.NewDefault("nep17-ledger")
	}
	return &NEP17Ledger{
		client:       client,
		builder:      NewTxBuilder(client, client.NetworkID()),
		escrow:       escrow,
		resolver:     resolver,
		waitTimeout:  DefaultTxWaitTimeout,
		pollInterval: DefaultPollInterval,
		log:          log,
	}
}

// EscrowAddress returns the address pooled funds are held at.
func (l *NEP17Ledger) EscrowAddress() string {
	return l.escrow.Address
}

func (l *NEP17Ledger) TransferIn(ctx context.Context, asset, from string, amount uint64) error {
	signer, err := l.resolver.AccountFor(from)
	if err != nil {
		return fmt.Errorf("resolve contributor account: %w", err)
	}
	fromHash, err := address.StringToUint160(from)
	if err != nil {
		return fmt.Errorf("invalid from address %q: %w", from, err)
	}
	return l.transfer(ctx, contractFor(asset), signer, fromHash, l.escrow.ScriptHash(), amount)
}

func (l *NEP17Ledger) TransferOut(ctx context.Context, asset, to string, amount uint64) error {
	toHash, err := address.StringToUint160(to)
	if err != nil {
		return fmt.Errorf("invalid to address %q: %w", to, err)
	}
	return l.transfer(ctx, contractFor(asset), l.escrow, l.escrow.ScriptHash(), toHash, amount)
}

// BalanceOf reads the asset balance of a Neo address.
func (l *NEP17Ledger) BalanceOf(ctx context.Context, asset, account string) (*big.Int, error) {
	accHash, err := address.StringToUint160(account)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", account, err)
	}

	result, err := l.client.InvokeFunction(ctx, contractFor(asset), "balanceOf", []ContractParam{
		NewHash160Param("0x" + accHash.StringLE()),
	})
	if err != nil {
		return nil, err
	}
	if result.State != "HALT" {
		return nil, fmt.Errorf("balanceOf faulted: %s", result.Exception)
	}
	if len(result.Stack) == 0 {
		return nil, fmt.Errorf("balanceOf returned empty stack")
	}
	return ParseInteger(result.Stack[0])
}

func (l *NEP17Ledger) transfer(ctx context.Context, contract string, signer *wallet.Account, from, to util.Uint160, amount uint64) error {
	params := []ContractParam{
		NewHash160Param("0x" + from.StringLE()),
		NewHash160Param("0x" + to.StringLE()),
		NewIntegerParam(new(big.Int).SetUint64(amount)),
		NewAnyParam(),
	}

	sim, err := l.client.InvokeFunctionWithSigners(ctx, contract, "transfer", params, signer.ScriptHash())
	if err != nil {
		return fmt.Errorf("transfer simulation: %w", err)
	}
	if sim.State != "HALT" {
		return fmt.Errorf("transfer simulation faulted: %s", sim.Exception)
	}
	if len(sim.Stack) > 0 {
		if ok, perr := ParseBoolean(sim.Stack[0]); perr == nil && !ok {
			return fmt.Errorf("transfer rejected by token contract %s", contract)
		}
	}

	tx, err := l.builder.BuildAndSignTx(ctx, sim, signer, transaction.CalledByEntry)
	if err != nil {
		return fmt.Errorf("build transfer transaction: %w", err)
	}

	txHash, err := l.builder.BroadcastTx(ctx, tx)
	if err != nil {
		return err
	}
	txHashString := "0x" + txHash.StringLE()

	waitCtx, cancel := context.WithTimeout(ctx, l.waitTimeout)
	defer cancel()

	appLog, err := l.client.WaitForApplicationLog(waitCtx, txHashString, l.pollInterval)
	if err != nil {
		return fmt.Errorf("wait for transfer execution: %w", err)
	}
	if len(appLog.Executions) > 0 && appLog.Executions[0].VMState != "HALT" {
		return fmt.Errorf("transfer failed with state %s", appLog.Executions[0].VMState)
	}

	l.log.WithFields(map[string]interface{}{
		"contract": contract,
		"from":     "0x" + from.StringLE(),
		"to":       "0x" + to.StringLE(),
		"amount":   amount,
		"tx_hash":  txHashString,
	}).Info("transfer settled")

	return nil
}

func contractFor(asset string) string {
	if asset == domain.NativeAsset {
		return GASContract
	}
	return asset
}
