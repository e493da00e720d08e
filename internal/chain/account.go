package chain

import (
	"fmt"
	"strings"
	"sync"

	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/wallet"
)

// AccountFromPrivateKey builds a neo-go signing account from a hex-encoded
// private key (without 0x prefix).
func AccountFromPrivateKey(privateKeyHex string) (*wallet.Account, error) {
	priv, err := keys.NewPrivateKeyFromHex(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return wallet.NewAccountFromPrivateKey(priv), nil
}

// AccountFromWIF builds a neo-go signing account from a WIF-encoded key.
func AccountFromWIF(wif string) (*wallet.Account, error) {
	priv, err := keys.NewPrivateKeyFromWIF(wif)
	if err != nil {
		return nil, fmt.Errorf("parse WIF: %w", err)
	}
	return wallet.NewAccountFromPrivateKey(priv), nil
}

// KeyResolver maps a custodial address to its signing account. The split
// ledger pulls contributions by signing on behalf of custodial participant
// accounts, so only addresses the resolver knows can contribute on-chain.
type KeyResolver interface {
	AccountFor(address string) (*wallet.Account, error)
}

// StaticKeyResolver resolves accounts from a fixed address -> key map.
type StaticKeyResolver struct {
	mu       sync.RWMutex
	accounts map[string]*wallet.Account
}

var _ KeyResolver = (*StaticKeyResolver)(nil)

// NewStaticKeyResolver builds a resolver from address -> hex private key
// pairs. Every key must parse and match its address.
func NewStaticKeyResolver(keysByAddress map[string]string) (*StaticKeyResolver, error) {
	r := &StaticKeyResolver{accounts: make(map[string]*wallet.Account, len(keysByAddress))}
	for addr, keyHex := range keysByAddress {
		acc, err := AccountFromPrivateKey(keyHex)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", addr, err)
		}
		if acc.Address != addr {
			return nil, fmt.Errorf("key for %s derives address %s", addr, acc.Address)
		}
		r.accounts[addr] = acc
	}
	return r, nil
}

func (r *StaticKeyResolver) AccountFor(address string) (*wallet.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acc, ok := r.accounts[address]
	if !ok {
		return nil, fmt.Errorf("no custodial key for address %s", address)
	}
	return acc, nil
}

// Add registers a custodial account under its derived address.
func (r *StaticKeyResolver) Add(acc *wallet.Account) {
	r.mu.Lock()
	r.accounts[acc.Address] = acc
	r.mu.Unlock()
}
