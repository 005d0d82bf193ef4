// Package bank provides the native-value payment medium for the native
// checkout variant: account balances plus the value-forwarding step that
// moves an attached payment to the seller wallet.
package bank

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	indietreat "github.com/indietreat/indietreat/go"
)

// InMemoryBank provides an in-memory implementation of checkout.ValueForwarder.
//
// This implementation is suitable for single-instance deployments; for
// anything shared, implement the forwarder against a real settlement rail.
//
// A recipient can be marked as rejecting, which makes every forward to it
// fail the way a contract recipient without a payable fallback would.
type InMemoryBank struct {
	mu        sync.Mutex
	balances  map[string]*big.Int
	rejecting map[string]bool
}

// NewInMemoryBank creates an empty bank.
func NewInMemoryBank() *InMemoryBank {
	return &InMemoryBank{
		balances:  make(map[string]*big.Int),
		rejecting: make(map[string]bool),
	}
}

// Deposit credits native value to an account.
func (b *InMemoryBank) Deposit(address string, amount *big.Int) error {
	if !indietreat.IsValidAddress(address) {
		return fmt.Errorf("deposit to invalid address %q", address)
	}
	if !indietreat.IsPositive(amount) {
		return fmt.Errorf("deposit amount must be positive")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[key(address)] = new(big.Int).Add(b.balance(address), amount)
	return nil
}

// Balance returns the native balance of an account.
func (b *InMemoryBank) Balance(address string) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.balance(address))
}

// SetRejecting marks an account as refusing incoming value transfers.
func (b *InMemoryBank) SetRejecting(address string, reject bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejecting[key(address)] = reject
}

// Forward moves the attached value from the buyer to the seller wallet in
// one step. Fails with forward_failed when the recipient rejects the
// transfer or the buyer cannot cover the attached value.
func (b *InMemoryBank) Forward(ctx context.Context, from, to string, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.rejecting[key(to)] {
		return indietreat.NewCheckoutError(
			indietreat.ErrCodeForwardFailed,
			fmt.Sprintf("recipient %s rejected the transfer", to),
			map[string]interface{}{"to": to},
		)
	}

	balance := b.balance(from)
	if balance.Cmp(amount) < 0 {
		return indietreat.NewCheckoutError(
			indietreat.ErrCodeForwardFailed,
			fmt.Sprintf("balance %s cannot cover attached value %s", balance, amount),
			map[string]interface{}{"from": from},
		)
	}

	b.balances[key(from)] = new(big.Int).Sub(balance, amount)
	b.balances[key(to)] = new(big.Int).Add(b.balance(to), amount)
	return nil
}

// balance must be called with the lock held.
func (b *InMemoryBank) balance(address string) *big.Int {
	if v, ok := b.balances[key(address)]; ok {
		return v
	}
	return new(big.Int)
}

func key(address string) string {
	return strings.ToLower(address)
}
