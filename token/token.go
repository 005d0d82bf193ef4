// Package token implements TreatToken, a mintable fungible token with
// balances, spending allowances and EIP-2612 signed-authorization permits.
// It is the payment medium for the token checkout variant.
package token

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	indietreat "github.com/indietreat/indietreat/go"
)

// TreatToken is an in-process fungible token ledger. All state transitions
// run under one mutex, so each operation is atomic and the struct is safe
// for concurrent use.
type TreatToken struct {
	mu     sync.Mutex
	domain PermitDomain
	now    func() time.Time

	totalSupply *big.Int
	balances    map[string]*big.Int
	allowances  map[string]map[string]*big.Int
	nonces      map[string]uint64
}

// Option configures a TreatToken.
type Option func(*TreatToken)

// WithClock overrides the time source used for permit deadline checks.
func WithClock(now func() time.Time) Option {
	return func(t *TreatToken) {
		t.now = now
	}
}

// New creates a TreatToken verifying permits against the EIP-712 domain
// {name, "1", chainID, address}.
func New(name string, chainID *big.Int, address string, opts ...Option) (*TreatToken, error) {
	if name == "" {
		return nil, fmt.Errorf("token name is required")
	}
	if chainID == nil {
		return nil, fmt.Errorf("token chain id is required")
	}
	if !indietreat.IsValidAddress(address) {
		return nil, fmt.Errorf("invalid token address: %q", address)
	}

	t := &TreatToken{
		domain: PermitDomain{
			Name:              name,
			Version:           "1",
			ChainID:           new(big.Int).Set(chainID),
			VerifyingContract: indietreat.NormalizeAddress(address),
		},
		now:         time.Now,
		totalSupply: new(big.Int),
		balances:    make(map[string]*big.Int),
		allowances:  make(map[string]map[string]*big.Int),
		nonces:      make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Name returns the token name.
func (t *TreatToken) Name() string { return t.domain.Name }

// Address returns the token's verifying contract address.
func (t *TreatToken) Address() string { return t.domain.VerifyingContract }

// Domain returns the EIP-712 domain permits are verified against.
func (t *TreatToken) Domain() PermitDomain { return t.domain }

// Mint credits newly created tokens to the given account.
func (t *TreatToken) Mint(ctx context.Context, to string, amount *big.Int) error {
	if !indietreat.IsValidAddress(to) {
		return indietreat.NewCheckoutError(indietreat.ErrCodeInvalidInput, "mint to the zero address", nil)
	}
	if !indietreat.IsPositive(amount) {
		return indietreat.NewCheckoutError(indietreat.ErrCodeInvalidInput, "mint amount must be positive", nil)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.credit(to, amount)
	t.totalSupply.Add(t.totalSupply, amount)
	return nil
}

// TotalSupply returns the amount of tokens ever minted.
func (t *TreatToken) TotalSupply() *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.totalSupply)
}

// BalanceOf returns the balance of an account.
func (t *TreatToken) BalanceOf(ctx context.Context, owner string) (*big.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.balance(owner)), nil
}

// Transfer moves tokens from one account to another.
func (t *TreatToken) Transfer(ctx context.Context, from, to string, amount *big.Int) error {
	if !indietreat.IsValidAddress(to) {
		return indietreat.NewCheckoutError(indietreat.ErrCodeInvalidInput, "transfer to the zero address", nil)
	}
	if !indietreat.IsPositive(amount) {
		return indietreat.NewCheckoutError(indietreat.ErrCodeInvalidInput, "transfer amount must be positive", nil)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.move(from, to, amount)
}

// Approve grants spender the right to move up to amount of owner's tokens.
func (t *TreatToken) Approve(ctx context.Context, owner, spender string, amount *big.Int) error {
	if !indietreat.IsValidAddress(spender) {
		return indietreat.NewCheckoutError(indietreat.ErrCodeInvalidInput, "approve of the zero address", nil)
	}
	if amount == nil || amount.Sign() < 0 {
		return indietreat.NewCheckoutError(indietreat.ErrCodeInvalidInput, "approval amount must be non-negative", nil)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.setAllowance(owner, spender, amount)
	return nil
}

// Allowance returns the amount spender may still move on owner's behalf.
func (t *TreatToken) Allowance(ctx context.Context, owner, spender string) (*big.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.allowance(owner, spender)), nil
}

// TransferFrom moves tokens from `from` to `to` on behalf of spender,
// consuming spender's allowance. Fails with insufficient_authorization when
// the allowance does not cover amount and transfer_failed when the balance
// does not.
func (t *TreatToken) TransferFrom(ctx context.Context, spender, from, to string, amount *big.Int) error {
	if !indietreat.IsValidAddress(to) {
		return indietreat.NewCheckoutError(indietreat.ErrCodeInvalidInput, "transfer to the zero address", nil)
	}
	if !indietreat.IsPositive(amount) {
		return indietreat.NewCheckoutError(indietreat.ErrCodeInvalidInput, "transfer amount must be positive", nil)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	allowance := t.allowance(from, spender)
	if allowance.Cmp(amount) < 0 {
		return indietreat.NewCheckoutError(
			indietreat.ErrCodeInsufficientAuthorization,
			fmt.Sprintf("allowance %s is less than amount %s", allowance, amount),
			map[string]interface{}{"owner": from, "spender": spender},
		)
	}
	if err := t.move(from, to, amount); err != nil {
		return err
	}
	t.setAllowance(from, spender, new(big.Int).Sub(allowance, amount))
	return nil
}

// Nonces returns the current permit nonce of an owner.
func (t *TreatToken) Nonces(ctx context.Context, owner string) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nonces[key(owner)], nil
}

// Permit validates an EIP-2612 signed authorization and, on success, sets
// the (owner, spender) allowance to value and consumes the owner's nonce.
// A stale deadline fails with permit_expired; a signature that does not
// recover to owner fails with invalid_signature.
func (t *TreatToken) Permit(ctx context.Context, owner, spender string, value *big.Int, deadline int64, signature []byte) error {
	if !indietreat.IsValidAddress(owner) || !indietreat.IsValidAddress(spender) {
		return indietreat.NewCheckoutError(indietreat.ErrCodeInvalidInput, "permit owner and spender must be non-zero addresses", nil)
	}
	if value == nil || value.Sign() < 0 {
		return indietreat.NewCheckoutError(indietreat.ErrCodeInvalidInput, "permit value must be non-negative", nil)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if deadline < t.now().Unix() {
		return indietreat.NewCheckoutError(
			indietreat.ErrCodePermitExpired,
			fmt.Sprintf("permit deadline %d has passed", deadline),
			map[string]interface{}{"deadline": deadline},
		)
	}

	nonce := t.nonces[key(owner)]
	digest, err := PermitDigest(t.domain, owner, spender, value, nonce, deadline)
	if err != nil {
		return indietreat.NewCheckoutError(indietreat.ErrCodeInvalidSignature, err.Error(), nil)
	}

	signer, err := RecoverPermitSigner(digest, signature)
	if err != nil {
		return indietreat.NewCheckoutError(indietreat.ErrCodeInvalidSignature, err.Error(), nil)
	}
	if !indietreat.SameAddress(signer, owner) {
		return indietreat.NewCheckoutError(
			indietreat.ErrCodeInvalidSignature,
			fmt.Sprintf("signature recovered %s, expected owner %s", signer, owner),
			nil,
		)
	}

	t.nonces[key(owner)] = nonce + 1
	t.setAllowance(owner, spender, value)
	return nil
}

// balance returns the stored balance entry for owner. Must be called with
// the lock held.
func (t *TreatToken) balance(owner string) *big.Int {
	if b, ok := t.balances[key(owner)]; ok {
		return b
	}
	return new(big.Int)
}

func (t *TreatToken) credit(owner string, amount *big.Int) {
	t.balances[key(owner)] = new(big.Int).Add(t.balance(owner), amount)
}

func (t *TreatToken) move(from, to string, amount *big.Int) error {
	balance := t.balance(from)
	if balance.Cmp(amount) < 0 {
		return indietreat.NewCheckoutError(
			indietreat.ErrCodeTransferFailed,
			fmt.Sprintf("balance %s is less than amount %s", balance, amount),
			map[string]interface{}{"from": from},
		)
	}
	t.balances[key(from)] = new(big.Int).Sub(balance, amount)
	t.credit(to, amount)
	return nil
}

func (t *TreatToken) allowance(owner, spender string) *big.Int {
	if m, ok := t.allowances[key(owner)]; ok {
		if a, ok := m[key(spender)]; ok {
			return a
		}
	}
	return new(big.Int)
}

func (t *TreatToken) setAllowance(owner, spender string, amount *big.Int) {
	m, ok := t.allowances[key(owner)]
	if !ok {
		m = make(map[string]*big.Int)
		t.allowances[key(owner)] = m
	}
	m[key(spender)] = new(big.Int).Set(amount)
}

// key canonicalizes an address for use as a map key.
func key(address string) string {
	return strings.ToLower(address)
}
