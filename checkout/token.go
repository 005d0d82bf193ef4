package checkout

import (
	"context"
	"fmt"
	"math/big"

	indietreat "github.com/indietreat/indietreat/go"
	"github.com/indietreat/indietreat/go/ledger"
)

// Token is the fungible-token capability consumed by TokenCheckout:
// allowance queries, transfer-on-behalf and signed-authorization (EIP-2612
// permit) application. token.TreatToken implements it. The capability is
// assumed correct and audited; the checkout never inspects balances or
// signatures itself.
type Token interface {
	Allowance(ctx context.Context, owner, spender string) (*big.Int, error)
	TransferFrom(ctx context.Context, spender, from, to string, amount *big.Int) error
	Permit(ctx context.Context, owner, spender string, value *big.Int, deadline int64, signature []byte) error
}

// TokenCheckout records purchases paid by pulling a fungible token from the
// buyer into the seller wallet.
type TokenCheckout struct {
	queries
	rec     *recorder
	token   Token
	spender string
}

// NewTokenCheckout creates the token checkout variant. The token capability
// is required; spender is the checkout's own address, i.e. the party buyers
// grant allowances to.
func NewTokenCheckout(led ledger.Ledger, tok Token, spender string, opts ...Option) (*TokenCheckout, error) {
	if tok == nil {
		return nil, fmt.Errorf("payment token is required")
	}
	if !indietreat.IsValidAddress(spender) {
		return nil, fmt.Errorf("invalid spender address: %q", spender)
	}
	rec, err := newRecorder(led, opts...)
	if err != nil {
		return nil, err
	}
	return &TokenCheckout{
		queries: queries{ledger: led},
		rec:     rec,
		token:   tok,
		spender: indietreat.NormalizeAddress(spender),
	}, nil
}

// Spender returns the address buyers must approve for direct purchases.
func (c *TokenCheckout) Spender() string {
	return c.spender
}

// Purchase records a purchase and pulls amount of the token from the buyer
// into the seller wallet. Requires a pre-existing allowance of at least
// amount for the checkout's spender address; otherwise the token surfaces
// insufficient_authorization and no record persists.
func (c *TokenCheckout) Purchase(
	ctx context.Context,
	storeID uint64,
	params indietreat.PurchaseParams,
	buyer string,
	amount *big.Int,
) (indietreat.PurchaseMade, error) {
	if !indietreat.IsValidAddress(buyer) {
		return indietreat.PurchaseMade{}, indietreat.NewCheckoutError(
			indietreat.ErrCodeInvalidInput,
			fmt.Sprintf("buyer must be a non-zero address, got %q", buyer), nil)
	}

	return c.rec.record(ctx, storeID, params, amount, func(ctx context.Context, wallet string) error {
		return c.pull(ctx, buyer, wallet, amount)
	})
}

// PurchaseWithPermit establishes the allowance via an EIP-2612 signed
// authorization, then purchases. The whole chain — apply permit, re-check
// allowance, record, pull, notify — is one atomic unit: a failure anywhere
// leaves no purchase record behind.
func (c *TokenCheckout) PurchaseWithPermit(
	ctx context.Context,
	storeID uint64,
	params indietreat.PurchaseParams,
	buyer string,
	amount *big.Int,
	deadline int64,
	signature []byte,
) (indietreat.PurchaseMade, error) {
	// Validate before touching the token so a malformed request cannot
	// leave a stray allowance grant behind.
	if !indietreat.IsValidAddress(buyer) {
		return indietreat.PurchaseMade{}, indietreat.NewCheckoutError(
			indietreat.ErrCodeInvalidInput,
			fmt.Sprintf("buyer must be a non-zero address, got %q", buyer), nil)
	}
	if !indietreat.IsPositive(amount) {
		return indietreat.PurchaseMade{}, indietreat.NewCheckoutError(
			indietreat.ErrCodeInvalidInput, "amount must be strictly positive", nil)
	}
	if !indietreat.IsValidAddress(params.Wallet) {
		return indietreat.PurchaseMade{}, indietreat.NewCheckoutError(
			indietreat.ErrCodeInvalidInput,
			fmt.Sprintf("wallet must be a non-zero address, got %q", params.Wallet), nil)
	}

	if err := c.token.Permit(ctx, buyer, c.spender, amount, deadline, signature); err != nil {
		return indietreat.PurchaseMade{}, err
	}

	// The permit just granted >= amount, but re-check what the token
	// actually authorized: a mismatch between the capability's permit and
	// allowance accounting must not go unnoticed. A prior unrelated
	// approval satisfying the requirement passes this check too.
	allowance, err := c.token.Allowance(ctx, buyer, c.spender)
	if err != nil {
		return indietreat.PurchaseMade{}, fmt.Errorf("failed to query allowance: %w", err)
	}
	if allowance.Cmp(amount) < 0 {
		return indietreat.PurchaseMade{}, indietreat.NewCheckoutError(
			indietreat.ErrCodeInsufficientAuthorization,
			fmt.Sprintf("allowance %s after permit is less than amount %s", allowance, amount),
			map[string]interface{}{"owner": buyer, "spender": c.spender},
		)
	}

	return c.rec.record(ctx, storeID, params, amount, func(ctx context.Context, wallet string) error {
		return c.pull(ctx, buyer, wallet, amount)
	})
}

// pull moves amount from the buyer to the wallet via the token capability,
// mapping uncoded failures to transfer_failed.
func (c *TokenCheckout) pull(ctx context.Context, buyer, wallet string, amount *big.Int) error {
	err := c.token.TransferFrom(ctx, c.spender, buyer, wallet, amount)
	if err != nil && indietreat.ErrorCode(err) == "" {
		return indietreat.NewCheckoutError(indietreat.ErrCodeTransferFailed, err.Error(), nil)
	}
	return err
}
