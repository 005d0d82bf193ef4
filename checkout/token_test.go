package checkout

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	indietreat "github.com/indietreat/indietreat/go"
	"github.com/indietreat/indietreat/go/ledger"
	"github.com/indietreat/indietreat/go/token"
)

const (
	tokenAddr   = "0x00000000000000000000000000000000000054a0"
	spenderAddr = "0xC000000000000000000000000000000000000001"
)

type tokenFixture struct {
	checkout *TokenCheckout
	token    *token.TreatToken
	buyerKey *ecdsa.PrivateKey
	buyer    string
}

func newTokenFixture(t *testing.T, opts ...Option) *tokenFixture {
	t.Helper()

	tok, err := token.New("TreatToken", big.NewInt(8453), tokenAddr)
	require.NoError(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	buyer := crypto.PubkeyToAddress(key.PublicKey).Hex()
	require.NoError(t, tok.Mint(context.Background(), buyer, big.NewInt(1_000_000)))

	c, err := NewTokenCheckout(ledger.NewInMemoryLedger(), tok, spenderAddr, opts...)
	require.NoError(t, err)

	return &tokenFixture{checkout: c, token: tok, buyerKey: key, buyer: buyer}
}

func (f *tokenFixture) signPermit(t *testing.T, value *big.Int, deadline int64) []byte {
	t.Helper()
	nonce, err := f.token.Nonces(context.Background(), f.buyer)
	require.NoError(t, err)
	digest, err := token.PermitDigest(f.token.Domain(), f.buyer, f.checkout.Spender(), value, nonce, deadline)
	require.NoError(t, err)
	sig, err := crypto.Sign(digest, f.buyerKey)
	require.NoError(t, err)
	sig[64] += 27
	return sig
}

func TestNewTokenCheckout_Validation(t *testing.T) {
	led := ledger.NewInMemoryLedger()
	tok, err := token.New("TreatToken", big.NewInt(1), tokenAddr)
	require.NoError(t, err)

	_, err = NewTokenCheckout(led, nil, spenderAddr)
	assert.Error(t, err, "nil token capability must fail construction")

	_, err = NewTokenCheckout(led, tok, indietreat.ZeroAddress)
	assert.Error(t, err)

	_, err = NewTokenCheckout(nil, tok, spenderAddr)
	assert.Error(t, err)
}

func TestTokenPurchase_WithPriorApproval(t *testing.T) {
	ctx := context.Background()
	f := newTokenFixture(t)

	require.NoError(t, f.token.Approve(ctx, f.buyer, f.checkout.Spender(), big.NewInt(500)))

	event, err := f.checkout.Purchase(ctx, 7, stickerParams(), f.buyer, big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), event.PurchaseID)
	assert.Equal(t, uint64(1), f.checkout.GetStorePurchaseCount(7))

	balance, err := f.token.BalanceOf(ctx, sellerAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance.Int64())
}

func TestTokenPurchase_WithoutApproval(t *testing.T) {
	ctx := context.Background()
	f := newTokenFixture(t)

	_, err := f.checkout.Purchase(ctx, 7, stickerParams(), f.buyer, big.NewInt(100))
	assert.True(t, indietreat.IsCode(err, indietreat.ErrCodeInsufficientAuthorization), "got %v", err)

	// Atomicity: the rejected pull left no record behind
	assert.Equal(t, uint64(0), f.checkout.GetStorePurchaseCount(7))
}

func TestTokenPurchase_InsufficientBalanceRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newTokenFixture(t)

	amount := big.NewInt(2_000_000) // more than minted
	require.NoError(t, f.token.Approve(ctx, f.buyer, f.checkout.Spender(), amount))

	_, err := f.checkout.Purchase(ctx, 7, stickerParams(), f.buyer, amount)
	assert.True(t, indietreat.IsCode(err, indietreat.ErrCodeTransferFailed), "got %v", err)
	assert.Equal(t, uint64(0), f.checkout.GetStorePurchaseCount(7))
}

func TestPurchaseWithPermit(t *testing.T) {
	ctx := context.Background()
	var events []indietreat.PurchaseMade
	f := newTokenFixture(t, WithAfterPurchaseHook(func(rc PurchaseResultContext) error {
		events = append(events, rc.Event)
		return nil
	}))

	amount := big.NewInt(100)
	deadline := time.Now().Add(time.Hour).Unix()
	sig := f.signPermit(t, amount, deadline)

	event, err := f.checkout.PurchaseWithPermit(ctx, 7, stickerParams(), f.buyer, amount, deadline, sig)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), event.PurchaseID)
	require.Len(t, events, 1)
	assert.Equal(t, event, events[0])

	balance, err := f.token.BalanceOf(ctx, sellerAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance.Int64())

	// The permit allowance was consumed by the pull
	allowance, err := f.token.Allowance(ctx, f.buyer, f.checkout.Spender())
	require.NoError(t, err)
	assert.Zero(t, allowance.Sign())
}

func TestPurchaseWithPermit_Expired(t *testing.T) {
	ctx := context.Background()
	f := newTokenFixture(t)

	amount := big.NewInt(100)
	deadline := time.Now().Add(-time.Minute).Unix()
	sig := f.signPermit(t, amount, deadline)

	_, err := f.checkout.PurchaseWithPermit(ctx, 7, stickerParams(), f.buyer, amount, deadline, sig)
	assert.True(t, indietreat.IsCode(err, indietreat.ErrCodePermitExpired), "got %v", err)
	assert.Equal(t, uint64(0), f.checkout.GetStorePurchaseCount(7))
}

func TestPurchaseWithPermit_WrongSigner(t *testing.T) {
	ctx := context.Background()
	f := newTokenFixture(t)

	mallory, err := crypto.GenerateKey()
	require.NoError(t, err)

	amount := big.NewInt(100)
	deadline := time.Now().Add(time.Hour).Unix()
	digest, err := token.PermitDigest(f.token.Domain(), f.buyer, f.checkout.Spender(), amount, 0, deadline)
	require.NoError(t, err)
	sig, err := crypto.Sign(digest, mallory)
	require.NoError(t, err)
	sig[64] += 27

	_, err = f.checkout.PurchaseWithPermit(ctx, 7, stickerParams(), f.buyer, amount, deadline, sig)
	assert.True(t, indietreat.IsCode(err, indietreat.ErrCodeInvalidSignature), "got %v", err)
	assert.Equal(t, uint64(0), f.checkout.GetStorePurchaseCount(7))
}

func TestPurchaseWithPermit_ValidatesBeforeApplyingPermit(t *testing.T) {
	ctx := context.Background()
	f := newTokenFixture(t)

	amount := big.NewInt(100)
	deadline := time.Now().Add(time.Hour).Unix()
	sig := f.signPermit(t, amount, deadline)

	bad := stickerParams()
	bad.Wallet = indietreat.ZeroAddress
	_, err := f.checkout.PurchaseWithPermit(ctx, 7, bad, f.buyer, amount, deadline, sig)
	assert.True(t, indietreat.IsCode(err, indietreat.ErrCodeInvalidInput))

	// The permit was not applied: nonce unchanged, no allowance granted
	nonce, _ := f.token.Nonces(ctx, f.buyer)
	assert.Zero(t, nonce)
	allowance, _ := f.token.Allowance(ctx, f.buyer, f.checkout.Spender())
	assert.Zero(t, allowance.Sign())
}

// permitNoOpToken applies permits without actually granting an allowance,
// modeling a capability whose permit and allowance accounting disagree.
type permitNoOpToken struct {
	*token.TreatToken
}

func (p *permitNoOpToken) Permit(ctx context.Context, owner, spender string, value *big.Int, deadline int64, signature []byte) error {
	return nil
}

func TestPurchaseWithPermit_AllowanceRecheck(t *testing.T) {
	ctx := context.Background()

	tok, err := token.New("TreatToken", big.NewInt(8453), tokenAddr)
	require.NoError(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	buyer := crypto.PubkeyToAddress(key.PublicKey).Hex()
	require.NoError(t, tok.Mint(ctx, buyer, big.NewInt(1000)))

	c, err := NewTokenCheckout(ledger.NewInMemoryLedger(), &permitNoOpToken{tok}, spenderAddr)
	require.NoError(t, err)

	amount := big.NewInt(100)
	deadline := time.Now().Add(time.Hour).Unix()

	// Permit "succeeds" but grants nothing: the re-check must catch it
	_, err = c.PurchaseWithPermit(ctx, 7, stickerParams(), buyer, amount, deadline, []byte{0x01})
	assert.True(t, indietreat.IsCode(err, indietreat.ErrCodeInsufficientAuthorization), "got %v", err)
	assert.Equal(t, uint64(0), c.GetStorePurchaseCount(7))

	// A prior unrelated approval satisfying the requirement passes the
	// re-check even though the permit itself granted nothing
	require.NoError(t, tok.Approve(ctx, buyer, c.Spender(), big.NewInt(500)))
	event, err := c.PurchaseWithPermit(ctx, 7, stickerParams(), buyer, amount, deadline, []byte{0x01})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), event.PurchaseID)
}
