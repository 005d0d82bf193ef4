package checkout

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	indietreat "github.com/indietreat/indietreat/go"
	"github.com/indietreat/indietreat/go/bank"
	"github.com/indietreat/indietreat/go/ledger"
)

const (
	buyerAddr  = "0xB000000000000000000000000000000000000001"
	sellerAddr = "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
)

func stickerParams() indietreat.PurchaseParams {
	return indietreat.PurchaseParams{
		ProductName: "Sticker Pack",
		Username:    "alice",
		UserID:      42,
		Wallet:      sellerAddr,
	}
}

func newNative(t *testing.T, opts ...Option) (*NativeCheckout, *bank.InMemoryBank, *ledger.InMemoryLedger) {
	t.Helper()
	led := ledger.NewInMemoryLedger()
	b := bank.NewInMemoryBank()
	require.NoError(t, b.Deposit(buyerAddr, big.NewInt(1_000_000)))
	c, err := NewNativeCheckout(led, b, opts...)
	require.NoError(t, err)
	return c, b, led
}

func TestNewNativeCheckout_Validation(t *testing.T) {
	led := ledger.NewInMemoryLedger()
	_, err := NewNativeCheckout(nil, bank.NewInMemoryBank())
	assert.Error(t, err)
	_, err = NewNativeCheckout(led, nil)
	assert.Error(t, err)
}

func TestNativePurchase_StickerPackScenario(t *testing.T) {
	ctx := context.Background()
	frozen := time.Unix(1700000000, 0)
	c, b, _ := newNative(t, WithClock(func() time.Time { return frozen }))

	event, err := c.Purchase(ctx, 7, stickerParams(), buyerAddr, big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), event.StoreID)
	assert.Equal(t, uint64(0), event.PurchaseID)
	assert.Equal(t, int64(1700000000), event.Timestamp)

	p, err := c.GetPurchase(7, 0)
	require.NoError(t, err)
	assert.Equal(t, "Sticker Pack", p.ProductName)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, uint64(42), p.UserID)
	assert.Equal(t, int64(100), p.Amount.Int64())
	assert.Equal(t, indietreat.NormalizeAddress(sellerAddr), p.Wallet)
	assert.Positive(t, p.Timestamp)

	assert.Equal(t, uint64(1), c.GetStorePurchaseCount(7))
	assert.True(t, c.StoreExists(7))

	// The attached value reached the seller in full
	assert.Equal(t, int64(100), b.Balance(sellerAddr).Int64())

	// Second purchase with different data gets id 1; id 0 is unchanged
	second := indietreat.PurchaseParams{
		ProductName: "Zine",
		Username:    "bob",
		UserID:      77,
		Wallet:      sellerAddr,
	}
	event, err = c.Purchase(ctx, 7, second, buyerAddr, big.NewInt(250))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), event.PurchaseID)
	assert.Equal(t, uint64(2), c.GetStorePurchaseCount(7))

	first, err := c.GetPurchase(7, 0)
	require.NoError(t, err)
	assert.Equal(t, "Sticker Pack", first.ProductName)
	assert.Equal(t, int64(100), first.Amount.Int64())
}

func TestNativePurchase_InvalidInput(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newNative(t)

	cases := []struct {
		name   string
		params indietreat.PurchaseParams
		value  *big.Int
	}{
		{"zero value", stickerParams(), big.NewInt(0)},
		{"nil value", stickerParams(), nil},
		{"zero wallet", indietreat.PurchaseParams{ProductName: "x", Username: "y", Wallet: indietreat.ZeroAddress}, big.NewInt(1)},
		{"empty wallet", indietreat.PurchaseParams{ProductName: "x", Username: "y"}, big.NewInt(1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Purchase(ctx, 7, tc.params, buyerAddr, tc.value)
			assert.True(t, indietreat.IsCode(err, indietreat.ErrCodeInvalidInput), "got %v", err)
			assert.Equal(t, uint64(0), c.GetStorePurchaseCount(7))
		})
	}

	_, err := c.Purchase(ctx, 7, stickerParams(), indietreat.ZeroAddress, big.NewInt(1))
	assert.True(t, indietreat.IsCode(err, indietreat.ErrCodeInvalidInput))
}

func TestNativePurchase_ForwardFailureRollsBack(t *testing.T) {
	ctx := context.Background()

	var failures int
	var events int
	c, b, _ := newNative(t,
		WithAfterPurchaseHook(func(PurchaseResultContext) error { events++; return nil }),
		WithOnPurchaseFailureHook(func(PurchaseFailureContext) error { failures++; return nil }),
	)
	b.SetRejecting(sellerAddr, true)

	_, err := c.Purchase(ctx, 7, stickerParams(), buyerAddr, big.NewInt(100))
	assert.True(t, indietreat.IsCode(err, indietreat.ErrCodeForwardFailed), "got %v", err)

	// Atomicity: no record, no notification
	assert.Equal(t, uint64(0), c.GetStorePurchaseCount(7))
	assert.False(t, c.StoreExists(7))
	assert.Zero(t, events)
	assert.Equal(t, 1, failures)

	// The next successful purchase starts over at id 0
	b.SetRejecting(sellerAddr, false)
	event, err := c.Purchase(ctx, 7, stickerParams(), buyerAddr, big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), event.PurchaseID)
	assert.Equal(t, 1, events)
}

func TestNativeReceive_AlwaysRejected(t *testing.T) {
	c, _, _ := newNative(t)

	err := c.Receive(context.Background(), buyerAddr, big.NewInt(5))
	assert.True(t, indietreat.IsCode(err, indietreat.ErrCodeRejectedPayment))
	err = c.Receive(context.Background(), buyerAddr, nil)
	assert.True(t, indietreat.IsCode(err, indietreat.ErrCodeRejectedPayment))
}

func TestBeforeHookAbortsPurchase(t *testing.T) {
	c, _, _ := newNative(t, WithBeforePurchaseHook(func(PurchaseContext) (*BeforeHookResult, error) {
		return &BeforeHookResult{Abort: true, Reason: "store is closed"}, nil
	}))

	_, err := c.Purchase(context.Background(), 7, stickerParams(), buyerAddr, big.NewInt(1))
	assert.True(t, indietreat.IsCode(err, indietreat.ErrCodePurchaseAborted))
	assert.Equal(t, uint64(0), c.GetStorePurchaseCount(7))
}

func TestExistsMatchesCount(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newNative(t)

	for _, storeID := range []uint64{0, 1, 7, 42} {
		assert.Equal(t, c.GetStorePurchaseCount(storeID) > 0, c.StoreExists(storeID))
	}

	_, err := c.Purchase(ctx, 42, stickerParams(), buyerAddr, big.NewInt(10))
	require.NoError(t, err)

	for _, storeID := range []uint64{0, 1, 7, 42} {
		assert.Equal(t, c.GetStorePurchaseCount(storeID) > 0, c.StoreExists(storeID))
	}
}

func TestConcurrentPurchases_DenseIDs(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newNative(t)

	const perStore = 20
	var wg sync.WaitGroup
	for _, storeID := range []uint64{1, 2, 3} {
		for i := 0; i < perStore; i++ {
			wg.Add(1)
			go func(storeID uint64) {
				defer wg.Done()
				_, err := c.Purchase(ctx, storeID, stickerParams(), buyerAddr, big.NewInt(1))
				assert.NoError(t, err)
			}(storeID)
		}
	}
	wg.Wait()

	for _, storeID := range []uint64{1, 2, 3} {
		require.Equal(t, uint64(perStore), c.GetStorePurchaseCount(storeID))
		// Every id in 0..count-1 resolves; count does not
		for id := uint64(0); id < perStore; id++ {
			_, err := c.GetPurchase(storeID, id)
			assert.NoError(t, err)
		}
		_, err := c.GetPurchase(storeID, perStore)
		assert.True(t, indietreat.IsCode(err, indietreat.ErrCodeNotFound))
	}
}
