package checkout

import (
	"context"
	"fmt"
	"math/big"

	indietreat "github.com/indietreat/indietreat/go"
	"github.com/indietreat/indietreat/go/ledger"
)

// ValueForwarder moves native value from the buyer to the seller wallet.
// bank.InMemoryBank implements it; production deployments plug in a real
// settlement rail.
type ValueForwarder interface {
	Forward(ctx context.Context, from, to string, amount *big.Int) error
}

// NativeCheckout records purchases paid by attaching native value to the
// call. The recorded amount is the attached value itself, so the logged and
// transferred amounts can never diverge.
type NativeCheckout struct {
	queries
	rec       *recorder
	forwarder ValueForwarder
}

// NewNativeCheckout creates the native-value checkout variant.
func NewNativeCheckout(led ledger.Ledger, forwarder ValueForwarder, opts ...Option) (*NativeCheckout, error) {
	if forwarder == nil {
		return nil, fmt.Errorf("value forwarder is required")
	}
	rec, err := newRecorder(led, opts...)
	if err != nil {
		return nil, err
	}
	return &NativeCheckout{
		queries:   queries{ledger: led},
		rec:       rec,
		forwarder: forwarder,
	}, nil
}

// Purchase records a purchase and forwards the entire attached value to the
// seller wallet. Recording and forwarding are one atomic unit: if the
// recipient rejects the transfer the purchase fails with forward_failed and
// no record persists.
func (c *NativeCheckout) Purchase(
	ctx context.Context,
	storeID uint64,
	params indietreat.PurchaseParams,
	buyer string,
	value *big.Int,
) (indietreat.PurchaseMade, error) {
	if !indietreat.IsValidAddress(buyer) {
		return indietreat.PurchaseMade{}, indietreat.NewCheckoutError(
			indietreat.ErrCodeInvalidInput,
			fmt.Sprintf("buyer must be a non-zero address, got %q", buyer), nil)
	}

	return c.rec.record(ctx, storeID, params, value, func(ctx context.Context, wallet string) error {
		err := c.forwarder.Forward(ctx, buyer, wallet, value)
		if err != nil && indietreat.ErrorCode(err) == "" {
			return indietreat.NewCheckoutError(indietreat.ErrCodeForwardFailed, err.Error(), nil)
		}
		return err
	})
}

// Receive models native value sent to the checkout outside the purchase
// entry point. It unconditionally fails with rejected_payment; the checkout
// never accumulates unattributed balance.
func (c *NativeCheckout) Receive(ctx context.Context, from string, value *big.Int) error {
	return indietreat.NewCheckoutError(
		indietreat.ErrCodeRejectedPayment,
		"direct payments are not accepted; use the purchase entry point",
		map[string]interface{}{"from": from},
	)
}
