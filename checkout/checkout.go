// Package checkout implements the IndieTreat purchase protocol: validate the
// request, append the record to the store's log, move the payment to the
// seller wallet and emit a PurchaseMade notification — as one atomic unit.
//
// Two variants share the recording routine and differ only in how payment
// moves: NativeCheckout forwards value attached to the call, TokenCheckout
// pulls a fungible token from the buyer, optionally establishing the
// required allowance in the same call via an EIP-2612 permit.
package checkout

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	indietreat "github.com/indietreat/indietreat/go"
	"github.com/indietreat/indietreat/go/ledger"
)

// Option configures a checkout variant.
type Option func(*recorder)

// recorder owns the shared recording routine. It serializes purchases per
// store: the store guard is held across append, transfer and a potential
// revert, so identifiers stay dense and external transfer code can never
// observe or mutate a half-applied entry.
type recorder struct {
	ledger ledger.Ledger
	clock  func() time.Time

	guardMu sync.Mutex
	guards  map[uint64]*sync.Mutex

	beforeHooks  []BeforePurchaseHook
	afterHooks   []AfterPurchaseHook
	failureHooks []OnPurchaseFailureHook
}

func newRecorder(led ledger.Ledger, opts ...Option) (*recorder, error) {
	if led == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	r := &recorder{
		ledger: led,
		clock:  time.Now,
		guards: make(map[uint64]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// storeGuard returns the per-store in-progress lock, creating it on first use.
func (r *recorder) storeGuard(storeID uint64) *sync.Mutex {
	r.guardMu.Lock()
	defer r.guardMu.Unlock()
	g, ok := r.guards[storeID]
	if !ok {
		g = &sync.Mutex{}
		r.guards[storeID] = g
	}
	return g
}

// record runs the shared recording-and-payment routine. transfer is the
// variant's payment step; it receives the normalized seller wallet. On
// transfer failure the just-appended record is reverted, so no partial
// state survives a failed purchase.
func (r *recorder) record(
	ctx context.Context,
	storeID uint64,
	params indietreat.PurchaseParams,
	amount *big.Int,
	transfer func(ctx context.Context, wallet string) error,
) (indietreat.PurchaseMade, error) {
	started := time.Now()
	hookCtx := PurchaseContext{
		Ctx:       ctx,
		StoreID:   storeID,
		Params:    params,
		Amount:    amount,
		Timestamp: started,
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

	for _, hook := range r.beforeHooks {
		result, err := hook(hookCtx)
		if err != nil {
			return indietreat.PurchaseMade{}, fmt.Errorf("before purchase hook: %w", err)
		}
		if result != nil && result.Abort {
			return indietreat.PurchaseMade{}, indietreat.NewCheckoutError(
				indietreat.ErrCodePurchaseAborted, result.Reason, nil)
		}
	}

	guard := r.storeGuard(storeID)
	guard.Lock()
	defer guard.Unlock()

	wallet := indietreat.NormalizeAddress(params.Wallet)
	record := indietreat.Purchase{
		ProductName: params.ProductName,
		Username:    params.Username,
		UserID:      params.UserID,
		Timestamp:   r.clock().Unix(),
		Amount:      new(big.Int).Set(amount),
		Wallet:      wallet,
	}

	// Write the record, then call out. The guard held above is the
	// reentrancy protection around this ordering.
	id, err := r.ledger.Append(storeID, record)
	if err != nil {
		r.failed(hookCtx, started, err)
		return indietreat.PurchaseMade{}, fmt.Errorf("failed to append purchase: %w", err)
	}

	if err := transfer(ctx, wallet); err != nil {
		if revertErr := r.ledger.Revert(storeID, id); revertErr != nil {
			err = fmt.Errorf("%w (revert also failed: %v)", err, revertErr)
		}
		r.failed(hookCtx, started, err)
		return indietreat.PurchaseMade{}, err
	}

	event := indietreat.PurchaseMade{
		StoreID:     storeID,
		PurchaseID:  id,
		ProductName: record.ProductName,
		Username:    record.Username,
		UserID:      record.UserID,
		Timestamp:   record.Timestamp,
		Amount:      new(big.Int).Set(record.Amount),
		Wallet:      record.Wallet,
	}

	for _, hook := range r.afterHooks {
		// Hook errors do not affect a completed purchase.
		_ = hook(PurchaseResultContext{
			PurchaseContext: hookCtx,
			Event:           event,
			Duration:        time.Since(started),
		})
	}
	return event, nil
}

func (r *recorder) failed(hookCtx PurchaseContext, started time.Time, err error) {
	for _, hook := range r.failureHooks {
		_ = hook(PurchaseFailureContext{
			PurchaseContext: hookCtx,
			Error:           err,
			Duration:        time.Since(started),
		})
	}
}

// queries exposes the read-only accessors shared by both variants.
type queries struct {
	ledger ledger.Ledger
}

// GetPurchase returns the full record for the given identifiers. Fails with
// not_found when purchaseID is at or beyond the store's count.
func (q queries) GetPurchase(storeID, purchaseID uint64) (indietreat.Purchase, error) {
	return q.ledger.Get(storeID, purchaseID)
}

// GetStorePurchaseCount returns the store's record count; 0 for untouched
// stores.
func (q queries) GetStorePurchaseCount(storeID uint64) uint64 {
	return q.ledger.Count(storeID)
}

// StoreExists reports whether the store has recorded any purchase.
func (q queries) StoreExists(storeID uint64) bool {
	return q.ledger.Exists(storeID)
}
