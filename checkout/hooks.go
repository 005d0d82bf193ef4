package checkout

import (
	"context"
	"math/big"
	"time"

	indietreat "github.com/indietreat/indietreat/go"
)

// ============================================================================
// Purchase Hook Context Types
// ============================================================================

// PurchaseContext contains information passed to purchase hooks
type PurchaseContext struct {
	Ctx       context.Context
	StoreID   uint64
	Params    indietreat.PurchaseParams
	Amount    *big.Int
	Timestamp time.Time
}

// PurchaseResultContext contains the emitted notification and context
type PurchaseResultContext struct {
	PurchaseContext
	Event    indietreat.PurchaseMade
	Duration time.Duration
}

// PurchaseFailureContext contains a purchase failure and context
type PurchaseFailureContext struct {
	PurchaseContext
	Error    error
	Duration time.Duration
}

// BeforeHookResult represents the result of a "before" hook
// If Abort is true, the purchase will be aborted with the given Reason
type BeforeHookResult struct {
	Abort  bool
	Reason string
}

// ============================================================================
// Purchase Hook Function Types
// ============================================================================

// BeforePurchaseHook is called before the purchase is recorded.
// If it returns a result with Abort=true, the purchase fails with a
// purchase_aborted error carrying the provided reason.
type BeforePurchaseHook func(PurchaseContext) (*BeforeHookResult, error)

// AfterPurchaseHook is called with the PurchaseMade notification after a
// successful purchase. Any error returned is ignored and does not affect
// the purchase result.
type AfterPurchaseHook func(PurchaseResultContext) error

// OnPurchaseFailureHook is called when a purchase fails after passing the
// before hooks. Any error returned is ignored.
type OnPurchaseFailureHook func(PurchaseFailureContext) error

// ============================================================================
// Hook Registration Options
// ============================================================================

// WithBeforePurchaseHook registers a hook to execute before recording
func WithBeforePurchaseHook(hook BeforePurchaseHook) Option {
	return func(r *recorder) {
		r.beforeHooks = append(r.beforeHooks, hook)
	}
}

// WithAfterPurchaseHook registers a hook to receive PurchaseMade notifications
func WithAfterPurchaseHook(hook AfterPurchaseHook) Option {
	return func(r *recorder) {
		r.afterHooks = append(r.afterHooks, hook)
	}
}

// WithOnPurchaseFailureHook registers a hook to execute when a purchase fails
func WithOnPurchaseFailureHook(hook OnPurchaseFailureHook) Option {
	return func(r *recorder) {
		r.failureHooks = append(r.failureHooks, hook)
	}
}

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *recorder) {
		r.clock = now
	}
}
