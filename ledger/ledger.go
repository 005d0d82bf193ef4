// Package ledger owns the per-store append-only purchase log.
//
// Purchase identifiers within a store are dense, zero-based and assigned in
// insertion order; the record count doubles as the next insertion index. A
// store exists once its first record lands; there is no explicit creation.
package ledger

import (
	indietreat "github.com/indietreat/indietreat/go"
)

// Ledger defines purchase log storage. Implementations must be safe for
// concurrent use.
//
// The interface is designed to support both in-memory and persistent
// backends for different deployment scenarios.
type Ledger interface {
	// Append inserts a record for the store and returns its assigned
	// identifier (the store's record count before insertion).
	Append(storeID uint64, p indietreat.Purchase) (uint64, error)

	// Revert removes the record with the given identifier, which must be the
	// most recently appended record of the store. It exists solely so the
	// recording routine can roll back when payment movement fails; identifiers
	// stay dense because the routine holds the store's in-progress guard
	// across append, transfer and a potential revert.
	Revert(storeID uint64, purchaseID uint64) error

	// Get returns the record for the given identifier. Fails with a not_found
	// checkout error when purchaseID >= Count(storeID), which uniformly covers
	// untouched stores and out-of-range identifiers.
	Get(storeID uint64, purchaseID uint64) (indietreat.Purchase, error)

	// Count returns the number of records ever inserted for the store.
	// Defined (0) for untouched stores.
	Count(storeID uint64) uint64

	// Exists reports whether the store has at least one record.
	Exists(storeID uint64) bool
}
