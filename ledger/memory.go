package ledger

import (
	"fmt"
	"math/big"
	"sync"

	indietreat "github.com/indietreat/indietreat/go"
)

// InMemoryLedger provides an in-memory implementation of Ledger.
//
// This implementation is suitable for single-instance deployments where the
// purchase log doesn't need to be shared across processes. For distributed
// deployments, implement Ledger with a shared backend.
//
// Records are stored by value and copied on read, so entries are immutable
// once appended regardless of what callers do with returned structs.
type InMemoryLedger struct {
	mu      sync.Mutex
	records map[uint64][]indietreat.Purchase
}

// NewInMemoryLedger creates an empty in-memory purchase log.
func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{
		records: make(map[uint64][]indietreat.Purchase),
	}
}

// Append inserts a record and returns its assigned identifier.
func (l *InMemoryLedger) Append(storeID uint64, p indietreat.Purchase) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := uint64(len(l.records[storeID]))
	l.records[storeID] = append(l.records[storeID], clone(p))
	return id, nil
}

// Revert removes the most recently appended record of the store. Reverting
// anything but the last identifier is a programming error and is refused.
func (l *InMemoryLedger) Revert(storeID uint64, purchaseID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := uint64(len(l.records[storeID]))
	if n == 0 || purchaseID != n-1 {
		return fmt.Errorf("revert of purchase %d on store %d: not the last record (count %d)", purchaseID, storeID, n)
	}
	l.records[storeID] = l.records[storeID][:n-1]
	return nil
}

// Get returns the record for the given identifier.
func (l *InMemoryLedger) Get(storeID uint64, purchaseID uint64) (indietreat.Purchase, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seq := l.records[storeID]
	if purchaseID >= uint64(len(seq)) {
		return indietreat.Purchase{}, indietreat.NewCheckoutError(
			indietreat.ErrCodeNotFound,
			fmt.Sprintf("purchase %d not found on store %d", purchaseID, storeID),
			map[string]interface{}{"storeId": storeID, "purchaseId": purchaseID},
		)
	}
	return clone(seq[purchaseID]), nil
}

// Count returns the number of records inserted for the store.
func (l *InMemoryLedger) Count(storeID uint64) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return uint64(len(l.records[storeID]))
}

// Exists reports whether the store has at least one record.
func (l *InMemoryLedger) Exists(storeID uint64) bool {
	return l.Count(storeID) > 0
}

// clone deep-copies a record so the stored amount cannot be aliased.
func clone(p indietreat.Purchase) indietreat.Purchase {
	if p.Amount != nil {
		p.Amount = new(big.Int).Set(p.Amount)
	}
	return p
}

// Ensure InMemoryLedger implements Ledger
var _ Ledger = (*InMemoryLedger)(nil)
