package ledger

import (
	"math/big"
	"testing"

	indietreat "github.com/indietreat/indietreat/go"
)

func record(product string, amount int64) indietreat.Purchase {
	return indietreat.Purchase{
		ProductName: product,
		Username:    "alice",
		UserID:      42,
		Timestamp:   1700000000,
		Amount:      big.NewInt(amount),
		Wallet:      "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
	}
}

func TestInMemoryLedger_DenseIDs(t *testing.T) {
	l := NewInMemoryLedger()

	for i := 0; i < 5; i++ {
		id, err := l.Append(7, record("Sticker Pack", 100))
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if id != uint64(i) {
			t.Errorf("expected id %d, got %d", i, id)
		}
	}
	if got := l.Count(7); got != 5 {
		t.Errorf("expected count 5, got %d", got)
	}

	// Other stores are unaffected
	if got := l.Count(8); got != 0 {
		t.Errorf("expected count 0 for untouched store, got %d", got)
	}
	if l.Exists(8) {
		t.Error("untouched store should not exist")
	}
	if !l.Exists(7) {
		t.Error("store 7 should exist")
	}
}

func TestInMemoryLedger_GetBounds(t *testing.T) {
	l := NewInMemoryLedger()

	// Untouched store: any id is not found
	if _, err := l.Get(1, 0); !indietreat.IsCode(err, indietreat.ErrCodeNotFound) {
		t.Errorf("expected not_found, got %v", err)
	}

	if _, err := l.Append(1, record("Zine", 250)); err != nil {
		t.Fatal(err)
	}

	p, err := l.Get(1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if p.ProductName != "Zine" || p.Amount.Int64() != 250 {
		t.Errorf("unexpected record: %+v", p)
	}

	if _, err := l.Get(1, 1); !indietreat.IsCode(err, indietreat.ErrCodeNotFound) {
		t.Errorf("expected not_found beyond count, got %v", err)
	}
}

func TestInMemoryLedger_Revert(t *testing.T) {
	l := NewInMemoryLedger()

	id0, _ := l.Append(3, record("A", 1))
	id1, _ := l.Append(3, record("B", 2))

	// Only the last record can be reverted
	if err := l.Revert(3, id0); err == nil {
		t.Error("expected revert of non-last record to fail")
	}
	if err := l.Revert(3, id1); err != nil {
		t.Fatalf("revert last: %v", err)
	}
	if got := l.Count(3); got != 1 {
		t.Errorf("expected count 1 after revert, got %d", got)
	}

	// The freed id is reassigned, keeping ids dense
	id, _ := l.Append(3, record("C", 3))
	if id != 1 {
		t.Errorf("expected reassigned id 1, got %d", id)
	}

	if err := l.Revert(3, 5); err == nil {
		t.Error("expected revert of out-of-range id to fail")
	}
	if err := l.Revert(9, 0); err == nil {
		t.Error("expected revert on empty store to fail")
	}
}

func TestInMemoryLedger_RecordsAreImmutable(t *testing.T) {
	l := NewInMemoryLedger()

	in := record("Print", 500)
	if _, err := l.Append(2, in); err != nil {
		t.Fatal(err)
	}

	// Mutating the caller's amount must not reach the stored record
	in.Amount.SetInt64(1)

	out, err := l.Get(2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if out.Amount.Int64() != 500 {
		t.Errorf("stored record was mutated: amount %s", out.Amount)
	}

	// Mutating a returned copy must not either
	out.Amount.SetInt64(2)
	again, _ := l.Get(2, 0)
	if again.Amount.Int64() != 500 {
		t.Errorf("stored record aliased by Get: amount %s", again.Amount)
	}
}
