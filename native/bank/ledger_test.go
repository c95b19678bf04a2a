package bank

import (
	"errors"
	"math/big"
	"testing"
)

type key struct {
	addr  [20]byte
	denom string
}

type mockState struct {
	balances map[key]*big.Int
}

func (m *mockState) BankBalanceGet(addr [20]byte, denom string) (*big.Int, error) {
	b, ok := m.balances[key{addr, denom}]
	if !ok {
		return nil, nil
	}
	return new(big.Int).Set(b), nil
}

func (m *mockState) BankBalanceSet(addr [20]byte, denom string, amount *big.Int) error {
	m.balances[key{addr, denom}] = new(big.Int).Set(amount)
	return nil
}

func addr(fill byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = fill
	}
	return a
}

func TestTransfer(t *testing.T) {
	ledger := NewLedger(&mockState{balances: make(map[key]*big.Int)})
	alice := addr(0x01)
	bob := addr(0x02)
	if err := ledger.Mint(alice, "urst", big.NewInt(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Transfer(alice, bob, "urst", big.NewInt(400)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	aliceBalance, _ := ledger.BalanceOf(alice, "urst")
	bobBalance, _ := ledger.BalanceOf(bob, "urst")
	if aliceBalance.Int64() != 600 || bobBalance.Int64() != 400 {
		t.Fatalf("unexpected balances %s/%s", aliceBalance, bobBalance)
	}

	if err := ledger.Transfer(alice, bob, "urst", big.NewInt(601)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := ledger.Transfer(alice, bob, "urst", big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := ledger.Transfer(alice, bob, "x", big.NewInt(1)); !errors.Is(err, ErrInvalidDenom) {
		t.Fatalf("expected ErrInvalidDenom, got %v", err)
	}
}

func TestNormalizeDenom(t *testing.T) {
	normalized, err := NormalizeDenom("  URST ")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if normalized != "urst" {
		t.Fatalf("expected lowercase, got %q", normalized)
	}
}
