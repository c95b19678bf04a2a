package token

import (
	"errors"
	"math/big"
	"testing"
)

type balanceKey struct {
	token [20]byte
	addr  [20]byte
}

type allowanceKey struct {
	token   [20]byte
	owner   [20]byte
	spender [20]byte
}

type mockState struct {
	tokens     map[[20]byte]*Token
	balances   map[balanceKey]*big.Int
	allowances map[allowanceKey]*big.Int
}

func newMockState() *mockState {
	return &mockState{
		tokens:     make(map[[20]byte]*Token),
		balances:   make(map[balanceKey]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
	}
}

func (m *mockState) TokenGet(token [20]byte) (*Token, bool, error) {
	t, ok := m.tokens[token]
	if !ok {
		return nil, false, nil
	}
	return t.Clone(), true, nil
}

func (m *mockState) TokenPut(t *Token) error {
	m.tokens[t.Address] = t.Clone()
	return nil
}

func (m *mockState) TokenBalanceGet(token, addr [20]byte) (*big.Int, error) {
	b, ok := m.balances[balanceKey{token, addr}]
	if !ok {
		return nil, nil
	}
	return new(big.Int).Set(b), nil
}

func (m *mockState) TokenBalanceSet(token, addr [20]byte, amount *big.Int) error {
	m.balances[balanceKey{token, addr}] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) TokenAllowanceGet(token, owner, spender [20]byte) (*big.Int, error) {
	a, ok := m.allowances[allowanceKey{token, owner, spender}]
	if !ok {
		return nil, nil
	}
	return new(big.Int).Set(a), nil
}

func (m *mockState) TokenAllowanceSet(token, owner, spender [20]byte, amount *big.Int) error {
	m.allowances[allowanceKey{token, owner, spender}] = new(big.Int).Set(amount)
	return nil
}

func addr(fill byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = fill
	}
	return a
}

func TestMintTransferBurn(t *testing.T) {
	ledger := NewLedger(newMockState())
	minter := addr(0x01)
	holder := addr(0x02)
	other := addr(0x03)
	tokenAddr := addr(0xAA)

	if _, err := ledger.Create(tokenAddr, "rRST", "Receipt", 6, minter); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := ledger.Create(tokenAddr, "rRST", "Receipt", 6, minter); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	if err := ledger.Mint(tokenAddr, holder, holder, big.NewInt(100)); !errors.Is(err, ErrUnauthorizedMinter) {
		t.Fatalf("expected ErrUnauthorizedMinter, got %v", err)
	}
	if err := ledger.Mint(tokenAddr, minter, holder, big.NewInt(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	supply, _ := ledger.TotalSupply(tokenAddr)
	if supply.Int64() != 1000 {
		t.Fatalf("unexpected supply %s", supply)
	}

	if err := ledger.Transfer(tokenAddr, holder, other, big.NewInt(250)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	balance, _ := ledger.BalanceOf(tokenAddr, other)
	if balance.Int64() != 250 {
		t.Fatalf("unexpected balance %s", balance)
	}

	if err := ledger.Burn(tokenAddr, minter, other, big.NewInt(250)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	supply, _ = ledger.TotalSupply(tokenAddr)
	if supply.Int64() != 750 {
		t.Fatalf("unexpected supply after burn %s", supply)
	}
	if err := ledger.Burn(tokenAddr, other, other, big.NewInt(1)); !errors.Is(err, ErrUnauthorizedMinter) {
		t.Fatalf("burn must stay minter-gated, got %v", err)
	}
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	ledger := NewLedger(newMockState())
	minter := addr(0x01)
	owner := addr(0x02)
	spender := addr(0x03)
	recipient := addr(0x04)
	tokenAddr := addr(0xAA)

	if _, err := ledger.Create(tokenAddr, "rRST", "Receipt", 6, minter); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := ledger.Mint(tokenAddr, minter, owner, big.NewInt(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := ledger.TransferFrom(tokenAddr, spender, owner, recipient, big.NewInt(100)); !errors.Is(err, ErrInsufficientAllowane) {
		t.Fatalf("expected ErrInsufficientAllowane, got %v", err)
	}
	if err := ledger.Approve(tokenAddr, owner, spender, big.NewInt(300)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := ledger.TransferFrom(tokenAddr, spender, owner, recipient, big.NewInt(100)); err != nil {
		t.Fatalf("transfer from: %v", err)
	}
	remaining, _ := ledger.Allowance(tokenAddr, owner, spender)
	if remaining.Int64() != 200 {
		t.Fatalf("allowance should shrink, got %s", remaining)
	}
	balance, _ := ledger.BalanceOf(tokenAddr, recipient)
	if balance.Int64() != 100 {
		t.Fatalf("unexpected recipient balance %s", balance)
	}
}
