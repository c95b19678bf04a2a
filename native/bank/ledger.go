package bank

import (
	"errors"
	"math/big"
	"strings"
)

var (
	ErrInvalidDenom        = errors.New("bank: invalid denom")
	ErrInvalidAmount       = errors.New("bank: amount must be positive")
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	errNilState            = errors.New("bank: state not configured")
)

// State is the persistence surface the ledger requires. Balances are stored
// per (account, denom) and default to zero when absent.
type State interface {
	BankBalanceGet(addr [20]byte, denom string) (*big.Int, error)
	BankBalanceSet(addr [20]byte, denom string, amount *big.Int) error
}

// Ledger moves native denominations between accounts. All transfers are
// atomic with respect to the surrounding transaction; an error leaves both
// balances untouched.
type Ledger struct {
	state State
}

// NewLedger constructs a bank ledger bound to the supplied state backend.
func NewLedger(state State) *Ledger {
	return &Ledger{state: state}
}

// NormalizeDenom canonicalises a denomination identifier. Denominations are
// lowercase and between 3 and 128 characters, mirroring the asset-id grammar.
func NormalizeDenom(denom string) (string, error) {
	trimmed := strings.TrimSpace(strings.ToLower(denom))
	if len(trimmed) < 3 || len(trimmed) > 128 {
		return "", ErrInvalidDenom
	}
	return trimmed, nil
}

// BalanceOf returns the denom balance held by the account.
func (l *Ledger) BalanceOf(addr [20]byte, denom string) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	normalized, err := NormalizeDenom(denom)
	if err != nil {
		return nil, err
	}
	balance, err := l.state.BankBalanceGet(addr, normalized)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(balance), nil
}

// Transfer moves amount of denom from one account to another.
func (l *Ledger) Transfer(from, to [20]byte, denom string, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	normalized, err := NormalizeDenom(denom)
	if err != nil {
		return err
	}
	fromBalance, err := l.state.BankBalanceGet(from, normalized)
	if err != nil {
		return err
	}
	if fromBalance == nil {
		fromBalance = big.NewInt(0)
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBalance, err := l.state.BankBalanceGet(to, normalized)
	if err != nil {
		return err
	}
	if toBalance == nil {
		toBalance = big.NewInt(0)
	}
	if from == to {
		return nil
	}
	newFrom := new(big.Int).Sub(fromBalance, amount)
	newTo := new(big.Int).Add(toBalance, amount)
	if err := l.state.BankBalanceSet(from, normalized, newFrom); err != nil {
		return err
	}
	return l.state.BankBalanceSet(to, normalized, newTo)
}

// Mint credits freshly issued denom units to the account. Only genesis and
// faucet tooling reach for this; module code moves existing balances.
func (l *Ledger) Mint(to [20]byte, denom string, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	normalized, err := NormalizeDenom(denom)
	if err != nil {
		return err
	}
	balance, err := l.state.BankBalanceGet(to, normalized)
	if err != nil {
		return err
	}
	if balance == nil {
		balance = big.NewInt(0)
	}
	return l.state.BankBalanceSet(to, normalized, new(big.Int).Add(balance, amount))
}
