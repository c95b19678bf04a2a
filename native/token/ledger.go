package token

import (
	"errors"
	"math/big"
	"strings"
)

var (
	ErrNotFound             = errors.New("token: token not found")
	ErrAlreadyExists        = errors.New("token: token already exists")
	ErrInvalidAmount        = errors.New("token: amount must be positive")
	ErrInsufficientBalance  = errors.New("token: insufficient balance")
	ErrInsufficientAllowane = errors.New("token: insufficient allowance")
	ErrUnauthorizedMinter   = errors.New("token: sender is not the minter")
	ErrInvalidSymbol        = errors.New("token: invalid symbol")
	errNilState             = errors.New("token: state not configured")
)

// Token describes a fungible token instance. The minter is the only account
// permitted to mint and burn; vault receipt tokens set it to the vault.
type Token struct {
	Address     [20]byte `json:"address"`
	Symbol      string   `json:"symbol"`
	Name        string   `json:"name"`
	Decimals    uint8    `json:"decimals"`
	Minter      [20]byte `json:"minter"`
	TotalSupply *big.Int `json:"totalSupply"`
}

// Clone deep copies the token definition.
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	clone := *t
	clone.TotalSupply = big.NewInt(0)
	if t.TotalSupply != nil {
		clone.TotalSupply = new(big.Int).Set(t.TotalSupply)
	}
	return &clone
}

// State is the persistence surface for the token ledger.
type State interface {
	TokenGet(token [20]byte) (*Token, bool, error)
	TokenPut(t *Token) error
	TokenBalanceGet(token, addr [20]byte) (*big.Int, error)
	TokenBalanceSet(token, addr [20]byte, amount *big.Int) error
	TokenAllowanceGet(token, owner, spender [20]byte) (*big.Int, error)
	TokenAllowanceSet(token, owner, spender [20]byte, amount *big.Int) error
}

// Ledger implements the standard fungible-token surface: transfer,
// transfer-from, allowance, balance and total supply, plus minter-gated
// mint/burn for receipt tokens.
type Ledger struct {
	state State
}

func NewLedger(state State) *Ledger {
	return &Ledger{state: state}
}

// Create registers a new token. The address must be unused.
func (l *Ledger) Create(address [20]byte, symbol, name string, decimals uint8, minter [20]byte) (*Token, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	symbol = strings.TrimSpace(symbol)
	if len(symbol) < 2 || len(symbol) > 12 {
		return nil, ErrInvalidSymbol
	}
	if _, ok, err := l.state.TokenGet(address); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrAlreadyExists
	}
	t := &Token{
		Address:     address,
		Symbol:      symbol,
		Name:        strings.TrimSpace(name),
		Decimals:    decimals,
		Minter:      minter,
		TotalSupply: big.NewInt(0),
	}
	if err := l.state.TokenPut(t); err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

// Get returns the token definition.
func (l *Ledger) Get(token [20]byte) (*Token, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	t, ok, err := l.state.TokenGet(token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

// TotalSupply returns the token's current supply.
func (l *Ledger) TotalSupply(token [20]byte) (*big.Int, error) {
	t, err := l.Get(token)
	if err != nil {
		return nil, err
	}
	return t.TotalSupply, nil
}

// BalanceOf returns the holder's balance of the token.
func (l *Ledger) BalanceOf(token, addr [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	if _, ok, err := l.state.TokenGet(token); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrNotFound
	}
	balance, err := l.state.TokenBalanceGet(token, addr)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(balance), nil
}

// Allowance returns the remaining spender allowance granted by owner.
func (l *Ledger) Allowance(token, owner, spender [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	allowance, err := l.state.TokenAllowanceGet(token, owner, spender)
	if err != nil {
		return nil, err
	}
	if allowance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(allowance), nil
}

// Approve sets the spender allowance for owner to the given amount.
func (l *Ledger) Approve(token, owner, spender [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if _, ok, err := l.state.TokenGet(token); err != nil {
		return err
	} else if !ok {
		return ErrNotFound
	}
	return l.state.TokenAllowanceSet(token, owner, spender, new(big.Int).Set(amount))
}

// Transfer moves tokens from the sender's balance.
func (l *Ledger) Transfer(token, from, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if _, ok, err := l.state.TokenGet(token); err != nil {
		return err
	} else if !ok {
		return ErrNotFound
	}
	return l.move(token, from, to, amount)
}

// TransferFrom moves tokens on behalf of owner, consuming the spender's
// allowance.
func (l *Ledger) TransferFrom(token, spender, owner, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	allowance, err := l.Allowance(token, owner, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowane
	}
	if err := l.move(token, owner, to, amount); err != nil {
		return err
	}
	return l.state.TokenAllowanceSet(token, owner, spender, new(big.Int).Sub(allowance, amount))
}

// Mint issues new tokens to the recipient. Restricted to the token's minter.
func (l *Ledger) Mint(token, sender, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	t, ok, err := l.state.TokenGet(token)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if t.Minter != sender {
		return ErrUnauthorizedMinter
	}
	balance, err := l.state.TokenBalanceGet(token, to)
	if err != nil {
		return err
	}
	if balance == nil {
		balance = big.NewInt(0)
	}
	if err := l.state.TokenBalanceSet(token, to, new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	updated := t.Clone()
	updated.TotalSupply = new(big.Int).Add(updated.TotalSupply, amount)
	return l.state.TokenPut(updated)
}

// Burn destroys tokens held by the given account. Restricted to the token's
// minter so receipt supply only moves through the vault lifecycle.
func (l *Ledger) Burn(token, sender, from [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	t, ok, err := l.state.TokenGet(token)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if t.Minter != sender {
		return ErrUnauthorizedMinter
	}
	balance, err := l.state.TokenBalanceGet(token, from)
	if err != nil {
		return err
	}
	if balance == nil {
		balance = big.NewInt(0)
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if err := l.state.TokenBalanceSet(token, from, new(big.Int).Sub(balance, amount)); err != nil {
		return err
	}
	updated := t.Clone()
	if updated.TotalSupply.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	updated.TotalSupply = new(big.Int).Sub(updated.TotalSupply, amount)
	return l.state.TokenPut(updated)
}

func (l *Ledger) move(token, from, to [20]byte, amount *big.Int) error {
	fromBalance, err := l.state.TokenBalanceGet(token, from)
	if err != nil {
		return err
	}
	if fromBalance == nil {
		fromBalance = big.NewInt(0)
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if from == to {
		return nil
	}
	toBalance, err := l.state.TokenBalanceGet(token, to)
	if err != nil {
		return err
	}
	if toBalance == nil {
		toBalance = big.NewInt(0)
	}
	if err := l.state.TokenBalanceSet(token, from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return l.state.TokenBalanceSet(token, to, new(big.Int).Add(toBalance, amount))
}
