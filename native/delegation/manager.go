package delegation

import (
	"bytes"
	"errors"
	"math/big"
	"sort"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"restakechain/core/events"
	"restakechain/native/bank"
	nativecommon "restakechain/native/common"
	"restakechain/native/token"
	"restakechain/native/vault"
)

const managerModuleName = "strategy-manager"

var (
	ErrStrategyNotFound = errors.New("delegation: strategy not found")
	ErrStrategyExists   = errors.New("delegation: strategy already exists")
	ErrInvalidAmount    = errors.New("delegation: amount must be positive")
	ErrZeroShares       = errors.New("delegation: deposit computes to zero shares")
	ErrZeroAssets       = errors.New("delegation: withdrawal computes to zero assets")
)

// managerState is the persistence surface for strategy custody and the
// per-staker share ledger.
type managerState interface {
	StrategyGet(addr [20]byte) (*Strategy, bool, error)
	StrategyPut(s *Strategy) error
	StrategyStakerSharesGet(staker, strategy [20]byte) (*big.Int, error)
	StrategyStakerSharesSet(staker, strategy [20]byte, shares *big.Int) error
	StrategyStakerListGet(staker [20]byte) ([][20]byte, error)
	StrategyStakerListSet(staker [20]byte, strategies [][20]byte) error
}

// DelegationNotify receives share increases so operator bookkeeping can
// follow staker deposits.
type DelegationNotify interface {
	IncreaseDelegatedShares(staker, strategy [20]byte, shares *big.Int) error
}

// Manager custodies strategy assets and keeps the per-staker share ledger.
// It reuses the vaults' virtual-offset engine, so strategy shares carry the
// same inflation-attack mitigation.
type Manager struct {
	state      managerState
	bank       *bank.Ledger
	tokens     *token.Ledger
	delegation DelegationNotify
	emitter    events.Emitter
	pauses     nativecommon.PauseView
	nowFn      func() int64
}

// NewManager constructs a strategy manager with default no-op dependencies.
func NewManager() *Manager {
	return &Manager{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend.
func (m *Manager) SetState(state managerState) { m.state = state }

// SetLedgers configures the asset backends.
func (m *Manager) SetLedgers(bankLedger *bank.Ledger, tokenLedger *token.Ledger) {
	m.bank = bankLedger
	m.tokens = tokenLedger
}

// SetDelegation wires the delegation engine for deposit notifications.
func (m *Manager) SetDelegation(d DelegationNotify) { m.delegation = d }

// SetEmitter configures the event emitter used by the manager.
func (m *Manager) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		m.emitter = events.NoopEmitter{}
		return
	}
	m.emitter = emitter
}

// SetPauses wires the process-wide pause switchboard.
func (m *Manager) SetPauses(p nativecommon.PauseView) { m.pauses = p }

// SetNowFunc overrides the time source, primarily used in tests.
func (m *Manager) SetNowFunc(now func() int64) {
	if now == nil {
		m.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	m.nowFn = now
}

func (m *Manager) emit(event events.Event) {
	if m == nil || m.emitter == nil {
		return
	}
	m.emitter.Emit(event)
}

// DeriveStrategyAddress computes the deterministic account of a strategy
// over the given asset reference.
func DeriveStrategyAddress(assetType vault.AssetType, reference string) [20]byte {
	var addr [20]byte
	sum := ethcrypto.Keccak256([]byte("restake/strategy"), []byte(assetType.Namespace()), []byte(reference))
	copy(addr[:], sum[12:])
	return addr
}

// CreateBankStrategy registers a strategy custodying a native denom.
func (m *Manager) CreateBankStrategy(denom string) (*Strategy, error) {
	normalized, err := bank.NormalizeDenom(denom)
	if err != nil {
		return nil, err
	}
	return m.createStrategy(&Strategy{
		AssetType:  vault.AssetTypeBank,
		AssetDenom: normalized,
	}, normalized)
}

// CreateTokenStrategy registers a strategy custodying a fungible token.
func (m *Manager) CreateTokenStrategy(asset [20]byte) (*Strategy, error) {
	return m.createStrategy(&Strategy{
		AssetType:  vault.AssetTypeCW20,
		AssetToken: asset,
	}, string(asset[:]))
}

func (m *Manager) createStrategy(s *Strategy, reference string) (*Strategy, error) {
	if m == nil || m.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(m.pauses, managerModuleName); err != nil {
		return nil, err
	}
	s.Address = DeriveStrategyAddress(s.AssetType, reference)
	if _, ok, err := m.state.StrategyGet(s.Address); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrStrategyExists
	}
	s.TotalShares = big.NewInt(0)
	s.CreatedAt = m.nowFn()
	if err := m.state.StrategyPut(s); err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

func (m *Manager) getStrategy(addr [20]byte) (*Strategy, error) {
	s, ok, err := m.state.StrategyGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrStrategyNotFound
	}
	return s, nil
}

func (m *Manager) assetsHeld(s *Strategy) (*big.Int, error) {
	switch s.AssetType {
	case vault.AssetTypeBank:
		return m.bank.BalanceOf(s.Address, s.AssetDenom)
	case vault.AssetTypeCW20:
		return m.tokens.BalanceOf(s.AssetToken, s.Address)
	default:
		return nil, ErrStrategyNotFound
	}
}

func (m *Manager) exchange(s *Strategy) (*vault.VirtualOffset, error) {
	assets, err := m.assetsHeld(s)
	if err != nil {
		return nil, err
	}
	return vault.NewVirtualOffset(s.TotalShares, assets)
}

// Deposit pulls assets from the staker into strategy custody, mints shares
// at the current exchange rate, and notifies the delegation engine.
func (m *Manager) Deposit(staker, strategyAddr [20]byte, amount *big.Int) (*big.Int, error) {
	if m == nil || m.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(m.pauses, managerModuleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	s, err := m.getStrategy(strategyAddr)
	if err != nil {
		return nil, err
	}
	rate, err := m.exchange(s)
	if err != nil {
		return nil, err
	}
	shares, err := rate.AssetsToShares(amount)
	if err != nil {
		return nil, err
	}
	if shares.Sign() == 0 {
		return nil, ErrZeroShares
	}
	switch s.AssetType {
	case vault.AssetTypeBank:
		if err := m.bank.Transfer(staker, s.Address, s.AssetDenom, amount); err != nil {
			return nil, err
		}
	case vault.AssetTypeCW20:
		if err := m.tokens.TransferFrom(s.AssetToken, s.Address, staker, s.Address, amount); err != nil {
			return nil, err
		}
	}
	if err := m.AddShares(staker, strategyAddr, shares); err != nil {
		return nil, err
	}
	if err := rate.AddShares(shares); err != nil {
		return nil, err
	}
	s.TotalShares = rate.TotalShares()
	if err := m.state.StrategyPut(s); err != nil {
		return nil, err
	}
	if m.delegation != nil {
		if err := m.delegation.IncreaseDelegatedShares(staker, strategyAddr, shares); err != nil {
			return nil, err
		}
	}
	m.emit(events.StrategyDeposit{
		Strategy:    strategyAddr,
		Staker:      staker,
		Assets:      new(big.Int).Set(amount),
		Shares:      shares,
		TotalShares: new(big.Int).Set(s.TotalShares),
	})
	return shares, nil
}

// StakerShares implements ManagerView.
func (m *Manager) StakerShares(staker, strategy [20]byte) (*big.Int, error) {
	if m == nil || m.state == nil {
		return nil, errNilState
	}
	shares, err := m.state.StrategyStakerSharesGet(staker, strategy)
	if err != nil {
		return nil, err
	}
	if shares == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(shares), nil
}

// StakerStrategies implements ManagerView: every strategy the staker has
// ever held shares in, in address order.
func (m *Manager) StakerStrategies(staker [20]byte) ([][20]byte, error) {
	if m == nil || m.state == nil {
		return nil, errNilState
	}
	return m.state.StrategyStakerListGet(staker)
}

// AddShares credits shares to the staker ledger. Used on deposit and when a
// completed withdrawal is re-staked instead of paid out.
func (m *Manager) AddShares(staker, strategy [20]byte, shares *big.Int) error {
	if shares == nil || shares.Sign() <= 0 {
		return ErrInvalidAmount
	}
	current, err := m.state.StrategyStakerSharesGet(staker, strategy)
	if err != nil {
		return err
	}
	if current == nil {
		current = big.NewInt(0)
	}
	if err := m.state.StrategyStakerSharesSet(staker, strategy, new(big.Int).Add(current, shares)); err != nil {
		return err
	}
	return m.trackStrategy(staker, strategy)
}

func (m *Manager) trackStrategy(staker, strategy [20]byte) error {
	listed, err := m.state.StrategyStakerListGet(staker)
	if err != nil {
		return err
	}
	for _, addr := range listed {
		if addr == strategy {
			return nil
		}
	}
	listed = append(listed, strategy)
	sort.Slice(listed, func(i, j int) bool {
		return bytes.Compare(listed[i][:], listed[j][:]) < 0
	})
	return m.state.StrategyStakerListSet(staker, listed)
}

// RemoveShares debits shares from the staker ledger when a withdrawal is
// queued.
func (m *Manager) RemoveShares(staker, strategy [20]byte, shares *big.Int) error {
	if shares == nil || shares.Sign() <= 0 {
		return ErrInvalidAmount
	}
	current, err := m.state.StrategyStakerSharesGet(staker, strategy)
	if err != nil {
		return err
	}
	if current == nil || current.Cmp(shares) < 0 {
		return ErrInsufficientShares
	}
	return m.state.StrategyStakerSharesSet(staker, strategy, new(big.Int).Sub(current, shares))
}

// WithdrawAsAssets burns previously queued shares against the strategy and
// pays the underlying assets to the recipient. The shares were already
// debited from the staker ledger at queue time.
func (m *Manager) WithdrawAsAssets(staker, strategyAddr, recipient [20]byte, shares *big.Int) (*big.Int, error) {
	if shares == nil || shares.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	s, err := m.getStrategy(strategyAddr)
	if err != nil {
		return nil, err
	}
	rate, err := m.exchange(s)
	if err != nil {
		return nil, err
	}
	assets, err := rate.SharesToAssets(shares)
	if err != nil {
		return nil, err
	}
	if assets.Sign() == 0 {
		return nil, ErrZeroAssets
	}
	if err := rate.SubShares(shares); err != nil {
		return nil, err
	}
	s.TotalShares = rate.TotalShares()
	if err := m.state.StrategyPut(s); err != nil {
		return nil, err
	}
	switch s.AssetType {
	case vault.AssetTypeBank:
		if err := m.bank.Transfer(s.Address, recipient, s.AssetDenom, assets); err != nil {
			return nil, err
		}
	case vault.AssetTypeCW20:
		if err := m.tokens.Transfer(s.AssetToken, s.Address, recipient, assets); err != nil {
			return nil, err
		}
	}
	m.emit(events.StrategyWithdraw{
		Strategy:    strategyAddr,
		Staker:      staker,
		Recipient:   recipient,
		Assets:      assets,
		Shares:      new(big.Int).Set(shares),
		TotalShares: new(big.Int).Set(s.TotalShares),
	})
	return assets, nil
}
