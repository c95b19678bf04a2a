package vault

import (
	"fmt"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"restakechain/core/events"
	"restakechain/crypto"
	"restakechain/native/bank"
	nativecommon "restakechain/native/common"
	"restakechain/native/token"
)

const (
	moduleName = "vault"

	// ContractVersion is reported by the vault_info query.
	ContractVersion = "1.0.0"
)

// engineState is the persistence surface the vault engine requires. Share
// balances for opaque vaults and queue entries are stored per vault.
type engineState interface {
	VaultGet(addr [20]byte) (*Vault, bool, error)
	VaultPut(v *Vault) error
	VaultShareGet(vault, staker [20]byte) (*big.Int, error)
	VaultShareSet(vault, staker [20]byte, amount *big.Int) error
	VaultQueuedGet(vault, controller [20]byte) (*QueuedWithdrawal, bool, error)
	VaultQueuedPut(vault [20]byte, entry *QueuedWithdrawal) error
	VaultQueuedRemove(vault, controller [20]byte) error
	VaultProxyGet(vault, owner, proxy [20]byte) (bool, error)
	VaultProxySet(vault, owner, proxy [20]byte, approved bool) error
}

// RouterView is the slice of the vault router the engine depends on: deposit
// whitelisting, the withdrawal lock period, and the custody account assets
// are moved to during slashing.
type RouterView interface {
	IsWhitelisted(vault [20]byte) bool
	WithdrawalLockPeriod() uint64
	Account() [20]byte
}

// RegistryView answers whether an operator is actively validating. Vaults of
// validating operators must queue withdrawals instead of withdrawing
// directly.
type RegistryView interface {
	IsOperatorActive(operator [20]byte) bool
}

// Engine drives every vault instance: share accounting, the withdrawal
// queue, and the router-gated slash transfer.
type Engine struct {
	state    engineState
	bank     *bank.Ledger
	tokens   *token.Ledger
	router   RouterView
	registry RegistryView
	emitter  events.Emitter
	pauses   nativecommon.PauseView
	nowFn    func() int64

	pauserAccount  [20]byte
	chainNamespace string
	chainID        string
}

// NewEngine constructs a vault engine with no-op dependencies. Callers wire
// state, ledgers, router and registry before use.
func NewEngine() *Engine {
	return &Engine{
		emitter:        events.NoopEmitter{},
		nowFn:          func() int64 { return time.Now().Unix() },
		chainNamespace: "cosmos",
		chainID:        "restakechain-1",
	}
}

// SetState configures the state backend.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedgers configures the bank and token asset backends.
func (e *Engine) SetLedgers(bankLedger *bank.Ledger, tokenLedger *token.Ledger) {
	e.bank = bankLedger
	e.tokens = tokenLedger
}

// SetRouter wires the vault router view.
func (e *Engine) SetRouter(router RouterView) { e.router = router }

// SetRegistry wires the registry view used for the validating check.
func (e *Engine) SetRegistry(registry RegistryView) { e.registry = registry }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses wires the process-wide pause switchboard.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetNowFunc overrides the time source, primarily used in tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetPauserAccount records the pauser address reported by vault_info.
func (e *Engine) SetPauserAccount(addr [20]byte) { e.pauserAccount = addr }

// SetChainInfo configures the CAIP-19 chain segments used in asset ids.
func (e *Engine) SetChainInfo(namespace, chainID string) {
	if namespace != "" {
		e.chainNamespace = namespace
	}
	if chainID != "" {
		e.chainID = chainID
	}
}

func (e *Engine) emit(event events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(event)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// DeriveAddress computes the deterministic account address for a vault over
// the given operator and asset reference.
func DeriveAddress(operator [20]byte, assetType AssetType, reference string) [20]byte {
	var addr [20]byte
	sum := ethcrypto.Keccak256([]byte("restake/vault"), operator[:], []byte(assetType.Namespace()), []byte(reference))
	copy(addr[:], sum[12:])
	return addr
}

// CreateBankVault registers an opaque vault custodying a native denom.
func (e *Engine) CreateBankVault(operator [20]byte, denom string) (*Vault, error) {
	normalized, err := bank.NormalizeDenom(denom)
	if err != nil {
		return nil, err
	}
	v := &Vault{
		Operator:   operator,
		AssetType:  AssetTypeBank,
		AssetDenom: normalized,
	}
	return e.createVault(v, normalized, false, "")
}

// CreateTokenVault registers an opaque vault custodying a fungible token.
func (e *Engine) CreateTokenVault(operator, asset [20]byte) (*Vault, error) {
	v := &Vault{
		Operator:   operator,
		AssetType:  AssetTypeCW20,
		AssetToken: asset,
	}
	return e.createVault(v, crypto.MustAddressString(asset), false, "")
}

// CreateTokenizedBankVault registers a tokenized vault over a native denom.
// The receipt token is created on the token ledger with the vault as minter.
func (e *Engine) CreateTokenizedBankVault(operator [20]byte, denom, receiptSymbol string) (*Vault, error) {
	normalized, err := bank.NormalizeDenom(denom)
	if err != nil {
		return nil, err
	}
	v := &Vault{
		Operator:   operator,
		AssetType:  AssetTypeBank,
		AssetDenom: normalized,
	}
	return e.createVault(v, normalized, true, receiptSymbol)
}

// CreateTokenizedTokenVault registers a tokenized vault over a fungible token.
func (e *Engine) CreateTokenizedTokenVault(operator, asset [20]byte, receiptSymbol string) (*Vault, error) {
	v := &Vault{
		Operator:   operator,
		AssetType:  AssetTypeCW20,
		AssetToken: asset,
	}
	return e.createVault(v, crypto.MustAddressString(asset), true, receiptSymbol)
}

func (e *Engine) createVault(v *Vault, reference string, tokenized bool, receiptSymbol string) (*Vault, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	v.Address = DeriveAddress(v.Operator, v.AssetType, reference)
	if _, ok, err := e.state.VaultGet(v.Address); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrAlreadyExists
	}
	v.TotalShares = big.NewInt(0)
	v.CreatedAt = e.now()
	if tokenized {
		if e.tokens == nil {
			return nil, errNilBackend
		}
		var receipt [20]byte
		sum := ethcrypto.Keccak256([]byte("restake/receipt"), v.Address[:])
		copy(receipt[:], sum[12:])
		if _, err := e.tokens.Create(receipt, receiptSymbol, "Vault Receipt", 6, v.Address); err != nil {
			return nil, err
		}
		v.ReceiptToken = receipt
	}
	if err := e.state.VaultPut(v); err != nil {
		return nil, err
	}
	e.emit(events.VaultCreated{
		Vault:        v.Address,
		Operator:     v.Operator,
		AssetID:      e.assetID(v),
		ReceiptToken: v.ReceiptToken,
		Tokenized:    v.Tokenized(),
	})
	return v.Clone(), nil
}

func (e *Engine) assetID(v *Vault) string {
	id, err := NewAssetID(e.chainNamespace, e.chainID, v.AssetType.Namespace(), v.AssetReference())
	if err != nil {
		return ""
	}
	return id.String()
}

func (e *Engine) getVault(addr [20]byte) (*Vault, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	v, ok, err := e.state.VaultGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

// TotalAssets returns the assets held by the vault account, including
// donations.
func (e *Engine) TotalAssets(vaultAddr [20]byte) (*big.Int, error) {
	v, err := e.getVault(vaultAddr)
	if err != nil {
		return nil, err
	}
	return e.assetsHeld(v)
}

func (e *Engine) assetsHeld(v *Vault) (*big.Int, error) {
	switch v.AssetType {
	case AssetTypeBank:
		if e.bank == nil {
			return nil, errNilBackend
		}
		return e.bank.BalanceOf(v.Address, v.AssetDenom)
	case AssetTypeCW20:
		if e.tokens == nil {
			return nil, errNilBackend
		}
		return e.tokens.BalanceOf(v.AssetToken, v.Address)
	default:
		return nil, ErrInvalidAssetID
	}
}

func (e *Engine) pullAssets(v *Vault, from [20]byte, amount *big.Int) error {
	switch v.AssetType {
	case AssetTypeBank:
		return e.bank.Transfer(from, v.Address, v.AssetDenom, amount)
	case AssetTypeCW20:
		// The sender grants the vault an allowance; the vault pulls via
		// transfer-from so third-party deposits keep standard token
		// semantics.
		return e.tokens.TransferFrom(v.AssetToken, v.Address, from, v.Address, amount)
	default:
		return ErrInvalidAssetID
	}
}

func (e *Engine) sendAssets(v *Vault, to [20]byte, amount *big.Int) error {
	switch v.AssetType {
	case AssetTypeBank:
		return e.bank.Transfer(v.Address, to, v.AssetDenom, amount)
	case AssetTypeCW20:
		return e.tokens.Transfer(v.AssetToken, v.Address, to, amount)
	default:
		return ErrInvalidAssetID
	}
}

// totalShares reads the authoritative share count for exchange-rate purposes.
// Tokenized vaults derive it from the receipt token supply; queued receipt
// tokens are parked in the vault account and stay part of the supply, so the
// rate is unaffected by queueing.
func (e *Engine) totalShares(v *Vault) (*big.Int, error) {
	if v.Tokenized() {
		return e.tokens.TotalSupply(v.ReceiptToken)
	}
	if v.TotalShares == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(v.TotalShares), nil
}

func (e *Engine) exchange(v *Vault) (*VirtualOffset, error) {
	shares, err := e.totalShares(v)
	if err != nil {
		return nil, err
	}
	assets, err := e.assetsHeld(v)
	if err != nil {
		return nil, err
	}
	return NewVirtualOffset(shares, assets)
}

// SharesOf returns the staker's share balance in the vault.
func (e *Engine) SharesOf(vaultAddr, staker [20]byte) (*big.Int, error) {
	v, err := e.getVault(vaultAddr)
	if err != nil {
		return nil, err
	}
	if v.Tokenized() {
		return e.tokens.BalanceOf(v.ReceiptToken, staker)
	}
	shares, err := e.state.VaultShareGet(v.Address, staker)
	if err != nil {
		return nil, err
	}
	if shares == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(shares), nil
}

// Deposit pulls amount of the underlying asset from sender and credits the
// freshly minted shares to recipient at the current exchange rate.
func (e *Engine) Deposit(sender, vaultAddr, recipient [20]byte, amount *big.Int) (*big.Int, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	v, err := e.getVault(vaultAddr)
	if err != nil {
		return nil, err
	}
	if e.router == nil || !e.router.IsWhitelisted(v.Address) {
		return nil, ErrNotWhitelisted
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	rate, err := e.exchange(v)
	if err != nil {
		return nil, err
	}
	shares, err := rate.AssetsToShares(amount)
	if err != nil {
		return nil, err
	}
	if shares.Sign() == 0 {
		// Reject rather than silently absorb the deposit.
		return nil, ErrZeroShares
	}
	if err := e.pullAssets(v, sender, amount); err != nil {
		return nil, err
	}
	if v.Tokenized() {
		if err := e.tokens.Mint(v.ReceiptToken, v.Address, recipient, shares); err != nil {
			return nil, err
		}
	} else {
		held, err := e.state.VaultShareGet(v.Address, recipient)
		if err != nil {
			return nil, err
		}
		if held == nil {
			held = big.NewInt(0)
		}
		if err := e.state.VaultShareSet(v.Address, recipient, new(big.Int).Add(held, shares)); err != nil {
			return nil, err
		}
	}
	if err := rate.AddShares(shares); err != nil {
		return nil, err
	}
	newTotal, err := e.bumpTotalShares(v, rate)
	if err != nil {
		return nil, err
	}
	e.emit(events.VaultDeposit{
		Vault:       v.Address,
		Sender:      sender,
		Recipient:   recipient,
		Assets:      new(big.Int).Set(amount),
		Shares:      shares,
		TotalShares: newTotal,
	})
	return shares, nil
}

func (e *Engine) bumpTotalShares(v *Vault, rate *VirtualOffset) (*big.Int, error) {
	total := rate.TotalShares()
	if v.Tokenized() {
		// Authoritative count is the receipt supply; keep the record in sync
		// for indexers.
		supply, err := e.tokens.TotalSupply(v.ReceiptToken)
		if err != nil {
			return nil, err
		}
		total = supply
	}
	v.TotalShares = new(big.Int).Set(total)
	if err := e.state.VaultPut(v); err != nil {
		return nil, err
	}
	return total, nil
}

// Withdraw burns the sender's shares and sends the corresponding assets to
// recipient. Opaque vaults only, and only while the operator is not
// validating; every other path goes through the withdrawal queue.
func (e *Engine) Withdraw(sender, vaultAddr, recipient [20]byte, shares *big.Int) (*big.Int, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	v, err := e.getVault(vaultAddr)
	if err != nil {
		return nil, err
	}
	if v.Tokenized() {
		return nil, ErrTokenizedWithdraw
	}
	if shares == nil || shares.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if e.registry != nil && e.registry.IsOperatorActive(v.Operator) {
		return nil, ErrOperatorValidating
	}
	held, err := e.state.VaultShareGet(v.Address, sender)
	if err != nil {
		return nil, err
	}
	if held == nil || held.Cmp(shares) < 0 {
		return nil, ErrInsufficientShares
	}
	rate, err := e.exchange(v)
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
	if err := e.state.VaultShareSet(v.Address, sender, new(big.Int).Sub(held, shares)); err != nil {
		return nil, err
	}
	if err := rate.SubShares(shares); err != nil {
		return nil, err
	}
	if err := e.sendAssets(v, recipient, assets); err != nil {
		return nil, err
	}
	newTotal, err := e.bumpTotalShares(v, rate)
	if err != nil {
		return nil, err
	}
	e.emit(events.VaultWithdraw{
		Vault:       v.Address,
		Sender:      sender,
		Recipient:   recipient,
		Assets:      assets,
		Shares:      new(big.Int).Set(shares),
		TotalShares: newTotal,
	})
	return assets, nil
}

// isApprovedProxy reports whether proxy may act for principal in this vault.
func (e *Engine) isApprovedProxy(vault, principal, proxy [20]byte) (bool, error) {
	if principal == proxy {
		return true, nil
	}
	return e.state.VaultProxyGet(vault, principal, proxy)
}

// SetApproveProxy records or revokes the sender's proxy approval in the
// vault.
func (e *Engine) SetApproveProxy(sender, vaultAddr, proxy [20]byte, approve bool) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	v, err := e.getVault(vaultAddr)
	if err != nil {
		return err
	}
	if err := e.state.VaultProxySet(v.Address, sender, proxy, approve); err != nil {
		return err
	}
	e.emit(events.VaultProxyApproval{
		Vault:    v.Address,
		Owner:    sender,
		Proxy:    proxy,
		Approved: approve,
	})
	return nil
}

// QueueWithdrawal moves shares from owner into the controller-scoped queue
// and refreshes the unlock timestamp. The sender must be authorized for both
// the owner and the controller so a partially approved proxy cannot reset a
// non-approving controller's lock.
func (e *Engine) QueueWithdrawal(sender, vaultAddr, owner, controller [20]byte, shares *big.Int) (*QueuedWithdrawal, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	v, err := e.getVault(vaultAddr)
	if err != nil {
		return nil, err
	}
	if shares == nil || shares.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if ok, err := e.isApprovedProxy(v.Address, owner, sender); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("%w: sender not approved for owner", ErrUnauthorized)
	}
	if ok, err := e.isApprovedProxy(v.Address, controller, sender); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("%w: sender not approved for controller", ErrUnauthorized)
	}
	if v.Tokenized() {
		// Park the receipt tokens in the vault account instead of burning:
		// the supply (and therefore the exchange rate) must not move until
		// the withdrawal clears.
		if err := e.tokens.Transfer(v.ReceiptToken, owner, v.Address, shares); err != nil {
			if err == token.ErrInsufficientBalance {
				return nil, ErrInsufficientShares
			}
			return nil, err
		}
	} else {
		held, err := e.state.VaultShareGet(v.Address, owner)
		if err != nil {
			return nil, err
		}
		if held == nil || held.Cmp(shares) < 0 {
			return nil, ErrInsufficientShares
		}
		if err := e.state.VaultShareSet(v.Address, owner, new(big.Int).Sub(held, shares)); err != nil {
			return nil, err
		}
	}
	entry, ok, err := e.state.VaultQueuedGet(v.Address, controller)
	if err != nil {
		return nil, err
	}
	if !ok {
		entry = &QueuedWithdrawal{Controller: controller, Shares: big.NewInt(0)}
	}
	lockPeriod := uint64(0)
	if e.router != nil {
		lockPeriod = e.router.WithdrawalLockPeriod()
	}
	unlock := e.now() + int64(lockPeriod)
	if unlock < entry.UnlockTimestamp {
		unlock = entry.UnlockTimestamp
	}
	entry.Shares = new(big.Int).Add(entry.Shares, shares)
	entry.UnlockTimestamp = unlock
	if err := e.state.VaultQueuedPut(v.Address, entry); err != nil {
		return nil, err
	}
	e.emit(events.VaultQueueWithdrawal{
		Vault:             v.Address,
		Sender:            sender,
		Owner:             owner,
		Controller:        controller,
		QueuedShares:      new(big.Int).Set(shares),
		NewUnlockTime:     unlock,
		TotalQueuedShares: new(big.Int).Set(entry.Shares),
	})
	return entry.Clone(), nil
}

// RedeemWithdrawal burns all of the controller's queued shares and sends the
// corresponding assets to recipient.
func (e *Engine) RedeemWithdrawal(sender, vaultAddr, controller, recipient [20]byte) (*big.Int, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	v, err := e.getVault(vaultAddr)
	if err != nil {
		return nil, err
	}
	if ok, err := e.isApprovedProxy(v.Address, controller, sender); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("%w: sender not approved for controller", ErrUnauthorized)
	}
	entry, ok, err := e.state.VaultQueuedGet(v.Address, controller)
	if err != nil {
		return nil, err
	}
	if !ok || entry.Shares == nil || entry.Shares.Sign() == 0 {
		return nil, ErrNoQueuedShares
	}
	if e.now() < entry.UnlockTimestamp {
		return nil, &LockedError{UnlockTimestamp: entry.UnlockTimestamp}
	}
	rate, err := e.exchange(v)
	if err != nil {
		return nil, err
	}
	assets, err := rate.SharesToAssets(entry.Shares)
	if err != nil {
		return nil, err
	}
	if assets.Sign() == 0 {
		return nil, ErrZeroAssets
	}
	if v.Tokenized() {
		if err := e.tokens.Burn(v.ReceiptToken, v.Address, v.Address, entry.Shares); err != nil {
			return nil, err
		}
	} else {
		if err := rate.SubShares(entry.Shares); err != nil {
			return nil, err
		}
	}
	if err := e.state.VaultQueuedRemove(v.Address, controller); err != nil {
		return nil, err
	}
	if err := e.sendAssets(v, recipient, assets); err != nil {
		return nil, err
	}
	newTotal, err := e.bumpTotalShares(v, rate)
	if err != nil {
		return nil, err
	}
	e.emit(events.VaultRedeemWithdrawal{
		Vault:       v.Address,
		Sender:      sender,
		Controller:  controller,
		Recipient:   recipient,
		Assets:      assets,
		Shares:      new(big.Int).Set(entry.Shares),
		TotalShares: newTotal,
	})
	return assets, nil
}

// SlashLocked transfers amount of the underlying asset to the router's
// custody account. Shares are untouched so the loss lands proportionally on
// every current depositor. Only the router may call this.
func (e *Engine) SlashLocked(sender, vaultAddr [20]byte, amount *big.Int) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	v, err := e.getVault(vaultAddr)
	if err != nil {
		return err
	}
	if e.router == nil || sender != e.router.Account() {
		return fmt.Errorf("%w: only the router can slash", ErrUnauthorized)
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	held, err := e.assetsHeld(v)
	if err != nil {
		return err
	}
	if held.Cmp(amount) < 0 {
		return fmt.Errorf("%w: slash amount exceeds vault balance", ErrInsufficientShares)
	}
	if err := e.sendAssets(v, e.router.Account(), amount); err != nil {
		return err
	}
	e.emit(events.VaultSlashLocked{
		Vault:    v.Address,
		Operator: v.Operator,
		Amount:   new(big.Int).Set(amount),
	})
	return nil
}

// QueuedFor returns the controller's queue entry, if any.
func (e *Engine) QueuedFor(vaultAddr, controller [20]byte) (*QueuedWithdrawal, bool, error) {
	v, err := e.getVault(vaultAddr)
	if err != nil {
		return nil, false, err
	}
	entry, ok, err := e.state.VaultQueuedGet(v.Address, controller)
	if err != nil || !ok {
		return nil, false, err
	}
	return entry.Clone(), true, nil
}

// Info answers the vault_info query used by the router's whitelist
// round-trip and by off-chain indexers.
func (e *Engine) Info(vaultAddr [20]byte) (*Info, error) {
	v, err := e.getVault(vaultAddr)
	if err != nil {
		return nil, err
	}
	shares, err := e.totalShares(v)
	if err != nil {
		return nil, err
	}
	assets, err := e.assetsHeld(v)
	if err != nil {
		return nil, err
	}
	routerAddr := ""
	if e.router != nil {
		routerAddr = crypto.MustAddressString(e.router.Account())
	}
	return &Info{
		TotalShares:    shares,
		TotalAssets:    assets,
		Router:         routerAddr,
		Pauser:         crypto.MustAddressString(e.pauserAccount),
		Operator:       crypto.MustAddressString(v.Operator),
		AssetID:        e.assetID(v),
		AssetType:      v.AssetType.String(),
		AssetReference: v.AssetReference(),
		Contract:       crypto.MustAddressString(v.Address),
		Version:        ContractVersion,
	}, nil
}

// Get returns the vault record.
func (e *Engine) Get(vaultAddr [20]byte) (*Vault, error) {
	v, err := e.getVault(vaultAddr)
	if err != nil {
		return nil, err
	}
	return v.Clone(), nil
}
