package vaultrouter

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"restakechain/core/events"
	"restakechain/crypto"
	"restakechain/native/bank"
	nativecommon "restakechain/native/common"
	"restakechain/native/registry"
	"restakechain/native/token"
	"restakechain/native/vault"
)

const moduleName = "vault-router"

// DefaultWithdrawalLockSeconds applies until the owner configures the lock
// period explicitly.
const DefaultWithdrawalLockSeconds uint64 = 7 * 24 * 60 * 60

var (
	ErrUnauthorized           = errors.New("vault-router: unauthorized")
	ErrVaultNotConnected      = errors.New("vault-router: vault is not connected to the router")
	ErrRequestNotFound        = errors.New("vault-router: slashing request not found")
	ErrWrongStage             = errors.New("vault-router: slashing request is in the wrong stage")
	ErrInRequestedWindow      = errors.New("vault-router: a non-terminal request exists for this pair")
	ErrNotExpired             = errors.New("vault-router: resolution window has not elapsed")
	ErrNotApproved            = errors.New("vault-router: guardrail approval missing")
	ErrZeroBips               = errors.New("vault-router: bips must be positive")
	ErrBipsExceedsMax         = errors.New("vault-router: bips exceed the service maximum")
	ErrSlashingDisabled       = errors.New("vault-router: slashing not enabled at infraction time")
	ErrNotOptedIn             = errors.New("vault-router: operator not opted in at infraction time")
	ErrRelationshipNotActive  = errors.New("vault-router: relationship not active at infraction time")
	ErrFutureInfraction       = errors.New("vault-router: infraction timestamp is in the future")
	ErrNothingToSlash         = errors.New("vault-router: no assets to slash")
	errNilState               = errors.New("vault-router: state not configured")
	errNilVaults              = errors.New("vault-router: vault engine not configured")
	errNilRegistry            = errors.New("vault-router: registry not configured")
	errNilGuardrail           = errors.New("vault-router: guardrail not configured")
	errDuplicateSlashingID   = errors.New("vault-router: slashing id already exists")
	errUnknownVaultAssetType = errors.New("vault-router: unknown vault asset type")
)

// engineState is the persistence surface for the router. Vault listings are
// returned in ascending address order; that order is externally visible and
// forms part of the slashing receipt.
type engineState interface {
	RouterVaultGet(vaultAddr [20]byte) (whitelisted bool, ok bool, err error)
	RouterVaultSet(vaultAddr [20]byte, whitelisted bool) error
	RouterVaultList() ([][20]byte, error)
	RouterOperatorVaultsGet(operator [20]byte) ([][20]byte, error)
	RouterOperatorVaultsSet(operator [20]byte, vaults [][20]byte) error
	RouterLockPeriodGet() (uint64, bool, error)
	RouterLockPeriodSet(seconds uint64) error
	RouterRequestGet(id [32]byte) (*SlashingRequest, bool, error)
	RouterRequestPut(request *SlashingRequest) error
	RouterActiveRequestGet(service, operator [20]byte) ([32]byte, bool, error)
	RouterActiveRequestSet(service, operator [20]byte, id [32]byte) error
	RouterActiveRequestClear(service, operator [20]byte) error
}

// VaultsView is the slice of the vault engine the router drives.
type VaultsView interface {
	Get(vaultAddr [20]byte) (*vault.Vault, error)
	Info(vaultAddr [20]byte) (*vault.Info, error)
	TotalAssets(vaultAddr [20]byte) (*big.Int, error)
	SlashLocked(sender, vaultAddr [20]byte, amount *big.Int) error
}

// RegistryView answers the eligibility questions asked at request time.
type RegistryView interface {
	StatusAtTime(operator, service [20]byte, timestamp int64) (registry.RegistrationStatus, error)
	SlashingParameters(service [20]byte, timestamp int64) (*registry.SlashingParameters, error)
	IsOptedIn(operator, service [20]byte, timestamp int64) (bool, error)
}

// GuardrailGate is the approval check consumed at finalize.
type GuardrailGate interface {
	IsApproved(id [32]byte) bool
	MarkExecuted(id [32]byte) error
}

// Engine coordinates the whitelisted vault set and drives the three-stage
// slashing protocol across every vault owned by the slashed operator.
type Engine struct {
	state     engineState
	vaults    VaultsView
	registry  RegistryView
	guardrail GuardrailGate
	bank      *bank.Ledger
	tokens    *token.Ledger
	emitter   events.Emitter
	pauses    nativecommon.PauseView
	nowFn     func() int64

	owner   [20]byte
	account [20]byte
}

// NewEngine constructs a router engine with default no-op dependencies. The
// custody account is the fixed module account.
func NewEngine() *Engine {
	var account [20]byte
	sum := ethcrypto.Keccak256([]byte("restake/vault-router"))
	copy(account[:], sum[12:])
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		account: account,
	}
}

// SetState configures the state backend.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetVaults wires the vault engine.
func (e *Engine) SetVaults(vaults VaultsView) { e.vaults = vaults }

// SetRegistry wires the registry view.
func (e *Engine) SetRegistry(reg RegistryView) { e.registry = reg }

// SetGuardrail wires the guardrail approval gate.
func (e *Engine) SetGuardrail(gate GuardrailGate) { e.guardrail = gate }

// SetLedgers configures the asset backends used to move custody out of the
// router account.
func (e *Engine) SetLedgers(bankLedger *bank.Ledger, tokenLedger *token.Ledger) {
	e.bank = bankLedger
	e.tokens = tokenLedger
}

// SetEmitter configures the event emitter used by the engine.
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

// SetOwner configures the administrative owner allowed to whitelist vaults
// and tune the withdrawal lock period.
func (e *Engine) SetOwner(owner [20]byte) { e.owner = owner }

func (e *Engine) emit(event events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(event)
}

func (e *Engine) now() int64 { return e.nowFn() }

// Account returns the router's custody account.
func (e *Engine) Account() [20]byte { return e.account }

// IsWhitelisted reports whether the vault may accept deposits.
func (e *Engine) IsWhitelisted(vaultAddr [20]byte) bool {
	if e == nil || e.state == nil {
		return false
	}
	whitelisted, ok, err := e.state.RouterVaultGet(vaultAddr)
	if err != nil || !ok {
		return false
	}
	return whitelisted
}

// WithdrawalLockPeriod returns the configured lock period in seconds.
func (e *Engine) WithdrawalLockPeriod() uint64 {
	if e == nil || e.state == nil {
		return DefaultWithdrawalLockSeconds
	}
	seconds, ok, err := e.state.RouterLockPeriodGet()
	if err != nil || !ok {
		return DefaultWithdrawalLockSeconds
	}
	return seconds
}

// SetWithdrawalLockPeriod updates the global lock period. Owner only.
func (e *Engine) SetWithdrawalLockPeriod(sender [20]byte, seconds uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if sender != e.owner {
		return fmt.Errorf("%w: only the owner can set the lock period", ErrUnauthorized)
	}
	if err := e.state.RouterLockPeriodSet(seconds); err != nil {
		return err
	}
	e.emit(events.WithdrawalLockPeriodUpdated{Seconds: seconds})
	return nil
}

// SetVault whitelists (or delists) a vault. Whitelisting performs the
// vault_info round-trip and rejects vaults that do not point back at this
// router.
func (e *Engine) SetVault(sender, vaultAddr [20]byte, whitelisted bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.vaults == nil {
		return errNilVaults
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if sender != e.owner {
		return fmt.Errorf("%w: only the owner can set vaults", ErrUnauthorized)
	}
	v, err := e.vaults.Get(vaultAddr)
	if err != nil {
		return err
	}
	if whitelisted {
		info, err := e.vaults.Info(vaultAddr)
		if err != nil {
			return err
		}
		if info.Router != crypto.MustAddressString(e.account) {
			return ErrVaultNotConnected
		}
	}
	if err := e.state.RouterVaultSet(vaultAddr, whitelisted); err != nil {
		return err
	}
	if err := e.updateOperatorIndex(v.Operator, vaultAddr, whitelisted); err != nil {
		return err
	}
	e.emit(events.RouterVaultUpdated{Vault: vaultAddr, Operator: v.Operator, Whitelisted: whitelisted})
	return nil
}

func (e *Engine) updateOperatorIndex(operator, vaultAddr [20]byte, include bool) error {
	listed, err := e.state.RouterOperatorVaultsGet(operator)
	if err != nil {
		return err
	}
	next := make([][20]byte, 0, len(listed)+1)
	for _, addr := range listed {
		if addr != vaultAddr {
			next = append(next, addr)
		}
	}
	if include {
		next = append(next, vaultAddr)
	}
	sort.Slice(next, func(i, j int) bool {
		return bytes.Compare(next[i][:], next[j][:]) < 0
	})
	return e.state.RouterOperatorVaultsSet(operator, next)
}

// OperatorVaults lists the operator's whitelisted vaults in address order.
func (e *Engine) OperatorVaults(operator [20]byte) ([][20]byte, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.RouterOperatorVaultsGet(operator)
}

// ListVaults returns every vault known to the router in address order.
func (e *Engine) ListVaults() ([][20]byte, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.RouterVaultList()
}

// Request returns a slashing request by id.
func (e *Engine) Request(id [32]byte) (*SlashingRequest, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	request, ok, err := e.state.RouterRequestGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRequestNotFound
	}
	return request.Clone(), nil
}

// RequestSlashing files a new slashing request from the service against the
// operator. Eligibility is judged with the registry state in force at the
// infraction timestamp, not at the current block.
func (e *Engine) RequestSlashing(sender, operator [20]byte, bips uint64, infractionTime int64, metadata string) ([32]byte, error) {
	var id [32]byte
	if e == nil || e.state == nil {
		return id, errNilState
	}
	if e.registry == nil {
		return id, errNilRegistry
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return id, err
	}
	now := e.now()
	if infractionTime > now {
		return id, ErrFutureInfraction
	}
	if bips == 0 {
		return id, ErrZeroBips
	}
	params, err := e.registry.SlashingParameters(sender, infractionTime)
	if err != nil {
		return id, err
	}
	if params == nil {
		return id, ErrSlashingDisabled
	}
	if bips > params.MaxBips {
		return id, ErrBipsExceedsMax
	}
	optedIn, err := e.registry.IsOptedIn(operator, sender, infractionTime)
	if err != nil {
		return id, err
	}
	if !optedIn {
		return id, ErrNotOptedIn
	}
	status, err := e.registry.StatusAtTime(operator, sender, infractionTime)
	if err != nil {
		return id, err
	}
	if status != registry.StatusActive {
		return id, ErrRelationshipNotActive
	}
	if activeID, ok, err := e.state.RouterActiveRequestGet(sender, operator); err != nil {
		return id, err
	} else if ok {
		active, found, err := e.state.RouterRequestGet(activeID)
		if err != nil {
			return id, err
		}
		if found && !active.Stage.Terminal() {
			return id, ErrInRequestedWindow
		}
	}
	id = ComputeRequestID(sender, operator, bips, infractionTime, metadata)
	if _, ok, err := e.state.RouterRequestGet(id); err != nil {
		return id, err
	} else if ok {
		return id, errDuplicateSlashingID
	}
	request := &SlashingRequest{
		ID:                 id,
		Service:            sender,
		Operator:           operator,
		Bips:               bips,
		InfractionTime:     infractionTime,
		Metadata:           metadata,
		Destination:        params.Destination,
		RequestTime:        now,
		ResolutionDeadline: now + int64(params.ResolutionWindow),
		Stage:              StageRequested,
	}
	if err := e.state.RouterRequestPut(request); err != nil {
		return id, err
	}
	if err := e.state.RouterActiveRequestSet(sender, operator, id); err != nil {
		return id, err
	}
	e.emit(events.SlashingRequested{
		ID:                 id,
		Service:            sender,
		Operator:           operator,
		Bips:               bips,
		InfractionTime:     infractionTime,
		ResolutionDeadline: request.ResolutionDeadline,
		Metadata:           metadata,
	})
	return id, nil
}

// LockSlashing moves the per-vault slash amounts into router custody once
// the resolution window has elapsed. The per-vault breakdown is computed
// over the operator's whitelisted vaults in address order.
func (e *Engine) LockSlashing(sender [20]byte, id [32]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.vaults == nil {
		return errNilVaults
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	request, ok, err := e.state.RouterRequestGet(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRequestNotFound
	}
	if request.Stage != StageRequested {
		return ErrWrongStage
	}
	if sender != request.Service {
		return fmt.Errorf("%w: only the requesting service can lock", ErrUnauthorized)
	}
	if e.now() < request.ResolutionDeadline {
		return ErrNotExpired
	}
	vaults, err := e.state.RouterOperatorVaultsGet(request.Operator)
	if err != nil {
		return err
	}
	locked := make([]VaultLock, 0, len(vaults))
	for _, vaultAddr := range vaults {
		totalAssets, err := e.vaults.TotalAssets(vaultAddr)
		if err != nil {
			return err
		}
		toSlash := new(big.Int).Mul(totalAssets, new(big.Int).SetUint64(request.Bips))
		toSlash.Quo(toSlash, big.NewInt(int64(registry.MaxSlashingBips)))
		if toSlash.Sign() == 0 {
			continue
		}
		if err := e.vaults.SlashLocked(e.account, vaultAddr, toSlash); err != nil {
			return err
		}
		locked = append(locked, VaultLock{Vault: vaultAddr, Amount: toSlash})
	}
	if len(locked) == 0 {
		return ErrNothingToSlash
	}
	request.Locked = locked
	request.Stage = StageLocked
	if err := e.state.RouterRequestPut(request); err != nil {
		return err
	}
	e.emit(events.SlashingLocked{
		ID:       id,
		Service:  request.Service,
		Operator: request.Operator,
		Locked:   lockBreakdown(locked),
		Total:    request.LockedTotal(),
	})
	return nil
}

func lockBreakdown(locked []VaultLock) []events.SlashingVaultLock {
	out := make([]events.SlashingVaultLock, 0, len(locked))
	for _, lock := range locked {
		amount := big.NewInt(0)
		if lock.Amount != nil {
			amount = new(big.Int).Set(lock.Amount)
		}
		out = append(out, events.SlashingVaultLock{Vault: lock.Vault, Amount: amount})
	}
	return out
}

// transferOut moves previously locked assets from the router account. The
// asset backend is resolved from the originating vault.
func (e *Engine) transferOut(lock VaultLock, to [20]byte) error {
	v, err := e.vaults.Get(lock.Vault)
	if err != nil {
		return err
	}
	switch v.AssetType {
	case vault.AssetTypeBank:
		return e.bank.Transfer(e.account, to, v.AssetDenom, lock.Amount)
	case vault.AssetTypeCW20:
		return e.tokens.Transfer(v.AssetToken, e.account, to, lock.Amount)
	default:
		return errUnknownVaultAssetType
	}
}

// FinalizeSlashing realizes the loss: guardrail approval is checked, and
// each locked amount is transferred to the destination snapshotted at
// request time, or retained by the router when no destination is set.
func (e *Engine) FinalizeSlashing(sender [20]byte, id [32]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.guardrail == nil {
		return errNilGuardrail
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	request, ok, err := e.state.RouterRequestGet(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRequestNotFound
	}
	if request.Stage != StageLocked {
		return ErrWrongStage
	}
	if sender != request.Service {
		return fmt.Errorf("%w: only the requesting service can finalize", ErrUnauthorized)
	}
	if !e.guardrail.IsApproved(id) {
		return ErrNotApproved
	}
	if request.Destination != [20]byte{} {
		for _, lock := range request.Locked {
			if err := e.transferOut(lock, request.Destination); err != nil {
				return err
			}
		}
	}
	if err := e.guardrail.MarkExecuted(id); err != nil {
		return err
	}
	request.Stage = StageFinalized
	if err := e.state.RouterRequestPut(request); err != nil {
		return err
	}
	if err := e.state.RouterActiveRequestClear(request.Service, request.Operator); err != nil {
		return err
	}
	e.emit(events.SlashingFinalized{
		ID:          id,
		Service:     request.Service,
		Operator:    request.Operator,
		Destination: request.Destination,
		Total:       request.LockedTotal(),
	})
	return nil
}

// CancelSlashing withdraws the request. In the locked stage the recorded
// amounts are returned to the originating vaults.
func (e *Engine) CancelSlashing(sender [20]byte, id [32]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	request, ok, err := e.state.RouterRequestGet(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRequestNotFound
	}
	if request.Stage.Terminal() {
		return ErrWrongStage
	}
	if sender != request.Service {
		return fmt.Errorf("%w: only the requesting service can cancel", ErrUnauthorized)
	}
	if request.Stage == StageLocked {
		for _, lock := range request.Locked {
			if err := e.transferOut(lock, lock.Vault); err != nil {
				return err
			}
		}
	}
	request.Stage = StageCancelled
	if err := e.state.RouterRequestPut(request); err != nil {
		return err
	}
	if err := e.state.RouterActiveRequestClear(request.Service, request.Operator); err != nil {
		return err
	}
	e.emit(events.SlashingCancelled{ID: id, Service: request.Service, Operator: request.Operator})
	return nil
}
