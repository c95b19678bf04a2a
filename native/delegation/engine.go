package delegation

import (
	"errors"
	"math/big"
	"time"

	"restakechain/core/events"
	nativecommon "restakechain/native/common"
)

const moduleName = "delegation"

// DefaultMinWithdrawalDelayBlocks applies until governance tunes the delay.
const DefaultMinWithdrawalDelayBlocks uint64 = 50_400

var (
	ErrOperatorNotRegistered = errors.New("delegation: operator not registered")
	ErrOperatorExists        = errors.New("delegation: operator already registered")
	ErrAlreadyDelegated      = errors.New("delegation: staker already delegated")
	ErrNotDelegated          = errors.New("delegation: staker not delegated")
	ErrWithdrawalNotFound    = errors.New("delegation: withdrawal not found")
	ErrWithdrawalNotReady    = errors.New("delegation: withdrawal delay has not elapsed")
	ErrUnauthorized          = errors.New("delegation: unauthorized")
	ErrInsufficientShares    = errors.New("delegation: insufficient shares")
	ErrInputMismatch         = errors.New("delegation: strategies and shares length mismatch")
	errNilState              = errors.New("delegation: state not configured")
	errNilManager            = errors.New("delegation: strategy manager not configured")
)

// engineState is the persistence surface for operator share bookkeeping and
// the withdrawal queue.
type engineState interface {
	DelegationOperatorGet(addr [20]byte) (*Operator, bool, error)
	DelegationOperatorPut(op *Operator) error
	DelegationDelegatedToGet(staker [20]byte) ([20]byte, bool, error)
	DelegationDelegatedToSet(staker, operator [20]byte) error
	DelegationDelegatedToClear(staker [20]byte) error
	DelegationOperatorSharesGet(operator, strategy [20]byte) (*big.Int, error)
	DelegationOperatorSharesSet(operator, strategy [20]byte, shares *big.Int) error
	DelegationNonceGet(staker [20]byte) (uint64, error)
	DelegationNonceSet(staker [20]byte, nonce uint64) error
	DelegationWithdrawalGet(root [32]byte) (*Withdrawal, bool, error)
	DelegationWithdrawalPut(root [32]byte, w *Withdrawal) error
	DelegationWithdrawalRemove(root [32]byte) error
	DelegationMinDelayGet() (uint64, bool, error)
	DelegationMinDelaySet(blocks uint64) error
}

// ManagerView is the slice of the strategy manager the delegation engine
// drives during undelegation and withdrawal completion.
type ManagerView interface {
	StakerShares(staker, strategy [20]byte) (*big.Int, error)
	StakerStrategies(staker [20]byte) ([][20]byte, error)
	RemoveShares(staker, strategy [20]byte, shares *big.Int) error
	AddShares(staker, strategy [20]byte, shares *big.Int) error
	WithdrawAsAssets(staker, strategy, recipient [20]byte, shares *big.Int) (*big.Int, error)
}

// Engine keeps the (operator, strategy) share index in sync with staker
// positions and runs the block-delayed withdrawal queue used when vaults are
// not self-custodial.
type Engine struct {
	state    engineState
	manager  ManagerView
	emitter  events.Emitter
	pauses   nativecommon.PauseView
	nowFn    func() int64
	heightFn func() uint64

	owner [20]byte
}

// NewEngine constructs a delegation engine with default no-op dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
		heightFn: func() uint64 { return 0 },
	}
}

// SetState configures the state backend.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetManager wires the strategy manager.
func (e *Engine) SetManager(m ManagerView) { e.manager = m }

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

// SetHeightFunc overrides the block height source.
func (e *Engine) SetHeightFunc(height func() uint64) {
	if height == nil {
		e.heightFn = func() uint64 { return 0 }
		return
	}
	e.heightFn = height
}

// SetOwner configures the administrative owner for delay tuning.
func (e *Engine) SetOwner(owner [20]byte) { e.owner = owner }

func (e *Engine) emit(event events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(event)
}

func (e *Engine) height() uint64 { return e.heightFn() }

// MinWithdrawalDelayBlocks returns the configured queue delay.
func (e *Engine) MinWithdrawalDelayBlocks() uint64 {
	if e == nil || e.state == nil {
		return DefaultMinWithdrawalDelayBlocks
	}
	blocks, ok, err := e.state.DelegationMinDelayGet()
	if err != nil || !ok {
		return DefaultMinWithdrawalDelayBlocks
	}
	return blocks
}

// SetMinWithdrawalDelayBlocks updates the queue delay. Owner only.
func (e *Engine) SetMinWithdrawalDelayBlocks(sender [20]byte, blocks uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if sender != e.owner {
		return ErrUnauthorized
	}
	return e.state.DelegationMinDelaySet(blocks)
}

// RegisterAsOperator adds the sender to the delegation operator set.
func (e *Engine) RegisterAsOperator(sender [20]byte, metadataURI string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if _, ok, err := e.state.DelegationOperatorGet(sender); err != nil {
		return err
	} else if ok {
		return ErrOperatorExists
	}
	op := &Operator{Address: sender, MetadataURI: metadataURI, RegisteredAt: e.nowFn()}
	if err := e.state.DelegationOperatorPut(op); err != nil {
		return err
	}
	// Operators are self-delegated by convention.
	if err := e.state.DelegationDelegatedToSet(sender, sender); err != nil {
		return err
	}
	e.emit(events.DelegationOperatorRegistered{Operator: sender, MetadataURI: metadataURI})
	return nil
}

// IsDelegated reports whether the staker currently delegates to an operator.
func (e *Engine) IsDelegated(staker [20]byte) (bool, [20]byte, error) {
	if e == nil || e.state == nil {
		return false, [20]byte{}, errNilState
	}
	operator, ok, err := e.state.DelegationDelegatedToGet(staker)
	return ok, operator, err
}

// OperatorShares returns the operator's share total in a strategy.
func (e *Engine) OperatorShares(operator, strategy [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	shares, err := e.state.DelegationOperatorSharesGet(operator, strategy)
	if err != nil {
		return nil, err
	}
	if shares == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(shares), nil
}

func (e *Engine) addOperatorShares(operator, strategy [20]byte, shares *big.Int) error {
	current, err := e.state.DelegationOperatorSharesGet(operator, strategy)
	if err != nil {
		return err
	}
	if current == nil {
		current = big.NewInt(0)
	}
	if err := e.state.DelegationOperatorSharesSet(operator, strategy, new(big.Int).Add(current, shares)); err != nil {
		return err
	}
	e.emit(events.OperatorSharesIncreased{Operator: operator, Strategy: strategy, Shares: new(big.Int).Set(shares)})
	return nil
}

func (e *Engine) subOperatorShares(operator, strategy [20]byte, shares *big.Int) error {
	current, err := e.state.DelegationOperatorSharesGet(operator, strategy)
	if err != nil {
		return err
	}
	if current == nil || current.Cmp(shares) < 0 {
		return ErrInsufficientShares
	}
	if err := e.state.DelegationOperatorSharesSet(operator, strategy, new(big.Int).Sub(current, shares)); err != nil {
		return err
	}
	e.emit(events.OperatorSharesDecreased{Operator: operator, Strategy: strategy, Shares: new(big.Int).Set(shares)})
	return nil
}

// DelegateTo points the staker's current and future strategy shares at the
// operator.
func (e *Engine) DelegateTo(staker, operator [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.manager == nil {
		return errNilManager
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if _, ok, err := e.state.DelegationOperatorGet(operator); err != nil {
		return err
	} else if !ok {
		return ErrOperatorNotRegistered
	}
	if _, ok, err := e.state.DelegationDelegatedToGet(staker); err != nil {
		return err
	} else if ok {
		return ErrAlreadyDelegated
	}
	if err := e.state.DelegationDelegatedToSet(staker, operator); err != nil {
		return err
	}
	strategies, err := e.manager.StakerStrategies(staker)
	if err != nil {
		return err
	}
	for _, strategy := range strategies {
		shares, err := e.manager.StakerShares(staker, strategy)
		if err != nil {
			return err
		}
		if shares.Sign() == 0 {
			continue
		}
		if err := e.addOperatorShares(operator, strategy, shares); err != nil {
			return err
		}
	}
	e.emit(events.StakerDelegated{Staker: staker, Operator: operator})
	return nil
}

// IncreaseDelegatedShares is the deposit notification from the strategy
// manager. New shares flow to the staker's operator, if any.
func (e *Engine) IncreaseDelegatedShares(staker, strategy [20]byte, shares *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if shares == nil || shares.Sign() <= 0 {
		return nil
	}
	operator, ok, err := e.state.DelegationDelegatedToGet(staker)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return e.addOperatorShares(operator, strategy, shares)
}

// QueueWithdrawal removes the given shares from the staker (and its
// operator) and parks them behind the block delay. Returns the withdrawal
// root used to complete it later.
func (e *Engine) QueueWithdrawal(staker, withdrawer [20]byte, strategies [][20]byte, shares []*big.Int) ([32]byte, error) {
	var root [32]byte
	if e == nil || e.state == nil {
		return root, errNilState
	}
	if e.manager == nil {
		return root, errNilManager
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return root, err
	}
	if len(strategies) == 0 || len(strategies) != len(shares) {
		return root, ErrInputMismatch
	}
	operator, delegated, err := e.state.DelegationDelegatedToGet(staker)
	if err != nil {
		return root, err
	}
	for i, strategy := range strategies {
		amount := shares[i]
		if amount == nil || amount.Sign() <= 0 {
			return root, ErrInsufficientShares
		}
		if err := e.manager.RemoveShares(staker, strategy, amount); err != nil {
			return root, err
		}
		if delegated {
			if err := e.subOperatorShares(operator, strategy, amount); err != nil {
				return root, err
			}
		}
	}
	nonce, err := e.state.DelegationNonceGet(staker)
	if err != nil {
		return root, err
	}
	if err := e.state.DelegationNonceSet(staker, nonce+1); err != nil {
		return root, err
	}
	withdrawal := &Withdrawal{
		Staker:      staker,
		DelegatedTo: operator,
		Withdrawer:  withdrawer,
		Nonce:       nonce,
		StartBlock:  e.height(),
		Strategies:  strategies,
		Shares:      shares,
	}
	root = withdrawal.Root()
	if err := e.state.DelegationWithdrawalPut(root, withdrawal); err != nil {
		return root, err
	}
	e.emit(events.WithdrawalQueued{
		Root:       root,
		Staker:     staker,
		Operator:   operator,
		Withdrawer: withdrawer,
		Nonce:      nonce,
		StartBlock: withdrawal.StartBlock,
	})
	return root, nil
}

// Undelegate detaches the staker from its operator and queues every
// remaining strategy position for withdrawal.
func (e *Engine) Undelegate(staker [20]byte) ([][32]byte, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.manager == nil {
		return nil, errNilManager
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	operator, ok, err := e.state.DelegationDelegatedToGet(staker)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotDelegated
	}
	strategies, err := e.manager.StakerStrategies(staker)
	if err != nil {
		return nil, err
	}
	var roots [][32]byte
	var queuedStrategies [][20]byte
	var queuedShares []*big.Int
	for _, strategy := range strategies {
		shares, err := e.manager.StakerShares(staker, strategy)
		if err != nil {
			return nil, err
		}
		if shares.Sign() == 0 {
			continue
		}
		queuedStrategies = append(queuedStrategies, strategy)
		queuedShares = append(queuedShares, shares)
	}
	if len(queuedStrategies) > 0 {
		root, err := e.QueueWithdrawal(staker, staker, queuedStrategies, queuedShares)
		if err != nil {
			return nil, err
		}
		roots = append(roots, root)
	}
	if err := e.state.DelegationDelegatedToClear(staker); err != nil {
		return nil, err
	}
	e.emit(events.StakerUndelegated{Staker: staker, Operator: operator})
	return roots, nil
}

// CompleteQueuedWithdrawal settles a matured withdrawal. With
// receiveAsTokens the underlying assets leave the strategy for the
// withdrawer; otherwise the shares are re-credited to the staker and flow
// back to its current operator. The middlewareTimesIndex parameter is
// reserved and currently ignored.
func (e *Engine) CompleteQueuedWithdrawal(sender [20]byte, root [32]byte, middlewareTimesIndex uint64, receiveAsTokens bool) error {
	_ = middlewareTimesIndex
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.manager == nil {
		return errNilManager
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	withdrawal, ok, err := e.state.DelegationWithdrawalGet(root)
	if err != nil {
		return err
	}
	if !ok {
		return ErrWithdrawalNotFound
	}
	if sender != withdrawal.Withdrawer {
		return ErrUnauthorized
	}
	if e.height() < withdrawal.StartBlock+e.MinWithdrawalDelayBlocks() {
		return ErrWithdrawalNotReady
	}
	for i, strategy := range withdrawal.Strategies {
		shares := withdrawal.Shares[i]
		if receiveAsTokens {
			if _, err := e.manager.WithdrawAsAssets(withdrawal.Staker, strategy, withdrawal.Withdrawer, shares); err != nil {
				return err
			}
			continue
		}
		if err := e.manager.AddShares(withdrawal.Staker, strategy, shares); err != nil {
			return err
		}
		if err := e.IncreaseDelegatedShares(withdrawal.Staker, strategy, shares); err != nil {
			return err
		}
	}
	if err := e.state.DelegationWithdrawalRemove(root); err != nil {
		return err
	}
	e.emit(events.WithdrawalCompleted{Root: root, Staker: withdrawal.Staker, ReceiveAsTokens: receiveAsTokens})
	return nil
}

// PendingWithdrawal returns a queued withdrawal by root.
func (e *Engine) PendingWithdrawal(root [32]byte) (*Withdrawal, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	w, ok, err := e.state.DelegationWithdrawalGet(root)
	if err != nil || !ok {
		return nil, ok, err
	}
	return w.Clone(), true, nil
}
