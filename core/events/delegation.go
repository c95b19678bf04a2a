package events

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"restakechain/core/types"
	"restakechain/crypto"
)

const (
	TypeDelegationOperatorRegistered = "delegation.operator_registered"
	TypeStakerDelegated              = "delegation.staker_delegated"
	TypeStakerUndelegated            = "delegation.staker_undelegated"
	TypeOperatorSharesIncreased      = "delegation.operator_shares_increased"
	TypeOperatorSharesDecreased      = "delegation.operator_shares_decreased"
	TypeWithdrawalQueued             = "delegation.withdrawal_queued"
	TypeWithdrawalCompleted          = "delegation.withdrawal_completed"
	TypeStrategyDeposit              = "strategy.deposit"
	TypeStrategyWithdraw             = "strategy.withdraw"
)

// DelegationOperatorRegistered marks an operator joining the delegation set.
type DelegationOperatorRegistered struct {
	Operator    [20]byte
	MetadataURI string
}

func (DelegationOperatorRegistered) EventType() string { return TypeDelegationOperatorRegistered }

func (e DelegationOperatorRegistered) Event() *types.Event {
	return &types.Event{
		Type: TypeDelegationOperatorRegistered,
		Attributes: map[string]string{
			"operator":     crypto.MustAddressString(e.Operator),
			"metadata_uri": e.MetadataURI,
		},
	}
}

// StakerDelegated records a staker pointing its shares at an operator.
type StakerDelegated struct {
	Staker   [20]byte
	Operator [20]byte
}

func (StakerDelegated) EventType() string { return TypeStakerDelegated }

func (e StakerDelegated) Event() *types.Event {
	return &types.Event{
		Type: TypeStakerDelegated,
		Attributes: map[string]string{
			"staker":   crypto.MustAddressString(e.Staker),
			"operator": crypto.MustAddressString(e.Operator),
		},
	}
}

// StakerUndelegated records a staker detaching from its operator.
type StakerUndelegated struct {
	Staker   [20]byte
	Operator [20]byte
}

func (StakerUndelegated) EventType() string { return TypeStakerUndelegated }

func (e StakerUndelegated) Event() *types.Event {
	return &types.Event{
		Type: TypeStakerUndelegated,
		Attributes: map[string]string{
			"staker":   crypto.MustAddressString(e.Staker),
			"operator": crypto.MustAddressString(e.Operator),
		},
	}
}

// OperatorSharesIncreased records share flow into an operator's index.
type OperatorSharesIncreased struct {
	Operator [20]byte
	Strategy [20]byte
	Shares   *big.Int
}

func (OperatorSharesIncreased) EventType() string { return TypeOperatorSharesIncreased }

func (e OperatorSharesIncreased) Event() *types.Event {
	return &types.Event{
		Type: TypeOperatorSharesIncreased,
		Attributes: map[string]string{
			"operator": crypto.MustAddressString(e.Operator),
			"strategy": crypto.MustAddressString(e.Strategy),
			"shares":   formatAmount(e.Shares),
		},
	}
}

// OperatorSharesDecreased records share flow out of an operator's index.
type OperatorSharesDecreased struct {
	Operator [20]byte
	Strategy [20]byte
	Shares   *big.Int
}

func (OperatorSharesDecreased) EventType() string { return TypeOperatorSharesDecreased }

func (e OperatorSharesDecreased) Event() *types.Event {
	return &types.Event{
		Type: TypeOperatorSharesDecreased,
		Attributes: map[string]string{
			"operator": crypto.MustAddressString(e.Operator),
			"strategy": crypto.MustAddressString(e.Strategy),
			"shares":   formatAmount(e.Shares),
		},
	}
}

// WithdrawalQueued records a delegation withdrawal entering the block-delay
// queue.
type WithdrawalQueued struct {
	Root       [32]byte
	Staker     [20]byte
	Operator   [20]byte
	Withdrawer [20]byte
	Nonce      uint64
	StartBlock uint64
}

func (WithdrawalQueued) EventType() string { return TypeWithdrawalQueued }

func (e WithdrawalQueued) Event() *types.Event {
	return &types.Event{
		Type: TypeWithdrawalQueued,
		Attributes: map[string]string{
			"root":        hex.EncodeToString(e.Root[:]),
			"staker":      crypto.MustAddressString(e.Staker),
			"operator":    crypto.MustAddressString(e.Operator),
			"withdrawer":  crypto.MustAddressString(e.Withdrawer),
			"nonce":       strconv.FormatUint(e.Nonce, 10),
			"start_block": strconv.FormatUint(e.StartBlock, 10),
		},
	}
}

// WithdrawalCompleted records a matured withdrawal settling.
type WithdrawalCompleted struct {
	Root            [32]byte
	Staker          [20]byte
	ReceiveAsTokens bool
}

func (WithdrawalCompleted) EventType() string { return TypeWithdrawalCompleted }

func (e WithdrawalCompleted) Event() *types.Event {
	return &types.Event{
		Type: TypeWithdrawalCompleted,
		Attributes: map[string]string{
			"root":              hex.EncodeToString(e.Root[:]),
			"staker":            crypto.MustAddressString(e.Staker),
			"receive_as_tokens": strconv.FormatBool(e.ReceiveAsTokens),
		},
	}
}

// StrategyDeposit records assets entering strategy custody.
type StrategyDeposit struct {
	Strategy    [20]byte
	Staker      [20]byte
	Assets      *big.Int
	Shares      *big.Int
	TotalShares *big.Int
}

func (StrategyDeposit) EventType() string { return TypeStrategyDeposit }

func (e StrategyDeposit) Event() *types.Event {
	return &types.Event{
		Type: TypeStrategyDeposit,
		Attributes: map[string]string{
			"strategy":     crypto.MustAddressString(e.Strategy),
			"staker":       crypto.MustAddressString(e.Staker),
			"assets":       formatAmount(e.Assets),
			"shares":       formatAmount(e.Shares),
			"total_shares": formatAmount(e.TotalShares),
		},
	}
}

// StrategyWithdraw records assets leaving strategy custody.
type StrategyWithdraw struct {
	Strategy    [20]byte
	Staker      [20]byte
	Recipient   [20]byte
	Assets      *big.Int
	Shares      *big.Int
	TotalShares *big.Int
}

func (StrategyWithdraw) EventType() string { return TypeStrategyWithdraw }

func (e StrategyWithdraw) Event() *types.Event {
	return &types.Event{
		Type: TypeStrategyWithdraw,
		Attributes: map[string]string{
			"strategy":     crypto.MustAddressString(e.Strategy),
			"staker":       crypto.MustAddressString(e.Staker),
			"recipient":    crypto.MustAddressString(e.Recipient),
			"assets":       formatAmount(e.Assets),
			"shares":       formatAmount(e.Shares),
			"total_shares": formatAmount(e.TotalShares),
		},
	}
}
