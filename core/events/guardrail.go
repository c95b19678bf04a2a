package events

import (
	"encoding/hex"
	"strconv"

	"restakechain/core/types"
	"restakechain/crypto"
)

const (
	TypeGuardrailProposed = "guardrail.proposed"
	TypeGuardrailVoted    = "guardrail.voted"
	TypeGuardrailClosed   = "guardrail.closed"
	TypeGuardrailExecuted = "guardrail.executed"
)

// GuardrailProposed is emitted when a member opens an approval vote for a
// slashing id.
type GuardrailProposed struct {
	SlashingID [32]byte
	Proposer   [20]byte
	Reason     string
	Expiration int64
	Status     string
}

func (GuardrailProposed) EventType() string { return TypeGuardrailProposed }

func (e GuardrailProposed) Event() *types.Event {
	return &types.Event{
		Type: TypeGuardrailProposed,
		Attributes: map[string]string{
			"slashing_id": hex.EncodeToString(e.SlashingID[:]),
			"proposer":    crypto.MustAddressString(e.Proposer),
			"reason":      e.Reason,
			"expiration":  strconv.FormatInt(e.Expiration, 10),
			"status":      e.Status,
		},
	}
}

// GuardrailVoted is emitted when a member records a ballot.
type GuardrailVoted struct {
	SlashingID [32]byte
	Voter      [20]byte
	Option     string
	Weight     uint64
	Status     string
}

func (GuardrailVoted) EventType() string { return TypeGuardrailVoted }

func (e GuardrailVoted) Event() *types.Event {
	return &types.Event{
		Type: TypeGuardrailVoted,
		Attributes: map[string]string{
			"slashing_id": hex.EncodeToString(e.SlashingID[:]),
			"voter":       crypto.MustAddressString(e.Voter),
			"option":      e.Option,
			"weight":      strconv.FormatUint(e.Weight, 10),
			"status":      e.Status,
		},
	}
}

// GuardrailClosed is emitted when an expired open proposal is rejected.
type GuardrailClosed struct {
	SlashingID [32]byte
	Sender     [20]byte
}

func (GuardrailClosed) EventType() string { return TypeGuardrailClosed }

func (e GuardrailClosed) Event() *types.Event {
	return &types.Event{
		Type: TypeGuardrailClosed,
		Attributes: map[string]string{
			"slashing_id": hex.EncodeToString(e.SlashingID[:]),
			"sender":      crypto.MustAddressString(e.Sender),
		},
	}
}

// GuardrailExecuted is emitted when a passed proposal is consumed by a
// slashing finalize.
type GuardrailExecuted struct {
	SlashingID [32]byte
}

func (GuardrailExecuted) EventType() string { return TypeGuardrailExecuted }

func (e GuardrailExecuted) Event() *types.Event {
	return &types.Event{
		Type: TypeGuardrailExecuted,
		Attributes: map[string]string{
			"slashing_id": hex.EncodeToString(e.SlashingID[:]),
		},
	}
}
