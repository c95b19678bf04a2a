package vaultrouter

import (
	"encoding/binary"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SlashingStage tracks a slashing request through the three-stage protocol.
type SlashingStage uint8

const (
	// StageUnspecified is the zero value and never persisted.
	StageUnspecified SlashingStage = iota
	// StageRequested is a filed request inside its resolution window.
	StageRequested
	// StageLocked means the per-vault amounts moved into router custody.
	StageLocked
	// StageFinalized means the locked assets reached their destination.
	StageFinalized
	// StageCancelled means the service withdrew the request; locked assets
	// were returned to the originating vaults.
	StageCancelled
)

func (s SlashingStage) String() string {
	switch s {
	case StageRequested:
		return "requested"
	case StageLocked:
		return "locked"
	case StageFinalized:
		return "finalized"
	case StageCancelled:
		return "cancelled"
	default:
		return "unspecified"
	}
}

// Terminal reports whether the stage admits no further transitions.
func (s SlashingStage) Terminal() bool {
	return s == StageFinalized || s == StageCancelled
}

// VaultLock records the assets moved out of one vault during lock.
type VaultLock struct {
	Vault  [20]byte `json:"vault"`
	Amount *big.Int `json:"amount"`
}

// SlashingRequest is the persistent record of one slashing attempt. The
// destination is snapshotted from the slashing parameters in force at the
// infraction timestamp so a later parameter change cannot redirect the
// payout.
type SlashingRequest struct {
	ID                 [32]byte      `json:"id"`
	Service            [20]byte      `json:"service"`
	Operator           [20]byte      `json:"operator"`
	Bips               uint64        `json:"bips"`
	InfractionTime     int64         `json:"infractionTime"`
	Metadata           string        `json:"metadata"`
	Destination        [20]byte      `json:"destination"`
	RequestTime        int64         `json:"requestTime"`
	ResolutionDeadline int64         `json:"resolutionDeadline"`
	Stage              SlashingStage `json:"stage"`
	Locked             []VaultLock   `json:"locked,omitempty"`
}

// Clone deep copies the request record.
func (r *SlashingRequest) Clone() *SlashingRequest {
	if r == nil {
		return nil
	}
	clone := *r
	if len(r.Locked) > 0 {
		clone.Locked = make([]VaultLock, len(r.Locked))
		for i, lock := range r.Locked {
			clone.Locked[i] = VaultLock{Vault: lock.Vault, Amount: big.NewInt(0)}
			if lock.Amount != nil {
				clone.Locked[i].Amount = new(big.Int).Set(lock.Amount)
			}
		}
	}
	return &clone
}

// LockedTotal sums the per-vault locked amounts.
func (r *SlashingRequest) LockedTotal() *big.Int {
	total := big.NewInt(0)
	if r == nil {
		return total
	}
	for _, lock := range r.Locked {
		if lock.Amount != nil {
			total.Add(total, lock.Amount)
		}
	}
	return total
}

// ComputeRequestID derives the deterministic 32-byte id of a slashing
// request from its identifying fields.
func ComputeRequestID(service, operator [20]byte, bips uint64, infractionTime int64, metadata string) [32]byte {
	var bipsBuf, timeBuf [8]byte
	binary.BigEndian.PutUint64(bipsBuf[:], bips)
	binary.BigEndian.PutUint64(timeBuf[:], uint64(infractionTime))
	sum := ethcrypto.Keccak256(
		[]byte("restake/slashing"),
		service[:],
		operator[:],
		bipsBuf[:],
		timeBuf[:],
		[]byte(metadata),
	)
	var id [32]byte
	copy(id[:], sum)
	return id
}
