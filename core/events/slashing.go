package events

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"restakechain/core/types"
	"restakechain/crypto"
)

const (
	TypeRouterVaultUpdated            = "VaultUpdated"
	TypeWithdrawalLockPeriodUpdated   = "WithdrawalLockPeriodUpdated"
	TypeSlashingRequested             = "SlashingRequested"
	TypeSlashingLocked                = "SlashingLocked"
	TypeSlashingFinalized             = "SlashingFinalized"
	TypeSlashingCancelled             = "SlashingCancelled"
)

// RouterVaultUpdated records a vault entering or leaving the whitelist.
type RouterVaultUpdated struct {
	Vault       [20]byte
	Operator    [20]byte
	Whitelisted bool
}

func (RouterVaultUpdated) EventType() string { return TypeRouterVaultUpdated }

func (e RouterVaultUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeRouterVaultUpdated,
		Attributes: map[string]string{
			"vault":       crypto.MustAddressString(e.Vault),
			"operator":    crypto.MustAddressString(e.Operator),
			"whitelisted": strconv.FormatBool(e.Whitelisted),
		},
	}
}

// WithdrawalLockPeriodUpdated records a change of the global lock period.
type WithdrawalLockPeriodUpdated struct {
	Seconds uint64
}

func (WithdrawalLockPeriodUpdated) EventType() string { return TypeWithdrawalLockPeriodUpdated }

func (e WithdrawalLockPeriodUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeWithdrawalLockPeriodUpdated,
		Attributes: map[string]string{
			"withdrawal_lock_period": strconv.FormatUint(e.Seconds, 10),
		},
	}
}

// SlashingRequested is emitted when a service files a slashing request.
type SlashingRequested struct {
	ID                 [32]byte
	Service            [20]byte
	Operator           [20]byte
	Bips               uint64
	InfractionTime     int64
	ResolutionDeadline int64
	Metadata           string
}

func (SlashingRequested) EventType() string { return TypeSlashingRequested }

func (e SlashingRequested) Event() *types.Event {
	return &types.Event{
		Type: TypeSlashingRequested,
		Attributes: map[string]string{
			"id":                  hex.EncodeToString(e.ID[:]),
			"service":             crypto.MustAddressString(e.Service),
			"operator":            crypto.MustAddressString(e.Operator),
			"bips":                strconv.FormatUint(e.Bips, 10),
			"infraction_time":     strconv.FormatInt(e.InfractionTime, 10),
			"resolution_deadline": strconv.FormatInt(e.ResolutionDeadline, 10),
			"reason":              e.Metadata,
		},
	}
}

// SlashingVaultLock is one vault's share of a locked request.
type SlashingVaultLock struct {
	Vault  [20]byte
	Amount *big.Int
}

// SlashingLocked is emitted when locked amounts move into router custody.
// The per-vault breakdown rides in indexed attributes, in the deterministic
// vault iteration order.
type SlashingLocked struct {
	ID       [32]byte
	Service  [20]byte
	Operator [20]byte
	Locked   []SlashingVaultLock
	Total    *big.Int
}

func (SlashingLocked) EventType() string { return TypeSlashingLocked }

func (e SlashingLocked) Event() *types.Event {
	attrs := map[string]string{
		"id":       hex.EncodeToString(e.ID[:]),
		"service":  crypto.MustAddressString(e.Service),
		"operator": crypto.MustAddressString(e.Operator),
		"total":    formatAmount(e.Total),
	}
	for i, lock := range e.Locked {
		prefix := "vault_" + strconv.Itoa(i)
		attrs[prefix] = crypto.MustAddressString(lock.Vault)
		attrs[prefix+"_amount"] = formatAmount(lock.Amount)
	}
	return &types.Event{Type: TypeSlashingLocked, Attributes: attrs}
}

// SlashingFinalized is emitted when the locked assets reach the slashing
// destination (or are retained by the router).
type SlashingFinalized struct {
	ID          [32]byte
	Service     [20]byte
	Operator    [20]byte
	Destination [20]byte
	Total       *big.Int
}

func (SlashingFinalized) EventType() string { return TypeSlashingFinalized }

func (e SlashingFinalized) Event() *types.Event {
	attrs := map[string]string{
		"id":       hex.EncodeToString(e.ID[:]),
		"service":  crypto.MustAddressString(e.Service),
		"operator": crypto.MustAddressString(e.Operator),
		"total":    formatAmount(e.Total),
	}
	if e.Destination != [20]byte{} {
		attrs["destination"] = crypto.MustAddressString(e.Destination)
	}
	return &types.Event{Type: TypeSlashingFinalized, Attributes: attrs}
}

// SlashingCancelled is emitted when the service withdraws a request.
type SlashingCancelled struct {
	ID       [32]byte
	Service  [20]byte
	Operator [20]byte
}

func (SlashingCancelled) EventType() string { return TypeSlashingCancelled }

func (e SlashingCancelled) Event() *types.Event {
	return &types.Event{
		Type: TypeSlashingCancelled,
		Attributes: map[string]string{
			"id":       hex.EncodeToString(e.ID[:]),
			"service":  crypto.MustAddressString(e.Service),
			"operator": crypto.MustAddressString(e.Operator),
		},
	}
}
