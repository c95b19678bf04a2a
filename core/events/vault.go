package events

import (
	"math/big"
	"strconv"

	"restakechain/core/types"
	"restakechain/crypto"
)

const (
	TypeVaultCreated          = "VaultCreated"
	TypeVaultDeposit          = "Deposit"
	TypeVaultWithdraw         = "Withdraw"
	TypeVaultQueueWithdrawal  = "QueueWithdrawalTo"
	TypeVaultRedeemWithdrawal = "RedeemWithdrawalTo"
	TypeVaultSlashLocked      = "SlashLocked"
	TypeVaultProxyApproval    = "SetApproveProxy"
)

// VaultCreated marks the registration of a new vault instance.
type VaultCreated struct {
	Vault        [20]byte
	Operator     [20]byte
	AssetID      string
	ReceiptToken [20]byte
	Tokenized    bool
}

func (VaultCreated) EventType() string { return TypeVaultCreated }

func (e VaultCreated) Event() *types.Event {
	attrs := map[string]string{
		"vault":    crypto.MustAddressString(e.Vault),
		"operator": crypto.MustAddressString(e.Operator),
		"asset_id": e.AssetID,
	}
	if e.Tokenized {
		attrs["receipt_token"] = crypto.MustAddressString(e.ReceiptToken)
	}
	return &types.Event{Type: TypeVaultCreated, Attributes: attrs}
}

// VaultDeposit is emitted when assets are exchanged for freshly minted
// shares.
type VaultDeposit struct {
	Vault       [20]byte
	Sender      [20]byte
	Recipient   [20]byte
	Assets      *big.Int
	Shares      *big.Int
	TotalShares *big.Int
}

func (VaultDeposit) EventType() string { return TypeVaultDeposit }

func (e VaultDeposit) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultDeposit,
		Attributes: map[string]string{
			"vault":        crypto.MustAddressString(e.Vault),
			"sender":       crypto.MustAddressString(e.Sender),
			"recipient":    crypto.MustAddressString(e.Recipient),
			"assets":       formatAmount(e.Assets),
			"shares":       formatAmount(e.Shares),
			"total_shares": formatAmount(e.TotalShares),
		},
	}
}

// VaultWithdraw is emitted on a direct (non-queued) withdrawal.
type VaultWithdraw struct {
	Vault       [20]byte
	Sender      [20]byte
	Recipient   [20]byte
	Assets      *big.Int
	Shares      *big.Int
	TotalShares *big.Int
}

func (VaultWithdraw) EventType() string { return TypeVaultWithdraw }

func (e VaultWithdraw) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultWithdraw,
		Attributes: map[string]string{
			"vault":        crypto.MustAddressString(e.Vault),
			"sender":       crypto.MustAddressString(e.Sender),
			"recipient":    crypto.MustAddressString(e.Recipient),
			"assets":       formatAmount(e.Assets),
			"shares":       formatAmount(e.Shares),
			"total_shares": formatAmount(e.TotalShares),
		},
	}
}

// VaultQueueWithdrawal is emitted when shares enter the controller-scoped
// withdrawal queue.
type VaultQueueWithdrawal struct {
	Vault             [20]byte
	Sender            [20]byte
	Owner             [20]byte
	Controller        [20]byte
	QueuedShares      *big.Int
	NewUnlockTime     int64
	TotalQueuedShares *big.Int
}

func (VaultQueueWithdrawal) EventType() string { return TypeVaultQueueWithdrawal }

func (e VaultQueueWithdrawal) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultQueueWithdrawal,
		Attributes: map[string]string{
			"vault":                crypto.MustAddressString(e.Vault),
			"sender":               crypto.MustAddressString(e.Sender),
			"owner":                crypto.MustAddressString(e.Owner),
			"controller":           crypto.MustAddressString(e.Controller),
			"queued_shares":        formatAmount(e.QueuedShares),
			"new_unlock_timestamp": strconv.FormatInt(e.NewUnlockTime, 10),
			"total_queued_shares":  formatAmount(e.TotalQueuedShares),
		},
	}
}

// VaultRedeemWithdrawal is emitted when queued shares are burned for assets.
type VaultRedeemWithdrawal struct {
	Vault       [20]byte
	Sender      [20]byte
	Controller  [20]byte
	Recipient   [20]byte
	Assets      *big.Int
	Shares      *big.Int
	TotalShares *big.Int
}

func (VaultRedeemWithdrawal) EventType() string { return TypeVaultRedeemWithdrawal }

func (e VaultRedeemWithdrawal) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultRedeemWithdrawal,
		Attributes: map[string]string{
			"vault":        crypto.MustAddressString(e.Vault),
			"sender":       crypto.MustAddressString(e.Sender),
			"controller":   crypto.MustAddressString(e.Controller),
			"recipient":    crypto.MustAddressString(e.Recipient),
			"assets":       formatAmount(e.Assets),
			"sub_shares":   formatAmount(e.Shares),
			"total_shares": formatAmount(e.TotalShares),
		},
	}
}

// VaultSlashLocked is emitted when the router moves slashed assets out of the
// vault into its own custody.
type VaultSlashLocked struct {
	Vault    [20]byte
	Operator [20]byte
	Amount   *big.Int
}

func (VaultSlashLocked) EventType() string { return TypeVaultSlashLocked }

func (e VaultSlashLocked) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultSlashLocked,
		Attributes: map[string]string{
			"vault":    crypto.MustAddressString(e.Vault),
			"operator": crypto.MustAddressString(e.Operator),
			"amount":   formatAmount(e.Amount),
		},
	}
}

// VaultProxyApproval is emitted when an owner approves or revokes a proxy.
type VaultProxyApproval struct {
	Vault    [20]byte
	Owner    [20]byte
	Proxy    [20]byte
	Approved bool
}

func (VaultProxyApproval) EventType() string { return TypeVaultProxyApproval }

func (e VaultProxyApproval) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultProxyApproval,
		Attributes: map[string]string{
			"vault":   crypto.MustAddressString(e.Vault),
			"owner":   crypto.MustAddressString(e.Owner),
			"proxy":   crypto.MustAddressString(e.Proxy),
			"approve": strconv.FormatBool(e.Approved),
		},
	}
}
