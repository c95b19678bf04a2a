package vault

import (
	"math/big"

	"restakechain/crypto"
)

// AssetType identifies the backend holding a vault's underlying asset.
type AssetType uint8

const (
	// AssetTypeUnspecified is the zero value and never persisted.
	AssetTypeUnspecified AssetType = iota
	// AssetTypeBank marks vaults custodying a native denomination.
	AssetTypeBank
	// AssetTypeCW20 marks vaults custodying a fungible-token balance.
	AssetTypeCW20
)

// Valid reports whether the asset type is supported.
func (t AssetType) Valid() bool {
	switch t {
	case AssetTypeBank, AssetTypeCW20:
		return true
	default:
		return false
	}
}

func (t AssetType) String() string {
	switch t {
	case AssetTypeBank:
		return "Bank"
	case AssetTypeCW20:
		return "Cw20"
	default:
		return "Unspecified"
	}
}

// Namespace returns the CAIP-19 asset namespace for the type.
func (t AssetType) Namespace() string {
	switch t {
	case AssetTypeBank:
		return AssetNamespaceBank
	case AssetTypeCW20:
		return AssetNamespaceCW20
	default:
		return ""
	}
}

// Vault is the persistent record of a per-(asset, operator) custodian. The
// asset reference and operator are fixed at creation. TotalShares counts every
// outstanding share including queued ones; for tokenized vaults it mirrors the
// receipt token supply.
type Vault struct {
	Address      [20]byte  `json:"address"`
	Operator     [20]byte  `json:"operator"`
	AssetType    AssetType `json:"assetType"`
	AssetDenom   string    `json:"assetDenom,omitempty"`
	AssetToken   [20]byte  `json:"assetToken,omitempty"`
	ReceiptToken [20]byte  `json:"receiptToken,omitempty"`
	TotalShares  *big.Int  `json:"totalShares"`
	CreatedAt    int64     `json:"createdAt"`
}

// Tokenized reports whether the share ledger lives on a receipt token.
func (v *Vault) Tokenized() bool {
	return v != nil && v.ReceiptToken != [20]byte{}
}

// AssetReference renders the asset reference segment for the vault: the denom
// for bank assets, the bech32 contract address for token assets.
func (v *Vault) AssetReference() string {
	if v == nil {
		return ""
	}
	switch v.AssetType {
	case AssetTypeBank:
		return v.AssetDenom
	case AssetTypeCW20:
		return crypto.MustAddressString(v.AssetToken)
	default:
		return ""
	}
}

// Clone deep copies the vault record.
func (v *Vault) Clone() *Vault {
	if v == nil {
		return nil
	}
	clone := *v
	clone.TotalShares = big.NewInt(0)
	if v.TotalShares != nil {
		clone.TotalShares = new(big.Int).Set(v.TotalShares)
	}
	return &clone
}

// QueuedWithdrawal is the single queue entry per controller. Concurrent
// requests from the same controller collapse into one entry: shares
// accumulate and the unlock timestamp only ever moves forward.
type QueuedWithdrawal struct {
	Controller      [20]byte `json:"controller"`
	Shares          *big.Int `json:"shares"`
	UnlockTimestamp int64    `json:"unlockTimestamp"`
}

// Clone deep copies the queue entry.
func (q *QueuedWithdrawal) Clone() *QueuedWithdrawal {
	if q == nil {
		return nil
	}
	clone := *q
	clone.Shares = big.NewInt(0)
	if q.Shares != nil {
		clone.Shares = new(big.Int).Set(q.Shares)
	}
	return &clone
}

// Info is the vault_info query response consumed by the router's whitelist
// verification and by off-chain indexers. Field shape is part of the stable
// interface.
type Info struct {
	TotalShares    *big.Int `json:"totalShares"`
	TotalAssets    *big.Int `json:"totalAssets"`
	Router         string   `json:"router"`
	Pauser         string   `json:"pauser"`
	Operator       string   `json:"operator"`
	AssetID        string   `json:"assetId"`
	AssetType      string   `json:"assetType"`
	AssetReference string   `json:"assetReference"`
	Contract       string   `json:"contract"`
	Version        string   `json:"version"`
}
