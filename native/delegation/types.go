package delegation

import (
	"encoding/binary"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"restakechain/native/vault"
)

// Strategy is a centrally-custodied share pool over one asset. The share
// accounting is the same virtual-offset engine the vaults use, but custody
// and the share ledger live with the strategy manager instead of a
// per-operator vault account.
type Strategy struct {
	Address     [20]byte        `json:"address"`
	AssetType   vault.AssetType `json:"assetType"`
	AssetDenom  string          `json:"assetDenom,omitempty"`
	AssetToken  [20]byte        `json:"assetToken,omitempty"`
	TotalShares *big.Int        `json:"totalShares"`
	CreatedAt   int64           `json:"createdAt"`
}

// Clone deep copies the strategy record.
func (s *Strategy) Clone() *Strategy {
	if s == nil {
		return nil
	}
	clone := *s
	clone.TotalShares = big.NewInt(0)
	if s.TotalShares != nil {
		clone.TotalShares = new(big.Int).Set(s.TotalShares)
	}
	return &clone
}

// Operator is a delegation-side operator registration.
type Operator struct {
	Address      [20]byte `json:"address"`
	MetadataURI  string   `json:"metadataUri"`
	RegisteredAt int64    `json:"registeredAt"`
}

// Withdrawal is a queued exit from one or more strategies. It unlocks after
// MinWithdrawalDelayBlocks and is keyed by its deterministic root.
type Withdrawal struct {
	Staker      [20]byte   `json:"staker"`
	DelegatedTo [20]byte   `json:"delegatedTo"`
	Withdrawer  [20]byte   `json:"withdrawer"`
	Nonce       uint64     `json:"nonce"`
	StartBlock  uint64     `json:"startBlock"`
	Strategies  [][20]byte `json:"strategies"`
	Shares      []*big.Int `json:"shares"`
}

// Clone deep copies the withdrawal record.
func (w *Withdrawal) Clone() *Withdrawal {
	if w == nil {
		return nil
	}
	clone := *w
	clone.Strategies = make([][20]byte, len(w.Strategies))
	copy(clone.Strategies, w.Strategies)
	clone.Shares = make([]*big.Int, len(w.Shares))
	for i, s := range w.Shares {
		clone.Shares[i] = big.NewInt(0)
		if s != nil {
			clone.Shares[i] = new(big.Int).Set(s)
		}
	}
	return &clone
}

// Root derives the deterministic 32-byte key of the withdrawal.
func (w *Withdrawal) Root() [32]byte {
	var nonceBuf, blockBuf [8]byte
	binary.BigEndian.PutUint64(nonceBuf[:], w.Nonce)
	binary.BigEndian.PutUint64(blockBuf[:], w.StartBlock)
	parts := [][]byte{
		[]byte("restake/withdrawal"),
		w.Staker[:],
		w.DelegatedTo[:],
		w.Withdrawer[:],
		nonceBuf[:],
		blockBuf[:],
	}
	for i, strategy := range w.Strategies {
		parts = append(parts, strategy[:])
		shares := big.NewInt(0)
		if i < len(w.Shares) && w.Shares[i] != nil {
			shares = w.Shares[i]
		}
		parts = append(parts, shares.Bytes())
	}
	sum := ethcrypto.Keccak256(parts...)
	var root [32]byte
	copy(root[:], sum)
	return root
}
