package vault

import (
	"math/big"

	"github.com/holiman/uint256"
)

// OffsetValue is added to both sides of the share/asset ratio to mitigate the
// first-depositor share inflation attack. With the offset an empty vault
// enforces a 1000/1000 conversion rate: any donation of 1000 or less is fully
// captured by the vault, and a larger donation costs the attacker more than it
// takes from subsequent depositors.
// See https://docs.openzeppelin.com/contracts/4.x/erc4626#inflation-attack
const OffsetValue = 1_000

var (
	offset     = uint256.NewInt(OffsetValue)
	maxUint128 = func() *uint256.Int {
		v := new(uint256.Int).Lsh(uint256.NewInt(1), 128)
		return v.SubUint64(v, 1)
	}()
)

// toUint128 converts a non-negative big integer into the 128-bit working range
// of the accounting engine.
func toUint128(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return uint256.NewInt(0), nil
	}
	if v.Sign() < 0 {
		return nil, ErrUnderflow
	}
	out, overflow := uint256.FromBig(v)
	if overflow || out.Gt(maxUint128) {
		return nil, ErrOverflow
	}
	return out, nil
}

// VirtualOffset converts between assets and shares at the current exchange
// rate. Amounts are bounded to 128 bits; intermediate products use the full
// 256-bit width so the multiplications cannot overflow.
//
// Only the vault totals carry the virtual offset. Individual staker shares are
// stored elsewhere, which is what allows the opaque and tokenized share
// ledgers to reuse the same engine.
type VirtualOffset struct {
	totalShares   *uint256.Int
	totalAssets   *uint256.Int
	virtualShares *uint256.Int
	virtualAssets *uint256.Int
}

// NewVirtualOffset captures the exchange rate for the supplied totals.
func NewVirtualOffset(totalShares, totalAssets *big.Int) (*VirtualOffset, error) {
	shares, err := toUint128(totalShares)
	if err != nil {
		return nil, err
	}
	assets, err := toUint128(totalAssets)
	if err != nil {
		return nil, err
	}
	v := &VirtualOffset{totalShares: shares, totalAssets: assets}
	v.refresh()
	return v, nil
}

func (v *VirtualOffset) refresh() {
	v.virtualShares = new(uint256.Int).Add(v.totalShares, offset)
	v.virtualAssets = new(uint256.Int).Add(v.totalAssets, offset)
}

// TotalShares returns the real (non-virtual) total shares.
func (v *VirtualOffset) TotalShares() *big.Int {
	return v.totalShares.ToBig()
}

// TotalAssets returns the assets under management.
func (v *VirtualOffset) TotalAssets() *big.Int {
	return v.totalAssets.ToBig()
}

// SharesToAssets converts shares to underlying assets, truncating.
func (v *VirtualOffset) SharesToAssets(shares *big.Int) (*big.Int, error) {
	x, err := toUint128(shares)
	if err != nil {
		return nil, err
	}
	product := new(uint256.Int)
	if _, overflow := product.MulOverflow(x, v.virtualAssets); overflow {
		return nil, ErrOverflow
	}
	return product.Div(product, v.virtualShares).ToBig(), nil
}

// AssetsToShares converts underlying assets to shares, truncating.
func (v *VirtualOffset) AssetsToShares(assets *big.Int) (*big.Int, error) {
	x, err := toUint128(assets)
	if err != nil {
		return nil, err
	}
	product := new(uint256.Int)
	if _, overflow := product.MulOverflow(x, v.virtualShares); overflow {
		return nil, ErrOverflow
	}
	return product.Div(product, v.virtualAssets).ToBig(), nil
}

// AddShares grows the total share count. Zero additions are rejected so a
// dust deposit cannot silently mint nothing.
func (v *VirtualOffset) AddShares(shares *big.Int) error {
	x, err := toUint128(shares)
	if err != nil {
		return err
	}
	if x.IsZero() {
		return ErrZeroShares
	}
	sum := new(uint256.Int)
	if _, overflow := sum.AddOverflow(v.totalShares, x); overflow {
		return ErrOverflow
	}
	if sum.Gt(maxUint128) {
		return ErrOverflow
	}
	v.totalShares = sum
	v.refresh()
	return nil
}

// SubShares shrinks the total share count.
func (v *VirtualOffset) SubShares(shares *big.Int) error {
	x, err := toUint128(shares)
	if err != nil {
		return err
	}
	if x.IsZero() {
		return ErrZeroShares
	}
	if v.totalShares.Lt(x) {
		return ErrInsufficientShares
	}
	v.totalShares = new(uint256.Int).Sub(v.totalShares, x)
	v.refresh()
	return nil
}
