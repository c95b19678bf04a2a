package vault

import (
	"errors"
	"math/big"
	"testing"
)

func TestVirtualOffsetOneToOne(t *testing.T) {
	rate, err := NewVirtualOffset(big.NewInt(1000), big.NewInt(1000))
	if err != nil {
		t.Fatalf("new virtual offset: %v", err)
	}
	for _, amount := range []int64{100, 1000, 10000} {
		assets, err := rate.SharesToAssets(big.NewInt(amount))
		if err != nil {
			t.Fatalf("shares to assets: %v", err)
		}
		if assets.Int64() != amount {
			t.Fatalf("expected %d assets, got %s", amount, assets)
		}
		shares, err := rate.AssetsToShares(big.NewInt(amount))
		if err != nil {
			t.Fatalf("assets to shares: %v", err)
		}
		if shares.Int64() != amount {
			t.Fatalf("expected %d shares, got %s", amount, shares)
		}
	}
}

func TestVirtualOffsetEmptyVault(t *testing.T) {
	rate, err := NewVirtualOffset(big.NewInt(0), big.NewInt(0))
	if err != nil {
		t.Fatalf("new virtual offset: %v", err)
	}
	shares, err := rate.AssetsToShares(big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("assets to shares: %v", err)
	}
	if shares.Int64() != 1_000_000 {
		t.Fatalf("empty vault should convert 1:1, got %s", shares)
	}
}

func TestVirtualOffsetInflationAttackMitigated(t *testing.T) {
	// Attacker deposits 1 for 1 share, then donates 999 to move the balance
	// to 1000. Virtual totals: shares 1001, assets 2000.
	rate, err := NewVirtualOffset(big.NewInt(1), big.NewInt(1000))
	if err != nil {
		t.Fatalf("new virtual offset: %v", err)
	}
	value, err := rate.SharesToAssets(big.NewInt(1))
	if err != nil {
		t.Fatalf("shares to assets: %v", err)
	}
	if value.Int64() != 1 {
		t.Fatalf("attacker share should be worth 1, got %s", value)
	}
	shares, err := rate.AssetsToShares(big.NewInt(10_000))
	if err != nil {
		t.Fatalf("assets to shares: %v", err)
	}
	if shares.Int64() != 5005 {
		t.Fatalf("honest depositor should mint 5005 shares, got %s", shares)
	}

	// After the honest deposit the attacker's position is still worth 1:
	// the 999 donation was fully captured by the vault.
	rate, err = NewVirtualOffset(big.NewInt(5006), big.NewInt(11_000))
	if err != nil {
		t.Fatalf("new virtual offset: %v", err)
	}
	value, err = rate.SharesToAssets(big.NewInt(1))
	if err != nil {
		t.Fatalf("shares to assets: %v", err)
	}
	if value.Int64() != 1 {
		t.Fatalf("attacker share should still be worth 1, got %s", value)
	}
	victim, err := rate.SharesToAssets(big.NewInt(5005))
	if err != nil {
		t.Fatalf("shares to assets: %v", err)
	}
	attackerLoss := int64(1+999) - value.Int64()
	victimLoss := int64(10_000) - victim.Int64()
	if attackerLoss < victimLoss {
		t.Fatalf("attacker loss %d must be at least victim loss %d", attackerLoss, victimLoss)
	}
}

func TestVirtualOffsetRoundTripLoss(t *testing.T) {
	rate, err := NewVirtualOffset(big.NewInt(7_777), big.NewInt(13_131))
	if err != nil {
		t.Fatalf("new virtual offset: %v", err)
	}
	for _, amount := range []int64{1, 17, 999, 123_456, 98_765_432} {
		shares, err := rate.AssetsToShares(big.NewInt(amount))
		if err != nil {
			t.Fatalf("assets to shares: %v", err)
		}
		back, err := rate.SharesToAssets(shares)
		if err != nil {
			t.Fatalf("shares to assets: %v", err)
		}
		if back.Int64() > amount {
			t.Fatalf("round trip must not create value: %d -> %s", amount, back)
		}
		loss := new(big.Int).Sub(big.NewInt(amount), back)
		// Each conversion truncates at most one unit at the prevailing rate;
		// with virtual assets 14131 over virtual shares 8777 the rate stays
		// under 2, so a round trip loses at most 2 asset units.
		if loss.Int64() > 2 {
			t.Fatalf("round trip loss %s too large for %d", loss, amount)
		}
	}
}

func TestVirtualOffsetRoundTripExactWhenBalanced(t *testing.T) {
	// With equal totals the rate is exactly 1:1, so an idle-vault round trip
	// returns the deposit unchanged.
	rate, err := NewVirtualOffset(big.NewInt(1_000_000), big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("new virtual offset: %v", err)
	}
	shares, err := rate.AssetsToShares(big.NewInt(250_000))
	if err != nil {
		t.Fatalf("assets to shares: %v", err)
	}
	back, err := rate.SharesToAssets(shares)
	if err != nil {
		t.Fatalf("shares to assets: %v", err)
	}
	if back.Int64() != 250_000 {
		t.Fatalf("balanced vault round trip should be exact, got %s", back)
	}
}

func TestVirtualOffsetAddSubShares(t *testing.T) {
	rate, err := NewVirtualOffset(big.NewInt(0), big.NewInt(0))
	if err != nil {
		t.Fatalf("new virtual offset: %v", err)
	}
	if err := rate.AddShares(big.NewInt(0)); !errors.Is(err, ErrZeroShares) {
		t.Fatalf("expected ErrZeroShares, got %v", err)
	}
	if err := rate.AddShares(big.NewInt(500)); err != nil {
		t.Fatalf("add shares: %v", err)
	}
	if rate.TotalShares().Int64() != 500 {
		t.Fatalf("unexpected total shares %s", rate.TotalShares())
	}
	if err := rate.SubShares(big.NewInt(600)); !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}
	if err := rate.SubShares(big.NewInt(500)); err != nil {
		t.Fatalf("sub shares: %v", err)
	}
	if rate.TotalShares().Sign() != 0 {
		t.Fatalf("expected zero total shares, got %s", rate.TotalShares())
	}
}

func TestVirtualOffsetRejectsOverflow(t *testing.T) {
	tooBig := new(big.Int).Lsh(big.NewInt(1), 129)
	if _, err := NewVirtualOffset(tooBig, big.NewInt(0)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
	if _, err := NewVirtualOffset(big.NewInt(-1), big.NewInt(0)); !errors.Is(err, ErrUnderflow) {
		t.Fatalf("expected ErrUnderflow, got %v", err)
	}
}
