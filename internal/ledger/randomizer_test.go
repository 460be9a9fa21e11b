package ledger

import (
	"testing"

	"rewards_webapp/internal/domain"

	"github.com/shopspring/decimal"
)

func TestChestRewardsRanges(t *testing.T) {
	tier := domain.ChestTier{Name: "Golden", GemCost: 1200, VIP: 2}
	min := decimal.NewFromInt(1200).Div(decimal.NewFromInt(10000))
	max := min.Add(decimal.NewFromInt(1200).Div(decimal.NewFromInt(4000)))

	for _, r := range []float64{0, 0.25, 0.5, 0.999999} {
		rnd := NewRandomizer(&fixedSource{v: r}, 0.05, 0.01, 3)
		got := rnd.ChestRewards(2, tier)
		if got.USDT.LessThan(min) || got.USDT.GreaterThan(max) {
			t.Fatalf("r=%v: usdt %s outside [%s,%s]", r, got.USDT, min, max)
		}
		if got.USDT.Exponent() < -4 {
			t.Fatalf("usdt must have at most 4 decimals, got %s", got.USDT)
		}
		if got.FoxMedal < 1 || got.FoxMedal > 9 {
			t.Fatalf("r=%v: medals %d outside [1,9]", r, got.FoxMedal)
		}
		if got.LandPiece != 0 && got.LandPiece != 1 {
			t.Fatalf("landPiece must be 0 or 1, got %d", got.LandPiece)
		}
	}
}

func TestChestRewardsLandPieceChance(t *testing.T) {
	tier := domain.ChestTier{GemCost: 200}

	// r=0.06: шанс 0.05 на тире 0 не проходит, 0.07 на тире 2 проходит
	rnd := NewRandomizer(&fixedSource{v: 0.06}, 0.05, 0.01, 3)
	if got := rnd.ChestRewards(0, tier).LandPiece; got != 0 {
		t.Fatalf("tier 0 should miss, got %d", got)
	}
	if got := rnd.ChestRewards(2, tier).LandPiece; got != 1 {
		t.Fatalf("tier 2 should hit, got %d", got)
	}

	capped := NewRandomizer(&fixedSource{v: 0.999}, 0.9, 0.5, 3)
	if got := capped.ChestRewards(5, tier).LandPiece; got != 1 {
		t.Fatalf("probability above 1 must always hit")
	}
}

func TestChance(t *testing.T) {
	rnd := NewRandomizer(&fixedSource{v: 0.5}, 0, 0, 1)
	if rnd.Chance(0) || !rnd.Chance(1) || !rnd.Chance(0.6) || rnd.Chance(0.4) {
		t.Fatalf("unexpected chance results")
	}
}

func TestCryptoSourceRange(t *testing.T) {
	src := CryptoSource()
	for i := 0; i < 1000; i++ {
		if v := src.Float64(); v < 0 || v >= 1 {
			t.Fatalf("value out of range: %v", v)
		}
	}
}
