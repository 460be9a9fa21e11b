package ledger

import (
	"crypto/rand"
	"encoding/binary"
	"math"

	"rewards_webapp/internal/domain"

	"github.com/shopspring/decimal"
)

// RandomSource returns uniform floats in [0,1)
type RandomSource interface {
	Float64() float64
}

type cryptoSource struct{}

// CryptoSource reads crypto/rand, safe for concurrent use
func CryptoSource() RandomSource { return cryptoSource{} }

func (cryptoSource) Float64() float64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return float64(binary.BigEndian.Uint64(b[:])>>11) / (1 << 53)
}

// Randomizer draws chest rewards and withdrawal outcomes
type Randomizer struct {
	src           RandomSource
	landPieceBase float64
	landPieceStep float64
	medalScale    int
}

func NewRandomizer(src RandomSource, landPieceBase, landPieceStep float64, medalScale int) *Randomizer {
	if src == nil {
		src = CryptoSource()
	}
	if medalScale < 1 {
		medalScale = 1
	}
	return &Randomizer{
		src:           src,
		landPieceBase: landPieceBase,
		landPieceStep: landPieceStep,
		medalScale:    medalScale,
	}
}

// ChestRewards rolls the rewards of the tier at index.
//
//	usdt      = r * gemCost/4000 + gemCost/10000, 4 знака
//	landPiece = 1 с вероятностью min(1, base + step*index)
//	foxMedal  = floor(r * (index+1) * scale) + 1
func (r *Randomizer) ChestRewards(index int, tier domain.ChestTier) domain.ChestRewards {
	cost := decimal.NewFromInt(tier.GemCost)
	usdt := decimal.NewFromFloat(r.src.Float64()).
		Mul(cost.Div(decimal.NewFromInt(4000))).
		Add(cost.Div(decimal.NewFromInt(10000))).
		Round(4)

	var land int64
	if r.Chance(r.landPieceBase + r.landPieceStep*float64(index)) {
		land = 1
	}

	medals := int64(math.Floor(r.src.Float64()*float64(index+1)*float64(r.medalScale))) + 1

	return domain.ChestRewards{USDT: usdt, LandPiece: land, FoxMedal: medals}
}

// Chance returns true with probability p, clamped to [0,1]
func (r *Randomizer) Chance(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return r.src.Float64() < p
}
