package domain

import "github.com/shopspring/decimal"

// ChestTier - уровень сундука, порядок в списке = порядок тиров
type ChestTier struct {
	Name    string `yaml:"name" json:"name"`
	Next    string `yaml:"next" json:"next"`
	Image   string `yaml:"image" json:"image"`
	GemCost int64  `yaml:"gemCost" json:"gemCost"`
	VIP     int    `yaml:"vip" json:"vip"`
}

// ChestRewards is what one chest opening grants
type ChestRewards struct {
	USDT      decimal.Decimal `json:"usdt"`
	LandPiece int64           `json:"landPiece"`
	FoxMedal  int64           `json:"foxMedal"`
}

// RankingEntry - денормализованная проекция для лидерборда
type RankingEntry struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	PhotoURL  string `json:"photoUrl"`
	FoxMedals int64  `json:"foxMedals"`
}
