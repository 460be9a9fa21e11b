package ledger

import (
	"time"

	"rewards_webapp/internal/config"
	"rewards_webapp/internal/domain"

	"github.com/shopspring/decimal"
)

// Rules are the tunable constants of the ledger
type Rules struct {
	AdTypeCooldown       time.Duration
	QuestRepeatCooldown  time.Duration
	AdTimeout            time.Duration
	AutomaticAdType      string
	ReferralCreditAmount int64
	CreditConversionRate int64
	MinimumCreditClaim   int64
	WithdrawFees         map[domain.Currency]decimal.Decimal
	WithdrawResolveDelay time.Duration
	WithdrawSuccessRate  float64

	// EnsureLedger retries on an unreachable store before blocking the session
	ConnectRetries int
	RetryBackoff   time.Duration

	AutoAds AutoAdSettings
}

// DefaultRules mirrors the config defaults
func DefaultRules() Rules {
	return Rules{
		AdTypeCooldown:       3 * time.Minute,
		QuestRepeatCooldown:  time.Hour,
		AdTimeout:            30 * time.Second,
		AutomaticAdType:      "inApp",
		ReferralCreditAmount: 1000,
		CreditConversionRate: 10000,
		MinimumCreditClaim:   10000,
		WithdrawFees: map[domain.Currency]decimal.Decimal{
			domain.CurrencyUSDT: decimal.RequireFromString("0.1"),
			domain.CurrencyTON:  decimal.RequireFromString("0.05"),
		},
		WithdrawResolveDelay: 10 * time.Second,
		WithdrawSuccessRate:  0.9,
		ConnectRetries:       5,
		RetryBackoff:         500 * time.Millisecond,
		AutoAds: AutoAdSettings{
			Frequency:           2,
			IntervalSeconds:     30,
			FirstAdDelaySeconds: 5,
		},
	}
}

// RulesFromConfig builds rules from the loaded config
func RulesFromConfig(cfg *config.Config) Rules {
	return Rules{
		AdTypeCooldown:       cfg.AdTypeCooldown,
		QuestRepeatCooldown:  cfg.QuestRepeatCooldown,
		AdTimeout:            cfg.AdTimeout,
		AutomaticAdType:      cfg.AutomaticAdType,
		ReferralCreditAmount: cfg.ReferralCreditAmount,
		CreditConversionRate: cfg.CreditConversionRate,
		MinimumCreditClaim:   cfg.MinimumCreditClaim,
		WithdrawFees: map[domain.Currency]decimal.Decimal{
			domain.CurrencyUSDT: cfg.WithdrawFeeUSDT,
			domain.CurrencyTON:  cfg.WithdrawFeeTON,
		},
		WithdrawResolveDelay: cfg.WithdrawResolveDelay,
		WithdrawSuccessRate:  cfg.WithdrawSuccessRate,
		ConnectRetries:       cfg.StoreConnectRetries,
		RetryBackoff:         cfg.StoreRetryBackoff,
		AutoAds: AutoAdSettings{
			Frequency:           cfg.AutoAdFrequency,
			IntervalSeconds:     cfg.AutoAdIntervalSeconds,
			SessionCapHours:     cfg.AutoAdSessionCapHours,
			FirstAdDelaySeconds: cfg.AutoAdFirstDelaySecs,
		},
	}
}

// Fee returns the flat withdrawal fee of a currency
func (r Rules) Fee(c domain.Currency) decimal.Decimal {
	if f, ok := r.WithdrawFees[c]; ok {
		return f
	}
	return decimal.Zero
}
