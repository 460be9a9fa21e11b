package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"rewards_webapp/internal/logger"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
	StoreDriverMemory   = "memory"
)

type Config struct {
	// --- Server ---
	AppPort       string `envconfig:"APP_PORT" default:"8080"`
	AppVersion    string `envconfig:"APP_VERSION" default:"dev"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	LogJSON       bool   `envconfig:"LOG_JSON" default:"false"`
	DevMode       bool   `envconfig:"DEV_MODE" default:"false"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN"`

	// --- Store ---
	StoreDriver         string        `envconfig:"STORE_DRIVER" default:"postgres"`
	DatabaseURL         string        `envconfig:"DATABASE_URL"`
	MongoURI            string        `envconfig:"MONGO_URI"`
	MongoDatabase       string        `envconfig:"MONGO_DATABASE" default:"rewards"`
	StoreMaxAttempts    int           `envconfig:"STORE_MAX_ATTEMPTS" default:"5"`
	StoreConnectRetries int           `envconfig:"STORE_CONNECT_RETRIES" default:"5"`
	StoreRetryBackoff   time.Duration `envconfig:"STORE_RETRY_BACKOFF" default:"500ms"`

	// --- Redis (rate limits, analytics stream, wallet sessions) ---
	RedisAddr       string `envconfig:"REDIS_ADDR"`
	RedisPassword   string `envconfig:"REDIS_PASSWORD"`
	RedisDB         int    `envconfig:"REDIS_DB" default:"0"`
	AnalyticsStream string `envconfig:"ANALYTICS_STREAM" default:"analytics:events"`

	// --- Telegram ---
	BotToken         string  `envconfig:"BOT_TOKEN" required:"true"`
	BotUsername      string  `envconfig:"BOT_USERNAME" default:"RewardsBot"`
	WebAppShortName  string  `envconfig:"WEBAPP_SHORT_NAME" default:"app"`
	JWTSecret        string  `envconfig:"JWT_SECRET" required:"true"`
	AdminIDsRaw      string  `envconfig:"ADMIN_TELEGRAM_IDS"` // tg id админов через запятую
	AdminTelegramIDs []int64 `ignored:"true"`
	AdminBotEnabled  bool    `envconfig:"ADMIN_BOT_ENABLED" default:"false"`

	// --- TON Connect ---
	TonAllowedDomain string        `envconfig:"TON_ALLOWED_DOMAIN"`
	WalletSessionTTL time.Duration `envconfig:"WALLET_SESSION_TTL" default:"720h"`

	// --- Catalog ---
	CatalogPath string `envconfig:"CATALOG_PATH"`

	// --- Ledger rules ---
	AdTypeCooldown       time.Duration   `envconfig:"AD_TYPE_COOLDOWN" default:"3m"`
	QuestRepeatCooldown  time.Duration   `envconfig:"QUEST_REPEAT_COOLDOWN" default:"1h"`
	AdTimeout            time.Duration   `envconfig:"AD_TIMEOUT" default:"30s"`
	AutomaticAdType      string          `envconfig:"AUTOMATIC_AD_TYPE" default:"inApp"`
	ReferralCreditAmount int64           `envconfig:"REFERRAL_CREDIT_AMOUNT" default:"1000"`
	CreditConversionRate int64           `envconfig:"CREDIT_CONVERSION_RATE" default:"10000"`
	MinimumCreditClaim   int64           `envconfig:"MINIMUM_CREDIT_CLAIM" default:"10000"`
	WithdrawFeeUSDT      decimal.Decimal `envconfig:"WITHDRAW_FEE_USDT" default:"0.1"`
	WithdrawFeeTON       decimal.Decimal `envconfig:"WITHDRAW_FEE_TON" default:"0.05"`
	WithdrawResolveDelay time.Duration   `envconfig:"WITHDRAW_RESOLVE_DELAY" default:"10s"`
	WithdrawSuccessRate  float64         `envconfig:"WITHDRAW_SUCCESS_RATE" default:"0.9"`
	WithdrawSweepSpec    string          `envconfig:"WITHDRAW_SWEEP_SPEC" default:"@every 30s"`
	SessionIdleTTL       time.Duration   `envconfig:"SESSION_IDLE_TTL" default:"30m"`

	// --- Chest randomizer ---
	LandPieceBase float64 `envconfig:"LAND_PIECE_BASE" default:"0.05"`
	LandPieceStep float64 `envconfig:"LAND_PIECE_STEP" default:"0.01"`
	MedalScale    int     `envconfig:"MEDAL_SCALE" default:"3"`

	// --- Automatic ads ---
	AutoAdFrequency       int `envconfig:"AUTO_AD_FREQUENCY" default:"2"`
	AutoAdIntervalSeconds int `envconfig:"AUTO_AD_INTERVAL_SECONDS" default:"30"`
	AutoAdSessionCapHours int `envconfig:"AUTO_AD_SESSION_CAP_HOURS" default:"0"`
	AutoAdFirstDelaySecs  int `envconfig:"AUTO_AD_FIRST_DELAY_SECONDS" default:"5"`

	// --- Rate limits ---
	APIRateLimit     int           `envconfig:"API_RATE_LIMIT" default:"60"`
	APIRateWindow    time.Duration `envconfig:"API_RATE_WINDOW" default:"1m"`
	AuthRateLimit    int           `envconfig:"AUTH_RATE_LIMIT" default:"5"`
	AuthRateWindow   time.Duration `envconfig:"AUTH_RATE_WINDOW" default:"1m"`
	ActionRateLimit  int           `envconfig:"ACTION_RATE_LIMIT" default:"30"`
	ActionRateWindow time.Duration `envconfig:"ACTION_RATE_WINDOW" default:"1m"`
}

// Загрузка конфига из env
func Load() *Config {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		logger.Fatal("failed to load config", "error", err)
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", "error", err)
	}

	return &cfg
}

// Validate checks cross-field constraints and fills derived fields.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is not set")
		}
	case StoreDriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is not set")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if c.CreditConversionRate <= 0 {
		return fmt.Errorf("CREDIT_CONVERSION_RATE must be positive")
	}
	if c.MinimumCreditClaim < c.CreditConversionRate {
		return fmt.Errorf("MINIMUM_CREDIT_CLAIM must be at least CREDIT_CONVERSION_RATE")
	}
	if c.WithdrawFeeUSDT.IsNegative() || c.WithdrawFeeTON.IsNegative() {
		return fmt.Errorf("withdraw fees must not be negative")
	}
	if c.WithdrawSuccessRate < 0 || c.WithdrawSuccessRate > 1 {
		return fmt.Errorf("WITHDRAW_SUCCESS_RATE must be within [0,1]")
	}
	if c.StoreMaxAttempts < 1 {
		c.StoreMaxAttempts = 1
	}
	if c.MedalScale < 1 {
		return fmt.Errorf("MEDAL_SCALE must be positive")
	}

	// Проверка тг id админов !! ЧЕРЕЗ ЗАПЯТУЮ В ENV !!
	c.AdminTelegramIDs = nil
	if c.AdminIDsRaw != "" {
		for _, idStr := range strings.Split(c.AdminIDsRaw, ",") {
			idStr = strings.TrimSpace(idStr)
			if idStr == "" {
				continue
			}
			id, err := strconv.ParseInt(idStr, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid admin id %q: %w", idStr, err)
			}
			c.AdminTelegramIDs = append(c.AdminTelegramIDs, id)
		}
	}

	return nil
}
