package config

import (
	"testing"

	"github.com/kelseyhightower/envconfig"
)

func TestProcessDefaults(t *testing.T) {
	t.Setenv("BOT_TOKEN", "token")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("ADMIN_TELEGRAM_IDS", "1, 2,3")

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if cfg.AdTypeCooldown.Minutes() != 3 {
		t.Fatalf("expected 3m ad cooldown, got %s", cfg.AdTypeCooldown)
	}
	if cfg.WithdrawFeeUSDT.String() != "0.1" {
		t.Fatalf("expected fee 0.1, got %s", cfg.WithdrawFeeUSDT)
	}
	if len(cfg.AdminTelegramIDs) != 3 || cfg.AdminTelegramIDs[1] != 2 {
		t.Fatalf("unexpected admin ids %v", cfg.AdminTelegramIDs)
	}
}

func TestValidateStoreDriver(t *testing.T) {
	cfg := Config{StoreDriver: StoreDriverPostgres, CreditConversionRate: 10, MinimumCreditClaim: 10, MedalScale: 1}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for postgres without DATABASE_URL")
	}

	cfg.StoreDriver = "sqlite"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestValidateBadAdminID(t *testing.T) {
	cfg := Config{StoreDriver: StoreDriverMemory, CreditConversionRate: 10, MinimumCreditClaim: 10, MedalScale: 1, AdminIDsRaw: "12,abc"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for malformed admin id")
	}
}
