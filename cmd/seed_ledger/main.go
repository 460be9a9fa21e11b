package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"time"

	"rewards_webapp/internal/catalog"
	"rewards_webapp/internal/config"
	"rewards_webapp/internal/db"
	"rewards_webapp/internal/domain"
	"rewards_webapp/internal/ledger"
	"rewards_webapp/internal/service"
	"rewards_webapp/internal/store"

	"github.com/shopspring/decimal"
)

// Creates (or tops up) a ledger and prints a JWT plus signed init_data for local testing.
func main() {
	userID := flag.Int64("user", 1234567890, "telegram user id")
	username := flag.String("username", "testuser", "display name")
	gems := flag.Int64("gems", 0, "gems to add")
	usdt := flag.String("usdt", "0", "USDT to add")
	ton := flag.String("ton", "0", "TON to add")
	vip := flag.Int("vip", -1, "set VIP level (-1 keeps it)")
	flag.Parse()

	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	st, err := db.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	engine := ledger.NewEngine(ledger.Options{
		Store:   st,
		Catalog: catalog.Default(),
		Rules:   ledger.RulesFromConfig(cfg),
	})
	defer engine.Shutdown()

	uid := strconv.FormatInt(*userID, 10)
	s := engine.Session(ledger.Identity{UserID: uid, Username: *username})
	created, err := s.EnsureLedger(ctx)
	if err != nil {
		log.Fatalf("ensure ledger: %v", err)
	}
	log.Printf("ledger %s created=%v\n", uid, created)

	updates := store.Updates{}
	if *gems != 0 {
		updates[domain.FieldGems] = store.Increment(*gems)
	}
	for field, raw := range map[string]string{domain.FieldUSDT: *usdt, domain.FieldTON: *ton} {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			log.Fatalf("bad amount %q: %v", raw, err)
		}
		if !d.IsZero() {
			updates[field] = store.IncrementDecimal(d)
		}
	}
	if *vip >= 0 {
		updates[domain.FieldVIPLevel] = *vip
	}
	if len(updates) > 0 {
		if err := st.Update(ctx, ledger.LedgerRef(uid), updates); err != nil {
			log.Fatalf("top up: %v", err)
		}
	}

	l, err := engine.LedgerSnapshot(ctx, uid)
	if err != nil {
		log.Fatalf("read back: %v", err)
	}
	log.Printf("gems=%d usdt=%s ton=%s vip=%d\n", l.Gems, l.USDT, l.TON, l.VIPLevel)

	service.InitJWT(cfg.JWTSecret)
	token, err := service.GenerateJWT(uid, *username, "")
	if err != nil {
		log.Fatalf("failed to generate token: %v", err)
	}

	v := url.Values{}
	v.Set("auth_date", strconv.FormatInt(time.Now().Unix(), 10))
	v.Set("user", fmt.Sprintf(`{"id":%d,"username":%q}`, *userID, *username))

	fmt.Println("token:", token)
	fmt.Println("init_data:", service.SignInitData(cfg.BotToken, v))
}
