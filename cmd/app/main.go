package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"rewards_webapp/internal/ads"
	"rewards_webapp/internal/analytics"
	"rewards_webapp/internal/bot"
	"rewards_webapp/internal/catalog"
	"rewards_webapp/internal/config"
	"rewards_webapp/internal/db"
	"rewards_webapp/internal/domain"
	httpServer "rewards_webapp/internal/http"
	"rewards_webapp/internal/http/handlers"
	"rewards_webapp/internal/http/middleware"
	"rewards_webapp/internal/jobs"
	"rewards_webapp/internal/ledger"
	"rewards_webapp/internal/logger"
	"rewards_webapp/internal/service"
	"rewards_webapp/internal/wallet"
	"rewards_webapp/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// withdrawalFanout tells the user's sockets and the admin bot about withdrawal changes
type withdrawalFanout struct {
	hub   *ws.Hub
	admin *bot.AdminBot
}

func (f withdrawalFanout) WithdrawalChanged(rec domain.TransactionRecord) {
	f.hub.Push(rec.UserID, ws.MsgWithdrawal, rec)
	if f.admin != nil {
		f.admin.WithdrawalChanged(rec)
	}
}

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogJSON)
	service.InitJWT(cfg.JWTSecret)

	if !cfg.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := db.OpenStore(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to open store", "driver", cfg.StoreDriver, "error", err)
	}
	defer st.Close()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Fatal("failed to load catalog", "path", cfg.CatalogPath, "error", err)
	}

	rdb := db.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if rdb != nil {
		defer rdb.Close()
		middleware.SetRedisClient(rdb)
	}

	// --- adapters ---
	hub := ws.NewHub()
	player := ads.NewPlayer(hub)
	hub.Handle(ws.MsgAdResult, player.HandleMessage)

	// привязки кошельков живут в основном хранилище, redis только кэширует
	var sessions wallet.SessionStore = wallet.NewStoreSessions(st)
	if rdb != nil {
		sessions = wallet.NewCachedSessions(wallet.NewRedisSessions(rdb, cfg.WalletSessionTTL), sessions)
	}
	var walletOpts []wallet.Option
	if cfg.DevMode {
		walletOpts = append(walletOpts, wallet.WithoutProof())
	}
	wallets := wallet.NewManager(sessions, cfg.TonAllowedDomain, walletOpts...)

	sinks := analytics.Multi{analytics.LogSink{}}
	var stream *analytics.StreamSink
	if rdb != nil {
		stream = analytics.NewStreamSink(rdb, cfg.AnalyticsStream, 1024)
		sinks = append(sinks, stream)
	}

	var admin *bot.AdminBot
	if cfg.AdminBotEnabled {
		admin, err = bot.NewAdminBot(cfg.BotToken, nil, cfg.AdminTelegramIDs)
		if err != nil {
			// бот не критичен для API
			logger.Error("admin bot disabled", "error", err)
			admin = nil
		}
	}

	engine := ledger.NewEngine(ledger.Options{
		Store:      st,
		Catalog:    cat,
		Rules:      ledger.RulesFromConfig(cfg),
		Randomizer: ledger.NewRandomizer(ledger.CryptoSource(), cfg.LandPieceBase, cfg.LandPieceStep, cfg.MedalScale),
		Ads:        player,
		Wallet:     wallets,
		Analytics:  sinks,
		Notifier:   withdrawalFanout{hub: hub, admin: admin},
		OnRefresh: func(userID string, l *domain.LedgerDocument) {
			hub.Push(userID, ws.MsgLedger, l)
		},
	})
	defer engine.Shutdown()
	if admin != nil {
		admin.SetLedger(engine)
	}

	wallets.OnStatusChange(func(userID string, connected bool, address string) {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := engine.SyncWallet(sctx, userID, connected, address); err != nil {
			logger.Error("wallet sync failed", "user_id", userID, "error", err)
		}
	})

	hub.OnConnect(func(userID string) {
		engine.InitializeAutomaticAds(userID)
		go func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if l, err := engine.LedgerSnapshot(sctx, userID); err == nil {
				hub.Push(userID, ws.MsgLedger, l)
			}
		}()
	})

	// --- http ---
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Metrics())

	// CORS for production (frontend on different domain)
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && (cfg.AllowedOrigin == "" || origin == cfg.AllowedOrigin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	extra := map[string]handlers.Pinger{}
	if rdb != nil {
		extra["redis"] = handlers.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}
	httpServer.RegisterRoutes(r, httpServer.Deps{
		Handler: handlers.NewHandler(engine, wallets, player, handlers.HandlerConfig{
			BotToken:     cfg.BotToken,
			BotUsername:  cfg.BotUsername,
			AppShortName: cfg.WebAppShortName,
			DevMode:      cfg.DevMode,
		}),
		Health: handlers.NewHealthHandler(st, cfg.AppVersion, extra),
		Hub:    hub,
		Config: cfg,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	scheduler, err := jobs.NewScheduler(engine, cfg.WithdrawSweepSpec, cfg.SessionIdleTTL)
	if err != nil {
		logger.Fatal("invalid scheduler config", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server started", "port", cfg.AppPort, "version", cfg.AppVersion, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		if err := scheduler.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		scheduler.Stop()
		return nil
	})

	if stream != nil {
		g.Go(func() error { return stream.Run(gctx) })
	}

	if admin != nil {
		g.Go(func() error {
			go admin.Start()
			<-gctx.Done()
			admin.Stop()
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited with error", "error", err)
		return
	}
	logger.Info("server exited")
}
