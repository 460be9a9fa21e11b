package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"rewards_webapp/internal/ads"
	"rewards_webapp/internal/catalog"
	"rewards_webapp/internal/config"
	"rewards_webapp/internal/db"
	"rewards_webapp/internal/domain"
	httpserver "rewards_webapp/internal/http"
	"rewards_webapp/internal/http/handlers"
	"rewards_webapp/internal/ledger"
	"rewards_webapp/internal/service"
	"rewards_webapp/internal/store"
	"rewards_webapp/internal/store/memstore"
	"rewards_webapp/internal/wallet"
	"rewards_webapp/internal/ws"
)

const botToken = "42:e2e-token"

type server struct {
	ts     *httptest.Server
	hub    *ws.Hub
	engine *ledger.Engine
}

// openStore uses Postgres when DATABASE_URL is set, memory otherwise
func openStore(t *testing.T) store.Store {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return memstore.New()
	}
	st, err := db.OpenStore(context.Background(), &config.Config{
		StoreDriver:         config.StoreDriverPostgres,
		DatabaseURL:         dsn,
		StoreMaxAttempts:    5,
		StoreConnectRetries: 1,
		StoreRetryBackoff:   time.Millisecond,
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(st.Close)
	return st
}

func startServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	service.InitJWT("e2e-secret")

	cfg := &config.Config{
		APIRateLimit:     1000,
		APIRateWindow:    time.Minute,
		AuthRateLimit:    1000,
		AuthRateWindow:   time.Minute,
		ActionRateLimit:  1000,
		ActionRateWindow: time.Minute,
	}

	st := openStore(t)
	hub := ws.NewHub()
	player := ads.NewPlayer(hub)
	hub.Handle(ws.MsgAdResult, player.HandleMessage)
	wallets := wallet.NewManager(wallet.NewStoreSessions(st), "", wallet.WithoutProof())

	rules := ledger.DefaultRules()
	rules.AdTimeout = 5 * time.Second
	engine := ledger.NewEngine(ledger.Options{
		Store:   st,
		Catalog: catalog.Default(),
		Rules:   rules,
		Ads:     player,
		Wallet:  wallets,
		OnRefresh: func(userID string, l *domain.LedgerDocument) {
			hub.Push(userID, ws.MsgLedger, l)
		},
	})
	t.Cleanup(engine.Shutdown)

	r := gin.New()
	httpserver.RegisterRoutes(r, httpserver.Deps{
		Handler: handlers.NewHandler(engine, wallets, player, handlers.HandlerConfig{BotToken: botToken}),
		Health:  handlers.NewHealthHandler(st, "e2e", nil),
		Hub:     hub,
		Config:  cfg,
	})
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	return &server{ts: ts, hub: hub, engine: engine}
}

func (s *server) post(t *testing.T, path, token string, body any) (int, []byte) {
	t.Helper()
	code, out, err := s.do(path, token, body)
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	return code, out
}

func (s *server) do(path, token string, body any) (int, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(http.MethodPost, s.ts.URL+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	return resp.StatusCode, out.Bytes(), err
}

func (s *server) login(t *testing.T, tgID int64) (string, string) {
	t.Helper()
	v := url.Values{}
	v.Set("auth_date", strconv.FormatInt(time.Now().Unix(), 10))
	v.Set("user", `{"id":`+strconv.FormatInt(tgID, 10)+`,"username":"e2e"}`)

	code, body := s.post(t, "/api/v1/auth", "", map[string]string{"init_data": service.SignInitData(botToken, v)})
	if code != http.StatusOK {
		t.Fatalf("auth: %d %s", code, body)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.Token == "" {
		t.Fatalf("auth body %s", body)
	}
	return out.Token, strconv.FormatInt(tgID, 10)
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// dial connects and returns a channel fed by a single reader goroutine
func (s *server) dial(t *testing.T, token, userID string) (*websocket.Conn, chan envelope) {
	t.Helper()
	wsURL := strings.Replace(s.ts.URL, "http", "ws", 1) + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	out := make(chan envelope, 16)
	go func() {
		defer close(out)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env envelope
			if json.Unmarshal(msg, &env) == nil {
				out <- env
			}
		}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !s.hub.Connected(userID) {
		if time.Now().After(deadline) {
			t.Fatalf("socket never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return conn, out
}

func waitFor(t *testing.T, ch chan envelope, msgType string) envelope {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case env, ok := <-ch:
			if !ok {
				t.Fatalf("socket closed while waiting for %s", msgType)
			}
			if env.Type == msgType {
				return env
			}
		case <-timeout:
			t.Fatalf("timeout waiting for %s", msgType)
		}
	}
}

type watchResult struct {
	code int
	body []byte
}

func watch(s *server, token, questID string) chan watchResult {
	done := make(chan watchResult, 1)
	go func() {
		code, body, _ := s.do("/api/v1/quests/"+questID+"/watch", token, nil)
		done <- watchResult{code, body}
	}()
	return done
}

// uniqueID keeps reruns against a shared Postgres independent
func uniqueID(base int64) int64 {
	return base*1_000_000 + time.Now().UnixNano()%1_000_000
}

func TestE2E_WatchAdOverSocket(t *testing.T) {
	s := startServer(t)
	token, uid := s.login(t, uniqueID(5001))
	conn, msgs := s.dial(t, token, uid)

	done := watch(s, token, "daily_popup_ads")

	env := waitFor(t, msgs, ws.MsgPlayAd)
	var req ws.PlayAdPayload
	if err := json.Unmarshal(env.Payload, &req); err != nil || req.AdType != "rewardedPopup" {
		t.Fatalf("bad play_ad payload %s", env.Payload)
	}

	reply, _ := json.Marshal(map[string]any{
		"type":    ws.MsgAdResult,
		"payload": ws.AdResultPayload{RequestID: req.RequestID, OK: true},
	})
	if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case res := <-done:
		if res.code != http.StatusOK {
			t.Fatalf("watch: %d %s", res.code, res.body)
		}
		var w ledger.AdWatch
		if err := json.Unmarshal(res.body, &w); err != nil || w.Watched != 1 {
			t.Fatalf("unexpected watch result %s", res.body)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("watch never returned")
	}

	// snapshot refresh is pushed to the socket
	env = waitFor(t, msgs, ws.MsgLedger)
	var l domain.LedgerDocument
	if err := json.Unmarshal(env.Payload, &l); err != nil || l.Progress("daily_popup_ads").Watched != 1 {
		t.Fatalf("ledger push %s", env.Payload)
	}
}

func TestE2E_AdClosedEarly(t *testing.T) {
	s := startServer(t)
	token, uid := s.login(t, uniqueID(5002))
	conn, msgs := s.dial(t, token, uid)

	done := watch(s, token, "daily_interstitial_ads")

	env := waitFor(t, msgs, ws.MsgPlayAd)
	var req ws.PlayAdPayload
	_ = json.Unmarshal(env.Payload, &req)

	reply, _ := json.Marshal(map[string]any{
		"type":    ws.MsgAdResult,
		"payload": ws.AdResultPayload{RequestID: req.RequestID, OK: false, Reason: string(ledger.AdClosedEarly)},
	})
	if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
		t.Fatalf("write: %v", err)
	}

	res := <-done
	if res.code != http.StatusBadGateway || !strings.Contains(string(res.body), "closed before the end") {
		t.Fatalf("expected closed-early failure, got %d %s", res.code, res.body)
	}

	l, err := s.engine.LedgerSnapshot(context.Background(), uid)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if l.Progress("daily_interstitial_ads").Watched != 0 {
		t.Fatalf("closed ad must not count")
	}
}
