package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"

	"rewards_webapp/internal/domain"
	"rewards_webapp/internal/ledger"
	"rewards_webapp/internal/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Ledger is the part of the engine the bot administers
type Ledger interface {
	LedgerSnapshot(ctx context.Context, userID string) (*domain.LedgerDocument, error)
	Leaderboard(ctx context.Context, limit int) ([]domain.RankingEntry, error)
	PendingWithdrawals(ctx context.Context, limit int) ([]domain.TransactionRecord, error)
	RefundWithdrawal(ctx context.Context, userID, txID string) (*domain.TransactionRecord, error)
	SweepWithdrawals(ctx context.Context) (int, error)
}

// sender is the subset of tgbotapi.BotAPI used for replies
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// AdminBot handles admin commands via Telegram and pushes withdrawal alerts
type AdminBot struct {
	api    *tgbotapi.BotAPI
	sender sender
	ledger Ledger

	mu       sync.RWMutex
	adminIDs []int64 // Telegram user IDs who can use admin commands

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	log      *logrus.Entry
}

// NewAdminBot creates a new admin bot
func NewAdminBot(token string, l Ledger, adminIDs []int64) (*AdminBot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	b := newAdminBot(api, l, adminIDs)
	b.api = api
	b.log.WithField("username", api.Self.UserName).Info("admin bot authorized")
	return b, nil
}

func newAdminBot(s sender, l Ledger, adminIDs []int64) *AdminBot {
	return &AdminBot{
		sender:   s,
		ledger:   l,
		adminIDs: append([]int64(nil), adminIDs...),
		stopCh:   make(chan struct{}),
		log:      logger.With("component", "admin_bot"),
	}
}

// SetLedger attaches the engine; the bot is built first because the engine notifies it
func (b *AdminBot) SetLedger(l Ledger) {
	b.ledger = l
}

// Start listens for commands until Stop is called
func (b *AdminBot) Start() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("starting bot update loop")

	for {
		select {
		case <-b.stopCh:
			b.log.Info("stopping bot update loop")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			msg := update.Message
			if msg == nil || msg.From == nil || !msg.IsCommand() || !b.isAdmin(msg.From.ID) {
				continue
			}

			b.wg.Add(1)
			go func(msg *tgbotapi.Message) {
				defer b.wg.Done()
				b.reply(msg)
			}(msg)
		}
	}
}

// Stop gracefully stops the bot
func (b *AdminBot) Stop() {
	b.stopOnce.Do(func() {
		b.log.Info("stopping admin bot...")
		close(b.stopCh)
		if b.api != nil {
			b.api.StopReceivingUpdates()
		}
	})

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.log.Info("admin bot stopped gracefully")
	case <-time.After(10 * time.Second):
		b.log.Warn("admin bot shutdown timeout, some handlers may not have completed")
	}
}

func (b *AdminBot) isAdmin(userID int64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, id := range b.adminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (b *AdminBot) admins() []int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]int64(nil), b.adminIDs...)
}

func (b *AdminBot) reply(msg *tgbotapi.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	out := tgbotapi.NewMessage(msg.Chat.ID, b.handleCommand(ctx, msg.Command(), msg.CommandArguments()))
	out.ParseMode = "HTML"
	out.ReplyToMessageID = msg.MessageID
	if _, err := b.sender.Send(out); err != nil {
		b.log.WithError(err).Error("error sending message")
	}
}

// handleCommand processes one admin command and returns the HTML reply
func (b *AdminBot) handleCommand(ctx context.Context, cmd, args string) string {
	switch cmd {
	case "start", "help":
		return helpMessage
	case "ledger":
		return b.handleLedger(ctx, args)
	case "top":
		return b.handleTop(ctx, args)
	case "pending":
		return b.handlePending(ctx, args)
	case "refund":
		return b.handleRefund(ctx, args)
	case "sweep":
		return b.handleSweep(ctx)
	case "addadmin":
		return b.handleAddAdmin(args)
	}
	return "❌ Неизвестная команда. Используйте /help для списка команд."
}

const helpMessage = `<b>🤖 Команды администратора</b>

<b>📊 Леджер:</b>
/ledger &lt;user_id&gt; - Балансы и прогресс пользователя
/top [лимит] - Топ по медалям

<b>💸 Выводы:</b>
/pending [лимит] - Ожидающие выводы
/sweep - Разрешить просроченные выводы
/refund &lt;user_id&gt; &lt;tx_id&gt; - Вернуть средства за неудачный вывод

<b>🔐 Админы:</b>
/addadmin &lt;tg_id&gt; - Добавить админа`

func (b *AdminBot) handleLedger(ctx context.Context, args string) string {
	userID := strings.TrimSpace(args)
	if userID == "" {
		return "❌ Использование: /ledger &lt;user_id&gt;"
	}

	l, err := b.ledger.LedgerSnapshot(ctx, userID)
	if err != nil {
		if ledger.ReasonOf(err) == ledger.ReasonLedgerMissing {
			return fmt.Sprintf("❌ Леджер %s не найден", html.EscapeString(userID))
		}
		return fmt.Sprintf("❌ Ошибка: %v", html.EscapeString(err.Error()))
	}

	wallet := "—"
	if l.WalletAddress != nil && *l.WalletAddress != "" {
		wallet = *l.WalletAddress
	}

	return fmt.Sprintf(`<b>👤 %s</b> (%s)

💎 Гемы: %d
🦊 Медали: %d
🗺 Кусочки земли: %d
💵 USDT: %s
💠 TON: %s
⭐ VIP: %d

👥 Рефералы: %d
🎟 Кредиты: %d
💳 Кошелёк: <code>%s</code>
📅 Создан: %s`,
		html.EscapeString(l.Username), html.EscapeString(l.UserID),
		l.Gems, l.FoxMedals, l.LandPieces, l.USDT.String(), l.TON.String(), l.VIPLevel,
		l.Referrals, l.ReferralCredits, html.EscapeString(wallet),
		l.CreatedAt.Format("02.01.2006 15:04"))
}

func (b *AdminBot) handleTop(ctx context.Context, args string) string {
	limit := 10
	if args != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(args)); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}

	top, err := b.ledger.Leaderboard(ctx, limit)
	if err != nil {
		return fmt.Sprintf("❌ Ошибка: %v", html.EscapeString(err.Error()))
	}
	if len(top) == 0 {
		return "❌ Пользователи не найдены"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("<b>🏆 Топ %d по медалям</b>\n\n", limit))
	for i, e := range top {
		name := e.Username
		if name == "" {
			name = e.UserID
		}
		sb.WriteString(fmt.Sprintf("%d. %s — %d 🦊\n", i+1, html.EscapeString(name), e.FoxMedals))
	}
	return sb.String()
}

func (b *AdminBot) handlePending(ctx context.Context, args string) string {
	limit := 20
	if n, err := strconv.Atoi(strings.TrimSpace(args)); err == nil && n > 0 && n <= 100 {
		limit = n
	}

	recs, err := b.ledger.PendingWithdrawals(ctx, limit)
	if err != nil {
		return fmt.Sprintf("❌ Ошибка: %v", html.EscapeString(err.Error()))
	}
	if len(recs) == 0 {
		return "✅ Нет ожидающих выводов"
	}

	var sb strings.Builder
	sb.WriteString("<b>💸 Ожидающие выводы</b>\n\n")
	for _, r := range recs {
		sb.WriteString(withdrawalLine(r))
		sb.WriteString("\n")
	}
	return sb.String()
}

func withdrawalLine(r domain.TransactionRecord) string {
	return fmt.Sprintf("🆔 <code>%s</code> | user %s\n💰 %s %s (комиссия %s)\n💳 <code>%s</code>\n📅 %s\n",
		r.TxID, html.EscapeString(r.UserID),
		r.Amount.String(), r.Currency, r.Fee.String(),
		html.EscapeString(r.Destination),
		r.Timestamp.Format("02.01.2006 15:04"))
}

func (b *AdminBot) handleRefund(ctx context.Context, args string) string {
	parts := strings.Fields(args)
	if len(parts) != 2 {
		return "❌ Использование: /refund &lt;user_id&gt; &lt;tx_id&gt;"
	}

	rec, err := b.ledger.RefundWithdrawal(ctx, parts[0], parts[1])
	if err != nil {
		var le *ledger.Error
		if errors.As(err, &le) {
			return fmt.Sprintf("❌ %s", html.EscapeString(le.Message))
		}
		return fmt.Sprintf("❌ Ошибка: %v", html.EscapeString(err.Error()))
	}

	b.log.WithField("user_id", rec.UserID).WithField("tx_id", rec.TxID).Info("withdrawal refunded by admin")
	return fmt.Sprintf("✅ Возвращено %s %s пользователю %s",
		rec.Total().String(), rec.Currency, html.EscapeString(rec.UserID))
}

func (b *AdminBot) handleSweep(ctx context.Context) string {
	n, err := b.ledger.SweepWithdrawals(ctx)
	if err != nil {
		return fmt.Sprintf("❌ Разрешено %d, ошибка: %v", n, html.EscapeString(err.Error()))
	}
	return fmt.Sprintf("✅ Разрешено выводов: %d", n)
}

func (b *AdminBot) handleAddAdmin(args string) string {
	tgID, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		return "❌ Использование: /addadmin &lt;tg_id&gt;"
	}
	if b.isAdmin(tgID) {
		return "ℹ️ Уже админ"
	}

	b.mu.Lock()
	b.adminIDs = append(b.adminIDs, tgID)
	b.mu.Unlock()
	b.log.WithField("tg_id", tgID).Info("added new admin")

	return fmt.Sprintf("✅ Добавлен админ %d\n\n⚠️ Это временно до перезапуска. Добавьте в ADMIN_TELEGRAM_IDS для постоянного доступа.", tgID)
}

// WithdrawalChanged notifies admins about new and failed withdrawals.
// Called from the engine, so sending happens off the caller's goroutine.
func (b *AdminBot) WithdrawalChanged(rec domain.TransactionRecord) {
	var title string
	switch {
	case rec.Status == domain.TransactionStatusPending:
		title = "🔔 <b>Новый запрос на вывод</b>"
	case rec.Status == domain.TransactionStatusFailed && !rec.Refunded:
		title = "⚠️ <b>Вывод не прошёл</b>"
	default:
		return
	}

	text := title + "\n\n" + withdrawalLine(rec)
	if rec.Status == domain.TransactionStatusFailed {
		text += fmt.Sprintf("\n/refund %s %s - вернуть средства", rec.UserID, rec.TxID)
	}

	select {
	case <-b.stopCh:
		return
	default:
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for _, adminID := range b.admins() {
			msg := tgbotapi.NewMessage(adminID, text)
			msg.ParseMode = "HTML"
			if _, err := b.sender.Send(msg); err != nil {
				b.log.WithError(err).WithField("admin_id", adminID).Error("failed to notify admin")
			}
		}
	}()
}
