// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: создаёт БД-пул, клиентов внешних API,
// репозитории, сервисы, обработчики и собирает всё в один объект Bot.
package app

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"kriptosignal.ru/signals-bot/internal/bot"
	"kriptosignal.ru/signals-bot/internal/clients/binance"
	"kriptosignal.ru/signals-bot/internal/clients/trongrid"
	"kriptosignal.ru/signals-bot/internal/common"
	"kriptosignal.ru/signals-bot/internal/config"
	"kriptosignal.ru/signals-bot/internal/db/postgres"
	"kriptosignal.ru/signals-bot/internal/features/admin"
	"kriptosignal.ru/signals-bot/internal/features/payments"
	"kriptosignal.ru/signals-bot/internal/features/referral"
	"kriptosignal.ru/signals-bot/internal/features/signals"
	"kriptosignal.ru/signals-bot/internal/features/subscription"
	"kriptosignal.ru/signals-bot/internal/features/users"
	"kriptosignal.ru/signals-bot/internal/jobs"
)

// App содержит все компоненты приложения.
type App struct {
	Bot       *bot.Bot
	Scheduler *jobs.Scheduler
	DB        *pgxpool.Pool
	BotAPI    *tgbotapi.BotAPI
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	if err := runMigrations(ctx, pool); err != nil {
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	// === 2. Telegram Bot API ===
	botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	botAPI.Debug = cfg.AppEnv == "development"
	log.Infof("Авторизован как @%s", botAPI.Self.UserName)

	// === 3. Клиенты внешних API ===
	tronClient := trongrid.New(cfg.TrongridAPIKey, cfg.WalletAddress, cfg.APITimeout)
	binanceClient := binance.New(cfg.APITimeout)

	// === 4. Репозитории ===
	userRepo := users.NewRepository(pool)
	paymentRepo := payments.NewRepository(pool)
	subRepo := subscription.NewRepository(pool)
	refRepo := referral.NewRepository(pool)
	adminRepo := admin.NewRepository(pool)

	// === 5. Сервисы ===
	userService := users.NewService(userRepo)
	matcher := payments.NewMatcher(paymentRepo, tronClient,
		common.USDTToMicros(cfg.PriceUSDT), cfg.MatchToleranceMicros)
	refService := referral.NewService(refRepo, userService,
		cfg.ReferralL1Percent, cfg.ReferralL2Percent)

	gate := bot.NewChannelGate(botAPI, cfg.ChannelID)
	notifier := bot.NewNotifier(botAPI, cfg.AdminIDs)
	subService := subscription.NewService(matcher, subRepo, refService,
		gate, notifier, cfg.SubscriptionDays)

	adminService := admin.NewService(adminRepo, cfg)

	// === 6. Обработчики ===
	subHandler := subscription.NewHandler(subService, botAPI, cfg.WalletAddress, cfg.SubscriptionDays)
	refHandler := referral.NewHandler(refService, botAPI, cfg.ReferralL1Percent, cfg.ReferralL2Percent)
	adminHandler := admin.NewHandler(adminService, userService, subService, matcher, botAPI)

	// === 7. Собираем бота ===
	b := bot.New(botAPI, cfg, userService, subService, subHandler, refHandler, adminHandler)

	// === 8. Авто-сигналы и планировщик ===
	sigService := signals.NewService(binanceClient, b.SendHTML,
		cfg.SignalsChannelID, cfg.SignalSymbols, cfg.AutoSignalsEnabled)
	scheduler := jobs.NewScheduler(cfg, subService, sigService)

	return &App{
		Bot:       b,
		Scheduler: scheduler,
		DB:        pool,
		BotAPI:    botAPI,
	}, nil
}

// runMigrations выполняет все SQL-миграции.
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if err := postgres.EnsureMigrationTable(ctx, pool); err != nil {
		return err
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migration001Users},
		{2, migration002Subscriptions},
		{3, migration003Purchases},
		{4, migration004Referral},
		{5, migration005Admin},
	}

	for _, m := range migrations {
		if err := postgres.ExecMigrationSQL(ctx, pool, m.version, m.sql); err != nil {
			return fmt.Errorf("миграция %d: %w", m.version, err)
		}
		log.Infof("Миграция %d применена", m.version)
	}

	return nil
}

// SQL-миграции встроены в код для упрощения деплоя.

var migration001Users = `
CREATE TABLE IF NOT EXISTS users (
    user_id BIGINT PRIMARY KEY,
    username VARCHAR(255),
    first_seen TIMESTAMP NOT NULL DEFAULT NOW(),
    last_active TIMESTAMP NOT NULL DEFAULT NOW(),
    referrer_id BIGINT REFERENCES users(user_id),
    balance BIGINT NOT NULL DEFAULT 0,
    earned_l1 BIGINT NOT NULL DEFAULT 0,
    earned_l2 BIGINT NOT NULL DEFAULT 0,
    withdrawn BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT NOW(),
    updated_at TIMESTAMP DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_users_referrer ON users(referrer_id);
`

var migration002Subscriptions = `
CREATE TABLE IF NOT EXISTS subscriptions (
    user_id BIGINT PRIMARY KEY REFERENCES users(user_id),
    unique_amount BIGINT NOT NULL DEFAULT 0,
    paid BOOLEAN NOT NULL DEFAULT FALSE,
    start_date TIMESTAMP NOT NULL,
    end_date TIMESTAMP NOT NULL,
    tx_amount BIGINT NOT NULL DEFAULT 0,
    tx_time TIMESTAMP,
    created_at TIMESTAMP DEFAULT NOW(),
    updated_at TIMESTAMP DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_subscriptions_expiry ON subscriptions(paid, end_date);
`

var migration003Purchases = `
CREATE TABLE IF NOT EXISTS purchases (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES users(user_id),
    amount BIGINT NOT NULL,
    status VARCHAR(16) NOT NULL DEFAULT 'pending',
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    confirmed_at TIMESTAMP
);
-- У пользователя ровно один живой счёт
CREATE UNIQUE INDEX IF NOT EXISTS idx_purchases_pending_user
    ON purchases(user_id) WHERE status = 'pending';
-- Уникальная сумма не делится между живыми счетами:
-- по ней со сканом кошелька находится конкретный плательщик
CREATE UNIQUE INDEX IF NOT EXISTS idx_purchases_pending_amount
    ON purchases(amount) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_purchases_user ON purchases(user_id);
CREATE INDEX IF NOT EXISTS idx_purchases_status ON purchases(status);
`

var migration004Referral = `
CREATE TABLE IF NOT EXISTS referral_earnings (
    id BIGSERIAL PRIMARY KEY,
    purchase_id BIGINT NOT NULL REFERENCES purchases(id),
    referrer_id BIGINT NOT NULL REFERENCES users(user_id),
    referred_id BIGINT NOT NULL,
    level SMALLINT NOT NULL,
    amount BIGINT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    -- Страховка идемпотентности: за одну покупку уровень начисляется один раз
    CONSTRAINT uq_referral_earnings_purchase_level UNIQUE (purchase_id, level)
);
CREATE INDEX IF NOT EXISTS idx_referral_earnings_referrer ON referral_earnings(referrer_id);
`

var migration005Admin = `
CREATE TABLE IF NOT EXISTS admin_sessions (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    session_token VARCHAR(255) NOT NULL,
    authenticated_at TIMESTAMP NOT NULL DEFAULT NOW(),
    expires_at TIMESTAMP NOT NULL,
    last_activity TIMESTAMP NOT NULL DEFAULT NOW(),
    is_active BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS idx_admin_sessions_user ON admin_sessions(user_id, is_active);

CREATE TABLE IF NOT EXISTS admin_login_attempts (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    attempt_time TIMESTAMP NOT NULL DEFAULT NOW(),
    success BOOLEAN NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_admin_attempts_user ON admin_login_attempts(user_id, attempt_time);
`
