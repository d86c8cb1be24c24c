// Package bot содержит главный модуль бота — запуск polling,
// маршрутизацию кнопок и команд.
package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"kriptosignal.ru/signals-bot/internal/bot/filters"
	"kriptosignal.ru/signals-bot/internal/bot/middleware"
	"kriptosignal.ru/signals-bot/internal/common"
	"kriptosignal.ru/signals-bot/internal/config"
	"kriptosignal.ru/signals-bot/internal/features/admin"
	"kriptosignal.ru/signals-bot/internal/features/referral"
	"kriptosignal.ru/signals-bot/internal/features/subscription"
	"kriptosignal.ru/signals-bot/internal/features/users"
)

// Bot — главная структура бота, объединяющая все компоненты.
type Bot struct {
	api *tgbotapi.BotAPI
	cfg *config.Config

	chatFilter  *filters.ChatFilter
	rateLimiter *middleware.RateLimiter

	userService *users.Service
	subService  *subscription.Service

	subHandler   *subscription.Handler
	refHandler   *referral.Handler
	adminHandler *admin.Handler

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
}

// New создаёт новый экземпляр бота со всеми зависимостями.
func New(
	api *tgbotapi.BotAPI,
	cfg *config.Config,
	userService *users.Service,
	subService *subscription.Service,
	subHandler *subscription.Handler,
	refHandler *referral.Handler,
	adminHandler *admin.Handler,
) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}

	return &Bot{
		api:          api,
		cfg:          cfg,
		chatFilter:   filters.NewChatFilter(),
		rateLimiter:  middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		userService:  userService,
		subService:   subService,
		subHandler:   subHandler,
		refHandler:   refHandler,
		adminHandler: adminHandler,
		inflight:     make(chan struct{}, maxInFlight),
	}
}

// Start запускает polling обновлений от Telegram.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.BotUpdateTimeoutSeconds

	updates := b.api.GetUpdatesChan(u)

	log.WithFields(log.Fields{
		"max_inflight": b.cfg.BotMaxInflight,
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			b.api.StopReceivingUpdates()
			b.rateLimiter.Close()
			return

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				return
			}

			// лимит параллелизма
			b.inflight <- struct{}{}
			go func(upd tgbotapi.Update) {
				defer func() { <-b.inflight }()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer middleware.RecoverFromPanic()

	if update.Message == nil || update.Message.Text == "" {
		return
	}

	message := update.Message
	middleware.LogMessage(message)

	if !b.chatFilter.CheckAccess(message) {
		return
	}

	if !b.rateLimiter.Allow(message.From.ID) {
		log.WithField("user_id", message.From.ID).Debug("rate limited")
		return
	}

	chatID := message.Chat.ID
	userID := message.From.ID

	// Ошибки нельзя игнорировать молча, иначе потом будет «оно не работает»
	if err := b.userService.EnsureUser(ctx, userID, message.From.UserName); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("EnsureUser failed")
	}

	if message.IsCommand() && message.Command() == "start" {
		b.handleStart(ctx, chatID, userID, message.CommandArguments())
		return
	}

	// Панель и команды админа
	if b.adminHandler.HandleAdminMessage(ctx, chatID, userID, message.Text) {
		return
	}

	b.routeButton(ctx, chatID, userID, message.Text)
}

// routeButton маршрутизирует кнопки главного меню.
func (b *Bot) routeButton(ctx context.Context, chatID, userID int64, text string) {
	switch text {
	case "📌 О боте":
		b.sendHTML(chatID, "🤖 <b>Crypto Signals Bot</b>\n\n"+
			"📈 Сигналы по BTC/ETH/ALT\n"+
			"⏱ Мгновенные уведомления\n"+
			"💰 Работа с USDT (TRC-20)\n\n"+
			"Нажми «📈 Получить сигналы», чтобы оформить подписку.")

	case "📈 Получить сигналы":
		b.subHandler.HandleBuy(ctx, chatID, userID)

	case "💰 Тарифы":
		b.sendHTML(chatID, fmt.Sprintf("💰 <b>Тарифы:</b>\n\n"+
			"📅 %d %s — %d USDT\n\n"+
			"Оплата в USDT (TRC-20).",
			b.cfg.SubscriptionDays, common.PluralizeDays(b.cfg.SubscriptionDays), b.cfg.PriceUSDT))

	case "📞 Поддержка":
		b.sendHTML(chatID, fmt.Sprintf("📞 <b>Поддержка:</b>\n\nЕсли есть вопросы — напиши:\n%s", b.cfg.SupportContact))

	case "👤 Профиль":
		b.subHandler.HandleProfile(ctx, chatID, userID)

	case "🤝 Партнёрка":
		b.refHandler.HandlePartner(ctx, chatID, userID)

	case "🔄 Проверить оплату":
		b.subHandler.HandleCheckPayment(ctx, chatID, userID)

	case "⬅️ В главное меню":
		msg := tgbotapi.NewMessage(chatID, "🏠 Главное меню:")
		msg.ReplyMarkup = mainKeyboard()
		if _, err := b.api.Send(msg); err != nil {
			log.WithError(err).Error("Ошибка отправки меню")
		}
	}
}

// handleStart обрабатывает /start, в том числе с реферальным кодом:
// /start 123456789 привязывает нового пользователя к пригласившему.
func (b *Bot) handleStart(ctx context.Context, chatID, userID int64, payload string) {
	if payload = strings.TrimSpace(payload); payload != "" {
		if refID, err := strconv.ParseInt(payload, 10, 64); err == nil {
			if _, err := b.userService.RegisterReferral(ctx, userID, refID); err != nil {
				// Попытка привязать себя или несуществующего реферера —
				// штатная ситуация, просто не привязываем
				log.WithError(err).WithFields(log.Fields{
					"user_id":     userID,
					"referrer_id": refID,
				}).Debug("Реферальная привязка не выполнена")
			}
		}
	}

	if sub, err := b.subService.Get(ctx, userID); err == nil && sub.IsActive(time.Now()) {
		b.sendHTML(chatID, fmt.Sprintf("🔥 У тебя уже есть активная подписка!\n"+
			"Действует до: <b>%s</b>\n\n"+
			"Можешь заходить в закрытый канал и получать сигналы 📈",
			common.FormatDateTime(sub.EndDate)))
	}

	msg := tgbotapi.NewMessage(chatID, "👋 <b>Добро пожаловать в Crypto Signals Bot!</b>\n\n"+
		"Здесь ты сможешь получать премиальные сигналы по крипте.\n\n"+
		"Выбирай действие ниже 👇")
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainKeyboard()
	if _, err := b.api.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки приветствия")
	}
}

// mainKeyboard — клавиатура главного меню.
func mainKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("📌 О боте"),
			tgbotapi.NewKeyboardButton("📈 Получить сигналы"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("💰 Тарифы"),
			tgbotapi.NewKeyboardButton("📞 Поддержка"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("👤 Профиль"),
			tgbotapi.NewKeyboardButton("🤝 Партнёрка"),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

// SendHTML отправляет HTML-сообщение в произвольный чат.
// Используется сервисом авто-сигналов для публикации в канал.
func (b *Bot) SendHTML(chatID int64, html string) error {
	msg := tgbotapi.NewMessage(chatID, html)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendHTML(chatID int64, html string) {
	if err := b.SendHTML(chatID, html); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
