// Package subscription — handlers.go обрабатывает кнопки покупки,
// проверки оплаты и профиля.
package subscription

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"kriptosignal.ru/signals-bot/internal/common"
)

// Handler обрабатывает пользовательские действия с подпиской.
type Handler struct {
	service *Service
	bot     *tgbotapi.BotAPI
	wallet  string // TRC-20 адрес для оплаты
	days    int    // Срок подписки в днях
}

// NewHandler создаёт обработчик подписки.
func NewHandler(service *Service, bot *tgbotapi.BotAPI, wallet string, days int) *Handler {
	return &Handler{
		service: service,
		bot:     bot,
		wallet:  wallet,
		days:    days,
	}
}

// paymentKeyboard — клавиатура экрана оплаты.
func paymentKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("🔄 Проверить оплату"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("⬅️ В главное меню"),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

// HandleBuy обрабатывает кнопку «📈 Получить сигналы»: выставляет счёт
// с уникальной суммой и показывает реквизиты.
func (h *Handler) HandleBuy(ctx context.Context, chatID int64, userID int64) {
	p, err := h.service.StartPurchase(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка выставления счёта")
		h.sendMessage(chatID, "❌ Не удалось выставить счёт, попробуй ещё раз чуть позже")
		return
	}

	text := fmt.Sprintf(
		"💳 <b>Оплата подписки на %d дней</b>\n\n"+
			"Переведи <b>ровно</b> <code>%s</code> USDT (сеть TRC-20) на адрес:\n\n"+
			"<code>%s</code>\n\n"+
			"⚠️ Сумма уникальная — по ней бот найдёт именно твой платёж. "+
			"Не округляй её и не меняй.\n\n"+
			"После перевода нажми «🔄 Проверить оплату».",
		h.days, common.FormatUSDT(p.AmountMicros), h.wallet,
	)
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = paymentKeyboard()
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки реквизитов")
	}
}

// HandleCheckPayment обрабатывает кнопку «🔄 Проверить оплату».
func (h *Handler) HandleCheckPayment(ctx context.Context, chatID int64, userID int64) {
	h.sendMessage(chatID, "⏳ Идёт проверка оплаты, подожди пару секунд...")

	res, err := h.service.CheckPayment(ctx, userID, false)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка проверки оплаты")
		h.sendMessage(chatID, "❌ Платёж найден, но оформить подписку не удалось. Напиши в поддержку.")
		return
	}

	switch {
	case !res.Found:
		h.sendMessage(chatID, "❌ Платёж пока не найден.\nПеревод в сети TRC-20 может идти несколько минут — подожди и нажми «🔄 Проверить оплату» ещё раз.")
	case !res.Confirmed:
		// Счёт погасил параллельный вызов (автопроверка успела раньше).
		h.sendMessage(chatID, "✅ Оплата уже подтверждена, ссылка в канал отправлена отдельным сообщением.")
	case res.InviteFailed:
		h.sendMessage(chatID, "✅ Оплата подтверждена, но не удалось создать ссылку в канал. Напиши в поддержку — доступ выдадут вручную.")
	default:
		text := fmt.Sprintf(
			"✅ Платёж подтверждён!\nПодписка активна до %s.\n\nВот твоя ссылка в канал (одноразовая):\n%s",
			common.FormatDateTime(res.Subscription.EndDate), res.InviteLink,
		)
		h.sendMessage(chatID, text)
	}
}

// HandleProfile обрабатывает кнопку «👤 Профиль».
func (h *Handler) HandleProfile(ctx context.Context, chatID int64, userID int64) {
	sub, err := h.service.Get(ctx, userID)
	if err != nil {
		if err == common.ErrNoSubscription {
			h.sendMessage(chatID, "👤 Подписки пока нет.\nНажми «📈 Получить сигналы», чтобы оформить.")
			return
		}
		log.WithError(err).Error("Ошибка получения подписки")
		h.sendMessage(chatID, "❌ Ошибка получения профиля")
		return
	}

	var status string
	if sub.IsActive(h.service.now()) {
		left := common.DaysLeft(sub.EndDate, h.service.now())
		status = fmt.Sprintf("✅ активна до %s (осталось %d %s)",
			common.FormatDateTime(sub.EndDate), left, common.PluralizeDays(left))
	} else {
		status = fmt.Sprintf("❌ истекла %s", common.FormatDateTime(sub.EndDate))
	}

	text := fmt.Sprintf("👤 <b>Твой профиль</b>\n\nID: <code>%d</code>\nПодписка: %s", userID, status)
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки профиля")
	}
}

// sendMessage — вспомогательный метод для отправки текстовых сообщений.
func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
