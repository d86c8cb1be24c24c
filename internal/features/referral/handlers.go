// Package referral — handlers.go показывает партнёрский кабинет:
// ссылка, приглашённые, баланс и начисления.
package referral

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"kriptosignal.ru/signals-bot/internal/common"
)

// Handler обрабатывает кнопку «🤝 Партнёрка».
type Handler struct {
	service   *Service
	bot       *tgbotapi.BotAPI
	l1Percent int
	l2Percent int
}

// NewHandler создаёт обработчик партнёрского кабинета.
func NewHandler(service *Service, bot *tgbotapi.BotAPI, l1Percent, l2Percent int) *Handler {
	return &Handler{
		service:   service,
		bot:       bot,
		l1Percent: l1Percent,
		l2Percent: l2Percent,
	}
}

// HandlePartner показывает партнёрский кабинет.
func (h *Handler) HandlePartner(ctx context.Context, chatID int64, userID int64) {
	stats, err := h.service.Stats(ctx, userID)
	if err != nil {
		log.WithError(err).Error("Ошибка получения партнёрской статистики")
		h.sendMessage(chatID, "❌ Ошибка получения партнёрского кабинета")
		return
	}

	link := fmt.Sprintf("https://t.me/%s?start=%d", h.bot.Self.UserName, userID)

	var sb strings.Builder
	sb.WriteString("🤝 <b>Партнёрская программа</b>\n\n")
	fmt.Fprintf(&sb, "Приглашай друзей и получай <b>%d%%</b> с их оплат и <b>%d%%</b> с оплат их приглашённых.\n\n", h.l1Percent, h.l2Percent)
	fmt.Fprintf(&sb, "Твоя ссылка:\n<code>%s</code>\n\n", link)
	fmt.Fprintf(&sb, "👥 Приглашено: <b>%d</b>\n", stats.Invited)
	fmt.Fprintf(&sb, "💰 Баланс: <b>%s</b> USDT\n", common.FormatUSDT(stats.Balance))
	fmt.Fprintf(&sb, "├ с оплат друзей: %s USDT\n", common.FormatUSDT(stats.EarnedL1))
	fmt.Fprintf(&sb, "├ со второго уровня: %s USDT\n", common.FormatUSDT(stats.EarnedL2))
	fmt.Fprintf(&sb, "└ выплачено: %s USDT\n\n", common.FormatUSDT(stats.Withdrawn))
	sb.WriteString("Для вывода напиши в поддержку, выплата в USDT (TRC-20).")

	msg := tgbotapi.NewMessage(chatID, sb.String())
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки партнёрского кабинета")
	}
}

func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
