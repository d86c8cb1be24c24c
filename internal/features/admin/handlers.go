// Package admin — handlers.go обрабатывает взаимодействие с админ-панелью.
// Панель работает через Reply Keyboard в личных сообщениях.
// Поток: аутентификация → клавиатура → выбор действия → ввод аргументов.
package admin

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"kriptosignal.ru/signals-bot/internal/common"
	"kriptosignal.ru/signals-bot/internal/features/payments"
	"kriptosignal.ru/signals-bot/internal/features/subscription"
	"kriptosignal.ru/signals-bot/internal/features/users"
)

// paymentLog — история подтверждённых платежей.
type paymentLog interface {
	ConfirmedPurchases(ctx context.Context) ([]*payments.Purchase, error)
}

// Handler обрабатывает админ-команды.
type Handler struct {
	service     *Service
	userService *users.Service
	subService  *subscription.Service
	paymentLog  paymentLog
	bot         *tgbotapi.BotAPI
}

// NewHandler создаёт обработчик админ-панели.
func NewHandler(service *Service, userService *users.Service, subService *subscription.Service, payLog paymentLog, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{
		service:     service,
		userService: userService,
		subService:  subService,
		paymentLog:  payLog,
		bot:         bot,
	}
}

// HandleAdminMessage обрабатывает любое сообщение от администратора в DM.
// Возвращает true, если сообщение было админским и обработано.
func (h *Handler) HandleAdminMessage(ctx context.Context, chatID int64, userID int64, text string) bool {
	if !h.service.IsAdmin(userID) {
		return false
	}

	// Команды с аргументами доступны админам без входа в панель
	if strings.HasPrefix(text, "/") {
		return h.handleCommand(ctx, chatID, userID, text)
	}

	state := h.service.GetState(userID)

	if state != nil && state.State == StateAwaitingPassword {
		h.handlePasswordInput(ctx, chatID, userID, text)
		return true
	}

	if !isPanelInput(text, state) {
		return false
	}

	if !h.service.HasActiveSession(ctx, userID) {
		h.sendMessage(chatID, "🔐 Введите пароль для доступа к админ-панели:")
		h.service.SetState(userID, StateAwaitingPassword)
		return true
	}

	h.service.TouchSession(ctx, userID)

	if state != nil {
		switch state.State {
		case StateAwaitingExtend:
			h.handleExtendInput(ctx, chatID, userID, text)
			return true
		case StateAwaitingPayout:
			h.handlePayoutInput(ctx, chatID, userID, text)
			return true
		}
	}

	switch text {
	case "👥 Все пользователи":
		h.showAllUsers(ctx, chatID)
	case "📊 Все подписчики":
		h.showSubscriptions(ctx, chatID, h.subService.ListAll)
	case "🔥 Активные подписчики":
		h.showSubscriptions(ctx, chatID, h.subService.ListActive)
	case "⏳ Истёкшие":
		h.showSubscriptions(ctx, chatID, h.subService.ListExpired)
	case "🧾 История платежей":
		h.showPaymentHistory(ctx, chatID)
	case "📤 Экспорт CSV":
		h.exportCSV(ctx, chatID)
	case "➕ Продлить подписку":
		h.sendMessage(chatID, "Отправь: user_id и число дней через пробел.\nНапример: 123456789 30")
		h.service.SetState(userID, StateAwaitingExtend)
	case "💸 Выплата партнёру":
		h.sendMessage(chatID, "Отправь: user_id и сумму USDT через пробел.\nНапример: 123456789 12.5")
		h.service.SetState(userID, StateAwaitingPayout)
	case "Админ", "Панель", "админ", "панель":
		h.showKeyboard(chatID)
	}
	return true
}

// isPanelInput отсекает обычные пользовательские кнопки: админ тоже
// покупает подписку и смотрит профиль, эти сообщения панель не трогает.
func isPanelInput(text string, state *State) bool {
	if state != nil && state.State != StateNone {
		return true
	}
	switch text {
	case "👥 Все пользователи", "📊 Все подписчики", "🔥 Активные подписчики",
		"⏳ Истёкшие", "🧾 История платежей", "📤 Экспорт CSV",
		"➕ Продлить подписку", "💸 Выплата партнёру",
		"Админ", "Панель", "админ", "панель":
		return true
	}
	return false
}

// handleCommand обрабатывает /extend, /ban, /unban, /payout и /logout.
func (h *Handler) handleCommand(ctx context.Context, chatID int64, userID int64, text string) bool {
	fields := strings.Fields(text)
	cmd := strings.TrimSuffix(fields[0], "@"+h.bot.Self.UserName)

	switch cmd {
	case "/extend":
		target, days, err := parseExtendArgs(fields[1:])
		if err != nil {
			h.sendMessage(chatID, "❌ Формат: /extend user_id дни")
			return true
		}
		h.extend(ctx, chatID, target, days)
	case "/ban":
		target, err := parseIDArg(fields[1:])
		if err != nil {
			h.sendMessage(chatID, "❌ Формат: /ban user_id")
			return true
		}
		if err := h.subService.Ban(ctx, target); err != nil {
			log.WithError(err).Error("Ошибка бана")
			h.sendMessage(chatID, "❌ Не удалось забанить пользователя")
			return true
		}
		h.sendMessage(chatID, fmt.Sprintf("✅ Пользователь %d забанен, подписка остановлена", target))
	case "/unban":
		target, err := parseIDArg(fields[1:])
		if err != nil {
			h.sendMessage(chatID, "❌ Формат: /unban user_id")
			return true
		}
		if err := h.subService.Unban(ctx, target); err != nil {
			log.WithError(err).Error("Ошибка разбана")
			h.sendMessage(chatID, "❌ Не удалось снять бан")
			return true
		}
		h.sendMessage(chatID, fmt.Sprintf("✅ Бан снят: %d. Доступ вернётся после оплаты или /extend", target))
	case "/payout":
		target, amount, err := parsePayoutArgs(fields[1:])
		if err != nil {
			h.sendMessage(chatID, "❌ Формат: /payout user_id сумма")
			return true
		}
		h.payout(ctx, chatID, target, amount)
	case "/logout":
		if err := h.service.Logout(ctx, userID); err != nil {
			log.WithError(err).Error("Ошибка выхода из панели")
		}
		h.sendMessage(chatID, "✅ Сессия админ-панели закрыта")
	default:
		return false
	}
	return true
}

// handlePasswordInput обрабатывает ввод пароля.
func (h *Handler) handlePasswordInput(ctx context.Context, chatID int64, userID int64, password string) {
	err := h.service.VerifyPassword(ctx, userID, password)
	h.service.ClearState(userID)
	if err != nil {
		h.sendMessage(chatID, fmt.Sprintf("❌ %s", err.Error()))
		return
	}

	h.sendMessage(chatID, "✅ Аутентификация успешна!")
	h.showKeyboard(chatID)
}

// showKeyboard отображает клавиатуру админ-панели.
func (h *Handler) showKeyboard(chatID int64) {
	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("👥 Все пользователи"),
			tgbotapi.NewKeyboardButton("📊 Все подписчики"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("🔥 Активные подписчики"),
			tgbotapi.NewKeyboardButton("⏳ Истёкшие"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("🧾 История платежей"),
			tgbotapi.NewKeyboardButton("📤 Экспорт CSV"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("➕ Продлить подписку"),
			tgbotapi.NewKeyboardButton("💸 Выплата партнёру"),
		),
	)
	keyboard.ResizeKeyboard = true

	msg := tgbotapi.NewMessage(chatID, "✅ Админ-панель открыта")
	msg.ReplyMarkup = keyboard
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки клавиатуры")
	}
}

func (h *Handler) showAllUsers(ctx context.Context, chatID int64) {
	list, err := h.userService.ListAll(ctx)
	if err != nil {
		log.WithError(err).Error("Ошибка получения пользователей")
		h.sendMessage(chatID, "❌ Ошибка получения списка пользователей")
		return
	}
	if len(list) == 0 {
		h.sendMessage(chatID, "Пользователей пока нет")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "👥 Пользователи (%d):\n\n", len(list))
	for _, u := range list {
		fmt.Fprintf(&sb, "%d — %s, с %s\n", u.UserID, u.DisplayName(), common.FormatDateTime(u.FirstSeen))
	}
	h.sendLong(chatID, sb.String())
}

func (h *Handler) showSubscriptions(ctx context.Context, chatID int64, list func(context.Context) ([]*subscription.Subscription, error)) {
	subs, err := list(ctx)
	if err != nil {
		log.WithError(err).Error("Ошибка получения подписок")
		h.sendMessage(chatID, "❌ Ошибка получения подписок")
		return
	}
	if len(subs) == 0 {
		h.sendMessage(chatID, "Подписок нет")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 Подписки (%d):\n\n", len(subs))
	for _, s := range subs {
		paid := "❌"
		if s.Paid {
			paid = "✅"
		}
		fmt.Fprintf(&sb, "%s %d — до %s (%s USDT)\n",
			paid, s.UserID, common.FormatDateTime(s.EndDate), common.FormatUSDT(s.UniqueAmountMicros))
	}
	h.sendLong(chatID, sb.String())
}

func (h *Handler) showPaymentHistory(ctx context.Context, chatID int64) {
	purchases, err := h.paymentLog.ConfirmedPurchases(ctx)
	if err != nil {
		log.WithError(err).Error("Ошибка получения истории платежей")
		h.sendMessage(chatID, "❌ Ошибка получения истории платежей")
		return
	}
	if len(purchases) == 0 {
		h.sendMessage(chatID, "Платежей пока нет")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🧾 Платежи (%d):\n\n", len(purchases))
	for _, p := range purchases {
		when := ""
		if p.ConfirmedAt != nil {
			when = common.FormatDateTime(*p.ConfirmedAt)
		}
		fmt.Fprintf(&sb, "%s — %d на %s USDT\n", when, p.UserID, common.FormatUSDT(p.AmountMicros))
	}
	h.sendLong(chatID, sb.String())
}

func (h *Handler) exportCSV(ctx context.Context, chatID int64) {
	data, err := h.subService.ExportCSV(ctx)
	if err != nil {
		log.WithError(err).Error("Ошибка экспорта CSV")
		h.sendMessage(chatID, "❌ Ошибка экспорта")
		return
	}

	file := tgbotapi.FileBytes{
		Name:  fmt.Sprintf("subscriptions_%s.csv", time.Now().Format("2006-01-02")),
		Bytes: data,
	}
	doc := tgbotapi.NewDocument(chatID, file)
	doc.Caption = "📤 Выгрузка подписок"
	if _, err := h.bot.Send(doc); err != nil {
		log.WithError(err).Error("Ошибка отправки CSV")
		h.sendMessage(chatID, "❌ Не удалось отправить файл")
	}
}

func (h *Handler) handleExtendInput(ctx context.Context, chatID int64, userID int64, text string) {
	h.service.ClearState(userID)
	target, days, err := parseExtendArgs(strings.Fields(text))
	if err != nil {
		h.sendMessage(chatID, "❌ Нужно два числа: user_id и дни. Например: 123456789 30")
		return
	}
	h.extend(ctx, chatID, target, days)
}

func (h *Handler) handlePayoutInput(ctx context.Context, chatID int64, userID int64, text string) {
	h.service.ClearState(userID)
	target, amount, err := parsePayoutArgs(strings.Fields(text))
	if err != nil {
		h.sendMessage(chatID, "❌ Нужно: user_id и сумма. Например: 123456789 12.5")
		return
	}
	h.payout(ctx, chatID, target, amount)
}

func (h *Handler) extend(ctx context.Context, chatID int64, target int64, days int) {
	sub, err := h.subService.Extend(ctx, target, days)
	if err != nil {
		log.WithError(err).Error("Ошибка продления")
		h.sendMessage(chatID, "❌ Не удалось продлить подписку")
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("✅ Подписка %d продлена до %s", target, common.FormatDateTime(sub.EndDate)))
}

func (h *Handler) payout(ctx context.Context, chatID int64, target int64, amountMicros int64) {
	if err := h.userService.Payout(ctx, target, amountMicros); err != nil {
		switch err {
		case common.ErrInsufficientBalance:
			h.sendMessage(chatID, "❌ На балансе партнёра недостаточно средств")
		case common.ErrInvalidAmount:
			h.sendMessage(chatID, "❌ Сумма должна быть положительной")
		case common.ErrUserNotFound:
			h.sendMessage(chatID, "❌ Пользователь не найден")
		default:
			log.WithError(err).Error("Ошибка выплаты")
			h.sendMessage(chatID, "❌ Не удалось провести выплату")
		}
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("✅ Выплата %s USDT пользователю %d списана с его баланса",
		common.FormatUSDT(amountMicros), target))
}

// --- Парсинг аргументов ---

func parseIDArg(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("нужен ровно один аргумент")
	}
	return strconv.ParseInt(args[0], 10, 64)
}

func parseExtendArgs(args []string) (userID int64, days int, err error) {
	if len(args) != 2 {
		return 0, 0, fmt.Errorf("нужно два аргумента")
	}
	userID, err = strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	days, err = strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, err
	}
	if days <= 0 {
		return 0, 0, fmt.Errorf("дни должны быть положительными")
	}
	return userID, days, nil
}

func parsePayoutArgs(args []string) (userID int64, amountMicros int64, err error) {
	if len(args) != 2 {
		return 0, 0, fmt.Errorf("нужно два аргумента")
	}
	userID, err = strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	amountMicros, err = common.ParseUSDT(args[1])
	if err != nil {
		return 0, 0, err
	}
	if amountMicros <= 0 {
		return 0, 0, fmt.Errorf("сумма должна быть положительной")
	}
	return userID, amountMicros, nil
}

// sendLong режет длинные списки под лимит Telegram в 4096 символов.
func (h *Handler) sendLong(chatID int64, text string) {
	const limit = 4000
	for len(text) > 0 {
		if len(text) <= limit {
			h.sendMessage(chatID, text)
			return
		}
		cut := strings.LastIndex(text[:limit], "\n")
		if cut <= 0 {
			cut = limit
		}
		h.sendMessage(chatID, text[:cut])
		text = text[cut:]
	}
}

func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
