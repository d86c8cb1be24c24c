package subscription

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"kriptosignal.ru/signals-bot/internal/common"
	"kriptosignal.ru/signals-bot/internal/features/payments"
)

// matcher — часть платёжного модуля, нужная жизненному циклу подписки.
type matcher interface {
	MintIntent(ctx context.Context, userID int64) (*payments.Purchase, error)
	PendingIntent(ctx context.Context, userID int64) (*payments.Purchase, error)
	CheckForPayment(ctx context.Context, userID int64) (bool, error)
	ConfirmIntent(ctx context.Context, userID int64) (*payments.Purchase, bool, error)
	PendingUserIDs(ctx context.Context) ([]int64, error)
}

type store interface {
	GetByUserID(ctx context.Context, userID int64) (*Subscription, error)
	Upsert(ctx context.Context, sub *Subscription) error
	SetPaid(ctx context.Context, userID int64, paid bool) error
	ExpireOverdue(ctx context.Context) ([]int64, error)
	ListAll(ctx context.Context) ([]*Subscription, error)
	ListActive(ctx context.Context) ([]*Subscription, error)
	ListExpired(ctx context.Context) ([]*Subscription, error)
}

// settler начисляет реферальные бонусы за подтверждённую покупку.
type settler interface {
	Settle(ctx context.Context, p *payments.Purchase) error
}

// ChannelGate — доступ к закрытому каналу. Реализуется ботом.
type ChannelGate interface {
	CreateInviteLink(ctx context.Context) (string, error)
	BanMember(ctx context.Context, userID int64) error
	UnbanMember(ctx context.Context, userID int64) error
}

// Notifier доставляет сообщения пользователям и операторский журнал админам.
// Реализуется ботом; доставка best-effort, ошибки не всплывают в сервис.
type Notifier interface {
	NotifyUser(userID int64, text string)
	Audit(text string)
}

// CheckResult — исход одной проверки оплаты.
type CheckResult struct {
	Found        bool // Перевод на нужную сумму найден в ленте
	Confirmed    bool // Именно этот вызов подтвердил счёт
	Purchase     *payments.Purchase
	Subscription *Subscription
	InviteLink   string
	InviteFailed bool // Оплата зачтена, но ссылку создать не удалось
}

// Service — жизненный цикл подписки. Единственная точка, где счёт
// превращается в доступ: и кнопка проверки, и фоновый опрос идут
// через CheckPayment.
type Service struct {
	matcher  matcher
	store    store
	settler  settler
	gate     ChannelGate
	notifier Notifier
	days     int
	now      func() time.Time
}

func NewService(m matcher, s store, ref settler, gate ChannelGate, n Notifier, days int) *Service {
	return &Service{
		matcher:  m,
		store:    s,
		settler:  ref,
		gate:     gate,
		notifier: n,
		days:     days,
		now:      time.Now,
	}
}

// StartPurchase выставляет пользователю счёт с уникальной суммой.
func (s *Service) StartPurchase(ctx context.Context, userID int64) (*payments.Purchase, error) {
	return s.matcher.MintIntent(ctx, userID)
}

// PendingIntent возвращает живой счёт пользователя, если он есть.
func (s *Service) PendingIntent(ctx context.Context, userID int64) (*payments.Purchase, error) {
	return s.matcher.PendingIntent(ctx, userID)
}

// CheckPayment — общий путь подтверждения оплаты. Ищет перевод на сумму
// счёта, атомарно гасит счёт (ровно один вызов выигрывает), активирует
// подписку, начисляет рефералку и создаёт одноразовую ссылку в канал.
// Повторный вызов после подтверждения возвращает Found=false.
func (s *Service) CheckPayment(ctx context.Context, userID int64, auto bool) (*CheckResult, error) {
	found, err := s.matcher.CheckForPayment(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrNoPendingIntent) {
			return &CheckResult{}, nil
		}
		return nil, err
	}
	if !found {
		return &CheckResult{}, nil
	}

	p, ok, err := s.matcher.ConfirmIntent(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Гонка: параллельный вызов уже погасил счёт. Все эффекты
		// выполнил победитель, этот вызов ничего не делает.
		log.WithField("user_id", userID).Info("Счёт уже подтверждён параллельным вызовом")
		return &CheckResult{Found: true}, nil
	}

	sub, err := s.activate(ctx, p)
	if err != nil {
		// Счёт погашен, откатывать его нельзя. Эскалируем оператору.
		s.notifier.Audit(fmt.Sprintf(
			"ОШИБКА: счёт пользователя %d на %s USDT подтверждён, но подписка не записана: %v",
			userID, common.FormatUSDT(p.AmountMicros), err,
		))
		return nil, err
	}

	if err := s.settler.Settle(ctx, p); err != nil {
		// Рефералка не должна ломать выдачу доступа.
		log.WithError(err).WithField("user_id", userID).Error("Не удалось начислить реферальные бонусы")
		s.notifier.Audit(fmt.Sprintf("Ошибка начисления рефералки за покупку %d: %v", p.ID, err))
	}

	result := &CheckResult{Found: true, Confirmed: true, Purchase: p, Subscription: sub}

	link, err := s.gate.CreateInviteLink(ctx)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Не удалось создать ссылку-приглашение")
		s.notifier.Audit(fmt.Sprintf("Ошибка создания ссылки для %d: %v", userID, err))
		result.InviteFailed = true
	} else {
		result.InviteLink = link
	}

	prefix := "Новая подписка"
	if auto {
		prefix = "AUTO-PAYMENT: подписка"
	}
	s.notifier.Audit(fmt.Sprintf(
		"%s: %d — %s USDT до %s",
		prefix, userID, common.FormatUSDT(p.AmountMicros), common.FormatDateTime(sub.EndDate),
	))
	return result, nil
}

// activate записывает подписку по подтверждённой покупке:
// start = момент подтверждения, end = start + период.
func (s *Service) activate(ctx context.Context, p *payments.Purchase) (*Subscription, error) {
	now := s.now()
	txTime := now
	if p.ConfirmedAt != nil {
		txTime = *p.ConfirmedAt
	}
	sub := &Subscription{
		UserID:             p.UserID,
		UniqueAmountMicros: p.AmountMicros,
		Paid:               true,
		StartDate:          now,
		EndDate:            now.AddDate(0, 0, s.days),
		TxAmountMicros:     p.AmountMicros,
		TxTime:             &txTime,
	}
	if err := s.store.Upsert(ctx, sub); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"user_id":  p.UserID,
		"amount":   common.FormatUSDT(p.AmountMicros),
		"end_date": sub.EndDate,
	}).Info("Подписка активирована")
	return sub, nil
}

// Extend продлевает подписку на days дней от её конца (если он в будущем)
// или от текущего момента. Действующий период никогда не укорачивается.
// Для пользователя без записи создаёт новую оплаченную подписку.
func (s *Service) Extend(ctx context.Context, userID int64, days int) (*Subscription, error) {
	now := s.now()
	sub, err := s.store.GetByUserID(ctx, userID)
	if err != nil {
		if !errors.Is(err, common.ErrNoSubscription) {
			return nil, err
		}
		sub = &Subscription{UserID: userID, StartDate: now, EndDate: now}
	}

	base := sub.EndDate
	if base.Before(now) {
		base = now
	}
	if !sub.Paid || sub.EndDate.Before(now) {
		sub.StartDate = now
	}
	sub.EndDate = base.AddDate(0, 0, days)
	sub.Paid = true

	if err := s.store.Upsert(ctx, sub); err != nil {
		return nil, err
	}
	s.notifier.Audit(fmt.Sprintf("EXTEND: %d +%d дн., до %s", userID, days, common.FormatDateTime(sub.EndDate)))
	return sub, nil
}

// Ban снимает оплату и выгоняет пользователя из канала.
func (s *Service) Ban(ctx context.Context, userID int64) error {
	if err := s.store.SetPaid(ctx, userID, false); err != nil {
		return err
	}
	if err := s.gate.BanMember(ctx, userID); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Не удалось забанить пользователя в канале")
	}
	s.notifier.Audit(fmt.Sprintf("BAN: %d", userID))
	return nil
}

// Unban снимает бан в канале, не трогая запись подписки:
// доступ вернётся только после оплаты или продления.
func (s *Service) Unban(ctx context.Context, userID int64) error {
	if err := s.gate.UnbanMember(ctx, userID); err != nil {
		return err
	}
	s.notifier.Audit(fmt.Sprintf("UNBAN: %d", userID))
	return nil
}

// ExpireOverdue — фоновый свип истечения. Снимает оплату с просроченных
// подписок, выгоняет их владельцев из канала (бан и сразу разбан, чтобы
// пользователь мог вернуться по новой ссылке) и уведомляет их.
func (s *Service) ExpireOverdue(ctx context.Context) error {
	ids, err := s.store.ExpireOverdue(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.gate.BanMember(ctx, id); err != nil {
			log.WithError(err).WithField("user_id", id).Warn("Не удалось выгнать пользователя из канала")
		} else if err := s.gate.UnbanMember(ctx, id); err != nil {
			log.WithError(err).WithField("user_id", id).Warn("Не удалось снять бан после выгона")
		}
		s.notifier.NotifyUser(id, "⏳ Твоя подписка закончилась.\nЧтобы вернуться в канал — продли её в боте: «📈 Получить сигналы».")
		s.notifier.Audit(fmt.Sprintf("EXPIRE: %d", id))
		log.WithField("user_id", id).Info("Подписка истекла")
	}
	if len(ids) > 0 {
		log.WithField("count", len(ids)).Info("Свип истечения завершён")
	}
	return nil
}

// PollPending — фоновый опрос оплат: прогоняет каждый живой счёт через
// CheckPayment. Ошибка по одному пользователю не прерывает остальных.
func (s *Service) PollPending(ctx context.Context) error {
	ids, err := s.matcher.PendingUserIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		res, err := s.CheckPayment(ctx, id, true)
		if err != nil {
			log.WithError(err).WithField("user_id", id).Error("Ошибка автопроверки оплаты")
			continue
		}
		if !res.Confirmed {
			continue
		}
		if res.InviteFailed {
			s.notifier.NotifyUser(id, "✅ Оплата найдена автоматически, но не удалось создать ссылку в канал. Напиши в поддержку.")
			continue
		}
		s.notifier.NotifyUser(id, fmt.Sprintf(
			"✅ Оплата найдена автоматически!\nПодписка активна до %s.\n\nВот твоя ссылка в канал (одноразовая):\n%s",
			common.FormatDateTime(res.Subscription.EndDate), res.InviteLink,
		))
	}
	return nil
}

// Get возвращает подписку пользователя (common.ErrNoSubscription, если её нет).
func (s *Service) Get(ctx context.Context, userID int64) (*Subscription, error) {
	return s.store.GetByUserID(ctx, userID)
}

func (s *Service) ListAll(ctx context.Context) ([]*Subscription, error)     { return s.store.ListAll(ctx) }
func (s *Service) ListActive(ctx context.Context) ([]*Subscription, error) { return s.store.ListActive(ctx) }
func (s *Service) ListExpired(ctx context.Context) ([]*Subscription, error) {
	return s.store.ListExpired(ctx)
}

// ExportCSV собирает все подписки в CSV для выгрузки админам.
func (s *Service) ExportCSV(ctx context.Context) ([]byte, error) {
	subs, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write([]string{"user_id", "unique_amount", "paid", "start_date", "end_date", "tx_amount", "tx_time"}); err != nil {
		return nil, fmt.Errorf("не удалось записать заголовок CSV: %w", err)
	}
	for _, sub := range subs {
		paid := "0"
		if sub.Paid {
			paid = "1"
		}
		txTime := ""
		if sub.TxTime != nil {
			txTime = common.FormatDateTime(*sub.TxTime)
		}
		row := []string{
			strconv.FormatInt(sub.UserID, 10),
			common.FormatUSDT(sub.UniqueAmountMicros),
			paid,
			common.FormatDateTime(sub.StartDate),
			common.FormatDateTime(sub.EndDate),
			common.FormatUSDT(sub.TxAmountMicros),
			txTime,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("не удалось записать строку CSV: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("не удалось сформировать CSV: %w", err)
	}
	return buf.Bytes(), nil
}
