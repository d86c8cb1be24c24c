// Package payments — matcher.go генерирует уникальные суммы и сверяет
// их с переводами на кошелёк.
//
// Идея схемы: к базовой цене добавляется случайный трёхзначный
// десятичный хвост (50 USDT → 50.047). По точному совпадению суммы
// перевода бот понимает, кто из ожидающих оплатил. Хвост даёт всего
// 999 вариантов, поэтому занятость суммы проверяется по базе
// и при коллизии хвост перегенерируется.
package payments

import (
	"context"
	"errors"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"

	"kriptosignal.ru/signals-bot/internal/clients/trongrid"
	"kriptosignal.ru/signals-bot/internal/common"
)

// mintRetries — сколько раз перегенерируем хвост при коллизии суммы.
const mintRetries = 25

// intentStore — операции со счетами, нужные матчеру.
// Реализуется Repository; в тестах подменяется фейком.
type intentStore interface {
	CreateIntent(ctx context.Context, userID int64, amountMicros int64) (*Purchase, error)
	GetPendingByUser(ctx context.Context, userID int64) (*Purchase, error)
	ConfirmPending(ctx context.Context, userID int64) (*Purchase, bool, error)
	ListPendingUserIDs(ctx context.Context) ([]int64, error)
	ListConfirmed(ctx context.Context) ([]*Purchase, error)
}

// transferFeed — источник наблюдаемых переводов (TronGrid).
type transferFeed interface {
	RecentTransfers(ctx context.Context) ([]trongrid.Transfer, error)
}

// Matcher выставляет счета с уникальной суммой и ищет их оплату
// в ленте переводов.
type Matcher struct {
	store           intentStore
	feed            transferFeed
	basePriceMicros int64
	toleranceMicros int64
	randTail        func() int64 // подменяется в тестах
}

// NewMatcher создаёт матчер оплат.
// basePriceMicros — базовая цена подписки, toleranceMicros — допуск
// при сравнении суммы перевода с целевой (0 = точное совпадение).
func NewMatcher(store intentStore, feed transferFeed, basePriceMicros, toleranceMicros int64) *Matcher {
	return &Matcher{
		store:           store,
		feed:            feed,
		basePriceMicros: basePriceMicros,
		toleranceMicros: toleranceMicros,
		randTail:        func() int64 { return int64(rand.Intn(999) + 1) },
	}
}

// MintIntent выставляет пользователю счёт с уникальной суммой:
// базовая цена + случайный хвост 0.001..0.999 USDT.
// Если сумма занята другим живым счётом — пробует другой хвост.
func (m *Matcher) MintIntent(ctx context.Context, userID int64) (*Purchase, error) {
	for i := 0; i < mintRetries; i++ {
		amount := m.basePriceMicros + m.randTail()*1000

		p, err := m.store.CreateIntent(ctx, userID, amount)
		if err != nil {
			if errors.Is(err, ErrAmountTaken) {
				continue
			}
			return nil, err
		}

		log.WithFields(log.Fields{
			"user_id": userID,
			"amount":  common.FormatUSDT(amount),
		}).Info("Выставлен счёт на оплату")
		return p, nil
	}

	return nil, common.ErrMintCollision
}

// CheckForPayment проверяет, пришла ли оплата по живому счёту пользователя.
// Ошибки ленты переводов (таймаут, не-200, кривой ответ) трактуются как
// «платёж пока не найден»: следующий цикл свипа или повторное нажатие
// кнопки доберут результат. Если живого счёта нет — common.ErrNoPendingIntent.
func (m *Matcher) CheckForPayment(ctx context.Context, userID int64) (bool, error) {
	intent, err := m.store.GetPendingByUser(ctx, userID)
	if err != nil {
		return false, err
	}

	transfers, err := m.feed.RecentTransfers(ctx)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).
			Warn("Лента переводов недоступна, считаем что оплаты пока нет")
		return false, nil
	}

	for _, tr := range transfers {
		if absDiff(tr.AmountMicros, intent.AmountMicros) <= m.toleranceMicros {
			log.WithFields(log.Fields{
				"user_id": userID,
				"amount":  common.FormatUSDT(tr.AmountMicros),
				"tx_time": tr.Timestamp.Format(time.RFC3339),
			}).Info("Найден перевод с нужной суммой")
			return true, nil
		}
	}

	return false, nil
}

// ConfirmIntent атомарно потребляет живой счёт пользователя.
// Именно этот вызов делает подтверждение ровно-один-раз: все
// неидемпотентные действия (рефералка, инвайт) выполняются только
// когда он вернул true.
func (m *Matcher) ConfirmIntent(ctx context.Context, userID int64) (*Purchase, bool, error) {
	return m.store.ConfirmPending(ctx, userID)
}

// PendingIntent возвращает живой счёт пользователя.
func (m *Matcher) PendingIntent(ctx context.Context, userID int64) (*Purchase, error) {
	return m.store.GetPendingByUser(ctx, userID)
}

// PendingUserIDs возвращает пользователей, ожидающих оплату.
func (m *Matcher) PendingUserIDs(ctx context.Context) ([]int64, error) {
	return m.store.ListPendingUserIDs(ctx)
}

// ConfirmedPurchases — история подтверждённых платежей (для админки).
func (m *Matcher) ConfirmedPurchases(ctx context.Context) ([]*Purchase, error) {
	return m.store.ListConfirmed(ctx)
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
