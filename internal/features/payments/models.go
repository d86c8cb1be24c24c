// Package payments отвечает за приём оплаты в USDT (TRC-20):
// выставление счетов с уникальной суммой и сверку с переводами на кошелёк.
// models.go описывает структуру покупки.
package payments

import "time"

// Статусы покупки. Переход pending → confirmed происходит ровно один раз,
// через условный UPDATE. superseded — счёт, который пользователь
// перевыставил, не оплатив старый.
const (
	StatusPending    = "pending"
	StatusConfirmed  = "confirmed"
	StatusSuperseded = "superseded"
)

// Purchase — одна попытка покупки подписки.
// Запись в статусе pending одновременно является «счётом на оплату»:
// в ней хранится уникальная сумма, которую бот ждёт на кошельке.
// Хранение счёта в базе (а не в памяти) переживает рестарт бота.
type Purchase struct {
	ID           int64      `db:"id"`
	UserID       int64      `db:"user_id"`
	AmountMicros int64      `db:"amount"` // Уникальная сумма в микро-USDT
	Status       string     `db:"status"`
	CreatedAt    time.Time  `db:"created_at"`
	ConfirmedAt  *time.Time `db:"confirmed_at"`
}
