// Package subscription управляет жизненным циклом подписки на закрытый канал:
// выставление счёта, подтверждение оплаты, продление, бан и истечение.
// models.go описывает запись подписки.
package subscription

import "time"

// Subscription — запись подписки, одна на пользователя.
// При продлении перезаписывается, версий не хранится; paid снимается
// свипом истечения или баном, сама запись никогда не удаляется.
type Subscription struct {
	UserID             int64      `db:"user_id"`
	UniqueAmountMicros int64      `db:"unique_amount"` // Сумма, которой была оплачена подписка
	Paid               bool       `db:"paid"`
	StartDate          time.Time  `db:"start_date"`
	EndDate            time.Time  `db:"end_date"`
	TxAmountMicros     int64      `db:"tx_amount"` // Сумма последнего платежа
	TxTime             *time.Time `db:"tx_time"`   // Время последнего платежа
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
}

// IsActive сообщает, действует ли подписка в момент now.
func (s *Subscription) IsActive(now time.Time) bool {
	return s.Paid && s.EndDate.After(now)
}
