// Package referral реализует двухуровневую партнёрскую программу:
// с каждой подтверждённой покупки пригласивший (уровень 1) и его
// пригласивший (уровень 2) получают процент на реферальный баланс.
// models.go описывает структуру начисления.
package referral

import "time"

// Уровни реферальной цепочки.
const (
	LevelDirect   = 1 // прямой пригласивший
	LevelIndirect = 2 // пригласивший пригласившего
)

// Earning — одно начисление партнёру. Журнал только добавляется;
// пара (purchase_id, level) уникальна, поэтому повторное проведение
// одной и той же покупки не удваивает начисления.
type Earning struct {
	ID           int64     `db:"id"`
	PurchaseID   int64     `db:"purchase_id"` // За какую покупку
	ReferrerID   int64     `db:"referrer_id"` // Кому начислено
	ReferredID   int64     `db:"referred_id"` // Чья покупка
	Level        int       `db:"level"`       // 1 или 2
	AmountMicros int64     `db:"amount"`      // Бонус в микро-USDT
	CreatedAt    time.Time `db:"created_at"`
}

// PartnerStats — сводка для экрана партнёрки.
type PartnerStats struct {
	Invited   int   // Сколько пользователей приглашено напрямую
	Balance   int64 // Текущий баланс
	EarnedL1  int64 // Всего заработано с 1 уровня
	EarnedL2  int64 // Всего заработано со 2 уровня
	Withdrawn int64 // Всего выплачено
}
