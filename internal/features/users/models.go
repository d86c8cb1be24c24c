// Package users управляет учётом пользователей бота.
// models.go описывает структуру записи пользователя.
package users

import "time"

// User представляет пользователя бота.
// Запись создаётся при первом обращении и никогда не удаляется —
// история нужна для аудита. Все суммы в микро-USDT.
type User struct {
	UserID     int64     `db:"user_id"`     // Telegram user ID
	Username   string    `db:"username"`    // @username (может быть пустым)
	FirstSeen  time.Time `db:"first_seen"`  // Первое обращение к боту
	LastActive time.Time `db:"last_active"` // Последняя активность
	ReferrerID *int64    `db:"referrer_id"` // Кто пригласил (nil, если пришёл сам)
	Balance    int64     `db:"balance"`     // Текущий реферальный баланс
	EarnedL1   int64     `db:"earned_l1"`   // Всего заработано с рефералов 1 уровня
	EarnedL2   int64     `db:"earned_l2"`   // Всего заработано с рефералов 2 уровня
	Withdrawn  int64     `db:"withdrawn"`   // Всего выплачено
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// DisplayName возвращает имя для отображения в списках админки.
func (u *User) DisplayName() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return "нет"
}
