// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: русская плюрализация, форматирование времени.
package common

import (
	"math"
	"time"
)

// TimeLayout — формат дат, в котором бот показывает время пользователям
// и пишет его в CSV-экспорт.
const TimeLayout = "2006-01-02 15:04"

// PluralizeDays возвращает правильную форму слова «день» для числа n.
//
// Правила:
//   - 1, 21, 31 → "день"
//   - 2-4, 22-24 → "дня"
//   - 5-20, 25-30 → "дней"
func PluralizeDays(n int) string {
	absN := int(math.Abs(float64(n)))
	lastDigit := absN % 10
	lastTwoDigits := absN % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return "день"
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return "дня"
	}
	return "дней"
}

// FormatDateTime форматирует время в формат "2006-01-02 15:04".
// Используется для отображения дат подписок и платежей.
func FormatDateTime(t time.Time) string {
	return t.Format(TimeLayout)
}

// DaysLeft возвращает, сколько полных дней осталось до момента t.
// Для прошедших дат возвращает 0.
func DaysLeft(t time.Time, now time.Time) int {
	if !t.After(now) {
		return 0
	}
	return int(t.Sub(now).Hours() / 24)
}
