// Package common содержит общие утилиты, используемые во всём проекте.
// money.go — работа с суммами USDT. Все суммы в системе хранятся
// как int64 в микро-USDT (6 знаков после запятой, как в TRC-20).
package common

import (
	"fmt"
	"strconv"
	"strings"
)

// MicrosPerUSDT — множитель перевода USDT в микро-USDT.
const MicrosPerUSDT int64 = 1_000_000

// USDTToMicros переводит целое число USDT в микро-USDT.
// Пример: USDTToMicros(50) → 50_000_000
func USDTToMicros(usdt int64) int64 {
	return usdt * MicrosPerUSDT
}

// FormatUSDT форматирует сумму в микро-USDT в читабельную строку.
// Лишние нули в дробной части отбрасываются.
//
// Примеры:
//
//	FormatUSDT(50_047_000) → "50.047"
//	FormatUSDT(50_000_000) → "50"
//	FormatUSDT(-1_500_000) → "-1.5"
func FormatUSDT(micros int64) string {
	sign := ""
	if micros < 0 {
		sign = "-"
		micros = -micros
	}

	whole := micros / MicrosPerUSDT
	frac := micros % MicrosPerUSDT

	if frac == 0 {
		return fmt.Sprintf("%s%d", sign, whole)
	}

	s := strings.TrimRight(fmt.Sprintf("%06d", frac), "0")
	return fmt.Sprintf("%s%d.%s", sign, whole, s)
}

// ParseUSDT разбирает десятичную сумму USDT ("12.5") в микро-USDT.
// Больше шести знаков после запятой — ошибка, TRC-20 их не различает.
func ParseUSDT(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("пустая сумма")
	}

	sign := int64(1)
	if strings.HasPrefix(s, "-") {
		sign = -1
		s = s[1:]
	}

	wholePart, fracPart, _ := strings.Cut(s, ".")
	if wholePart == "" {
		wholePart = "0"
	}
	if len(fracPart) > 6 {
		return 0, fmt.Errorf("слишком много знаков после запятой: %q", s)
	}

	whole, err := strconv.ParseUint(wholePart, 10, 63)
	if err != nil {
		return 0, fmt.Errorf("некорректная сумма: %q", s)
	}
	micros := int64(whole) * MicrosPerUSDT

	if fracPart != "" {
		frac, err := strconv.ParseUint(fracPart, 10, 63)
		if err != nil {
			return 0, fmt.Errorf("некорректная сумма: %q", s)
		}
		f := int64(frac)
		for i := len(fracPart); i < 6; i++ {
			f *= 10
		}
		micros += f
	}

	return sign * micros, nil
}
