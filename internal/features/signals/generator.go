// Package signals генерирует авто-сигналы по рыночным данным Binance
// и публикует их в сигнальный канал по расписанию.
// generator.go — чистая логика построения текста сигнала.
package signals

import (
	"fmt"
	"strings"

	"kriptosignal.ru/signals-bot/internal/clients/binance"
)

// Direction — направление идеи сигнала.
type Direction int

const (
	DirectionNone Direction = iota // Флет, уровней нет
	DirectionLong
	DirectionShort
)

// Порог изменения за 24ч, после которого считаем движение трендом
const trendThresholdPercent = 1.0

// Уровни сделки в долях от цены входа
const (
	stopLossPct    = 0.01
	takeProfit1Pct = 0.02
	takeProfit2Pct = 0.04
)

// DetectDirection определяет направление по изменению цены за 24 часа.
// Без данных об изменении или при |change| <= 1% направления нет.
func DetectDirection(t *binance.Ticker) Direction {
	if !t.HasChange {
		return DirectionNone
	}
	switch {
	case t.ChangePercent > trendThresholdPercent:
		return DirectionLong
	case t.ChangePercent < -trendThresholdPercent:
		return DirectionShort
	default:
		return DirectionNone
	}
}

// Levels — уровни сделки: вход, стоп и два тейка.
type Levels struct {
	Entry       float64
	StopLoss    float64
	TakeProfit1 float64
	TakeProfit2 float64
}

// BuildLevels считает уровни от цены входа: стоп -1%/+1%,
// тейки +2%/+4% (для шорта зеркально).
func BuildLevels(entry float64, dir Direction) Levels {
	switch dir {
	case DirectionLong:
		return Levels{
			Entry:       entry,
			StopLoss:    entry * (1 - stopLossPct),
			TakeProfit1: entry * (1 + takeProfit1Pct),
			TakeProfit2: entry * (1 + takeProfit2Pct),
		}
	case DirectionShort:
		return Levels{
			Entry:       entry,
			StopLoss:    entry * (1 + stopLossPct),
			TakeProfit1: entry * (1 - takeProfit1Pct),
			TakeProfit2: entry * (1 - takeProfit2Pct),
		}
	default:
		return Levels{Entry: entry}
	}
}

// FormatPrice форматирует цену: чем она меньше, тем больше знаков.
func FormatPrice(p float64) string {
	switch {
	case p >= 100:
		return fmt.Sprintf("%.1f", p)
	case p >= 1:
		return fmt.Sprintf("%.2f", p)
	case p >= 0.1:
		return fmt.Sprintf("%.3f", p)
	default:
		return fmt.Sprintf("%.4f", p)
	}
}

// BuildSignalText собирает HTML-текст авто-сигнала по тикеру.
// При флете — обзор без уровней, при тренде — вход, стоп и два тейка.
func BuildSignalText(t *binance.Ticker) string {
	dir := DetectDirection(t)

	var b strings.Builder
	fmt.Fprintf(&b, "📡 <b>Авто-сигнал</b> по <b>%s</b>\n", t.Symbol)
	fmt.Fprintf(&b, "Текущая цена: <b>%s</b> USDT\n", FormatPrice(t.LastPrice))
	if t.HasChange {
		fmt.Fprintf(&b, "Изменение за 24ч: <b>%.2f%%</b>\n", t.ChangePercent)
	}

	switch dir {
	case DirectionLong:
		b.WriteString("\n🟢 Идея: LONG (преобладает восходящее движение за 24ч)\n")
	case DirectionShort:
		b.WriteString("\n🔴 Идея: SHORT (преобладает нисходящее движение за 24ч)\n")
	default:
		if t.HasChange {
			b.WriteString("\n⚪ Рынок во флете, явного тренда за 24ч нет. Сигнал без конкретных уровней.\n")
		}
	}

	if dir != DirectionNone {
		lv := BuildLevels(t.LastPrice, dir)
		dirText := "LONG"
		if dir == DirectionShort {
			dirText = "SHORT"
		}
		fmt.Fprintf(&b, "\n📊 <b>Параметры сделки (%s)</b>\n", dirText)
		fmt.Fprintf(&b, "Вход: <b>%s</b> USDT\n", FormatPrice(lv.Entry))
		fmt.Fprintf(&b, "Стоп-лосс: <b>%s</b> USDT\n", FormatPrice(lv.StopLoss))
		fmt.Fprintf(&b, "Тейк-профит 1: <b>%s</b> USDT\n", FormatPrice(lv.TakeProfit1))
		fmt.Fprintf(&b, "Тейк-профит 2: <b>%s</b> USDT\n", FormatPrice(lv.TakeProfit2))
	}

	b.WriteString("\n⚠️ Это автоматический технический сигнал от бота, не финансовая рекомендация.")
	return b.String()
}
