package signals

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kriptosignal.ru/signals-bot/internal/clients/binance"
)

func TestDetectDirection(t *testing.T) {
	tests := []struct {
		name   string
		ticker binance.Ticker
		want   Direction
	}{
		{"рост больше процента", binance.Ticker{ChangePercent: 2.5, HasChange: true}, DirectionLong},
		{"падение больше процента", binance.Ticker{ChangePercent: -3.1, HasChange: true}, DirectionShort},
		{"флет", binance.Ticker{ChangePercent: 0.4, HasChange: true}, DirectionNone},
		{"ровно порог — ещё флет", binance.Ticker{ChangePercent: 1.0, HasChange: true}, DirectionNone},
		{"ровно минус порог — ещё флет", binance.Ticker{ChangePercent: -1.0, HasChange: true}, DirectionNone},
		{"нет данных об изменении", binance.Ticker{ChangePercent: 5, HasChange: false}, DirectionNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectDirection(&tt.ticker))
		})
	}
}

func TestBuildLevels(t *testing.T) {
	t.Run("long", func(t *testing.T) {
		lv := BuildLevels(100, DirectionLong)
		assert.InDelta(t, 99.0, lv.StopLoss, 1e-9)
		assert.InDelta(t, 102.0, lv.TakeProfit1, 1e-9)
		assert.InDelta(t, 104.0, lv.TakeProfit2, 1e-9)
	})
	t.Run("short зеркален", func(t *testing.T) {
		lv := BuildLevels(100, DirectionShort)
		assert.InDelta(t, 101.0, lv.StopLoss, 1e-9)
		assert.InDelta(t, 98.0, lv.TakeProfit1, 1e-9)
		assert.InDelta(t, 96.0, lv.TakeProfit2, 1e-9)
	})
}

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		price float64
		want  string
	}{
		{64000.5, "64000.5"},
		{150.0, "150.0"},
		{3.14159, "3.14"},
		{0.5432, "0.543"},
		{0.012345, "0.0123"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatPrice(tt.price))
	}
}

func TestBuildSignalText_Long(t *testing.T) {
	text := BuildSignalText(&binance.Ticker{
		Symbol:        "BTCUSDT",
		LastPrice:     64000,
		ChangePercent: 3.2,
		HasChange:     true,
	})

	assert.Contains(t, text, "Авто-сигнал</b> по <b>BTCUSDT")
	assert.Contains(t, text, "🟢 Идея: LONG")
	assert.Contains(t, text, "Параметры сделки (LONG)")
	assert.Contains(t, text, "Вход: <b>64000.0</b>")
	assert.Contains(t, text, "Стоп-лосс: <b>63360.0</b>")
	assert.Contains(t, text, "Тейк-профит 1: <b>65280.0</b>")
	assert.Contains(t, text, "Тейк-профит 2: <b>66560.0</b>")
	assert.Contains(t, text, "не финансовая рекомендация")
}

func TestBuildSignalText_FlatHasNoLevels(t *testing.T) {
	text := BuildSignalText(&binance.Ticker{
		Symbol:        "ETHUSDT",
		LastPrice:     3000,
		ChangePercent: 0.2,
		HasChange:     true,
	})

	assert.Contains(t, text, "⚪ Рынок во флете")
	assert.NotContains(t, text, "Параметры сделки")
	assert.NotContains(t, text, "Стоп-лосс")
}

func TestBuildSignalText_NoChangeData(t *testing.T) {
	text := BuildSignalText(&binance.Ticker{Symbol: "TONUSDT", LastPrice: 5.5})

	assert.Contains(t, text, "Текущая цена: <b>5.50</b>")
	assert.NotContains(t, text, "Изменение за 24ч")
	assert.NotContains(t, text, "Параметры сделки")
}

type fakeFeed struct {
	ticker *binance.Ticker
	err    error
	asked  []string
}

func (f *fakeFeed) Ticker24h(_ context.Context, symbol string) (*binance.Ticker, error) {
	f.asked = append(f.asked, symbol)
	if f.err != nil {
		return nil, f.err
	}
	t := *f.ticker
	t.Symbol = symbol
	return &t, nil
}

func TestPostAutoSignal_SendsToChannel(t *testing.T) {
	feed := &fakeFeed{ticker: &binance.Ticker{LastPrice: 100, ChangePercent: 2, HasChange: true}}
	var sentChat int64
	var sentText string
	svc := NewService(feed, func(chatID int64, html string) error {
		sentChat = chatID
		sentText = html
		return nil
	}, -100500, []string{"BTCUSDT", "ETHUSDT"}, true)
	svc.pick = func(int) int { return 1 }

	require.NoError(t, svc.PostAutoSignal(context.Background()))
	assert.Equal(t, int64(-100500), sentChat)
	assert.Contains(t, sentText, "ETHUSDT")
	assert.Equal(t, []string{"ETHUSDT"}, feed.asked)
}

func TestPostAutoSignal_DisabledIsNoop(t *testing.T) {
	feed := &fakeFeed{ticker: &binance.Ticker{LastPrice: 100}}
	svc := NewService(feed, func(int64, string) error {
		t.Fatal("отправки быть не должно")
		return nil
	}, -100500, nil, false)

	require.NoError(t, svc.PostAutoSignal(context.Background()))
	assert.Empty(t, feed.asked)
}

func TestPostAutoSignal_FeedErrorSkipsCycle(t *testing.T) {
	feed := &fakeFeed{err: errors.New("binance лежит")}
	sent := false
	svc := NewService(feed, func(int64, string) error {
		sent = true
		return nil
	}, -100500, []string{"BTCUSDT"}, true)

	err := svc.PostAutoSignal(context.Background())
	require.Error(t, err)
	assert.False(t, sent)
}
