package signals

import (
	"context"
	"math/rand"

	log "github.com/sirupsen/logrus"

	"kriptosignal.ru/signals-bot/internal/clients/binance"
)

// priceFeed — источник рыночных данных для сигналов.
type priceFeed interface {
	Ticker24h(ctx context.Context, symbol string) (*binance.Ticker, error)
}

// Service публикует авто-сигналы в сигнальный канал.
type Service struct {
	feed      priceFeed
	send      func(chatID int64, html string) error
	channelID int64
	symbols   []string
	enabled   bool
	pick      func(n int) int // выбор случайного символа, в тестах подменяется
}

// NewService создаёт сервис авто-сигналов. send — функция отправки
// HTML-сообщения (внедряется ботом, чтобы не тянуть сюда API Telegram).
func NewService(feed priceFeed, send func(chatID int64, html string) error, channelID int64, symbols []string, enabled bool) *Service {
	if len(symbols) == 0 {
		symbols = []string{"BTCUSDT"}
	}
	return &Service{
		feed:      feed,
		send:      send,
		channelID: channelID,
		symbols:   symbols,
		enabled:   enabled,
		pick:      rand.Intn,
	}
}

// PostAutoSignal строит сигнал по случайному инструменту и шлёт его
// в канал. Ошибки рынка или отправки означают пропуск цикла.
func (s *Service) PostAutoSignal(ctx context.Context) error {
	if !s.enabled || s.channelID == 0 {
		return nil
	}

	symbol := s.symbols[s.pick(len(s.symbols))]
	ticker, err := s.feed.Ticker24h(ctx, symbol)
	if err != nil {
		log.WithError(err).WithField("symbol", symbol).Warn("Не удалось получить данные для авто-сигнала")
		return err
	}

	text := BuildSignalText(ticker)
	if err := s.send(s.channelID, text); err != nil {
		log.WithError(err).Error("Не удалось отправить авто-сигнал")
		return err
	}

	log.WithFields(log.Fields{
		"symbol":  symbol,
		"channel": s.channelID,
	}).Info("Авто-сигнал отправлен")
	return nil
}
