// Package binance — клиент публичного API Binance.
// Используется только для авто-сигналов: берём статистику за 24 часа
// по торговой паре. Любая ошибка здесь означает «пропустить цикл»,
// а не падение бота.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// DefaultBaseURL — базовый URL публичного API Binance.
const DefaultBaseURL = "https://api.binance.com"

// Ticker — статистика торговой пары за 24 часа.
// ChangePercent может отсутствовать в ответе — тогда HasChange=false
// и сигнал строится без определения тренда.
type Ticker struct {
	Symbol        string
	LastPrice     float64
	ChangePercent float64
	HasChange     bool
}

// Client запрашивает 24h-тикеры у Binance.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New создаёт клиент Binance с заданным таймаутом запросов.
func New(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    DefaultBaseURL,
	}
}

type ticker24hResponse struct {
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
}

// Ticker24h возвращает статистику за 24 часа по паре symbol (например "BTCUSDT").
func (c *Client) Ticker24h(ctx context.Context, symbol string) (*Ticker, error) {
	url := fmt.Sprintf("%s/api/v3/ticker/24hr?symbol=%s", c.baseURL, symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса к Binance: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Binance ответил статусом %d для %s", resp.StatusCode, symbol)
	}

	var parsed ticker24hResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("ошибка разбора ответа Binance: %w", err)
	}

	// Без цены сигнал не построить — это жёсткая ошибка цикла
	price, err := strconv.ParseFloat(parsed.LastPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("некорректная цена %q для %s", parsed.LastPrice, symbol)
	}

	t := &Ticker{Symbol: symbol, LastPrice: price}

	// Изменение за 24ч — опциональное поле
	if chg, err := strconv.ParseFloat(parsed.PriceChangePercent, 64); err == nil {
		t.ChangePercent = chg
		t.HasChange = true
	}

	return t, nil
}
