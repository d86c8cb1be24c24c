// Package trongrid — клиент публичного API TronGrid.
// Бот читает список входящих TRC-20 переводов на кошелёк приёма
// и по ним ищет оплату с уникальной суммой. API считается
// eventually-consistent: переводы могут появляться с задержкой.
package trongrid

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultBaseURL — базовый URL публичного API TronGrid.
const DefaultBaseURL = "https://api.trongrid.io"

// Transfer — один наблюдаемый TRC-20 перевод.
// Сумма в микро-USDT (6 знаков, как в сети).
type Transfer struct {
	AmountMicros int64
	Timestamp    time.Time
}

// Client запрашивает переводы на фиксированный адрес приёма.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	wallet     string
}

// New создаёт клиент TronGrid.
// timeout — таймаут одного запроса; зависшая проверка оплаты хуже,
// чем «не найдено, попробуй позже».
func New(apiKey, wallet string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		wallet:     wallet,
	}
}

// ответ TronGrid: интересуют только сумма и время, остальное игнорируем.
// value/amount приходят строкой целого числа микро-USDT.
type trc20Response struct {
	Data []trc20Entry `json:"data"`
}

type trc20Entry struct {
	Value          string `json:"value"`
	Amount         string `json:"amount"`
	BlockTimestamp int64  `json:"block_timestamp"`
}

// RecentTransfers возвращает последние TRC-20 переводы на кошелёк.
// Сетевые ошибки и не-200 ответы возвращаются как ошибка — вызывающий
// трактует их как «платёж пока не найден». Кривые записи в списке
// пропускаются молча: одна битая транзакция не должна ломать проверку.
func (c *Client) RecentTransfers(ctx context.Context) ([]Transfer, error) {
	url := fmt.Sprintf("%s/v1/accounts/%s/transactions/trc20", c.baseURL, c.wallet)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("TRON-PRO-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса к TronGrid: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("TronGrid ответил статусом %d", resp.StatusCode)
	}

	var parsed trc20Response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("ошибка разбора ответа TronGrid: %w", err)
	}

	transfers := make([]Transfer, 0, len(parsed.Data))
	for _, entry := range parsed.Data {
		raw := entry.Value
		if raw == "" {
			raw = entry.Amount
		}
		if raw == "" {
			continue
		}

		micros, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			log.WithField("value", raw).Debug("Пропускаем транзакцию с кривой суммой")
			continue
		}

		transfers = append(transfers, Transfer{
			AmountMicros: micros,
			Timestamp:    time.UnixMilli(entry.BlockTimestamp),
		})
	}

	return transfers, nil
}
