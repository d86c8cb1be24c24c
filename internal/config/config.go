// Package config загружает конфигурацию бота из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Telegram ---
	AdminIDsRaw      string  `envconfig:"ADMIN_IDS" required:"true"`
	AdminIDs         []int64 `envconfig:"-"` // заполним вручную
	TelegramBotToken string  `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	// ID закрытого канала с сигналами (куда выдаём доступ по подписке)
	ChannelID int64 `envconfig:"CHANNEL_ID" required:"true"`

	// --- Database ---
	// В Docker внутри контейнера "localhost" почти всегда неправильно.
	// Дефолт ставим "postgres" (имя сервиса в docker-compose), а для локалки переопределяй DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"botuser"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"signals_bot"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`

	// --- Bot runtime ---
	// Сколько апдейтов обрабатываем параллельно. Иначе "go на каждый апдейт" = утечка памяти при флуде.
	BotMaxInflight int `envconfig:"BOT_MAX_INFLIGHT" default:"64"`
	// Таймаут long polling (секунды)
	BotUpdateTimeoutSeconds int `envconfig:"BOT_UPDATE_TIMEOUT_SECONDS" default:"60"`

	// --- Admin ---
	AdminPasswordHash string `envconfig:"ADMIN_PASSWORD_HASH" required:"true"`

	// --- Оплата (TRC-20 USDT) ---
	TrongridAPIKey string `envconfig:"TRONGRID_API_KEY" required:"true"`
	WalletAddress  string `envconfig:"WALLET_ADDRESS" required:"true"`
	// Базовая цена подписки в целых USDT, к ней добавляется уникальный хвост
	PriceUSDT int64 `envconfig:"PRICE_USDT" default:"50"`
	// Срок подписки в днях
	SubscriptionDays int `envconfig:"SUBSCRIPTION_DAYS" default:"30"`
	// Допуск при сравнении суммы перевода с уникальной суммой (в микро-USDT)
	MatchToleranceMicros int64 `envconfig:"MATCH_TOLERANCE_MICROS" default:"0"`
	// Таймаут запросов к внешним API (TronGrid, Binance)
	APITimeout time.Duration `envconfig:"API_TIMEOUT" default:"10s"`

	// --- Фоновые задачи ---
	ExpireCheckInterval time.Duration `envconfig:"EXPIRE_CHECK_INTERVAL" default:"30m"`
	PaymentScanInterval time.Duration `envconfig:"PAYMENT_SCAN_INTERVAL" default:"60s"`

	// --- Реферальная программа ---
	ReferralL1Percent int `envconfig:"REFERRAL_L1_PERCENT" default:"10"`
	ReferralL2Percent int `envconfig:"REFERRAL_L2_PERCENT" default:"5"`

	// --- Авто-сигналы ---
	AutoSignalsEnabled bool  `envconfig:"AUTO_SIGNALS_ENABLED" default:"true"`
	AutoSignalsPerDay  int   `envconfig:"AUTO_SIGNALS_PER_DAY" default:"4"`
	SignalsChannelID   int64 `envconfig:"SIGNALS_CHANNEL_ID"`
	// Список торговых пар через запятую, например "BTCUSDT,ETHUSDT"
	SignalSymbolsRaw string   `envconfig:"SIGNAL_SYMBOLS" default:"BTCUSDT,ETHUSDT,SOLUSDT"`
	SignalSymbols    []string `envconfig:"-"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"10"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// --- Тексты ---
	SupportContact string `envconfig:"SUPPORT_CONTACT" default:"@your_support_username"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

func (c *Config) Validate() error {
	if c.ChannelID == 0 {
		return fmt.Errorf("CHANNEL_ID не задан или равен 0")
	}
	if len(c.AdminIDs) == 0 {
		return fmt.Errorf("ADMIN_IDS пуст")
	}
	if c.PriceUSDT <= 0 {
		return fmt.Errorf("PRICE_USDT должен быть > 0")
	}
	if c.SubscriptionDays <= 0 {
		return fmt.Errorf("SUBSCRIPTION_DAYS должен быть > 0")
	}
	if c.BotMaxInflight <= 0 {
		return fmt.Errorf("BOT_MAX_INFLIGHT должен быть > 0")
	}
	if c.BotUpdateTimeoutSeconds <= 0 {
		return fmt.Errorf("BOT_UPDATE_TIMEOUT_SECONDS должен быть > 0")
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if c.ReferralL1Percent < 0 || c.ReferralL1Percent > 100 ||
		c.ReferralL2Percent < 0 || c.ReferralL2Percent > 100 {
		return fmt.Errorf("проценты рефералки должны быть в диапазоне 0..100")
	}
	if c.AutoSignalsEnabled {
		if c.AutoSignalsPerDay <= 0 {
			return fmt.Errorf("AUTO_SIGNALS_PER_DAY должен быть > 0")
		}
		if c.SignalsChannelID == 0 {
			return fmt.Errorf("SIGNALS_CHANNEL_ID не задан, а авто-сигналы включены")
		}
	}
	return nil
}

// IsAdmin проверяет, входит ли пользователь в список администраторов.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// SignalInterval возвращает интервал между авто-сигналами.
func (c *Config) SignalInterval() time.Duration {
	perDay := c.AutoSignalsPerDay
	if perDay < 1 {
		perDay = 1
	}
	return 24 * time.Hour / time.Duration(perDay)
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	ids, err := parseInt64CSV(cfg.AdminIDsRaw)
	if err != nil {
		return nil, fmt.Errorf("ADMIN_IDS parse: %w", err)
	}
	cfg.AdminIDs = ids
	cfg.SignalSymbols = parseCSV(cfg.SignalSymbolsRaw)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseInt64CSV(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad int64 %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}
