package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Ur1k/SFP-Strategy-Bot/internal/exchange"
	"github.com/Ur1k/SFP-Strategy-Bot/internal/notify"
)

type Config struct {
	Exchange exchange.Config
	Telegram notify.Config

	Symbol     string
	MarginCoin string
	Timeframe  string
	Leverage   int

	CandleLimit  int
	PollInterval time.Duration

	// EntryAllocation is the fraction of free margin committed as notional
	// on each entry.
	EntryAllocation float64

	DailyReportHourUTC   int
	DailyReportMinuteUTC int

	LedgerFile string
	LogFile    string
	HealthPort string
}

// Load reads the configuration from the environment once at startup.
// Missing credentials are a fatal condition: trading blind is not an option.
func Load() (*Config, error) {
	cfg := &Config{
		Exchange: exchange.Config{
			APIKey:     getEnv("API_KEY", ""),
			APISecret:  getEnv("API_SECRET", ""),
			Passphrase: getEnv("API_PASSPHRASE", ""),
			BaseURL:    getEnv("EXCHANGE_BASE_URL", ""),
		},
		Telegram: notify.Config{
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		},
		Symbol:               getEnv("SYMBOL", "BTCUSDT"),
		MarginCoin:           getEnv("MARGIN_COIN", "USDT"),
		Timeframe:            getEnv("TIMEFRAME", "30m"),
		Leverage:             getEnvInt("LEVERAGE", 10),
		CandleLimit:          getEnvInt("CANDLE_LIMIT", 900),
		PollInterval:         time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 60)) * time.Second,
		EntryAllocation:      getEnvFloat("ENTRY_ALLOCATION", 0.99),
		DailyReportHourUTC:   getEnvInt("DAILY_REPORT_HOUR_UTC", 0),
		DailyReportMinuteUTC: getEnvInt("DAILY_REPORT_MINUTE_UTC", 5),
		LedgerFile:           getEnv("LEDGER_FILE", "trade_log.csv"),
		LogFile:              getEnv("LOG_FILE", "sfp_bot.log"),
		HealthPort:           getEnv("HEALTH_PORT", "8080"),
	}

	var missing []string
	for key, val := range map[string]string{
		"API_KEY":            cfg.Exchange.APIKey,
		"API_SECRET":         cfg.Exchange.APISecret,
		"API_PASSPHRASE":     cfg.Exchange.Passphrase,
		"TELEGRAM_BOT_TOKEN": cfg.Telegram.BotToken,
		"TELEGRAM_CHAT_ID":   cfg.Telegram.ChatID,
	} {
		if val == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
