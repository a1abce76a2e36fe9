/**
 * @description
 * This package handles configuration management for the service. It uses the
 * Viper library to read configuration from environment variables (with an
 * optional .env file), providing a centralized way to manage settings — in
 * particular the anti-fraud thresholds, which must be tunable without a code
 * change.
 *
 * @dependencies
 * - github.com/spf13/viper: Application configuration.
 * - github.com/shopspring/decimal: Exact parsing of the fraud amount ceiling.
 */

package config

import (
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the transaction-service.
type Config struct {
	ServerPort        string `mapstructure:"SERVER_PORT"`
	DatabaseURL       string `mapstructure:"DATABASE_URL"`
	RabbitMQURL       string `mapstructure:"RABBITMQ_URL"`
	RedisURL          string `mapstructure:"REDIS_URL"`
	JWTSecret         string `mapstructure:"JWT_SECRET"`
	EventExchange     string `mapstructure:"EVENT_EXCHANGE"`
	UpgradeEventQueue string `mapstructure:"UPGRADE_EVENT_QUEUE"`

	MaxTransactionAmount   string `mapstructure:"MAX_TRANSACTION_AMOUNT"`
	VelocityWindowSeconds  int    `mapstructure:"VELOCITY_WINDOW_SECONDS"`
	VelocityThreshold      int64  `mapstructure:"VELOCITY_THRESHOLD"`
	DuplicateWindowSeconds int    `mapstructure:"DUPLICATE_WINDOW_SECONDS"`
	DuplicateThreshold     int64  `mapstructure:"DUPLICATE_THRESHOLD"`
	DailyTransactionCap    int64  `mapstructure:"DAILY_TRANSACTION_CAP"`

	EventDedupeTTLMinutes int    `mapstructure:"EVENT_DEDUPE_TTL_MINUTES"`
	EventDedupePrefix     string `mapstructure:"EVENT_DEDUPE_PREFIX"`
}

// VelocityWindow returns the trailing window for the frequency rule.
func (c Config) VelocityWindow() time.Duration {
	return time.Duration(c.VelocityWindowSeconds) * time.Second
}

// DuplicateWindow returns the trailing window for the duplicate rule.
func (c Config) DuplicateWindow() time.Duration {
	return time.Duration(c.DuplicateWindowSeconds) * time.Second
}

// EventDedupeTTL returns how long processed event ids are remembered.
func (c Config) EventDedupeTTL() time.Duration {
	return time.Duration(c.EventDedupeTTLMinutes) * time.Minute
}

// MaxAmount parses the configured fraud ceiling as an exact decimal.
func (c Config) MaxAmount() decimal.Decimal {
	amount, err := decimal.NewFromString(strings.TrimSpace(c.MaxTransactionAmount))
	if err != nil || !amount.IsPositive() {
		log.Printf("level=warn component=config msg=\"invalid MAX_TRANSACTION_AMOUNT; using default\" value=%q", c.MaxTransactionAmount)
		return decimal.RequireFromString("100.00")
	}
	return amount
}

// LoadConfig reads configuration from environment variables from the given
// path. It uses Viper to bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("EVENT_EXCHANGE", "melodyhub.events")
	viper.SetDefault("UPGRADE_EVENT_QUEUE", "account.subscription.upgrades")
	viper.SetDefault("MAX_TRANSACTION_AMOUNT", "100.00")
	viper.SetDefault("VELOCITY_WINDOW_SECONDS", 120)
	viper.SetDefault("VELOCITY_THRESHOLD", 3)
	viper.SetDefault("DUPLICATE_WINDOW_SECONDS", 120)
	viper.SetDefault("DUPLICATE_THRESHOLD", 2)
	viper.SetDefault("DAILY_TRANSACTION_CAP", 5)
	viper.SetDefault("EVENT_DEDUPE_TTL_MINUTES", 1440)
	viper.SetDefault("EVENT_DEDUPE_PREFIX", "melodyhub:events:processed")

	// Bind environment variables explicitly so they appear in Unmarshal.
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("EVENT_EXCHANGE")
	_ = viper.BindEnv("UPGRADE_EVENT_QUEUE")
	_ = viper.BindEnv("MAX_TRANSACTION_AMOUNT")
	_ = viper.BindEnv("VELOCITY_WINDOW_SECONDS")
	_ = viper.BindEnv("VELOCITY_THRESHOLD")
	_ = viper.BindEnv("DUPLICATE_WINDOW_SECONDS")
	_ = viper.BindEnv("DUPLICATE_THRESHOLD")
	_ = viper.BindEnv("DAILY_TRANSACTION_CAP")
	_ = viper.BindEnv("EVENT_DEDUPE_TTL_MINUTES")
	_ = viper.BindEnv("EVENT_DEDUPE_PREFIX")

	// Attempt to read the optional config file; absence is fine.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if config.VelocityWindowSeconds <= 0 {
		config.VelocityWindowSeconds = 120
	}
	if config.VelocityThreshold <= 0 {
		config.VelocityThreshold = 3
	}
	if config.DuplicateWindowSeconds <= 0 {
		config.DuplicateWindowSeconds = 120
	}
	if config.DuplicateThreshold <= 0 {
		config.DuplicateThreshold = 2
	}
	if config.DailyTransactionCap <= 0 {
		config.DailyTransactionCap = 5
	}
	if config.EventDedupeTTLMinutes <= 0 {
		config.EventDedupeTTLMinutes = 1440
	}

	return
}
