/**
 * @description
 * This package handles the configuration management for the ledger-service.
 * It uses the Viper library to read configuration from environment
 * variables, providing a centralized and straightforward way to manage
 * application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the ledger-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort              string `mapstructure:"SERVER_PORT"`
	DatabaseURL             string `mapstructure:"DATABASE_URL"`
	RedisURL                string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix    string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL             string `mapstructure:"RABBITMQ_URL"`
	CardEventQueue          string `mapstructure:"CARD_EVENT_QUEUE"`
	FundingEventQueue       string `mapstructure:"FUNDING_EVENT_QUEUE"`
	CardAPIBaseURL          string `mapstructure:"CARD_API_BASE_URL"`
	CardAPIKey              string `mapstructure:"CARD_API_KEY"`
	ClerkJWKSURL            string `mapstructure:"CLERK_JWKS_URL"`
	ClerkAudience           string `mapstructure:"CLERK_AUDIENCE"`
	ClerkIssuer             string `mapstructure:"CLERK_ISSUER"`
	LoanGraceDays           int    `mapstructure:"LOAN_GRACE_DAYS"`
	LoanDefaultAfterMisses  int    `mapstructure:"LOAN_DEFAULT_AFTER_MISSES"`
	LoanSweepSchedule       string `mapstructure:"LOAN_SWEEP_SCHEDULE"`
	GoalDeadlineSchedule    string `mapstructure:"GOAL_DEADLINE_SCHEDULE"`
	TransferRateLimitPerMin int    `mapstructure:"TRANSFER_RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("CARD_EVENT_QUEUE", "ledger_service.card_settlements")
	viper.SetDefault("FUNDING_EVENT_QUEUE", "ledger_service.funding_events")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "hearthpay:rate_limit")
	viper.SetDefault("LOAN_GRACE_DAYS", 3)
	viper.SetDefault("LOAN_DEFAULT_AFTER_MISSES", 2)
	viper.SetDefault("LOAN_SWEEP_SCHEDULE", "0 6 * * *")      // Daily at 06:00.
	viper.SetDefault("GOAL_DEADLINE_SCHEDULE", "30 6 * * *")  // Daily at 06:30.
	viper.SetDefault("TRANSFER_RATE_LIMIT_PER_MINUTE", 60)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "LEDGER_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("CARD_EVENT_QUEUE")
	_ = viper.BindEnv("FUNDING_EVENT_QUEUE")
	_ = viper.BindEnv("CARD_API_BASE_URL")
	_ = viper.BindEnv("CARD_API_KEY")
	_ = viper.BindEnv("CLERK_JWKS_URL")
	_ = viper.BindEnv("CLERK_AUDIENCE")
	_ = viper.BindEnv("CLERK_ISSUER")
	_ = viper.BindEnv("LOAN_GRACE_DAYS")
	_ = viper.BindEnv("LOAN_DEFAULT_AFTER_MISSES")
	_ = viper.BindEnv("LOAN_SWEEP_SCHEDULE")
	_ = viper.BindEnv("GOAL_DEADLINE_SCHEDULE")
	_ = viper.BindEnv("TRANSFER_RATE_LIMIT_PER_MINUTE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "hearthpay:rate_limit"
	}

	if config.LoanGraceDays < 0 {
		log.Printf("level=warn component=config msg=\"negative loan grace days configured; coercing to zero\" grace_days=%d", config.LoanGraceDays)
		config.LoanGraceDays = 0
	}
	if config.LoanDefaultAfterMisses <= 0 {
		config.LoanDefaultAfterMisses = 2
	}
	if config.TransferRateLimitPerMin <= 0 {
		config.TransferRateLimitPerMin = 60
	}

	return
}
