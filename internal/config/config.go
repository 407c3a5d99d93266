/**
 * @description
 * This package handles the configuration management for the settlement
 * watcher. It uses the Viper library to read configuration from environment
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

// Config holds all the configuration variables for the settlement watcher.
// These values are loaded from environment variables.
type Config struct {
	ServerPort            string `mapstructure:"SERVER_PORT"`
	DatabaseURL           string `mapstructure:"DATABASE_URL"`
	RedisURL              string `mapstructure:"REDIS_URL"`
	RedisOrderLockPrefix  string `mapstructure:"REDIS_ORDER_LOCK_PREFIX"`
	RabbitMQURL           string `mapstructure:"RABBITMQ_URL"`
	OrderEventsExchange   string `mapstructure:"ORDER_EVENTS_EXCHANGE"`
	Network               string `mapstructure:"NETWORK"`
	RPCURL                string `mapstructure:"RPC_URL"`
	FeedAppID             string `mapstructure:"FEED_APP_ID"`
	FeedServerURL         string `mapstructure:"FEED_SERVER_URL"`
	FeedTable             string `mapstructure:"FEED_TABLE"`
	MerchantWalletAddress string `mapstructure:"MERCHANT_WALLET_ADDRESS"`
	GasPriceMultiplier    int64  `mapstructure:"GAS_PRICE_MULTIPLIER"`
	GasPriceCapGwei       int64  `mapstructure:"GAS_PRICE_CAP_GWEI"`
	PermitDeadlineSeconds int64  `mapstructure:"PERMIT_DEADLINE_SECONDS"`
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
	viper.SetDefault("SERVER_PORT", "8084")
	viper.SetDefault("FEED_TABLE", "TransfersDLYCOP")
	viper.SetDefault("ORDER_EVENTS_EXCHANGE", "dlycop_events")
	viper.SetDefault("REDIS_ORDER_LOCK_PREFIX", "dlycop:order_lock")
	viper.SetDefault("NETWORK", "TESTNET")
	viper.SetDefault("GAS_PRICE_MULTIPLIER", 10)
	viper.SetDefault("GAS_PRICE_CAP_GWEI", 500)
	viper.SetDefault("PERMIT_DEADLINE_SECONDS", 3600)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_ORDER_LOCK_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("ORDER_EVENTS_EXCHANGE")
	_ = viper.BindEnv("NETWORK")
	_ = viper.BindEnv("RPC_URL")
	_ = viper.BindEnv("FEED_APP_ID", "FEED_APP_ID", "MORALIS_APPID")
	_ = viper.BindEnv("FEED_SERVER_URL", "FEED_SERVER_URL", "MORALIS_SERVER_URL")
	_ = viper.BindEnv("FEED_TABLE")
	_ = viper.BindEnv("MERCHANT_WALLET_ADDRESS")
	_ = viper.BindEnv("GAS_PRICE_MULTIPLIER")
	_ = viper.BindEnv("GAS_PRICE_CAP_GWEI")
	_ = viper.BindEnv("PERMIT_DEADLINE_SECONDS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
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

	config.Network = strings.ToUpper(strings.TrimSpace(config.Network))
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	config.MerchantWalletAddress = strings.TrimSpace(config.MerchantWalletAddress)

	if config.GasPriceMultiplier <= 0 {
		config.GasPriceMultiplier = 10
	}
	if config.GasPriceCapGwei <= 0 {
		config.GasPriceCapGwei = 500
	}
	if config.PermitDeadlineSeconds <= 0 {
		config.PermitDeadlineSeconds = 3600
	}

	return
}
