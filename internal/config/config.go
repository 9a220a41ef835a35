package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// LoadConfig loads the configuration and sets default values for development/production
func LoadConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create a default one
			return createDefaultConfig()
		}
		return fmt.Errorf("error reading config file: %w", err)
	}

	setDefaults()

	return nil
}

// setDefaults sets default configuration values based on the environment
func setDefaults() {
	env := viper.GetString("ENV")
	if env == "" {
		env = "development"
		viper.Set("ENV", env)
	}

	if env == "development" {
		viper.SetDefault("allowed_origin", "http://localhost:3000")
		viper.SetDefault("history_db_path", "./dev_batchpay.db")
		viper.SetDefault("session_db_path", "./dev_batchpay_session.db")
		viper.SetDefault("log_level", "debug")
	} else if env == "production" {
		viper.SetDefault("allowed_origin", "https://batchpay.app")
		viper.SetDefault("history_db_path", "/var/lib/batchpay/history.db")
		viper.SetDefault("session_db_path", "/var/lib/batchpay/session.db")
		viper.SetDefault("log_level", "info")
	}

	// Network and contract identifiers
	viper.SetDefault("network", "testnet") // or "mainnet"
	viper.SetDefault("stacks_api_url", "https://api.testnet.hiro.so")
	viper.SetDefault("contract_address", "ST262DFWDS07XGFC8HYE4H7MAESRD6M6G1B3K48JF")
	viper.SetDefault("contract_name", "batch-transfer")
	viper.SetDefault("sbtc_contract", "ST1F7QA2MDF17S807EPA36TSS8AMEFY4KA9TVGWXT.sbtc-token")
	viper.SetDefault("mock_sbtc_contract", "ST262DFWDS07XGFC8HYE4H7MAESRD6M6G1B3K48JF.mock-sbtc")
	viper.SetDefault("explorer_url", "https://explorer.stacks.co")

	// Batch limits and fee model, in sats
	viper.SetDefault("max_recipients", 200)
	viper.SetDefault("fee_floor", 500)
	viper.SetDefault("fee_rate", 0.001)

	// Price feed
	viper.SetDefault("price_feed_url", "https://api.coingecko.com/api/v3/simple/price")
	viper.SetDefault("price_coin_id", "bitcoin")
	viper.SetDefault("price_poll_interval", "30s")
	viper.SetDefault("price_max_retries", 5)

	// External wallet daemon
	viper.SetDefault("wallet_rpc_url", "http://localhost:9004")

	// API server
	viper.SetDefault("api_port", 9003)
	viper.SetDefault("api_key", "")
	viper.SetDefault("use_https", false)
	viper.SetDefault("cert_file", "server.crt")
	viper.SetDefault("key_file", "server.key")
}

// createDefaultConfig creates a new configuration file if it doesn't exist
func createDefaultConfig() error {
	setDefaults()

	err := viper.SafeWriteConfig()
	if err != nil {
		if os.IsExist(err) {
			// If the config already exists, attempt to overwrite it
			err = viper.WriteConfig()
			if err != nil {
				return fmt.Errorf("error writing config file: %w", err)
			}
		} else {
			return fmt.Errorf("error creating config file: %w", err)
		}
	}

	fmt.Println("Created default configuration file")
	return nil
}
