// Package configpkg provides parsing functionality for environment variables.
package configpkg

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
//
// The values are read by viper from a config file or environment variables.
type Config struct {
	DBDriver            string        `mapstructure:"DB_DRIVER"`
	DBSource            string        `mapstructure:"DB_SOURCE"`
	MigrationURL        string        `mapstructure:"MIGRATION_URL"`
	ServerAddress       string        `mapstructure:"SERVER_ADDRESS"`
	TokenType           string        `mapstructure:"TOKEN_TYPE"`
	TokenSymmetricKey   string        `mapstructure:"TOKEN_SYMMETRIC_KEY"`
	AccessTokenDuration time.Duration `mapstructure:"ACCESS_TOKEN_DURATION"`
	Environement        string        `mapstructure:"GO_ENV"`

	MaxTransferAttempts int           `mapstructure:"MAX_TRANSFER_ATTEMPTS"`
	StoreRetryAttempts  int           `mapstructure:"STORE_RETRY_ATTEMPTS"`
	StoreRetryInterval  time.Duration `mapstructure:"STORE_RETRY_INTERVAL"`

	NotificationBuffer int    `mapstructure:"NOTIFICATION_BUFFER"`
	RedisAddr          string `mapstructure:"REDIS_ADDR"`
	RedisPassword      string `mapstructure:"REDIS_PASSWORD"`
	RedisChannel       string `mapstructure:"REDIS_CHANNEL"`
	KafkaBrokers       string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic         string `mapstructure:"KAFKA_TOPIC"`

	CoreBankingURL      string        `mapstructure:"CORE_BANKING_URL"`
	CoreBankingTenant   string        `mapstructure:"CORE_BANKING_TENANT"`
	CoreBankingUsername string        `mapstructure:"CORE_BANKING_USERNAME"`
	CoreBankingPassword string        `mapstructure:"CORE_BANKING_PASSWORD"`
	CoreBankingTimeout  time.Duration `mapstructure:"CORE_BANKING_TIMEOUT"`
}

// Brokers returns the configured Kafka brokers or nil when Kafka is disabled.
func (c Config) Brokers() []string {
	if strings.TrimSpace(c.KafkaBrokers) == "" {
		return nil
	}

	var brokers []string

	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}

	return brokers
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("SERVER_ADDRESS", "0.0.0.0:8080")
	v.SetDefault("TOKEN_TYPE", "paseto")
	v.SetDefault("ACCESS_TOKEN_DURATION", 15*time.Minute)
	v.SetDefault("GO_ENV", "production")
	v.SetDefault("MAX_TRANSFER_ATTEMPTS", 5)
	v.SetDefault("STORE_RETRY_ATTEMPTS", 3)
	v.SetDefault("STORE_RETRY_INTERVAL", 50*time.Millisecond)
	v.SetDefault("NOTIFICATION_BUFFER", 16)
	v.SetDefault("REDIS_CHANNEL", "ledger.events")
	v.SetDefault("KAFKA_TOPIC", "ledger.events")
	v.SetDefault("CORE_BANKING_TENANT", "default")
	v.SetDefault("CORE_BANKING_TIMEOUT", 5*time.Second)
}

// Load read configuration from file or environment variables.
//
// A missing app.env is not an error, every key can come from the environment.
func Load(path string) (Config, error) {
	var c Config

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("env")

	setDefaults(v)

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return c, err
		}
	}

	// AutomaticEnv only applies to keys viper already knows about.
	for _, key := range []string{
		"DB_SOURCE", "MIGRATION_URL", "TOKEN_SYMMETRIC_KEY", "REDIS_ADDR", "REDIS_PASSWORD",
		"KAFKA_BROKERS", "CORE_BANKING_URL", "CORE_BANKING_USERNAME", "CORE_BANKING_PASSWORD",
	} {
		if err := v.BindEnv(key); err != nil {
			return c, err
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}

	return c, nil
}
