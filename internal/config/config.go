package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. RELAY_DB_PATH.
const EnvPrefix = "RELAY"

type Config struct {
	Port      string          `mapstructure:"port"`
	DB        DBConfig        `mapstructure:"db"`
	Log       LogConfig       `mapstructure:"log"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Profile   ProfileConfig   `mapstructure:"profile"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type SchedulerConfig struct {
	Tick time.Duration `mapstructure:"tick"`
}

type LifecycleConfig struct {
	OfflineDelay     time.Duration `mapstructure:"offline_delay"`
	FastOfflineDelay time.Duration `mapstructure:"fast_offline_delay"`
}

type AuthConfig struct {
	SigningKey string        `mapstructure:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

// TelegramConfig enables offline pushes when Token is set.
type TelegramConfig struct {
	Token   string  `mapstructure:"token"`
	ChatIDs []int64 `mapstructure:"chat_ids"`
}

// KafkaConfig enables the status event stream when Brokers is not empty.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type ProfileConfig struct {
	SaveInterval time.Duration `mapstructure:"save_interval"`
}

var defaults = map[string]any{
	"port":                         "8080",
	"db.path":                      "relay.db",
	"log.level":                    "info",
	"log.encoding":                 "console",
	"scheduler.tick":               time.Second,
	"lifecycle.offline_delay":      2 * time.Second,
	"lifecycle.fast_offline_delay": 50 * time.Millisecond,
	"auth.signing_key":             "",
	"auth.token_ttl":               time.Hour,
	"telegram.token":               "",
	"telegram.chat_ids":            []int64{},
	"kafka.brokers":                []string{},
	"kafka.topic":                  "device-status",
	"profile.save_interval":        time.Minute,
}

var ErrMissingSigningKey = errors.New("auth.signing_key is required")

// Load reads configs/config.yml from dir (if present), an optional .env file
// and RELAY_* environment overrides, in increasing priority.
func Load(dir string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AddConfigPath(dir)
	v.SetConfigName("config")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Auth.SigningKey) == "" {
		return ErrMissingSigningKey
	}
	if c.Scheduler.Tick <= 0 {
		return fmt.Errorf("scheduler.tick must be positive, got %s", c.Scheduler.Tick)
	}
	if c.Lifecycle.OfflineDelay < 0 || c.Lifecycle.FastOfflineDelay < 0 {
		return errors.New("lifecycle delays must not be negative")
	}
	return nil
}
