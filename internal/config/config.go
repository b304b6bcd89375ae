package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Secrets  Secrets        `mapstructure:"-"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type JWTConfig struct {
	ExpiryHours int `mapstructure:"expiry_hours"`
}

// AdminConfig holds the single admin login. The password hash is a bcrypt
// string; plaintext passwords never appear in config.
type AdminConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
}

type TelegramConfig struct {
	BotUsername string        `mapstructure:"bot_username"`
	BaseURL     string        `mapstructure:"base_url"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
	RatePerSec  int           `mapstructure:"rate_per_sec"`
}

type DispatchConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
	LinkTTL   time.Duration `mapstructure:"link_ttl"`
}

// Secrets are env-only values, never read from the yaml file.
type Secrets struct {
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	JWTSecret        string `envconfig:"JWT_SECRET" required:"true"`
	DatabasePassword string `envconfig:"DB_PASSWORD"`
	RedisURL         string `envconfig:"REDIS_URL"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process("", &config.Secrets); err != nil {
		return nil, fmt.Errorf("failed to read secrets from environment: %w", err)
	}
	if config.Secrets.DatabasePassword != "" {
		config.Database.Password = config.Secrets.DatabasePassword
	}
	if config.Secrets.RedisURL != "" {
		config.Redis.URL = config.Secrets.RedisURL
	}

	config.applyDefaults()

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.JWT.ExpiryHours == 0 {
		c.JWT.ExpiryHours = 24
	}
	if c.Telegram.BaseURL == "" {
		c.Telegram.BaseURL = "https://api.telegram.org"
	}
	if c.Telegram.SendTimeout == 0 {
		c.Telegram.SendTimeout = 10 * time.Second
	}
	if c.Telegram.PollTimeout == 0 {
		c.Telegram.PollTimeout = 30 * time.Second
	}
	if c.Telegram.RatePerSec == 0 {
		c.Telegram.RatePerSec = 25
	}
	if c.Dispatch.Interval == 0 {
		c.Dispatch.Interval = time.Minute
	}
	if c.Dispatch.BatchSize == 0 {
		c.Dispatch.BatchSize = 50
	}
	if c.Dispatch.LinkTTL == 0 {
		c.Dispatch.LinkTTL = 10 * time.Minute
	}
}

func (c *Config) validate() error {
	if c.Database.Host == "" || c.Database.Name == "" {
		return fmt.Errorf("database host and name are required")
	}
	if c.Admin.Username == "" || c.Admin.PasswordHash == "" {
		return fmt.Errorf("admin credentials are required")
	}
	return nil
}
