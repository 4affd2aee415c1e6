package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config структура конфигурации
type Config struct {
	AppEnv           string         `yaml:"app_env"`
	HTTPAddr         string         `yaml:"http_addr"`
	WSAddr           string         `yaml:"ws_addr"`
	LogLevel         string         `yaml:"log_level"`
	JWTSecret        string         `yaml:"jwt_secret"`
	JWTTTL           time.Duration  `yaml:"jwt_ttl"`
	TelegramBotToken string         `yaml:"telegram_bot_token"`
	Storage          StorageConfig  `yaml:"storage"`
	Database         DatabaseConfig `yaml:"database"`
	Redis            RedisConfig    `yaml:"redis"`
	SMTP             SMTPConfig     `yaml:"smtp"`
	Swap             SwapConfig     `yaml:"swap"`
	Notify           NotifyConfig   `yaml:"notify"`
}

// StorageConfig выбирает хранилище
type StorageConfig struct {
	Driver     string `yaml:"driver"`
	SQLitePath string `yaml:"sqlite_path"`
}

// DatabaseConfig содержит конфигурацию базы данных
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	// URL, если задан, используется вместо собранного из полей DSN
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

// RedisConfig содержит настройки входящих уведомлений. Пустой Addr отключает inbox.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	InboxSize int           `yaml:"inbox_size"`
	InboxTTL  time.Duration `yaml:"inbox_ttl"`
}

// SMTPConfig содержит настройки почтовых уведомлений. Пустой Host отключает почту.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// SwapConfig содержит параметры движка обмена
type SwapConfig struct {
	TxTimeout        time.Duration `yaml:"tx_timeout"`
	MessageMaxLength int           `yaml:"message_max_length"`
	RequireVerified  bool          `yaml:"require_verified"`
}

// NotifyConfig содержит параметры асинхронной доставки уведомлений
type NotifyConfig struct {
	MaxInFlight int64         `yaml:"max_in_flight"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Default возвращает конфигурацию со значениями по умолчанию
func Default() Config {
	return Config{
		AppEnv:   "production",
		HTTPAddr: ":8080",
		WSAddr:   ":8081",
		LogLevel: "info",
		JWTTTL:   24 * time.Hour,
		Storage: StorageConfig{
			Driver:     DriverPostgres,
			SQLitePath: "flippy.db",
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     "5432",
			User:     "flippy_user",
			Password: "flippy_pass",
			Name:     "flippy",
			SSLMode:  "disable",
			MaxConns: 10,
		},
		Redis: RedisConfig{
			InboxSize: 100,
			InboxTTL:  720 * time.Hour,
		},
		SMTP: SMTPConfig{
			Port: 587,
		},
		Swap: SwapConfig{
			TxTimeout:        5 * time.Second,
			MessageMaxLength: 1000,
		},
		Notify: NotifyConfig{
			MaxInFlight: 256,
			Timeout:     10 * time.Second,
		},
	}
}

// LoadConfig загружает конфигурацию: значения по умолчанию, затем YAML из CONFIG_FILE,
// затем переменные окружения (включая .env)
func LoadConfig() (*Config, error) {
	// .env необязателен, переменные окружения имеют приоритет
	_ = godotenv.Load()

	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFromYAML(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = cfg.Database.DSN()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// DSN формирует строку подключения к базе данных
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// Validate проверяет обязательные параметры
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("не задана обязательная переменная JWT_SECRET")
	}
	switch c.Storage.Driver {
	case DriverPostgres:
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("не задан SQLITE_PATH")
		}
	default:
		return fmt.Errorf("неизвестный STORAGE_DRIVER %q", c.Storage.Driver)
	}
	if c.Swap.TxTimeout <= 0 {
		return errors.New("SWAP_TX_TIMEOUT должен быть положительным")
	}
	if c.Swap.MessageMaxLength <= 0 {
		return errors.New("SWAP_MESSAGE_MAX_LEN должен быть положительным")
	}
	if c.Notify.MaxInFlight <= 0 {
		return errors.New("NOTIFY_MAX_IN_FLIGHT должен быть положительным")
	}
	if c.Database.MaxConns <= 0 {
		return errors.New("PG_MAX_CONNS должен быть положительным")
	}
	return nil
}

// IsDevelopment сообщает, что приложение запущено локально
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func loadFromYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("чтение файла конфигурации %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("разбор файла конфигурации %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	overrideString("APP_ENV", &cfg.AppEnv)
	overrideString("HTTP_ADDR", &cfg.HTTPAddr)
	overrideString("WS_ADDR", &cfg.WSAddr)
	overrideString("LOG_LEVEL", &cfg.LogLevel)
	overrideString("JWT_SECRET", &cfg.JWTSecret)
	overrideString("TELEGRAM_BOT_TOKEN", &cfg.TelegramBotToken)

	overrideString("STORAGE_DRIVER", &cfg.Storage.Driver)
	overrideString("SQLITE_PATH", &cfg.Storage.SQLitePath)

	overrideString("PGHOST", &cfg.Database.Host)
	overrideString("PGPORT", &cfg.Database.Port)
	overrideString("PGUSER", &cfg.Database.User)
	overrideString("PGPASSWORD", &cfg.Database.Password)
	overrideString("PGDATABASE", &cfg.Database.Name)
	overrideString("PGSSLMODE", &cfg.Database.SSLMode)
	overrideString("DATABASE_URL", &cfg.Database.URL)

	overrideString("REDIS_ADDR", &cfg.Redis.Addr)
	overrideString("REDIS_PASSWORD", &cfg.Redis.Password)

	overrideString("SMTP_HOST", &cfg.SMTP.Host)
	overrideString("SMTP_USERNAME", &cfg.SMTP.Username)
	overrideString("SMTP_PASSWORD", &cfg.SMTP.Password)
	overrideString("SMTP_FROM", &cfg.SMTP.From)

	if v := os.Getenv("PG_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return fmt.Errorf("PG_MAX_CONNS: %w", err)
		}
		cfg.Database.MaxConns = int32(n)
	}
	if v := os.Getenv("NOTIFY_MAX_IN_FLIGHT"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("NOTIFY_MAX_IN_FLIGHT: %w", err)
		}
		cfg.Notify.MaxInFlight = n
	}

	ints := map[string]*int{
		"REDIS_DB":             &cfg.Redis.DB,
		"INBOX_SIZE":           &cfg.Redis.InboxSize,
		"SMTP_PORT":            &cfg.SMTP.Port,
		"SWAP_MESSAGE_MAX_LEN": &cfg.Swap.MessageMaxLength,
	}
	for key, target := range ints {
		if err := overrideInt(key, target); err != nil {
			return err
		}
	}

	durations := map[string]*time.Duration{
		"JWT_TTL":         &cfg.JWTTTL,
		"INBOX_TTL":       &cfg.Redis.InboxTTL,
		"SWAP_TX_TIMEOUT": &cfg.Swap.TxTimeout,
		"NOTIFY_TIMEOUT":  &cfg.Notify.Timeout,
	}
	for key, target := range durations {
		if err := overrideDuration(key, target); err != nil {
			return err
		}
	}

	return overrideBool("SWAP_REQUIRE_VERIFIED", &cfg.Swap.RequireVerified)
}

// overrideString подставляет переменную окружения, если она задана
func overrideString(key string, target *string) {
	if value, exists := os.LookupEnv(key); exists {
		*target = value
	}
}

func overrideInt(key string, target *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*target = n
	return nil
}

func overrideDuration(key string, target *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*target = d
	return nil
}

func overrideBool(key string, target *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*target = b
	return nil
}
