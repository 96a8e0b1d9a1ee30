package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/LeventeLantos/delivery-confirmation/internal/model"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Twilio   TwilioConfig
	Timezone TimezoneConfig
	Import   ImportConfig
	Kafka    KafkaConfig
	Log      LogConfig
}

type ServerConfig struct {
	Address string
	APIKey  string
}

type DatabaseConfig struct {
	PostgresURL    string
	MigrateOnStart bool
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type TwilioConfig struct {
	Enabled           bool
	AccountSID        string
	AuthToken         string
	WhatsAppFrom      string
	BaseURL           string
	ContentMax        int
	ValidateSignature bool
	// PublicURL is the externally visible webhook URL Twilio signs.
	PublicURL string
}

type TimezoneConfig struct {
	Name     string
	Location *time.Location
}

type ImportConfig struct {
	SourcePath    string
	Interval      time.Duration
	DefaultPrefix string
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func LoadAll() (*Config, error) {
	var errs []error

	postgresURL, err := requireEnv("POSTGRES_URL")
	errs = appendErr(errs, err)
	apiKey, err := requireEnv("API_KEY")
	errs = appendErr(errs, err)

	migrate, err := getEnvBool("DB_MIGRATE_ON_START", true)
	errs = appendErr(errs, err)

	redisCfg, err := loadRedisConfig()
	errs = appendErr(errs, err)

	twilioCfg, err := loadTwilioConfig()
	errs = appendErr(errs, err)

	tzCfg, err := loadTimezoneConfig()
	errs = appendErr(errs, err)

	importCfg, err := loadImportConfig()
	errs = appendErr(errs, err)

	logCfg, err := loadLogConfig()
	errs = appendErr(errs, err)

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
			APIKey:  apiKey,
		},
		Database: DatabaseConfig{
			PostgresURL:    postgresURL,
			MigrateOnStart: migrate,
		},
		Redis:    redisCfg,
		Twilio:   twilioCfg,
		Timezone: tzCfg,
		Import:   importCfg,
		Kafka:    loadKafkaConfig(),
		Log:      logCfg,
	}

	errs = append(errs, validate(cfg)...)
	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRedisConfig() (RedisConfig, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	var errs []error
	db, err := getEnvInt("REDIS_DB", 0)
	errs = appendErr(errs, err)
	ttl, err := getEnvInt("REDIS_TTL_SECONDS", 86400)
	errs = appendErr(errs, err)

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		TTL:      time.Duration(ttl) * time.Second,
	}, joinErrors(errs)
}

// loadTwilioConfig enables sending only when it is not disabled explicitly and
// both credentials are present.
func loadTwilioConfig() (TwilioConfig, error) {
	var errs []error

	disabled, err := getEnvBool("DISABLE_WHATSAPP", false)
	errs = appendErr(errs, err)
	contentMax, err := getEnvInt("TWILIO_CONTENT_MAX", 1600)
	errs = appendErr(errs, err)
	validateSig, err := getEnvBool("TWILIO_VALIDATE_SIGNATURE", false)
	errs = appendErr(errs, err)

	cfg := TwilioConfig{
		AccountSID:        os.Getenv("TWILIO_ACCOUNT_SID"),
		AuthToken:         os.Getenv("TWILIO_AUTH_TOKEN"),
		WhatsAppFrom:      os.Getenv("TWILIO_WHATSAPP_FROM"),
		BaseURL:           getEnv("TWILIO_BASE_URL", "https://api.twilio.com"),
		ContentMax:        contentMax,
		ValidateSignature: validateSig,
		PublicURL:         os.Getenv("TWILIO_WEBHOOK_URL"),
	}
	cfg.Enabled = !disabled && cfg.AccountSID != "" && cfg.AuthToken != ""

	return cfg, joinErrors(errs)
}

func loadTimezoneConfig() (TimezoneConfig, error) {
	name := getEnv("REFERENCE_TIMEZONE", model.DefaultTimezone)
	loc, err := model.LoadLocation(name)
	if err != nil {
		return TimezoneConfig{Name: name}, fmt.Errorf("invalid REFERENCE_TIMEZONE: %w", err)
	}
	return TimezoneConfig{Name: name, Location: loc}, nil
}

func loadImportConfig() (ImportConfig, error) {
	interval, err := getEnvInt("IMPORT_INTERVAL_SECONDS", 300)
	return ImportConfig{
		SourcePath:    os.Getenv("IMPORT_SOURCE_PATH"),
		Interval:      time.Duration(interval) * time.Second,
		DefaultPrefix: getEnv("IMPORT_DEFAULT_PREFIX", "34"),
	}, err
}

func loadKafkaConfig() KafkaConfig {
	raw := os.Getenv("KAFKA_BROKERS")
	if raw == "" {
		return KafkaConfig{Enabled: false}
	}

	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}

	return KafkaConfig{
		Enabled: len(brokers) > 0,
		Brokers: brokers,
		Topic:   getEnv("KAFKA_TOPIC", "shipment-status"),
	}
}

func loadLogConfig() (LogConfig, error) {
	var errs []error
	maxSize, err := getEnvInt("LOG_MAX_SIZE_MB", 100)
	errs = appendErr(errs, err)
	maxBackups, err := getEnvInt("LOG_MAX_BACKUPS", 5)
	errs = appendErr(errs, err)
	maxAge, err := getEnvInt("LOG_MAX_AGE_DAYS", 30)
	errs = appendErr(errs, err)

	return LogConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		File:       os.Getenv("LOG_FILE"),
		MaxSizeMB:  maxSize,
		MaxBackups: maxBackups,
		MaxAgeDays: maxAge,
	}, joinErrors(errs)
}

func validate(cfg *Config) []error {
	var errs []error
	if cfg.Twilio.ContentMax <= 0 {
		errs = append(errs, errors.New("TWILIO_CONTENT_MAX must be > 0"))
	}
	if cfg.Twilio.Enabled && cfg.Twilio.WhatsAppFrom == "" {
		errs = append(errs, errors.New("TWILIO_WHATSAPP_FROM is required when WhatsApp sending is enabled"))
	}
	if cfg.Twilio.ValidateSignature && (cfg.Twilio.AuthToken == "" || cfg.Twilio.PublicURL == "") {
		errs = append(errs, errors.New("TWILIO_VALIDATE_SIGNATURE requires TWILIO_AUTH_TOKEN and TWILIO_WEBHOOK_URL"))
	}
	if cfg.Import.Interval <= 0 {
		errs = append(errs, errors.New("IMPORT_INTERVAL_SECONDS must be > 0"))
	}
	if cfg.Redis.Enabled && cfg.Redis.TTL <= 0 {
		errs = append(errs, errors.New("REDIS_TTL_SECONDS must be > 0"))
	}
	return errs
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid int for env %s: %s", key, v)
	}
	return i, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.ToLower(v))
	if err != nil {
		return def, fmt.Errorf("invalid bool for env %s: %s", key, v)
	}
	return b, nil
}

func appendErr(errs []error, err error) []error {
	if err != nil {
		return append(errs, err)
	}
	return errs
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
