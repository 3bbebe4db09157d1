// Package config loads service configuration from a YAML file and JUNTA_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // notifications.timezone must resolve on hosts without zoneinfo

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is stripped from environment variable names.
	EnvPrefix = "JUNTA_"
	// EnvPathEnv names the variable holding the YAML config path.
	EnvPathEnv = "CONFIG_PATH"

	envLevelSeparator = "__"
	defaultPath       = "config.yaml"
)

// Dedup backends.
const (
	DedupPostgres = "postgres"
	DedupRedis    = "redis"
	DedupNone     = "none"
)

// Config is the root service configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Redis         RedisConfig         `koanf:"redis"`
	Log           LogConfig           `koanf:"log"`
	JWT           JWTConfig           `koanf:"jwt"`
	CORS          CORSConfig          `koanf:"cors"`
	Notifications NotificationsConfig `koanf:"notifications"`
	Webhooks      WebhooksConfig      `koanf:"webhooks"`
}

type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	// WriteTimeout bounds the notify routes, which run outside the request timeout middleware.
	WriteTimeout   time.Duration `koanf:"write_timeout"`
	IdleTimeout    time.Duration `koanf:"idle_timeout"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
}

// RedisConfig is only used when Enabled; the dedup guard may require it.
type RedisConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Addr            string        `koanf:"addr"`
	Password        string        `koanf:"password"`
	DB              int           `koanf:"db"`
	PoolSize        int           `koanf:"pool_size"`
	DialTimeout     time.Duration `koanf:"dial_timeout"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// JWTConfig verifies access tokens issued by the auth provider.
type JWTConfig struct {
	SecretKey string        `koanf:"secret_key"`
	Issuer    string        `koanf:"issuer"`
	Audience  string        `koanf:"audience"`
	Leeway    time.Duration `koanf:"leeway"`
}

type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

type NotificationsConfig struct {
	BaseURL         string         `koanf:"base_url"`
	SiteName        string         `koanf:"site_name"`
	PreferencesPath string         `koanf:"preferences_path"`
	Timezone        string         `koanf:"timezone"`
	Dedup           DedupConfig    `koanf:"dedup"`
	Email           EmailConfig    `koanf:"email"`
	Telegram        TelegramConfig `koanf:"telegram"`
	WhatsApp        WhatsAppConfig `koanf:"whatsapp"`
}

type DedupConfig struct {
	Backend string        `koanf:"backend"`
	TTL     time.Duration `koanf:"ttl"`
	Prefix  string        `koanf:"prefix"`
}

type EmailConfig struct {
	Enabled           bool          `koanf:"enabled"`
	SMTPHost          string        `koanf:"smtp_host"`
	SMTPPort          int           `koanf:"smtp_port"`
	SMTPUser          string        `koanf:"smtp_user"`
	SMTPPassword      string        `koanf:"smtp_password"`
	FromAddress       string        `koanf:"from_address"`
	BatchSize         int           `koanf:"batch_size"`
	UnsubscribeURL    string        `koanf:"unsubscribe_url"`
	UnsubscribeMailto string        `koanf:"unsubscribe_mailto"`
	Timeout           time.Duration `koanf:"timeout"`
}

type TelegramConfig struct {
	Enabled   bool          `koanf:"enabled"`
	BotToken  string        `koanf:"bot_token"`
	RateLimit float64       `koanf:"rate_limit"`
	Timeout   time.Duration `koanf:"timeout"`
}

type WhatsAppConfig struct {
	Enabled       bool              `koanf:"enabled"`
	PhoneNumberID string            `koanf:"phone_number_id"`
	AccessToken   string            `koanf:"access_token"`
	APIURL        string            `koanf:"api_url"`
	Language      string            `koanf:"language"`
	Templates     map[string]string `koanf:"templates"`
	Spacing       time.Duration     `koanf:"spacing"`
	Timeout       time.Duration     `koanf:"timeout"`
}

// WebhooksConfig holds the shared secrets of inbound provider webhooks.
type WebhooksConfig struct {
	TelegramSecret      string `koanf:"telegram_secret"`
	TelegramURL         string `koanf:"telegram_url"`
	WhatsAppVerifyToken string `koanf:"whatsapp_verify_token"`
	WhatsAppAppSecret   string `koanf:"whatsapp_app_secret"`
}

// Default returns the configuration used for keys absent from file and environment.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      5 * time.Minute,
			IdleTimeout:       60 * time.Second,
			RequestTimeout:    60 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  60 * time.Second,
			ConnectAttempts: 5,
		},
		Redis: RedisConfig{
			Addr:            "localhost:6379",
			PoolSize:        10,
			DialTimeout:     5 * time.Second,
			ReadTimeout:     3 * time.Second,
			WriteTimeout:    3 * time.Second,
			ConnectAttempts: 3,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		JWT: JWTConfig{
			Leeway: 30 * time.Second,
		},
		Notifications: NotificationsConfig{
			SiteName:        "Junta de Vecinos",
			PreferencesPath: "/perfil",
			Timezone:        "America/Santiago",
			Dedup: DedupConfig{
				Backend: DedupPostgres,
				TTL:     30 * 24 * time.Hour,
				Prefix:  "junta:dispatch:",
			},
			Email: EmailConfig{
				SMTPPort:  587,
				BatchSize: 50,
				Timeout:   10 * time.Second,
			},
			Telegram: TelegramConfig{
				RateLimit: 25,
				Timeout:   10 * time.Second,
			},
			WhatsApp: WhatsAppConfig{
				Language: "es",
				Spacing:  800 * time.Millisecond,
				Timeout:  10 * time.Second,
			},
		},
	}
}

// Load reads the YAML file named by CONFIG_PATH (config.yaml when unset) and then
// JUNTA_ environment variables, which win. A missing default file is not an error.
func Load() (*Config, error) {
	path, explicit := os.LookupEnv(EnvPathEnv)
	if !explicit {
		path = defaultPath
	}
	return LoadFrom(path, explicit)
}

// LoadFrom loads configuration from path. When required is false a missing file is skipped.
func LoadFrom(path string, required bool) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil || required {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// envKey maps JUNTA_NOTIFICATIONS__EMAIL__SMTP_HOST to notifications.email.smtp_host.
// List values are comma separated.
func envKey(name, value string) (string, interface{}) {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	key = strings.ReplaceAll(key, envLevelSeparator, ".")

	if key == "cors.allowed_origins" {
		var origins []string
		for _, o := range strings.Split(value, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		return key, origins
	}
	return key, value
}

// Validate checks settings the service cannot start without.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.JWT.SecretKey == "" {
		errs = append(errs, errors.New("jwt.secret_key is required"))
	}
	if c.Notifications.BaseURL == "" {
		errs = append(errs, errors.New("notifications.base_url is required"))
	}
	if _, err := time.LoadLocation(c.Notifications.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("notifications.timezone: %w", err))
	}

	switch c.Notifications.Dedup.Backend {
	case DedupPostgres, DedupNone:
	case DedupRedis:
		if !c.Redis.Enabled {
			errs = append(errs, errors.New("notifications.dedup.backend redis requires redis.enabled"))
		}
	default:
		errs = append(errs, fmt.Errorf("notifications.dedup.backend: unknown backend %q", c.Notifications.Dedup.Backend))
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format: must be json or text, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
