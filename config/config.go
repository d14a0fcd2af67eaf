package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig agrupa los errores de validación de la configuración.
var ErrInvalidConfig = errors.New("invalid config")

// Config es la configuración completa del alerter.
type Config struct {
	Session SessionConfig `yaml:"session"`
	Engine  EngineConfig  `yaml:"engine"`
	Symbols []string      `yaml:"symbols"`
	API     APIConfig     `yaml:"api"`
	Notify  NotifyConfig  `yaml:"notify"`
	Feed    FeedConfig    `yaml:"feed"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`

	Secrets Secrets `yaml:"-"`
}

// SessionConfig define la ventana de negociación y la banda de alertas.
type SessionConfig struct {
	Open              string   `yaml:"open"`  // HH:MM
	Close             string   `yaml:"close"` // HH:MM
	Timezone          string   `yaml:"timezone"`
	TradingDays       []string `yaml:"trading_days"`
	AlertFrom         string   `yaml:"alert_from"`  // HH:MM, vacío = toda la sesión
	AlertUntil        string   `yaml:"alert_until"` // HH:MM, exclusivo
	ResolutionSeconds int      `yaml:"resolution_seconds"`
}

// EngineConfig controla el loop de polling.
type EngineConfig struct {
	Policy               string `yaml:"policy"` // fixed_anchor | moving_range
	IntervalSeconds      int    `yaml:"interval_seconds"`
	Workers              int    `yaml:"workers"`
	FetchTimeoutSeconds  int    `yaml:"fetch_timeout_seconds"`
	NotifyTimeoutSeconds int    `yaml:"notify_timeout_seconds"`
}

// APIConfig contiene el base URL de la fuente de precios.
type APIConfig struct {
	YahooBase  string  `yaml:"yahoo_base"`
	RatePerSec float64 `yaml:"rate_per_sec"`
}

// NotifyConfig controla a dónde van las alertas.
type NotifyConfig struct {
	Console  bool           `yaml:"console"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig lista los chats suscritos. El token va en Secrets.
type TelegramConfig struct {
	ChatIDs []string `yaml:"chat_ids"`
	Prefix  string   `yaml:"prefix"`
	APIBase string   `yaml:"api_base"`
}

// FeedConfig controla el websocket de alertas.
type FeedConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	History int    `yaml:"history"`
}

// StorageConfig controla dónde se persiste el journal de alertas.
type StorageConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Secrets son los valores que nunca van en el YAML.
type Secrets struct {
	TelegramBotToken    string `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramGroupChatID string `envconfig:"TELEGRAM_GROUP_CHAT_ID"`
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los secretos solo se leen del entorno.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse construye la configuración a partir del YAML en data más el entorno.
func Parse(data []byte) (*Config, error) {
	cfg := Config{Notify: NotifyConfig{Console: true}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}
	if err := envconfig.Process("", &cfg.Secrets); err != nil {
		return nil, fmt.Errorf("config.Load: secrets: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate comprueba lo que no se puede corregir con un default.
// La ventana de sesión la valida session.NewController.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Symbols) == 0 {
		errs = append(errs, errors.New("symbols: empty universe"))
	}
	switch c.Engine.Policy {
	case "fixed_anchor", "moving_range":
	default:
		errs = append(errs, fmt.Errorf("engine.policy: unknown %q", c.Engine.Policy))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown %q", c.Log.Format))
	}
	if c.Feed.Enabled && c.Feed.Addr == "" {
		errs = append(errs, errors.New("feed.addr: required when feed is enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config.Validate: %w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// PollInterval devuelve el intervalo de polling como time.Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Engine.IntervalSeconds) * time.Second
}

// FetchTimeout devuelve el timeout por fetch de precio.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Engine.FetchTimeoutSeconds) * time.Second
}

// NotifyTimeout devuelve el timeout por envío de alerta.
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Engine.NotifyTimeoutSeconds) * time.Second
}

// Resolution devuelve cada cuánto se evalúa la ventana de sesión.
func (c *Config) Resolution() time.Duration {
	return time.Duration(c.Session.ResolutionSeconds) * time.Second
}

// Destinations devuelve los chats de Telegram: el grupo primero, sin duplicados.
func (c *Config) Destinations() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	add(c.Secrets.TelegramGroupChatID)
	for _, id := range c.Notify.Telegram.ChatIDs {
		add(id)
	}
	return out
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
// Los defaults reproducen la sesión de NSE.
func setDefaults(cfg *Config) {
	s := &cfg.Session
	if s.Open == "" && s.AlertFrom == "" && s.AlertUntil == "" {
		// Sin sesión explícita: banda de opening range de NSE.
		s.AlertFrom, s.AlertUntil = "09:15", "09:20"
	}
	if s.Open == "" {
		s.Open = "09:15"
	}
	if s.Close == "" {
		s.Close = "15:30"
	}
	if s.Timezone == "" {
		s.Timezone = "Asia/Kolkata"
	}
	if s.ResolutionSeconds <= 0 {
		s.ResolutionSeconds = 15
	}

	e := &cfg.Engine
	if e.Policy == "" {
		e.Policy = "fixed_anchor"
	}
	if e.IntervalSeconds <= 0 {
		e.IntervalSeconds = 240
	}
	if e.Workers <= 0 {
		e.Workers = 8
	}
	if e.FetchTimeoutSeconds <= 0 {
		e.FetchTimeoutSeconds = 15
	}
	if e.NotifyTimeoutSeconds <= 0 {
		e.NotifyTimeoutSeconds = 10
	}

	if cfg.API.YahooBase == "" {
		cfg.API.YahooBase = "https://query1.finance.yahoo.com"
	}
	if cfg.API.RatePerSec <= 0 {
		cfg.API.RatePerSec = 5
	}
	if cfg.Feed.Addr == "" {
		cfg.Feed.Addr = ":8089"
	}
	if cfg.Feed.History <= 0 {
		cfg.Feed.History = 200
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "orbwatch.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
