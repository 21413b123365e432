package configs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"wps-bot-bridge/pkg/validator"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config struct
type Config struct {
	App      `mapstructure:"app"`
	WPS      `mapstructure:"wps"`
	LLM      `mapstructure:"llm"`
	Session  `mapstructure:"session"`
	Bot      `mapstructure:"bot"`
	Dispatch `mapstructure:"dispatch"`
	Dedupe   `mapstructure:"dedupe"`
	Postgres `mapstructure:"postgres"`
	Redis    `mapstructure:"redis"`
}

// App struct
type App struct {
	Debug           bool   `mapstructure:"debug"`
	Env             string `mapstructure:"env"`
	Port            string `mapstructure:"port" validate:"required"`
	AsyncProcessing bool   `mapstructure:"async_processing"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" validate:"gte=0"` // seconds
	BodyLimit       int    `mapstructure:"body_limit" validate:"gte=0"`       // bytes
}

// WPS struct - platform application credentials and endpoints
type WPS struct {
	AppID                  string `mapstructure:"app_id" validate:"required"`
	AppSecret              string `mapstructure:"app_secret" validate:"required"`
	BaseURL                string `mapstructure:"base_url" validate:"required,url"`
	TokenURL               string `mapstructure:"token_url" validate:"omitempty,url"`
	AllowUnsignedHandshake bool   `mapstructure:"allow_unsigned_handshake"`
	SignatureWindow        int    `mapstructure:"signature_window" validate:"gte=0"` // seconds
}

// LLM struct - OpenAI-compatible gateway
type LLM struct {
	APIBase          string  `mapstructure:"api_base" validate:"required,url"`
	APIKey           string  `mapstructure:"api_key"`
	Model            string  `mapstructure:"model"`
	RequestTimeout   int     `mapstructure:"request_timeout" validate:"gte=0"` // seconds
	MaxRetries       int     `mapstructure:"max_retries" validate:"gte=0"`
	Temperature      float64 `mapstructure:"temperature" validate:"gte=0,lte=2"`
	TopP             float64 `mapstructure:"top_p" validate:"gte=0,lte=1"`
	MaxTokens        int     `mapstructure:"max_tokens" validate:"gte=0"`
	PresencePenalty  float64 `mapstructure:"presence_penalty" validate:"gte=-2,lte=2"`
	FrequencyPenalty float64 `mapstructure:"frequency_penalty" validate:"gte=-2,lte=2"`
}

// Session struct - conversation context bounds
type Session struct {
	Backend       string `mapstructure:"backend" validate:"oneof=memory redis"`
	MaxTurns      int    `mapstructure:"max_turns" validate:"gte=1"`
	MaxBytes      int    `mapstructure:"max_bytes" validate:"gte=0"`
	IdleTTL       int    `mapstructure:"idle_ttl" validate:"gte=0"`       // seconds
	SweepInterval int    `mapstructure:"sweep_interval" validate:"gte=0"` // seconds
}

// Bot struct - trigger rules and reply texts
type Bot struct {
	CharacterDesc         string   `mapstructure:"character_desc"`
	SingleChatPrefix      []string `mapstructure:"single_chat_prefix"`
	SingleChatReplyPrefix string   `mapstructure:"single_chat_reply_prefix"`
	GroupAtOff            bool     `mapstructure:"group_at_off"`
	GroupWhitelist        []string `mapstructure:"group_name_white_list"`
	HelpCommands          []string `mapstructure:"help_commands"`
	ResetCommands         []string `mapstructure:"reset_commands"`
	ReplyKind             string   `mapstructure:"reply_kind" validate:"oneof=text markdown"`
	MaxInputChars         int      `mapstructure:"max_input_chars" validate:"gte=0"`
	MaxReplyChars         int      `mapstructure:"max_reply_chars" validate:"gte=0"`
	MaxReplyMessages      int      `mapstructure:"max_reply_messages" validate:"gte=0"`
	FallbackReply         string   `mapstructure:"fallback_reply"`
	RateLimitedReply      string   `mapstructure:"rate_limited_reply"`
	UnsupportedReply      string   `mapstructure:"unsupported_reply"`
	HelpReply             string   `mapstructure:"help_reply"`
	ResetReply            string   `mapstructure:"reset_reply"`
}

// Dispatch struct - reply delivery retry policy
type Dispatch struct {
	MaxAttempts    int     `mapstructure:"max_attempts" validate:"gte=1"`
	BaseDelay      int     `mapstructure:"base_delay_ms" validate:"gte=0"`
	MaxDelay       int     `mapstructure:"max_delay_ms" validate:"gte=0"`
	Jitter         float64 `mapstructure:"jitter" validate:"gte=0,lte=1"`
	RequestTimeout int     `mapstructure:"request_timeout" validate:"gte=0"` // seconds
}

// Dedupe struct - message id deduplication
type Dedupe struct {
	Enabled bool `mapstructure:"enabled"`
	Window  int  `mapstructure:"window" validate:"gte=0"` // seconds
}

// Postgres struct
type Postgres struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	DbName       string `mapstructure:"database"`
	SSLMode      bool   `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// Redis struct
type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Duration helpers for integer-second fields

// ShutdownTimeoutDuration func
func (a App) ShutdownTimeoutDuration() time.Duration {
	return time.Duration(a.ShutdownTimeout) * time.Second
}

// SignatureWindowDuration func
func (w WPS) SignatureWindowDuration() time.Duration {
	return time.Duration(w.SignatureWindow) * time.Second
}

// RequestTimeoutDuration func
func (l LLM) RequestTimeoutDuration() time.Duration {
	return time.Duration(l.RequestTimeout) * time.Second
}

// IdleTTLDuration func
func (s Session) IdleTTLDuration() time.Duration {
	return time.Duration(s.IdleTTL) * time.Second
}

// SweepIntervalDuration func
func (s Session) SweepIntervalDuration() time.Duration {
	return time.Duration(s.SweepInterval) * time.Second
}

// WindowDuration func
func (d Dedupe) WindowDuration() time.Duration {
	return time.Duration(d.Window) * time.Second
}

var (
	config  Config
	current *viper.Viper
)

// setDefaults registers every key so environment overrides work without a file
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.debug", false)
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.async_processing", true)
	v.SetDefault("app.shutdown_timeout", 10)
	v.SetDefault("app.body_limit", 4*1024*1024)

	v.SetDefault("wps.app_id", "")
	v.SetDefault("wps.app_secret", "")
	v.SetDefault("wps.base_url", "https://openapi.wps.cn")
	v.SetDefault("wps.token_url", "https://openapi.wps.cn/oauth2/token")
	v.SetDefault("wps.allow_unsigned_handshake", true)
	v.SetDefault("wps.signature_window", 300)

	v.SetDefault("llm.api_base", "http://localhost:8000/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-3.5-turbo")
	v.SetDefault("llm.request_timeout", 120)
	v.SetDefault("llm.max_retries", 0)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.top_p", 1.0)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.presence_penalty", 0.0)
	v.SetDefault("llm.frequency_penalty", 0.0)

	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.max_turns", 20)
	v.SetDefault("session.max_bytes", 16000)
	v.SetDefault("session.idle_ttl", 3600)
	v.SetDefault("session.sweep_interval", 60)

	v.SetDefault("bot.character_desc", "You are the WPS assistant, an AI helper powered by a large language model. You answer questions, draft content and help with office work.")
	v.SetDefault("bot.single_chat_prefix", []string{""})
	v.SetDefault("bot.single_chat_reply_prefix", "")
	v.SetDefault("bot.group_at_off", false)
	v.SetDefault("bot.group_name_white_list", []string{"ALL_GROUP"})
	v.SetDefault("bot.help_commands", []string{})
	v.SetDefault("bot.reset_commands", []string{})
	v.SetDefault("bot.reply_kind", "text")
	v.SetDefault("bot.max_input_chars", 4000)
	v.SetDefault("bot.max_reply_chars", 5000)
	v.SetDefault("bot.max_reply_messages", 5)
	v.SetDefault("bot.fallback_reply", "")
	v.SetDefault("bot.rate_limited_reply", "")
	v.SetDefault("bot.unsupported_reply", "")
	v.SetDefault("bot.help_reply", "")
	v.SetDefault("bot.reset_reply", "")

	v.SetDefault("dispatch.max_attempts", 4)
	v.SetDefault("dispatch.base_delay_ms", 500)
	v.SetDefault("dispatch.max_delay_ms", 8000)
	v.SetDefault("dispatch.jitter", 0.2)
	v.SetDefault("dispatch.request_timeout", 30)

	v.SetDefault("dedupe.enabled", true)
	v.SetDefault("dedupe.window", 300)

	v.SetDefault("postgres.enabled", false)
	v.SetDefault("postgres.host", "")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.username", "")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.database", "")
	v.SetDefault("postgres.sslmode", false)
	v.SetDefault("postgres.max_open_conns", 10)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
}

func newViper(path, env string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		logrus.Warnf("No config file in %s, using defaults and environment", path)
	}

	if env != "" {
		overlay := filepath.Join(path, "config."+env+".yaml")
		if _, err := os.Stat(overlay); err == nil {
			v.SetConfigFile(overlay)
			if err := v.MergeInConfig(); err != nil {
				return nil, fmt.Errorf("merge %s: %w", overlay, err)
			}
			logrus.Infof("Merged config overlay %s", overlay)
		}
	}

	return v, nil
}

// Load reads config.yaml from path, merges config.<env>.yaml when present,
// applies environment overrides (WPS_APP_SECRET -> wps.app_secret) and validates.
func Load(path, env string) (*Config, error) {
	v, err := newViper(path, env)
	if err != nil {
		return nil, err
	}
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validator.New().ValidateStruct(cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// InitViper func - loads the process configuration and watches the file.
// Changes are logged only; credentials stay fixed for the process lifetime.
func InitViper(path, env string) {
	v, err := newViper(path, env)
	if err != nil {
		logrus.Fatalln(err)
	}
	cfg, err := unmarshal(v)
	if err != nil {
		logrus.Fatalln(err)
	}
	config = *cfg
	current = v

	if v.ConfigFileUsed() != "" {
		v.OnConfigChange(func(e fsnotify.Event) {
			logrus.Infof("Config file has changed: %s (restart to apply)", e.Name)
		})
		v.WatchConfig()
	}
}

// GetViper func
func GetViper() *Config {
	return &config
}
