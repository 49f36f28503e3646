package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config agrupa toda la configuración del servicio.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Reminders RemindersConfig `mapstructure:"reminders"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	// Vacío = repos in-memory (modo dev).
	DSN string `mapstructure:"dsn"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type AuthConfig struct {
	IAM IAMConfig `mapstructure:"iam"`
}

// IAMConfig: si BaseURL está vacío se usa modo dev (X-Debug-User-ID).
type IAMConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RemindersConfig struct {
	PostponeWindow         time.Duration `mapstructure:"postpone_window"`
	DispatchSchedule       string        `mapstructure:"dispatch_schedule"`
	Lookahead              time.Duration `mapstructure:"lookahead"`
	DefaultTZOffsetMinutes int           `mapstructure:"default_tz_offset_minutes"`
	DispatchEnabled        bool          `mapstructure:"dispatch_enabled"`
}

type NotifyConfig struct {
	Push PushConfig `mapstructure:"push"`
}

type PushConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type TracingConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	Environment  string  `mapstructure:"environment"`
}

type RateLimitConfig struct {
	RecordPerSecond float64 `mapstructure:"record_per_second"`
	RecordBurst     int     `mapstructure:"record_burst"`
}

// Load carga defaults, archivo opcional (YAML) y env.
// Env: MEDREMIND_SERVER_PORT, MEDREMIND_DATABASE_DSN, etc. También se respetan
// los nombres cortos PORT, DB_DSN, LOG_LEVEL, LOG_FORMAT y APP_NAME.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if strings.TrimSpace(configPath) != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix("MEDREMIND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// alias sin prefijo (compatibles con el despliegue anterior)
	_ = v.BindEnv("server.port", "MEDREMIND_SERVER_PORT", "PORT")
	_ = v.BindEnv("database.dsn", "MEDREMIND_DATABASE_DSN", "DB_DSN")
	_ = v.BindEnv("log.level", "MEDREMIND_LOG_LEVEL", "LOG_LEVEL")
	_ = v.BindEnv("log.format", "MEDREMIND_LOG_FORMAT", "LOG_FORMAT")
	_ = v.BindEnv("app.name", "MEDREMIND_APP_NAME", "APP_NAME")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// "a,b,c" desde env llega como un solo elemento
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "medication-reminder")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)

	v.SetDefault("database.dsn", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("auth.iam.base_url", "")
	v.SetDefault("auth.iam.api_key", "")
	v.SetDefault("auth.iam.timeout", 5*time.Second)

	v.SetDefault("reminders.postpone_window", 10*time.Minute)
	v.SetDefault("reminders.dispatch_schedule", "@every 1m")
	v.SetDefault("reminders.lookahead", 1*time.Minute)
	v.SetDefault("reminders.default_tz_offset_minutes", 0)
	v.SetDefault("reminders.dispatch_enabled", true)

	v.SetDefault("notify.push.base_url", "")
	v.SetDefault("notify.push.api_key", "")
	v.SetDefault("notify.push.timeout", 5*time.Second)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "dose.actions")

	v.SetDefault("tracing.otlp_endpoint", "")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.environment", "development")

	v.SetDefault("ratelimit.record_per_second", 2.0)
	v.SetDefault("ratelimit.record_burst", 10)
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}
	if cfg.Reminders.PostponeWindow <= 0 {
		return errors.New("reminders.postpone_window must be positive")
	}
	if cfg.Reminders.Lookahead < 0 {
		return errors.New("reminders.lookahead must not be negative")
	}
	// offsets reales van de UTC-12 a UTC+14
	if cfg.Reminders.DefaultTZOffsetMinutes < -12*60 || cfg.Reminders.DefaultTZOffsetMinutes > 14*60 {
		return fmt.Errorf("reminders.default_tz_offset_minutes out of range: %d", cfg.Reminders.DefaultTZOffsetMinutes)
	}
	if strings.TrimSpace(cfg.Reminders.DispatchSchedule) == "" {
		return errors.New("reminders.dispatch_schedule is required")
	}
	if cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be within [0,1]: %v", cfg.Tracing.SampleRate)
	}
	return nil
}

func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, raw := range in {
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Addr devuelve ":<port>" para http.Server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
