package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// RateLimit caps inbound text frames per connection. Messages == 0 disables it.
type RateLimit struct {
	Messages int           `mapstructure:"messages"`
	Interval time.Duration `mapstructure:"interval"`
}

func (r RateLimit) Enabled() bool { return r.Messages > 0 }

type Config struct {
	Mode           string        `mapstructure:"mode"`
	Port           int           `mapstructure:"port"`
	StaticPath     string        `mapstructure:"static_path"`
	UploadDir      string        `mapstructure:"upload_dir"`
	MaxFileSize    int64         `mapstructure:"max_file_size"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	RoomCode       string        `mapstructure:"room_code"`
	CookieMaxAge   time.Duration `mapstructure:"cookie_max_age"`
	PruneOnFailure bool          `mapstructure:"prune_on_failure"`
	RateLimit      RateLimit     `mapstructure:"rate_limit"`
	LogLevel       string        `mapstructure:"log_level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./static")
	v.SetDefault("upload_dir", "./uploads")
	v.SetDefault("max_file_size", 50*1024*1024)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 256)
	v.SetDefault("room_code", "")
	v.SetDefault("cookie_max_age", "720h")
	v.SetDefault("prune_on_failure", true)
	v.SetDefault("rate_limit.messages", 0)
	v.SetDefault("rate_limit.interval", "10s")
	v.SetDefault("log_level", "info")
}

// Load reads config/config.<CONFIG_ENV>.yaml if present, then applies
// PING_* environment overrides. ROOM_CODE is honoured without the prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	v.SetEnvPrefix("PING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("room_code", "PING_ROOM_CODE", "ROOM_CODE"); err != nil {
		return nil, fmt.Errorf("bind room code env: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Str("static", cfg.StaticPath).Bool("auth", cfg.RoomCode != "").Bool("rate_limit", cfg.RateLimit.Enabled()).Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("invalid port %d", c.Port)
	case c.MaxFileSize <= 0:
		return fmt.Errorf("max_file_size must be positive")
	case c.ReadLimit <= 0:
		return fmt.Errorf("read_limit must be positive")
	case c.PingPeriod <= 0:
		return fmt.Errorf("ping_period must be positive")
	case c.SendBuffer <= 0:
		return fmt.Errorf("send_buffer must be positive")
	case c.RateLimit.Messages < 0:
		return fmt.Errorf("rate_limit.messages must not be negative")
	case c.RateLimit.Messages > 0 && c.RateLimit.Interval <= 0:
		return fmt.Errorf("rate_limit.interval must be positive when a limit is set")
	}
	return nil
}

// PongWait is how long a peer may stay silent to pings.
func (c *Config) PongWait() time.Duration {
	return c.PingPeriod * 10 / 9
}
