package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/loykin/procreaper/internal/cron"
	"github.com/loykin/procreaper/internal/logger"
	rtls "github.com/loykin/procreaper/internal/tls"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. REAPER_LOG_LEVEL.
const EnvPrefix = "REAPER"

// Error reports bad or missing user input. Callers print usage and exit non-zero.
type Error struct {
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsError reports whether err is (or wraps) a configuration Error.
func IsError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

type HistoryConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type ServerConfig struct {
	Listen string      `toml:"listen" mapstructure:"listen"`
	TLS    rtls.Config `toml:"tls" mapstructure:"tls"`
}

// Config is the resolved reaper configuration.
type Config struct {
	Name     string        `toml:"name" mapstructure:"name"`
	Lifespan string        `toml:"lifespan" mapstructure:"lifespan"`
	Wait     bool          `toml:"wait" mapstructure:"wait"`
	Schedule string        `toml:"schedule" mapstructure:"schedule"`
	Color    string        `toml:"color" mapstructure:"color"`
	Log      logger.Config `toml:"log" mapstructure:"log"`
	History  HistoryConfig `toml:"history" mapstructure:"history"`
	Server   ServerConfig  `toml:"server" mapstructure:"server"`

	// MaxAge is Lifespan parsed by Load.
	MaxAge time.Duration `toml:"-" mapstructure:"-"`
}

// NewViper returns a viper instance with defaults and REAPER_* env binding applied.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("name", "")
	v.SetDefault("lifespan", "0")
	v.SetDefault("wait", false)
	v.SetDefault("schedule", "")
	v.SetDefault("color", logger.ColorAuto)
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)
	v.SetDefault("history.dsn", "")
	v.SetDefault("server.listen", "")
	v.SetDefault("server.tls.cert_file", "")
	v.SetDefault("server.tls.key_file", "")
	v.SetDefault("server.tls.dir", "")
	v.SetDefault("server.tls.auto_generate", false)
	v.SetDefault("server.tls.min_version", "")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional TOML file at path into v, then resolves and validates the result.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, &Error{Msg: "cannot read config " + path, Err: err}
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, &Error{Msg: "invalid config", Err: err}
	}
	d, err := ParseLifespan(c.Lifespan)
	if err != nil {
		return Config{}, err
	}
	c.MaxAge = d
	c.Log.Color = c.Color
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the resolved configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return &Error{Msg: "process name is required"}
	}
	if c.MaxAge < 0 {
		return &Error{Msg: fmt.Sprintf("lifespan must not be negative, got %s", c.MaxAge)}
	}
	if c.Schedule != "" {
		if c.Wait {
			return &Error{Msg: "wait and schedule cannot be combined"}
		}
		if err := cron.Validate(c.Schedule); err != nil {
			return &Error{Msg: "invalid schedule", Err: err}
		}
	}
	switch strings.ToLower(c.Color) {
	case "", logger.ColorAuto, logger.ColorAlways, logger.ColorNever:
	default:
		return &Error{Msg: fmt.Sprintf("invalid color mode %q", c.Color)}
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return &Error{Msg: "invalid log level", Err: err}
	}
	return nil
}

// ParseLifespan parses whole seconds ("30") or a Go duration ("1m30s").
// Empty input means zero.
func ParseLifespan(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if isDigits(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n > int64(time.Duration(1<<63-1)/time.Second) {
			return 0, &Error{Msg: fmt.Sprintf("lifespan %q out of range", s)}
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, &Error{Msg: fmt.Sprintf("invalid lifespan %q", s), Err: err}
	}
	if d < 0 {
		return 0, &Error{Msg: fmt.Sprintf("lifespan must not be negative, got %q", s)}
	}
	return d, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
