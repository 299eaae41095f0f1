// Package config reads client settings from CLAMD_* environment variables.
// It has no dependency on the logger package so the logger can use it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// EnvPrefix is prepended to every key read through New.
const EnvPrefix = "CLAMD_"

// Conf is a namespaced view over environment variables (e.g. "CLAMD_", "CLAMD_LOG_")
type Conf struct{ prefix string }

// New returns a Conf rooted at EnvPrefix
func New() Conf { return Conf{prefix: EnvPrefix} }

// Prefix returns a child Conf with an additional prefix (e.g. "LOG_")
func (c Conf) Prefix(p string) Conf { return Conf{prefix: c.prefix + p} }

// key composes the fully-qualified env var
func (c Conf) key(k string) string { return c.prefix + k }

// Get returns the trimmed env var or def if empty
func (c Conf) Get(key, def string) string {
	v := strings.TrimSpace(os.Getenv(c.key(key)))
	if v == "" {
		return def
	}
	return v
}

// GetBool parses a bool-like env ("1|true|yes" / "0|false|no") with default fallback
func (c Conf) GetBool(key string, def bool) bool {
	switch strings.ToLower(c.Get(key, "")) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return def
	}
}

// GetInt parses an integer; a malformed value is an error
func (c Conf) GetInt(key string, def int) (int, error) {
	s := c.Get(key, "")
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid int %q: %w", c.key(key), s, err)
	}
	return v, nil
}

// GetDuration parses a duration ("250ms", "2s"); a bare integer is milliseconds
func (c Conf) GetDuration(key string, def time.Duration) (time.Duration, error) {
	s := c.Get(key, "")
	if s == "" {
		return def, nil
	}
	if ms, err := strconv.Atoi(s); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", c.key(key), s, err)
	}
	return d, nil
}

// Settings is the environment-backed client configuration
type Settings struct {
	Host            string        `validate:"required,hostname_rfc1123|ip"`
	Port            int           `validate:"min=1,max=65535"`
	Timeout         time.Duration `validate:"gt=0s"`
	ChunkSize       int           `validate:"min=1,max=4294967295"`
	MaxConcurrency  int           `validate:"min=1"`
	Detail          bool
	ContinueOnError bool
}

// Defaults mirrors the values the client uses without configuration
func Defaults() Settings {
	return Settings{
		Host:            "localhost",
		Port:            3310,
		Timeout:         5 * time.Second,
		ChunkSize:       64 * 1024,
		MaxConcurrency:  10,
		Detail:          true,
		ContinueOnError: true,
	}
}

var validate = validator.New()

// Load reads Settings from c, falling back to Defaults, and validates them
func Load(c Conf) (Settings, error) {
	s := Defaults()
	var err error

	s.Host = c.Get("HOST", s.Host)
	if s.Port, err = c.GetInt("PORT", s.Port); err != nil {
		return Settings{}, err
	}
	if s.Timeout, err = c.GetDuration("TIMEOUT", s.Timeout); err != nil {
		return Settings{}, err
	}
	if s.ChunkSize, err = c.GetInt("CHUNK_SIZE", s.ChunkSize); err != nil {
		return Settings{}, err
	}
	if s.MaxConcurrency, err = c.GetInt("MAX_CONCURRENCY", s.MaxConcurrency); err != nil {
		return Settings{}, err
	}
	s.Detail = c.GetBool("DETAIL", s.Detail)
	s.ContinueOnError = c.GetBool("CONTINUE_ON_ERROR", s.ContinueOnError)

	if err := validate.Struct(s); err != nil {
		return Settings{}, fmt.Errorf("validate settings: %w", err)
	}
	return s, nil
}
