// Package config holds the settings shared by the serialpake client and
// server binaries.
//
// Settings start from Default, are overlaid by a TOML or YAML file chosen by
// extension, and are finally overridden by command line flags. Only keys
// present in the file replace defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/backkem/serialpake/pkg/credential"
	"github.com/backkem/serialpake/pkg/framing"
	"github.com/backkem/serialpake/pkg/pake"
	"github.com/backkem/serialpake/pkg/transport"
	"github.com/pion/logging"
	"gopkg.in/yaml.v3"
)

// Errors.
var (
	ErrUnknownFormat   = errors.New("config: unknown file format")
	ErrInvalidLogLevel = errors.New("config: invalid log level")
	ErrInvalid         = errors.New("config: invalid value")
)

// Config is the merged configuration of one binary.
type Config struct {
	// Endpoint is the link: "serial:NAME", "tcp:HOST:PORT" or a bare port name.
	Endpoint string

	// Listen is a TCP address the server accepts one bridge connection on.
	// It takes precedence over Endpoint on the server.
	Listen string

	BaudRate    int
	ReadTimeout time.Duration
	DialTimeout time.Duration
	BufferSize  int

	// Strong selects strong augmentation.
	Strong bool
	// Implicit skips the authenticator round.
	Implicit bool
	// Channel is the channel identifier both sides bind sessions to.
	Channel string

	// Params are the password hashing parameters used at registration.
	Params string
	// Username is the client's default username.
	Username string

	// StorePath selects a persistent SQLite store. Empty keeps the single
	// in-memory slot.
	StorePath string
	// Capacity is the maximum username length the store accepts.
	Capacity int
	// SkipRegistration starts the server directly in session mode. Only
	// useful with a persistent store.
	SkipRegistration bool

	LogLevel string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		BaudRate:    transport.DefaultBaudRate,
		ReadTimeout: transport.DefaultReadTimeout,
		DialTimeout: transport.DefaultDialTimeout,
		BufferSize:  framing.DefaultCapacity,
		Params:      pake.DefaultParams.String(),
		Channel:     "serialpake",
		Capacity:    credential.DefaultCapacity,
		LogLevel:    "info",
	}
}

// fileConfig maps file keys. TOML and YAML share the key names.
type fileConfig struct {
	Endpoint         string `toml:"endpoint" yaml:"endpoint"`
	Listen           string `toml:"listen" yaml:"listen"`
	BaudRate         int    `toml:"baud_rate" yaml:"baud_rate"`
	ReadTimeout      string `toml:"read_timeout" yaml:"read_timeout"`
	DialTimeout      string `toml:"dial_timeout" yaml:"dial_timeout"`
	BufferSize       int    `toml:"buffer_size" yaml:"buffer_size"`
	Strong           bool   `toml:"strong" yaml:"strong"`
	Implicit         bool   `toml:"implicit" yaml:"implicit"`
	Channel          string `toml:"channel" yaml:"channel"`
	Params           string `toml:"params" yaml:"params"`
	Username         string `toml:"username" yaml:"username"`
	StorePath        string `toml:"store_path" yaml:"store_path"`
	Capacity         int    `toml:"capacity" yaml:"capacity"`
	SkipRegistration bool   `toml:"skip_registration" yaml:"skip_registration"`
	LogLevel         string `toml:"log_level" yaml:"log_level"`
}

// Load returns Default overlaid with the file at path. The format follows
// the extension: .toml, or .yaml/.yml.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := cfg.LoadFile(path); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile overlays the keys defined in the file at path onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var (
		raw     fileConfig
		defined func(key string) bool
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		meta, err := toml.Decode(string(data), &raw)
		if err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
		defined = func(key string) bool { return meta.IsDefined(key) }

	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
		var keys map[string]yaml.Node
		if err := yaml.Unmarshal(data, &keys); err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
		defined = func(key string) bool {
			_, ok := keys[key]
			return ok
		}

	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}

	return c.apply(raw, defined)
}

func (c *Config) apply(raw fileConfig, defined func(string) bool) error {
	if defined("endpoint") {
		c.Endpoint = strings.TrimSpace(raw.Endpoint)
	}
	if defined("listen") {
		c.Listen = strings.TrimSpace(raw.Listen)
	}
	if defined("baud_rate") {
		c.BaudRate = raw.BaudRate
	}
	if defined("read_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReadTimeout))
		if err != nil {
			return fmt.Errorf("%w: read_timeout: %v", ErrInvalid, err)
		}
		c.ReadTimeout = d
	}
	if defined("dial_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.DialTimeout))
		if err != nil {
			return fmt.Errorf("%w: dial_timeout: %v", ErrInvalid, err)
		}
		c.DialTimeout = d
	}
	if defined("buffer_size") {
		c.BufferSize = raw.BufferSize
	}
	if defined("strong") {
		c.Strong = raw.Strong
	}
	if defined("implicit") {
		c.Implicit = raw.Implicit
	}
	if defined("channel") {
		c.Channel = raw.Channel
	}
	if defined("params") {
		c.Params = strings.TrimSpace(raw.Params)
	}
	if defined("username") {
		c.Username = raw.Username
	}
	if defined("store_path") {
		c.StorePath = strings.TrimSpace(raw.StorePath)
	}
	if defined("capacity") {
		c.Capacity = raw.Capacity
	}
	if defined("skip_registration") {
		c.SkipRegistration = raw.SkipRegistration
	}
	if defined("log_level") {
		c.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	return nil
}

// Validate checks value ranges. It does not open anything.
func (c Config) Validate() error {
	if c.BaudRate <= 0 {
		return fmt.Errorf("%w: baud rate %d", ErrInvalid, c.BaudRate)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("%w: read timeout %s", ErrInvalid, c.ReadTimeout)
	}
	if c.BufferSize < 64 {
		return fmt.Errorf("%w: buffer size %d is below 64", ErrInvalid, c.BufferSize)
	}
	if c.Capacity <= 0 {
		return fmt.Errorf("%w: capacity %d", ErrInvalid, c.Capacity)
	}
	if _, err := pake.ParseParams(c.Params); err != nil {
		return fmt.Errorf("%w: params: %v", ErrInvalid, err)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Endpoint != "" {
		if _, err := transport.ParseEndpoint(c.Endpoint); err != nil {
			return fmt.Errorf("%w: endpoint: %v", ErrInvalid, err)
		}
	}
	if c.SkipRegistration && c.StorePath == "" {
		return fmt.Errorf("%w: skip_registration needs a store path", ErrInvalid)
	}
	return nil
}

// Augmenter returns the augmentation variant selected by Strong.
func (c Config) Augmenter() pake.Augmenter {
	if c.Strong {
		return pake.StrongAugmenter{}
	}
	return pake.PlainAugmenter{}
}

// PakeParams parses Params.
func (c Config) PakeParams() (pake.Params, error) {
	return pake.ParseParams(c.Params)
}

// OpenConfig returns the transport settings.
func (c Config) OpenConfig(lf logging.LoggerFactory) transport.OpenConfig {
	return transport.OpenConfig{
		BaudRate:      c.BaudRate,
		ReadTimeout:   c.ReadTimeout,
		DialTimeout:   c.DialTimeout,
		LoggerFactory: lf,
	}
}

// ParseLogLevel maps a level name to a pion log level.
func ParseLogLevel(s string) (logging.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disabled", "off", "none":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn", "warning":
		return logging.LogLevelWarn, nil
	case "info", "":
		return logging.LogLevelInfo, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	default:
		return logging.LogLevelDisabled, fmt.Errorf("%w: %q", ErrInvalidLogLevel, s)
	}
}

// LoggerFactory returns a pion logger factory at LogLevel. An invalid level
// falls back to info.
func (c Config) LoggerFactory() *logging.DefaultLoggerFactory {
	lf := logging.NewDefaultLoggerFactory()
	if level, err := ParseLogLevel(c.LogLevel); err == nil {
		lf.DefaultLogLevel = level
	}
	return lf
}
