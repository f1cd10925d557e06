package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/backkem/serialpake/pkg/pake"
	"github.com/pion/logging"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestDefaultValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if _, ok := cfg.Augmenter().(pake.PlainAugmenter); !ok {
		t.Errorf("Augmenter() = %T, want PlainAugmenter", cfg.Augmenter())
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "server.toml", `
endpoint = "serial:/dev/ttyACM0"
baud_rate = 57600
read_timeout = "250ms"
strong = true
params = "pbkdf2-sha256,i=1000"
capacity = 32
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Endpoint != "serial:/dev/ttyACM0" {
		t.Errorf("Endpoint = %q", cfg.Endpoint)
	}
	if cfg.BaudRate != 57600 {
		t.Errorf("BaudRate = %d, want 57600", cfg.BaudRate)
	}
	if cfg.ReadTimeout != 250*time.Millisecond {
		t.Errorf("ReadTimeout = %s, want 250ms", cfg.ReadTimeout)
	}
	if !cfg.Strong {
		t.Error("Strong = false, want true")
	}
	if cfg.Capacity != 32 {
		t.Errorf("Capacity = %d, want 32", cfg.Capacity)
	}

	// Keys absent from the file keep their defaults.
	def := Default()
	if cfg.BufferSize != def.BufferSize || cfg.Channel != def.Channel || cfg.LogLevel != def.LogLevel {
		t.Errorf("defaults not kept: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadTOMLExplicitZero(t *testing.T) {
	path := writeFile(t, "c.toml", `channel = ""`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Channel != "" {
		t.Errorf("Channel = %q, want empty", cfg.Channel)
	}
}

func TestLoadYAML(t *testing.T) {
	for _, name := range []string{"client.yaml", "client.yml"} {
		path := writeFile(t, name, `
endpoint: tcp:localhost:2000
username: alice
implicit: true
log_level: debug
dial_timeout: 2s
`)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("%s: Load() error = %v", name, err)
		}
		if cfg.Endpoint != "tcp:localhost:2000" || cfg.Username != "alice" || !cfg.Implicit {
			t.Errorf("%s: got %+v", name, cfg)
		}
		if cfg.DialTimeout != 2*time.Second {
			t.Errorf("%s: DialTimeout = %s, want 2s", name, cfg.DialTimeout)
		}
		if cfg.BaudRate != Default().BaudRate {
			t.Errorf("%s: BaudRate = %d, want default", name, cfg.BaudRate)
		}
		if lvl, _ := ParseLogLevel(cfg.LogLevel); lvl != logging.LogLevelDebug {
			t.Errorf("%s: log level = %v, want debug", name, lvl)
		}
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr error
	}{
		{"unknown extension", "c.json", `{}`, ErrUnknownFormat},
		{"bad duration", "c.toml", `read_timeout = "soon"`, ErrInvalid},
		{"bad yaml duration", "c.yaml", `read_timeout: soon`, ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Load() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Load() of a missing file should fail")
	}
	if _, err := Load(writeFile(t, "broken.toml", `baud_rate = "fast"`)); err == nil {
		t.Error("Load() of a mistyped key should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero baud", func(c *Config) { c.BaudRate = 0 }},
		{"zero read timeout", func(c *Config) { c.ReadTimeout = 0 }},
		{"small buffer", func(c *Config) { c.BufferSize = 16 }},
		{"zero capacity", func(c *Config) { c.Capacity = 0 }},
		{"bad params", func(c *Config) { c.Params = "md5" }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad endpoint", func(c *Config) { c.Endpoint = "tcp:" }},
		{"skip without store", func(c *Config) { c.SkipRegistration = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logging.LogLevel
	}{
		{"off", logging.LogLevelDisabled},
		{"error", logging.LogLevelError},
		{"WARN", logging.LogLevelWarn},
		{"", logging.LogLevelInfo},
		{"debug", logging.LogLevelDebug},
		{" trace ", logging.LogLevelTrace},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if err != nil {
			t.Errorf("ParseLogLevel(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := ParseLogLevel("verbose"); !errors.Is(err, ErrInvalidLogLevel) {
		t.Errorf("ParseLogLevel(verbose) error = %v, want ErrInvalidLogLevel", err)
	}
}

func TestLoggerFactoryLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "trace"
	if got := cfg.LoggerFactory().DefaultLogLevel; got != logging.LogLevelTrace {
		t.Errorf("DefaultLogLevel = %v, want trace", got)
	}
}
