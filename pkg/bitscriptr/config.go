package bitscriptr

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Compiler engines understood by Config.
const (
	EngineBuiltin = "builtin"
	EngineWASI    = "wasi"
)

// Config collects the knobs shared by the CLI and library callers. The zero
// value is not valid; start from DefaultConfig.
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Compiler   CompilerConfig   `yaml:"compiler"`
	Keys       KeysConfig       `yaml:"keys"`
	Descriptor DescriptorConfig `yaml:"descriptor"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// LogConfig selects the slog handler built by the CLI.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// MaxMemoryLimitMB is the largest memory a wasm32 module can address.
const MaxMemoryLimitMB = 4096

// CompilerConfig selects and tunes the policy compiler.
type CompilerConfig struct {
	Engine string `yaml:"engine"` // builtin | wasi

	// Module is the path of the WebAssembly compiler used by the wasi engine.
	Module string `yaml:"module,omitempty"`

	Timeout       time.Duration `yaml:"timeout"`
	MemoryLimitMB int           `yaml:"memory_limit_mb"`

	// RequireSignature rejects policies with a spending path that needs no
	// signature at all (for example a bare timelock).
	RequireSignature bool `yaml:"require_signature"`
}

// KeysConfig tunes the key classifier.
type KeysConfig struct {
	// StrictPoints additionally requires compressed hex keys to decode as
	// secp256k1 points.
	StrictPoints bool `yaml:"strict_points"`
}

// DescriptorConfig tunes descriptor assembly.
type DescriptorConfig struct {
	Checksum bool `yaml:"checksum"`
}

// TelemetryConfig enables OTLP export of validation traces and metrics.
type TelemetryConfig struct {
	// Endpoint is the OTLP gRPC collector address; empty disables export.
	Endpoint   string  `yaml:"endpoint,omitempty"`
	Insecure   bool    `yaml:"insecure"`
	SampleRate float64 `yaml:"sample_rate"`
}

// DefaultConfig returns the configuration used when no file is supplied.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Compiler: CompilerConfig{
			Engine:        EngineBuiltin,
			Timeout:       5 * time.Second,
			MemoryLimitMB: 64,
		},
		Telemetry: TelemetryConfig{SampleRate: 1},
	}
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	absPath, err := SecurePath(path)
	if err != nil {
		return cfg, fmt.Errorf("secure path: %w", err)
	}
	data, err := os.ReadFile(absPath) // #nosec G304 -- absPath validated by SecurePath
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	cfg.Compiler.Engine = strings.ToLower(cfg.Compiler.Engine)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate performs sanity checks on the configuration. It does not open the
// compiler module; it only validates structure and paths.
func (c Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	switch c.Compiler.Engine {
	case EngineBuiltin:
	case EngineWASI:
		if c.Compiler.Module == "" {
			return errors.New("compiler.module is required for the wasi engine")
		}
		if _, err := SecurePath(c.Compiler.Module); err != nil {
			return fmt.Errorf("compiler.module: %w", err)
		}
	default:
		return fmt.Errorf("compiler.engine: unknown engine %q", c.Compiler.Engine)
	}
	if c.Compiler.Timeout <= 0 {
		return errors.New("compiler.timeout must be positive")
	}
	if c.Compiler.MemoryLimitMB <= 0 || c.Compiler.MemoryLimitMB > MaxMemoryLimitMB {
		return fmt.Errorf("compiler.memory_limit_mb must be between 1 and %d", MaxMemoryLimitMB)
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate %v must be between 0 and 1", c.Telemetry.SampleRate)
	}
	return nil
}

// SecurePath validates that a file path doesn't escape the working directory
// and returns its absolute form.
func SecurePath(path string) (string, error) {
	clean := filepath.Clean(path)
	absPath, err := filepath.Abs(clean)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}
	base, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	rel, err := filepath.Rel(base, absPath)
	if err != nil {
		return "", fmt.Errorf("relative path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q escapes working directory", path)
	}
	return absPath, nil
}
