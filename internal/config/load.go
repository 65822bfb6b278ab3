// Package config loads the application configuration from defaults, an
// optional YAML file, SAURON_ environment variables and bound command line
// flags, in increasing order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/bryanchriswhite/SauronThermal/internal/capture"
	"github.com/bryanchriswhite/SauronThermal/internal/filter"
	"github.com/bryanchriswhite/SauronThermal/internal/logger"
)

// EnvPrefix prefixes every environment override, e.g. SAURON_CAMERA_SOURCE
const EnvPrefix = "SAURON"

// DefaultDir returns $HOME/.config/sauron, or "" if there is no home
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "sauron")
}

// New returns a viper instance carrying every default and the environment
// binding. Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range flatten("", defaultsMap()) {
		v.SetDefault(key, value)
	}
	return v
}

// defaultsMap renders Default through its yaml tags so viper learns every
// key under the same names a config file uses.
func defaultsMap() map[string]interface{} {
	data, err := yaml.Marshal(Default())
	if err != nil {
		panic(fmt.Sprintf("config: marshal defaults: %v", err))
	}
	var m map[string]interface{}
	if err := yaml.Unmarshal(data, &m); err != nil {
		panic(fmt.Sprintf("config: unmarshal defaults: %v", err))
	}
	return m
}

func flatten(prefix string, m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]interface{}); ok {
			for sk, sv := range flatten(key, sub) {
				out[sk] = sv
			}
			continue
		}
		out[key] = v
	}
	return out
}

// Load reads path (or config.yaml in DefaultDir when path is empty and the
// file exists) into v and returns the validated configuration.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir := DefaultDir(); dir != "" {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	file := v.ConfigFileUsed()
	if file == "" {
		file = "(defaults)"
	}
	logger.WithComponent("config").Debug().
		Str("path", file).
		Str("source", string(cfg.Camera.Source)).
		Str("agc", string(cfg.Pipeline.AGC)).
		Msg("Config loaded")
	return &cfg, nil
}

// LoadFile is Load with a fresh viper instance
func LoadFile(path string) (*Config, error) {
	return Load(New(), path)
}

func invalid(section, field, format string, args ...interface{}) error {
	return &filter.ConfigError{Stage: section, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks every section, including the parameters of the filters the
// pipeline will build. It returns a *filter.ConfigError.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return invalid("config", "log_level", "unknown level %q", c.LogLevel)
	}

	cam := c.Camera
	switch cam.Source {
	case capture.KindFake, capture.KindV4L2, capture.KindLepton, capture.KindAuto:
	default:
		return invalid("camera", "source", "unknown source %q", cam.Source)
	}
	if cam.Width <= 0 || cam.Height <= 0 {
		return invalid("camera", "width/height", "must be positive, got %dx%d", cam.Width, cam.Height)
	}
	if cam.FPS < 0 {
		return invalid("camera", "fps", "must not be negative, got %d", cam.FPS)
	}
	if cam.Frames < 0 {
		return invalid("camera", "frames", "must not be negative, got %d", cam.Frames)
	}

	p := c.Pipeline
	switch p.AGC {
	case AGCSimple:
		if err := p.SimpleAGC.Validate(); err != nil {
			return err
		}
	case AGCEnvelope:
		if err := p.EnvelopeAGC.Validate(); err != nil {
			return err
		}
	case AGCNone:
	default:
		return invalid("pipeline", "agc", "unknown mode %q", p.AGC)
	}
	if p.Contrast {
		if err := p.CLAHE.Validate(); err != nil {
			return err
		}
	}

	if c.Display.Width <= 0 || c.Display.Height <= 0 {
		return invalid("display", "width/height", "must be positive, got %dx%d", c.Display.Width, c.Display.Height)
	}
	if c.Display.KeySampleMs <= 0 {
		return invalid("display", "key_sample_ms", "must be positive, got %d", c.Display.KeySampleMs)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return invalid("server", "port", "out of range: %d", c.Server.Port)
	}
	if c.Server.JPEGQuality < 1 || c.Server.JPEGQuality > 100 {
		return invalid("server", "jpeg_quality", "must be in [1,100], got %d", c.Server.JPEGQuality)
	}
	return nil
}

// YAML renders the configuration in config file form
func (c *Config) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
