package config

import (
	"github.com/bryanchriswhite/SauronThermal/internal/capture"
	"github.com/bryanchriswhite/SauronThermal/internal/display"
	"github.com/bryanchriswhite/SauronThermal/internal/filter"
)

// AGCMode selects the gain control stage of the default pipeline
type AGCMode string

const (
	AGCSimple   AGCMode = "simple"
	AGCEnvelope AGCMode = "envelope"
	AGCNone     AGCMode = "none"
)

// Config represents the application configuration
type Config struct {
	LogLevel  string `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	LogPretty bool   `json:"log_pretty" yaml:"log_pretty" mapstructure:"log_pretty"`

	Camera   capture.Options `json:"camera" yaml:"camera" mapstructure:"camera"`
	Pipeline PipelineConfig  `json:"pipeline" yaml:"pipeline" mapstructure:"pipeline"`
	Display  display.Config  `json:"display" yaml:"display" mapstructure:"display"`
	Server   ServerConfig    `json:"server" yaml:"server" mapstructure:"server"`
	Overlay  OverlayConfig   `json:"overlay" yaml:"overlay" mapstructure:"overlay"`
}

// PipelineConfig describes the stages run on every frame after conversion
// to float32.
type PipelineConfig struct {
	AGC AGCMode `json:"agc" yaml:"agc" mapstructure:"agc"`
	// Contrast appends CLAHE after gain control
	Contrast bool `json:"contrast" yaml:"contrast" mapstructure:"contrast"`

	SimpleAGC   filter.SimpleAGCConfig   `json:"simple_agc" yaml:"simple_agc" mapstructure:"simple_agc"`
	EnvelopeAGC filter.EnvelopeAGCConfig `json:"envelope_agc" yaml:"envelope_agc" mapstructure:"envelope_agc"`
	CLAHE       filter.CLAHEConfig       `json:"clahe" yaml:"clahe" mapstructure:"clahe"`
}

// ServerConfig represents the HTTP server settings
type ServerConfig struct {
	Port        int `json:"port" yaml:"port" mapstructure:"port"`
	JPEGQuality int `json:"jpeg_quality" yaml:"jpeg_quality" mapstructure:"jpeg_quality"`
}

// OverlayConfig represents overlay configuration
type OverlayConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
}

// Default returns the configuration used when nothing overrides it
func Default() Config {
	return Config{
		LogLevel:  "info",
		LogPretty: true,
		Camera:    capture.DefaultOptions(),
		Pipeline: PipelineConfig{
			AGC:         AGCSimple,
			SimpleAGC:   filter.DefaultSimpleAGCConfig(),
			EnvelopeAGC: filter.DefaultEnvelopeAGCConfig(),
			CLAHE:       filter.DefaultCLAHEConfig(),
		},
		Display: display.DefaultConfig(),
		Server: ServerConfig{
			Port:        8000,
			JPEGQuality: 90,
		},
	}
}
