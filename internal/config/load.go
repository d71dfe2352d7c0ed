package config

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Default returns a configuration with all defaults applied.
func Default() *Config {
	return &Config{
		Matrix: MatrixConfig{
			Ports: []string{"80/TCP"},
		},
		Server: ServerConfig{
			Listen: ":8080",
		},
		Report: ReportConfig{
			Format: "table",
			S3:     S3Config{Region: "us-east-1"},
		},
	}
}

// LoadFile reads and parses the configuration from a YAML file.
func LoadFile(path string) (*Config, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var rawConfig map[string]interface{}
	if err := yaml.Unmarshal(data, &rawConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}

	var cfg Config
	if err := mapstructure.Decode(rawConfig, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// Set defaults
	if len(cfg.Matrix.Ports) == 0 {
		cfg.Matrix.Ports = []string{"80/TCP"}
	}
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.Report.Format == "" {
		cfg.Report.Format = "table"
	}
	if cfg.Report.S3.Region == "" {
		cfg.Report.S3.Region = "us-east-1"
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}
