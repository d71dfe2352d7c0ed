// Package config loads and validates the kubereach configuration file.
package config

import (
	"fmt"

	"github.com/kubereach/kubereach/internal/policy"
)

// Config holds the optional kubereach.yaml settings. Every field has a
// working default so the file itself is optional.
type Config struct {
	Kubeconfig string       `mapstructure:"kubeconfig"`
	Namespace  string       `mapstructure:"namespace"`
	Matrix     MatrixConfig `mapstructure:"matrix"`
	Server     ServerConfig `mapstructure:"server"`
	Report     ReportConfig `mapstructure:"report"`
}

// MatrixConfig controls which ports the reachability matrix probes.
type MatrixConfig struct {
	Ports []string `mapstructure:"ports"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Listen         string   `mapstructure:"listen"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// ReportConfig configures report rendering and the optional S3 upload target.
type ReportConfig struct {
	Format string   `mapstructure:"format"`
	S3     S3Config `mapstructure:"s3"`
}

// S3Config holds the S3-compatible upload target for reports.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// ValidFormats contains the report formats the renderer understands.
var ValidFormats = map[string]bool{
	"table": true,
	"json":  true,
	"yaml":  true,
	"csv":   true,
}

// Validate checks the configuration for common errors and returns a detailed
// error if validation fails.
func (c *Config) Validate() error {
	for _, p := range c.Matrix.Ports {
		if _, err := policy.ParsePortProtocol(p); err != nil {
			return fmt.Errorf("matrix port validation failed: %w", err)
		}
	}

	if c.Server.Listen == "" {
		return fmt.Errorf("server listen address is required")
	}

	if !ValidFormats[c.Report.Format] {
		return fmt.Errorf("invalid report format %q: must be one of table, json, yaml, csv", c.Report.Format)
	}

	if err := c.validateS3(); err != nil {
		return fmt.Errorf("s3 validation failed: %w", err)
	}

	return nil
}

// validateS3 checks that an S3 target, when configured, names a bucket and
// carries either both credential halves or neither.
func (c *Config) validateS3() error {
	s3 := c.Report.S3
	if s3.Endpoint == "" && s3.Bucket == "" {
		return nil
	}

	if s3.Bucket == "" {
		return fmt.Errorf("bucket is required when an endpoint is set")
	}
	if (s3.AccessKey == "") != (s3.SecretKey == "") {
		return fmt.Errorf("access_key and secret_key must be set together")
	}

	return nil
}
