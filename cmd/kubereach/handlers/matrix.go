package handlers

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kubereach/kubereach/internal/config"
	"github.com/kubereach/kubereach/internal/policy"
	"github.com/kubereach/kubereach/internal/report"
)

// MatrixOptions holds the matrix command parameters.
type MatrixOptions struct {
	Source     SourceOptions
	ConfigPath string
	Output     string
	Ports      []string
	Upload     bool
}

// Matrix handles the matrix command.
//
// It evaluates every pod pair in the snapshot for the requested ports and
// prints the resulting table. With --upload the rendered report is also
// stored in the configured S3 bucket.
func Matrix(ctx context.Context, opts MatrixOptions) error {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}

	snap, err := loadSnapshot(ctx, opts.Source, cfg)
	if err != nil {
		return err
	}

	portSpecs := opts.Ports
	if len(portSpecs) == 0 {
		portSpecs = cfg.Matrix.Ports
	}
	ports, err := policy.ParsePorts(portSpecs)
	if err != nil {
		return err
	}

	matrix := policy.BuildMatrix(snap, ports)

	format := opts.Output
	if format == "" {
		format = cfg.Report.Format
	}
	renderer := &report.Renderer{
		Format: format,
		Color:  format == "table" && report.IsTerminal(os.Stdout),
	}
	if err := renderer.RenderMatrix(os.Stdout, matrix); err != nil {
		return err
	}

	if opts.Upload {
		return uploadMatrix(ctx, cfg, format, matrix)
	}
	return nil
}

// uploadMatrix renders the matrix without color and stores it in the
// configured S3 bucket.
func uploadMatrix(ctx context.Context, cfg *config.Config, format string, matrix *policy.Matrix) error {
	s3cfg := cfg.Report.S3
	if s3cfg.Bucket == "" {
		return fmt.Errorf("no S3 bucket configured for upload")
	}

	var buf bytes.Buffer
	renderer := &report.Renderer{Format: format}
	if err := renderer.RenderMatrix(&buf, matrix); err != nil {
		return err
	}

	uploader, err := report.NewUploader(
		s3cfg.Endpoint, s3cfg.Region, s3cfg.Bucket, s3cfg.Prefix,
		s3cfg.AccessKey, s3cfg.SecretKey)
	if err != nil {
		return err
	}
	if err := uploader.EnsureBucket(ctx); err != nil {
		return err
	}

	key, err := uploader.Upload(ctx, "matrix", format, buf.Bytes(), time.Now())
	if err != nil {
		return err
	}

	fmt.Printf("Uploaded report to s3://%s/%s\n", s3cfg.Bucket, key)
	return nil
}
