package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/kubereach/kubereach/internal/util/retry"
)

// S3API is the subset of the S3 client the uploader needs.
type S3API interface {
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader stores rendered reports in an S3-compatible bucket. Requests are
// retried with exponential backoff.
type Uploader struct {
	s3        S3API
	bucket    string
	prefix    string
	retryOpts []retry.Option
}

// NewUploader creates an uploader for the given S3-compatible target. When
// accessKey is empty the default AWS credential chain is used.
func NewUploader(endpoint, region, bucket, prefix, accessKey, secretKey string) (*Uploader, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if accessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &Uploader{s3: client, bucket: bucket, prefix: prefix}, nil
}

// NewUploaderForClient wraps an existing S3 client.
func NewUploaderForClient(client S3API, bucket, prefix string) *Uploader {
	return &Uploader{s3: client, bucket: bucket, prefix: prefix}
}

// EnsureBucket creates the target bucket. Returns nil if the bucket already
// exists and is owned by us.
func (u *Uploader) EnsureBucket(ctx context.Context) error {
	return retry.WithExponentialBackoff(ctx, func() error {
		_, err := u.s3.CreateBucket(ctx, &s3.CreateBucketInput{
			Bucket: aws.String(u.bucket),
		})
		if err != nil {
			if isBucketAlreadyOwnedByYou(err) {
				return nil
			}
			return fmt.Errorf("failed to create bucket %s: %w", u.bucket, err)
		}
		return nil
	}, u.retryOpts...)
}

// Upload stores a rendered report and returns the object key. The key is
// derived from the report kind, a timestamp and the format's extension.
func (u *Uploader) Upload(ctx context.Context, kind, format string, data []byte, now time.Time) (string, error) {
	key := path.Join(u.prefix,
		fmt.Sprintf("%s-%s.%s", kind, now.UTC().Format("20060102-150405"), extensionFor(format)))

	err := retry.WithExponentialBackoff(ctx, func() error {
		_, err := u.s3.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(u.bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
			ContentType:   aws.String(contentTypeFor(format)),
		})
		if err != nil {
			return fmt.Errorf("failed to put object %s in bucket %s: %w", key, u.bucket, err)
		}
		return nil
	}, u.retryOpts...)
	if err != nil {
		return "", err
	}
	return key, nil
}

func extensionFor(format string) string {
	switch format {
	case "json":
		return "json"
	case "yaml":
		return "yaml"
	case "csv":
		return "csv"
	default:
		return "txt"
	}
}

func contentTypeFor(format string) string {
	switch format {
	case "json":
		return "application/json"
	case "yaml":
		return "application/yaml"
	case "csv":
		return "text/csv"
	default:
		return "text/plain"
	}
}

// isBucketAlreadyOwnedByYou checks if the error indicates the bucket exists
// and is owned by us.
func isBucketAlreadyOwnedByYou(err error) bool {
	if err == nil {
		return false
	}

	var baoby *types.BucketAlreadyOwnedByYou
	if errors.As(err, &baoby) {
		return true
	}

	var bae *types.BucketAlreadyExists
	if errors.As(err, &bae) {
		return true
	}

	// Fall back to API error code checking for S3-compatible services
	// that may not return the exact SDK error types
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists"
	}

	return false
}
