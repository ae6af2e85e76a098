package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// UploaderConfig configures the result artifact uploader. Endpoint is optional
// and enables S3-compatible stores (R2, MinIO); AccessKeyID/SecretAccessKey
// are optional and fall back to the default credential chain.
type UploaderConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
}

// Uploader pushes result artifacts to an S3-compatible bucket.
type Uploader struct {
	client *s3.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// NewUploader creates an uploader from the default AWS credential chain,
// optionally overridden with static credentials and a custom endpoint.
func NewUploader(ctx context.Context, cfg UploaderConfig, logger *zap.Logger) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("upload bucket not configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL: endpoint,
			}, nil
		})
		opts = append(opts, config.WithEndpointResolverWithOptions(customResolver))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &Uploader{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger,
	}, nil
}

// UploadFile reads a local file and uploads it under the configured prefix,
// keyed by its base name.
func (u *Uploader) UploadFile(ctx context.Context, localPath string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", localPath, err)
	}
	key := path.Join(u.prefix, filepath.Base(localPath))
	if err := u.UploadObject(ctx, key, data); err != nil {
		return "", err
	}
	return key, nil
}

// UploadObject uploads a byte slice under the given key.
func (u *Uploader) UploadObject(ctx context.Context, objectKey string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(objectKey),
		Body:   bytes.NewReader(data),
	}

	_, err := u.client.PutObject(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to upload object %s: %w", objectKey, err)
	}

	u.logger.Info("uploaded result artifact",
		zap.String("bucket", u.bucket),
		zap.String("key", objectKey),
		zap.Int("bytes", len(data)))
	return nil
}

// ObjectExists checks if an object exists.
func (u *Uploader) ObjectExists(ctx context.Context, objectKey string) (bool, error) {
	input := &s3.HeadObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(objectKey),
	}

	_, err := u.client.HeadObject(ctx, input)
	if err != nil {
		var notFoundErr *types.NoSuchKey
		if errors.As(err, &notFoundErr) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}

	return true, nil
}
