// Package storage wraps S3-compatible object storage for the
// scheduler's backup job, adapted from a presigned-URL résumé-upload
// client into a direct-upload snapshot client: backups are written
// server-side, not handed to a remote caller to PUT.
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/kazimov/jobtrail/internal/config"
)

// S3Client provides S3 storage operations.
type S3Client struct {
	client *s3.Client
	bucket string
}

// NewS3Client creates a new S3 client with custom endpoint support.
func NewS3Client(cfg config.S3Config) (*S3Client, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("S3 configuration is incomplete")
	}

	customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if service == s3.ServiceID {
			return aws.Endpoint{
				URL:               cfg.Endpoint,
				SigningRegion:     cfg.Region,
				HostnameImmutable: true,
			}, nil
		}
		return aws.Endpoint{}, fmt.Errorf("unknown endpoint requested")
	})

	awsConfig := aws.Config{
		Region:                      cfg.Region,
		Credentials:                 credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		EndpointResolverWithOptions: customResolver,
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return &S3Client{client: s3Client, bucket: cfg.Bucket}, nil
}

// PutObject uploads body under key, used by Snapshot to push the spool
// file.
func (c *S3Client) PutObject(ctx context.Context, key string, body io.Reader, contentType string) error {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}

// GeneratePresignedDownloadURL generates a short-lived link an operator
// can use to fetch a backup or report without AWS credentials of their own.
func (c *S3Client) GeneratePresignedDownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	presignClient := s3.NewPresignClient(c.client)
	request, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned download URL: %w", err)
	}
	return request.URL, nil
}

// DeleteObject deletes an object from S3.
func (c *S3Client) DeleteObject(ctx context.Context, key string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// ObjectExists checks if an object exists in S3.
func (c *S3Client) ObjectExists(ctx context.Context, key string) (bool, error) {
	_, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return false, nil
	}
	return true, nil
}

// Backuper implements scheduler.Backuper by snapshotting a local spool
// file to S3 under a timestamped key, matching §4.8's backup job.
type Backuper struct {
	s3       *S3Client
	spoolPath func() (io.ReadCloser, error)
	keyPrefix string
	now       func() time.Time
}

// NewBackuper wires a spool-file opener (the embedded Store's underlying
// file) to the S3 client. now is injected so callers can avoid a bare
// time.Now() in generated code paths that need determinism in tests.
func NewBackuper(s3c *S3Client, keyPrefix string, opener func() (io.ReadCloser, error), now func() time.Time) *Backuper {
	return &Backuper{s3: s3c, spoolPath: opener, keyPrefix: keyPrefix, now: now}
}

func (b *Backuper) Snapshot(ctx context.Context) error {
	f, err := b.spoolPath()
	if err != nil {
		return err
	}
	defer f.Close()
	key := fmt.Sprintf("%s/%s.db", b.keyPrefix, b.now().UTC().Format("20060102T150405"))
	return b.s3.PutObject(ctx, key, f, "application/octet-stream")
}
