// Package s3blob stores and fetches replay sample files in S3 or any
// S3-compatible object store (MinIO, R2, iDrive e2).
package s3blob

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig holds the connection settings for the object store.
type ClientConfig struct {
	// Endpoint is the S3-compatible endpoint URL. Empty means AWS.
	Endpoint string
	Region   string
	// Bucket is used for paths that do not name one.
	Bucket    string
	AccessKey string
	SecretKey string
	// UseSSL picks the scheme when Endpoint has none.
	UseSSL         bool
	ForcePathStyle bool
}

// Client wraps the SDK client with a default bucket.
type Client struct {
	s3     *s3.Client
	bucket string
}

// New creates a Client. Static credentials are used when an access key is
// configured; otherwise the default AWS credential chain applies.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3blob: region is required")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		loadOpts = append(loadOpts, config.WithCredentialsProvider(creds))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(normaliseEndpoint(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &Client{s3: client, bucket: cfg.Bucket}, nil
}

// Health issues HeadBucket against the default bucket.
func (c *Client) Health(ctx context.Context) error {
	if c.bucket == "" {
		return nil
	}
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	if err != nil {
		return fmt.Errorf("s3blob: health check for bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Close is a no-op; the SDK needs no teardown.
func (c *Client) Close() error { return nil }

// Bucket returns the default bucket.
func (c *Client) Bucket() string { return c.bucket }

// locate splits a path into bucket and key. "s3://bucket/key" names the
// bucket explicitly; anything else is a key in the default bucket.
func locate(path, defaultBucket string) (bucket, key string, err error) {
	if strings.HasPrefix(path, "s3://") {
		u, perr := url.Parse(path)
		if perr != nil {
			return "", "", fmt.Errorf("s3blob: parse %q: %w", path, perr)
		}
		bucket, key = u.Host, strings.TrimPrefix(u.Path, "/")
	} else {
		bucket, key = defaultBucket, strings.TrimPrefix(path, "/")
	}
	if bucket == "" {
		return "", "", fmt.Errorf("s3blob: no bucket for %q", path)
	}
	if key == "" {
		return "", "", fmt.Errorf("s3blob: no object key in %q", path)
	}
	return bucket, key, nil
}

func normaliseEndpoint(endpoint string, useSSL bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	scheme := "http"
	if useSSL {
		scheme = "https"
	}
	return scheme + "://" + endpoint
}
