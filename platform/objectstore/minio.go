package objectstore

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

func NewMinIOClient(cfg Config) (*minio.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	}
	return minio.New(cfg.Endpoint, opts)
}

func EnsureBuckets(ctx context.Context, client *minio.Client, cfg Config) error {
	if err := ensureBucket(ctx, client, cfg.BucketRuntime, cfg.Region); err != nil {
		return fmt.Errorf("ensure runtime bucket: %w", err)
	}
	if err := ensureBucket(ctx, client, cfg.BucketFinal, cfg.Region); err != nil {
		return fmt.Errorf("ensure final bucket: %w", err)
	}
	return nil
}

func CheckBuckets(ctx context.Context, client *minio.Client, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	runtimeExists, err := client.BucketExists(ctx, cfg.BucketRuntime)
	if err != nil {
		return fmt.Errorf("runtime bucket exists: %w", err)
	}
	if !runtimeExists {
		return fmt.Errorf("runtime bucket missing: %s", cfg.BucketRuntime)
	}

	finalExists, err := client.BucketExists(ctx, cfg.BucketFinal)
	if err != nil {
		return fmt.Errorf("final bucket exists: %w", err)
	}
	if !finalExists {
		return fmt.Errorf("final bucket missing: %s", cfg.BucketFinal)
	}
	return nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
