// Package objectstore configures and connects the S3-compatible store
// holding run artifacts.
package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/LCLUCam/VULCAN/platform/env"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool

	// BucketRuntime receives artifacts while a run executes;
	// BucketFinal is the promoted, read-only tier.
	BucketRuntime string
	BucketFinal   string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("VULCAN_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:      env.String("VULCAN_MINIO_ENDPOINT", "localhost:9000"),
		AccessKey:     env.String("VULCAN_MINIO_ACCESS_KEY", "vulcan"),
		SecretKey:     env.String("VULCAN_MINIO_SECRET_KEY", "vulcanminio"),
		Region:        env.String("VULCAN_MINIO_REGION", "us-east-1"),
		UseSSL:        useSSL,
		BucketRuntime: env.String("VULCAN_MINIO_BUCKET_RUNTIME", "vulcan-runtime"),
		BucketFinal:   env.String("VULCAN_MINIO_BUCKET_FINAL", "vulcan-final"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.BucketRuntime) == "" {
		return errors.New("runtime bucket is required")
	}
	if strings.TrimSpace(c.BucketFinal) == "" {
		return errors.New("final bucket is required")
	}
	if strings.TrimSpace(c.BucketRuntime) == strings.TrimSpace(c.BucketFinal) {
		return errors.New("runtime and final buckets must differ")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
