// Package minio provides an S3-compatible export destination implementing core.WriteFS.
package minio

import (
	"fmt"

	"github.com/minio/minio-go/v7"
)

// Config holds MinIO destination configuration.
type Config struct {
	// Endpoint is the server address (e.g., "localhost:9000").
	Endpoint string

	// Bucket is the destination bucket.
	Bucket string

	// AccessKey is the access key ID.
	AccessKey string

	// SecretKey is the secret access key.
	SecretKey string

	// UseSSL enables HTTPS connections.
	UseSSL bool

	// Prefix is prepended to every object key.
	Prefix string

	// Client is an optional pre-configured client.
	// If provided, Endpoint/AccessKey/SecretKey are ignored.
	Client *minio.Client

	// MultipartThreshold is the size at which a file switches from a
	// single buffered PutObject to a streamed multipart upload.
	// Default: 5MB.
	MultipartThreshold int64
}

// validate checks that either Client or Endpoint+AccessKey+SecretKey is set.
func (c *Config) validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if c.Client != nil {
		return nil
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when client is not provided")
	}
	if c.AccessKey == "" {
		return fmt.Errorf("access key is required when client is not provided")
	}
	if c.SecretKey == "" {
		return fmt.Errorf("secret key is required when client is not provided")
	}
	return nil
}
