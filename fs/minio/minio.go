package minio

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"path"
	"strings"

	"github.com/jmgilman/go/imgex/fs/core"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const defaultMultipartThreshold = 5 * 1024 * 1024

// MinioFS writes export archives as objects in a bucket.
//
//nolint:revive // matches LocalFS/MemoryFS naming
type MinioFS struct {
	client             *minio.Client
	bucket             string
	prefix             string
	multipartThreshold int64
}

// NewMinIO creates a MinIO-backed destination.
func NewMinIO(cfg Config) (*MinioFS, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	client := cfg.Client
	if client == nil {
		var err error
		client, err = minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create minio client: %w", err)
		}
	}

	threshold := cfg.MultipartThreshold
	if threshold <= 0 {
		threshold = defaultMultipartThreshold
	}

	return &MinioFS{
		client:             client,
		bucket:             cfg.Bucket,
		prefix:             normalizeKey(cfg.Prefix),
		multipartThreshold: threshold,
	}, nil
}

// ParseObjectURL splits "s3://bucket/key" into bucket and key.
func ParseObjectURL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid object url %q: %w", raw, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("invalid object url %q: scheme must be s3", raw)
	}
	key = normalizeKey(u.Path)
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("invalid object url %q: expected s3://bucket/key", raw)
	}
	return u.Host, key, nil
}

func normalizeKey(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	return strings.Trim(path.Clean("/"+name), "/")
}

func (m *MinioFS) joinPath(name string) string {
	name = normalizeKey(name)
	if m.prefix == "" {
		return name
	}
	if name == "" {
		return m.prefix
	}
	return m.prefix + "/" + name
}

// Create opens an object for writing. The upload completes on Close.
func (m *MinioFS) Create(name string) (core.File, error) {
	key := m.joinPath(name)
	if key == "" {
		return nil, pathError("create", name, fs.ErrInvalid)
	}
	return newFile(context.Background(), m, key, name), nil
}

// MkdirAll is a no-op; object stores have no directories.
func (m *MinioFS) MkdirAll(_ string, _ fs.FileMode) error {
	return nil
}

// Type returns FSTypeRemote.
func (m *MinioFS) Type() core.FSType {
	return core.FSTypeRemote
}

var _ core.WriteFS = (*MinioFS)(nil)
