package minio

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestMinIO starts a MinIO container and returns a client with a bucket.
func setupTestMinIO(t *testing.T) (*minio.Client, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "minio/minio:latest",
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     "minioadmin",
			"MINIO_ROOT_PASSWORD": "minioadmin",
		},
		Cmd:        []string{"server", "/data"},
		WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start MinIO container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client, err := minio.New(endpoint, &minio.Options{
		Creds: credentials.NewStaticV4("minioadmin", "minioadmin", ""),
	})
	require.NoError(t, err)

	bucket := "exports"
	require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	return client, bucket
}

func readObject(t *testing.T, client *minio.Client, bucket, key string) ([]byte, minio.ObjectInfo) {
	t.Helper()
	obj, err := client.GetObject(context.Background(), bucket, key, minio.GetObjectOptions{})
	require.NoError(t, err)
	defer func() { _ = obj.Close() }()

	info, err := obj.Stat()
	require.NoError(t, err)
	data, err := io.ReadAll(obj)
	require.NoError(t, err)
	return data, info
}

func TestIntegration_BufferedUpload(t *testing.T) {
	client, bucket := setupTestMinIO(t)

	m, err := NewMinIO(Config{Client: client, Bucket: bucket, Prefix: "images"})
	require.NoError(t, err)

	f, err := m.Create("alpine/rootfs.tar")
	require.NoError(t, err)
	_, err = f.Write([]byte("small archive"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	data, info := readObject(t, client, bucket, "images/alpine/rootfs.tar")
	assert.Equal(t, "small archive", string(data))
	assert.Equal(t, "application/x-tar", info.ContentType)
}

func TestIntegration_StreamingUpload(t *testing.T) {
	client, bucket := setupTestMinIO(t)

	m, err := NewMinIO(Config{Client: client, Bucket: bucket, MultipartThreshold: 1024})
	require.NoError(t, err)

	payload := bytes.Repeat([]byte("layer-data"), 1000)
	f, err := m.Create("rootfs.tar.gz")
	require.NoError(t, err)
	for off := 0; off < len(payload); off += 700 {
		end := min(off+700, len(payload))
		_, err = f.Write(payload[off:end])
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())

	data, info := readObject(t, client, bucket, "rootfs.tar.gz")
	assert.Equal(t, payload, data)
	assert.Equal(t, "application/gzip", info.ContentType)
}

func TestIntegration_AbortStreaming(t *testing.T) {
	client, bucket := setupTestMinIO(t)

	m, err := NewMinIO(Config{Client: client, Bucket: bucket, MultipartThreshold: 16})
	require.NoError(t, err)

	f, err := m.Create("partial.tar")
	require.NoError(t, err)
	_, err = f.Write(bytes.Repeat([]byte("x"), 64))
	require.NoError(t, err)
	require.NoError(t, f.(*File).Abort(io.ErrUnexpectedEOF))

	_, err = client.StatObject(context.Background(), bucket, "partial.tar", minio.StatObjectOptions{})
	assert.Error(t, err, "aborted uploads leave no object")
}
