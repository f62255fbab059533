package minio

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/jmgilman/go/imgex/fs/core"
	"github.com/minio/minio-go/v7"
)

// File is a write-only object handle.
// Writes are buffered until the multipart threshold, then streamed through a
// pipe to a background PutObject.
type File struct {
	ctx  context.Context
	fs   *MinioFS
	key  string
	name string

	buffer       *bytes.Buffer
	pipeW        *io.PipeWriter
	putRes       chan error
	bytesWritten int64
	closed       bool
}

func newFile(ctx context.Context, mfs *MinioFS, key, name string) *File {
	return &File{
		ctx:    ctx,
		fs:     mfs,
		key:    key,
		name:   name,
		buffer: new(bytes.Buffer),
	}
}

// contentType derives the object content type from the key suffix.
func contentType(key string) string {
	switch {
	case strings.HasSuffix(key, ".tgz"), path.Ext(key) == ".gz":
		return "application/gzip"
	case path.Ext(key) == ".tar":
		return "application/x-tar"
	default:
		return "application/octet-stream"
	}
}

// Read is not supported.
func (f *File) Read(_ []byte) (int, error) {
	return 0, pathError("read", f.name, core.ErrUnsupported)
}

// Write buffers p, switching to a streamed upload once the threshold is crossed.
func (f *File) Write(p []byte) (int, error) {
	if f.closed {
		return 0, pathError("write", f.name, fs.ErrClosed)
	}

	if f.pipeW != nil {
		n, err := f.pipeW.Write(p)
		f.bytesWritten += int64(n)
		if err != nil {
			return n, pathError("write", f.name, err)
		}
		return n, nil
	}

	if int64(f.buffer.Len()+len(p)) <= f.fs.multipartThreshold {
		n, _ := f.buffer.Write(p)
		f.bytesWritten += int64(n)
		return n, nil
	}

	return f.startStreaming(p)
}

// nolint:contextcheck // io.Writer.Write cannot accept a context
func (f *File) startStreaming(p []byte) (int, error) {
	pr, pw := io.Pipe()
	f.pipeW = pw
	f.putRes = make(chan error, 1)

	go func() {
		_, err := f.fs.client.PutObject(f.ctx, f.fs.bucket, f.key, pr, -1, minio.PutObjectOptions{
			ContentType: contentType(f.key),
		})
		_ = pr.CloseWithError(err)
		f.putRes <- translate(err)
		close(f.putRes)
	}()

	if f.buffer.Len() > 0 {
		if _, err := pw.Write(f.buffer.Bytes()); err != nil {
			return 0, pathError("write", f.name, err)
		}
	}
	f.buffer = nil

	n, err := pw.Write(p)
	f.bytesWritten += int64(n)
	if err != nil {
		return n, pathError("write", f.name, err)
	}
	return n, nil
}

// Close completes the upload and returns its error.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true

	if f.pipeW != nil {
		_ = f.pipeW.Close()
		return pathError("close", f.name, <-f.putRes)
	}

	_, err := f.fs.client.PutObject(f.ctx, f.fs.bucket, f.key,
		bytes.NewReader(f.buffer.Bytes()), int64(f.buffer.Len()),
		minio.PutObjectOptions{ContentType: contentType(f.key)})
	return pathError("close", f.name, translate(err))
}

// Abort cancels the upload. Nothing is stored under the key.
func (f *File) Abort(cause error) error {
	if f.closed {
		return nil
	}
	f.closed = true

	if f.pipeW != nil {
		_ = f.pipeW.CloseWithError(cause)
		<-f.putRes
	}
	f.buffer = nil
	return nil
}

// Stat reports the number of bytes written so far.
func (f *File) Stat() (fs.FileInfo, error) {
	return &fileInfo{name: path.Base(f.key), size: f.bytesWritten}, nil
}

// Name returns the name passed to Create.
func (f *File) Name() string {
	return f.name
}

type fileInfo struct {
	name string
	size int64
}

func (fi *fileInfo) Name() string       { return fi.name }
func (fi *fileInfo) Size() int64        { return fi.size }
func (fi *fileInfo) Mode() fs.FileMode  { return 0o644 }
func (fi *fileInfo) ModTime() time.Time { return time.Time{} }
func (fi *fileInfo) IsDir() bool        { return false }
func (fi *fileInfo) Sys() interface{}   { return nil }

var (
	_ core.File    = (*File)(nil)
	_ core.Aborter = (*File)(nil)
)
