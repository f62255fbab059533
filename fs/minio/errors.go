package minio

import (
	"fmt"
	"io/fs"

	"github.com/minio/minio-go/v7"
)

// translate converts MinIO error responses to fs errors.
func translate(err error) error {
	if err == nil {
		return nil
	}

	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fs.ErrNotExist
	case "AccessDenied":
		return fs.ErrPermission
	}
	return fmt.Errorf("minio: %w", err)
}

func pathError(op, name string, err error) error {
	if err == nil {
		return nil
	}
	return &fs.PathError{Op: op, Path: name, Err: err}
}
