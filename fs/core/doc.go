// Package core defines the filesystem capabilities imgex writes through.
//
// Export destinations only need WriteFS. The layer spool needs TempFS and
// files that implement io.ReaderAt. ReadFS is implemented by the local and
// memory providers and is mainly used to inspect results.
//
// Providers:
//
//   - fs/billy: local disk and in-memory filesystems backed by go-billy
//   - fs/minio: S3-compatible object storage (write-only destination)
package core
