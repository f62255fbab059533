package core

import (
	"io"
	"io/fs"
)

// FSType represents the underlying type of filesystem implementation.
type FSType int

const (
	// FSTypeUnknown indicates the filesystem type is unknown or unspecified.
	FSTypeUnknown FSType = iota
	// FSTypeLocal indicates a disk-backed filesystem.
	FSTypeLocal
	// FSTypeMemory indicates an in-memory filesystem.
	FSTypeMemory
	// FSTypeRemote indicates remote object storage.
	FSTypeRemote
)

// String returns a string representation of the FSType.
func (t FSType) String() string {
	switch t {
	case FSTypeLocal:
		return "local"
	case FSTypeMemory:
		return "memory"
	case FSTypeRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// File is an open file handle that can be written to.
//
// Optional capabilities are discovered with type assertions:
//
//   - io.ReaderAt, required of files returned by TempFS
//   - io.Seeker
//   - Syncer
//   - Aborter
type File interface {
	fs.File
	io.Writer

	// Name returns the name of the file as provided to Create or TempFile.
	Name() string
}

// Syncer commits file contents to stable storage.
type Syncer interface {
	Sync() error
}

// Aborter discards a partially written file instead of committing it on
// Close. Providers that publish on Close, such as object stores, implement it.
type Aborter interface {
	Abort(cause error) error
}

// ReadFS defines read-only filesystem operations.
type ReadFS interface {
	// Open opens the named file for reading.
	Open(name string) (fs.File, error)

	// Stat returns file metadata.
	Stat(name string) (fs.FileInfo, error)

	// ReadFile reads the named file and returns its contents.
	ReadFile(name string) ([]byte, error)
}

// WriteFS is the destination contract for exported archives.
type WriteFS interface {
	// Create creates or truncates the named file for writing.
	// The returned file must be closed; for remote providers Close
	// completes the upload and reports its error.
	Create(name string) (File, error)

	// MkdirAll creates a directory and any missing parents.
	// Providers without real directories treat it as a no-op.
	MkdirAll(path string, perm fs.FileMode) error

	// Type returns the underlying filesystem type.
	Type() FSType
}

// TempFS creates scratch files. Files it returns implement io.ReaderAt.
type TempFS interface {
	// TempFile creates a new temporary file in dir, opened for reading and writing.
	// If dir is empty, the provider default is used.
	TempFile(dir, pattern string) (File, error)

	// Remove removes the named file.
	Remove(name string) error
}

// FS is implemented by providers that support every capability.
type FS interface {
	ReadFS
	WriteFS
	TempFS
}
