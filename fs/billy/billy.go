package billy

import (
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/jmgilman/go/imgex/fs/core"
)

// LocalFS wraps billy's osfs for local filesystem access.
type LocalFS struct {
	bfs     billy.Filesystem
	tempDir string
}

// MemoryFS wraps billy's memfs for in-memory filesystem access.
type MemoryFS struct {
	// memfs keeps its directory tree in plain maps.
	mu  sync.Mutex
	bfs billy.Filesystem
}

// Option configures filesystem creation.
type Option func(*config)

type config struct {
	tempDir string
}

// WithTempDir sets the directory LocalFS uses for TempFile when none is given.
// Defaults to os.TempDir().
func WithTempDir(dir string) Option {
	return func(c *config) {
		c.tempDir = dir
	}
}

// NewLocal creates a go-billy backed local filesystem rooted at "/".
func NewLocal(opts ...Option) *LocalFS {
	cfg := config{tempDir: os.TempDir()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &LocalFS{
		bfs:     osfs.New("/"),
		tempDir: cfg.tempDir,
	}
}

// NewMemory creates an empty go-billy backed in-memory filesystem.
func NewMemory(_ ...Option) *MemoryFS {
	return &MemoryFS{
		bfs: memfs.New(),
	}
}

// Unwrap returns the underlying billy.Filesystem.
func (lfs *LocalFS) Unwrap() billy.Filesystem {
	return lfs.bfs
}

// Unwrap returns the underlying billy.Filesystem.
func (mfs *MemoryFS) Unwrap() billy.Filesystem {
	return mfs.bfs
}

// resolve makes name absolute against the working directory so it can be
// addressed inside the "/"-rooted osfs.
func (lfs *LocalFS) resolve(name string) string {
	if !filepath.IsAbs(name) {
		if abs, err := filepath.Abs(name); err == nil {
			name = abs
		}
	}
	return filepath.ToSlash(filepath.Clean(name))
}

func normalize(name string) string {
	return path.Clean("/" + filepath.ToSlash(name))
}

// rooted turns a name reported by billy into an absolute path.
func rooted(name string) string {
	return path.Clean("/" + filepath.ToSlash(name))
}

func readFile(bfs billy.Filesystem, name string) ([]byte, error) {
	f, err := bfs.Open(name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

// Open opens the named file for reading.
func (lfs *LocalFS) Open(name string) (fs.File, error) {
	name = lfs.resolve(name)
	f, err := lfs.bfs.Open(name)
	if err != nil {
		return nil, err
	}
	return &File{file: f, fs: lfs.bfs, name: name}, nil
}

// Stat returns file metadata for the named file.
func (lfs *LocalFS) Stat(name string) (fs.FileInfo, error) {
	return lfs.bfs.Stat(lfs.resolve(name))
}

// ReadFile reads the named file and returns its contents.
func (lfs *LocalFS) ReadFile(name string) ([]byte, error) {
	return readFile(lfs.bfs, lfs.resolve(name))
}

// Create creates or truncates the named file.
func (lfs *LocalFS) Create(name string) (core.File, error) {
	name = lfs.resolve(name)
	f, err := lfs.bfs.Create(name)
	if err != nil {
		return nil, err
	}
	return &File{file: f, fs: lfs.bfs, name: name}, nil
}

// MkdirAll creates a directory and any missing parents.
func (lfs *LocalFS) MkdirAll(path string, perm fs.FileMode) error {
	return lfs.bfs.MkdirAll(lfs.resolve(path), perm)
}

// TempFile creates a temporary file in dir, or in the configured temp
// directory when dir is empty.
func (lfs *LocalFS) TempFile(dir, pattern string) (core.File, error) {
	if dir == "" {
		dir = lfs.tempDir
	}
	f, err := util.TempFile(lfs.bfs, lfs.resolve(dir), pattern)
	if err != nil {
		return nil, err
	}
	return &File{file: f, fs: lfs.bfs, name: rooted(f.Name())}, nil
}

// Remove removes the named file or empty directory.
func (lfs *LocalFS) Remove(name string) error {
	return lfs.bfs.Remove(lfs.resolve(name))
}

// Type returns FSTypeLocal.
func (lfs *LocalFS) Type() core.FSType {
	return core.FSTypeLocal
}

// Open opens the named file for reading.
func (mfs *MemoryFS) Open(name string) (fs.File, error) {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()

	name = normalize(name)
	f, err := mfs.bfs.Open(name)
	if err != nil {
		return nil, err
	}
	return &File{file: f, fs: mfs.bfs, name: name}, nil
}

// Stat returns file metadata for the named file.
func (mfs *MemoryFS) Stat(name string) (fs.FileInfo, error) {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()
	return mfs.bfs.Stat(normalize(name))
}

// ReadFile reads the named file and returns its contents.
func (mfs *MemoryFS) ReadFile(name string) ([]byte, error) {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()
	return readFile(mfs.bfs, normalize(name))
}

// Create creates or truncates the named file, creating parent directories.
func (mfs *MemoryFS) Create(name string) (core.File, error) {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()

	name = normalize(name)
	f, err := mfs.bfs.Create(name)
	if err != nil {
		return nil, err
	}
	return &File{file: f, fs: mfs.bfs, name: name}, nil
}

// MkdirAll creates a directory and any missing parents.
func (mfs *MemoryFS) MkdirAll(path string, perm fs.FileMode) error {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()
	return mfs.bfs.MkdirAll(normalize(path), perm)
}

// TempFile creates a temporary file in dir ("/tmp" when empty).
func (mfs *MemoryFS) TempFile(dir, pattern string) (core.File, error) {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()

	if dir == "" {
		dir = "/tmp"
	}
	f, err := util.TempFile(mfs.bfs, normalize(dir), pattern)
	if err != nil {
		return nil, err
	}
	return &File{file: f, fs: mfs.bfs, name: rooted(f.Name())}, nil
}

// Remove removes the named file or empty directory.
func (mfs *MemoryFS) Remove(name string) error {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()
	return mfs.bfs.Remove(normalize(name))
}

// Type returns FSTypeMemory.
func (mfs *MemoryFS) Type() core.FSType {
	return core.FSTypeMemory
}

// Compile-time interface checks.
var (
	_ core.FS = (*LocalFS)(nil)
	_ core.FS = (*MemoryFS)(nil)
)
