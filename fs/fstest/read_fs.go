package fstest

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"testing"

	"github.com/jmgilman/go/imgex/fs/core"
)

// TestReadFS tests Open, Stat, and ReadFile against content written with
// Create.
func TestReadFS(t *testing.T, filesystem core.FS, config Config) {
	content := []byte("test file content")
	dir := config.path("testdir")
	name := config.path("testdir/testfile.txt")

	if err := filesystem.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll(%q): setup failed: %v", dir, err)
	}
	create(t, filesystem, name, content)

	t.Run("Open", func(t *testing.T) {
		f, err := filesystem.Open(name)
		if err != nil {
			t.Fatalf("Open(%q): got error %v, want nil", name, err)
		}
		defer func() { _ = f.Close() }()

		data, err := io.ReadAll(f)
		if err != nil {
			t.Fatalf("ReadAll(): got error %v, want nil", err)
		}
		if !bytes.Equal(data, content) {
			t.Errorf("Open(%q): read %q, want %q", name, data, content)
		}
	})

	t.Run("Stat", func(t *testing.T) {
		info, err := filesystem.Stat(name)
		if err != nil {
			t.Fatalf("Stat(%q): got error %v, want nil", name, err)
		}
		if info.Size() != int64(len(content)) {
			t.Errorf("Stat(%q).Size(): got %d, want %d", name, info.Size(), len(content))
		}
		if info.IsDir() {
			t.Errorf("Stat(%q).IsDir(): got true, want false", name)
		}

		info, err = filesystem.Stat(dir)
		if err != nil {
			t.Fatalf("Stat(%q): got error %v, want nil", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("Stat(%q).IsDir(): got false, want true", dir)
		}
	})

	t.Run("ReadFile", func(t *testing.T) {
		data, err := filesystem.ReadFile(name)
		if err != nil {
			t.Fatalf("ReadFile(%q): got error %v, want nil", name, err)
		}
		if !bytes.Equal(data, content) {
			t.Errorf("ReadFile(%q): got %q, want %q", name, data, content)
		}
	})

	t.Run("NotExist", func(t *testing.T) {
		missing := config.path("testdir/missing.txt")
		if _, err := filesystem.Open(missing); !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("Open(%q): got error %v, want fs.ErrNotExist", missing, err)
		}
		if _, err := filesystem.Stat(missing); !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("Stat(%q): got error %v, want fs.ErrNotExist", missing, err)
		}
	})
}
