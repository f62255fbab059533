package fstest

import (
	"bytes"
	"testing"

	"github.com/jmgilman/go/imgex/fs/core"
)

// TestWriteFS tests Create and MkdirAll.
func TestWriteFS(t *testing.T, filesystem core.FS, config Config) {
	t.Run("CreateAndWrite", func(t *testing.T) {
		name := config.path("rootfs.tar")
		create(t, filesystem, name, []byte("archive"))

		data, err := filesystem.ReadFile(name)
		if err != nil {
			t.Fatalf("ReadFile(%q): got error %v, want nil", name, err)
		}
		if string(data) != "archive" {
			t.Errorf("ReadFile(%q): got %q, want %q", name, data, "archive")
		}
	})

	t.Run("CreateTruncates", func(t *testing.T) {
		name := config.path("truncate.tar")
		create(t, filesystem, name, []byte("a much longer first version"))
		create(t, filesystem, name, []byte("short"))

		data, err := filesystem.ReadFile(name)
		if err != nil {
			t.Fatalf("ReadFile(%q): got error %v, want nil", name, err)
		}
		if !bytes.Equal(data, []byte("short")) {
			t.Errorf("ReadFile(%q) after second Create: got %q, want %q", name, data, "short")
		}
	})

	t.Run("Name", func(t *testing.T) {
		name := config.path("named.tar")
		f, err := filesystem.Create(name)
		if err != nil {
			t.Fatalf("Create(%q): got error %v, want nil", name, err)
		}
		defer func() { _ = f.Close() }()

		if f.Name() == "" {
			t.Errorf("Name(): got empty name for %q", name)
		}
	})

	t.Run("MkdirAll", func(t *testing.T) {
		dir := config.path("out/nested/deeper")
		if err := filesystem.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("MkdirAll(%q): got error %v, want nil", dir, err)
		}
		// Existing directories are not an error.
		if err := filesystem.MkdirAll(dir, 0o755); err != nil {
			t.Errorf("MkdirAll(%q) twice: got error %v, want nil", dir, err)
		}

		name := config.path("out/nested/deeper/rootfs.tar.gz")
		create(t, filesystem, name, []byte("gz"))
		if _, err := filesystem.Stat(name); err != nil {
			t.Errorf("Stat(%q): got error %v, want nil", name, err)
		}
	})

	t.Run("CreateWithoutParent", func(t *testing.T) {
		name := config.path("absent/rootfs.tar")
		f, err := filesystem.Create(name)
		if err == nil {
			_ = f.Close()
		}
		switch {
		case config.ImplicitParentDirs && err != nil:
			t.Errorf("Create(%q): got error %v, want nil", name, err)
		case !config.ImplicitParentDirs && err == nil:
			t.Errorf("Create(%q): got nil error, want failure for missing parent", name)
		}
	})
}
