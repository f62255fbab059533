package fstest

import (
	"errors"
	"io"
	"io/fs"
	"strings"
	"testing"

	"github.com/jmgilman/go/imgex/fs/core"
)

// TestTempFS tests TempFile and Remove, including the io.ReaderAt contract
// of scratch files.
func TestTempFS(t *testing.T, filesystem core.FS, config Config) {
	t.Run("TempFile", func(t *testing.T) {
		f, err := filesystem.TempFile("", "layer-")
		if err != nil {
			t.Fatalf("TempFile(%q, %q): got error %v, want nil", "", "layer-", err)
		}
		name := f.Name()
		defer func() { _ = filesystem.Remove(name) }()

		base := name[strings.LastIndex(name, "/")+1:]
		if !strings.HasPrefix(base, "layer-") {
			t.Errorf("TempFile name %q does not start with %q", name, "layer-")
		}

		if _, err := f.Write([]byte("0123456789")); err != nil {
			t.Fatalf("Write(): got error %v, want nil", err)
		}
		if err := f.Close(); err != nil {
			t.Fatalf("Close(): got error %v, want nil", err)
		}

		data, err := filesystem.ReadFile(name)
		if err != nil {
			t.Fatalf("ReadFile(%q): got error %v, want nil", name, err)
		}
		if string(data) != "0123456789" {
			t.Errorf("ReadFile(%q): got %q, want %q", name, data, "0123456789")
		}
	})

	t.Run("ReaderAt", func(t *testing.T) {
		f, err := filesystem.TempFile("", "spool-")
		if err != nil {
			t.Fatalf("TempFile(): got error %v, want nil", err)
		}
		defer func() {
			_ = f.Close()
			_ = filesystem.Remove(f.Name())
		}()

		ra, ok := f.(io.ReaderAt)
		if !ok {
			t.Fatalf("TempFile() returned %T, which does not implement io.ReaderAt", f)
		}
		if _, err := f.Write([]byte("0123456789")); err != nil {
			t.Fatalf("Write(): got error %v, want nil", err)
		}

		buf := make([]byte, 4)
		n, err := ra.ReadAt(buf, 3)
		if err != nil {
			t.Fatalf("ReadAt(4, 3): got error %v, want nil", err)
		}
		if string(buf[:n]) != "3456" {
			t.Errorf("ReadAt(4, 3): got %q, want %q", buf[:n], "3456")
		}

		// Reading past the end reports io.EOF.
		n, err = ra.ReadAt(buf, 8)
		if n != 2 || !errors.Is(err, io.EOF) {
			t.Errorf("ReadAt(4, 8): got (%d, %v), want (2, io.EOF)", n, err)
		}
	})

	t.Run("TempFileInDir", func(t *testing.T) {
		dir := config.path("spool")
		if err := filesystem.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("MkdirAll(%q): setup failed: %v", dir, err)
		}

		f, err := filesystem.TempFile(dir, "layer-")
		if err != nil {
			t.Fatalf("TempFile(%q): got error %v, want nil", dir, err)
		}
		_ = f.Close()
		defer func() { _ = filesystem.Remove(f.Name()) }()

		if !strings.Contains(f.Name(), "/spool/layer-") {
			t.Errorf("TempFile(%q): got name %q, want it inside the directory", dir, f.Name())
		}
	})

	t.Run("UniqueNames", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 5; i++ {
			f, err := filesystem.TempFile("", "unique-")
			if err != nil {
				t.Fatalf("TempFile(): got error %v, want nil", err)
			}
			_ = f.Close()
			defer func(name string) { _ = filesystem.Remove(name) }(f.Name())

			if seen[f.Name()] {
				t.Errorf("TempFile(): name %q returned twice", f.Name())
			}
			seen[f.Name()] = true
		}
	})

	t.Run("Remove", func(t *testing.T) {
		f, err := filesystem.TempFile("", "remove-")
		if err != nil {
			t.Fatalf("TempFile(): got error %v, want nil", err)
		}
		_ = f.Close()

		if err := filesystem.Remove(f.Name()); err != nil {
			t.Fatalf("Remove(%q): got error %v, want nil", f.Name(), err)
		}
		if _, err := filesystem.Stat(f.Name()); !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("Stat(%q) after Remove: got error %v, want fs.ErrNotExist", f.Name(), err)
		}
	})
}
