// Package fstest provides a conformance test suite for filesystem providers
// implementing the core capability interfaces.
//
// Providers call the suite from their own tests:
//
//	func TestMyProvider(t *testing.T) {
//	    fstest.TestSuite(t, func() core.FS {
//	        return myprovider.New()
//	    })
//	}
//
// Only the contracts the exporter relies on are covered: reading files back,
// creating destinations, and scratch files that support random access.
package fstest

import (
	"path"
	"testing"

	"github.com/jmgilman/go/imgex/fs/core"
)

// Config describes provider behavior the suite adapts to.
type Config struct {
	// Root is prepended to every path the suite uses. Providers addressing
	// the host filesystem set it to a test directory.
	Root string

	// ImplicitParentDirs indicates Create succeeds without MkdirAll, as with
	// object stores and in-memory providers.
	ImplicitParentDirs bool
}

func (c Config) path(name string) string {
	if c.Root == "" {
		return name
	}
	return path.Join(c.Root, name)
}

// TestSuite runs every conformance test against fresh filesystems from newFS.
func TestSuite(t *testing.T, newFS func() core.FS, config Config) {
	t.Run("ReadFS", func(t *testing.T) {
		TestReadFS(t, newFS(), config)
	})
	t.Run("WriteFS", func(t *testing.T) {
		TestWriteFS(t, newFS(), config)
	})
	t.Run("TempFS", func(t *testing.T) {
		TestTempFS(t, newFS(), config)
	})
}

// create writes data to name through the WriteFS contract.
func create(t *testing.T, filesystem core.WriteFS, name string, data []byte) {
	t.Helper()

	f, err := filesystem.Create(name)
	if err != nil {
		t.Fatalf("Create(%q): got error %v, want nil", name, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		t.Fatalf("Write(%q): got error %v, want nil", name, err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close(%q): got error %v, want nil", name, err)
	}
}
