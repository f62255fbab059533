// Package validate normalizes and validates paths read from layer archives.
package validate

import (
	"fmt"
	"path"
	"strings"
)

// ErrUnsafePath is wrapped by errors for entry names that cannot be placed
// inside the exported root.
var ErrUnsafePath = fmt.Errorf("unsafe path")

// EntryPath converts a tar entry name into its canonical form: slash
// separated, relative to the image root, no leading "/" or "./", no
// trailing "/", and no "." or ".." segments.
//
// The root itself normalizes to "". Names that escape the root or contain
// NUL bytes are rejected with an error wrapping ErrUnsafePath.
func EntryPath(name string) (string, error) {
	if strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: NUL byte in %q", ErrUnsafePath, name)
	}

	// Absolute names clamp at the root like a chrooted lookup. Relative
	// names are resolved lexically so escapes stay visible.
	var cleaned string
	if strings.HasPrefix(name, "/") {
		cleaned = strings.TrimPrefix(path.Clean(name), "/")
		if cleaned == "" {
			cleaned = "."
		}
	} else {
		cleaned = path.Clean(name)
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q escapes the root", ErrUnsafePath, name)
	}
	if cleaned == "." {
		return "", nil
	}
	return cleaned, nil
}

// LinkTarget normalizes a hardlink target. Hardlink targets name other
// entries of the archive, so they follow EntryPath rules; the root is not a
// valid target.
func LinkTarget(name string) (string, error) {
	p, err := EntryPath(name)
	if err != nil {
		return "", err
	}
	if p == "" {
		return "", fmt.Errorf("%w: hardlink to the root", ErrUnsafePath)
	}
	return p, nil
}

// Parent returns the parent of a normalized path, or "" for top-level entries.
func Parent(p string) string {
	dir := path.Dir(p)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// IsWithin reports whether p equals dir or lies beneath it. An empty dir is
// the root and contains everything.
func IsWithin(p, dir string) bool {
	if dir == "" {
		return true
	}
	return p == dir || strings.HasPrefix(p, dir+"/")
}
