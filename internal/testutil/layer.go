// Package testutil provides registries, layer builders, and image fixtures
// for imgex tests.
package testutil

import (
	"archive/tar"
	"bytes"
	"path"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression selects how a layer blob is encoded.
type Compression int

const (
	// Gzip encodes layers with gzip (the common case).
	Gzip Compression = iota
	// Zstd encodes layers with zstd.
	Zstd
	// Uncompressed stores plain tar.
	Uncompressed
)

// FixedTime is the modification time given to every generated entry.
var FixedTime = time.Unix(1700000000, 0).UTC()

// Layer builds a layer tar in memory.
type Layer struct {
	headers  []*tar.Header
	contents [][]byte
}

// NewLayer returns an empty layer.
func NewLayer() *Layer {
	return &Layer{}
}

// Entry appends an arbitrary header and content.
func (l *Layer) Entry(hdr tar.Header, content []byte) *Layer {
	if hdr.ModTime.IsZero() {
		hdr.ModTime = FixedTime
	}
	if hdr.Typeflag == tar.TypeReg {
		hdr.Size = int64(len(content))
	}
	if hdr.Format == tar.FormatUnknown {
		hdr.Format = tar.FormatPAX
	}
	l.headers = append(l.headers, &hdr)
	l.contents = append(l.contents, content)
	return l
}

// Dir appends a directory with mode 0755.
func (l *Layer) Dir(name string) *Layer {
	return l.Entry(tar.Header{Name: name + "/", Typeflag: tar.TypeDir, Mode: 0o755}, nil)
}

// File appends a regular file with mode 0644.
func (l *Layer) File(name, content string) *Layer {
	return l.Entry(tar.Header{Name: name, Typeflag: tar.TypeReg, Mode: 0o644}, []byte(content))
}

// Symlink appends a symbolic link.
func (l *Layer) Symlink(name, target string) *Layer {
	return l.Entry(tar.Header{Name: name, Typeflag: tar.TypeSymlink, Linkname: target, Mode: 0o777}, nil)
}

// Hardlink appends a hard link to target.
func (l *Layer) Hardlink(name, target string) *Layer {
	return l.Entry(tar.Header{Name: name, Typeflag: tar.TypeLink, Linkname: target, Mode: 0o644}, nil)
}

// Whiteout appends a whiteout entry hiding name.
func (l *Layer) Whiteout(name string) *Layer {
	dir, base := path.Split(name)
	return l.Entry(tar.Header{Name: dir + ".wh." + base, Typeflag: tar.TypeReg, Mode: 0o644}, nil)
}

// Opaque appends an opaque-directory marker for dir.
func (l *Layer) Opaque(dir string) *Layer {
	return l.Entry(tar.Header{Name: path.Join(dir, ".wh..wh..opq"), Typeflag: tar.TypeReg, Mode: 0o644}, nil)
}

// Tar returns the uncompressed layer.
func (l *Layer) Tar() []byte {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for i, hdr := range l.headers {
		if err := tw.WriteHeader(hdr); err != nil {
			panic(err)
		}
		if len(l.contents[i]) > 0 {
			if _, err := tw.Write(l.contents[i]); err != nil {
				panic(err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Blob returns the layer encoded with c.
func (l *Layer) Blob(c Compression) []byte {
	raw := l.Tar()
	var buf bytes.Buffer

	switch c {
	case Gzip:
		gw := gzip.NewWriter(&buf)
		_, _ = gw.Write(raw)
		_ = gw.Close()
	case Zstd:
		zw, err := zstd.NewWriter(&buf)
		if err != nil {
			panic(err)
		}
		_, _ = zw.Write(raw)
		_ = zw.Close()
	default:
		return raw
	}
	return buf.Bytes()
}
