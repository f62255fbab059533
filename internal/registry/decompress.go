package registry

import (
	"bufio"
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Compression identifies a layer blob encoding.
type Compression string

const (
	// Uncompressed is a plain tar stream.
	Uncompressed Compression = "none"
	// Gzip is a gzip-compressed tar stream.
	Gzip Compression = "gzip"
	// Zstd is a zstd-compressed tar stream.
	Zstd Compression = "zstd"
)

// decompress sniffs the stream's magic bytes and returns a reader yielding
// the uncompressed tar. Media types are not trusted; registries mislabel
// foreign layers often enough.
func decompress(r io.Reader) (io.ReadCloser, Compression, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4)
	if err != nil && err != io.EOF {
		return nil, "", err
	}

	switch {
	case bytes.HasPrefix(head, gzipMagic):
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, "", err
		}
		return gz, Gzip, nil
	case bytes.HasPrefix(head, zstdMagic):
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, "", err
		}
		return dec.IOReadCloser(), Zstd, nil
	default:
		return io.NopCloser(br), Uncompressed, nil
	}
}
