package archive

import (
	"archive/tar"
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmgilman/go/imgex/errors"
	"github.com/jmgilman/go/imgex/internal/merge"
	"github.com/jmgilman/go/imgex/internal/testutil"
)

type readEntry struct {
	hdr  *tar.Header
	body string
}

func buildTree(t *testing.T, layers ...*testutil.Layer) *merge.Tree {
	t.Helper()
	fn := func(_ context.Context, i int) (merge.Layer, error) {
		raw := layers[i].Tar()
		return merge.Layer{Content: bytes.NewReader(raw), Size: int64(len(raw))}, nil
	}
	tree, err := merge.Merge(context.Background(), len(layers), fn, merge.Options{})
	require.NoError(t, err)
	return tree
}

func readArchive(t *testing.T, r io.Reader) []readEntry {
	t.Helper()
	var out []readEntry
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		body, err := io.ReadAll(tr)
		require.NoError(t, err)
		out = append(out, readEntry{hdr: hdr, body: string(body)})
	}
}

func sampleTree(t *testing.T) *merge.Tree {
	return buildTree(t,
		testutil.NewLayer().
			Dir("etc").
			File("etc/hostname", "box").
			File("bin/busybox", "elf").
			Hardlink("bin/sh", "bin/busybox").
			Symlink("bin/ls", "busybox"),
		testutil.NewLayer().
			File("etc/hostname", "replaced").
			Entry(tar.Header{Name: "dev/null", Typeflag: tar.TypeChar, Mode: 0o666, Devmajor: 1, Devminor: 3}, nil),
	)
}

func TestWrite_Tar(t *testing.T) {
	w, err := New(Options{})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := w.Write(context.Background(), sampleTree(t), &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	entries := readArchive(t, &buf)
	var names []string
	for _, e := range entries {
		names = append(names, e.hdr.Name)
	}
	assert.Equal(t, []string{"bin/", "bin/busybox", "bin/ls", "bin/sh", "dev/", "dev/null", "etc/", "etc/hostname"}, names)

	byName := make(map[string]readEntry)
	for _, e := range entries {
		byName[e.hdr.Name] = e
	}
	assert.Equal(t, "elf", byName["bin/busybox"].body)
	assert.Equal(t, byte(tar.TypeLink), byName["bin/sh"].hdr.Typeflag)
	assert.Equal(t, "bin/busybox", byName["bin/sh"].hdr.Linkname)
	assert.Equal(t, byte(tar.TypeSymlink), byName["bin/ls"].hdr.Typeflag)
	assert.Equal(t, "replaced", byName["etc/hostname"].body)
	assert.Equal(t, int64(1), byName["dev/null"].hdr.Devmajor)
	assert.Equal(t, int64(3), byName["dev/null"].hdr.Devminor)
	assert.True(t, byName["etc/hostname"].hdr.AccessTime.IsZero())
	assert.True(t, byName["etc/hostname"].hdr.ChangeTime.IsZero())
}

func TestWrite_Gzip(t *testing.T) {
	w, err := New(Options{Compress: true, CompressionLevel: gzip.BestSpeed})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := w.Write(context.Background(), sampleTree(t), &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	assert.Equal(t, []byte{0x1f, 0x8b}, buf.Bytes()[:2])

	gr, err := gzip.NewReader(&buf)
	require.NoError(t, err)
	entries := readArchive(t, gr)
	assert.Len(t, entries, 8)
}

func TestWrite_Deterministic(t *testing.T) {
	for _, compress := range []bool{false, true} {
		w, err := New(Options{Compress: compress})
		require.NoError(t, err)

		var a, b bytes.Buffer
		_, err = w.Write(context.Background(), sampleTree(t), &a)
		require.NoError(t, err)
		_, err = w.Write(context.Background(), sampleTree(t), &b)
		require.NoError(t, err)
		assert.Equal(t, a.Bytes(), b.Bytes())
	}
}

func TestWrite_NormalizeTimestamps(t *testing.T) {
	w, err := New(Options{NormalizeTimestamps: true})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = w.Write(context.Background(), sampleTree(t), &buf)
	require.NoError(t, err)

	for _, e := range readArchive(t, &buf) {
		assert.Equal(t, int64(0), e.hdr.ModTime.Unix(), e.hdr.Name)
	}
}

func TestWrite_KeepsSourceTimestamps(t *testing.T) {
	w, err := New(Options{})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = w.Write(context.Background(), sampleTree(t), &buf)
	require.NoError(t, err)

	for _, e := range readArchive(t, &buf) {
		if e.hdr.Name == "etc/hostname" {
			assert.Equal(t, testutil.FixedTime.Unix(), e.hdr.ModTime.Unix())
		}
		if e.hdr.Name == "dev/" {
			assert.Equal(t, int64(0), e.hdr.ModTime.Unix())
		}
	}
}

type failingWriter struct {
	after int
	n     int
}

var errDiskFull = stderrors.New("no space left on device")

func (f *failingWriter) Write(p []byte) (int, error) {
	if f.n+len(p) > f.after {
		return 0, errDiskFull
	}
	f.n += len(p)
	return len(p), nil
}

func TestWrite_SinkFailure(t *testing.T) {
	for _, compress := range []bool{false, true} {
		w, err := New(Options{Compress: compress})
		require.NoError(t, err)

		_, err = w.Write(context.Background(), sampleTree(t), &failingWriter{after: 5})
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.CodeArchiveWriteFailed))
		assert.ErrorIs(t, err, errDiskFull)
	}
}

func TestWrite_Cancelled(t *testing.T) {
	w, err := New(Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	_, err = w.Write(ctx, sampleTree(t), &buf)
	assert.True(t, errors.HasCode(err, errors.CodeCancelled))
}

func TestWrite_EmptyTree(t *testing.T) {
	w, err := New(Options{})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := w.Write(context.Background(), &merge.Tree{}, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), n)
	assert.Empty(t, readArchive(t, &buf))
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(Options{Compress: true, CompressionLevel: 42})
	assert.True(t, errors.HasCode(err, errors.CodeInvalidConfig))
}

func TestDestinationPath(t *testing.T) {
	tests := []struct {
		path     string
		compress bool
		want     string
	}{
		{path: "rootfs.tar", compress: true, want: "rootfs.tar.gz"},
		{path: "rootfs.tar.gz", compress: true, want: "rootfs.tar.gz"},
		{path: "rootfs.tar", compress: false, want: "rootfs.tar"},
		{path: "rootfs.tar.gz", compress: false, want: "rootfs.tar.gz"},
		{path: "out", compress: true, want: "out.gz"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DestinationPath(tt.path, tt.compress))
	}
}
