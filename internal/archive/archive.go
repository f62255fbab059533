// Package archive writes a merged filesystem tree as a tar stream,
// optionally gzip compressed.
package archive

import (
	"archive/tar"
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/jmgilman/go/imgex/errors"
	"github.com/jmgilman/go/imgex/internal/merge"
)

// GzipSuffix is appended to compressed destinations.
const GzipSuffix = ".gz"

// Options configures a Writer.
type Options struct {
	// Compress wraps the tar stream in gzip.
	Compress bool
	// CompressionLevel is a gzip level. Zero selects the default level.
	CompressionLevel int
	// NormalizeTimestamps sets every modification time to the Unix epoch.
	NormalizeTimestamps bool
	// Logger receives per-archive diagnostics.
	Logger *slog.Logger
}

// Writer streams merged trees into archives.
type Writer struct {
	opts Options
}

// New creates a Writer.
func New(opts Options) (*Writer, error) {
	if opts.CompressionLevel == 0 {
		opts.CompressionLevel = gzip.DefaultCompression
	}
	if opts.CompressionLevel < gzip.HuffmanOnly || opts.CompressionLevel > gzip.BestCompression {
		return nil, errors.Newf(errors.CodeInvalidConfig, "invalid gzip compression level %d", opts.CompressionLevel)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Writer{opts: opts}, nil
}

// Write streams tree to dst and returns the number of bytes written to dst.
//
// Parameters:
//   - ctx: checked before each entry; cancellation leaves dst truncated
//   - tree: entries in the order they are written
//   - dst: receives the tar (or tar.gz) stream; it is not closed
//
// Failures writing to dst are reported as ArchiveWriteFailed.
func (w *Writer) Write(ctx context.Context, tree *merge.Tree, dst io.Writer) (int64, error) {
	sink := &countingWriter{w: dst}

	var (
		out io.Writer = sink
		gz  *gzip.Writer
	)
	if w.opts.Compress {
		var err error
		gz, err = gzip.NewWriterLevel(sink, w.opts.CompressionLevel)
		if err != nil {
			return 0, errors.Wrap(err, errors.CodeInvalidConfig, "failed to create gzip writer")
		}
		out = gz
	}

	tw := tar.NewWriter(out)
	for _, e := range tree.Entries {
		if err := ctx.Err(); err != nil {
			return sink.n, errors.Wrap(err, errors.CodeCancelled, "archive write cancelled")
		}
		if err := w.writeEntry(tw, e); err != nil {
			return sink.n, classify(err, e.Path)
		}
	}

	if err := tw.Close(); err != nil {
		return sink.n, classify(err, "")
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return sink.n, classify(err, "")
		}
	}

	w.opts.Logger.Debug("wrote archive", "entries", tree.Len(), "bytes", sink.n, "compressed", w.opts.Compress)
	return sink.n, nil
}

func (w *Writer) writeEntry(tw *tar.Writer, e *merge.Entry) error {
	hdr := w.header(e)
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if hdr.Typeflag != tar.TypeReg || hdr.Size == 0 {
		return nil
	}

	n, err := io.Copy(tw, sourceReader{e.Open()})
	if err != nil {
		return err
	}
	if n != hdr.Size {
		return errors.Newf(errors.CodeInternal, "entry %s: copied %d of %d bytes", e.Path, n, hdr.Size)
	}
	return nil
}

// header converts an entry into a PAX tar header. Access and change times
// are never written.
func (w *Writer) header(e *merge.Entry) *tar.Header {
	hdr := &tar.Header{
		Typeflag:   e.Kind.Typeflag(),
		Name:       e.Path,
		Linkname:   e.Linkname,
		Mode:       e.Mode,
		Uid:        e.UID,
		Gid:        e.GID,
		Uname:      e.Uname,
		Gname:      e.Gname,
		ModTime:    e.ModTime,
		Devmajor:   e.Devmajor,
		Devminor:   e.Devminor,
		PAXRecords: e.PAXRecords,
		Format:     tar.FormatPAX,
	}

	switch e.Kind {
	case merge.Regular:
		hdr.Size = e.Size
	case merge.Directory:
		hdr.Name = strings.TrimSuffix(e.Path, "/") + "/"
	}
	if e.Kind != merge.CharDevice && e.Kind != merge.BlockDevice {
		hdr.Devmajor, hdr.Devminor = 0, 0
	}
	if w.opts.NormalizeTimestamps || hdr.ModTime.IsZero() {
		hdr.ModTime = merge.Epoch
	}
	return hdr
}

// DestinationPath returns path with the gzip suffix appended when compress
// is set and the suffix is missing.
func DestinationPath(path string, compress bool) string {
	if compress && !strings.HasSuffix(path, GzipSuffix) {
		return path + GzipSuffix
	}
	return path
}

func classify(err error, path string) error {
	var coded errors.Error
	if errors.As(err, &coded) {
		return err
	}

	var se *sinkError
	var re *sourceError
	switch {
	case errors.As(err, &se):
		err = errors.Wrap(se.err, errors.CodeArchiveWriteFailed, "failed to write archive")
	case errors.As(err, &re):
		err = errors.Wrap(re.err, errors.CodeInternal, "failed to read spooled content")
	default:
		err = errors.Wrap(err, errors.CodeInternal, "failed to encode archive entry")
	}
	if path != "" {
		err = errors.WithContext(err, "path", path)
	}
	return err
}

type sinkError struct{ err error }

func (e *sinkError) Error() string { return e.err.Error() }
func (e *sinkError) Unwrap() error { return e.err }

type sourceError struct{ err error }

func (e *sourceError) Error() string { return e.err.Error() }
func (e *sourceError) Unwrap() error { return e.err }

// countingWriter counts bytes reaching the destination and tags its errors.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	if err != nil {
		return n, &sinkError{err: err}
	}
	return n, nil
}

type sourceReader struct{ r io.Reader }

func (s sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		return n, &sourceError{err: err}
	}
	return n, err
}
