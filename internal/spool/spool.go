// Package spool fetches image layers in parallel into temporary files and
// hands them out strictly bottom to top.
package spool

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"golang.org/x/sync/errgroup"

	"github.com/jmgilman/go/imgex/errors"
	"github.com/jmgilman/go/imgex/fs/core"
)

// DefaultConcurrency is the number of layers fetched at once.
const DefaultConcurrency = 3

// Fetcher streams the decompressed tar of desc into consume. It may call
// consume again after a transient failure; each call starts from scratch.
type Fetcher func(ctx context.Context, desc ocispec.Descriptor, consume func(io.Reader) error) error

// Options configures a Spool.
type Options struct {
	// Concurrency bounds parallel fetches. Zero means DefaultConcurrency.
	Concurrency int
	// FS holds the spooled layers. Required.
	FS core.TempFS
	// Dir is passed to FS.TempFile. Empty uses the provider default.
	Dir string
	// Logger receives spool diagnostics.
	Logger *slog.Logger
}

// Layer is one spooled, verified, decompressed layer tar.
type Layer struct {
	// Index is the position in the manifest, 0 being the bottom layer.
	Index int
	// Descriptor is the manifest descriptor the layer was fetched from.
	Descriptor ocispec.Descriptor

	file core.File
	ra   io.ReaderAt
	size int64
}

// ReadAt reads from the uncompressed tar.
func (l *Layer) ReadAt(p []byte, off int64) (int, error) {
	return l.ra.ReadAt(p, off)
}

// Size returns the uncompressed tar size.
func (l *Layer) Size() int64 {
	return l.size
}

// Reader returns a reader over the whole tar.
func (l *Layer) Reader() *io.SectionReader {
	return io.NewSectionReader(l.ra, 0, l.size)
}

type slot struct {
	ready chan struct{}
	layer *Layer
	err   error
}

// Spool owns the temporary files of one export job.
type Spool struct {
	fs     core.TempFS
	dir    string
	logger *slog.Logger

	slots  []*slot
	parent context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu      sync.Mutex
	files   []core.File
	stash   *stash
	failure error
}

// Start begins fetching layers in the background. Callers must Close the
// spool to release its files.
func Start(ctx context.Context, layers []ocispec.Descriptor, fetch Fetcher, opts Options) (*Spool, error) {
	if opts.FS == nil {
		return nil, errors.New(errors.CodeInvalidConfig, "spool filesystem is required")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	s := &Spool{
		fs:     opts.FS,
		dir:    opts.Dir,
		logger: opts.Logger,
		slots:  make([]*slot, len(layers)),
		parent: parent,
		cancel: cancel,
		group:  g,
	}
	for i := range s.slots {
		s.slots[i] = &slot{ready: make(chan struct{})}
	}

	// Scheduling runs on its own goroutine so Start never blocks on the limit.
	go func() {
		for i, desc := range layers {
			sl := s.slots[i]
			if err := gctx.Err(); err != nil {
				sl.err = errors.Wrap(err, errors.CodeCancelled, "layer fetch cancelled")
				close(sl.ready)
				continue
			}
			g.Go(func() error {
				defer close(sl.ready)
				sl.layer, sl.err = s.fetchLayer(gctx, i, desc, fetch)
				if sl.err != nil {
					s.fail(sl.err)
				}
				return sl.err
			})
		}
	}()

	return s, nil
}

// fetchLayer spools one layer, removing partial files left by failed attempts.
func (s *Spool) fetchLayer(ctx context.Context, i int, desc ocispec.Descriptor, fetch Fetcher) (*Layer, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeCancelled, "layer fetch cancelled")
	}

	var layer *Layer
	err := fetch(ctx, desc, func(r io.Reader) error {
		if layer != nil {
			s.discard(layer.file)
			layer = nil
		}

		f, err := s.fs.TempFile(s.dir, fmt.Sprintf("imgex-layer-%d-*.tar", i))
		if err != nil {
			return errors.Wrap(err, errors.CodeInternal, "failed to create spool file")
		}
		s.track(f)
		layer = &Layer{Index: i, Descriptor: desc, file: f}

		n, err := io.Copy(writerOnly{f}, r)
		layer.size = n
		if err != nil {
			// Write failures are ours; read failures classify upstream.
			var we *writeError
			if errors.As(err, &we) {
				return errors.Wrap(we.err, errors.CodeInternal, "failed to write spool file")
			}
			return err
		}
		return nil
	})
	if err != nil {
		if layer != nil {
			s.discard(layer.file)
		}
		return nil, err
	}
	if layer == nil {
		return nil, errors.Newf(errors.CodeInternal, "no content delivered for layer %s", desc.Digest)
	}

	ra, ok := layer.file.(io.ReaderAt)
	if !ok {
		s.discard(layer.file)
		return nil, errors.New(errors.CodeInternal, "spool file does not support random access")
	}
	layer.ra = ra

	s.logger.Debug("spooled layer", "index", i, "digest", desc.Digest, "size", layer.size)
	return layer, nil
}

// Next blocks until layer i is spooled and returns it. An error from any
// layer is reported by the Next call for that layer; errors from other
// layers cancel the remaining fetches.
func (s *Spool) Next(ctx context.Context, i int) (*Layer, error) {
	if i < 0 || i >= len(s.slots) {
		return nil, errors.Newf(errors.CodeInternal, "layer index %d out of range", i)
	}
	sl := s.slots[i]
	select {
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), errors.CodeCancelled, "waiting for layer")
	case <-sl.ready:
	}

	// A layer cancelled because a sibling failed reports the sibling's error.
	if sl.err != nil && errors.HasCode(sl.err, errors.CodeCancelled) && s.parent.Err() == nil {
		s.mu.Lock()
		failure := s.failure
		s.mu.Unlock()
		if failure != nil {
			return nil, failure
		}
	}
	return sl.layer, sl.err
}

func (s *Spool) fail(err error) {
	if errors.HasCode(err, errors.CodeCancelled) {
		return
	}
	s.mu.Lock()
	if s.failure == nil {
		s.failure = err
	}
	s.mu.Unlock()
}

// Len returns the number of layers.
func (s *Spool) Len() int {
	return len(s.slots)
}

// Close cancels outstanding fetches, waits for them, and removes every
// spool file.
func (s *Spool) Close() error {
	s.cancel()
	for _, sl := range s.slots {
		<-sl.ready
	}
	_ = s.group.Wait()

	s.mu.Lock()
	files := s.files
	s.files = nil
	s.stash = nil
	s.mu.Unlock()

	var firstErr error
	for _, f := range files {
		if err := s.remove(f); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Spool) track(f core.File) {
	s.mu.Lock()
	s.files = append(s.files, f)
	s.mu.Unlock()
}

func (s *Spool) discard(f core.File) {
	s.mu.Lock()
	for i, tracked := range s.files {
		if tracked == f {
			s.files = append(s.files[:i], s.files[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	_ = s.remove(f)
}

func (s *Spool) remove(f core.File) error {
	_ = f.Close()
	if err := s.fs.Remove(f.Name()); err != nil {
		s.logger.Warn("failed to remove spool file", "name", f.Name(), "error", err)
		return err
	}
	return nil
}

type writeError struct{ err error }

func (e *writeError) Error() string { return e.err.Error() }
func (e *writeError) Unwrap() error { return e.err }

// writerOnly tags write errors so they can be told apart from read errors
// after io.Copy. It also hides ReadFrom so io.Copy drives the loop.
type writerOnly struct{ w io.Writer }

func (w writerOnly) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	if err != nil {
		return n, &writeError{err: err}
	}
	return n, nil
}
