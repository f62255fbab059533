package imgex

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/jmgilman/go/imgex/errors"
	"github.com/jmgilman/go/imgex/fs/billy"
	"github.com/jmgilman/go/imgex/fs/core"
	"github.com/jmgilman/go/imgex/internal/archive"
	"github.com/jmgilman/go/imgex/internal/merge"
	"github.com/jmgilman/go/imgex/internal/reference"
	"github.com/jmgilman/go/imgex/internal/registry"
	"github.com/jmgilman/go/imgex/internal/spool"
)

const (
	opGetConfig = "get config"
	opExport    = "export"
)

// ExportOptions configures a single export.
type ExportOptions struct {
	// Compress gzips the archive. File destinations gain a ".gz" suffix
	// unless they already end in one.
	Compress bool

	// Reporter receives one event per completed step. Nil reports nothing.
	Reporter Reporter
}

// Exporter retrieves image configs and exports image filesystems.
// It holds configuration only; every call runs as an independent job with
// its own registry session and token cache, so an Exporter is safe for
// concurrent use.
type Exporter struct {
	opts   Options
	client registry.Options
	writer archive.Options
}

// New creates an Exporter.
//
// Example usage:
//
//	exporter, err := imgex.New(
//	    imgex.WithPlatform("linux/arm64"),
//	    imgex.WithLogger(slog.Default()),
//	)
//	if err != nil {
//	    return err
//	}
func New(opts ...Option) (*Exporter, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	platform, err := validateOptions(&options)
	if err != nil {
		return nil, newError("configure", "", err)
	}

	if options.SpoolFS == nil {
		options.SpoolFS = billy.NewLocal()
	}
	if options.DestinationFS == nil {
		options.DestinationFS = billy.NewLocal()
	}

	writer := archive.Options{
		CompressionLevel:    options.CompressionLevel,
		NormalizeTimestamps: options.NormalizeTimestamps,
		Logger:              options.Logger,
	}
	if _, err := archive.New(writer); err != nil {
		return nil, newError("configure", "", err)
	}

	return &Exporter{
		opts: options,
		client: registry.Options{
			Platform:            platform,
			Retry:               options.Retry.internal(),
			PlainHTTP:           options.PlainHTTP,
			PlainHTTPRegistries: options.PlainHTTPRegistries,
			Insecure:            options.InsecureTLS,
			Transport:           options.Transport,
			UserAgent:           options.UserAgent,
			Logger:              options.Logger,
		},
		writer: writer,
	}, nil
}

// job is the state of one call.
type job struct {
	ref    reference.Reference
	client *registry.Client
	logger *slog.Logger
}

func (e *Exporter) newJob(raw string, cred Credential) (*job, error) {
	ref, err := reference.Parse(raw, e.opts.TagDigestPolicy.internal())
	if err != nil {
		return nil, err
	}

	opts := e.client
	opts.Credential = cred.credentialFunc(e.opts.DefaultCredentials)
	client, err := registry.New(ref, opts)
	if err != nil {
		return nil, err
	}

	return &job{
		ref:    ref,
		client: client,
		logger: e.opts.Logger.With("reference", ref.String()),
	}, nil
}

// GetImageConfig returns the config JSON of the image named by ref, exactly
// as stored in the registry.
func (e *Exporter) GetImageConfig(ctx context.Context, ref string, cred Credential) ([]byte, error) {
	j, err := e.newJob(ref, cred)
	if err != nil {
		return nil, newError(opGetConfig, ref, err)
	}

	img, err := j.client.Resolve(ctx)
	if err != nil {
		return nil, newError(opGetConfig, ref, err)
	}
	config, err := j.client.FetchConfig(ctx, img.Manifest.Config)
	if err != nil {
		return nil, newError(opGetConfig, ref, err)
	}

	j.logger.Debug("fetched image config", "digest", img.Manifest.Config.Digest, "size", len(config))
	return config, nil
}

// ExportFilesystem writes the flattened filesystem of ref to destination as
// an uncompressed tar and returns the path written.
func (e *Exporter) ExportFilesystem(ctx context.Context, ref string, cred Credential, destination string) (string, error) {
	return e.ExportFilesystemWithOptions(ctx, ref, cred, destination, ExportOptions{})
}

// ExportFilesystemWithOptions writes the flattened filesystem of ref to
// destination and returns the path written, which carries a ".gz" suffix
// when compressing.
//
// The destination is created only once every layer has been fetched,
// verified, and merged. A failure while writing removes it where the
// destination filesystem allows.
func (e *Exporter) ExportFilesystemWithOptions(
	ctx context.Context,
	ref string,
	cred Credential,
	destination string,
	opts ExportOptions,
) (string, error) {
	if destination == "" {
		return "", newError(opExport, ref, errors.New(errors.CodeInvalidConfig, "destination is empty"))
	}
	dest := archive.DestinationPath(destination, opts.Compress)

	var written int64
	err := e.export(ctx, ref, cred, opts, func(ctx context.Context, w *archive.Writer, tree *merge.Tree) error {
		n, err := e.writeFile(ctx, w, tree, dest)
		written = n
		return err
	})
	if err != nil {
		return "", newError(opExport, ref, err)
	}

	e.opts.Logger.Info("exported filesystem", "reference", ref, "destination", dest, "bytes", written)
	return dest, nil
}

// ExportFilesystemToWriter streams the flattened filesystem of ref to w and
// returns the number of bytes written. w is not closed.
func (e *Exporter) ExportFilesystemToWriter(
	ctx context.Context,
	ref string,
	cred Credential,
	w io.Writer,
	opts ExportOptions,
) (int64, error) {
	var written int64
	err := e.export(ctx, ref, cred, opts, func(ctx context.Context, aw *archive.Writer, tree *merge.Tree) error {
		n, err := aw.Write(ctx, tree, w)
		written = n
		return err
	})
	if err != nil {
		return written, newError(opExport, ref, err)
	}
	return written, nil
}

type writeFunc func(ctx context.Context, w *archive.Writer, tree *merge.Tree) error

// export resolves, spools, and merges the image, then hands the tree to
// write while the spooled layers are still available.
func (e *Exporter) export(ctx context.Context, raw string, cred Credential, opts ExportOptions, write writeFunc) error {
	j, err := e.newJob(raw, cred)
	if err != nil {
		return err
	}

	img, err := j.client.Resolve(ctx)
	if err != nil {
		return err
	}
	layers := img.Manifest.Layers
	p := newProgress(opts.Reporter, len(layers))
	p.step("resolved manifest " + img.Descriptor.Digest.String())

	if _, err := j.client.FetchConfig(ctx, img.Manifest.Config); err != nil {
		return err
	}
	p.step("fetched config")

	sp, err := spool.Start(ctx, layers, j.client.FetchLayer, spool.Options{
		Concurrency: e.opts.Concurrency,
		FS:          e.opts.SpoolFS,
		Dir:         e.opts.SpoolDir,
		Logger:      j.logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := sp.Close(); err != nil {
			j.logger.Warn("failed to clean up layer spool", "error", err)
		}
	}()

	tree, err := merge.Merge(ctx, len(layers), func(ctx context.Context, i int) (merge.Layer, error) {
		l, err := sp.Next(ctx, i)
		if err != nil {
			return merge.Layer{}, err
		}
		return merge.Layer{
			Content:     l,
			Size:        l.Size(),
			Digest:      l.Descriptor.Digest,
			Annotations: l.Descriptor.Annotations,
		}, nil
	}, merge.Options{
		Logger: j.logger,
		Stash:  sp,
		OnLayer: func(i int) {
			p.step(fmt.Sprintf("merged layer %d/%d", i+1, len(layers)))
		},
	})
	if err != nil {
		return err
	}
	j.logger.Debug("merged layers", "layers", len(layers), "entries", tree.Len())

	wopts := e.writer
	wopts.Compress = opts.Compress
	w, err := archive.New(wopts)
	if err != nil {
		return err
	}
	if err := write(ctx, w, tree); err != nil {
		return err
	}
	p.step("wrote archive")
	return nil
}

// writeFile writes tree to dest on the destination filesystem.
func (e *Exporter) writeFile(ctx context.Context, w *archive.Writer, tree *merge.Tree, dest string) (int64, error) {
	fsys := e.opts.DestinationFS
	if dir := path.Dir(dest); dir != "." && dir != "/" {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return 0, errors.WithContext(
				errors.Wrapf(err, errors.CodeArchiveWriteFailed, "failed to create %s", dir), "path", dir)
		}
	}

	f, err := fsys.Create(dest)
	if err != nil {
		return 0, errors.WithContext(
			errors.Wrapf(err, errors.CodeArchiveWriteFailed, "failed to create %s", dest), "path", dest)
	}

	n, err := w.Write(ctx, tree, f)
	if err != nil {
		e.discard(fsys, f, err)
		return n, err
	}
	if err := f.Close(); err != nil {
		return n, errors.WithContext(
			errors.Wrapf(err, errors.CodeArchiveWriteFailed, "failed to finish %s", dest), "path", dest)
	}
	return n, nil
}

// discard drops a partially written destination.
func (e *Exporter) discard(fsys core.WriteFS, f core.File, cause error) {
	if a, ok := f.(core.Aborter); ok {
		if err := a.Abort(cause); err != nil {
			e.opts.Logger.Warn("failed to abort destination", "path", f.Name(), "error", err)
		}
		return
	}

	_ = f.Close()
	if r, ok := fsys.(interface{ Remove(string) error }); ok {
		if err := r.Remove(f.Name()); err != nil {
			e.opts.Logger.Warn("failed to remove partial destination", "path", f.Name(), "error", err)
		}
	}
}
