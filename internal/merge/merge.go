package merge

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/containerd/stargz-snapshotter/estargz"
	"github.com/opencontainers/go-digest"

	"github.com/jmgilman/go/imgex/errors"
	"github.com/jmgilman/go/imgex/internal/validate"
)

// Layer is an uncompressed layer tar addressable by offset.
type Layer struct {
	Content     io.ReaderAt
	Size        int64
	Digest      digest.Digest
	Annotations map[string]string
}

// LayerFunc returns layer i. Merge calls it for i = 0 .. n-1 in order and
// may block on each call until the layer is available.
type LayerFunc func(ctx context.Context, i int) (Layer, error)

// Stasher keeps content that cannot be read in place, such as expanded
// sparse files.
type Stasher interface {
	Stash(r io.Reader) (*io.SectionReader, error)
}

// Options configures Merge.
type Options struct {
	// Logger receives skipped-entry diagnostics.
	Logger *slog.Logger
	// Stash holds sparse file content. Nil keeps it in memory.
	Stash Stasher
	// OnLayer is called after layer i has been applied.
	OnLayer func(i int)
}

type pending struct {
	entry      *Entry
	linkTarget string
}

type marker struct {
	path   string
	opaque bool
}

type merger struct {
	opts    Options
	logger  *slog.Logger
	overlay *overlay
}

// Merge applies n layers bottom to top and returns the surviving entries in
// ascending path order.
//
// Within a layer, whiteouts and opaque markers only affect lower layers, so
// a layer may both hide a path and recreate it. Hardlinks resolve against
// the state at the time they are read.
func Merge(ctx context.Context, n int, layers LayerFunc, opts Options) (*Tree, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	m := &merger{opts: opts, logger: opts.Logger, overlay: newOverlay()}

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.CodeCancelled, "merge cancelled")
		}

		layer, err := layers(ctx, i)
		if err != nil {
			return nil, err
		}

		entries, markers, err := m.read(i, layer)
		if err != nil {
			return nil, errors.WithContext(err, "digest", layer.Digest.String())
		}
		m.apply(entries, markers)

		m.logger.Debug("merged layer", "index", i, "digest", layer.Digest, "entries", len(entries))
		if opts.OnLayer != nil {
			opts.OnLayer(i)
		}
	}

	return m.tree(), nil
}

// read scans a layer's headers. Content is not read; entries reference it
// by offset.
func (m *merger) read(index int, layer Layer) ([]pending, []marker, error) {
	sr := io.NewSectionReader(layer.Content, 0, layer.Size)
	tr := tar.NewReader(sr)
	stargz := layer.Annotations[estargz.TOCJSONDigestAnnotation] != ""

	var (
		entries []pending
		markers []marker
	)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return entries, markers, nil
		}
		// Insecure names still come with a usable header; EntryPath decides.
		if err != nil && !errors.Is(err, tar.ErrInsecurePath) {
			return nil, nil, errors.Wrapf(err, errors.CodeInternal, "malformed tar in layer %d", index)
		}

		p, err := validate.EntryPath(hdr.Name)
		if err != nil {
			m.logger.Warn("skipping unsafe entry", "layer", index, "name", hdr.Name, "error", err)
			continue
		}
		if p == "" {
			continue
		}
		if stargz && isStargzMetadata(p) {
			continue
		}

		if mk, ok := whiteoutMarker(p); ok {
			markers = append(markers, mk)
			continue
		}
		if isWhiteoutMeta(p) {
			continue
		}

		e, ok := m.entry(index, p, hdr)
		if !ok {
			continue
		}

		var linkTarget string
		if e.Kind == Hardlink {
			linkTarget, err = validate.LinkTarget(hdr.Linkname)
			if err != nil {
				m.logger.Warn("skipping hardlink with unsafe target", "layer", index, "name", p, "error", err)
				continue
			}
			e.Linkname = linkTarget
		}

		if e.Kind == Regular {
			if err := m.locate(e, hdr, tr, sr, layer); err != nil {
				return nil, nil, err
			}
		}
		entries = append(entries, pending{entry: e, linkTarget: linkTarget})
	}
}

func (m *merger) entry(index int, p string, hdr *tar.Header) (*Entry, bool) {
	e := &Entry{
		Path:       p,
		Mode:       hdr.Mode,
		UID:        hdr.Uid,
		GID:        hdr.Gid,
		Uname:      hdr.Uname,
		Gname:      hdr.Gname,
		ModTime:    hdr.ModTime,
		Linkname:   hdr.Linkname,
		Devmajor:   hdr.Devmajor,
		Devminor:   hdr.Devminor,
		PAXRecords: cleanPAX(hdr.PAXRecords),
		Layer:      index,
	}

	switch hdr.Typeflag {
	case tar.TypeReg, tar.TypeGNUSparse:
		e.Kind = Regular
		e.Size = hdr.Size
	case tar.TypeDir:
		e.Kind = Directory
	case tar.TypeSymlink:
		e.Kind = Symlink
	case tar.TypeLink:
		e.Kind = Hardlink
	case tar.TypeChar:
		e.Kind = CharDevice
	case tar.TypeBlock:
		e.Kind = BlockDevice
	case tar.TypeFifo:
		e.Kind = FIFO
	default:
		m.logger.Debug("skipping unsupported entry type", "layer", index, "name", p, "type", string(hdr.Typeflag))
		return nil, false
	}
	if e.Kind != Symlink && e.Kind != Hardlink {
		e.Linkname = ""
	}
	return e, true
}

// locate records where a regular file's content lives. Sparse files are
// expanded into the stash since their archived bytes are not contiguous.
func (m *merger) locate(e *Entry, hdr *tar.Header, tr *tar.Reader, sr *io.SectionReader, layer Layer) error {
	if !isSparse(hdr) {
		off, err := sr.Seek(0, io.SeekCurrent)
		if err != nil {
			return errors.Wrap(err, errors.CodeInternal, "failed to locate entry content")
		}
		if off+e.Size > layer.Size {
			return errors.Newf(errors.CodeInternal, "entry %s extends past the end of the layer", e.Path)
		}
		e.content, e.offset = layer.Content, off
		return nil
	}

	if m.opts.Stash == nil {
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, tr); err != nil {
			return errors.Wrapf(err, errors.CodeInternal, "failed to read sparse entry %s", e.Path)
		}
		e.content, e.offset = bytes.NewReader(buf.Bytes()), 0
		return nil
	}

	section, err := m.opts.Stash.Stash(tr)
	if err != nil {
		return err
	}
	e.content, e.offset = section, 0
	return nil
}

// apply updates the overlay with one layer: markers first, then entries in
// archive order.
func (m *merger) apply(entries []pending, markers []marker) {
	for _, mk := range markers {
		if mk.opaque {
			m.overlay.clear(mk.path)
		} else {
			m.overlay.remove(mk.path)
		}
	}

	for _, p := range entries {
		if p.entry.Kind != Hardlink {
			m.overlay.put(p.entry, nil)
			continue
		}

		target := m.resolveLink(p)
		if target == nil {
			continue
		}
		m.overlay.put(p.entry, target)
	}
}

func (m *merger) resolveLink(p pending) *Entry {
	if p.linkTarget == p.entry.Path {
		m.logger.Debug("dropping self-referencing hardlink", "name", p.entry.Path)
		return nil
	}

	n := m.overlay.lookup(p.linkTarget)
	switch {
	case n == nil:
		m.logger.Debug("dropping hardlink to missing target", "name", p.entry.Path, "target", p.linkTarget)
		return nil
	case n.isDir():
		m.logger.Debug("dropping hardlink to directory", "name", p.entry.Path, "target", p.linkTarget)
		return nil
	case n.link != nil:
		return n.link
	default:
		return n.entry
	}
}

func isSparse(hdr *tar.Header) bool {
	if hdr.Typeflag == tar.TypeGNUSparse {
		return true
	}
	for k := range hdr.PAXRecords {
		if strings.HasPrefix(k, "GNU.sparse.") {
			return true
		}
	}
	return false
}

// derivedPAXKeys are regenerated from header fields on write.
var derivedPAXKeys = map[string]bool{
	"path": true, "linkpath": true, "size": true,
	"uid": true, "gid": true, "uname": true, "gname": true,
	"mtime": true, "atime": true, "ctime": true,
}

func cleanPAX(records map[string]string) map[string]string {
	var out map[string]string
	for k, v := range records {
		if derivedPAXKeys[k] || strings.HasPrefix(k, "GNU.sparse.") {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[k] = v
	}
	return out
}

func isStargzMetadata(p string) bool {
	switch p {
	case estargz.TOCTarName, estargz.PrefetchLandmark, estargz.NoPrefetchLandmark:
		return true
	}
	return false
}
