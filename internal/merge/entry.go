// Package merge flattens ordered image layers into a single filesystem tree
// using overlay semantics.
package merge

import (
	"archive/tar"
	"fmt"
	"io"
	"strings"
	"time"
)

// Kind is the type of a filesystem entry.
type Kind int

// Entry kinds, one per supported tar type.
const (
	Regular Kind = iota
	Directory
	Symlink
	Hardlink
	CharDevice
	BlockDevice
	FIFO
)

func (k Kind) String() string {
	switch k {
	case Regular:
		return "regular"
	case Directory:
		return "directory"
	case Symlink:
		return "symlink"
	case Hardlink:
		return "hardlink"
	case CharDevice:
		return "char"
	case BlockDevice:
		return "block"
	case FIFO:
		return "fifo"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Typeflag returns the tar type flag for k.
func (k Kind) Typeflag() byte {
	switch k {
	case Directory:
		return tar.TypeDir
	case Symlink:
		return tar.TypeSymlink
	case Hardlink:
		return tar.TypeLink
	case CharDevice:
		return tar.TypeChar
	case BlockDevice:
		return tar.TypeBlock
	case FIFO:
		return tar.TypeFifo
	default:
		return tar.TypeReg
	}
}

// Epoch is the modification time of synthesized directories.
var Epoch = time.Unix(0, 0).UTC()

// Entry is one surviving filesystem object. Content stays in the layer spool
// until the archive is written.
type Entry struct {
	// Path is slash separated and relative to the image root.
	Path     string
	Kind     Kind
	Mode     int64
	UID      int
	GID      int
	Uname    string
	Gname    string
	ModTime  time.Time
	Size     int64
	Linkname string
	Devmajor int64
	Devminor int64
	// PAXRecords carries extended attributes and other records that are not
	// derived from the fields above.
	PAXRecords map[string]string
	// Synthesized is set for parent directories no layer declared.
	Synthesized bool
	// Layer is the index of the layer that supplied the entry, or -1.
	Layer int

	content io.ReaderAt
	offset  int64
}

// Open returns a reader over the entry content. Entries without content
// yield an empty reader.
func (e *Entry) Open() io.Reader {
	if e.content == nil || e.Kind != Regular {
		return strings.NewReader("")
	}
	return io.NewSectionReader(e.content, e.offset, e.Size)
}

// clone copies e under a new path.
func (e *Entry) clone(path string) *Entry {
	c := *e
	c.Path = path
	if e.PAXRecords != nil {
		c.PAXRecords = make(map[string]string, len(e.PAXRecords))
		for k, v := range e.PAXRecords {
			c.PAXRecords[k] = v
		}
	}
	return &c
}

func synthesizedDir(path string) *Entry {
	return &Entry{
		Path:        path,
		Kind:        Directory,
		Mode:        0o755,
		ModTime:     Epoch,
		Synthesized: true,
		Layer:       -1,
	}
}

// Tree is the merged filesystem in ascending path order.
type Tree struct {
	Entries []*Entry
}

// Len returns the number of entries.
func (t *Tree) Len() int {
	return len(t.Entries)
}

// Lookup returns the entry at path, or nil.
func (t *Tree) Lookup(path string) *Entry {
	lo, hi := 0, len(t.Entries)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if t.Entries[mid].Path < path {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(t.Entries) && t.Entries[lo].Path == path {
		return t.Entries[lo]
	}
	return nil
}

// Paths returns every entry path in order.
func (t *Tree) Paths() []string {
	paths := make([]string, len(t.Entries))
	for i, e := range t.Entries {
		paths[i] = e.Path
	}
	return paths
}
