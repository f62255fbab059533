package spool

import (
	"io"

	"github.com/jmgilman/go/imgex/errors"
	"github.com/jmgilman/go/imgex/fs/core"
)

// stash is an append-only overflow file for content that cannot be read
// in place from a layer, such as expanded sparse files.
type stash struct {
	file core.File
	ra   io.ReaderAt
	size int64
}

// Stash copies r to the spool's overflow file and returns a reader over the
// copied bytes. The reader stays valid until Close.
func (s *Spool) Stash(r io.Reader) (*io.SectionReader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stash == nil {
		f, err := s.fs.TempFile(s.dir, "imgex-stash-*")
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "failed to create stash file")
		}
		ra, ok := f.(io.ReaderAt)
		if !ok {
			_ = f.Close()
			_ = s.fs.Remove(f.Name())
			return nil, errors.New(errors.CodeInternal, "stash file does not support random access")
		}
		s.files = append(s.files, f)
		s.stash = &stash{file: f, ra: ra}
	}

	st := s.stash
	off := st.size
	n, err := io.Copy(writerOnly{st.file}, r)
	st.size += n
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to stash entry content")
	}
	return io.NewSectionReader(st.ra, off, n), nil
}
