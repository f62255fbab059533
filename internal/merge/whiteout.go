package merge

import (
	"path"
	"strings"
)

const (
	whiteoutPrefix     = ".wh."
	whiteoutMetaPrefix = whiteoutPrefix + whiteoutPrefix
	whiteoutOpaqueDir  = whiteoutMetaPrefix + ".opq"
)

// whiteoutMarker reports whether p is a whiteout or opaque marker and
// returns the path it hides.
func whiteoutMarker(p string) (marker, bool) {
	dir, base := path.Split(p)
	dir = strings.TrimSuffix(dir, "/")

	switch {
	case base == whiteoutOpaqueDir:
		return marker{path: dir, opaque: true}, true
	case strings.HasPrefix(base, whiteoutMetaPrefix):
		return marker{}, false
	case strings.HasPrefix(base, whiteoutPrefix):
		name := strings.TrimPrefix(base, whiteoutPrefix)
		if name == "" || name == "." || name == ".." {
			return marker{}, false
		}
		return marker{path: path.Join(dir, name)}, true
	}
	return marker{}, false
}

// isWhiteoutMeta reports AUFS metadata such as .wh..wh.plnk and anything
// beneath it. These are never part of the filesystem.
func isWhiteoutMeta(p string) bool {
	for _, c := range strings.Split(p, "/") {
		if strings.HasPrefix(c, whiteoutMetaPrefix) {
			return true
		}
	}
	return false
}
