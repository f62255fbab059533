package registry

import (
	"encoding/json"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/jmgilman/go/imgex/errors"
)

type kind int

const (
	kindManifest kind = iota
	kindIndex
)

// manifestKind decides whether body is a single manifest or an index. The
// declared media type wins; bodies served without one are sniffed.
func manifestKind(mediaType string, body []byte) (kind, error) {
	switch mediaType {
	case ocispec.MediaTypeImageManifest, MediaTypeDockerManifest:
		return kindManifest, nil
	case ocispec.MediaTypeImageIndex, MediaTypeDockerManifestList:
		return kindIndex, nil
	}

	var probe struct {
		MediaType string            `json:"mediaType"`
		Manifests []json.RawMessage `json:"manifests"`
		Layers    []json.RawMessage `json:"layers"`
		FSLayers  []json.RawMessage `json:"fsLayers"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return 0, errors.Wrap(err, errors.CodeInternal, "manifest is not valid JSON")
	}

	switch {
	case probe.MediaType == ocispec.MediaTypeImageIndex || probe.MediaType == MediaTypeDockerManifestList:
		return kindIndex, nil
	case probe.MediaType == ocispec.MediaTypeImageManifest || probe.MediaType == MediaTypeDockerManifest:
		return kindManifest, nil
	case probe.FSLayers != nil:
		return 0, errors.New(errors.CodeInternal, "schema 1 manifests are not supported")
	case probe.Manifests != nil:
		return kindIndex, nil
	case probe.Layers != nil:
		return kindManifest, nil
	}
	return 0, errors.Newf(errors.CodeInternal, "unsupported manifest media type %q", mediaType)
}
