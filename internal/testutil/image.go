package testutil

import (
	"encoding/json"

	"github.com/opencontainers/go-digest"
	"github.com/opencontainers/image-spec/specs-go"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Docker schema 2 media types.
const (
	DockerManifest     = "application/vnd.docker.distribution.manifest.v2+json"
	DockerManifestList = "application/vnd.docker.distribution.manifest.list.v2+json"
	DockerConfig       = "application/vnd.docker.container.image.v1+json"
	DockerLayer        = "application/vnd.docker.image.rootfs.diff.tar.gzip"
)

// ImageSpec describes an image to push.
type ImageSpec struct {
	// Config is stored verbatim. Empty means DefaultConfig.
	Config []byte
	// Layers are ordered bottom to top.
	Layers []*Layer
	// Compression encodes every layer.
	Compression Compression
	// LayerAnnotations are attached to the layer descriptor of the same index.
	LayerAnnotations []map[string]string
	// Docker pushes Docker schema 2 media types instead of OCI.
	Docker bool
}

// PushedImage holds the descriptors of a pushed image.
type PushedImage struct {
	Manifest ocispec.Descriptor
	Config   ocispec.Descriptor
	Layers   []ocispec.Descriptor
}

// DefaultConfig is a minimal linux/amd64 image config.
var DefaultConfig = []byte(`{"architecture":"amd64","os":"linux","config":{"Env":["PATH=/usr/bin"],"Cmd":["/bin/sh"]},` +
	`"rootfs":{"type":"layers","diff_ids":[]}}`)

// BuiltImage is an image assembled in memory, ready to be pushed.
type BuiltImage struct {
	PushedImage
	// Body is the encoded manifest.
	Body []byte
	// Blobs holds the config and layer blobs by digest.
	Blobs map[digest.Digest][]byte
}

// BuildImage encodes spec into blobs and a manifest.
func BuildImage(spec ImageSpec) *BuiltImage {
	cfg := spec.Config
	if len(cfg) == 0 {
		cfg = DefaultConfig
	}

	manifestType, configType := ocispec.MediaTypeImageManifest, ocispec.MediaTypeImageConfig
	if spec.Docker {
		manifestType, configType = DockerManifest, DockerConfig
	}

	img := &BuiltImage{Blobs: make(map[digest.Digest][]byte)}
	img.Config = ocispec.Descriptor{
		MediaType: configType,
		Digest:    digest.FromBytes(cfg),
		Size:      int64(len(cfg)),
	}
	img.Blobs[img.Config.Digest] = cfg

	for i, layer := range spec.Layers {
		blob := layer.Blob(spec.Compression)
		desc := ocispec.Descriptor{
			MediaType: layerMediaType(spec.Compression, spec.Docker),
			Digest:    digest.FromBytes(blob),
			Size:      int64(len(blob)),
		}
		if i < len(spec.LayerAnnotations) {
			desc.Annotations = spec.LayerAnnotations[i]
		}
		img.Blobs[desc.Digest] = blob
		img.Layers = append(img.Layers, desc)
	}

	manifest := ocispec.Manifest{
		Versioned: specs.Versioned{SchemaVersion: 2},
		MediaType: manifestType,
		Config:    img.Config,
		Layers:    img.Layers,
	}
	if manifest.Layers == nil {
		manifest.Layers = []ocispec.Descriptor{}
	}
	img.Body = mustJSON(manifest)
	img.Manifest = ocispec.Descriptor{
		MediaType: manifestType,
		Digest:    digest.FromBytes(img.Body),
		Size:      int64(len(img.Body)),
	}
	return img
}

// PushImage stores spec's blobs and manifest in repo, tagged with tag when
// non-empty.
func (r *FakeRegistry) PushImage(repo, tag string, spec ImageSpec) PushedImage {
	img := BuildImage(spec)
	for _, blob := range img.Blobs {
		r.PutBlob(repo, blob)
	}
	r.PutManifest(repo, tag, img.Manifest.MediaType, img.Body)
	return img.PushedImage
}

// IndexEntry is one platform manifest of an index.
type IndexEntry struct {
	Platform *ocispec.Platform
	Manifest ocispec.Descriptor
}

// PushIndex stores an image index over entries and tags it.
func (r *FakeRegistry) PushIndex(repo, tag string, entries []IndexEntry) ocispec.Descriptor {
	index := ocispec.Index{
		Versioned: specs.Versioned{SchemaVersion: 2},
		MediaType: ocispec.MediaTypeImageIndex,
	}
	for _, e := range entries {
		d := e.Manifest
		d.Platform = e.Platform
		index.Manifests = append(index.Manifests, d)
	}
	body := mustJSON(index)

	return ocispec.Descriptor{
		MediaType: ocispec.MediaTypeImageIndex,
		Digest:    r.PutManifest(repo, tag, ocispec.MediaTypeImageIndex, body),
		Size:      int64(len(body)),
	}
}

// Platform returns a platform for os/arch.
func Platform(os, arch string) *ocispec.Platform {
	return &ocispec.Platform{OS: os, Architecture: arch}
}

// DigestOf returns the canonical digest of data.
func DigestOf(data []byte) digest.Digest {
	return digest.FromBytes(data)
}

func layerMediaType(c Compression, docker bool) string {
	if docker {
		return DockerLayer
	}
	switch c {
	case Zstd:
		return ocispec.MediaTypeImageLayerZstd
	case Uncompressed:
		return ocispec.MediaTypeImageLayer
	default:
		return ocispec.MediaTypeImageLayerGzip
	}
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
