package registry

import (
	"runtime"

	"github.com/containerd/platforms"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/jmgilman/go/imgex/errors"
)

// DefaultPlatform returns linux on the host architecture. Image filesystems
// are exported for Linux even when the exporter runs elsewhere.
func DefaultPlatform() ocispec.Platform {
	p := platforms.DefaultSpec()
	if p.OS != "linux" || p.Architecture != runtime.GOARCH {
		p = ocispec.Platform{OS: "linux", Architecture: runtime.GOARCH}
	}
	return platforms.Normalize(p)
}

// ParsePlatform parses "os/arch[/variant]".
func ParsePlatform(s string) (ocispec.Platform, error) {
	p, err := platforms.Parse(s)
	if err != nil {
		return ocispec.Platform{}, errors.Wrapf(err, errors.CodeInvalidConfig, "invalid platform %q", s)
	}
	return platforms.Normalize(p), nil
}

// selectManifest returns the first index entry matching target.
// Entries without a platform, such as attestation manifests, never match.
func selectManifest(index ocispec.Index, target ocispec.Platform) (ocispec.Descriptor, error) {
	matcher := platforms.NewMatcher(target)
	available := make([]string, 0, len(index.Manifests))

	for _, desc := range index.Manifests {
		if desc.Platform == nil {
			continue
		}
		if matcher.Match(*desc.Platform) {
			return desc, nil
		}
		available = append(available, platforms.Format(*desc.Platform))
	}

	err := errors.Newf(errors.CodeNoMatchingPlatform,
		"no manifest for platform %s", platforms.Format(target))
	return ocispec.Descriptor{}, errors.WithContext(err, "available", available)
}
