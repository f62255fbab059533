// Package reference parses and normalizes image references.
package reference

import (
	"strings"

	distref "github.com/distribution/reference"
	"github.com/opencontainers/go-digest"

	"github.com/jmgilman/go/imgex/errors"
)

// TagDigestPolicy decides how references carrying both a tag and a digest
// are handled.
type TagDigestPolicy int

const (
	// PreferDigest resolves by digest and keeps the tag for display only.
	PreferDigest TagDigestPolicy = iota
	// RejectAmbiguous refuses references carrying both.
	RejectAmbiguous
)

// Reference is a parsed, normalized image reference.
type Reference struct {
	// Registry is the registry host, e.g. "docker.io" or "localhost:5000".
	Registry string
	// Repository is the repository path, e.g. "library/alpine".
	Repository string
	// Tag is the tag, if any. Defaults to "latest" when Digest is empty.
	Tag string
	// Digest pins the manifest when set.
	Digest digest.Digest
}

// Parse parses s using Docker normalization rules ("alpine" becomes
// "docker.io/library/alpine:latest").
func Parse(s string, policy TagDigestPolicy) (Reference, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Reference{}, errors.New(errors.CodeInvalidReference, "image reference is empty")
	}

	named, err := distref.ParseNormalizedNamed(trimmed)
	if err != nil {
		return Reference{}, errors.WithContext(
			errors.Wrapf(err, errors.CodeInvalidReference, "invalid image reference %q", s),
			"reference", s)
	}
	named = distref.TagNameOnly(named)

	ref := Reference{
		Registry:   distref.Domain(named),
		Repository: distref.Path(named),
	}
	if tagged, ok := named.(distref.Tagged); ok {
		ref.Tag = tagged.Tag()
	}
	if digested, ok := named.(distref.Digested); ok {
		ref.Digest = digested.Digest()
	}

	if ref.Tag != "" && ref.Digest != "" && policy == RejectAmbiguous {
		return Reference{}, errors.WithContext(
			errors.Newf(errors.CodeInvalidReference, "reference %q carries both a tag and a digest", s),
			"reference", s)
	}

	return ref, nil
}

// Target returns what should be resolved: the digest when present,
// otherwise the tag.
func (r Reference) Target() string {
	if r.Digest != "" {
		return r.Digest.String()
	}
	return r.Tag
}

// Name returns registry/repository.
func (r Reference) Name() string {
	return r.Registry + "/" + r.Repository
}

// String returns the fully qualified reference.
func (r Reference) String() string {
	var b strings.Builder
	b.WriteString(r.Name())
	if r.Tag != "" {
		b.WriteString(":")
		b.WriteString(r.Tag)
	}
	if r.Digest != "" {
		b.WriteString("@")
		b.WriteString(r.Digest.String())
	}
	return b.String()
}
