package registry

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/containerd/platforms"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"

	"github.com/jmgilman/go/imgex/errors"
	"github.com/jmgilman/go/imgex/internal/reference"
)

// Docker media types accepted alongside their OCI equivalents.
const (
	MediaTypeDockerManifest     = "application/vnd.docker.distribution.manifest.v2+json"
	MediaTypeDockerManifestList = "application/vnd.docker.distribution.manifest.list.v2+json"
)

// maxIndexDepth bounds nested index traversal.
const maxIndexDepth = 4

var manifestMediaTypes = []string{
	ocispec.MediaTypeImageManifest,
	ocispec.MediaTypeImageIndex,
	MediaTypeDockerManifest,
	MediaTypeDockerManifestList,
}

// Image is a resolved single-platform image manifest.
type Image struct {
	// Descriptor describes the platform-specific manifest.
	Descriptor ocispec.Descriptor
	// Index describes the index the manifest was selected from, if any.
	Index *ocispec.Descriptor
	// Manifest lists the config and layers bottom to top.
	Manifest ocispec.Manifest
}

// Client talks to the registry hosting one image reference.
type Client struct {
	ref      reference.Reference
	repo     *remote.Repository
	platform ocispec.Platform
	retry    RetryPolicy
	logger   *slog.Logger
	creds    *credentialResolver
	tokens   *tokenCache
}

// New creates a Client for ref.
func New(ref reference.Reference, opts Options) (*Client, error) {
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = DefaultOptions().Logger
	}

	platform := DefaultPlatform()
	if opts.Platform != nil {
		platform = platforms.Normalize(*opts.Platform)
	}

	repo, err := remote.NewRepository(ref.Name())
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeInvalidReference, "invalid repository %q", ref.Name())
	}

	creds := newCredentialResolver(opts.Credential)
	tokens := newTokenCache()
	authClient := &auth.Client{
		Client:     &http.Client{Transport: newTransport(opts)},
		Cache:      tokens,
		Credential: creds.Credential,
	}
	if opts.UserAgent != "" {
		authClient.SetUserAgent(opts.UserAgent)
	}

	repo.Client = authClient
	repo.PlainHTTP = usePlainHTTP(ref.Registry, opts)
	repo.ManifestMediaTypes = manifestMediaTypes

	return &Client{
		ref:      ref,
		repo:     repo,
		platform: platform,
		retry:    opts.Retry,
		logger:   opts.Logger,
		creds:    creds,
		tokens:   tokens,
	}, nil
}

// Platform returns the platform used to select manifests from indexes.
func (c *Client) Platform() ocispec.Platform {
	return c.platform
}

func (c *Client) reauthenticate() {
	c.creds.reset()
	c.tokens.reset()
}

// Resolve fetches the manifest named by the reference, narrowing
// multi-platform indexes to the client platform.
func (c *Client) Resolve(ctx context.Context) (*Image, error) {
	var (
		desc ocispec.Descriptor
		body []byte
	)
	err := c.do(ctx, "resolve", func(ctx context.Context) error {
		d, rc, err := c.repo.FetchReference(ctx, c.ref.Target())
		if err != nil {
			return err
		}
		defer func() { _ = rc.Close() }()

		b, err := content.ReadAll(rc, d)
		if err != nil {
			return err
		}
		desc, body = d, b
		return nil
	})
	if err != nil {
		return nil, err
	}

	img := &Image{}
	for depth := 0; ; depth++ {
		kind, err := manifestKind(desc.MediaType, body)
		if err != nil {
			return nil, c.wrap(err)
		}

		if kind == kindManifest {
			if err := json.Unmarshal(body, &img.Manifest); err != nil {
				return nil, c.wrap(errors.Wrap(err, errors.CodeInternal, "malformed image manifest"))
			}
			img.Descriptor = desc
			c.logger.Debug("resolved manifest",
				"reference", c.ref.String(), "digest", desc.Digest, "layers", len(img.Manifest.Layers))
			return img, nil
		}

		if depth >= maxIndexDepth {
			return nil, c.wrap(errors.New(errors.CodeInternal, "image index nesting too deep"))
		}

		var index ocispec.Index
		if err := json.Unmarshal(body, &index); err != nil {
			return nil, c.wrap(errors.Wrap(err, errors.CodeInternal, "malformed image index"))
		}
		if img.Index == nil {
			indexDesc := desc
			img.Index = &indexDesc
		}

		child, err := selectManifest(index, c.platform)
		if err != nil {
			return nil, c.wrap(err)
		}
		c.logger.Debug("selected platform manifest",
			"platform", platforms.Format(c.platform), "digest", child.Digest)

		if body, err = c.fetchManifest(ctx, child); err != nil {
			return nil, err
		}
		desc = child
	}
}

func (c *Client) fetchManifest(ctx context.Context, desc ocispec.Descriptor) ([]byte, error) {
	var body []byte
	err := c.do(ctx, "fetch manifest", func(ctx context.Context) error {
		rc, err := c.repo.Manifests().Fetch(ctx, desc)
		if err != nil {
			return err
		}
		defer func() { _ = rc.Close() }()

		body, err = content.ReadAll(rc, desc)
		return err
	})
	return body, err
}

// FetchConfig fetches and verifies the image config blob. The bytes are
// returned exactly as stored.
func (c *Client) FetchConfig(ctx context.Context, desc ocispec.Descriptor) ([]byte, error) {
	var body []byte
	err := c.do(ctx, "fetch config", func(ctx context.Context) error {
		rc, err := c.repo.Blobs().Fetch(ctx, desc)
		if err != nil {
			return err
		}
		defer func() { _ = rc.Close() }()

		body, err = content.ReadAll(rc, desc)
		return err
	})
	return body, err
}

// FetchLayer fetches a layer blob and passes the decompressed tar stream to
// consume. The compressed bytes are verified against desc once consume
// returns; a mismatch is reported as DigestMismatch even if consume
// succeeded, and the consumer must discard what it stored.
//
// consume may run more than once when a transient failure forces a retry.
// Each call must start from scratch.
func (c *Client) FetchLayer(ctx context.Context, desc ocispec.Descriptor, consume func(io.Reader) error) error {
	return c.do(ctx, "fetch layer "+shortDigest(desc.Digest), func(ctx context.Context) error {
		rc, err := c.repo.Blobs().Fetch(ctx, desc)
		if err != nil {
			return err
		}
		defer func() { _ = rc.Close() }()

		vr := content.NewVerifyReader(rc, desc)
		tarStream, compression, err := decompress(vr)
		if err == nil {
			err = consume(tarStream)
			_ = tarStream.Close()
		}
		// Corrupt content usually breaks decompression first. Verification
		// decides whether that was tampering or a transport failure.
		if verr := verify(vr); verr != nil {
			if stderrors.Is(verr, content.ErrMismatchedDigest) || stderrors.Is(verr, content.ErrTrailingData) {
				return errors.WithContext(
					errors.Wrapf(verr, errors.CodeDigestMismatch, "layer %s failed verification", desc.Digest),
					"digest", desc.Digest.String())
			}
			if err == nil {
				err = verr
			}
		}
		if err != nil {
			return err
		}

		c.logger.Debug("fetched layer", "digest", desc.Digest, "size", desc.Size, "compression", compression)
		return nil
	})
}

// verify drains vr and checks the digest.
func verify(vr *content.VerifyReader) error {
	if _, err := io.Copy(io.Discard, vr); err != nil {
		return err
	}
	return vr.Verify()
}

func (c *Client) wrap(err error) error {
	return errors.WithContext(err, "reference", c.ref.String())
}

func shortDigest(d digest.Digest) string {
	if err := d.Validate(); err != nil {
		return d.String()
	}
	enc := d.Encoded()
	if len(enc) > 12 {
		enc = enc[:12]
	}
	return fmt.Sprintf("%s:%s", d.Algorithm(), enc)
}
