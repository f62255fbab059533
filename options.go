package imgex

import (
	"log/slog"
	"net/http"
	"time"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/jmgilman/go/imgex/errors"
	"github.com/jmgilman/go/imgex/fs/core"
	"github.com/jmgilman/go/imgex/internal/reference"
	"github.com/jmgilman/go/imgex/internal/registry"
	"github.com/jmgilman/go/imgex/internal/spool"
)

// RetryPolicy bounds retries of transient registry failures.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// InitialDelay is the wait before the second attempt. It doubles per attempt.
	InitialDelay time.Duration
	// MaxDelay caps the wait between attempts.
	MaxDelay time.Duration
}

// DefaultRetryPolicy returns three attempts with 200ms initial backoff capped at 5s.
func DefaultRetryPolicy() RetryPolicy {
	p := registry.DefaultRetryPolicy()
	return RetryPolicy{MaxAttempts: p.MaxAttempts, InitialDelay: p.InitialDelay, MaxDelay: p.MaxDelay}
}

// TagDigestPolicy decides how a reference carrying both a tag and a digest
// is resolved.
type TagDigestPolicy int

const (
	// PreferDigest resolves by digest; the tag is informational.
	PreferDigest TagDigestPolicy = iota
	// RejectAmbiguous fails such references with CodeInvalidReference.
	RejectAmbiguous
)

// Options configures an Exporter.
type Options struct {
	// Logger receives structured diagnostics. Defaults to discarding.
	Logger *slog.Logger

	// Platform selects manifests from multi-platform images, as
	// "os/arch[/variant]". Empty selects linux on the host architecture.
	Platform string

	// Retry bounds retries of transient registry failures.
	Retry RetryPolicy

	// Concurrency bounds parallel layer downloads.
	Concurrency int

	// PlainHTTP talks to registries over http. PlainHTTPRegistries limits
	// it to the listed hosts.
	PlainHTTP           bool
	PlainHTTPRegistries []string

	// InsecureTLS skips certificate verification.
	InsecureTLS bool

	// Transport overrides the HTTP transport used for registry traffic.
	Transport http.RoundTripper

	// UserAgent is sent with registry requests.
	UserAgent string

	// SpoolFS holds downloaded layers while an export runs. SpoolDir is the
	// directory within it; empty uses the provider default.
	SpoolFS  core.TempFS
	SpoolDir string

	// DestinationFS receives exported archives.
	DestinationFS core.WriteFS

	// TagDigestPolicy applies to references with both a tag and a digest.
	TagDigestPolicy TagDigestPolicy

	// DefaultCredentials consults the Docker credential store for
	// CredentialNone and for hosts outside a scoped credential.
	DefaultCredentials bool

	// NormalizeTimestamps writes every archive entry with the Unix epoch as
	// its modification time.
	NormalizeTimestamps bool

	// CompressionLevel is the gzip level for compressed exports. Zero uses
	// the default level.
	CompressionLevel int
}

// Option is a functional option for configuring an Exporter.
type Option func(*Options)

// DefaultOptions returns the configuration used by New without options.
// Filesystems are left nil and default to the local disk.
func DefaultOptions() Options {
	return Options{
		Logger:             slog.New(slog.DiscardHandler),
		Retry:              DefaultRetryPolicy(),
		Concurrency:        spool.DefaultConcurrency,
		UserAgent:          "imgex/" + Version,
		DefaultCredentials: true,
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithPlatform selects the platform for multi-platform images, e.g.
// "linux/arm64/v8".
func WithPlatform(platform string) Option {
	return func(o *Options) {
		o.Platform = platform
	}
}

// WithRetryPolicy sets the retry bounds for transient failures.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(o *Options) {
		o.Retry = policy
	}
}

// WithConcurrency sets how many layers download at once.
func WithConcurrency(n int) Option {
	return func(o *Options) {
		o.Concurrency = n
	}
}

// WithPlainHTTP uses http instead of https. With no hosts it applies to
// every registry.
//
// Example usage:
//
//	exporter, err := imgex.New(imgex.WithPlainHTTP("localhost:5000"))
func WithPlainHTTP(registries ...string) Option {
	return func(o *Options) {
		o.PlainHTTP = true
		o.PlainHTTPRegistries = registries
	}
}

// WithInsecureTLS accepts self-signed or otherwise invalid certificates.
// WARNING: Only use this for testing environments.
func WithInsecureTLS() Option {
	return func(o *Options) {
		o.InsecureTLS = true
	}
}

// WithTransport sets the HTTP transport for registry traffic.
func WithTransport(transport http.RoundTripper) Option {
	return func(o *Options) {
		o.Transport = transport
	}
}

// WithUserAgent sets the User-Agent sent to registries.
func WithUserAgent(ua string) Option {
	return func(o *Options) {
		o.UserAgent = ua
	}
}

// WithSpoolFS stores downloaded layers on fsys, in dir when non-empty.
func WithSpoolFS(fsys core.TempFS, dir string) Option {
	return func(o *Options) {
		o.SpoolFS = fsys
		o.SpoolDir = dir
	}
}

// WithDestinationFS writes exported archives to fsys.
func WithDestinationFS(fsys core.WriteFS) Option {
	return func(o *Options) {
		o.DestinationFS = fsys
	}
}

// WithTagDigestPolicy sets how references with both a tag and a digest resolve.
func WithTagDigestPolicy(policy TagDigestPolicy) Option {
	return func(o *Options) {
		o.TagDigestPolicy = policy
	}
}

// WithoutDefaultCredentials never consults the Docker credential store.
func WithoutDefaultCredentials() Option {
	return func(o *Options) {
		o.DefaultCredentials = false
	}
}

// WithNormalizedTimestamps writes every archive entry with the Unix epoch as
// its modification time.
func WithNormalizedTimestamps() Option {
	return func(o *Options) {
		o.NormalizeTimestamps = true
	}
}

// WithCompressionLevel sets the gzip level for compressed exports.
func WithCompressionLevel(level int) Option {
	return func(o *Options) {
		o.CompressionLevel = level
	}
}

// validateOptions checks opts and resolves the platform.
func validateOptions(opts *Options) (*ocispec.Platform, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Concurrency <= 0 {
		return nil, errors.Newf(errors.CodeInvalidConfig, "concurrency must be positive, got %d", opts.Concurrency)
	}
	if opts.Retry.MaxAttempts <= 0 {
		return nil, errors.Newf(errors.CodeInvalidConfig, "retry attempts must be positive, got %d", opts.Retry.MaxAttempts)
	}
	if opts.Retry.InitialDelay < 0 || opts.Retry.MaxDelay < 0 {
		return nil, errors.New(errors.CodeInvalidConfig, "retry delays cannot be negative")
	}
	if opts.TagDigestPolicy != PreferDigest && opts.TagDigestPolicy != RejectAmbiguous {
		return nil, errors.Newf(errors.CodeInvalidConfig, "unknown tag/digest policy %d", opts.TagDigestPolicy)
	}

	if opts.Platform == "" {
		return nil, nil
	}
	p, err := registry.ParsePlatform(opts.Platform)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (p TagDigestPolicy) internal() reference.TagDigestPolicy {
	if p == RejectAmbiguous {
		return reference.RejectAmbiguous
	}
	return reference.PreferDigest
}

func (p RetryPolicy) internal() registry.RetryPolicy {
	return registry.RetryPolicy{MaxAttempts: p.MaxAttempts, InitialDelay: p.InitialDelay, MaxDelay: p.MaxDelay}
}
