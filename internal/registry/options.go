package registry

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2/registry/remote/auth"
)

// RetryPolicy bounds retries of transient failures.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// InitialDelay is the wait before the second attempt. It doubles per attempt.
	InitialDelay time.Duration
	// MaxDelay caps the wait between attempts.
	MaxDelay time.Duration
}

// DefaultRetryPolicy returns three attempts starting at 200ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}
}

// delay returns the backoff before the given attempt (2-based).
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.InitialDelay * time.Duration(1<<(attempt-2))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Options configures a Client.
type Options struct {
	// Credential resolves credentials per registry host. Nil means anonymous.
	Credential auth.CredentialFunc

	// Platform selects the manifest from multi-platform indexes.
	// Nil selects DefaultPlatform().
	Platform *ocispec.Platform

	// Retry bounds retries of transient failures.
	Retry RetryPolicy

	// PlainHTTP uses http instead of https.
	PlainHTTP bool

	// PlainHTTPRegistries limits PlainHTTP to these hosts. Empty means all.
	PlainHTTPRegistries []string

	// Insecure skips TLS certificate verification.
	Insecure bool

	// Transport overrides the HTTP transport.
	Transport http.RoundTripper

	// UserAgent is sent with every request.
	UserAgent string

	// Logger receives retry and authentication diagnostics.
	Logger *slog.Logger
}

// DefaultOptions returns anonymous access over HTTPS with the default retry policy.
func DefaultOptions() Options {
	return Options{
		Retry:  DefaultRetryPolicy(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}
