package registry

import (
	"crypto/tls"
	"net/http"
	"time"
)

// newTransport creates an HTTP transport with connection pooling tuned for
// registries. The transport belongs to one job.
func newTransport(opts Options) http.RoundTripper {
	if opts.Transport != nil {
		return opts.Transport
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       20,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
	}
	if opts.Insecure {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // opt-in for self-signed registries
		}
	}
	return transport
}

// usePlainHTTP reports whether host should be contacted over http.
func usePlainHTTP(host string, opts Options) bool {
	if !opts.PlainHTTP {
		return false
	}
	if len(opts.PlainHTTPRegistries) == 0 {
		return true
	}
	for _, r := range opts.PlainHTTPRegistries {
		if SameRegistry(r, host) {
			return true
		}
	}
	return false
}
