package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/opencontainers/go-digest"
)

const (
	fakeService = "fake-registry"
	issuedToken = "fake-issued-token"
)

type authMode int

const (
	authNone authMode = iota
	authBasic
	authBearer
)

type storedManifest struct {
	mediaType string
	body      []byte
}

type fault struct {
	match     string
	status    int
	remaining int
}

// FakeRegistry is an in-process OCI distribution registry backed by maps.
// It serves manifests and blobs, optionally requires basic or bearer
// authentication, and can inject failures.
type FakeRegistry struct {
	server *httptest.Server

	mu        sync.Mutex
	manifests map[string]map[string]storedManifest
	blobs     map[string]map[digest.Digest][]byte
	corrupt   map[digest.Digest]bool
	faults    []*fault
	requests  []string

	mode          authMode
	username      string
	password      string
	refreshToken  string
	tokenRequests int
}

// FakeOption configures a FakeRegistry.
type FakeOption func(*FakeRegistry)

// WithBasicAuth requires HTTP basic authentication with the given pair.
func WithBasicAuth(username, password string) FakeOption {
	return func(r *FakeRegistry) {
		r.mode = authBasic
		r.username = username
		r.password = password
	}
}

// WithBearerAuth requires bearer tokens issued by the registry's /token
// endpoint in exchange for the given pair.
func WithBearerAuth(username, password string) FakeOption {
	return func(r *FakeRegistry) {
		r.mode = authBearer
		r.username = username
		r.password = password
	}
}

// WithRefreshToken additionally accepts an OAuth2 refresh-token grant for
// the given token. Only meaningful with bearer auth.
func WithRefreshToken(token string) FakeOption {
	return func(r *FakeRegistry) {
		r.refreshToken = token
	}
}

// NewFakeRegistry starts a registry that is shut down when t completes.
func NewFakeRegistry(t testing.TB, opts ...FakeOption) *FakeRegistry {
	t.Helper()

	r := &FakeRegistry{
		manifests: make(map[string]map[string]storedManifest),
		blobs:     make(map[string]map[digest.Digest][]byte),
		corrupt:   make(map[digest.Digest]bool),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.server = httptest.NewServer(http.HandlerFunc(r.serveHTTP))
	t.Cleanup(r.server.Close)
	return r
}

// Host returns the host:port of the registry.
func (r *FakeRegistry) Host() string {
	return r.server.Listener.Addr().String()
}

// URL returns the base URL of the registry.
func (r *FakeRegistry) URL() string {
	return r.server.URL
}

// Reference returns host/repo:tag for the registry.
func (r *FakeRegistry) Reference(repo, tag string) string {
	return fmt.Sprintf("%s/%s:%s", r.Host(), repo, tag)
}

// AccessToken returns a token the registry accepts directly as a bearer
// credential.
func (r *FakeRegistry) AccessToken() string {
	return issuedToken
}

// PutBlob stores data in repo and returns its digest.
func (r *FakeRegistry) PutBlob(repo string, data []byte) digest.Digest {
	dgst := digest.FromBytes(data)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.blobs[repo] == nil {
		r.blobs[repo] = make(map[digest.Digest][]byte)
	}
	r.blobs[repo][dgst] = data
	return dgst
}

// PutManifest stores a manifest under its digest and, when tag is
// non-empty, under tag.
func (r *FakeRegistry) PutManifest(repo, tag, mediaType string, body []byte) digest.Digest {
	dgst := digest.FromBytes(body)
	m := storedManifest{mediaType: mediaType, body: body}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.manifests[repo] == nil {
		r.manifests[repo] = make(map[string]storedManifest)
	}
	r.manifests[repo][dgst.String()] = m
	if tag != "" {
		r.manifests[repo][tag] = m
	}
	return dgst
}

// FailNext makes the next n requests whose path contains match fail with
// status. A status of 0 drops the connection without a response.
func (r *FakeRegistry) FailNext(match string, status, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faults = append(r.faults, &fault{match: match, status: status, remaining: n})
}

// Corrupt makes the registry serve altered bytes for the blob dgst.
func (r *FakeRegistry) Corrupt(dgst digest.Digest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.corrupt[dgst] = true
}

// Count returns how many requests had a path containing match.
func (r *FakeRegistry) Count(match string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, req := range r.requests {
		if strings.Contains(req, match) {
			n++
		}
	}
	return n
}

// TokenRequests returns how many times the token endpoint was called.
func (r *FakeRegistry) TokenRequests() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tokenRequests
}

func (r *FakeRegistry) serveHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	r.requests = append(r.requests, req.Method+" "+req.URL.Path)
	r.mu.Unlock()

	if req.URL.Path == "/token" {
		r.handleToken(w, req)
		return
	}

	if !strings.HasPrefix(req.URL.Path, "/v2/") {
		http.NotFound(w, req)
		return
	}

	if !r.authorized(req) {
		r.challenge(w, req)
		return
	}

	if r.injectFault(w, req) {
		return
	}

	if req.URL.Path == "/v2/" {
		w.WriteHeader(http.StatusOK)
		return
	}

	parts := strings.Split(strings.TrimPrefix(req.URL.Path, "/v2/"), "/")
	if len(parts) < 3 {
		sendRegistryError(w, http.StatusNotFound, "NAME_UNKNOWN", "repository name not known")
		return
	}

	repo := strings.Join(parts[:len(parts)-2], "/")
	ref := parts[len(parts)-1]

	switch parts[len(parts)-2] {
	case "manifests":
		r.handleManifest(w, req, repo, ref)
	case "blobs":
		r.handleBlob(w, req, repo, ref)
	default:
		sendRegistryError(w, http.StatusNotFound, "UNSUPPORTED", "unsupported endpoint")
	}
}

func (r *FakeRegistry) handleManifest(w http.ResponseWriter, req *http.Request, repo, ref string) {
	r.mu.Lock()
	m, ok := r.manifests[repo][ref]
	_, known := r.manifests[repo]
	r.mu.Unlock()

	if !ok {
		if !known {
			sendRegistryError(w, http.StatusNotFound, "NAME_UNKNOWN", "repository name not known")
			return
		}
		sendRegistryError(w, http.StatusNotFound, "MANIFEST_UNKNOWN", "manifest unknown")
		return
	}

	w.Header().Set("Content-Type", m.mediaType)
	w.Header().Set("Docker-Content-Digest", digest.FromBytes(m.body).String())
	w.Header().Set("Content-Length", strconv.Itoa(len(m.body)))
	if req.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	_, _ = w.Write(m.body)
}

func (r *FakeRegistry) handleBlob(w http.ResponseWriter, req *http.Request, repo, ref string) {
	dgst, err := digest.Parse(ref)
	if err != nil {
		sendRegistryError(w, http.StatusBadRequest, "DIGEST_INVALID", "invalid digest")
		return
	}

	r.mu.Lock()
	data, ok := r.blobs[repo][dgst]
	corrupt := r.corrupt[dgst]
	r.mu.Unlock()

	if !ok {
		sendRegistryError(w, http.StatusNotFound, "BLOB_UNKNOWN", "blob unknown to registry")
		return
	}

	if corrupt && len(data) > 0 {
		altered := make([]byte, len(data))
		copy(altered, data)
		altered[len(altered)-1] ^= 0xff
		data = altered
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Docker-Content-Digest", dgst.String())
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if req.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	_, _ = w.Write(data)
}

func (r *FakeRegistry) injectFault(w http.ResponseWriter, req *http.Request) bool {
	r.mu.Lock()
	var hit *fault
	for _, f := range r.faults {
		if f.remaining > 0 && strings.Contains(req.URL.Path, f.match) {
			f.remaining--
			hit = f
			break
		}
	}
	r.mu.Unlock()

	if hit == nil {
		return false
	}

	if hit.status == 0 {
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				_ = conn.Close()
				return true
			}
		}
		hit.status = http.StatusServiceUnavailable
	}

	code := "UNAVAILABLE"
	switch hit.status {
	case http.StatusNotFound:
		code = "MANIFEST_UNKNOWN"
	case http.StatusUnauthorized:
		code = "UNAUTHORIZED"
	case http.StatusForbidden:
		code = "DENIED"
	case http.StatusTooManyRequests:
		code = "TOOMANYREQUESTS"
	}
	sendRegistryError(w, hit.status, code, "injected failure")
	return true
}

func (r *FakeRegistry) authorized(req *http.Request) bool {
	header := req.Header.Get("Authorization")

	switch r.mode {
	case authBasic:
		user, pass, ok := req.BasicAuth()
		return ok && user == r.username && pass == r.password
	case authBearer:
		return header == "Bearer "+issuedToken
	default:
		return true
	}
}

func (r *FakeRegistry) challenge(w http.ResponseWriter, req *http.Request) {
	switch r.mode {
	case authBasic:
		w.Header().Set("WWW-Authenticate", `Basic realm="fake-registry"`)
	case authBearer:
		scope := ""
		parts := strings.Split(strings.TrimPrefix(req.URL.Path, "/v2/"), "/")
		if len(parts) >= 3 {
			scope = fmt.Sprintf(",scope=\"repository:%s:pull\"", strings.Join(parts[:len(parts)-2], "/"))
		}
		w.Header().Set("WWW-Authenticate",
			fmt.Sprintf(`Bearer realm="%s/token",service="%s"%s`, r.server.URL, fakeService, scope))
	}
	sendRegistryError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
}

// handleToken implements both the distribution token GET flow (basic auth)
// and the OAuth2 POST flow (password and refresh_token grants).
func (r *FakeRegistry) handleToken(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	r.tokenRequests++
	r.mu.Unlock()

	ok := false
	switch req.Method {
	case http.MethodGet:
		user, pass, has := req.BasicAuth()
		ok = has && user == r.username && pass == r.password
	case http.MethodPost:
		if err := req.ParseForm(); err == nil {
			switch req.PostForm.Get("grant_type") {
			case "password":
				ok = req.PostForm.Get("username") == r.username &&
					req.PostForm.Get("password") == r.password
			case "refresh_token":
				ok = r.refreshToken != "" && req.PostForm.Get("refresh_token") == r.refreshToken
			}
		}
	}

	if !ok {
		sendRegistryError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"token":        issuedToken,
		"access_token": issuedToken,
		"expires_in":   300,
	})
}

func sendRegistryError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"errors": []map[string]string{{"code": code, "message": message}},
	})
}

