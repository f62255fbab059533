package imgex

import (
	"bytes"
	"encoding/json"
	"io"

	"oras.land/oras-go/v2/registry/remote/auth"

	"github.com/jmgilman/go/imgex/errors"
	"github.com/jmgilman/go/imgex/internal/registry"
)

// CredentialKind selects how a Credential authenticates.
type CredentialKind int

const (
	// CredentialNone uses stored Docker credentials when available and
	// anonymous access otherwise.
	CredentialNone CredentialKind = iota
	// CredentialBasic authenticates with a username and password.
	CredentialBasic
	// CredentialBearer presents a pre-obtained token.
	CredentialBearer
)

// String returns the kind name.
func (k CredentialKind) String() string {
	switch k {
	case CredentialBasic:
		return "basic"
	case CredentialBearer:
		return "bearer"
	default:
		return "none"
	}
}

// Credential is the authentication for a single call. The zero value is
// CredentialNone.
type Credential struct {
	Kind         CredentialKind
	Username     string
	Password     string
	Token        string
	RefreshToken string

	// Registry scopes the credential to one host. Other hosts are accessed
	// as with CredentialNone. Empty applies to every host.
	Registry string
}

// BasicCredential returns a username/password credential.
func BasicCredential(username, password string) Credential {
	return Credential{Kind: CredentialBasic, Username: username, Password: password}
}

// BearerCredential returns a token credential.
func BearerCredential(token string) Credential {
	return Credential{Kind: CredentialBearer, Token: token}
}

// String redacts secrets.
func (c Credential) String() string {
	switch c.Kind {
	case CredentialBasic:
		return "basic(" + c.Username + ":***)"
	case CredentialBearer:
		return "bearer(***)"
	default:
		return "none"
	}
}

type credentialPayload struct {
	Username     *string `json:"username"`
	Password     *string `json:"password"`
	Token        *string `json:"token"`
	RefreshToken *string `json:"refresh_token"`
	Registry     *string `json:"registry"`
}

// ParseCredentials decodes an authentication payload.
//
// Recognized shapes:
//
//	{"username": "u", "password": "p"}
//	{"token": "t"}                      // optionally with "refresh_token"
//
// Either may carry "registry" to scope it to one host. An empty payload,
// "null", or {} yields CredentialNone. Anything else fails with
// CodeInvalidCredentialFormat.
func ParseCredentials(payload []byte) (Credential, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return Credential{}, nil
	}

	var p credentialPayload
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return Credential{}, errors.Wrap(err, errors.CodeInvalidCredentialFormat, "invalid credential payload")
	}
	if _, err := dec.Token(); err != io.EOF {
		return Credential{}, errors.New(errors.CodeInvalidCredentialFormat, "unexpected data after credential payload")
	}

	cred := Credential{
		Username:     value(p.Username),
		Password:     value(p.Password),
		Token:        value(p.Token),
		RefreshToken: value(p.RefreshToken),
		Registry:     value(p.Registry),
	}

	basic := cred.Username != "" || cred.Password != ""
	bearer := cred.Token != "" || cred.RefreshToken != ""

	switch {
	case basic && bearer:
		return Credential{}, errors.New(errors.CodeInvalidCredentialFormat,
			"credential payload mixes username/password with token")
	case basic:
		if cred.Username == "" || cred.Password == "" {
			return Credential{}, errors.New(errors.CodeInvalidCredentialFormat,
				"basic credentials need both username and password")
		}
		cred.Kind = CredentialBasic
	case bearer:
		cred.Kind = CredentialBearer
	}
	return cred, nil
}

func value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// credentialFunc builds the per-job credential lookup. Stored Docker
// credentials back CredentialNone and hosts outside a scoped credential
// unless useDefaults is false.
func (c Credential) credentialFunc(useDefaults bool) auth.CredentialFunc {
	var fallback auth.CredentialFunc
	if useDefaults {
		fallback = registry.DockerConfigCredential()
	}

	var cred auth.Credential
	switch c.Kind {
	case CredentialBasic:
		cred = auth.Credential{Username: c.Username, Password: c.Password}
	case CredentialBearer:
		cred = auth.Credential{AccessToken: c.Token, RefreshToken: c.RefreshToken}
	default:
		return fallback
	}
	return registry.ScopedCredential(c.Registry, cred, fallback)
}
