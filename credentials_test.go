package imgex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"oras.land/oras-go/v2/registry/remote/auth"

	"github.com/jmgilman/go/imgex/errors"
)

func TestParseCredentials(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Credential
		wantErr bool
	}{
		{name: "empty", payload: "", want: Credential{}},
		{name: "whitespace", payload: " \n\t", want: Credential{}},
		{name: "null", payload: "null", want: Credential{}},
		{name: "empty object", payload: "{}", want: Credential{}},
		{
			name:    "basic",
			payload: `{"username":"u","password":"p"}`,
			want:    Credential{Kind: CredentialBasic, Username: "u", Password: "p"},
		},
		{
			name:    "basic scoped",
			payload: `{"username":"u","password":"p","registry":"ghcr.io"}`,
			want:    Credential{Kind: CredentialBasic, Username: "u", Password: "p", Registry: "ghcr.io"},
		},
		{
			name:    "bearer",
			payload: `{"token":"t"}`,
			want:    Credential{Kind: CredentialBearer, Token: "t"},
		},
		{
			name:    "bearer with refresh token",
			payload: `{"token":"t","refresh_token":"r"}`,
			want:    Credential{Kind: CredentialBearer, Token: "t", RefreshToken: "r"},
		},
		{
			name:    "refresh token only",
			payload: `{"refresh_token":"r"}`,
			want:    Credential{Kind: CredentialBearer, RefreshToken: "r"},
		},
		{name: "invalid json", payload: `{"username":`, wantErr: true},
		{name: "array", payload: `["u","p"]`, wantErr: true},
		{name: "unknown key", payload: `{"user":"u","password":"p"}`, wantErr: true},
		{name: "wrong type", payload: `{"username":1,"password":"p"}`, wantErr: true},
		{name: "username without password", payload: `{"username":"u"}`, wantErr: true},
		{name: "password without username", payload: `{"password":"p"}`, wantErr: true},
		{name: "mixed", payload: `{"username":"u","password":"p","token":"t"}`, wantErr: true},
		{name: "trailing data", payload: `{"token":"t"} {}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCredentials([]byte(tt.payload))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.HasCode(err, errors.CodeInvalidCredentialFormat))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCredential_String(t *testing.T) {
	assert.Equal(t, "none", Credential{}.String())
	assert.Equal(t, "basic(user:***)", BasicCredential("user", "secret").String())
	assert.NotContains(t, BearerCredential("secret").String(), "secret")
}

func TestCredential_CredentialFunc(t *testing.T) {
	ctx := context.Background()

	t.Run("none without defaults is anonymous", func(t *testing.T) {
		assert.Nil(t, Credential{}.credentialFunc(false))
	})

	t.Run("basic", func(t *testing.T) {
		fn := BasicCredential("u", "p").credentialFunc(false)
		got, err := fn(ctx, "registry.example.com")
		require.NoError(t, err)
		assert.Equal(t, auth.Credential{Username: "u", Password: "p"}, got)
	})

	t.Run("bearer", func(t *testing.T) {
		cred := Credential{Kind: CredentialBearer, Token: "t", RefreshToken: "r"}
		got, err := cred.credentialFunc(false)(ctx, "registry.example.com")
		require.NoError(t, err)
		assert.Equal(t, auth.Credential{AccessToken: "t", RefreshToken: "r"}, got)
	})

	t.Run("scoped", func(t *testing.T) {
		cred := BasicCredential("u", "p")
		cred.Registry = "ghcr.io"
		fn := cred.credentialFunc(false)

		got, err := fn(ctx, "ghcr.io")
		require.NoError(t, err)
		assert.Equal(t, "u", got.Username)

		got, err = fn(ctx, "quay.io")
		require.NoError(t, err)
		assert.Equal(t, auth.EmptyCredential, got)
	})
}
