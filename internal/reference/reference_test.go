package reference

import (
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmgilman/go/imgex/errors"
)

const testDigest = "sha256:0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Reference
	}{
		{
			name: "short docker hub name",
			in:   "alpine",
			want: Reference{Registry: "docker.io", Repository: "library/alpine", Tag: "latest"},
		},
		{
			name: "docker hub with tag",
			in:   "alpine:3.19",
			want: Reference{Registry: "docker.io", Repository: "library/alpine", Tag: "3.19"},
		},
		{
			name: "docker hub user repo",
			in:   "bitnami/redis:7",
			want: Reference{Registry: "docker.io", Repository: "bitnami/redis", Tag: "7"},
		},
		{
			name: "private registry with port",
			in:   "localhost:5000/team/app:v1",
			want: Reference{Registry: "localhost:5000", Repository: "team/app", Tag: "v1"},
		},
		{
			name: "digest only",
			in:   "ghcr.io/org/app@" + testDigest,
			want: Reference{Registry: "ghcr.io", Repository: "org/app", Digest: digest.Digest(testDigest)},
		},
		{
			name: "tag and digest",
			in:   "ghcr.io/org/app:v2@" + testDigest,
			want: Reference{Registry: "ghcr.io", Repository: "org/app", Tag: "v2", Digest: digest.Digest(testDigest)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in, PreferDigest)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "UPPER/case", "alpine:", "alpine@sha256:short", "a b"} {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in, PreferDigest)
			require.Error(t, err)
			assert.Equal(t, errors.CodeInvalidReference, errors.GetCode(err))
		})
	}
}

func TestParse_RejectAmbiguous(t *testing.T) {
	_, err := Parse("ghcr.io/org/app:v2@"+testDigest, RejectAmbiguous)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidReference))

	ref, err := Parse("ghcr.io/org/app@"+testDigest, RejectAmbiguous)
	require.NoError(t, err)
	assert.Equal(t, testDigest, ref.Target())
}

func TestReference_TargetAndString(t *testing.T) {
	ref, err := Parse("ghcr.io/org/app:v2@"+testDigest, PreferDigest)
	require.NoError(t, err)
	assert.Equal(t, testDigest, ref.Target())
	assert.Equal(t, "ghcr.io/org/app:v2@"+testDigest, ref.String())
	assert.Equal(t, "ghcr.io/org/app", ref.Name())

	ref, err = Parse("alpine", PreferDigest)
	require.NoError(t, err)
	assert.Equal(t, "latest", ref.Target())
	assert.Equal(t, "docker.io/library/alpine:latest", ref.String())
}
