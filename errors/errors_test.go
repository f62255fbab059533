package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(CodeImageNotFound, "manifest unknown")

	require.Equal(t, CodeImageNotFound, err.Code())
	require.Equal(t, ClassificationPermanent, err.Classification())
	require.Equal(t, "manifest unknown", err.Message())
	require.Nil(t, err.Unwrap())
	require.Equal(t, "[IMAGE_NOT_FOUND] manifest unknown", err.Error())
}

func TestNewf(t *testing.T) {
	err := Newf(CodeNoMatchingPlatform, "no manifest for %s", "linux/s390x")
	require.Equal(t, "no manifest for linux/s390x", err.Message())
}

func TestDefaultClassifications(t *testing.T) {
	tests := []struct {
		code      ErrorCode
		retryable bool
	}{
		{CodeNetworkTransient, true},
		{CodeInvalidReference, false},
		{CodeInvalidCredentialFormat, false},
		{CodeAuthenticationFailed, false},
		{CodeImageNotFound, false},
		{CodeNoMatchingPlatform, false},
		{CodeDigestMismatch, false},
		{CodeArchiveWriteFailed, false},
		{CodeCancelled, false},
		{ErrorCode("SOMETHING_ELSE"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			require.Equal(t, tt.retryable, New(tt.code, "x").Classification().IsRetryable())
		})
	}
}

func TestWrap(t *testing.T) {
	cause := stderrors.New("connection reset by peer")
	err := Wrap(cause, CodeNetworkTransient, "failed to fetch blob")

	require.Equal(t, CodeNetworkTransient, err.Code())
	require.True(t, err.Classification().IsRetryable())
	require.Equal(t, cause, err.Unwrap())
	require.True(t, Is(err, cause))
	require.Equal(t, "[NETWORK_TRANSIENT] failed to fetch blob: connection reset by peer", err.Error())
}

func TestWrap_NilError(t *testing.T) {
	require.Nil(t, Wrap(nil, CodeInternal, "x"))
	require.Nil(t, Wrapf(nil, CodeInternal, "x %d", 1))
}

func TestWrap_PreservesOverrideForSameCode(t *testing.T) {
	inner := WithClassification(New(CodeNetworkTransient, "503"), ClassificationPermanent)
	wrapped := Wrap(inner, CodeNetworkTransient, "retries exhausted")
	require.False(t, wrapped.Classification().IsRetryable())
}

func TestWrap_NewCodeUsesItsDefault(t *testing.T) {
	inner := New(CodeNetworkTransient, "timeout")
	wrapped := Wrap(inner, CodeAuthenticationFailed, "token exchange failed")
	require.False(t, wrapped.Classification().IsRetryable())
	require.Equal(t, CodeAuthenticationFailed, GetCode(wrapped))
}

func TestWrapf(t *testing.T) {
	err := Wrapf(stderrors.New("short write"), CodeArchiveWriteFailed, "failed to write %s", "etc/passwd")
	require.Equal(t, "failed to write etc/passwd", err.Message())
}

func TestWithContext(t *testing.T) {
	base := New(CodeDigestMismatch, "layer digest mismatch")
	err := WithContext(base, "digest", "sha256:abc")
	err = WithContext(err, "layer", 2)

	ctx := err.Context()
	require.Equal(t, "sha256:abc", ctx["digest"])
	require.Equal(t, 2, ctx["layer"])
	require.Nil(t, base.Context(), "receiver must not be modified")

	ctx["digest"] = "mutated"
	require.Equal(t, "sha256:abc", err.Context()["digest"])
}

func TestWithContext_StandardError(t *testing.T) {
	err := WithContext(stderrors.New("boom"), "k", "v")
	require.Equal(t, CodeUnknown, err.Code())
	require.Equal(t, "v", err.Context()["k"])
	require.Nil(t, WithContext(nil, "k", "v"))
}

func TestWithClassification(t *testing.T) {
	err := WithClassification(New(CodeImageNotFound, "x"), ClassificationRetryable)
	require.True(t, IsRetryable(err))
	require.Nil(t, WithClassification(nil, ClassificationRetryable))
}

func TestGetCode(t *testing.T) {
	require.Equal(t, CodeUnknown, GetCode(nil))
	require.Equal(t, CodeUnknown, GetCode(stderrors.New("plain")))

	err := fmt.Errorf("outer: %w", New(CodeCancelled, "cancelled"))
	require.Equal(t, CodeCancelled, GetCode(err))
	require.True(t, HasCode(err, CodeCancelled))
	require.False(t, HasCode(nil, CodeUnknown))
}

func TestGetClassification(t *testing.T) {
	require.Equal(t, ClassificationPermanent, GetClassification(nil))
	require.Equal(t, ClassificationPermanent, GetClassification(stderrors.New("plain")))
	require.True(t, IsRetryable(fmt.Errorf("wrapped: %w", New(CodeNetworkTransient, "x"))))
}

func TestAs(t *testing.T) {
	var target Error
	require.True(t, As(fmt.Errorf("x: %w", New(CodeInternal, "y")), &target))
	require.Equal(t, CodeInternal, target.Code())
}

func TestToJSON(t *testing.T) {
	require.Nil(t, ToJSON(nil))

	err := WithContext(New(CodeImageNotFound, "manifest unknown"), "reference", "docker.io/library/nope:latest")
	resp := ToJSON(fmt.Errorf("get config: %w", err))

	require.Equal(t, "IMAGE_NOT_FOUND", resp.Code)
	require.Equal(t, "manifest unknown", resp.Message)
	require.Equal(t, "PERMANENT", resp.Classification)
	require.Equal(t, "docker.io/library/nope:latest", resp.Context["reference"])
}

func TestToJSON_StandardError(t *testing.T) {
	resp := ToJSON(stderrors.New("something went wrong"))
	require.Equal(t, "UNKNOWN", resp.Code)
	require.Equal(t, "something went wrong", resp.Message)
}

func TestMarshalJSON(t *testing.T) {
	err := New(CodeInvalidReference, "bad reference")
	data, mErr := json.Marshal(err)
	require.NoError(t, mErr)
	require.JSONEq(t, `{"code":"INVALID_REFERENCE","message":"bad reference","classification":"PERMANENT"}`, string(data))
}
