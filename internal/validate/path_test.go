package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryPath(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "etc/passwd", "etc/passwd"},
		{"leading slash", "/etc/passwd", "etc/passwd"},
		{"leading dot slash", "./etc/passwd", "etc/passwd"},
		{"trailing slash", "usr/lib/", "usr/lib"},
		{"repeated slashes", "usr//lib///x", "usr/lib/x"},
		{"inner dot", "usr/./lib", "usr/lib"},
		{"inner dotdot", "usr/share/../lib", "usr/lib"},
		{"root dot", "./", ""},
		{"root slash", "/", ""},
		{"dotdot prefix in name", "..data/file", "..data/file"},
		{"absolute dotdot clamps", "/../etc", "etc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EntryPath(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEntryPath_Unsafe(t *testing.T) {
	for _, in := range []string{"..", "../etc/passwd", "a/../../b", "./../x", "bad\x00name"} {
		t.Run(in, func(t *testing.T) {
			_, err := EntryPath(in)
			assert.ErrorIs(t, err, ErrUnsafePath)
		})
	}
}

func TestLinkTarget(t *testing.T) {
	got, err := LinkTarget("/bin/busybox")
	require.NoError(t, err)
	assert.Equal(t, "bin/busybox", got)

	_, err = LinkTarget("./")
	assert.ErrorIs(t, err, ErrUnsafePath)
	_, err = LinkTarget("../x")
	assert.ErrorIs(t, err, ErrUnsafePath)
}

func TestParent(t *testing.T) {
	assert.Equal(t, "", Parent("etc"))
	assert.Equal(t, "etc", Parent("etc/passwd"))
	assert.Equal(t, "usr/lib", Parent("usr/lib/libc.so"))
}

func TestIsWithin(t *testing.T) {
	assert.True(t, IsWithin("etc/passwd", "etc"))
	assert.True(t, IsWithin("etc", "etc"))
	assert.True(t, IsWithin("anything", ""))
	assert.False(t, IsWithin("etcetera", "etc"))
	assert.False(t, IsWithin("et", "etc"))
}
