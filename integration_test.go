package imgex

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmgilman/go/imgex/fs/billy"
	"github.com/jmgilman/go/imgex/internal/testutil"
)

func TestIntegration_ContainerRegistry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	reg, err := testutil.NewContainerRegistry(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close(ctx) })

	pushed, err := reg.PushImage(ctx, "imgex/layered", "v1", testutil.ImageSpec{
		Compression: testutil.Zstd,
		Layers:      layeredImage().Layers,
	})
	require.NoError(t, err)

	dest := billy.NewMemory()
	exp, err := New(
		WithPlainHTTP(reg.Host()),
		WithoutDefaultCredentials(),
		WithSpoolFS(billy.NewMemory(), ""),
		WithDestinationFS(dest),
	)
	require.NoError(t, err)
	ref := reg.Reference("imgex/layered", "v1")

	config, err := exp.GetImageConfig(ctx, ref, Credential{})
	require.NoError(t, err)
	assert.Equal(t, testutil.DefaultConfig, config)

	path, err := exp.ExportFilesystem(ctx, ref+"@"+pushed.Manifest.Digest.String(), Credential{}, "rootfs.tar")
	require.NoError(t, err)

	data, err := dest.ReadFile(path)
	require.NoError(t, err)
	names, entries := readArchive(t, data)
	assert.Contains(t, names, "var/cache/y")
	assert.NotContains(t, names, "etc/a")
	assert.Equal(t, "b2", entries["etc/b"].content)

	var buf bytes.Buffer
	_, err = exp.ExportFilesystemToWriter(ctx, ref, Credential{}, &buf, ExportOptions{})
	require.NoError(t, err)
	assert.Equal(t, data, buf.Bytes())
}
