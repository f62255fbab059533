package spool

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"testing/iotest"
	"time"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmgilman/go/imgex/errors"
	"github.com/jmgilman/go/imgex/fs/billy"
)

func descriptors(n int) []ocispec.Descriptor {
	descs := make([]ocispec.Descriptor, n)
	for i := range descs {
		descs[i] = ocispec.Descriptor{Digest: digest.FromString(fmt.Sprint(i))}
	}
	return descs
}

func contentOf(desc ocispec.Descriptor) string {
	return "layer " + desc.Digest.Encoded()[:8]
}

func readAll(t *testing.T, l *Layer) string {
	t.Helper()
	b, err := io.ReadAll(l.Reader())
	require.NoError(t, err)
	return string(b)
}

func spoolFiles(t *testing.T, mfs *billy.MemoryFS) int {
	t.Helper()
	entries, err := mfs.Unwrap().ReadDir("/tmp")
	if err != nil {
		return 0
	}
	return len(entries)
}

func TestSpool_DeliversInOrder(t *testing.T) {
	mfs := billy.NewMemory()
	descs := descriptors(4)

	// Layer 0 finishes last.
	fetch := func(ctx context.Context, desc ocispec.Descriptor, consume func(io.Reader) error) error {
		if desc.Digest == descs[0].Digest {
			time.Sleep(30 * time.Millisecond)
		}
		return consume(strings.NewReader(contentOf(desc)))
	}

	s, err := Start(context.Background(), descs, fetch, Options{FS: mfs, Concurrency: 4})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 4, s.Len())
	for i := range descs {
		l, err := s.Next(context.Background(), i)
		require.NoError(t, err)
		assert.Equal(t, i, l.Index)
		assert.Equal(t, descs[i].Digest, l.Descriptor.Digest)
		assert.Equal(t, contentOf(descs[i]), readAll(t, l))
		assert.Equal(t, int64(len(contentOf(descs[i]))), l.Size())
	}
}

func TestSpool_BoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	fetch := func(ctx context.Context, desc ocispec.Descriptor, consume func(io.Reader) error) error {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return consume(strings.NewReader("x"))
	}

	s, err := Start(context.Background(), descriptors(10), fetch, Options{FS: billy.NewMemory(), Concurrency: 2})
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 10; i++ {
		_, err := s.Next(context.Background(), i)
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestSpool_RetriedConsumeKeepsOnlyLastAttempt(t *testing.T) {
	mfs := billy.NewMemory()
	fetch := func(ctx context.Context, desc ocispec.Descriptor, consume func(io.Reader) error) error {
		partial := io.MultiReader(strings.NewReader("garbage"), iotest.ErrReader(io.ErrUnexpectedEOF))
		if err := consume(partial); err == nil {
			return fmt.Errorf("expected read failure")
		}
		return consume(strings.NewReader("good content"))
	}

	s, err := Start(context.Background(), descriptors(1), fetch, Options{FS: mfs})
	require.NoError(t, err)

	l, err := s.Next(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "good content", readAll(t, l))
	assert.Equal(t, 1, spoolFiles(t, mfs))

	require.NoError(t, s.Close())
	assert.Equal(t, 0, spoolFiles(t, mfs))
}

func TestSpool_ReadErrorsStayUncoded(t *testing.T) {
	var seen error
	fetch := func(ctx context.Context, desc ocispec.Descriptor, consume func(io.Reader) error) error {
		seen = consume(iotest.ErrReader(io.ErrUnexpectedEOF))
		return seen
	}

	s, err := Start(context.Background(), descriptors(1), fetch, Options{FS: billy.NewMemory()})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Next(context.Background(), 0)
	require.Error(t, err)
	assert.ErrorIs(t, seen, io.ErrUnexpectedEOF)
	assert.Equal(t, errors.CodeUnknown, errors.GetCode(seen))
}

func TestSpool_FailureReportedAtFailingLayer(t *testing.T) {
	descs := descriptors(3)
	mismatch := errors.New(errors.CodeDigestMismatch, "layer failed verification")

	fetch := func(ctx context.Context, desc ocispec.Descriptor, consume func(io.Reader) error) error {
		switch desc.Digest {
		case descs[1].Digest:
			return mismatch
		case descs[0].Digest:
			<-ctx.Done()
			return errors.Wrap(ctx.Err(), errors.CodeCancelled, "cancelled")
		}
		return consume(strings.NewReader("ok"))
	}

	s, err := Start(context.Background(), descs, fetch, Options{FS: billy.NewMemory(), Concurrency: 3})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Next(context.Background(), 0)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeDigestMismatch))
}

func TestSpool_NextHonoursContext(t *testing.T) {
	block := make(chan struct{})
	fetch := func(ctx context.Context, desc ocispec.Descriptor, consume func(io.Reader) error) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return ctx.Err()
	}

	s, err := Start(context.Background(), descriptors(1), fetch, Options{FS: billy.NewMemory()})
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = s.Next(ctx, 0)
	assert.True(t, errors.HasCode(err, errors.CodeCancelled))
	close(block)
}

func TestSpool_CancelledBeforeFetch(t *testing.T) {
	var calls atomic.Int32
	fetch := func(ctx context.Context, desc ocispec.Descriptor, consume func(io.Reader) error) error {
		calls.Add(1)
		return consume(strings.NewReader("x"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := Start(ctx, descriptors(3), fetch, Options{FS: billy.NewMemory()})
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 3; i++ {
		_, err := s.Next(context.Background(), i)
		assert.True(t, errors.HasCode(err, errors.CodeCancelled))
	}
	assert.Equal(t, int32(0), calls.Load())
}

func TestSpool_Stash(t *testing.T) {
	mfs := billy.NewMemory()
	s, err := Start(context.Background(), nil, nil, Options{FS: mfs})
	require.NoError(t, err)

	a, err := s.Stash(strings.NewReader("first"))
	require.NoError(t, err)
	b, err := s.Stash(strings.NewReader("second"))
	require.NoError(t, err)

	got, err := io.ReadAll(a)
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))
	got, err = io.ReadAll(b)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
	assert.Equal(t, 1, spoolFiles(t, mfs))

	require.NoError(t, s.Close())
	assert.Equal(t, 0, spoolFiles(t, mfs))
}

func TestStart_RequiresFS(t *testing.T) {
	_, err := Start(context.Background(), nil, nil, Options{})
	assert.True(t, errors.HasCode(err, errors.CodeInvalidConfig))
}
