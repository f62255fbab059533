package testutil

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"oras.land/oras-go/v2/registry/remote"
)

// ContainerRegistry is a real OCI registry running in a test container.
type ContainerRegistry struct {
	container testcontainers.Container
	host      string
}

// NewContainerRegistry starts a registry container. The image defaults to
// zot and can be overridden with TEST_REGISTRY_IMAGE.
func NewContainerRegistry(ctx context.Context) (*ContainerRegistry, error) {
	image := os.Getenv("TEST_REGISTRY_IMAGE")
	if image == "" {
		image = "ghcr.io/project-zot/zot:latest"
	}

	req := testcontainers.ContainerRequest{
		Image:        image,
		ExposedPorts: []string{"5000/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5000/tcp"),
			wait.ForHTTP("/v2/").
				WithPort("5000/tcp").
				WithStatusCodeMatcher(func(code int) bool {
					return code == http.StatusOK || code == http.StatusUnauthorized || code == http.StatusForbidden
				}),
		),
		Env: map[string]string{
			"REGISTRY_HTTP_ADDR": "0.0.0.0:5000",
		},
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start registry container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5000")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	return &ContainerRegistry{
		container: container,
		host:      fmt.Sprintf("%s:%d", host, port.Int()),
	}, nil
}

// Host returns host:port of the registry.
func (r *ContainerRegistry) Host() string {
	return r.host
}

// Reference returns host/repo:tag.
func (r *ContainerRegistry) Reference(repo, tag string) string {
	return fmt.Sprintf("%s/%s:%s", r.host, repo, tag)
}

// PushImage uploads spec to repo and tags it.
func (r *ContainerRegistry) PushImage(ctx context.Context, repo, tag string, spec ImageSpec) (PushedImage, error) {
	target, err := remote.NewRepository(fmt.Sprintf("%s/%s", r.host, repo))
	if err != nil {
		return PushedImage{}, fmt.Errorf("failed to open repository: %w", err)
	}
	target.PlainHTTP = true

	img := BuildImage(spec)
	descs := append(img.Layers, img.Config)
	for _, desc := range descs {
		if err := target.Push(ctx, desc, bytes.NewReader(img.Blobs[desc.Digest])); err != nil {
			return PushedImage{}, fmt.Errorf("failed to push blob %s: %w", desc.Digest, err)
		}
	}

	if err := target.Manifests().PushReference(ctx, img.Manifest, bytes.NewReader(img.Body), tag); err != nil {
		return PushedImage{}, fmt.Errorf("failed to push manifest: %w", err)
	}
	return img.PushedImage, nil
}

// Close terminates the container.
func (r *ContainerRegistry) Close(ctx context.Context) error {
	if r.container != nil {
		if err := r.container.Terminate(ctx); err != nil {
			return fmt.Errorf("failed to terminate registry container: %w", err)
		}
	}
	return nil
}
