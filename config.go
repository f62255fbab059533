package imgex

import (
	"context"
	"encoding/json"
	"sort"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/jmgilman/go/imgex/errors"
)

// ImageConfig is the runtime subset of an image config.
type ImageConfig struct {
	// User is the user or UID the container runs as. Empty means root.
	User string `json:"user"`

	Entrypoint []string `json:"entrypoint"`
	Cmd        []string `json:"cmd"`
	WorkingDir string   `json:"working_dir"`

	// Env holds "KEY=VALUE" pairs.
	Env    []string          `json:"env"`
	Labels map[string]string `json:"labels"`

	// ExposedPorts lists "port/protocol" entries in sorted order.
	ExposedPorts []string `json:"exposed_ports,omitempty"`

	OS           string `json:"os"`
	Architecture string `json:"architecture"`
	Variant      string `json:"variant,omitempty"`
}

// ParseImageConfig extracts the runtime subset of a config JSON document.
func ParseImageConfig(config []byte) (*ImageConfig, error) {
	var img ocispec.Image
	if err := json.Unmarshal(config, &img); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "malformed image config")
	}

	summary := &ImageConfig{
		User:         img.Config.User,
		Entrypoint:   img.Config.Entrypoint,
		Cmd:          img.Config.Cmd,
		WorkingDir:   img.Config.WorkingDir,
		Env:          img.Config.Env,
		Labels:       img.Config.Labels,
		OS:           img.OS,
		Architecture: img.Architecture,
		Variant:      img.Variant,
	}
	for port := range img.Config.ExposedPorts {
		summary.ExposedPorts = append(summary.ExposedPorts, port)
	}
	sort.Strings(summary.ExposedPorts)

	return summary, nil
}

// GetImageConfigSummary fetches the config of ref and returns its runtime
// subset.
func (e *Exporter) GetImageConfigSummary(ctx context.Context, ref string, cred Credential) (*ImageConfig, error) {
	config, err := e.GetImageConfig(ctx, ref, cred)
	if err != nil {
		return nil, err
	}
	summary, err := ParseImageConfig(config)
	if err != nil {
		return nil, newError(opGetConfig, ref, err)
	}
	return summary, nil
}
