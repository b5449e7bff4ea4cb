// Package desired reads the declared set of shares.
package desired

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/edumarques81/sharesync/internal/domain/shares"
)

// Format is a desired-state file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Mount is one declared share as written by operators.
type Mount struct {
	MountPath  string   `json:"mount_path" yaml:"mount_path" toml:"mount_path"`
	ActualPath string   `json:"actual_path" yaml:"actual_path" toml:"actual_path"`
	MountType  string   `json:"mount_type" yaml:"mount_type" toml:"mount_type"`
	Options    []string `json:"options,omitempty" yaml:"options,omitempty" toml:"options,omitempty"`
}

type document struct {
	Mounts []Mount `json:"mounts" yaml:"mounts" toml:"mounts"`
}

// FormatFromPath picks the format by file extension. Unknown extensions
// are read as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	default:
		return FormatJSON
	}
}

// Load reads the desired-state file at path.
func Load(path string) ([]shares.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &shares.ConfigError{Field: "desired_path", Reason: fmt.Sprintf("%s does not exist", path)}
		}
		return nil, &shares.ConfigError{Field: "desired_path", Reason: err.Error()}
	}
	return Parse(data, FormatFromPath(path))
}

// Parse decodes desired-state data in the given format. The result keeps
// the declaration order.
func Parse(data []byte, format Format) ([]shares.Descriptor, error) {
	mounts, err := decode(data, format)
	if err != nil {
		return nil, &shares.ConfigError{Field: "desired_path", Reason: fmt.Sprintf("invalid %s: %v", format, err)}
	}

	out := make([]shares.Descriptor, 0, len(mounts))
	for i, m := range mounts {
		d, err := m.Descriptor()
		if err != nil {
			return nil, &shares.ConfigError{Field: fmt.Sprintf("mounts[%d]", i), Reason: err.Error()}
		}
		out = append(out, d)
	}
	return out, nil
}

func decode(data []byte, format Format) ([]Mount, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	switch format {
	case FormatYAML:
		var node yaml.Node
		if err := yaml.Unmarshal(trimmed, &node); err != nil {
			return nil, err
		}
		if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
			var mounts []Mount
			err := node.Decode(&mounts)
			return mounts, err
		}
		var doc document
		err := node.Decode(&doc)
		return doc.Mounts, err

	case FormatTOML:
		var doc document
		_, err := toml.Decode(string(trimmed), &doc)
		return doc.Mounts, err

	default:
		if trimmed[0] == '[' {
			var mounts []Mount
			err := json.Unmarshal(trimmed, &mounts)
			return mounts, err
		}
		var doc document
		err := json.Unmarshal(trimmed, &doc)
		return doc.Mounts, err
	}
}

// Descriptor converts the declaration into a descriptor.
func (m Mount) Descriptor() (shares.Descriptor, error) {
	kind, err := shares.ParseKind(m.MountType)
	if err != nil {
		return shares.Descriptor{}, err
	}

	strip := strings.NewReplacer("\r", "", "\n", "")
	remote := strings.TrimSpace(strip.Replace(m.ActualPath))
	mountPoint := strings.TrimSpace(strip.Replace(m.MountPath))
	if kind == shares.KindCIFS {
		remote = strings.ReplaceAll(remote, `\`, "/")
	}

	if remote == "" {
		return shares.Descriptor{}, fmt.Errorf("actual_path is required")
	}
	if mountPoint == "" {
		return shares.Descriptor{}, fmt.Errorf("mount_path is required")
	}

	return shares.Descriptor{
		Kind:       kind,
		Remote:     remote,
		MountPoint: shares.CleanPath(mountPoint),
		Options:    m.Options,
	}, nil
}
