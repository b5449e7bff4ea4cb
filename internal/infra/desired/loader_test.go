package desired

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edumarques81/sharesync/internal/domain/shares"
)

var want = []shares.Descriptor{
	{Kind: shares.KindCIFS, Remote: "//fileserver/team/music", MountPoint: "/shares/music"},
	{Kind: shares.KindSSH, Remote: "build01:/srv/artifacts", MountPoint: "/shares/artifacts", Options: []string{"reconnect"}},
}

func write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Formats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "json array",
			file: "mounts.json",
			content: `[
  {"mount_path": "/shares/music", "actual_path": "\\\\fileserver\\team\\music", "mount_type": "windows"},
  {"mount_path": "/shares/artifacts/", "actual_path": "build01:/srv/artifacts", "mount_type": "linux", "options": ["reconnect"]}
]`,
		},
		{
			name: "json object",
			file: "mounts.json",
			content: `{"mounts": [
  {"mount_path": "/shares/music", "actual_path": "//fileserver/team/music", "mount_type": "cifs"},
  {"mount_path": "/shares/artifacts", "actual_path": "build01:/srv/artifacts", "mount_type": "fuse.sshfs", "options": ["reconnect"]}
]}`,
		},
		{
			name: "yaml list",
			file: "mounts.yml",
			content: `
- mount_path: /shares/music
  actual_path: //fileserver/team/music
  mount_type: smb
- mount_path: /shares/artifacts
  actual_path: build01:/srv/artifacts
  mount_type: ssh
  options: [reconnect]
`,
		},
		{
			name: "yaml document",
			file: "mounts.yaml",
			content: `
mounts:
  - mount_path: /shares/music
    actual_path: '\\fileserver\team\music'
    mount_type: cifs
  - mount_path: /shares/artifacts
    actual_path: build01:/srv/artifacts
    mount_type: sshfs
    options:
      - reconnect
`,
		},
		{
			name: "toml",
			file: "mounts.toml",
			content: `
[[mounts]]
mount_path = "/shares/music"
actual_path = "//fileserver/team/music"
mount_type = "cifs"

[[mounts]]
mount_path = "/shares/artifacts"
actual_path = "build01:/srv/artifacts"
mount_type = "linux"
options = ["reconnect"]
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(write(t, tt.file, tt.content))
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestLoad_Empty(t *testing.T) {
	got, err := Load(write(t, "mounts.json", "  \n"))
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = Load(write(t, "mounts.json", "[]"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "mounts.json"))
	assert.ErrorIs(t, err, shares.ErrConfig)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"syntax":       `[{"mount_path": "/shares/a",`,
		"unknown type": `[{"mount_path": "/shares/a", "actual_path": "h:/a", "mount_type": "nfs"}]`,
		"no remote":    `[{"mount_path": "/shares/a", "mount_type": "cifs"}]`,
		"no path":      `[{"actual_path": "//h/a", "mount_type": "cifs"}]`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(write(t, "mounts.json", content))
			require.Error(t, err)
			assert.ErrorIs(t, err, shares.ErrConfig)
		})
	}
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatYAML, FormatFromPath("/etc/x.YML"))
	assert.Equal(t, FormatTOML, FormatFromPath("x.toml"))
	assert.Equal(t, FormatJSON, FormatFromPath("x.json"))
	assert.Equal(t, FormatJSON, FormatFromPath("mounts"))
}
