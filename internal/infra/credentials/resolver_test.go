package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edumarques81/sharesync/internal/config"
	"github.com/edumarques81/sharesync/internal/domain/shares"
)

func touch(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	return path
}

func newConfig(t *testing.T) *config.Config {
	return &config.Config{
		CIFS: config.CIFSConfig{
			CredentialsFile: touch(t, "cifs.cred"),
			Domain:          "WORKGROUP",
			UID:             "1001",
			GID:             "5001",
			FileMode:        "0644",
			Options:         []string{"auto"},
		},
		SSH: config.SSHConfig{
			IdentityFile: touch(t, "id_ed25519"),
			User:         "svc",
			UID:          "1001",
			GID:          "5001",
			Options:      []string{"reconnect"},
		},
	}
}

func TestResolve_CIFS(t *testing.T) {
	cfg := newConfig(t)
	r := NewResolver(cfg)

	got, err := r.Resolve([]shares.Descriptor{{
		Kind:       shares.KindCIFS,
		Remote:     "//fileserver/music",
		MountPoint: "/shares/music",
		Options:    []string{"uid=1000", "ro"},
	}})
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, "//fileserver/music", got[0].Remote)
	assert.Equal(t, []string{
		"credentials=" + cfg.CIFS.CredentialsFile,
		"domain=WORKGROUP",
		"uid=1000",
		"gid=5001",
		"file_mode=0644",
		"auto",
		"ro",
	}, got[0].Options)
}

func TestResolve_SSH(t *testing.T) {
	cfg := newConfig(t)
	r := NewResolver(cfg)

	got, err := r.Resolve([]shares.Descriptor{
		{Kind: shares.KindSSH, Remote: "build01:/srv/artifacts", MountPoint: "/shares/a"},
		{Kind: shares.KindSSH, Remote: "deploy@build02:/srv", MountPoint: "/shares/b"},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "svc@build01:/srv/artifacts", got[0].Remote)
	assert.Equal(t, "deploy@build02:/srv", got[1].Remote)
	assert.Equal(t, []string{
		"IdentityFile=" + cfg.SSH.IdentityFile,
		"uid=1001",
		"gid=5001",
		"reconnect",
	}, got[0].Options)
}

func TestResolve_DoesNotMutateInput(t *testing.T) {
	r := NewResolver(newConfig(t))
	in := []shares.Descriptor{{Kind: shares.KindSSH, Remote: "h:/p", MountPoint: "/shares/p"}}

	_, err := r.Resolve(in)
	require.NoError(t, err)
	assert.Equal(t, "h:/p", in[0].Remote)
	assert.Nil(t, in[0].Options)
}

func TestResolve_MissingFiles(t *testing.T) {
	cfg := newConfig(t)
	cfg.SSH.IdentityFile = filepath.Join(t.TempDir(), "missing")
	r := NewResolver(cfg)

	// Only kinds that are desired are checked.
	_, err := r.Resolve([]shares.Descriptor{{Kind: shares.KindCIFS, Remote: "//h/s", MountPoint: "/shares/s"}})
	require.NoError(t, err)

	_, err = r.Resolve([]shares.Descriptor{{Kind: shares.KindSSH, Remote: "h:/s", MountPoint: "/shares/s"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, shares.ErrConfig)
	assert.Contains(t, err.Error(), "ssh.identity_file")
}

func TestResolve_EmptyDefaults(t *testing.T) {
	r := NewResolver(&config.Config{})

	got, err := r.Resolve([]shares.Descriptor{{Kind: shares.KindSSH, Remote: "h:/s", MountPoint: "/shares/s"}})
	require.NoError(t, err)
	assert.Equal(t, "h:/s", got[0].Remote)
	assert.Empty(t, got[0].Options)
}

func TestResolve_InlinePassword(t *testing.T) {
	r := NewResolver(newConfig(t))

	_, err := r.Resolve([]shares.Descriptor{{
		Kind:       shares.KindCIFS,
		Remote:     "//h/s",
		MountPoint: "/shares/s",
		Options:    []string{"password=hunter2"},
	}})
	require.Error(t, err)
	assert.ErrorIs(t, err, shares.ErrConfig)
}

func TestWithUser(t *testing.T) {
	tests := []struct {
		remote, user, want string
	}{
		{"host:/p", "svc", "svc@host:/p"},
		{"me@host:/p", "svc", "me@host:/p"},
		{"host:/p", "", "host:/p"},
		{"nocolon", "svc", "nocolon"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, withUser(tt.remote, tt.user), tt.remote)
	}
}
