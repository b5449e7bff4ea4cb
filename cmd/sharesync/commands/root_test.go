package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edumarques81/sharesync/internal/domain/modes"
	"github.com/edumarques81/sharesync/internal/version"
)

const unmanagedTable = "# /etc/fstab\nUUID=abcd / ext4 defaults 0 1\n"

type env struct {
	dir     string
	config  string
	table   string
	desired string
}

func newEnv(t *testing.T, desired string) env {
	t.Helper()
	dir := t.TempDir()
	e := env{
		dir:     dir,
		config:  filepath.Join(dir, "config.yaml"),
		table:   filepath.Join(dir, "fstab"),
		desired: filepath.Join(dir, "mounts.json"),
	}
	mounts := filepath.Join(dir, "mounts")
	root := filepath.Join(dir, "shares")

	require.NoError(t, os.WriteFile(e.table, []byte(unmanagedTable), 0o644))
	require.NoError(t, os.WriteFile(mounts, nil, 0o644))
	require.NoError(t, os.WriteFile(e.desired, []byte(desired), 0o644))
	require.NoError(t, os.WriteFile(e.config, []byte(
		"shares_root: "+root+"\n"+
			"table_path: "+e.table+"\n"+
			"mounts_path: "+mounts+"\n"+
			"desired_path: "+e.desired+"\n"+
			"logging:\n  level: error\n"), 0o644))
	return e
}

// run executes the CLI with flags reset to their defaults.
func run(t *testing.T, args ...string) (int, string) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	code := execute(args, &out)
	return code, out.String()
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func TestDryRun(t *testing.T) {
	e := newEnv(t, "[]")
	desired := `[{"mount_path": "` + filepath.Join(e.dir, "shares", "music") + `", "actual_path": "//fileserver/music", "mount_type": "windows"}]`
	require.NoError(t, os.WriteFile(e.desired, []byte(desired), 0o644))

	code, out := run(t, "--config", e.config, "--dry-run", "-o", "json")
	require.Equal(t, modes.ExitOK, code, out)

	var summary struct {
		Mode    string `json:"mode"`
		Actions []struct {
			Action     string `json:"action"`
			MountPoint string `json:"mountPoint"`
			Status     string `json:"status"`
		} `json:"actions"`
		TableWritten bool `json:"tableWritten"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, "dry-run", summary.Mode)
	require.Len(t, summary.Actions, 1)
	assert.Equal(t, "add", summary.Actions[0].Action)
	assert.Equal(t, "planned", summary.Actions[0].Status)
	assert.False(t, summary.TableWritten)

	data, err := os.ReadFile(e.table)
	require.NoError(t, err)
	assert.Equal(t, unmanagedTable, string(data))
}

func TestDryRun_TableOutput(t *testing.T) {
	e := newEnv(t, "[]")
	desired := `[{"mount_path": "` + filepath.Join(e.dir, "shares", "backup") + `", "actual_path": "nas:/srv/backup", "mount_type": "linux"}]`
	require.NoError(t, os.WriteFile(e.desired, []byte(desired), 0o644))

	code, out := run(t, "--config", e.config, "--dry-run")
	require.Equal(t, modes.ExitOK, code, out)
	assert.Contains(t, out, "Mounts to add:")
	assert.Contains(t, out, "nas:/srv/backup")
	assert.Contains(t, out, "Summary:")
}

func TestApply_NothingToDo(t *testing.T) {
	e := newEnv(t, "[]")

	code, out := run(t, "--config", e.config, "-o", "yaml")
	require.Equal(t, modes.ExitOK, code, out)
	assert.Contains(t, out, "mode: apply")

	data, err := os.ReadFile(e.table)
	require.NoError(t, err)
	assert.Equal(t, unmanagedTable, string(data))
}

func TestExclusiveModes(t *testing.T) {
	e := newEnv(t, "[]")
	code, _ := run(t, "--config", e.config, "--dry-run", "--cleanup")
	assert.Equal(t, modes.ExitFatal, code)
}

func TestFatalErrors(t *testing.T) {
	e := newEnv(t, "[]")

	t.Run("missing desired file", func(t *testing.T) {
		code, _ := run(t, "--config", e.config, "--desired", filepath.Join(e.dir, "none.json"))
		assert.Equal(t, modes.ExitFatal, code)
	})

	t.Run("bad output format", func(t *testing.T) {
		code, _ := run(t, "--config", e.config, "-o", "xml")
		assert.Equal(t, modes.ExitFatal, code)
	})

	t.Run("duplicate mount point", func(t *testing.T) {
		mp := filepath.Join(e.dir, "shares", "dup")
		dup := `[{"mount_path": "` + mp + `", "actual_path": "//a/x", "mount_type": "cifs"},
{"mount_path": "` + mp + `", "actual_path": "//b/y", "mount_type": "cifs"}]`
		path := filepath.Join(e.dir, "dup.json")
		require.NoError(t, os.WriteFile(path, []byte(dup), 0o644))

		code, out := run(t, "--config", e.config, "--desired", path, "-o", "json")
		assert.Equal(t, modes.ExitFatal, code, out)
	})
}

func TestStatus(t *testing.T) {
	e := newEnv(t, "[]")
	desired := `[{"mount_path": "` + filepath.Join(e.dir, "shares", "music") + `", "actual_path": "//fileserver/music", "mount_type": "cifs"}]`
	require.NoError(t, os.WriteFile(e.desired, []byte(desired), 0o644))

	code, out := run(t, "status", "--config", e.config, "-o", "json")
	require.Equal(t, modes.ExitOK, code, out)

	var rep struct {
		Shares []struct {
			Remote     string `json:"remote"`
			Desired    bool   `json:"desired"`
			Registered bool   `json:"registered"`
		} `json:"shares"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	require.Len(t, rep.Shares, 1)
	assert.Equal(t, "//fileserver/music", rep.Shares[0].Remote)
	assert.True(t, rep.Shares[0].Desired)
	assert.False(t, rep.Shares[0].Registered)
}

func TestVersion(t *testing.T) {
	code, out := run(t, "version", "--short")
	require.Equal(t, modes.ExitOK, code)
	assert.Equal(t, version.Version+"\n", out)

	code, out = run(t, "version")
	require.Equal(t, modes.ExitOK, code)
	assert.Contains(t, out, "sharesync")
}
