package shares

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{in: "cifs", want: KindCIFS},
		{in: "Windows", want: KindCIFS},
		{in: "smb", want: KindCIFS},
		{in: "fuse.sshfs", want: KindSSH},
		{in: "linux", want: KindSSH},
		{in: " sshfs ", want: KindSSH},
		{in: "nfs", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanonicalOptions(t *testing.T) {
	got := CanonicalOptions([]string{"uid=1001", " ro", "gid=5001", "ro", ""})
	assert.Equal(t, []string{"gid=5001", "ro", "uid=1001"}, got)
	assert.Nil(t, CanonicalOptions(nil))
	assert.Nil(t, CanonicalOptions([]string{" ", ""}))
}

func TestMergeOptions(t *testing.T) {
	got := MergeOptions(
		[]string{"credentials=/etc/cifs", "uid=1001", "gid=5001"},
		[]string{"uid=1000", "ro"},
	)
	assert.Equal(t, []string{"credentials=/etc/cifs", "uid=1000", "gid=5001", "ro"}, got)
}

func TestDescriptor_SameTarget(t *testing.T) {
	base := Descriptor{Kind: KindCIFS, Remote: "//srv/data", MountPoint: "/shares/data", Options: []string{"uid=1", "ro"}}

	same := base
	same.Options = []string{"ro", "uid=1", "ro"}
	same.MountPoint = "/shares/data/"
	same.Managed = true
	assert.True(t, base.SameTarget(same))

	otherRemote := base
	otherRemote.Remote = "//srv/other"
	assert.False(t, base.SameTarget(otherRemote))

	otherOpts := base
	otherOpts.Options = []string{"rw", "uid=1"}
	assert.False(t, base.SameTarget(otherOpts))

	otherKind := base
	otherKind.Kind = KindSSH
	assert.False(t, base.SameTarget(otherKind))
}

func TestDescriptor_Option(t *testing.T) {
	d := Descriptor{Options: []string{"credentials=/root/.cifs", "ro"}}

	v, ok := d.Option("credentials")
	assert.True(t, ok)
	assert.Equal(t, "/root/.cifs", v)

	_, ok = d.Option("ro")
	assert.True(t, ok)

	_, ok = d.Option("uid")
	assert.False(t, ok)
}

func TestUnderRoot(t *testing.T) {
	assert.True(t, UnderRoot("/shares", "/shares/data"))
	assert.True(t, UnderRoot("/shares/", "/shares/a/b"))
	assert.False(t, UnderRoot("/shares", "/shares"))
	assert.False(t, UnderRoot("/shares", "/sharesx/data"))
	assert.False(t, UnderRoot("/shares", "/mnt/data"))
	assert.True(t, UnderRoot("/", "/mnt"))
}

func TestValidateSet(t *testing.T) {
	ok := []Descriptor{
		{Kind: KindCIFS, Remote: "//srv/a", MountPoint: "/shares/a"},
		{Kind: KindSSH, Remote: "u@host:/b", MountPoint: "/shares/b"},
	}
	require.NoError(t, ValidateSet(ok, "/shares"))

	t.Run("duplicate mount point", func(t *testing.T) {
		dup := append(ok, Descriptor{Kind: KindCIFS, Remote: "//srv/c", MountPoint: "/shares/a/"})
		err := ValidateSet(dup, "/shares")
		var dupErr *DuplicateMountPointError
		require.ErrorAs(t, err, &dupErr)
		assert.Equal(t, "/shares/a", dupErr.MountPoint)
		assert.Equal(t, 0, dupErr.First)
		assert.Equal(t, 2, dupErr.Second)
		assert.True(t, errors.Is(err, ErrConfig))
		assert.True(t, IsFatal(err))
	})

	bad := []struct {
		name string
		d    Descriptor
	}{
		{"unknown kind", Descriptor{Kind: "nfs", Remote: "h:/x", MountPoint: "/shares/x"}},
		{"empty remote", Descriptor{Kind: KindCIFS, MountPoint: "/shares/x"}},
		{"relative path", Descriptor{Kind: KindCIFS, Remote: "//s/x", MountPoint: "shares/x"}},
		{"outside root", Descriptor{Kind: KindCIFS, Remote: "//s/x", MountPoint: "/mnt/x"}},
		{"root itself", Descriptor{Kind: KindCIFS, Remote: "//s/x", MountPoint: "/shares"}},
		{"comma in option", Descriptor{Kind: KindCIFS, Remote: "//s/x", MountPoint: "/shares/x", Options: []string{"ro,uid=1"}}},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSet([]Descriptor{tt.d}, "/shares")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfig)
		})
	}
}

func TestIsFatal(t *testing.T) {
	assert.False(t, IsFatal(nil))
	assert.True(t, IsFatal(&TableReadError{Path: "/etc/fstab", Err: errors.New("denied")}))
	assert.True(t, IsFatal(&TableWriteError{Path: "/etc/fstab", Err: errors.New("full")}))
	assert.False(t, IsFatal(&MountFailure{MountPoint: "/shares/a", Reason: "refused"}))

	timeout := &MountFailure{MountPoint: "/shares/a", Reason: "mount", Err: &TimeoutError{Op: "mount", After: 0}}
	var te *TimeoutError
	assert.ErrorAs(t, timeout, &te)
}
