package version_test

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edumarques81/sharesync/internal/version"
)

func TestGetInfo(t *testing.T) {
	info := version.GetInfo()

	assert.Equal(t, "sharesync", info.Name)
	assert.NotEmpty(t, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}

func TestInfoString(t *testing.T) {
	tests := []struct {
		name string
		info version.Info
		want string
	}{
		{
			name: "version only",
			info: version.Info{Name: "sharesync", Version: "1.0.0"},
			want: "sharesync v1.0.0",
		},
		{
			name: "long commit is shortened",
			info: version.Info{Name: "sharesync", Version: "1.0.0", GitCommit: "abcdef1234567"},
			want: "sharesync v1.0.0 (abcdef1)",
		},
		{
			name: "short commit and build time",
			info: version.Info{Name: "sharesync", Version: "1.0.0", GitCommit: "abc", BuildTime: "2026-01-01"},
			want: "sharesync v1.0.0 (abc) built 2026-01-01",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.info.String())
		})
	}
}

func TestInfoPairs(t *testing.T) {
	pairs := version.Info{Name: "sharesync", Version: "1.0.0", GoVersion: "go1.24", Platform: "linux/arm64"}.Pairs()
	assert.Equal(t, [][2]string{
		{"Name", "sharesync"},
		{"Version", "1.0.0"},
		{"Go", "go1.24"},
		{"Platform", "linux/arm64"},
	}, pairs)
}
