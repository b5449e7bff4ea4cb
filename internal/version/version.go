// Package version provides build information for sharesync.
package version

import (
	"fmt"
	"runtime"
)

// These variables are set at build time using -ldflags, e.g.
//
//	-X github.com/edumarques81/sharesync/internal/version.Version=1.2.0
var (
	Name      = "sharesync"
	Version   = "0.1.0"
	BuildTime = ""
	GitCommit = ""
)

// Info contains version information
type Info struct {
	Name      string `json:"name" yaml:"name"`
	Version   string `json:"version" yaml:"version"`
	BuildTime string `json:"buildTime,omitempty" yaml:"buildTime,omitempty"`
	GitCommit string `json:"gitCommit,omitempty" yaml:"gitCommit,omitempty"`
	GoVersion string `json:"goVersion" yaml:"goVersion"`
	Platform  string `json:"platform" yaml:"platform"`
}

// GetInfo returns the current version information
func GetInfo() Info {
	return Info{
		Name:      Name,
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String returns a formatted version string
func (i Info) String() string {
	s := fmt.Sprintf("%s v%s", i.Name, i.Version)
	if i.GitCommit != "" {
		s += fmt.Sprintf(" (%s)", i.GitCommit[:min(7, len(i.GitCommit))])
	}
	if i.BuildTime != "" {
		s += fmt.Sprintf(" built %s", i.BuildTime)
	}
	return s
}

// Pairs returns the info as label/value rows for tabular output.
func (i Info) Pairs() [][2]string {
	pairs := [][2]string{
		{"Name", i.Name},
		{"Version", i.Version},
	}
	if i.GitCommit != "" {
		pairs = append(pairs, [2]string{"Commit", i.GitCommit})
	}
	if i.BuildTime != "" {
		pairs = append(pairs, [2]string{"Built", i.BuildTime})
	}
	return append(pairs, [2]string{"Go", i.GoVersion}, [2]string{"Platform", i.Platform})
}
