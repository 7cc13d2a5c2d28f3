// Package version formats the build information injected with ldflags.
package version

import (
	"fmt"
	"runtime"
)

const shortCommitLen = 7

// Info describes a dimmctl build.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// New returns the build information, substituting placeholders for values
// the linker did not set.
func New(version, commit, buildTime string) Info {
	info := Info{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	return info
}

// Short returns the version with an abbreviated commit, e.g. v1.2.0-abcdef1.
func (i Info) Short() string {
	if i.Commit == "" {
		return i.Version
	}
	commit := i.Commit
	if len(commit) > shortCommitLen {
		commit = commit[:shortCommitLen]
	}
	return i.Version + "-" + commit
}

func (i Info) String() string {
	commit, built := i.Commit, i.BuildTime
	if commit == "" {
		commit = "unknown"
	}
	if built == "" {
		built = "unknown"
	}
	return fmt.Sprintf(`dimmctl (DDR4 DIMM monitoring and lighting control)
Version:    %s
Commit:     %s
Built:      %s
Go version: %s
OS/Arch:    %s`,
		i.Version, commit, built, i.GoVersion, i.Platform)
}
