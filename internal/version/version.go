// Package version reports build metadata of the dbpulse binaries.
//
// Release builds inject the values at link time:
//
//	go build -ldflags "-X dbpulse/internal/version.Version=v1.4.0 \
//	  -X dbpulse/internal/version.GitCommit=$(git rev-parse --short HEAD) \
//	  -X dbpulse/internal/version.BuildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// Without them, commit and date come from the VCS stamp of the Go toolchain.
package version

import (
	"database/sql"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

const unknown = "unknown"

// Set by -ldflags
var (
	Version   = unknown
	GitCommit = unknown
	BuildDate = unknown
)

// Info represents version information
type Info struct {
	Version   string   `json:"version"`
	GitCommit string   `json:"git_commit"`
	BuildDate string   `json:"build_date"`
	Modified  bool     `json:"modified,omitempty"`
	GoVersion string   `json:"go_version"`
	Platform  string   `json:"platform"`
	Drivers   []string `json:"drivers"` // registered database/sql drivers
}

// GetInfo returns version information
func GetInfo() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Drivers:   sql.Drivers(),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.applyBuildSettings(bi.Settings)
	}
	return info
}

// applyBuildSettings fills values that were not injected at link time
func (i *Info) applyBuildSettings(settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if i.GitCommit == unknown && s.Value != "" {
				i.GitCommit = s.Value[:min(len(s.Value), 12)]
			}
		case "vcs.time":
			if i.BuildDate == unknown && s.Value != "" {
				i.BuildDate = s.Value
			}
		case "vcs.modified":
			i.Modified = s.Value == "true"
		}
	}
}

// String returns a string representation of version information
func (i Info) String() string {
	commit := i.GitCommit
	if i.Modified {
		commit += " (modified)"
	}
	return fmt.Sprintf("dbpulse %s\nGit Commit: %s\nBuild Date: %s\nGo Version: %s\nPlatform: %s\nDrivers: %s",
		i.Version, commit, i.BuildDate, i.GoVersion, i.Platform, strings.Join(i.Drivers, ", "))
}
