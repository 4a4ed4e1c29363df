// Package versions provides build version information for the platform
// binary.
package versions

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Build information, populated at build time via ldflags.
var (
	// Version is the release version.
	Version = "dev"

	// Commit is the git commit hash.
	Commit = "unknown"

	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)

// VersionInfo describes the running binary.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersionInfo returns the build information, falling back to VCS
// metadata embedded by the Go toolchain when ldflags were not set.
func GetVersionInfo() VersionInfo {
	commit := Commit
	buildDate := BuildDate
	if info, ok := debug.ReadBuildInfo(); ok && commit == "unknown" {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				commit = setting.Value
			case "vcs.time":
				buildDate = setting.Value
			}
		}
	}
	return VersionInfo{
		Version:   Version,
		Commit:    commit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}
