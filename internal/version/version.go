// Package version reports build metadata stamped in by the linker.
package version

import (
	"fmt"
	"runtime"
)

// Set with -ldflags "-X github.com/soyeahso/crewdesk/internal/version.Version=1.0.0 ...".
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Build is the machine-readable form of the build metadata.
type Build struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Go      string `json:"go"`
	OS      string `json:"os"`
	Arch    string `json:"arch"`
}

// Current returns the build metadata of the running binary.
func Current() Build {
	return Build{
		Version: Version,
		Commit:  short(Commit),
		Date:    Date,
		Go:      runtime.Version(),
		OS:      runtime.GOOS,
		Arch:    runtime.GOARCH,
	}
}

// Info returns a one-line description for `crewdesk version`.
func Info() string {
	b := Current()
	return fmt.Sprintf("crewdesk %s (commit: %s, built: %s, %s/%s)", b.Version, b.Commit, b.Date, b.OS, b.Arch)
}

func short(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}
