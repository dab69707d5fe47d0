// Package version reports build metadata for the parley binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/soyeahso/parley/internal/version.Version=..."
// and likewise for Commit and Date.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info returns the one-line version banner.
func Info() string {
	return fmt.Sprintf("parley %s (commit: %s, built: %s, %s/%s)",
		Version, short(Revision()), Date, runtime.GOOS, runtime.GOARCH)
}

// Revision returns Commit, or the VCS revision recorded by the Go toolchain
// when no commit was stamped in.
func Revision() string {
	if Commit != "unknown" {
		return Commit
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return s.Value
			}
		}
	}
	return Commit
}

// UserAgent is the User-Agent sent to the chat API.
func UserAgent() string {
	return fmt.Sprintf("parley/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH)
}

func short(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}
