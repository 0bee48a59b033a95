// Package version reports the build identity of the binaries.
package version

import (
	"fmt"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/hekzam/markers-eval-25-sub000/internal/version.Version=..."
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Commit returns GitCommit, falling back to the VCS revision stamped by the
// go command.
func Commit() string {
	if GitCommit != "unknown" {
		return GitCommit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return GitCommit
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return s.Value
		}
	}
	return GitCommit
}

// String is the one-line version banner printed by -version flags.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit(), BuildTime)
}
