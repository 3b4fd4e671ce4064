// Package buildinfo holds version and build metadata stamped at compile time via ldflags.
package buildinfo

import (
	"fmt"
	"runtime"
)

// These variables are set at build time via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// BuildInfo returns build metadata as a map for version output.
func BuildInfo() map[string]string {
	return map[string]string{
		"version":    Version,
		"git_commit": GitCommit,
		"build_time": BuildTime,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
	}
}

// UserAgent is the User-Agent header sent on every outbound request.
func UserAgent() string {
	return "Smarty/" + Version
}

// String returns a one-line summary for logging.
func String() string {
	return fmt.Sprintf("Smarty %s (%s) built %s", Version, GitCommit, BuildTime)
}
