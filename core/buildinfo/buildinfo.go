// Package buildinfo carries version metadata stamped at link time.
package buildinfo

import (
	"fmt"
	"runtime"
)

// Set via -ldflags:
//
//	-X 'github.com/m3rciful/deliabot/core/buildinfo.Version=v1.2.3'
//	-X 'github.com/m3rciful/deliabot/core/buildinfo.Commit=abcdef0'
//	-X 'github.com/m3rciful/deliabot/core/buildinfo.Date=2026-10-17T12:00:00Z'
var (
	// Version reports the semantic version or tag of the build.
	Version = "dev"
	// Commit reports the source control commit used for the build.
	Commit = "local"
	// Date reports the build timestamp in RFC3339 format.
	Date = ""
)

// Summary renders a single human readable version line.
func Summary(name string) string {
	date := Date
	if date == "" {
		date = "unknown"
	}
	return fmt.Sprintf("%s %s (commit %s, built %s, %s)", name, Version, Commit, date, runtime.Version())
}
