// Package version reports searchkit build metadata.
package version

import (
	"fmt"
	"runtime"
)

// Build metadata, injected with
//
//	-ldflags "-X github.com/Aman-CERP/searchkit/pkg/version.Version=v1.2.3 ..."
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// BuildInfo is the JSON form of the build metadata.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the build metadata of the running binary.
func Get() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String formats the build metadata on one line.
func (b BuildInfo) String() string {
	return fmt.Sprintf("searchkit %s (commit %s, built %s, %s %s)",
		b.Version, b.Commit, b.Date, b.GoVersion, b.Platform)
}
