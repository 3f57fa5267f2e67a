package version

import (
	"fmt"
	"runtime"
)

// Build information, set at build time via ldflags.
var (
	// CommitHash is the git commit the binary was built from.
	CommitHash = "dev"

	// BuildTime is when the binary was built.
	BuildTime = "unknown"

	// Version is the semantic version, when tagged.
	Version = "dev"
)

// Info bundles version and build details for the API and the banner.
type Info struct {
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	Version    string `json:"version"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

// Get returns the current version information.
func Get() Info {
	return Info{
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		Version:    Version,
		GoVersion:  runtime.Version(),
		Platform:   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String returns the human-readable version line.
func String() string {
	i := Get()
	return fmt.Sprintf("carouseld %s (commit %s, built %s)", i.Version, i.CommitHash, i.BuildTime)
}
