// Package version contains build version information.
package version

// Version, GitCommit and BuildDate are set at build time via
// -ldflags "-X github.com/juntavecinos/notifier/internal/version.Version=...".
var (
	Version   = "0.0.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info is served by GET /version.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
}

// Get returns the current build information.
func Get() Info {
	return Info{Version: Version, GitCommit: GitCommit, BuildDate: BuildDate}
}
