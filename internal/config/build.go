package config

// Set with -ldflags, e.g.
//
//	go build -ldflags "-X pawtrail/internal/config.version=1.4.0 -X pawtrail/internal/config.commit=$(git rev-parse --short HEAD)"
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo returns the values injected at link time with -ldflags -X.
// Without them the version reads "dev", the commit "none" and the build
// time "unknown".
func NewBuildInfo() BuildInfo {
	return BuildInfo{Version: version, Commit: commit, BuildTime: buildTime}
}
