package version

import "fmt"

// Injected at build time via -ldflags "-X frameworks/crowsnest/pkg/version.Version=..."
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// ServiceName is the component name reported by health, metrics and the CLI
const ServiceName = "crowsnest"

// Info represents version information for a binary
type Info struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
}

// GetInfo returns version information as a struct
func GetInfo() Info {
	return Info{
		Service:   ServiceName,
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
	}
}

// GetShortCommit returns the short git commit hash (first 7 characters)
func GetShortCommit() string {
	if len(GitCommit) >= 7 {
		return GitCommit[:7]
	}
	return GitCommit
}

// String renders a one-line banner, e.g. "crowsnest dev (abcdef1)"
func String() string {
	return fmt.Sprintf("%s %s (%s)", ServiceName, Version, GetShortCommit())
}
