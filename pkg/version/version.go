// Package version carries the build metadata stamped into the binary.
package version

import "runtime/debug"

// Build metadata, overridden at link time via
// -ldflags "-X github.com/Sumatoshi-tech/newsfang/pkg/version.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// InitBinaryVersion backfills the metadata from the embedded build info
// when the linker did not stamp it, so `go install` builds still report
// something useful.
func InitBinaryVersion() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if Commit == "none" {
				Commit = setting.Value
			}
		case "vcs.time":
			if Date == "unknown" {
				Date = setting.Value
			}
		}
	}
}
