// Package version carries build metadata.
package version

import "runtime/debug"

// Set with -ldflags "-X github.com/MeKo-Tech/evalocr/internal/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns version, commit and build date. Binaries built with go
// install fall back to the module version and VCS stamp.
func Info() (string, string, string) {
	v, commit, date := Version, GitCommit, BuildDate
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return v, commit, date
	}
	if v == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		v = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch {
		case s.Key == "vcs.revision" && commit == "unknown":
			commit = s.Value
		case s.Key == "vcs.time" && date == "unknown":
			date = s.Value
		}
	}
	return v, commit, date
}

// UserAgent identifies the process to asset mirrors.
func UserAgent() string {
	v, _, _ := Info()
	return "evalocr/" + v
}
