package version

import (
	"fmt"
	"runtime/debug"
)

var (
	// Version is the current version of the application.
	// It is intended to be set at build time using -ldflags.
	// Falls back to the module version embedded by go install.
	Version = "dev"

	// Commit is the VCS revision, when the build recorded one.
	Commit = ""
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}
	if Commit == "" {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && len(s.Value) >= 12 {
				Commit = s.Value[:12]
			}
		}
	}
}

// String returns the version with the short commit, if known.
func String() string {
	if Commit == "" {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, Commit)
}
