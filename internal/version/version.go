package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

const devVersion = "0.1.0-dev"

// Overridden at release time with -ldflags "-X".
var (
	AppName   = "BackupSync"
	Version   = devVersion
	Revision  = "HEAD"
	BuildDate = ""
)

// fillFromBuildInfo fills the values the linker did not set from the module
// version and the vcs stamp of the binary.
func fillFromBuildInfo(mainVersion string, settings map[string]string) {
	if Version == devVersion || Version == "" {
		if mainVersion != "" && mainVersion != "(devel)" {
			Version = strings.TrimPrefix(mainVersion, "v")
		}
	}

	if Revision == "HEAD" || Revision == "" {
		if rev := settings["vcs.revision"]; rev != "" {
			if len(rev) > 12 {
				rev = rev[:12]
			}
			if settings["vcs.modified"] == "true" {
				rev += "-dirty"
			}
			Revision = rev
		}
	}

	if BuildDate == "" {
		BuildDate = settings["vcs.time"]
	}
	if BuildDate == "" {
		BuildDate = "unknown"
	}
}

// Short returns `0.1.0 (5e23a4)`.
func Short() string {
	return fmt.Sprintf("%s (%s)", Version, Revision)
}

// Detailed returns `BackupSync 0.1.0 (5e23a4; go1.23.6; linux/amd64; 2025-01-01T00:00:00Z)`.
func Detailed() string {
	return fmt.Sprintf("%s %s (%s; %s; %s/%s; %s)",
		AppName, Version, Revision, runtime.Version(), runtime.GOOS, runtime.GOARCH, BuildDate)
}

func init() {
	settings := map[string]string{}
	mainVersion := ""
	if info, ok := debug.ReadBuildInfo(); ok && info != nil {
		mainVersion = info.Main.Version
		for _, s := range info.Settings {
			settings[s.Key] = s.Value
		}
	}
	fillFromBuildInfo(mainVersion, settings)
}
