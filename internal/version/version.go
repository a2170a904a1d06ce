// Package version reports the build the running binaries came from.
package version

import (
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X collegefeedback/internal/version.Version=..." at build time
var (
	Version   = "dev"
	Commit    = "dev"
	BuildTime = "unknown"
)

// Info describes one build of a binary
type Info struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	Modified  bool   `json:"modified,omitempty"`
}

// readBuildInfo is replaced in tests
var readBuildInfo = debug.ReadBuildInfo

// Get returns the build info for service. When the linker flags were not
// set, the commit and time recorded by the go toolchain's VCS stamping are used.
func Get(service string) Info {
	info := Info{
		Service:   service,
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}

	bi, ok := readBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "dev" && s.Value != "" {
				info.Commit = s.Value
				if len(info.Commit) > 12 {
					info.Commit = info.Commit[:12]
				}
			}
		case "vcs.time":
			if info.BuildTime == "unknown" && s.Value != "" {
				info.BuildTime = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

// String renders the info on one line for CLI output
func (i Info) String() string {
	s := i.Service + " " + i.Version + " (" + i.Commit + ", built " + i.BuildTime + ", " + i.GoVersion
	if i.Modified {
		s += ", modified"
	}
	return s + ")"
}
