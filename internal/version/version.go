// Package version reports the build of the running binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Stamped at release time with
//
//	-ldflags "-X github.com/soyeahso/roster/internal/version.Version=1.0.0 ..."
//
// for Version, Commit and Date.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info describes the build on one line.
func Info() string {
	commit, date := Commit, Date
	if commit == "unknown" {
		commit, date = fromBuildInfo(commit, date)
	}
	return fmt.Sprintf("roster %s (commit: %s, built: %s, %s/%s)",
		Version, short(commit), date, runtime.GOOS, runtime.GOARCH)
}

// Short returns the first seven characters of Commit.
func Short() string { return short(Commit) }

// fromBuildInfo falls back to the VCS stamp the go tool embeds in
// unreleased builds.
func fromBuildInfo(commit, date string) (string, string) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return commit, date
	}
	return vcsStamp(bi.Settings, commit, date)
}

func vcsStamp(settings []debug.BuildSetting, commit, date string) (string, string) {
	dirty := false
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			commit = s.Value
		case "vcs.time":
			date = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if dirty {
		commit = short(commit) + "+dirty"
	}
	return commit, date
}

func short(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}
