// Package version exposes build version information. The variables are
// injected at build time via -ldflags; sensible fallbacks come from the
// Go module build info when building without the release script.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"golang.org/x/mod/semver"
)

// Set via -ldflags at build time.
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Short returns the bare version string, e.g. "1.2.0" or "dev".
func Short() string {
	return normalized()
}

// Info returns a human-readable version line including commit and build date.
func Info() string {
	v := normalized()
	commit := Commit
	date := Date

	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if date == "" {
					date = s.Value
				}
			}
		}
	}

	if len(commit) > 12 {
		commit = commit[:12]
	}

	out := fmt.Sprintf("hashfleet %s", v)
	if commit != "" {
		out += fmt.Sprintf(" (%s)", commit)
	}
	if date != "" {
		out += " built " + date
	}
	return out + " " + runtime.Version()
}

// Map returns the build version details as a string map for JSON responses.
func Map() map[string]string {
	return map[string]string{
		"version": Short(),
		"commit":  Commit,
		"date":    Date,
	}
}

// IsNewer reports whether other is a strictly newer semantic version than
// the running build. A dev build is never outdated.
func IsNewer(other string) bool {
	v := normalized()
	if v == "dev" {
		return false
	}
	return semver.Compare(withV(other), withV(v)) > 0
}

// normalized strips the leading "v" release tags carry.
func normalized() string {
	if len(Version) > 1 && Version[0] == 'v' && semver.IsValid(Version) {
		return Version[1:]
	}
	return Version
}

func withV(s string) string {
	if s == "" || s[0] == 'v' {
		return s
	}
	return "v" + s
}
