// Package buildinfo provides build version and metadata information.
package buildinfo

import "runtime/debug"

// Version metadata is injected at build time via ldflags. When left empty,
// Commit and Date fall back to the VCS stamp recorded by the Go toolchain.
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

var readBuildInfo = debug.ReadBuildInfo

// Summary returns a human-readable version summary string, for example
// "v1.2.0 (abc1234 2026-01-02T15:04:05Z)".
func Summary() string {
	version := Version
	if version == "" {
		version = "dev"
	}
	commit, date := Commit, Date
	if commit == "" && date == "" {
		commit, date = vcsStamp()
	}

	switch {
	case commit != "" && date != "":
		return version + " (" + commit + " " + date + ")"
	case commit != "":
		return version + " (" + commit + ")"
	case date != "":
		return version + " (" + date + ")"
	default:
		return version
	}
}

func vcsStamp() (commit, date string) {
	info, ok := readBuildInfo()
	if !ok {
		return "", ""
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			commit = s.Value
			if len(commit) > 7 {
				commit = commit[:7]
			}
		case "vcs.time":
			date = s.Value
		}
	}
	return commit, date
}
