// Package version reports the build of the running binary.
package version

import (
	"fmt"
	"runtime/debug"
)

// Set at build time via -ldflags "-X ...". Commit falls back to the VCS
// stamp recorded by the Go toolchain.
var (
	Version   = "dev"
	Commit    = ""
	BuildTime = "unknown"
)

// String returns "fieldstore <version> (commit: <short>, built: <time>)".
func String() string {
	return fmt.Sprintf("fieldstore %s (commit: %s, built: %s)", Version, shortCommit(commit()), BuildTime)
}

func commit() string {
	if Commit != "" {
		return Commit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	rev, dirty := "", false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if rev == "" {
		return "unknown"
	}
	if dirty {
		return shortCommit(rev) + "-dirty"
	}
	return rev
}

func shortCommit(c string) string {
	if len(c) > 7 && c[7] != '-' {
		return c[:7]
	}
	return c
}
