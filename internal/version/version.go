// Package version reports which docqa build is running. Release builds set
// the variables with -ldflags:
//
//	go build -ldflags="-X github.com/54b3r/docqa-go/internal/version.Version=v0.3.0 \
//	                    -X github.com/54b3r/docqa-go/internal/version.Commit=abc1234 \
//	                    -X github.com/54b3r/docqa-go/internal/version.BuildDate=2026-01-01"
//
// Other builds fall back to the VCS stamp the Go toolchain embeds.
package version

import (
	"runtime/debug"
	"sync"
)

// Set by -ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

var stampOnce sync.Once

// stamp fills Commit and BuildDate from the embedded build info when the
// linker left them at their defaults.
func stamp() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	applyBuildSettings(info.Settings)
}

func applyBuildSettings(settings []debug.BuildSetting) {
	dirty := false
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if Commit == "unknown" && s.Value != "" {
				Commit = s.Value[:min(len(s.Value), 7)]
			}
		case "vcs.time":
			if BuildDate == "unknown" && s.Value != "" {
				BuildDate = s.Value
			}
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if dirty && Commit != "unknown" {
		Commit += "-dirty"
	}
}

// String returns the one-line version banner printed by `docqa version`.
func String() string {
	stampOnce.Do(stamp)
	return Version + " (commit: " + Commit + ", built: " + BuildDate + ")"
}
