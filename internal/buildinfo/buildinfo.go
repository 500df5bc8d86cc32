// Package buildinfo reports which SmartPark build is running. The
// variables below are overwritten at link time, for example:
//
//	go build -ldflags "-X github.com/nugget/smartpark/internal/buildinfo.Version=v1.2.0" ./cmd/smartpark
package buildinfo

import (
	"fmt"
	"runtime"
	"time"
)

// Stamped by -ldflags -X.
var (
	Version   = "dev"
	GitCommit = "unknown"
	GitBranch = "unknown"
	BuildTime = "unknown"
)

var started = time.Now()

// Build describes the running controller binary.
type Build struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	GitBranch string `json:"git_branch"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	Uptime    string `json:"uptime"`
}

// Current returns the stamped metadata plus the Go runtime and uptime.
func Current() Build {
	return Build{
		Version:   Version,
		GitCommit: GitCommit,
		GitBranch: GitBranch,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		Uptime:    Uptime().String(),
	}
}

// Fields returns label/value pairs for the version report. Uptime is
// left out; it means nothing for a one-shot command.
func (b Build) Fields() [][2]string {
	return [][2]string{
		{"version", b.Version},
		{"commit", b.GitCommit},
		{"branch", b.GitBranch},
		{"built", b.BuildTime},
		{"go", b.GoVersion},
		{"platform", b.OS + "/" + b.Arch},
	}
}

func (b Build) String() string {
	return fmt.Sprintf("SmartPark %s (%s@%s) built %s", b.Version, b.GitCommit, b.GitBranch, b.BuildTime)
}

// String is the one-line banner for the running build.
func String() string { return Current().String() }

// Uptime is the time since the process started, to the second.
func Uptime() time.Duration {
	return time.Since(started).Truncate(time.Second)
}
