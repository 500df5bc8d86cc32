package buildinfo

import (
	"encoding/json"
	"runtime"
	"strings"
	"testing"
)

func TestCurrent_Stamped(t *testing.T) {
	old := Version
	Version = "v9.9.9"
	t.Cleanup(func() { Version = old })

	b := Current()
	if b.Version != "v9.9.9" {
		t.Errorf("Version = %q, want v9.9.9", b.Version)
	}
	if b.GoVersion != runtime.Version() || b.OS != runtime.GOOS || b.Arch != runtime.GOARCH {
		t.Errorf("runtime fields = %q %q %q", b.GoVersion, b.OS, b.Arch)
	}
	if !strings.HasPrefix(String(), "SmartPark v9.9.9 ") {
		t.Errorf("String() = %q", String())
	}
}

func TestBuild_Fields(t *testing.T) {
	b := Build{Version: "v1", GitCommit: "abc", GitBranch: "main", BuildTime: "now", GoVersion: "go1.24", OS: "linux", Arch: "arm64"}

	var labels []string
	for _, f := range b.Fields() {
		labels = append(labels, f[0])
	}
	if got := strings.Join(labels, ","); got != "version,commit,branch,built,go,platform" {
		t.Errorf("labels = %s", got)
	}
	if last := b.Fields()[5][1]; last != "linux/arm64" {
		t.Errorf("platform = %q, want linux/arm64", last)
	}
}

func TestBuild_JSONKeys(t *testing.T) {
	data, err := json.Marshal(Current())
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch", "uptime"} {
		if _, ok := m[k]; !ok {
			t.Errorf("JSON missing %q: %s", k, data)
		}
	}
}
