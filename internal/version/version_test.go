package version

import (
	"runtime"
	"testing"
)

func TestInfo(t *testing.T) {
	defer func(v, sha string) { Version, GitSHA = v, sha }(Version, GitSHA)
	Version, GitSHA = "1.2.0", "abc123"

	info := Info()
	if info.Version != "1.2.0" || info.GitSHA != "abc123" || info.GoVersion != runtime.Version() {
		t.Errorf("Info() = %+v", info)
	}
	want := "bandlink 1.2.0 (abc123, built unknown, " + runtime.Version() + ")"
	if info.String() != want {
		t.Errorf("String() = %q, want %q", info.String(), want)
	}
}
