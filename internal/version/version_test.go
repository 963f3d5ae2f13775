package version

import "testing"

func TestString(t *testing.T) {
	oldVersion, oldCommit, oldDate := Version, GitCommit, BuildDate
	t.Cleanup(func() { Version, GitCommit, BuildDate = oldVersion, oldCommit, oldDate })

	Version, GitCommit, BuildDate = "1.2.3", "abc123", "2026-01-01"

	if got, want := String(), "1.2.3 (commit: abc123, built: 2026-01-01)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	v, c, d := Info()
	if v != "1.2.3" || c != "abc123" || d != "2026-01-01" {
		t.Errorf("Info() = %q, %q, %q", v, c, d)
	}
}
