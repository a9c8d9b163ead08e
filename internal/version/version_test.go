package version

import (
	"strings"
	"testing"
)

func TestInfoPrefersLinkerValues(t *testing.T) {
	oldV, oldC, oldD := Version, GitCommit, BuildDate
	t.Cleanup(func() { Version, GitCommit, BuildDate = oldV, oldC, oldD })

	Version, GitCommit, BuildDate = "v1.2.3", "abc123", "2026-01-02"
	v, c, d := Info()
	if v != "v1.2.3" || c != "abc123" || d != "2026-01-02" {
		t.Fatalf("Info() = %q, %q, %q", v, c, d)
	}
	if got := UserAgent(); got != "evalocr/v1.2.3" {
		t.Errorf("UserAgent() = %q", got)
	}
}

func TestUserAgentPrefix(t *testing.T) {
	if !strings.HasPrefix(UserAgent(), "evalocr/") {
		t.Errorf("UserAgent() = %q", UserAgent())
	}
}
