package version

import (
	"strings"
	"testing"
)

// setBuild overrides the ldflags variables for one test.
func setBuild(t *testing.T, version, commit, date string) {
	t.Helper()
	v, c, d := Version, Commit, BuildDate
	t.Cleanup(func() { Version, Commit, BuildDate = v, c, d })
	Version, Commit, BuildDate = version, commit, date
}

func TestInfo(t *testing.T) {
	tests := []struct {
		commit string
		want   string
	}{
		{"unknown", "1.0.0"},
		{"abc", "1.0.0"},
		{"1234567", "1.0.0"},
		{"12345678", "1.0.0 (1234567)"},
		{"abc1234567890", "1.0.0 (abc1234)"},
	}

	for _, tt := range tests {
		t.Run(tt.commit, func(t *testing.T) {
			setBuild(t, "1.0.0", tt.commit, "unknown")
			if got := Info(); got != tt.want {
				t.Errorf("Info() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFull(t *testing.T) {
	setBuild(t, "1.2.3", "deadbeef", "2026-10-16")

	got := Full()
	lines := strings.Split(got, "\n")
	want := []string{
		"finledger version 1.2.3",
		"Commit: deadbeef",
		"Built: 2026-10-16",
		"Export format: " + ExportFormat,
	}
	if len(lines) != len(want) {
		t.Fatalf("Full() = %q, want %d lines", got, len(want))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestExportFormat(t *testing.T) {
	// backups written by older builds carry this string; changing it breaks import
	if ExportFormat != "1.0" {
		t.Errorf("ExportFormat = %q", ExportFormat)
	}
}
