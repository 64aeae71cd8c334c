package paths

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGetHome(t *testing.T) {
	originalEnv := os.Getenv(HomeEnvVar)
	t.Cleanup(func() { _ = os.Setenv(HomeEnvVar, originalEnv) })

	customHome := "/custom/finledger/home"
	_ = os.Setenv(HomeEnvVar, customHome)

	home, err := GetHome("")
	if err != nil {
		t.Fatalf("GetHome failed: %v", err)
	}
	if home != customHome {
		t.Errorf("Expected %s, got %s", customHome, home)
	}

	// Explicit override wins over the environment
	home, err = GetHome("/explicit")
	if err != nil {
		t.Fatalf("GetHome failed: %v", err)
	}
	if home != "/explicit" {
		t.Errorf("Expected /explicit, got %s", home)
	}

	_ = os.Unsetenv(HomeEnvVar)

	home, err = GetHome("")
	if err != nil {
		t.Fatalf("GetHome failed: %v", err)
	}
	if !strings.HasSuffix(home, DefaultHome) {
		t.Errorf("Expected path to end with %s, got %s", DefaultHome, home)
	}
}

func TestExpandHome(t *testing.T) {
	userHome, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		in   string
		want string
	}{
		{"~", userHome},
		{"~/data", filepath.Join(userHome, "data")},
		{"/abs/path", "/abs/path"},
		{"rel/~", "rel/~"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ExpandHome(tt.in)
			if err != nil {
				t.Fatalf("ExpandHome(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ExpandHome(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDatabasePath(t *testing.T) {
	dataDir := filepath.Join("/data", "fl")

	tests := []struct {
		name       string
		configured string
		want       string
	}{
		{"default", "", filepath.Join(dataDir, DatabaseFile)},
		{"relative", "alt.db", filepath.Join(dataDir, "alt.db")},
		{"absolute", "/var/lib/fl.db", "/var/lib/fl.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DatabasePath(dataDir, tt.configured); got != tt.want {
				t.Errorf("DatabasePath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")

	got, err := EnsureDir(dir)
	if err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}
	if got != dir {
		t.Errorf("EnsureDir() = %q, want %q", got, dir)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("expected directory at %s", dir)
	}
}
