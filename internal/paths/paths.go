package paths

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	// HomeEnvVar overrides the default data directory
	HomeEnvVar = "FINLEDGER_HOME"
	// DefaultHome is the data directory name under the user's home
	DefaultHome = ".finledger"
	// DatabaseFile is the embedded store file name
	DatabaseFile = "finledger.db"
	// ConfigFile is the config file name inside the data directory
	ConfigFile = "config.json"
	// RetentionFile is the declarative retention policy file name
	RetentionFile = "retention.toml"
)

// GetHome resolves the data directory.
// Precedence: explicit override > FINLEDGER_HOME > ~/.finledger
func GetHome(override string) (string, error) {
	if override != "" {
		return ExpandHome(override)
	}
	if env := os.Getenv(HomeEnvVar); env != "" {
		return ExpandHome(env)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultHome), nil
}

// ExpandHome replaces a leading ~ with the user's home directory
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// DatabasePath returns the store path inside dataDir, unless configured is set.
// A relative configured path is resolved against dataDir.
func DatabasePath(dataDir, configured string) string {
	if configured == "" {
		return filepath.Join(dataDir, DatabaseFile)
	}
	if filepath.IsAbs(configured) {
		return configured
	}
	return filepath.Join(dataDir, configured)
}

// LogsDir returns <dataDir>/logs
func LogsDir(dataDir string) string {
	return filepath.Join(dataDir, "logs")
}

// LogPath returns the CLI log file path
func LogPath(dataDir string) string {
	return filepath.Join(LogsDir(dataDir), "finledger.log")
}

// BackupsDir returns <dataDir>/backups
func BackupsDir(dataDir string) string {
	return filepath.Join(dataDir, "backups")
}

// RetentionPath returns the retention policy file path
func RetentionPath(dataDir string) string {
	return filepath.Join(dataDir, RetentionFile)
}

// EnsureDir creates dir (and parents) if missing and returns it
func EnsureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}
