// Package paths resolves voicenav's on-disk locations.
// This package has NO internal imports (only stdlib) to avoid import cycles.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// dirName is the per-user data directory under $HOME
const dirName = ".voicenav"

// configNames are tried in order, first in the working directory and then in
// the base directory
var configNames = []string{"voicenav.json", "voicenav.toml", "voicenav.yaml", "voicenav.yml"}

// BaseDir returns the voicenav base directory (~/.voicenav).
func BaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, dirName), nil
}

// DataPath returns a path within the base directory (~/.voicenav/<subpath>).
func DataPath(subpath string) (string, error) {
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, subpath), nil
}

// ConfigCandidates lists where a config file is looked for, local files first.
// The base directory entries are left out when $HOME is unknown.
func ConfigCandidates() []string {
	out := append([]string(nil), configNames...)
	base, err := BaseDir()
	if err != nil {
		return out
	}
	for _, name := range configNames {
		out = append(out, filepath.Join(base, name))
	}
	return out
}

// ExpandTilde expands a path that starts with ~ to the user's home directory.
// Returns the path unchanged if it doesn't start with ~.
func ExpandTilde(path string) (string, error) {
	if len(path) == 0 || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	if len(path) == 1 {
		return home, nil
	}
	return filepath.Join(home, path[1:]), nil
}
