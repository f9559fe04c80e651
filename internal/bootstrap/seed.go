// Package bootstrap seeds first-run workspace files: a starter config
// and the data directories the adapters write into.
package bootstrap

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
)

//go:embed templates/config.json5
var templateFS embed.FS

// EnsureConfig writes the starter config template when no config file
// exists yet. Never overwrites. Returns true when the file was created.
func EnsureConfig(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}

	content, err := templateFS.ReadFile("templates/config.json5")
	if err != nil {
		return false, fmt.Errorf("read config template: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, err
		}
	}
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return false, err
	}
	return true, nil
}

// EnsureDataDirs creates the directories adapters persist into.
func EnsureDataDirs(dirs ...string) error {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir %s: %w", dir, err)
		}
	}
	return nil
}
