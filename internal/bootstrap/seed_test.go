package bootstrap

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEnsureConfigSeedsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")

	created, err := EnsureConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("first run should create the config")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "chat_model") {
		t.Errorf("template content missing: %s", content)
	}

	// A second run must not touch the existing file.
	if err := os.WriteFile(path, []byte("{custom: true}"), 0o600); err != nil {
		t.Fatal(err)
	}
	created, err = EnsureConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("existing config overwritten")
	}
	content, _ = os.ReadFile(path)
	if string(content) != "{custom: true}" {
		t.Errorf("config = %s, want untouched", content)
	}
}

func TestEnsureDataDirs(t *testing.T) {
	base := t.TempDir()
	media := filepath.Join(base, "data", "media")
	wa := filepath.Join(base, "data", "whatsapp")

	if err := EnsureDataDirs(media, wa, ""); err != nil {
		t.Fatal(err)
	}
	for _, dir := range []string{media, wa} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("dir %s not created: %v", dir, err)
		}
	}
}
