package appdirs

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func assertPrivateDir(t *testing.T, dir string) {
	t.Helper()
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat %s failed: %v", dir, err)
	}
	if !info.IsDir() {
		t.Fatalf("expected %s to be a directory", dir)
	}
	if perms := info.Mode().Perm(); perms&0o077 != 0 {
		t.Fatalf("expected private permissions on %s, got %o", dir, perms)
	}
}

func TestEnsureConfigDirUsesPrivatePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not portable on windows")
	}
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", "")

	dir, err := EnsureConfigDir()
	if err != nil {
		t.Fatalf("EnsureConfigDir failed: %v", err)
	}
	assertPrivateDir(t, dir)
}

func TestEnsurePlansDirCreatesStateTree(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not portable on windows")
	}
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_STATE_HOME", "")

	dir, err := EnsurePlansDir()
	if err != nil {
		t.Fatalf("EnsurePlansDir failed: %v", err)
	}
	assertPrivateDir(t, dir)
	assertPrivateDir(t, filepath.Dir(dir))
}

func TestXDGOverridesAreHonoured(t *testing.T) {
	if runtime.GOOS == "darwin" || runtime.GOOS == "windows" {
		t.Skip("xdg variables only apply on unix-like systems")
	}
	cfg := t.TempDir()
	state := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", cfg)
	t.Setenv("XDG_STATE_HOME", state)

	rules, err := RulesFilePath()
	if err != nil {
		t.Fatalf("RulesFilePath failed: %v", err)
	}
	if want := filepath.Join(cfg, AppName, "rules.yaml"); rules != want {
		t.Fatalf("rules path = %q, want %q", rules, want)
	}

	kb, err := KnowledgeFilePath()
	if err != nil {
		t.Fatalf("KnowledgeFilePath failed: %v", err)
	}
	if want := filepath.Join(state, AppName, "state", "knowledge.json"); kb != want {
		t.Fatalf("knowledge path = %q, want %q", kb, want)
	}
}
