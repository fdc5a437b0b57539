// Package appdirs resolves where cortana keeps its config and state on disk.
package appdirs

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const AppName = "cortana"

const (
	configFileName    = "config.toml"
	rulesFileName     = "rules.yaml"
	knowledgeFileName = "knowledge.json"
	journalFileName   = "journal.jsonl"
	logFileName       = "cortana.log"
	plansDirName      = "plans"
)

type baseKind int

const (
	baseConfig baseKind = iota
	baseState
)

// baseDir picks the platform root for config or state. On macOS both live
// under Application Support; elsewhere XDG variables win when set.
func baseDir(kind baseKind) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not resolve home directory: %w", err)
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support"), nil
	case "windows":
		env, fallback := "APPDATA", filepath.Join(home, "AppData", "Roaming")
		if kind == baseState {
			env, fallback = "LOCALAPPDATA", filepath.Join(home, "AppData", "Local")
		}
		if v := os.Getenv(env); v != "" {
			return v, nil
		}
		return fallback, nil
	default:
		env, fallback := "XDG_CONFIG_HOME", filepath.Join(home, ".config")
		if kind == baseState {
			env, fallback = "XDG_STATE_HOME", filepath.Join(home, ".local", "state")
		}
		if v := os.Getenv(env); v != "" {
			return v, nil
		}
		return fallback, nil
	}
}

func ConfigDir() (string, error) {
	base, err := baseDir(baseConfig)
	if err != nil {
		return "", err
	}
	return filepath.Join(base, AppName), nil
}

func StateDir() (string, error) {
	base, err := baseDir(baseState)
	if err != nil {
		return "", err
	}
	return filepath.Join(base, AppName, "state"), nil
}

func EnsureConfigDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return ensurePrivateDir(dir, "config")
}

func EnsureStateDir() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return ensurePrivateDir(dir, "state")
}

// EnsurePlansDir creates the directory holding one JSON file per plan.
func EnsurePlansDir() (string, error) {
	dir, err := EnsureStateDir()
	if err != nil {
		return "", err
	}
	return ensurePrivateDir(filepath.Join(dir, plansDirName), "plans")
}

func ensurePrivateDir(dir, label string) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("could not create %s dir: %w", label, err)
	}
	if err := os.Chmod(dir, 0o700); err != nil {
		return "", fmt.Errorf("could not secure %s dir permissions: %w", label, err)
	}
	return dir, nil
}

func ConfigFilePath() (string, error) { return configFile(configFileName) }

func RulesFilePath() (string, error) { return configFile(rulesFileName) }

func KnowledgeFilePath() (string, error) { return StateFilePath(knowledgeFileName) }

func JournalFilePath() (string, error) { return StateFilePath(journalFileName) }

func LogFilePath() (string, error) { return StateFilePath(logFileName) }

func PlansDir() (string, error) { return StateFilePath(plansDirName) }

func configFile(name string) (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func StateFilePath(name string) (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
