package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Defaults are the locations compsynth uses when the config does not say otherwise.
type Defaults struct {
	ConfigPath string // COMPSYNTH_CONFIG_PATH, else ~/.config/compsynth.toml
	BaseDir    string // COMPSYNTH_HOME, else ~/.local/share/compsynth
}

// LoadDefaults resolves Defaults from the environment and the home directory.
func LoadDefaults() (Defaults, error) {
	configPath, err := envOrHome("COMPSYNTH_CONFIG_PATH", ".config", "compsynth.toml")
	if err != nil {
		return Defaults{}, err
	}
	baseDir, err := envOrHome("COMPSYNTH_HOME", ".local", "share", "compsynth")
	if err != nil {
		return Defaults{}, err
	}
	return Defaults{ConfigPath: configPath, BaseDir: baseDir}, nil
}

// envOrHome returns $key when set and ~/elem... otherwise.
func envOrHome(key string, elem ...string) (string, error) {
	if v := os.Getenv(key); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for %s: %w", key, err)
	}
	return filepath.Join(append([]string{home}, elem...)...), nil
}
