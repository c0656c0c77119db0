package app

import (
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()

	tests := []struct {
		name       string
		configEnv  string
		homeEnv    string
		wantConfig string
		wantBase   string
	}{
		{
			name:       "env vars",
			configEnv:  "/custom/config.toml",
			homeEnv:    "/custom/compsynth",
			wantConfig: "/custom/config.toml",
			wantBase:   "/custom/compsynth",
		},
		{
			name:       "home fallback",
			wantConfig: filepath.Join(home, ".config", "compsynth.toml"),
			wantBase:   filepath.Join(home, ".local", "share", "compsynth"),
		},
		{
			name:       "config env only",
			configEnv:  "/etc/compsynth.toml",
			wantConfig: "/etc/compsynth.toml",
			wantBase:   filepath.Join(home, ".local", "share", "compsynth"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HOME", home)
			t.Setenv("COMPSYNTH_CONFIG_PATH", tt.configEnv)
			t.Setenv("COMPSYNTH_HOME", tt.homeEnv)

			d, err := LoadDefaults()
			if err != nil {
				t.Fatalf("LoadDefaults() error = %v", err)
			}
			if d.ConfigPath != tt.wantConfig {
				t.Errorf("ConfigPath = %q, want %q", d.ConfigPath, tt.wantConfig)
			}
			if d.BaseDir != tt.wantBase {
				t.Errorf("BaseDir = %q, want %q", d.BaseDir, tt.wantBase)
			}
		})
	}
}

func TestLoadDefaults_noHome(t *testing.T) {
	t.Setenv("HOME", "")
	t.Setenv("COMPSYNTH_CONFIG_PATH", "")
	t.Setenv("COMPSYNTH_HOME", "/data/compsynth")

	if _, err := LoadDefaults(); err == nil {
		t.Error("LoadDefaults() expected error without a home directory, got nil")
	}
}
