package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const configFileName = "config.yaml"

type Config struct {
	APIURL   string `yaml:"api_url,omitempty" json:"api_url,omitempty"`
	APIToken string `yaml:"api_token,omitempty" json:"api_token,omitempty"`

	// RequestTimeout is a Go duration string ("10s").
	RequestTimeout string `yaml:"request_timeout,omitempty" json:"request_timeout,omitempty"`

	// Ordering is "last-write" (default) or "strict".
	Ordering string `yaml:"ordering,omitempty" json:"ordering,omitempty"`

	LogLevel string `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	LogFile  string `yaml:"log_file,omitempty" json:"log_file,omitempty"`

	// StateDir overrides where state.sqlite lives. Defaults to the config dir.
	StateDir string `yaml:"state_dir,omitempty" json:"state_dir,omitempty"`

	TUI *TUIConfig `yaml:"tui,omitempty" json:"tui,omitempty"`
}

type TUIConfig struct {
	// Theme is one of: auto|dark|light|ascii.
	Theme string `yaml:"theme,omitempty" json:"theme,omitempty"`
	// HideUpdates starts the TUI with the updates panel collapsed.
	HideUpdates bool `yaml:"hide_updates,omitempty" json:"hide_updates,omitempty"`
}

// Timeout parses RequestTimeout. An empty value yields 0 (use the default).
func (c *Config) Timeout() (time.Duration, error) {
	if c == nil || strings.TrimSpace(c.RequestTimeout) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(c.RequestTimeout))
	if err != nil {
		return 0, fmt.Errorf("request_timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("request_timeout: negative duration %s", d)
	}
	return d, nil
}

func ConfigDir() (string, error) {
	// Test/advanced override (keeps unit tests from touching ~/.pulse).
	if v := strings.TrimSpace(os.Getenv("PULSE_CONFIG_DIR")); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".pulse"), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// LoadConfig reads config.yaml. A missing file is an empty config.
func LoadConfig() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

func SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Keep the previous config around; recovery beats a failed save here.
	if prev, err := os.ReadFile(path); err == nil && len(prev) > 0 {
		_ = atomicWriteFile(dir, "config.yaml.bak.*.tmp", path+".bak", prev, 0o644)
	}

	// The token may live here, so the file is private.
	return atomicWriteFile(dir, "config.yaml.*.tmp", path, b, 0o600)
}

func atomicWriteFile(dir, tmpPattern, path string, b []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	_ = os.Chmod(tmp, perm)
	return os.Rename(tmp, path)
}
