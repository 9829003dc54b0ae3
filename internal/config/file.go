package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the optional YAML overlay for schedules and screener seeds
type FileConfig struct {
	Timezone  string           `yaml:"timezone"`
	Schedules []ScheduleConfig `yaml:"schedules"`
	Screeners []ScreenerSeed   `yaml:"screeners"`
}

// ScheduleConfig overrides the cron expression or enabled state of a named schedule
type ScheduleConfig struct {
	Name    string `yaml:"name"`
	Cron    string `yaml:"cron"`
	Enabled *bool  `yaml:"enabled"`
}

// ScreenerSeed describes a screener to create in the database when missing
type ScreenerSeed struct {
	ScanName    string `yaml:"scan_name"`
	Source      string `yaml:"source"`
	URL         string `yaml:"url"`
	Description string `yaml:"description"`
}

// LoadFile reads the YAML overlay. A missing path yields an empty overlay.
func LoadFile(path string) (*FileConfig, error) {
	fc := &FileConfig{}
	if path == "" {
		return fc, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fc, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(b, fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	for i, s := range fc.Screeners {
		if s.ScanName == "" || s.URL == "" {
			return nil, fmt.Errorf("screener #%d in %s needs scan_name and url", i+1, path)
		}
		if s.Source != "chartink" && s.Source != "screenerin" {
			return nil, fmt.Errorf("screener %q has unknown source %q", s.ScanName, s.Source)
		}
	}

	return fc, nil
}

// Schedule returns the override for name, if any
func (fc *FileConfig) Schedule(name string) (ScheduleConfig, bool) {
	for _, s := range fc.Schedules {
		if s.Name == name {
			return s, true
		}
	}
	return ScheduleConfig{}, false
}
