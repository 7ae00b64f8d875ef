package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Profile is the saved database connection. The password is never stored.
type Profile struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Table    string `yaml:"table,omitempty"`
}

// ProfilePath returns where the profile lives for a given base directory.
func ProfilePath(baseDir string) string {
	return filepath.Join(baseDir, "Scripts", "dados", "connection.yaml")
}

// ProfileFrom captures the connection fields of cfg.
func ProfileFrom(cfg *Config) *Profile {
	return &Profile{
		Host:     cfg.PostgresHost,
		Port:     cfg.PostgresPort,
		Database: cfg.PostgresDB,
		User:     cfg.PostgresUser,
		Table:    cfg.PostgresTable,
	}
}

// Validate checks the fields an operator must supply.
func (p *Profile) Validate() error {
	var errs []error
	if p.Host == "" {
		errs = append(errs, errors.New("host is required"))
	}
	if p.Database == "" {
		errs = append(errs, errors.New("database is required"))
	}
	if p.User == "" {
		errs = append(errs, errors.New("user is required"))
	}
	if n, err := strconv.Atoi(p.Port); err != nil || n <= 0 || n > 65535 {
		errs = append(errs, fmt.Errorf("port %q must be a number between 1 and 65535", p.Port))
	}
	return errors.Join(errs...)
}

// LoadProfile reads the profile at path. A missing file yields an empty profile.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Profile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read profile: %w", err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("config: parse profile %q: %w", path, err)
	}
	return &p, nil
}

// SaveProfile validates p and writes it to path.
func SaveProfile(path string, p *Profile) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("config: invalid profile: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("config: create profile dir: %w", err)
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("config: encode profile: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}
