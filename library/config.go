package library

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Defaults match the rules the library has always run with: a 30-day loan
// period and a 2000-per-day late fine.
const (
	defaultDataDir    = "data"
	defaultLoanDays   = 30
	defaultFinePerDay = 2000
)

// Config is the application configuration, loaded from a small yaml file.
type Config struct {
	DataDir    string `yaml:"data_dir"`
	LoanDays   int    `yaml:"loan_days"`
	FinePerDay int64  `yaml:"fine_per_day"`

	// Quotas optionally overrides the per-role active-loan limits, keyed
	// by lowercase role name ("student", "professor", "staff").
	Quotas map[string]int `yaml:"quotas"`
}

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		DataDir:    defaultDataDir,
		LoanDays:   defaultLoanDays,
		FinePerDay: defaultFinePerDay,
	}
}

// LoadConfig reads the yaml config at path. A missing file yields the
// defaults, not an error; an unreadable or unparseable file is an error.
func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
	}
	if cfg.LoanDays <= 0 {
		cfg.LoanDays = defaultLoanDays
	}
	if cfg.FinePerDay <= 0 {
		cfg.FinePerDay = defaultFinePerDay
	}
	return cfg, nil
}

// QuotaFor returns the active-loan limit for a role, honoring any override
// from the config file.
func (c *Config) QuotaFor(r Role) int {
	if c.Quotas != nil {
		var key string
		switch r {
		case RoleStudent:
			key = "student"
		case RoleProfessor:
			key = "professor"
		case RoleStaffAdmin:
			key = "staff"
		}
		if q, ok := c.Quotas[key]; ok && q >= 0 {
			return q
		}
	}
	return r.maxActiveLoans()
}
