package config

import (
	"errors"
	"fmt"
)

// Validate checks all configuration values and returns every error found,
// joined, so users see a complete report in one pass rather than fixing
// one field at a time.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateSystem(&cfg.System)...)
	errs = append(errs, validateRomm(&cfg.Romm)...)

	return errors.Join(errs...)
}

func validateSystem(s *SystemConfig) []error {
	var errs []error

	if len(s.Saves) == 0 {
		errs = append(errs, errors.New("system.saves: must not be empty"))
	}

	if s.Database == "" {
		errs = append(errs, errors.New("system.database: must not be empty"))
	}

	if s.PollInterval == "" {
		errs = append(errs, errors.New("system.poll_interval: must not be empty"))
	} else if _, err := ParseDuration(s.PollInterval); err != nil {
		errs = append(errs, fmt.Errorf("system.poll_interval: %w", err))
	}

	return errs
}

func validateRomm(r *RommConfig) []error {
	var errs []error

	if r.URL == "" {
		errs = append(errs, errors.New("romm.url: must not be empty"))
	}
	if r.APIKey == "" {
		errs = append(errs, errors.New("romm.api_key: must not be empty"))
	}

	return errs
}
