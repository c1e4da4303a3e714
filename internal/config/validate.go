package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Validate checks everything that would otherwise only fail mid-run.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Pontta.BaseURL) == "" {
		errs = append(errs, errors.New("pontta.base_url is required"))
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "sqlite", "sqlite3", "postgres", "pg":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			errs = append(errs, errors.New("storage.dsn is required"))
		}
	case "":
		errs = append(errs, errors.New("storage.driver is required"))
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}

	if _, err := time.LoadLocation(c.Jobs.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("jobs.timezone: %w", err))
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	for i, spec := range c.Jobs.Schedules {
		if _, err := parser.Parse(spec); err != nil {
			errs = append(errs, fmt.Errorf("jobs.schedules[%d]: %w", i, err))
		}
	}
	if s := strings.TrimSpace(c.Jobs.TestSchedule); s != "" {
		if _, err := parser.Parse(s); err != nil {
			errs = append(errs, fmt.Errorf("jobs.test_schedule: %w", err))
		}
	}

	for _, field := range []struct{ path, raw string }{
		{"jobs.order_delay", c.Jobs.OrderDelay},
		{"jobs.env_delay", c.Jobs.EnvDelay},
		{"pontta.timeout", c.Pontta.Timeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
	} {
		if _, err := ParseDurationField(field.path, field.raw); err != nil {
			errs = append(errs, err)
		}
	}

	if len(c.Roster) == 0 {
		errs = append(errs, errors.New("roster: at least one designer is required"))
	}
	seen := make(map[string]bool, len(c.Roster))
	for i, d := range c.Roster {
		if _, err := uuid.Parse(d.ID); err != nil {
			errs = append(errs, fmt.Errorf("roster[%d].id: %w", i, err))
			continue
		}
		if seen[d.ID] {
			errs = append(errs, fmt.Errorf("roster[%d].id: duplicate %s", i, d.ID))
		}
		seen[d.ID] = true
		if strings.TrimSpace(d.Name) == "" {
			errs = append(errs, fmt.Errorf("roster[%d].name is required", i))
		}
	}

	if s := c.Rotation.SecondaryInitial; s != "" {
		found := false
		for _, d := range c.Roster {
			if d.ID == s && d.Secondary {
				found = true
				break
			}
		}
		if !found {
			errs = append(errs, fmt.Errorf("rotation.secondary_initial: %s is not a secondary-track member", s))
		}
	}

	return errors.Join(errs...)
}
