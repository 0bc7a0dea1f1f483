package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

// set names end up in paths and lock file names
var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Validate checks struct tags first, then the rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed on %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	seen := make(map[string]struct{}, len(c.Sets))
	for _, s := range c.Sets {
		if !namePattern.MatchString(s.Name) {
			return fmt.Errorf("invalid config: set name %q must match %s", s.Name, namePattern)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("invalid config: duplicate set name %q", s.Name)
		}
		seen[s.Name] = struct{}{}

		// rsync resolves a relative --link-dest against the destination
		if !filepath.IsAbs(s.Target) {
			return fmt.Errorf("invalid config: set %s: target %q must be an absolute path", s.Name, s.Target)
		}
		for _, r := range s.Roots {
			if !filepath.IsAbs(r) {
				return fmt.Errorf("invalid config: set %s: root %q must be an absolute path", s.Name, r)
			}
		}

		if s.LatestLink != "" && !namePattern.MatchString(s.LatestLink) {
			return fmt.Errorf("invalid config: set %s: latestLink %q must be a plain name", s.Name, s.LatestLink)
		}
		if err := checkCron(s.Schedule); err != nil {
			return fmt.Errorf("invalid config: set %s: schedule: %w", s.Name, err)
		}
		if err := checkCron(s.PruneSchedule); err != nil {
			return fmt.Errorf("invalid config: set %s: pruneSchedule: %w", s.Name, err)
		}
		for _, r := range s.Retention.Rules {
			if err := checkCron(r.Cron); err != nil {
				return fmt.Errorf("invalid config: set %s: rule %s: %w", s.Name, r.Name, err)
			}
		}
	}
	return nil
}

func checkCron(expr string) error {
	if expr == "" {
		return nil
	}
	_, err := cron.ParseStandard(expr)
	return err
}
