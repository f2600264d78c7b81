package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTMDB(); err != nil {
		return err
	}
	if err := c.validateMatcher(); err != nil {
		return err
	}
	if err := c.validateWatch(); err != nil {
		return err
	}
	if err := c.validateDaemon(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateTMDB() error {
	if c.TMDB.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/mediashelf/config.toml"
		}
		return fmt.Errorf("tmdb.api_key is required. Set TMDB_API_KEY env var or edit %s (create with 'mediashelf config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateMatcher() error {
	if c.Matcher.HighThreshold <= 0 || c.Matcher.HighThreshold > 1 {
		return errors.New("matcher.high_threshold must be between 0 and 1")
	}
	if c.Matcher.LowThreshold <= 0 || c.Matcher.LowThreshold > 1 {
		return errors.New("matcher.low_threshold must be between 0 and 1")
	}
	if c.Matcher.LowThreshold >= c.Matcher.HighThreshold {
		return errors.New("matcher.low_threshold must be below matcher.high_threshold")
	}
	if err := ensurePositiveMap(map[string]int{
		"matcher.concurrency":     c.Matcher.Concurrency,
		"matcher.retry_attempts":  c.Matcher.RetryAttempts,
		"matcher.retry_base_ms":   c.Matcher.RetryBaseMS,
		"matcher.cache_ttl_hours": c.Matcher.CacheTTLHours,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWatch() error {
	if c.Watch.CompletedFraction <= 0 || c.Watch.CompletedFraction > 1 {
		return errors.New("watch.completed_fraction must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateDaemon() error {
	return ensurePositiveMap(map[string]int{
		"daemon.scan_interval":    c.Daemon.ScanInterval,
		"daemon.debounce_seconds": c.Daemon.DebounceSeconds,
	})
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
