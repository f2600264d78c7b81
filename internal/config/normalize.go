package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeScanner(); err != nil {
		return err
	}
	c.normalizeTMDB()
	c.normalizeMatcher()
	c.normalizeReconcile()
	c.normalizeWatch()
	c.normalizeDaemon()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeScanner() error {
	roots := make([]string, 0, len(c.Scanner.Roots))
	seen := make(map[string]struct{}, len(c.Scanner.Roots))
	for _, root := range c.Scanner.Roots {
		if strings.TrimSpace(root) == "" {
			continue
		}
		expanded, err := expandPath(root)
		if err != nil {
			return fmt.Errorf("scanner.roots: %w", err)
		}
		if _, ok := seen[expanded]; ok {
			continue
		}
		seen[expanded] = struct{}{}
		roots = append(roots, expanded)
	}
	c.Scanner.Roots = roots

	if len(c.Scanner.Extensions) == 0 {
		c.Scanner.Extensions = append([]string(nil), defaultExtensions...)
	} else {
		exts := make([]string, 0, len(c.Scanner.Extensions))
		seenExt := make(map[string]struct{}, len(c.Scanner.Extensions))
		for _, ext := range c.Scanner.Extensions {
			normalized := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
			if normalized == "" {
				continue
			}
			if _, ok := seenExt[normalized]; ok {
				continue
			}
			seenExt[normalized] = struct{}{}
			exts = append(exts, normalized)
		}
		if len(exts) == 0 {
			exts = append([]string(nil), defaultExtensions...)
		}
		c.Scanner.Extensions = exts
	}
	return nil
}

func (c *Config) normalizeTMDB() {
	if c.TMDB.APIKey == "" {
		if value, ok := os.LookupEnv("TMDB_API_KEY"); ok {
			c.TMDB.APIKey = value
		}
	}
	c.TMDB.APIKey = strings.TrimSpace(c.TMDB.APIKey)
	c.TMDB.BaseURL = strings.TrimSpace(c.TMDB.BaseURL)
	if c.TMDB.BaseURL == "" {
		c.TMDB.BaseURL = defaultTMDBBaseURL
	}
	c.TMDB.Language = strings.TrimSpace(c.TMDB.Language)
	if c.TMDB.Language == "" {
		c.TMDB.Language = defaultTMDBLanguage
	}
}

func (c *Config) normalizeMatcher() {
	if c.Matcher.HighThreshold <= 0 {
		c.Matcher.HighThreshold = defaultHighThreshold
	}
	if c.Matcher.LowThreshold <= 0 {
		c.Matcher.LowThreshold = defaultLowThreshold
	}
	if c.Matcher.Concurrency <= 0 {
		c.Matcher.Concurrency = defaultConcurrency
	}
	if c.Matcher.RetryAttempts <= 0 {
		c.Matcher.RetryAttempts = defaultRetryAttempts
	}
	if c.Matcher.RetryBaseMS <= 0 {
		c.Matcher.RetryBaseMS = defaultRetryBaseMS
	}
	if c.Matcher.CacheTTLHours <= 0 {
		c.Matcher.CacheTTLHours = defaultCacheTTLHours
	}
}

func (c *Config) normalizeReconcile() {
	if c.Reconcile.OrphanGraceCycles < 0 {
		c.Reconcile.OrphanGraceCycles = defaultGraceCycles
	}
}

func (c *Config) normalizeWatch() {
	if c.Watch.CompletedFraction <= 0 {
		c.Watch.CompletedFraction = defaultCompletedFrac
	}
}

func (c *Config) normalizeDaemon() {
	if c.Daemon.ScanInterval <= 0 {
		c.Daemon.ScanInterval = defaultScanInterval
	}
	if c.Daemon.DebounceSeconds <= 0 {
		c.Daemon.DebounceSeconds = defaultDebounceSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
