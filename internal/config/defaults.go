package config

const (
	defaultStateDir        = "~/.local/share/mediashelf"
	defaultLogDir          = "~/.local/share/mediashelf/logs"
	defaultTMDBLanguage    = "en-US"
	defaultTMDBBaseURL     = "https://api.themoviedb.org/3"
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
	defaultHighThreshold   = 0.85
	defaultLowThreshold    = 0.50
	defaultConcurrency     = 4
	defaultRetryAttempts   = 4
	defaultRetryBaseMS     = 500
	defaultCacheTTLHours   = 168
	defaultGraceCycles     = 2
	defaultCompletedFrac   = 0.9
	defaultScanInterval    = 3600
	defaultDebounceSeconds = 5
)

var defaultExtensions = []string{"mp4", "mkv", "avi", "m4v", "webm"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Scanner: Scanner{
			Extensions: append([]string(nil), defaultExtensions...),
		},
		TMDB: TMDB{
			Language: defaultTMDBLanguage,
			BaseURL:  defaultTMDBBaseURL,
		},
		Matcher: Matcher{
			HighThreshold: defaultHighThreshold,
			LowThreshold:  defaultLowThreshold,
			Concurrency:   defaultConcurrency,
			RetryAttempts: defaultRetryAttempts,
			RetryBaseMS:   defaultRetryBaseMS,
			CacheTTLHours: defaultCacheTTLHours,
		},
		Reconcile: Reconcile{
			OrphanGraceCycles: defaultGraceCycles,
		},
		Watch: Watch{
			CompletedFraction: defaultCompletedFrac,
		},
		Daemon: Daemon{
			ScanInterval:    defaultScanInterval,
			DebounceSeconds: defaultDebounceSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
