// Package config loads, normalizes, and validates mediashelf configuration.
//
// Configuration comes from a TOML file (default ~/.config/mediashelf/config.toml
// or ./mediashelf.toml) merged over repository defaults. All paths are expanded
// and absolute after Load; Validate guarantees thresholds and intervals are
// sane before the engine starts a cycle. The configuration source is read once
// per cycle start and is not owned by the engine core.
package config
