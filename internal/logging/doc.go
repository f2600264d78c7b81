// Package logging builds the engine's slog loggers. Console output uses a
// compact single-line handler; JSON output is available for machine
// consumption. Context helpers lift cycle and stage identifiers from
// context.Context into structured fields.
package logging
