// Package services defines the error taxonomy and context plumbing shared by
// the engine stages. Sentinel errors tag failures for cycle classification;
// context helpers thread cycle, stage, and correlation identifiers through to
// structured logging.
package services
