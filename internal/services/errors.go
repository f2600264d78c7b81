package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrFilesystemUnavailable = errors.New("filesystem unavailable")
	ErrPermissionDenied      = errors.New("permission denied")
	ErrProviderUnavailable   = errors.New("provider unavailable")
	ErrCorruptSnapshot       = errors.New("corrupt snapshot")
	ErrValidation            = errors.New("validation error")
	ErrConfiguration         = errors.New("configuration error")
	ErrNotFound              = errors.New("not found")
	ErrTransient             = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// CycleFatal reports whether a stage error must abort the reconcile cycle
// without committing. Filesystem loss and snapshot corruption are fatal; a
// provider outage or other transient failure degrades the cycle but the
// filesystem truth already gathered can still be committed.
func CycleFatal(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrFilesystemUnavailable), errors.Is(err, ErrCorruptSnapshot), errors.Is(err, ErrConfiguration):
		return true
	default:
		return false
	}
}

// Degraded reports whether an error should mark the cycle as partial success
// rather than failed. Provider outages and transient faults leave matching
// incomplete but do not invalidate the scan.
func Degraded(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrProviderUnavailable), errors.Is(err, ErrTransient):
		return true
	default:
		return false
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
